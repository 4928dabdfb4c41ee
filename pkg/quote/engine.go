// Package quote prices swaps against the AMM router.
package quote

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"ti-portal/pkg/chain"
	"ti-portal/pkg/types"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Result is a quote in integer base units, as needed for transaction building
type Result struct {
	AmountIn    *big.Int
	AmountOut   *big.Int
	Path        []common.Address
	InDecimals  uint8
	OutDecimals uint8
	SameToken   bool
}

// Quote converts the result to its display form
func (r Result) Quote() types.SwapQuote {
	return types.SwapQuote{
		AmountOut: chain.FormatUnits(r.AmountOut, r.OutDecimals),
		Path:      r.Path,
	}
}

// Engine routes and prices swaps. Token decimals are cached per address.
type Engine struct {
	ledger  chain.Ledger
	wrapped types.Token
	log     *zap.Logger

	mu       sync.RWMutex
	decimals map[common.Address]uint8
}

// NewEngine creates a quote engine routing through the wrapped native token
func NewEngine(ledger chain.Ledger, wrappedNative types.Token, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		ledger:   ledger,
		wrapped:  wrappedNative,
		log:      log,
		decimals: map[common.Address]uint8{types.NativeAddress: types.NativeDecimals},
	}
}

// Resolve maps the native sentinel to the wrapped-native contract
func (e *Engine) Resolve(addr common.Address) common.Address {
	if addr == types.NativeAddress {
		return e.wrapped.Address
	}
	return addr
}

// Route returns the trading path for a token pair. Pairs that do not touch
// the wrapped-native asset hop through it.
func (e *Engine) Route(in, out common.Address) []common.Address {
	in, out = e.Resolve(in), e.Resolve(out)
	if in == out {
		return []common.Address{in}
	}
	if in == e.wrapped.Address || out == e.wrapped.Address {
		return []common.Address{in, out}
	}
	return []common.Address{in, e.wrapped.Address, out}
}

// Decimals returns the token's decimals, reading the contract once
func (e *Engine) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	e.mu.RLock()
	d, ok := e.decimals[token]
	e.mu.RUnlock()
	if ok {
		return d, nil
	}

	d, err := e.ledger.Decimals(ctx, token)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	e.decimals[token] = d
	e.mu.Unlock()
	return d, nil
}

// Quote prices amountIn of in in units of out. Any failure yields the zero
// quote; callers treat that as "no route".
func (e *Engine) Quote(ctx context.Context, amountIn string, in, out types.Token) types.SwapQuote {
	res, err := e.QuoteRaw(ctx, amountIn, in, out)
	if err != nil {
		e.log.Debug("quote unavailable",
			zap.String("amount", amountIn),
			zap.String("from", in.Symbol),
			zap.String("to", out.Symbol),
			zap.Error(err))
		return types.ZeroQuote()
	}
	if res.SameToken {
		return types.SwapQuote{AmountOut: amountIn, Path: res.Path}
	}
	return res.Quote()
}

// QuoteRaw is Quote in base units with the failure reason kept
func (e *Engine) QuoteRaw(ctx context.Context, amountIn string, in, out types.Token) (Result, error) {
	path := e.Route(in.Address, out.Address)
	if len(path) == 1 {
		return Result{Path: path, SameToken: true}, nil
	}

	inDecimals, err := e.Decimals(ctx, in.Address)
	if err != nil {
		return Result{}, fmt.Errorf("%w: decimals of %s: %v", chain.ErrQuoteUnavailable, in.Symbol, err)
	}
	outDecimals, err := e.Decimals(ctx, out.Address)
	if err != nil {
		return Result{}, fmt.Errorf("%w: decimals of %s: %v", chain.ErrQuoteUnavailable, out.Symbol, err)
	}

	raw, err := chain.ParseUnits(amountIn, inDecimals)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", chain.ErrQuoteUnavailable, err)
	}
	if raw.Sign() == 0 {
		return Result{}, fmt.Errorf("%w: amount is zero", chain.ErrQuoteUnavailable)
	}

	amounts, err := e.ledger.AmountsOut(ctx, raw, path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", chain.ErrQuoteUnavailable, err)
	}
	if len(amounts) == 0 {
		return Result{}, fmt.Errorf("%w: router returned no amounts", chain.ErrQuoteUnavailable)
	}

	return Result{
		AmountIn:    raw,
		AmountOut:   amounts[len(amounts)-1],
		Path:        path,
		InDecimals:  inDecimals,
		OutDecimals: outDecimals,
	}, nil
}

// Symbols renders a path for display; the wrapped-native hop shows the native symbol
func (e *Engine) Symbols(path []common.Address, tokens types.TokenList, nativeSymbol string) []string {
	names := make([]string, len(path))
	for i, addr := range path {
		if addr == e.wrapped.Address {
			names[i] = nativeSymbol
		} else if t, ok := tokens.ByAddress(addr); ok {
			names[i] = t.Symbol
		} else {
			names[i] = addr.Hex()
		}
	}
	return names
}
