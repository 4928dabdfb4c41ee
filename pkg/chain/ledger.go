package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Ledger is the typed router/token adapter the quote, swap and disbursement
// engines are written against. Native-coin arguments use the zero address.
type Ledger interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	EstimateSwap(ctx context.Context, from common.Address, call SwapCall) (uint64, error)

	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (*types.Receipt, error)
	Swap(ctx context.Context, call SwapCall) (*types.Receipt, error)
	Transfer(ctx context.Context, token, to common.Address, amount *big.Int) (*types.Receipt, error)

	Router() common.Address
}

// SwapKind selects the router entry point by asset direction
type SwapKind int

const (
	SwapNativeForTokens SwapKind = iota
	SwapTokensForNative
	SwapTokensForTokens
)

func (k SwapKind) String() string {
	switch k {
	case SwapNativeForTokens:
		return "native->token"
	case SwapTokensForNative:
		return "token->native"
	case SwapTokensForTokens:
		return "token->token"
	default:
		return fmt.Sprintf("SwapKind(%d)", int(k))
	}
}

// Method is the fee-on-transfer tolerant router method for this direction
func (k SwapKind) Method() string {
	switch k {
	case SwapNativeForTokens:
		return "swapExactETHForTokensSupportingFeeOnTransferTokens"
	case SwapTokensForNative:
		return "swapExactTokensForETHSupportingFeeOnTransferTokens"
	default:
		return "swapExactTokensForTokensSupportingFeeOnTransferTokens"
	}
}

// KindFor derives the swap direction from the endpoint tokens
func KindFor(nativeIn, nativeOut bool) SwapKind {
	switch {
	case nativeIn:
		return SwapNativeForTokens
	case nativeOut:
		return SwapTokensForNative
	default:
		return SwapTokensForTokens
	}
}

// SwapCall is a fully specified router swap
type SwapCall struct {
	Kind         SwapKind
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Path         []common.Address
	Recipient    common.Address
	Deadline     time.Time
}

// Pack encodes the call and returns its calldata and attached native value
func (c SwapCall) Pack() ([]byte, *big.Int, error) {
	if c.AmountIn == nil || c.AmountOutMin == nil {
		return nil, nil, fmt.Errorf("swap amounts not set")
	}
	if len(c.Path) < 2 {
		return nil, nil, fmt.Errorf("swap path needs at least 2 tokens, got %d", len(c.Path))
	}

	deadline := big.NewInt(c.Deadline.Unix())

	var (
		data []byte
		err  error
	)
	value := big.NewInt(0)
	if c.Kind == SwapNativeForTokens {
		data, err = routerContract.Pack(c.Kind.Method(), c.AmountOutMin, c.Path, c.Recipient, deadline)
		value = new(big.Int).Set(c.AmountIn)
	} else {
		data, err = routerContract.Pack(c.Kind.Method(), c.AmountIn, c.AmountOutMin, c.Path, c.Recipient, deadline)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to pack %s: %w", c.Kind.Method(), err)
	}
	return data, value, nil
}
