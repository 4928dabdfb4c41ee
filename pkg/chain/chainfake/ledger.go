// Package chainfake is an in-memory chain.Ledger for tests.
package chainfake

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"ti-portal/pkg/chain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// Native is the native-coin sentinel
var Native = common.Address{}

type pair struct{ in, out common.Address }

type allowanceKey struct{ token, owner, spender common.Address }

// Transfer records a completed Transfer call
type Transfer struct {
	Token  common.Address
	To     common.Address
	Amount *big.Int
}

// Ledger simulates tokens, balances and a constant-rate router. Error fields
// may be set by tests before use to force failures.
type Ledger struct {
	mu sync.Mutex

	router   common.Address
	signer   common.Address
	decimals map[common.Address]uint8
	balances map[common.Address]map[common.Address]*big.Int
	allow    map[allowanceKey]*big.Int
	rates    map[pair]decimal.Decimal
	nonce    uint64

	GasPriceWei   *big.Int
	GasPriceErr   error
	DecimalsErr   error
	BalanceErr    error
	AmountsOutErr error
	EstimateErr   error
	EstimateGas   uint64
	ApproveErr    error
	SwapErr       error
	TransferErrs  map[common.Address]error

	AmountsOutCalls int
	Approvals       int
	Swaps           []chain.SwapCall
	Transfers       []Transfer
}

// New creates a ledger whose writes are signed by signer
func New(router, signer common.Address) *Ledger {
	return &Ledger{
		router:       router,
		signer:       signer,
		decimals:     map[common.Address]uint8{Native: 18},
		balances:     make(map[common.Address]map[common.Address]*big.Int),
		allow:        make(map[allowanceKey]*big.Int),
		rates:        make(map[pair]decimal.Decimal),
		GasPriceWei:  chain.Gwei(5),
		EstimateGas:  180_000,
		TransferErrs: make(map[common.Address]error),
	}
}

// AddToken registers a token contract with its decimals
func (l *Ledger) AddToken(token common.Address, decimals uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decimals[token] = decimals
}

// SetBalance sets owner's balance of token in human units
func (l *Ledger) SetBalance(token, owner common.Address, amount string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setRaw(token, owner, chain.FromDecimal(decimal.RequireFromString(amount), l.decimals[token]))
}

// Balance returns owner's balance of token in human units
func (l *Ledger) Balance(token, owner common.Address) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return chain.ToDecimal(l.raw(token, owner), l.decimals[token])
}

// SetRate makes one unit of in worth rate units of out on the router
func (l *Ledger) SetRate(in, out common.Address, rate string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rates[pair{in, out}] = decimal.RequireFromString(rate)
}

// SetAllowance sets an allowance directly
func (l *Ledger) SetAllowance(token, owner, spender common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allow[allowanceKey{token, owner, spender}] = new(big.Int).Set(amount)
}

func (l *Ledger) raw(token, owner common.Address) *big.Int {
	if v, ok := l.balances[token][owner]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (l *Ledger) setRaw(token, owner common.Address, v *big.Int) {
	if l.balances[token] == nil {
		l.balances[token] = make(map[common.Address]*big.Int)
	}
	l.balances[token][owner] = v
}

func (l *Ledger) receipt() *types.Receipt {
	l.nonce++
	return &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		TxHash: common.BigToHash(new(big.Int).SetUint64(l.nonce)),
	}
}

// Router implements chain.Ledger
func (l *Ledger) Router() common.Address {
	return l.router
}

// Decimals implements chain.Ledger
func (l *Ledger) Decimals(_ context.Context, token common.Address) (uint8, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.DecimalsErr != nil {
		return 0, l.DecimalsErr
	}
	d, ok := l.decimals[token]
	if !ok {
		return 0, fmt.Errorf("execution reverted: no contract at %s", token.Hex())
	}
	return d, nil
}

// TokenBalance implements chain.Ledger
func (l *Ledger) TokenBalance(_ context.Context, token, owner common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.BalanceErr != nil {
		return nil, l.BalanceErr
	}
	return l.raw(token, owner), nil
}

// NativeBalance implements chain.Ledger
func (l *Ledger) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return l.TokenBalance(ctx, Native, owner)
}

// Allowance implements chain.Ledger
func (l *Ledger) Allowance(_ context.Context, token, owner, spender common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.allow[allowanceKey{token, owner, spender}]; ok {
		return new(big.Int).Set(v), nil
	}
	return big.NewInt(0), nil
}

// AmountsOut implements chain.Ledger with constant per-pair rates
func (l *Ledger) AmountsOut(_ context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.AmountsOutCalls++
	if l.AmountsOutErr != nil {
		return nil, l.AmountsOutErr
	}
	return l.amountsOut(amountIn, path)
}

func (l *Ledger) amountsOut(amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("execution reverted: INVALID_PATH")
	}

	amounts := []*big.Int{new(big.Int).Set(amountIn)}
	current := amountIn
	for i := 0; i+1 < len(path); i++ {
		rate, ok := l.rates[pair{path[i], path[i+1]}]
		if !ok {
			return nil, fmt.Errorf("execution reverted: PancakeLibrary: INSUFFICIENT_LIQUIDITY")
		}
		human := chain.ToDecimal(current, l.decimals[path[i]]).Mul(rate)
		current = chain.FromDecimal(human, l.decimals[path[i+1]])
		amounts = append(amounts, current)
	}
	return amounts, nil
}

// GasPrice implements chain.Ledger
func (l *Ledger) GasPrice(context.Context) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.GasPriceErr != nil {
		return nil, l.GasPriceErr
	}
	return new(big.Int).Set(l.GasPriceWei), nil
}

// EstimateSwap implements chain.Ledger
func (l *Ledger) EstimateSwap(_ context.Context, _ common.Address, call chain.SwapCall) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.EstimateErr != nil {
		return 0, l.EstimateErr
	}
	if _, _, err := call.Pack(); err != nil {
		return 0, err
	}
	return l.EstimateGas, nil
}

// Approve implements chain.Ledger
func (l *Ledger) Approve(_ context.Context, token, spender common.Address, amount *big.Int) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ApproveErr != nil {
		return nil, l.ApproveErr
	}
	l.Approvals++
	l.allow[allowanceKey{token, l.signer, spender}] = new(big.Int).Set(amount)
	return l.receipt(), nil
}

// Swap implements chain.Ledger, moving balances along the path
func (l *Ledger) Swap(_ context.Context, call chain.SwapCall) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SwapErr != nil {
		return nil, l.SwapErr
	}

	in := call.Path[0]
	if call.Kind == chain.SwapNativeForTokens {
		in = Native
	} else {
		key := allowanceKey{in, l.signer, l.router}
		if a, ok := l.allow[key]; !ok || a.Cmp(call.AmountIn) < 0 {
			return nil, &chain.TransferError{Op: "swap", Reason: "execution reverted: TransferHelper: TRANSFER_FROM_FAILED"}
		}
	}

	amounts, err := l.amountsOut(call.AmountIn, call.Path)
	if err != nil {
		return nil, &chain.TransferError{Op: "swap", Reason: err.Error()}
	}
	out := amounts[len(amounts)-1]
	if out.Cmp(call.AmountOutMin) < 0 {
		return nil, &chain.TransferError{Op: "swap", Reason: "execution reverted: PancakeRouter: INSUFFICIENT_OUTPUT_AMOUNT"}
	}

	have := l.raw(in, l.signer)
	if have.Cmp(call.AmountIn) < 0 {
		return nil, &chain.TransferError{Op: "swap", Reason: "execution reverted: TransferHelper: TRANSFER_FROM_FAILED"}
	}
	outToken := call.Path[len(call.Path)-1]
	if call.Kind == chain.SwapTokensForNative {
		outToken = Native
	}

	l.setRaw(in, l.signer, have.Sub(have, call.AmountIn))
	l.setRaw(outToken, call.Recipient, new(big.Int).Add(l.raw(outToken, call.Recipient), out))
	l.Swaps = append(l.Swaps, call)
	return l.receipt(), nil
}

// Transfer implements chain.Ledger
func (l *Ledger) Transfer(_ context.Context, token, to common.Address, amount *big.Int) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.TransferErrs[to]; err != nil {
		return nil, err
	}

	have := l.raw(token, l.signer)
	if have.Cmp(amount) < 0 {
		return nil, &chain.TransferError{Op: "transfer", Reason: "execution reverted: BEP20: transfer amount exceeds balance"}
	}
	l.setRaw(token, l.signer, have.Sub(have, amount))
	l.setRaw(token, to, new(big.Int).Add(l.raw(token, to), amount))
	l.Transfers = append(l.Transfers, Transfer{Token: token, To: to, Amount: new(big.Int).Set(amount)})
	return l.receipt(), nil
}

var _ chain.Ledger = (*Ledger)(nil)
