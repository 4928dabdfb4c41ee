package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// DefaultGasPriceGwei is assumed when the node's fee oracle is unavailable
	DefaultGasPriceGwei = 3

	defaultDetectRetries  = 3
	defaultDetectInterval = 500 * time.Millisecond
	defaultReceiptPoll    = 2 * time.Second
)

// FeeEstimate is the current gas price, flagged when it is the fixed fallback
type FeeEstimate struct {
	GasPriceWei *big.Int
	Fallback    bool
}

// Client is the connected signer handle. It owns the provider for the
// session and implements Ledger on top of it.
type Client struct {
	provider Provider
	target   ChainParams
	router   common.Address
	log      *zap.Logger

	detectRetries  int
	detectInterval time.Duration
	receiptPoll    time.Duration

	mu        sync.RWMutex
	account   common.Address
	connected bool
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the client logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithDetectRetry bounds provider detection
func WithDetectRetry(retries int, interval time.Duration) Option {
	return func(c *Client) {
		c.detectRetries = retries
		c.detectInterval = interval
	}
}

// WithReceiptPoll sets how often pending receipts are polled
func WithReceiptPoll(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.receiptPoll = d
		}
	}
}

// NewClient creates a client for the target chain and router. provider may be
// nil, in which case detection fails with ErrWalletNotFound.
func NewClient(provider Provider, target ChainParams, router common.Address, opts ...Option) *Client {
	c := &Client{
		provider:       provider,
		target:         target,
		router:         router,
		log:            zap.NewNop(),
		detectRetries:  defaultDetectRetries,
		detectInterval: defaultDetectInterval,
		receiptPoll:    defaultReceiptPoll,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Target returns the chain the client connects to
func (c *Client) Target() ChainParams {
	return c.target
}

// Router returns the AMM router address
func (c *Client) Router() common.Address {
	return c.router
}

// DetectWallet polls for a provider with a bounded number of retries
func (c *Client) DetectWallet(ctx context.Context) bool {
	if c.provider == nil {
		return false
	}
	return Retry(ctx, c.detectRetries, c.detectInterval, func(ctx context.Context) bool {
		return c.provider.Detect(ctx)
	})
}

// Connect authorizes an account and makes sure the provider is on the target
// chain, adding the chain first if the provider does not know it
func (c *Client) Connect(ctx context.Context) (common.Address, error) {
	if !c.DetectWallet(ctx) {
		return common.Address{}, ErrWalletNotFound
	}

	accounts, err := c.provider.RequestAccounts(ctx)
	if err != nil {
		return common.Address{}, classify("request accounts", err)
	}
	if len(accounts) == 0 {
		return common.Address{}, fmt.Errorf("request accounts: no account authorized")
	}

	if err := c.ensureChain(ctx); err != nil {
		return common.Address{}, err
	}

	c.mu.Lock()
	c.account = accounts[0]
	c.connected = true
	c.mu.Unlock()

	c.log.Info("wallet connected",
		zap.String("address", accounts[0].Hex()),
		zap.String("chain_id", c.target.ChainID))
	return accounts[0], nil
}

func (c *Client) ensureChain(ctx context.Context) error {
	want, err := NormalizeChainID(c.target.ChainID)
	if err != nil {
		return fmt.Errorf("invalid target chain id %q: %w", c.target.ChainID, err)
	}

	current, err := c.provider.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}
	if current, err = NormalizeChainID(current); err == nil && current == want {
		return nil
	}

	err = c.provider.SwitchChain(ctx, want)
	if err == nil {
		return nil
	}
	if !IsUnrecognizedChain(err) {
		return classify("switch chain", err)
	}

	c.log.Info("adding network to wallet", zap.String("chain_id", want), zap.String("name", c.target.ChainName))
	if err := c.provider.AddChain(ctx, c.target); err != nil {
		return classify("add chain", err)
	}
	if err := c.provider.SwitchChain(ctx, want); err != nil {
		return classify("switch chain", err)
	}
	return nil
}

// Disconnect forgets the authorized account
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.account = common.Address{}
	c.connected = false
	c.mu.Unlock()
}

// Account returns the connected account, if any
func (c *Client) Account() (common.Address, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account, c.connected
}

// IsUnrecognizedChain reports wallet error 4902
func IsUnrecognizedChain(err error) bool {
	if errors.Is(err, ErrUnrecognizedChain) {
		return true
	}
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeUnrecognizedChain
}

func classify(op string, err error) error {
	if IsUserRejected(err) {
		return fmt.Errorf("%s: %w", op, ErrUserRejected)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// GetBalance returns owner's balance of token in human units. The zero
// address means the native coin. Read failures yield zero.
func (c *Client) GetBalance(ctx context.Context, owner, token common.Address) decimal.Decimal {
	if c.provider == nil {
		return decimal.Zero
	}

	if token == (common.Address{}) {
		wei, err := c.NativeBalance(ctx, owner)
		if err != nil {
			c.log.Debug("native balance read failed", zap.String("owner", owner.Hex()), zap.Error(err))
			return decimal.Zero
		}
		return ToDecimal(wei, 18)
	}

	raw, err := c.TokenBalance(ctx, token, owner)
	if err != nil {
		c.log.Debug("token balance read failed", zap.String("token", token.Hex()), zap.String("owner", owner.Hex()), zap.Error(err))
		return decimal.Zero
	}
	decimals, err := c.Decimals(ctx, token)
	if err != nil {
		c.log.Debug("token decimals read failed", zap.String("token", token.Hex()), zap.Error(err))
		return decimal.Zero
	}
	return ToDecimal(raw, decimals)
}

// GetFeeEstimate returns the node's gas price or the fixed 3 gwei fallback
func (c *Client) GetFeeEstimate(ctx context.Context) FeeEstimate {
	if c.provider != nil {
		price, err := c.provider.SuggestGasPrice(ctx)
		if err == nil && price != nil && price.Sign() > 0 {
			return FeeEstimate{GasPriceWei: price}
		}
		c.log.Debug("gas price oracle unavailable, using fallback", zap.Error(err))
	}
	return FeeEstimate{GasPriceWei: Gwei(DefaultGasPriceGwei), Fallback: true}
}

// GasPrice implements Ledger
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	return c.GetFeeEstimate(ctx).GasPriceWei, nil
}

func (c *Client) call(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	if c.provider == nil {
		return nil, ErrWalletNotFound
	}

	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	out, err := c.provider.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}

	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no data", method)
	}
	return values, nil
}

func (c *Client) callBig(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...interface{}) (*big.Int, error) {
	values, err := c.call(ctx, contract, to, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned %T, expected uint256", method, values[0])
	}
	return v, nil
}

// Decimals implements Ledger; the native coin is fixed at 18
func (c *Client) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	if token == (common.Address{}) {
		return 18, nil
	}
	values, err := c.call(ctx, erc20Contract, token, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals returned %T, expected uint8", values[0])
	}
	return d, nil
}

// TokenBalance implements Ledger
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if token == (common.Address{}) {
		return c.NativeBalance(ctx, owner)
	}
	return c.callBig(ctx, erc20Contract, token, "balanceOf", owner)
}

// NativeBalance implements Ledger
func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	if c.provider == nil {
		return nil, ErrWalletNotFound
	}
	return c.provider.BalanceAt(ctx, owner)
}

// Allowance implements Ledger
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.callBig(ctx, erc20Contract, token, "allowance", owner, spender)
}

// AmountsOut implements Ledger
func (c *Client) AmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("path needs at least 2 tokens, got %d", len(path))
	}
	values, err := c.call(ctx, routerContract, c.router, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getAmountsOut returned %T, expected uint256[]", values[0])
	}
	if len(amounts) != len(path) {
		return nil, fmt.Errorf("getAmountsOut returned %d amounts for a %d-token path", len(amounts), len(path))
	}
	return amounts, nil
}

// EstimateSwap simulates call from the given sender and returns its gas usage
func (c *Client) EstimateSwap(ctx context.Context, from common.Address, call SwapCall) (uint64, error) {
	if c.provider == nil {
		return 0, ErrWalletNotFound
	}
	data, value, err := call.Pack()
	if err != nil {
		return 0, err
	}
	return c.provider.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &c.router,
		Value: value,
		Data:  data,
	})
}

// Approve implements Ledger and waits for the approval to be mined
func (c *Client) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (*types.Receipt, error) {
	data, err := erc20Contract.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve: %w", err)
	}
	return c.send(ctx, "approve", TxRequest{
		To:    token,
		Data:  data,
		Label: fmt.Sprintf("Approve %s to spend token %s", spender.Hex(), token.Hex()),
	})
}

// Swap implements Ledger and waits for the swap to be mined
func (c *Client) Swap(ctx context.Context, call SwapCall) (*types.Receipt, error) {
	data, value, err := call.Pack()
	if err != nil {
		return nil, err
	}
	return c.send(ctx, "swap", TxRequest{
		To:    c.router,
		Value: value,
		Data:  data,
		Label: fmt.Sprintf("Swap (%s) via router %s", call.Kind, c.router.Hex()),
	})
}

// Transfer implements Ledger: a direct transfer of amount base units to to
func (c *Client) Transfer(ctx context.Context, token, to common.Address, amount *big.Int) (*types.Receipt, error) {
	if token == (common.Address{}) {
		return c.send(ctx, "transfer", TxRequest{
			To:    to,
			Value: amount,
			Label: fmt.Sprintf("Send %s wei to %s", amount, to.Hex()),
		})
	}

	data, err := erc20Contract.Pack("transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack transfer: %w", err)
	}
	return c.send(ctx, "transfer", TxRequest{
		To:    token,
		Data:  data,
		Label: fmt.Sprintf("Transfer %s base units of %s to %s", amount, token.Hex(), to.Hex()),
	})
}

func (c *Client) send(ctx context.Context, op string, req TxRequest) (*types.Receipt, error) {
	if _, ok := c.Account(); !ok {
		return nil, ErrNotConnected
	}

	hash, err := c.provider.SendTransaction(ctx, req)
	if err != nil {
		return nil, wrapWrite(op, err)
	}

	receipt, err := c.WaitForReceipt(ctx, hash)
	if err != nil {
		return nil, wrapWrite(op, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, &TransferError{
			Op:     op,
			Reason: fmt.Sprintf("transaction %s reverted", hash.Hex()),
		}
	}
	return receipt, nil
}

// WaitForReceipt polls until hash is mined or ctx is done
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.receiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := c.provider.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.log.Debug("receipt poll failed", zap.String("hash", hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

var _ Ledger = (*Client)(nil)
