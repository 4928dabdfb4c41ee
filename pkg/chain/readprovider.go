package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ReadProvider is a keyless Provider over a JSON-RPC node. Reads are served
// from the node; anything that needs an account fails with ErrWalletNotFound.
type ReadProvider struct {
	url  string
	dial dialFunc
	log  *zap.Logger

	mu      sync.Mutex
	backend rpcBackend
}

// ReadOption configures a ReadProvider
type ReadOption func(*ReadProvider)

// WithReadLogger sets the provider's logger
func WithReadLogger(l *zap.Logger) ReadOption {
	return func(p *ReadProvider) {
		if l != nil {
			p.log = l
		}
	}
}

func withReadDialer(d dialFunc) ReadOption {
	return func(p *ReadProvider) { p.dial = d }
}

// NewReadProvider creates a read-only provider for rpcURL. The node is
// dialed on first use.
func NewReadProvider(rpcURL string, opts ...ReadOption) (*ReadProvider, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL not configured")
	}
	p := &ReadProvider{
		url:  rpcURL,
		dial: dialEthclient,
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *ReadProvider) active(ctx context.Context) (rpcBackend, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backend != nil {
		return p.backend, nil
	}
	backend, err := p.dial(ctx, p.url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	p.backend = backend
	p.log.Debug("read-only node connected", zap.String("rpc", p.url))
	return backend, nil
}

// Detect is always false: there is no wallet to authorize
func (p *ReadProvider) Detect(context.Context) bool {
	return false
}

// RequestAccounts fails; a read-only provider holds no accounts
func (p *ReadProvider) RequestAccounts(context.Context) ([]common.Address, error) {
	return nil, ErrWalletNotFound
}

// ChainID returns the node's chain as hex
func (p *ReadProvider) ChainID(ctx context.Context) (string, error) {
	backend, err := p.active(ctx)
	if err != nil {
		return "", err
	}
	id, err := backend.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read chain id: %w", err)
	}
	return hexutil.EncodeBig(id), nil
}

// SwitchChain succeeds only when the node already serves chainID
func (p *ReadProvider) SwitchChain(ctx context.Context, chainID string) error {
	want, err := NormalizeChainID(chainID)
	if err != nil {
		return fmt.Errorf("invalid chain id %q: %w", chainID, err)
	}
	got, err := p.ChainID(ctx)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: %s", ErrUnrecognizedChain, want)
	}
	return nil
}

// AddChain fails; networks are fixed by the configured node
func (p *ReadProvider) AddChain(context.Context, ChainParams) error {
	return ErrWalletNotFound
}

// BalanceAt returns the native balance of account
func (p *ReadProvider) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	backend, err := p.active(ctx)
	if err != nil {
		return nil, err
	}
	return backend.BalanceAt(ctx, account, nil)
}

// CallContract executes a read-only call at the latest block
func (p *ReadProvider) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	backend, err := p.active(ctx)
	if err != nil {
		return nil, err
	}
	return backend.CallContract(ctx, msg, nil)
}

// EstimateGas simulates msg and returns its gas usage
func (p *ReadProvider) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	backend, err := p.active(ctx)
	if err != nil {
		return 0, err
	}
	return backend.EstimateGas(ctx, msg)
}

// SuggestGasPrice asks the node's fee oracle
func (p *ReadProvider) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	backend, err := p.active(ctx)
	if err != nil {
		return nil, err
	}
	return backend.SuggestGasPrice(ctx)
}

// SendTransaction fails; there is no key to sign with
func (p *ReadProvider) SendTransaction(context.Context, TxRequest) (common.Hash, error) {
	return common.Hash{}, ErrWalletNotFound
}

// TransactionReceipt returns the receipt, or ethereum.NotFound while pending
func (p *ReadProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	backend, err := p.active(ctx)
	if err != nil {
		return nil, err
	}
	return backend.TransactionReceipt(ctx, hash)
}

// Close releases the node connection
func (p *ReadProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backend != nil {
		p.backend.Close()
		p.backend = nil
	}
}
