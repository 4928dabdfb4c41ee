package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// Approver is the wallet's confirmation prompt; returning false declines the request
type Approver func(ctx context.Context, prompt string) bool

// rpcBackend is the part of *ethclient.Client the key provider needs
type rpcBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

type dialFunc func(ctx context.Context, url string) (rpcBackend, error)

func dialEthclient(ctx context.Context, url string) (rpcBackend, error) {
	return ethclient.DialContext(ctx, url)
}

// KeyProvider is a Provider backed by a local ECDSA key and a JSON-RPC node.
// It behaves like a browser wallet: it knows the networks it has been told
// about, asks its Approver before signing, and assigns nonces one at a time.
type KeyProvider struct {
	key     *ecdsa.PrivateKey
	from    common.Address
	approve Approver
	dial    dialFunc
	log     *zap.Logger

	mu       sync.Mutex
	homeURL  string
	networks map[string]ChainParams
	activeID string
	backend  rpcBackend
	chainID  *big.Int
}

// KeyOption configures a KeyProvider
type KeyOption func(*KeyProvider)

// WithApprover installs the confirmation prompt used before signing
func WithApprover(a Approver) KeyOption {
	return func(p *KeyProvider) { p.approve = a }
}

// WithKeyLogger sets the provider's logger
func WithKeyLogger(l *zap.Logger) KeyOption {
	return func(p *KeyProvider) {
		if l != nil {
			p.log = l
		}
	}
}

func withDialer(d dialFunc) KeyOption {
	return func(p *KeyProvider) { p.dial = d }
}

// NewKeyProvider creates a provider for the given hex private key whose
// initial network is whatever chain rpcURL serves
func NewKeyProvider(privateKeyHex, rpcURL string, opts ...KeyOption) (*KeyProvider, error) {
	privateKeyHex = strings.TrimSpace(privateKeyHex)
	if privateKeyHex == "" {
		return nil, ErrWalletNotFound
	}
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL not configured")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	p := &KeyProvider{
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		approve:  func(context.Context, string) bool { return true },
		dial:     dialEthclient,
		log:      zap.NewNop(),
		homeURL:  rpcURL,
		networks: make(map[string]ChainParams),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Address returns the signer address
func (p *KeyProvider) Address() common.Address {
	return p.from
}

// ensure dials the home network on first use (must be called with lock held)
func (p *KeyProvider) ensure(ctx context.Context) (rpcBackend, error) {
	if p.backend != nil {
		return p.backend, nil
	}

	backend, err := p.dial(ctx, p.homeURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	id, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}

	hexID := hexutil.EncodeBig(id)
	if _, known := p.networks[hexID]; !known {
		p.networks[hexID] = ChainParams{ChainID: hexID, RPCURLs: []string{p.homeURL}}
	}
	p.backend = backend
	p.chainID = id
	p.activeID = hexID
	return backend, nil
}

func (p *KeyProvider) active(ctx context.Context) (rpcBackend, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ensure(ctx)
}

// Detect dials the node and reads its chain id
func (p *KeyProvider) Detect(ctx context.Context) bool {
	if p == nil {
		return false
	}
	_, err := p.active(ctx)
	if err != nil {
		p.log.Debug("provider not ready", zap.Error(err))
		return false
	}
	return true
}

// RequestAccounts authorizes the single key-backed account
func (p *KeyProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if _, err := p.active(ctx); err != nil {
		return nil, err
	}
	if !p.approve(ctx, fmt.Sprintf("Connect account %s?", p.from.Hex())) {
		return nil, ErrUserRejected
	}
	return []common.Address{p.from}, nil
}

// ChainID returns the active chain as hex
func (p *KeyProvider) ChainID(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.ensure(ctx); err != nil {
		return "", err
	}
	return p.activeID, nil
}

// SwitchChain moves to a known network; unknown networks fail with ErrUnrecognizedChain
func (p *KeyProvider) SwitchChain(ctx context.Context, chainID string) error {
	id, err := NormalizeChainID(chainID)
	if err != nil {
		return fmt.Errorf("invalid chain id %q: %w", chainID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.ensure(ctx); err != nil {
		return err
	}
	if p.activeID == id {
		return nil
	}

	params, known := p.networks[id]
	if !known || len(params.RPCURLs) == 0 {
		return fmt.Errorf("%w: %s", ErrUnrecognizedChain, id)
	}
	if !p.approve(ctx, fmt.Sprintf("Switch network to %s (%s)?", params.ChainName, id)) {
		return ErrUserRejected
	}

	backend, err := p.dial(ctx, params.RPCURLs[0])
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", params.RPCURLs[0], err)
	}
	got, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return fmt.Errorf("failed to read chain id: %w", err)
	}
	if hexutil.EncodeBig(got) != id {
		backend.Close()
		return fmt.Errorf("RPC %s serves chain %s, expected %s", params.RPCURLs[0], hexutil.EncodeBig(got), id)
	}

	p.backend.Close()
	p.backend = backend
	p.chainID = got
	p.activeID = id
	p.log.Info("switched network", zap.String("chain_id", id), zap.String("name", params.ChainName))
	return nil
}

// AddChain registers network metadata so a later SwitchChain can succeed
func (p *KeyProvider) AddChain(ctx context.Context, params ChainParams) error {
	id, err := NormalizeChainID(params.ChainID)
	if err != nil {
		return fmt.Errorf("invalid chain id %q: %w", params.ChainID, err)
	}
	if len(params.RPCURLs) == 0 {
		return fmt.Errorf("chain %s has no RPC URL", id)
	}
	if !p.approve(ctx, fmt.Sprintf("Add network %s (%s) via %s?", params.ChainName, id, params.RPCURLs[0])) {
		return ErrUserRejected
	}

	params.ChainID = id
	p.mu.Lock()
	p.networks[id] = params
	p.mu.Unlock()
	return nil
}

// BalanceAt returns the native balance of account
func (p *KeyProvider) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	backend, err := p.active(ctx)
	if err != nil {
		return nil, err
	}
	return backend.BalanceAt(ctx, account, nil)
}

// CallContract executes a read-only call at the latest block
func (p *KeyProvider) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	backend, err := p.active(ctx)
	if err != nil {
		return nil, err
	}
	return backend.CallContract(ctx, msg, nil)
}

// EstimateGas simulates msg and returns its gas usage
func (p *KeyProvider) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	backend, err := p.active(ctx)
	if err != nil {
		return 0, err
	}
	return backend.EstimateGas(ctx, msg)
}

// SuggestGasPrice asks the node's fee oracle
func (p *KeyProvider) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	backend, err := p.active(ctx)
	if err != nil {
		return nil, err
	}
	return backend.SuggestGasPrice(ctx)
}

// SendTransaction prompts, signs and broadcasts req. Calls are serialized so
// nonces are never assigned concurrently.
func (p *KeyProvider) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	backend, err := p.ensure(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit := req.Gas
	if gasLimit == 0 {
		estimated, err := backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  p.from,
			To:    &req.To,
			Value: value,
			Data:  req.Data,
		})
		if err != nil {
			return common.Hash{}, fmt.Errorf("gas estimation failed: %w", err)
		}
		gasLimit = estimated * 120 / 100 // Add 20% buffer
	}

	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		gasPrice = Gwei(DefaultGasPriceGwei)
	}

	prompt := fmt.Sprintf("%s\n  To:    %s\n  Value: %s wei\n  Gas:   %d @ %s wei", req.Label, req.To.Hex(), value, gasLimit, gasPrice)
	if !p.approve(ctx, prompt) {
		return common.Hash{}, ErrUserRejected
	}

	nonce, err := backend.PendingNonceAt(ctx, p.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &req.To,
		Value:    value,
		Data:     req.Data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(p.chainID), p.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := backend.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	p.log.Info("transaction broadcast",
		zap.String("hash", signedTx.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.String("label", req.Label))
	return signedTx.Hash(), nil
}

// TransactionReceipt returns the receipt, or ethereum.NotFound while pending
func (p *KeyProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	backend, err := p.active(ctx)
	if err != nil {
		return nil, err
	}
	return backend.TransactionReceipt(ctx, hash)
}

// Close releases the node connection
func (p *KeyProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backend != nil {
		p.backend.Close()
		p.backend = nil
	}
}
