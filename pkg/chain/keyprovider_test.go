package chain

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hardhat's first well-known development key
const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fakeBackend struct {
	chainID *big.Int
	nonce   uint64
	sent    []*types.Transaction
	closed  bool
}

func (b *fakeBackend) ChainID(context.Context) (*big.Int, error) { return b.chainID, nil }
func (b *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(7), nil
}
func (b *fakeBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}
func (b *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}
func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return Gwei(1), nil }
func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return b.nonce, nil
}
func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.sent = append(b.sent, tx)
	b.nonce++
	return nil
}
func (b *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}
func (b *fakeBackend) Close() { b.closed = true }

type fakeDialer struct {
	backends map[string]*fakeBackend
	dialed   []string
}

func (d *fakeDialer) dial(_ context.Context, url string) (rpcBackend, error) {
	d.dialed = append(d.dialed, url)
	return d.backends[url], nil
}

func newTestKeyProvider(t *testing.T, approve Approver) (*KeyProvider, *fakeDialer) {
	t.Helper()
	d := &fakeDialer{backends: map[string]*fakeBackend{
		"http://home":  {chainID: big.NewInt(1)},
		"http://bsc":   {chainID: big.NewInt(56)},
		"http://wrong": {chainID: big.NewInt(97)},
	}}
	opts := []KeyOption{withDialer(d.dial)}
	if approve != nil {
		opts = append(opts, WithApprover(approve))
	}
	p, err := NewKeyProvider(devKey, "http://home", opts...)
	require.NoError(t, err)
	return p, d
}

func TestNewKeyProviderRequiresKey(t *testing.T) {
	_, err := NewKeyProvider("", "http://home")
	assert.ErrorIs(t, err, ErrWalletNotFound)

	_, err = NewKeyProvider("not-hex", "http://home")
	assert.Error(t, err)
}

func TestKeyProviderSwitchUnknownChain(t *testing.T) {
	p, d := newTestKeyProvider(t, nil)
	ctx := context.Background()

	id, err := p.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0x1", id)

	err = p.SwitchChain(ctx, "0x38")
	assert.ErrorIs(t, err, ErrUnrecognizedChain)

	params := bscParams
	params.RPCURLs = []string{"http://bsc"}
	require.NoError(t, p.AddChain(ctx, params))
	require.NoError(t, p.SwitchChain(ctx, "0x38"))

	id, err = p.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0x38", id)
	assert.True(t, d.backends["http://home"].closed)
}

func TestKeyProviderRejectsMismatchedRPC(t *testing.T) {
	p, _ := newTestKeyProvider(t, nil)
	ctx := context.Background()

	params := bscParams
	params.RPCURLs = []string{"http://wrong"}
	require.NoError(t, p.AddChain(ctx, params))
	assert.Error(t, p.SwitchChain(ctx, "0x38"))

	id, err := p.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0x1", id)
}

func TestKeyProviderDeclinedPrompt(t *testing.T) {
	p, d := newTestKeyProvider(t, func(context.Context, string) bool { return false })
	ctx := context.Background()

	_, err := p.RequestAccounts(ctx)
	assert.ErrorIs(t, err, ErrUserRejected)

	_, err = p.SendTransaction(ctx, TxRequest{To: testAccount, Value: big.NewInt(1), Label: "test"})
	assert.ErrorIs(t, err, ErrUserRejected)
	assert.Empty(t, d.backends["http://home"].sent)
}

func TestKeyProviderSignsSequentialNonces(t *testing.T) {
	var prompts []string
	p, d := newTestKeyProvider(t, func(_ context.Context, prompt string) bool {
		prompts = append(prompts, prompt)
		return true
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := p.SendTransaction(ctx, TxRequest{To: testAccount, Value: big.NewInt(1), Label: "Send"})
		require.NoError(t, err)
	}

	sent := d.backends["http://home"].sent
	require.Len(t, sent, 2)
	assert.Equal(t, uint64(0), sent[0].Nonce())
	assert.Equal(t, uint64(1), sent[1].Nonce())
	assert.Equal(t, uint64(120_000), sent[0].Gas())

	key, err := crypto.HexToECDSA(strings.TrimPrefix(devKey, "0x"))
	require.NoError(t, err)
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), sent[0])
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), from)
	assert.Equal(t, from, p.Address())
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[0], "Send")
}

func TestNormalizeChainID(t *testing.T) {
	for in, want := range map[string]string{"0x38": "0x38", "0x038": "0x38", "38": "0x38", "0X1": "0x1"} {
		got, err := NormalizeChainID(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := NormalizeChainID("zz")
	assert.Error(t, err)
}
