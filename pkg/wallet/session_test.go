package wallet

import (
	"context"
	"testing"

	"ti-portal/pkg/chain"
	"ti-portal/pkg/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	account = common.HexToAddress("0x1111111111111111111111111111111111111111")
	ti      = types.Token{Symbol: "Ti", Address: common.HexToAddress("0x8b5be89c0f4eabbe51fd13cf21824b65b79527f3")}
	usdt    = types.Token{Symbol: "USDT", Address: common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")}
)

type fakeConnector struct {
	err          error
	balances     map[common.Address]string
	disconnected bool
}

func (c *fakeConnector) Connect(context.Context) (common.Address, error) {
	return account, c.err
}

func (c *fakeConnector) Disconnect() { c.disconnected = true }

func (c *fakeConnector) GetBalance(_ context.Context, _ common.Address, token common.Address) decimal.Decimal {
	if v, ok := c.balances[token]; ok {
		return decimal.RequireFromString(v)
	}
	return decimal.Zero
}

func newSession(c *fakeConnector) *Session {
	return NewSession(c, Tokens{Project: ti, Stable: usdt}, nil)
}

func TestSessionStartsDisconnected(t *testing.T) {
	s := newSession(&fakeConnector{})
	assert.False(t, s.State().Connected)
	_, ok := s.Account()
	assert.False(t, ok)
}

func TestConnectLoadsBalances(t *testing.T) {
	c := &fakeConnector{balances: map[common.Address]string{
		ti.Address:          "1500",
		usdt.Address:        "20.5",
		types.NativeAddress: "0.3",
	}}
	s := newSession(c)

	ch := make(chan types.WalletState, 4)
	sub := s.Subscribe(ch)
	defer sub.Unsubscribe()

	state, err := s.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, state.Connected)
	assert.Equal(t, account.Hex(), state.Address)
	assert.Equal(t, "1500", state.BalanceToken.String())
	assert.Equal(t, "20.5", state.BalanceStable.String())
	assert.Equal(t, "0.3", state.BalanceNative.String())
	assert.Equal(t, state, <-ch)

	addr, ok := s.Account()
	assert.True(t, ok)
	assert.Equal(t, account, addr)
}

func TestRefreshAfterSwap(t *testing.T) {
	c := &fakeConnector{balances: map[common.Address]string{ti.Address: "10"}}
	s := newSession(c)

	assert.False(t, s.Refresh(context.Background()).Connected)

	_, err := s.Connect(context.Background())
	require.NoError(t, err)
	c.balances[ti.Address] = "88.5"
	assert.Equal(t, "88.5", s.Refresh(context.Background()).BalanceToken.String())
}

func TestConnectFailureKeepsState(t *testing.T) {
	s := newSession(&fakeConnector{err: chain.ErrWalletNotFound})
	_, err := s.Connect(context.Background())
	assert.ErrorIs(t, err, chain.ErrWalletNotFound)
	assert.False(t, s.State().Connected)
}

func TestDisconnectResets(t *testing.T) {
	c := &fakeConnector{balances: map[common.Address]string{ti.Address: "10"}}
	s := newSession(c)
	_, err := s.Connect(context.Background())
	require.NoError(t, err)

	s.Disconnect()
	assert.True(t, c.disconnected)
	assert.Equal(t, types.DisconnectedWallet(), s.State())
}
