package swap

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ti-portal/pkg/chain"
	"ti-portal/pkg/chain/chainfake"
	"ti-portal/pkg/quote"
	"ti-portal/pkg/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	router = common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E")
	user   = common.HexToAddress("0x1111111111111111111111111111111111111111")

	bnb  = types.Token{Symbol: "BNB", Address: types.NativeAddress, Decimals: 18}
	wbnb = types.Token{Symbol: "WBNB", Address: common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"), Decimals: 18}
	usdt = types.Token{Symbol: "USDT", Address: common.HexToAddress("0x55d398326f99059fF775485246999027B3197955"), Decimals: 18}
	ti   = types.Token{Symbol: "Ti", Address: common.HexToAddress("0x8b5be89c0f4eabbe51fd13cf21824b65b79527f3"), Decimals: 9}
)

type fakeWallet struct {
	connected bool
}

func (w *fakeWallet) Account() (common.Address, bool) {
	return user, w.connected
}

type fixture struct {
	ledger *chainfake.Ledger
	wallet *fakeWallet
	orch   *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	l := chainfake.New(router, user)
	l.AddToken(wbnb.Address, 18)
	l.AddToken(usdt.Address, 18)
	l.AddToken(ti.Address, 9)
	l.SetRate(usdt.Address, wbnb.Address, "0.0016")
	l.SetRate(wbnb.Address, ti.Address, "4906.25")
	l.SetRate(ti.Address, wbnb.Address, "0.0002")
	l.SetRate(wbnb.Address, usdt.Address, "600")
	l.SetBalance(usdt.Address, user, "100")
	l.SetBalance(chainfake.Native, user, "2")

	w := &fakeWallet{connected: true}
	o, err := New(Config{
		Token:     ti,
		Bases:     types.TokenList{usdt, bnb},
		Slippage:  decimal.RequireFromString("0.5"),
		Debounce:  20 * time.Millisecond,
		Deadline:  20 * time.Minute,
		NativeUSD: decimal.NewFromInt(600),
	}, l, quote.NewEngine(l, wbnb, nil), w, nil)
	require.NoError(t, err)
	t.Cleanup(o.Stop)

	return &fixture{ledger: l, wallet: w, orch: o}
}

func (f *fixture) enter(t *testing.T, amount string) {
	t.Helper()
	require.NoError(t, f.orch.SetAmount(amount))
	f.orch.Refresh(context.Background())
}

func TestSwapStableForTokenEndToEnd(t *testing.T) {
	f := newFixture(t)
	ch := make(chan Snapshot, 64)
	sub := f.orch.Subscribe(ch)
	defer sub.Unsubscribe()

	f.enter(t, "10")
	snap := f.orch.Snapshot()
	assert.Equal(t, "78.5", snap.Quote.AmountOut)
	assert.Equal(t, []common.Address{usdt.Address, wbnb.Address, ti.Address}, snap.Quote.Path)
	assert.Equal(t, "78.1075", snap.MinReceived)

	require.NoError(t, f.orch.Initiate())
	assert.Equal(t, StateConfirm, f.orch.Snapshot().State)

	res, err := f.orch.Confirm(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.Equal(t, "78.5", res.AmountOut)
	assert.Equal(t, "78.1075", res.MinimumOut)
	assert.Equal(t, StateSuccess, f.orch.Snapshot().State)

	require.Len(t, f.ledger.Swaps, 1)
	call := f.ledger.Swaps[0]
	assert.Equal(t, chain.SwapTokensForTokens, call.Kind)
	assert.Equal(t, "78107500000", call.AmountOutMin.String())
	assert.Equal(t, user, call.Recipient)
	assert.Equal(t, 1, f.ledger.Approvals)
	assert.Equal(t, "78.5", f.ledger.Balance(ti.Address, user).String())
	assert.Equal(t, "90", f.ledger.Balance(usdt.Address, user).String())

	// approval is a distinct sub-state that precedes swapping
	var stages []Stage
	for len(ch) > 0 {
		s := <-ch
		if s.State == StateProcessing && (len(stages) == 0 || stages[len(stages)-1] != s.Stage) {
			stages = append(stages, s.Stage)
		}
	}
	assert.Equal(t, []Stage{StageChecking, StageApproving, StageSwapping}, stages)

	f.orch.Close()
	snap = f.orch.Snapshot()
	assert.Equal(t, StateInput, snap.State)
	assert.Empty(t, snap.Amount)

	// allowance is now unlimited; no second approval
	f.enter(t, "10")
	require.NoError(t, f.orch.Initiate())
	res, err = f.orch.Confirm(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Approved)
	assert.Equal(t, 1, f.ledger.Approvals)
}

func TestSwapNativeForToken(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.orch.SelectBase("bnb"))
	f.enter(t, "1")

	require.NoError(t, f.orch.Initiate())
	_, err := f.orch.Confirm(context.Background())
	require.NoError(t, err)

	require.Len(t, f.ledger.Swaps, 1)
	assert.Equal(t, chain.SwapNativeForTokens, f.ledger.Swaps[0].Kind)
	assert.Equal(t, []common.Address{wbnb.Address, ti.Address}, f.ledger.Swaps[0].Path)
	assert.Zero(t, f.ledger.Approvals)
	assert.Equal(t, "1", f.ledger.Balance(chainfake.Native, user).String())
}

func TestSwapTokenForNativeUsesSellVariant(t *testing.T) {
	f := newFixture(t)
	f.ledger.SetBalance(ti.Address, user, "1000")
	require.NoError(t, f.orch.SelectBase("BNB"))
	require.NoError(t, f.orch.ToggleDirection())
	f.enter(t, "500")

	snap := f.orch.Snapshot()
	assert.Equal(t, ti, snap.From)
	assert.Equal(t, bnb, snap.To)
	assert.Equal(t, "0.1", snap.Quote.AmountOut)

	require.NoError(t, f.orch.Initiate())
	_, err := f.orch.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, chain.SwapTokensForNative, f.ledger.Swaps[0].Kind)
	assert.Equal(t, 1, f.ledger.Approvals)
}

func TestSwapInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.ledger.SetBalance(usdt.Address, user, "5")
	f.enter(t, "10")

	require.NoError(t, f.orch.Initiate())
	_, err := f.orch.Confirm(context.Background())
	assert.True(t, chain.IsInsufficientBalance(err))

	snap := f.orch.Snapshot()
	assert.Equal(t, StateInput, snap.State)
	require.NotNil(t, snap.Alert)
	assert.Equal(t, AlertInsufficientToken, snap.Alert.Kind)
	assert.Empty(t, f.ledger.Swaps)
	assert.Zero(t, f.ledger.Approvals)

	require.NoError(t, f.orch.SelectBase("BNB"))
	f.enter(t, "3")
	require.NoError(t, f.orch.Initiate())
	_, err = f.orch.Confirm(context.Background())
	require.Error(t, err)
	assert.Equal(t, AlertInsufficientNative, f.orch.Snapshot().Alert.Kind)
}

func TestSwapRejectedIsSilent(t *testing.T) {
	f := newFixture(t)
	f.ledger.ApproveErr = fmt.Errorf("approve: %w", chain.ErrUserRejected)
	f.enter(t, "10")

	require.NoError(t, f.orch.Initiate())
	_, err := f.orch.Confirm(context.Background())
	assert.ErrorIs(t, err, chain.ErrUserRejected)

	snap := f.orch.Snapshot()
	assert.Equal(t, StateInput, snap.State)
	assert.True(t, snap.Alert.Silent())
	assert.Empty(t, f.ledger.Swaps)
}

func TestSwapRevertCarriesReason(t *testing.T) {
	f := newFixture(t)
	f.ledger.SwapErr = &chain.TransferError{Op: "swap", Reason: "execution reverted: PancakeRouter: EXPIRED"}
	f.enter(t, "10")

	require.NoError(t, f.orch.Initiate())
	_, err := f.orch.Confirm(context.Background())
	require.Error(t, err)

	alert := f.orch.Snapshot().Alert
	assert.Equal(t, AlertFailed, alert.Kind)
	assert.Equal(t, "Error: execution reverted: PancakeRouter: EXPIRED", alert.Message)
}

func TestInitiateRequirements(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.orch.Initiate(), ErrEmptyAmount)

	f.wallet.connected = false
	f.enter(t, "10")
	assert.ErrorIs(t, f.orch.Initiate(), chain.ErrNotConnected)
	assert.Equal(t, StateInput, f.orch.Snapshot().State)

	_, err := f.orch.Confirm(context.Background())
	assert.Error(t, err)
}

func TestCancelReturnsToInput(t *testing.T) {
	f := newFixture(t)
	f.enter(t, "10")
	require.NoError(t, f.orch.Initiate())
	f.orch.Cancel()
	assert.Equal(t, StateInput, f.orch.Snapshot().State)
	assert.Equal(t, "10", f.orch.Snapshot().Amount)
}

func TestToggleAndSelectBase(t *testing.T) {
	f := newFixture(t)
	f.enter(t, "10")

	require.NoError(t, f.orch.ToggleDirection())
	snap := f.orch.Snapshot()
	assert.False(t, snap.Buying)
	assert.Empty(t, snap.Amount)
	assert.Equal(t, ti, snap.From)

	assert.ErrorIs(t, f.orch.SelectBase("DOGE"), ErrUnknownBase)
}

func TestSlippageSetting(t *testing.T) {
	f := newFixture(t)
	f.enter(t, "10")

	require.NoError(t, f.orch.SetSlippage(decimal.NewFromInt(10)))
	snap := f.orch.Snapshot()
	assert.True(t, snap.HighRisk)
	assert.Equal(t, "70.65", snap.MinReceived)

	assert.ErrorIs(t, f.orch.SetSlippage(decimal.NewFromInt(100)), ErrInvalidSlippage)
}

func TestGasPlaceholderWhenDisconnected(t *testing.T) {
	f := newFixture(t)
	f.wallet.connected = false
	f.enter(t, "10")

	gas := f.orch.Snapshot().Gas
	require.NotNil(t, gas)
	assert.True(t, gas.Placeholder)
	assert.Equal(t, "0.00150", gas.NativeString())
	assert.Equal(t, "0.90", gas.USDString())
}

func TestGasFixedLimitsBeforeApproval(t *testing.T) {
	f := newFixture(t)
	f.enter(t, "10")

	gas := f.orch.Snapshot().Gas
	require.NotNil(t, gas)
	assert.False(t, gas.Placeholder)
	assert.Equal(t, uint64(450_000), gas.Limit)
	// 450k gas at 5 gwei
	assert.Equal(t, "0.00225", gas.NativeString())
	assert.Equal(t, "1.35", gas.USDString())
}

func TestGasEstimator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	engine := quote.NewEngine(f.ledger, wbnb, nil)
	g := GasEstimator{Ledger: f.ledger, NativeUSD: decimal.NewFromInt(600), Deadline: time.Minute}

	sell, err := engine.QuoteRaw(ctx, "100", ti, bnb)
	require.NoError(t, err)
	assert.Equal(t, uint64(400_000), g.Estimate(ctx, user, ti, bnb, sell).Limit)

	f.ledger.SetAllowance(ti.Address, user, router, chain.MaxAllowance())
	assert.Equal(t, uint64(180_000), g.Estimate(ctx, user, ti, bnb, sell).Limit)

	f.ledger.EstimateErr = fmt.Errorf("execution reverted")
	assert.Equal(t, uint64(350_000), g.Estimate(ctx, user, ti, bnb, sell).Limit)

	assert.True(t, g.Estimate(ctx, user, ti, bnb, quote.Result{}).Native.IsZero())
}

func TestDebounceCoalescesEdits(t *testing.T) {
	f := newFixture(t)
	ch := make(chan Snapshot, 128)
	sub := f.orch.Subscribe(ch)
	defer sub.Unsubscribe()

	for _, amount := range []string{"1", "10", "100", "1", "10"} {
		require.NoError(t, f.orch.SetAmount(amount))
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if s.Quote.Available() {
				assert.Equal(t, "10", s.Amount)
				assert.Equal(t, "78.5", s.Quote.AmountOut)
				assert.Equal(t, 1, f.ledger.AmountsOutCalls)
				return
			}
		case <-timeout:
			t.Fatal("debounced quote never arrived")
		}
	}
}

func TestEditsRejectedWhileProcessing(t *testing.T) {
	f := newFixture(t)
	f.orch.mu.Lock()
	f.orch.state = StateProcessing
	f.orch.mu.Unlock()

	assert.ErrorIs(t, f.orch.SetAmount("1"), ErrBusy)
	assert.ErrorIs(t, f.orch.ToggleDirection(), ErrBusy)
	assert.ErrorIs(t, f.orch.SetSlippage(decimal.NewFromInt(1)), ErrBusy)
}

func TestNewValidatesConfig(t *testing.T) {
	l := chainfake.New(router, user)
	_, err := New(Config{Token: ti, Bases: types.TokenList{ti}, Slippage: decimal.Zero}, l, quote.NewEngine(l, wbnb, nil), &fakeWallet{}, nil)
	assert.Error(t, err)

	_, err = New(Config{Token: ti, Slippage: decimal.Zero}, l, quote.NewEngine(l, wbnb, nil), &fakeWallet{}, nil)
	assert.Error(t, err)

	_, err = New(Config{Token: ti, Bases: types.TokenList{usdt}, Slippage: decimal.NewFromInt(100)}, l, quote.NewEngine(l, wbnb, nil), &fakeWallet{}, nil)
	assert.ErrorIs(t, err, ErrInvalidSlippage)
}

func TestAlertFor(t *testing.T) {
	assert.Nil(t, AlertFor(nil))
	assert.Equal(t, AlertQuoteUnavailable, AlertFor(fmt.Errorf("%w: no pair", chain.ErrQuoteUnavailable)).Kind)
	assert.Equal(t, AlertRejected, AlertFor(fmt.Errorf("user rejected transaction")).Kind)
	assert.False(t, AlertFor(fmt.Errorf("boom")).Silent())
}
