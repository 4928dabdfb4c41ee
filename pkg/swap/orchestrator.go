// Package swap drives a user through quoting, confirming and executing a
// router swap.
package swap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ti-portal/pkg/chain"
	"ti-portal/pkg/quote"
	"ti-portal/pkg/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrEmptyAmount is returned when confirming without an input amount
	ErrEmptyAmount = errors.New("enter an amount to swap")

	// ErrBusy is returned for edits while a swap is processing
	ErrBusy = errors.New("a swap is already in progress")

	// ErrUnknownBase is returned when selecting an unsupported base asset
	ErrUnknownBase = errors.New("unsupported base asset")
)

// State is the orchestrator's position in the swap flow
type State int

const (
	StateInput State = iota
	StateConfirm
	StateProcessing
	StateSuccess
)

func (s State) String() string {
	switch s {
	case StateInput:
		return "INPUT"
	case StateConfirm:
		return "CONFIRM"
	case StateProcessing:
		return "PROCESSING"
	case StateSuccess:
		return "SUCCESS"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stage refines StateProcessing
type Stage string

const (
	StageIdle      Stage = ""
	StageChecking  Stage = "checking"
	StageApproving Stage = "approving"
	StageSwapping  Stage = "swapping"
)

// AccountSource reports the connected signer account
type AccountSource interface {
	Account() (common.Address, bool)
}

// Result is a completed swap
type Result struct {
	AmountIn   string `json:"amount_in"`
	AmountOut  string `json:"amount_out"`
	MinimumOut string `json:"minimum_out"`
	TxHash     string `json:"tx_hash"`
	Approved   bool   `json:"approved"`
}

// Snapshot is a copy of the orchestrator's observable state
type Snapshot struct {
	State       State
	Stage       Stage
	Buying      bool
	From        types.Token
	To          types.Token
	Amount      string
	Quote       types.SwapQuote
	Quoting     bool
	Gas         *GasEstimate
	Slippage    decimal.Decimal
	HighRisk    bool
	MinReceived string
	Alert       *Alert
	Result      *Result
}

// Config holds the orchestrator's fixed parameters
type Config struct {
	Token     types.Token
	Bases     types.TokenList // first entry is the default base
	Slippage  decimal.Decimal
	Debounce  time.Duration
	Deadline  time.Duration
	NativeUSD decimal.Decimal
}

// Orchestrator is the swap state machine. Edits schedule a debounced
// requote; Confirm runs the approval and swap transactions in order.
type Orchestrator struct {
	cfg    Config
	ledger chain.Ledger
	quotes *quote.Engine
	wallet AccountSource
	gas    GasEstimator
	log    *zap.Logger
	now    func() time.Time

	feed     event.Feed
	debounce *debouncer

	mu       sync.Mutex
	state    State
	stage    Stage
	buying   bool
	base     types.Token
	amount   string
	quote    types.SwapQuote
	quoteRaw quote.Result
	quoting  bool
	gasEst   *GasEstimate
	slippage decimal.Decimal
	version  uint64
	alert    *Alert
	result   *Result
}

// New creates an orchestrator in the INPUT state, buying the project token
// with the default base
func New(cfg Config, ledger chain.Ledger, quotes *quote.Engine, wallet AccountSource, log *zap.Logger) (*Orchestrator, error) {
	if len(cfg.Bases) == 0 {
		return nil, fmt.Errorf("at least one base asset is required")
	}
	for _, b := range cfg.Bases {
		if b.Is(cfg.Token) {
			return nil, fmt.Errorf("base asset %s cannot be the traded token", b.Symbol)
		}
	}
	if err := ValidateSlippage(cfg.Slippage); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Orchestrator{
		cfg:    cfg,
		ledger: ledger,
		quotes: quotes,
		wallet: wallet,
		gas: GasEstimator{
			Ledger:    ledger,
			NativeUSD: cfg.NativeUSD,
			Deadline:  cfg.Deadline,
			Log:       log,
		},
		log:      log,
		now:      time.Now,
		debounce: newDebouncer(cfg.Debounce),
		state:    StateInput,
		buying:   true,
		base:     cfg.Bases[0],
		slippage: cfg.Slippage,
	}, nil
}

// Subscribe delivers a Snapshot after every change. Subscribers must keep
// draining ch; a blocked subscriber stalls the flow.
func (o *Orchestrator) Subscribe(ch chan<- Snapshot) event.Subscription {
	return o.feed.Subscribe(ch)
}

// Snapshot returns the current state
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	in, out := o.tokensLocked()
	s := Snapshot{
		State:    o.state,
		Stage:    o.stage,
		Buying:   o.buying,
		From:     in,
		To:       out,
		Amount:   o.amount,
		Quote:    o.quote,
		Quoting:  o.quoting,
		Slippage: o.slippage,
		HighRisk: IsHighRisk(o.slippage),
		Alert:    o.alert,
		Result:   o.result,
	}
	if o.gasEst != nil {
		g := *o.gasEst
		s.Gas = &g
	}
	if o.quote.Available() {
		if minOut, err := MinimumOutput(o.quoteRaw.AmountOut, o.slippage); err == nil {
			s.MinReceived = chain.FormatUnits(minOut, o.quoteRaw.OutDecimals)
		}
	}
	return s
}

func (o *Orchestrator) publish() {
	o.feed.Send(o.Snapshot())
}

func (o *Orchestrator) tokensLocked() (types.Token, types.Token) {
	if o.buying {
		return o.base, o.cfg.Token
	}
	return o.cfg.Token, o.base
}

// mutate applies an edit in the INPUT or CONFIRM states and schedules a requote
func (o *Orchestrator) mutate(fn func() error) error {
	o.mu.Lock()
	if o.state == StateProcessing {
		o.mu.Unlock()
		return ErrBusy
	}
	if err := fn(); err != nil {
		o.mu.Unlock()
		return err
	}
	o.version++
	o.alert = nil
	o.mu.Unlock()

	o.publish()
	o.Requote()
	return nil
}

// SetAmount sets the input amount
func (o *Orchestrator) SetAmount(amount string) error {
	return o.mutate(func() error {
		o.amount = amount
		return nil
	})
}

// ToggleDirection flips between buying and selling the project token and
// clears the amount
func (o *Orchestrator) ToggleDirection() error {
	return o.mutate(func() error {
		o.buying = !o.buying
		o.amount = ""
		o.quote = types.SwapQuote{}
		o.quoteRaw = quote.Result{}
		return nil
	})
}

// SelectBase changes the base asset by symbol
func (o *Orchestrator) SelectBase(symbol string) error {
	return o.mutate(func() error {
		base, ok := o.cfg.Bases.BySymbol(symbol)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownBase, symbol)
		}
		o.base = base
		return nil
	})
}

// SetSlippage changes the slippage percentage. Values above 5 are accepted
// and flagged as high risk.
func (o *Orchestrator) SetSlippage(s decimal.Decimal) error {
	if err := ValidateSlippage(s); err != nil {
		return err
	}
	o.mu.Lock()
	if o.state == StateProcessing {
		o.mu.Unlock()
		return ErrBusy
	}
	o.slippage = s
	o.mu.Unlock()

	o.publish()
	return nil
}

// Requote schedules a debounced quote and gas refresh
func (o *Orchestrator) Requote() {
	o.debounce.trigger(func(ctx context.Context) {
		o.Refresh(ctx)
	})
}

// Refresh recomputes the quote and gas estimate now. Results are dropped if
// the input changed while they were being computed.
func (o *Orchestrator) Refresh(ctx context.Context) {
	o.mu.Lock()
	version := o.version
	amount := o.amount
	in, out := o.tokensLocked()

	if !positive(amount) {
		o.quote = types.SwapQuote{}
		o.quoteRaw = quote.Result{}
		o.gasEst = nil
		o.quoting = false
		o.mu.Unlock()
		o.publish()
		return
	}
	o.quoting = true
	o.mu.Unlock()
	o.publish()

	q := types.ZeroQuote()
	res, err := o.quotes.QuoteRaw(ctx, amount, in, out)
	if err == nil {
		q = res.Quote()
	} else {
		o.log.Debug("quote failed", zap.String("amount", amount), zap.Error(err))
	}

	var gas GasEstimate
	if account, ok := o.wallet.Account(); ok && err == nil {
		gas = o.gas.Estimate(ctx, account, in, out, res)
	} else {
		gas = PlaceholderGas()
	}

	o.mu.Lock()
	if version != o.version || ctx.Err() != nil {
		o.mu.Unlock()
		return
	}
	o.quote = q
	o.quoteRaw = res
	o.gasEst = &gas
	o.quoting = false
	o.mu.Unlock()
	o.publish()
}

func positive(amount string) bool {
	d, err := decimal.NewFromString(amount)
	return err == nil && d.IsPositive()
}

// Initiate moves INPUT to CONFIRM; it needs an amount and a connected wallet
func (o *Orchestrator) Initiate() error {
	o.mu.Lock()
	switch {
	case o.state != StateInput:
		o.mu.Unlock()
		return fmt.Errorf("cannot start a swap from %s", o.state)
	case !positive(o.amount):
		o.mu.Unlock()
		return ErrEmptyAmount
	}
	if _, ok := o.wallet.Account(); !ok {
		o.mu.Unlock()
		return chain.ErrNotConnected
	}
	o.state = StateConfirm
	o.alert = nil
	o.mu.Unlock()

	o.publish()
	return nil
}

// Cancel backs out of CONFIRM
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if o.state == StateConfirm {
		o.state = StateInput
	}
	o.mu.Unlock()
	o.publish()
}

// Close dismisses a SUCCESS and resets the form
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.state == StateSuccess {
		o.state = StateInput
		o.amount = ""
		o.quote = types.SwapQuote{}
		o.quoteRaw = quote.Result{}
		o.result = nil
		o.version++
	}
	o.mu.Unlock()
	o.publish()
}

// Stop cancels any pending requote
func (o *Orchestrator) Stop() {
	o.debounce.stop()
}

// Confirm runs the swap from CONFIRM. On failure the state returns to INPUT
// with an Alert describing the failure class.
func (o *Orchestrator) Confirm(ctx context.Context) (*Result, error) {
	o.mu.Lock()
	if o.state != StateConfirm {
		o.mu.Unlock()
		return nil, fmt.Errorf("cannot confirm a swap from %s", o.state)
	}
	o.state = StateProcessing
	o.stage = StageChecking
	amount := o.amount
	slippage := o.slippage
	in, out := o.tokensLocked()
	o.mu.Unlock()
	o.publish()

	result, err := o.execute(ctx, amount, in, out, slippage)

	o.mu.Lock()
	o.stage = StageIdle
	if err != nil {
		o.state = StateInput
		o.alert = AlertFor(err)
	} else {
		o.state = StateSuccess
		o.result = result
	}
	o.mu.Unlock()
	o.publish()

	if err != nil {
		o.log.Warn("swap failed",
			zap.String("amount", amount),
			zap.String("from", in.Symbol),
			zap.String("to", out.Symbol),
			zap.Error(err))
		return nil, err
	}
	o.log.Info("swap completed",
		zap.String("amount_in", result.AmountIn),
		zap.String("amount_out", result.AmountOut),
		zap.String("tx", result.TxHash))
	return result, nil
}

func (o *Orchestrator) setStage(stage Stage) {
	o.mu.Lock()
	o.stage = stage
	o.mu.Unlock()
	o.publish()
}

func (o *Orchestrator) execute(ctx context.Context, amount string, in, out types.Token, slippage decimal.Decimal) (*Result, error) {
	account, ok := o.wallet.Account()
	if !ok {
		return nil, chain.ErrNotConnected
	}

	res, err := o.quotes.QuoteRaw(ctx, amount, in, out)
	if err != nil {
		return nil, err
	}
	minOut, err := MinimumOutput(res.AmountOut, slippage)
	if err != nil {
		return nil, err
	}

	if err := o.checkBalance(ctx, account, in, res); err != nil {
		return nil, err
	}

	router := o.ledger.Router()
	approved := false
	if !in.IsNative() {
		allowance, err := o.ledger.Allowance(ctx, in.Address, account, router)
		if err != nil {
			return nil, fmt.Errorf("failed to read allowance: %w", err)
		}
		if allowance.Cmp(res.AmountIn) < 0 {
			o.setStage(StageApproving)
			if _, err := o.ledger.Approve(ctx, in.Address, router, chain.MaxAllowance()); err != nil {
				return nil, err
			}
			approved = true
		}
	}

	o.setStage(StageSwapping)
	receipt, err := o.ledger.Swap(ctx, chain.SwapCall{
		Kind:         chain.KindFor(in.IsNative(), out.IsNative()),
		AmountIn:     res.AmountIn,
		AmountOutMin: minOut,
		Path:         res.Path,
		Recipient:    account,
		Deadline:     o.now().Add(o.cfg.Deadline),
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		AmountIn:   amount,
		AmountOut:  chain.FormatUnits(res.AmountOut, res.OutDecimals),
		MinimumOut: chain.FormatUnits(minOut, res.OutDecimals),
		TxHash:     receipt.TxHash.Hex(),
		Approved:   approved,
	}, nil
}

func (o *Orchestrator) checkBalance(ctx context.Context, account common.Address, in types.Token, res quote.Result) error {
	asset := chain.AssetToken
	if in.IsNative() {
		asset = chain.AssetNative
	}

	have, err := o.ledger.TokenBalance(ctx, in.Address, account)
	if err != nil {
		return fmt.Errorf("failed to read %s balance: %w", in.Symbol, err)
	}
	if have.Cmp(res.AmountIn) < 0 {
		return &chain.InsufficientBalanceError{
			Asset:  asset,
			Symbol: in.Symbol,
			Have:   chain.FormatUnits(have, res.InDecimals),
			Need:   chain.FormatUnits(res.AmountIn, res.InDecimals),
		}
	}
	return nil
}
