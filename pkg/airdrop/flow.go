// Package airdrop implements the eligibility and registration flow and the
// registry of airdrop recipients.
package airdrop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ti-portal/pkg/chain"
	"ti-portal/pkg/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInvalidAddress is returned for a destination that is not a 0x-prefixed
// 20-byte hex address
var ErrInvalidAddress = errors.New("please enter a valid BSC address")

var (
	// FallbackPrice is assumed when the price feed returns nothing usable
	FallbackPrice = decimal.RequireFromString("0.0001")

	minValueUSD   = decimal.NewFromInt(1)
	minRawBalance = decimal.NewFromInt(1000)
)

// DefaultTaskDelay is the artificial social-task verification delay
const DefaultTaskDelay = time.Second

// State is the flow's position
type State string

const (
	StateIdle          State = "IDLE"
	StateChecking      State = "CHECKING"
	StateTaskPending   State = "TASK_PENDING"
	StateFailed        State = "FAILED"
	StateVerifyingTask State = "VERIFYING_TASK"
	StateSubmitting    State = "SUBMITTING"
	StateCompleted     State = "COMPLETED"
)

// PriceSource returns the live token price
type PriceSource interface {
	Fetch(ctx context.Context) (decimal.Decimal, error)
}

// Registrar records a destination address
type Registrar interface {
	Register(address string) (types.AirdropEntry, error)
}

// Snapshot is a copy of the flow's observable state
type Snapshot struct {
	State          State
	Address        string
	Balance        decimal.Decimal
	Price          decimal.Decimal
	EstimatedValue decimal.Decimal
	Entry          *types.AirdropEntry
	Duplicate      bool
}

// Eligible reports whether holdings qualify: an estimated value above $1,
// or more than 1000 tokens regardless of price
func Eligible(balance, price decimal.Decimal) (decimal.Decimal, bool) {
	value := balance.Mul(price)
	return value, value.GreaterThan(minValueUSD) || balance.GreaterThan(minRawBalance)
}

// ValidAddress reports whether s is a 0x-prefixed 42-character hex address
func ValidAddress(s string) bool {
	return len(s) == 42 && strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// Flow is the airdrop state machine
type Flow struct {
	prices    PriceSource
	registry  Registrar
	taskDelay time.Duration
	log       *zap.Logger
	feed      event.Feed

	mu   sync.Mutex
	snap Snapshot
}

// NewFlow creates a flow in IDLE
func NewFlow(prices PriceSource, registry Registrar, taskDelay time.Duration, log *zap.Logger) *Flow {
	if log == nil {
		log = zap.NewNop()
	}
	return &Flow{
		prices:    prices,
		registry:  registry,
		taskDelay: taskDelay,
		log:       log,
		snap:      Snapshot{State: StateIdle},
	}
}

// Subscribe delivers a Snapshot after every transition
func (f *Flow) Subscribe(ch chan<- Snapshot) event.Subscription {
	return f.feed.Subscribe(ch)
}

// Snapshot returns the current state
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

// transition moves from one of the allowed states, applying fn under the lock
func (f *Flow) transition(to State, from []State, fn func(*Snapshot)) error {
	f.mu.Lock()
	ok := false
	for _, s := range from {
		if f.snap.State == s {
			ok = true
			break
		}
	}
	if !ok {
		current := f.snap.State
		f.mu.Unlock()
		return fmt.Errorf("cannot move to %s from %s", to, current)
	}
	f.snap.State = to
	if fn != nil {
		fn(&f.snap)
	}
	snap := f.snap
	f.mu.Unlock()

	f.feed.Send(snap)
	return nil
}

// HandleWallet starts the eligibility check automatically once a wallet is
// connected while the flow is idle
func (f *Flow) HandleWallet(ctx context.Context, w types.WalletState) {
	if !w.Connected || f.Snapshot().State != StateIdle {
		return
	}
	if _, err := f.Check(ctx, w); err != nil {
		f.log.Debug("eligibility check skipped", zap.Error(err))
	}
}

// Check prices the wallet's holdings and moves to TASK_PENDING or FAILED
func (f *Flow) Check(ctx context.Context, w types.WalletState) (Snapshot, error) {
	if !w.Connected {
		return f.Snapshot(), chain.ErrNotConnected
	}
	if err := f.transition(StateChecking, []State{StateIdle}, nil); err != nil {
		return f.Snapshot(), err
	}

	price, err := f.prices.Fetch(ctx)
	if err != nil || !price.IsPositive() {
		f.log.Debug("price unavailable for eligibility, using fallback", zap.Error(err))
		price = FallbackPrice
	}

	value, ok := Eligible(w.BalanceToken, price)
	next := StateFailed
	if ok {
		next = StateTaskPending
	}

	_ = f.transition(next, []State{StateChecking}, func(s *Snapshot) {
		s.Balance = w.BalanceToken
		s.Price = price
		s.EstimatedValue = value
		if ok {
			s.Address = w.Address
		}
	})

	f.log.Info("airdrop eligibility checked",
		zap.String("address", w.Address),
		zap.String("balance", w.BalanceToken.String()),
		zap.String("price", price.String()),
		zap.Bool("eligible", ok))
	return f.Snapshot(), nil
}

// VerifyTask simulates the social task check and moves on to SUBMITTING
func (f *Flow) VerifyTask(ctx context.Context) error {
	if err := f.transition(StateVerifyingTask, []State{StateTaskPending}, nil); err != nil {
		return err
	}

	timer := time.NewTimer(f.taskDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		_ = f.transition(StateTaskPending, []State{StateVerifyingTask}, nil)
		return ctx.Err()
	case <-timer.C:
	}

	return f.transition(StateSubmitting, []State{StateVerifyingTask}, nil)
}

// SetAddress edits the destination address
func (f *Flow) SetAddress(address string) {
	f.mu.Lock()
	f.snap.Address = strings.TrimSpace(address)
	snap := f.snap
	f.mu.Unlock()
	f.feed.Send(snap)
}

// Submit validates the destination and registers it. An address that is
// already registered still completes the flow, flagged as a duplicate.
func (f *Flow) Submit() (types.AirdropEntry, error) {
	snap := f.Snapshot()
	if snap.State != StateSubmitting {
		return types.AirdropEntry{}, fmt.Errorf("cannot submit from %s", snap.State)
	}
	if !ValidAddress(snap.Address) {
		return types.AirdropEntry{}, fmt.Errorf("%w: %q", ErrInvalidAddress, snap.Address)
	}

	entry, err := f.registry.Register(snap.Address)
	duplicate := errors.Is(err, ErrDuplicate)
	if err != nil && !duplicate {
		return types.AirdropEntry{}, err
	}

	if err := f.transition(StateCompleted, []State{StateSubmitting}, func(s *Snapshot) {
		s.Entry = &entry
		s.Duplicate = duplicate
	}); err != nil {
		return types.AirdropEntry{}, err
	}
	if duplicate {
		return entry, ErrDuplicate
	}
	return entry, nil
}

// Reset returns to IDLE from COMPLETED or FAILED
func (f *Flow) Reset() error {
	return f.transition(StateIdle, []State{StateCompleted, StateFailed}, func(s *Snapshot) {
		*s = Snapshot{State: StateIdle}
	})
}
