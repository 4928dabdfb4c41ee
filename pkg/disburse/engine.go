// Package disburse sends airdrop amounts from the operator wallet to
// registered recipients, one transfer at a time.
package disburse

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"ti-portal/pkg/chain"
	"ti-portal/pkg/types"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultScanRate is the number of balance reads per second during a scan
const DefaultScanRate = 5

var (
	// ErrNothingPending is returned when no entry awaits distribution
	ErrNothingPending = errors.New("no pending airdrop entries")

	// ErrCancelled is returned when the operator declines a confirmation
	ErrCancelled = errors.New("cancelled by operator")

	// ErrAlreadyDistributed is returned when sending to a settled entry
	ErrAlreadyDistributed = errors.New("entry already distributed")
)

// Ledger is the part of the chain client disbursement needs
type Ledger interface {
	Decimals(ctx context.Context, token common.Address) (uint8, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Transfer(ctx context.Context, token, to common.Address, amount *big.Int) (*ethtypes.Receipt, error)
}

// Registry is the airdrop registry as seen by the operator
type Registry interface {
	MarkDistributed(id string) error
	SetBalance(id string, balance decimal.Decimal) error
}

// Operator reports the connected operator wallet
type Operator interface {
	Account() (common.Address, bool)
}

// Prompter asks the operator to confirm actions
type Prompter interface {
	// Confirm asks a yes/no question
	Confirm(ctx context.Context, prompt string) bool
	// Continue is asked after a failed transfer; false aborts the batch
	Continue(ctx context.Context, entry types.AirdropEntry, err error) bool
}

// ScanReport summarizes a balance scan
type ScanReport struct {
	Scanned int
	Failed  int
}

// Failure is a recipient whose transfer did not go through
type Failure struct {
	Entry  types.AirdropEntry
	Reason string
}

// Report summarizes a batch distribution
type Report struct {
	Total     int
	Succeeded int
	Failures  []Failure
	Aborted   bool
}

// Engine runs operator scans and transfers
type Engine struct {
	ledger   Ledger
	registry Registry
	operator Operator
	prompt   Prompter
	token    types.Token
	limiter  *rate.Limiter
	log      *zap.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithScanRate limits balance reads to perSecond during scans
func WithScanRate(perSecond float64) Option {
	return func(e *Engine) {
		if perSecond > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithLogger sets the engine's logger
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// New creates an engine distributing token
func New(ledger Ledger, registry Registry, operator Operator, prompt Prompter, token types.Token, opts ...Option) *Engine {
	e := &Engine{
		ledger:   ledger,
		registry: registry,
		operator: operator,
		prompt:   prompt,
		token:    token,
		limiter:  rate.NewLimiter(rate.Limit(DefaultScanRate), 1),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ScanBalances reads every entry's token balance in turn and caches it on the
// entry. Status is not touched. Only context cancellation stops the scan.
func (e *Engine) ScanBalances(ctx context.Context, entries []types.AirdropEntry) (ScanReport, error) {
	var report ScanReport
	if len(entries) == 0 {
		return report, nil
	}

	decimals, err := e.ledger.Decimals(ctx, e.token.Address)
	if err != nil {
		return report, fmt.Errorf("failed to read %s decimals: %w", e.token.Symbol, err)
	}

	for _, entry := range entries {
		if err := e.limiter.Wait(ctx); err != nil {
			return report, err
		}

		raw, err := e.ledger.TokenBalance(ctx, e.token.Address, common.HexToAddress(entry.Address))
		if err != nil {
			report.Failed++
			e.log.Debug("balance scan failed", zap.String("address", entry.Address), zap.Error(err))
			continue
		}

		if err := e.registry.SetBalance(entry.ID, chain.ToDecimal(raw, decimals)); err != nil {
			report.Failed++
			e.log.Warn("failed to store scanned balance", zap.String("id", entry.ID), zap.Error(err))
			continue
		}
		report.Scanned++
	}

	e.log.Info("balance scan finished", zap.Int("scanned", report.Scanned), zap.Int("failed", report.Failed))
	return report, nil
}

// SendOne transfers amount to a single entry after operator confirmation
func (e *Engine) SendOne(ctx context.Context, entry types.AirdropEntry, amount decimal.Decimal) error {
	if _, ok := e.operator.Account(); !ok {
		return chain.ErrNotConnected
	}
	if !entry.IsPending() {
		return fmt.Errorf("%w: %s", ErrAlreadyDistributed, entry.ID)
	}

	prompt := fmt.Sprintf("Send %s %s to %s?", amount, e.token.Symbol, entry.Address)
	if !e.prompt.Confirm(ctx, prompt) {
		return ErrCancelled
	}

	return e.transfer(ctx, entry, amount)
}

func (e *Engine) transfer(ctx context.Context, entry types.AirdropEntry, amount decimal.Decimal) error {
	owner, ok := e.operator.Account()
	if !ok {
		return chain.ErrNotConnected
	}

	decimals, err := e.ledger.Decimals(ctx, e.token.Address)
	if err != nil {
		return fmt.Errorf("failed to read %s decimals: %w", e.token.Symbol, err)
	}
	raw := chain.FromDecimal(amount, decimals)

	balance, err := e.ledger.TokenBalance(ctx, e.token.Address, owner)
	if err != nil {
		return fmt.Errorf("failed to read operator balance: %w", err)
	}
	if balance.Cmp(raw) < 0 {
		return &chain.InsufficientBalanceError{
			Asset:  chain.AssetToken,
			Symbol: e.token.Symbol,
			Have:   chain.FormatUnits(balance, decimals),
			Need:   chain.FormatUnits(raw, decimals),
		}
	}

	receipt, err := e.ledger.Transfer(ctx, e.token.Address, common.HexToAddress(entry.Address), raw)
	if err != nil {
		return err
	}

	if err := e.registry.MarkDistributed(entry.ID); err != nil {
		return fmt.Errorf("transfer %s confirmed but registry update failed: %w", receipt.TxHash.Hex(), err)
	}

	e.log.Info("airdrop sent",
		zap.String("id", entry.ID),
		zap.String("address", entry.Address),
		zap.String("amount", amount.String()),
		zap.String("tx", receipt.TxHash.Hex()))
	return nil
}

// DistributeAllPending sends amount to every pending entry, strictly one after
// another. A failed transfer leaves its entry pending and asks the operator
// whether to go on.
func (e *Engine) DistributeAllPending(ctx context.Context, entries []types.AirdropEntry, amount decimal.Decimal) (Report, error) {
	var pending []types.AirdropEntry
	for _, entry := range entries {
		if entry.IsPending() {
			pending = append(pending, entry)
		}
	}

	report := Report{Total: len(pending)}
	if len(pending) == 0 {
		return report, ErrNothingPending
	}
	if _, ok := e.operator.Account(); !ok {
		return report, chain.ErrNotConnected
	}

	prompt := fmt.Sprintf("Send %s %s to each of %d pending addresses?", amount, e.token.Symbol, len(pending))
	if !e.prompt.Confirm(ctx, prompt) {
		return report, ErrCancelled
	}

	for i, entry := range pending {
		if err := ctx.Err(); err != nil {
			report.Aborted = true
			return report, err
		}

		err := e.transfer(ctx, entry, amount)
		if err == nil {
			report.Succeeded++
			continue
		}

		reason := chain.RevertReason(err)
		report.Failures = append(report.Failures, Failure{Entry: entry, Reason: reason})
		e.log.Warn("airdrop transfer failed",
			zap.String("id", entry.ID),
			zap.String("address", entry.Address),
			zap.String("reason", reason))

		if i < len(pending)-1 && !e.prompt.Continue(ctx, entry, err) {
			report.Aborted = true
			break
		}
	}

	e.log.Info("distribution finished",
		zap.Int("total", report.Total),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", len(report.Failures)),
		zap.Bool("aborted", report.Aborted))
	return report, nil
}
