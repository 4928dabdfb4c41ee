package airdrop

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"ti-portal/pkg/store"
	"ti-portal/pkg/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrDuplicate is returned when an address is already registered
	ErrDuplicate = errors.New("address already registered")

	// ErrEntryNotFound is returned for an unknown entry ID
	ErrEntryNotFound = errors.New("airdrop entry not found")
)

// csvTimeLayout is ISO-8601 in UTC with millisecond precision
const csvTimeLayout = "2006-01-02T15:04:05.000Z"

// Registry holds airdrop registrations, newest first. It is loaded once and
// written through to the store on every mutation.
type Registry struct {
	store *store.Store
	log   *zap.Logger
	now   func() time.Time

	mu      sync.RWMutex
	entries []types.AirdropEntry
}

// NewRegistry loads the registry from s; a nil store keeps it in memory
func NewRegistry(s *store.Store, log *zap.Logger) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Registry{
		store: s,
		log:   log,
		now:   time.Now,
	}

	if s != nil {
		if _, err := s.Load(store.KeyAirdropRegistry, &r.entries); err != nil {
			return nil, fmt.Errorf("failed to load airdrop registry: %w", err)
		}
	}
	return r, nil
}

func (r *Registry) save() error {
	if r.store == nil {
		return nil
	}
	return r.store.Save(store.KeyAirdropRegistry, r.entries)
}

// Register records address as Pending. A case-insensitive duplicate returns
// the existing entry together with ErrDuplicate.
func (r *Registry) Register(address string) (types.AirdropEntry, error) {
	address = strings.TrimSpace(address)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if strings.EqualFold(e.Address, address) {
			return e, ErrDuplicate
		}
	}

	entry := types.AirdropEntry{
		ID:           uuid.New().String(),
		Address:      address,
		RegisteredAt: r.now().UTC(),
		Status:       types.AirdropPending,
	}
	r.entries = append([]types.AirdropEntry{entry}, r.entries...)

	if err := r.save(); err != nil {
		r.entries = r.entries[1:]
		return types.AirdropEntry{}, err
	}

	r.log.Info("airdrop registration", zap.String("id", entry.ID), zap.String("address", address))
	return entry, nil
}

// List returns all entries, newest first
func (r *Registry) List() []types.AirdropEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.AirdropEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Pending returns the entries still awaiting a transfer
func (r *Registry) Pending() []types.AirdropEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []types.AirdropEntry
	for _, e := range r.entries {
		if e.IsPending() {
			out = append(out, e)
		}
	}
	return out
}

// Get finds an entry by ID
func (r *Registry) Get(id string) (types.AirdropEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return types.AirdropEntry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
}

func (r *Registry) update(id string, fn func(*types.AirdropEntry)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		if r.entries[i].ID == id {
			prev := r.entries[i]
			fn(&r.entries[i])
			if err := r.save(); err != nil {
				r.entries[i] = prev
				return err
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
}

// MarkDistributed records a confirmed transfer for the entry
func (r *Registry) MarkDistributed(id string) error {
	return r.update(id, func(e *types.AirdropEntry) {
		e.Status = types.AirdropDistributed
	})
}

// SetBalance caches a scanned balance for operator display
func (r *Registry) SetBalance(id string, balance decimal.Decimal) error {
	return r.update(id, func(e *types.AirdropEntry) {
		e.CurrentBalance = &balance
	})
}

// ExportCSV writes the registry as ID,Address,Timestamp,Status,Balance. An
// unchecked balance is written as 0.
func (r *Registry) ExportCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ID", "Address", "Timestamp", "Status", "Balance"}); err != nil {
		return err
	}

	for _, e := range r.List() {
		balance := "0"
		if e.CurrentBalance != nil {
			balance = e.CurrentBalance.String()
		}
		row := []string{
			e.ID,
			e.Address,
			e.RegisteredAt.UTC().Format(csvTimeLayout),
			string(e.Status),
			balance,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
