// Package wallet owns the session's single WalletState.
package wallet

import (
	"context"
	"sync"

	"ti-portal/pkg/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Connector is the part of the chain client the session drives
type Connector interface {
	Connect(ctx context.Context) (common.Address, error)
	Disconnect()
	GetBalance(ctx context.Context, owner, token common.Address) decimal.Decimal
}

// Tokens are the assets whose balances the session tracks
type Tokens struct {
	Project types.Token
	Stable  types.Token
}

// Session is the source of truth for "can the user act". It starts
// disconnected, is populated by Connect, refreshed after swaps and reset by
// Disconnect.
type Session struct {
	conn   Connector
	tokens Tokens
	log    *zap.Logger
	feed   event.Feed

	mu    sync.RWMutex
	state types.WalletState
}

// NewSession creates a disconnected session
func NewSession(conn Connector, tokens Tokens, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		conn:   conn,
		tokens: tokens,
		log:    log,
		state:  types.DisconnectedWallet(),
	}
}

// Subscribe delivers the new WalletState after every change
func (s *Session) Subscribe(ch chan<- types.WalletState) event.Subscription {
	return s.feed.Subscribe(ch)
}

// State returns a copy of the current state
func (s *Session) State() types.WalletState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Account returns the connected address
func (s *Session) Account() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.state.Connected {
		return common.Address{}, false
	}
	return common.HexToAddress(s.state.Address), true
}

// Connect authorizes the wallet and loads balances
func (s *Session) Connect(ctx context.Context) (types.WalletState, error) {
	addr, err := s.conn.Connect(ctx)
	if err != nil {
		s.log.Warn("wallet connect failed", zap.Error(err))
		return s.State(), err
	}

	state := s.load(ctx, addr)
	s.set(state)
	return state, nil
}

// Refresh reloads balances of the connected wallet; it is a no-op when disconnected
func (s *Session) Refresh(ctx context.Context) types.WalletState {
	addr, ok := s.Account()
	if !ok {
		return s.State()
	}

	state := s.load(ctx, addr)
	s.set(state)
	return state
}

// Disconnect resets the session
func (s *Session) Disconnect() {
	s.conn.Disconnect()
	s.set(types.DisconnectedWallet())
	s.log.Info("wallet disconnected")
}

func (s *Session) load(ctx context.Context, addr common.Address) types.WalletState {
	return types.WalletState{
		Connected:     true,
		Address:       addr.Hex(),
		BalanceToken:  s.conn.GetBalance(ctx, addr, s.tokens.Project.Address),
		BalanceStable: s.conn.GetBalance(ctx, addr, s.tokens.Stable.Address),
		BalanceNative: s.conn.GetBalance(ctx, addr, types.NativeAddress),
	}
}

func (s *Session) set(state types.WalletState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.feed.Send(state)
}
