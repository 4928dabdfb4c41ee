// Package chat is the public chat room: a short, persisted message history.
package chat

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ti-portal/pkg/store"
	"ti-portal/pkg/types"

	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxMessages is the number of messages kept; older ones are dropped
const MaxMessages = 50

const (
	operatorAuthor = "ADMIN"
	guestAuthor    = "Guest"
)

var (
	// ErrEmptyMessage is returned for blank text
	ErrEmptyMessage = errors.New("message cannot be empty")

	// ErrMessageNotFound is returned by Delete for an unknown ID
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotOperator is returned when a non-operator tries to moderate
	ErrNotOperator = errors.New("only the operator can delete messages")
)

// Sender identifies who is posting
type Sender struct {
	Operator bool
	Wallet   string
}

// Author derives the display name: the operator, the wallet's last four
// characters, or a guest
func (s Sender) Author() string {
	switch {
	case s.Operator:
		return operatorAuthor
	case len(s.Wallet) >= 4:
		return "User_" + s.Wallet[len(s.Wallet)-4:]
	default:
		return guestAuthor
	}
}

// Seed returns the messages shown in an empty room
func Seed(now time.Time) []types.PublicMessage {
	return []types.PublicMessage{
		{ID: "1", Author: "CryptoKing", Text: "To the moon! 🚀", Timestamp: now.Add(-100 * time.Second)},
		{ID: "2", Author: "DeFi_Master", Text: "Great project, team is solid.", Timestamp: now.Add(-50 * time.Second)},
	}
}

// Event is delivered to subscribers on every change
type Event struct {
	Posted  *types.PublicMessage `json:"posted,omitempty"`
	Deleted string               `json:"deleted,omitempty"`
}

// Room holds the chat history, oldest first
type Room struct {
	store *store.Store
	log   *zap.Logger
	now   func() time.Time
	feed  event.Feed

	mu       sync.RWMutex
	messages []types.PublicMessage
}

// Open loads the history from s, seeding a new room. A nil store keeps the
// room in memory.
func Open(s *store.Store, log *zap.Logger) (*Room, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Room{store: s, log: log, now: time.Now}

	found := false
	if s != nil {
		var err error
		found, err = s.Load(store.KeyChatMessages, &r.messages)
		if err != nil {
			return nil, fmt.Errorf("failed to load chat history: %w", err)
		}
	}
	if !found {
		r.messages = Seed(r.now())
	}
	r.messages = trim(r.messages)
	return r, nil
}

func trim(msgs []types.PublicMessage) []types.PublicMessage {
	if len(msgs) <= MaxMessages {
		return msgs
	}
	out := make([]types.PublicMessage, MaxMessages)
	copy(out, msgs[len(msgs)-MaxMessages:])
	return out
}

func (r *Room) save() error {
	if r.store == nil {
		return nil
	}
	return r.store.Save(store.KeyChatMessages, r.messages)
}

// List returns the history, oldest first
func (r *Room) List() []types.PublicMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.PublicMessage, len(r.messages))
	copy(out, r.messages)
	return out
}

// Subscribe delivers an Event after every post or delete. Delivery never
// blocks the poster: events are dropped while ch is full.
func (r *Room) Subscribe(ch chan<- Event) event.Subscription {
	in := make(chan Event)
	sub := r.feed.Subscribe(in)
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case ev := <-in:
				select {
				case ch <- ev:
				default:
					r.log.Debug("chat subscriber lagging, event dropped")
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	})
}

// Post appends a message, dropping the oldest beyond MaxMessages
func (r *Room) Post(sender Sender, text string) (types.PublicMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return types.PublicMessage{}, ErrEmptyMessage
	}

	msg := types.PublicMessage{
		ID:         uuid.New().String(),
		Author:     sender.Author(),
		Text:       text,
		Timestamp:  r.now().UTC(),
		IsOperator: sender.Operator,
	}

	r.mu.Lock()
	prev := r.messages
	r.messages = trim(append(append([]types.PublicMessage(nil), r.messages...), msg))
	if err := r.save(); err != nil {
		r.messages = prev
		r.mu.Unlock()
		return types.PublicMessage{}, err
	}
	r.mu.Unlock()

	r.log.Debug("chat message posted", zap.String("id", msg.ID), zap.String("author", msg.Author))
	r.feed.Send(Event{Posted: &msg})
	return msg, nil
}

// Delete removes a message; only the operator may moderate
func (r *Room) Delete(sender Sender, id string) error {
	if !sender.Operator {
		return ErrNotOperator
	}

	r.mu.Lock()
	idx := -1
	for i, m := range r.messages {
		if m.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}

	prev := r.messages
	next := make([]types.PublicMessage, 0, len(prev)-1)
	next = append(next, prev[:idx]...)
	next = append(next, prev[idx+1:]...)
	r.messages = next
	if err := r.save(); err != nil {
		r.messages = prev
		r.mu.Unlock()
		return err
	}
	r.mu.Unlock()

	r.log.Info("chat message deleted", zap.String("id", id))
	r.feed.Send(Event{Deleted: id})
	return nil
}
