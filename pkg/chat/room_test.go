package chat

import (
	"fmt"
	"testing"
	"time"

	"ti-portal/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthor(t *testing.T) {
	assert.Equal(t, "ADMIN", Sender{Operator: true, Wallet: "0xabcd"}.Author())
	assert.Equal(t, "User_27f3", Sender{Wallet: "0x8b5be89c0f4eabbe51fd13cf21824b65b79527f3"}.Author())
	assert.Equal(t, "User_0x12", Sender{Wallet: "0x12"}.Author())
	assert.Equal(t, "Guest", Sender{Wallet: "0x1"}.Author())
	assert.Equal(t, "Guest", Sender{}.Author())
}

func TestOpenSeedsEmptyRoom(t *testing.T) {
	r, err := Open(nil, nil)
	require.NoError(t, err)
	msgs := r.List()
	require.Len(t, msgs, 2)
	assert.Equal(t, "CryptoKing", msgs[0].Author)
}

func TestPostRejectsBlank(t *testing.T) {
	r, err := Open(nil, nil)
	require.NoError(t, err)
	_, err = r.Post(Sender{}, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Len(t, r.List(), 2)
}

func TestHistoryCappedAtFifty(t *testing.T) {
	r, err := Open(nil, nil)
	require.NoError(t, err)

	// two seeds + 48 posts = 50
	for i := 0; i < 48; i++ {
		_, err := r.Post(Sender{}, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}
	require.Len(t, r.List(), MaxMessages)
	oldest := r.List()[0]

	last, err := r.Post(Sender{Wallet: "0x1111111111111111111111111111111111112222"}, "fifty-first")
	require.NoError(t, err)

	msgs := r.List()
	require.Len(t, msgs, MaxMessages)
	assert.NotEqual(t, oldest.ID, msgs[0].ID)
	assert.Equal(t, "DeFi_Master", msgs[0].Author)
	assert.Equal(t, "msg 0", msgs[1].Text)
	assert.Equal(t, last.ID, msgs[MaxMessages-1].ID)
	assert.Equal(t, "User_2222", last.Author)
}

func TestHistoryPersisted(t *testing.T) {
	s, err := store.New(t.TempDir())
	require.NoError(t, err)

	r, err := Open(s, nil)
	require.NoError(t, err)
	r.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	msg, err := r.Post(Sender{Operator: true}, "Welcome")
	require.NoError(t, err)
	assert.True(t, msg.IsOperator)

	reopened, err := Open(s, nil)
	require.NoError(t, err)
	msgs := reopened.List()
	require.Len(t, msgs, 3)
	assert.Equal(t, msg.ID, msgs[2].ID)
	assert.True(t, msgs[2].Timestamp.Equal(msg.Timestamp))
}

func TestDelete(t *testing.T) {
	r, err := Open(nil, nil)
	require.NoError(t, err)

	ch := make(chan Event, 2)
	sub := r.Subscribe(ch)
	defer sub.Unsubscribe()

	assert.ErrorIs(t, r.Delete(Sender{}, "1"), ErrNotOperator)
	require.NoError(t, r.Delete(Sender{Operator: true}, "1"))
	assert.Equal(t, "1", (<-ch).Deleted)

	msgs := r.List()
	require.Len(t, msgs, 1)
	assert.Equal(t, "2", msgs[0].ID)

	assert.ErrorIs(t, r.Delete(Sender{Operator: true}, "1"), ErrMessageNotFound)
}

func TestStalledSubscriberDoesNotBlockPost(t *testing.T) {
	r, err := Open(nil, nil)
	require.NoError(t, err)

	stalled := make(chan Event)
	stalledSub := r.Subscribe(stalled)
	defer stalledSub.Unsubscribe()

	live := make(chan Event, 4)
	liveSub := r.Subscribe(live)
	defer liveSub.Unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			_, err := r.Post(Sender{}, fmt.Sprintf("msg %d", i))
			assert.NoError(t, err)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Post blocked on a subscriber that never reads")
	}

	for i := 0; i < 3; i++ {
		select {
		case ev := <-live:
			require.NotNil(t, ev.Posted)
			assert.Equal(t, fmt.Sprintf("msg %d", i), ev.Posted.Text)
		case <-time.After(2 * time.Second):
			t.Fatal("live subscriber missed an event")
		}
	}
}
