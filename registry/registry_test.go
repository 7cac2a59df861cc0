package registry

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCloser struct {
	closed atomic.Bool
}

func (f *fakeCloser) Close() { f.closed.Store(true) }

func newTestConversation(contextID string) *Conversation {
	return NewConversation(
		Ask{ID: "ask1", PubKey: "asker"},
		nostr.Event{ID: contextID, Kind: 20176},
		BidDecision{Content: "hi", Sats: 10},
		"asker",
		"paymenthash",
	)
}

// P1: at every point in time, every live context id maps to exactly one
// Conversation, reachable by exactly its current context id.
func TestRegistry_Uniqueness(t *testing.T) {
	r := New(nil)
	conv := newTestConversation("ctx1")
	closer := &fakeCloser{}

	r.Insert("ctx1", conv, closer, time.Hour, nil)
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get("ctx1")
	assert.True(t, ok)
	assert.Same(t, conv, got)

	_, ok = r.Get("ctx-missing")
	assert.False(t, ok)
}

// P2: at most one removal succeeds for a given turn, regardless of how many
// concurrent callers race to remove the same context id.
func TestRegistry_SingleShotPerTurn(t *testing.T) {
	r := New(nil)
	conv := newTestConversation("ctx1")
	closer := &fakeCloser{}
	r.Insert("ctx1", conv, closer, time.Hour, nil)

	const n = 50
	var successes int32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, ok := r.RemoveIfPresent("ctx1"); ok {
				atomic.AddInt32(&successes, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes)
	assert.Equal(t, 0, r.Len())
	assert.True(t, closer.closed.Load())
}

// P7: if no valid question arrives within the timeout, the conversation is
// removed and its subscription is closed.
func TestRegistry_Timeout(t *testing.T) {
	r := New(nil)
	conv := newTestConversation("ctx1")
	closer := &fakeCloser{}

	done := make(chan struct{})
	r.Insert("ctx1", conv, closer, 10*time.Millisecond, func(c *Conversation) {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout callback never fired")
	}

	assert.Equal(t, 0, r.Len())
	assert.True(t, closer.closed.Load())
}

// A timer that has already been beaten to the punch by an explicit
// RemoveIfPresent must not fire onTimeout afterwards.
func TestRegistry_RemoveBeforeTimeout_SuppressesTimeoutCallback(t *testing.T) {
	r := New(nil)
	conv := newTestConversation("ctx1")
	closer := &fakeCloser{}

	var timedOut atomic.Bool
	r.Insert("ctx1", conv, closer, 30*time.Millisecond, func(c *Conversation) {
		timedOut.Store(true)
	})

	_, ok := r.RemoveIfPresent("ctx1")
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)
	assert.False(t, timedOut.Load())
}

func TestRegistry_Clear(t *testing.T) {
	r := New(nil)
	c1, c2 := &fakeCloser{}, &fakeCloser{}
	r.Insert("ctx1", newTestConversation("ctx1"), c1, time.Hour, nil)
	r.Insert("ctx2", newTestConversation("ctx2"), c2, time.Hour, nil)

	r.Clear()

	assert.Equal(t, 0, r.Len())
	assert.True(t, c1.closed.Load())
	assert.True(t, c2.closed.Load())
}

// P6: rekeying moves the conversation to a new context id; the old key is
// absent afterward.
func TestRegistry_Rekey(t *testing.T) {
	r := New(nil)
	conv := newTestConversation("ctx1")
	r.Insert("ctx1", conv, &fakeCloser{}, time.Hour, nil)

	removed, ok := r.RemoveIfPresent("ctx1")
	require.True(t, ok)
	assert.Same(t, conv, removed)

	conv.History = append(conv.History, Turn{})
	r.Insert("ctx2", conv, &fakeCloser{}, time.Hour, nil)

	_, ok = r.Get("ctx1")
	assert.False(t, ok)

	got, ok := r.Get("ctx2")
	assert.True(t, ok)
	assert.Len(t, got.History, 1)
}
