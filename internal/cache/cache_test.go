package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracyhatemice/kinbox/internal/message"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore() (*Memory, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	return NewMemory(DefaultTTL, WithClock(clock.Now)), clock
}

func TestKey(t *testing.T) {
	k := Key("a@x.com", DefaultScope)

	assert.Len(t, k, 64)
	assert.Equal(t, k, Key("a@x.com", "all"))
	assert.NotEqual(t, k, Key("a@x.com", "INBOX"))
	assert.NotEqual(t, k, Key("b@x.com", DefaultScope))
}

func TestMemorySetGet(t *testing.T) {
	s, _ := newTestStore()
	msgs := []message.Message{{UID: "1", Folder: "INBOX"}, {UID: "2", Folder: "Sent"}}

	require.NoError(t, s.Set("k", msgs))

	got, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, msgs, got)
}

func TestMemoryMiss(t *testing.T) {
	s, _ := newTestStore()

	got, ok, err := s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestMemoryExpiry(t *testing.T) {
	s, clock := newTestStore()
	require.NoError(t, s.Set("k", []message.Message{{UID: "1"}}))

	clock.Advance(DefaultTTL - time.Second)
	_, ok, _ := s.Get("k")
	assert.True(t, ok, "entry should still be fresh just before the ttl")

	clock.Advance(time.Second)
	_, ok, _ = s.Get("k")
	assert.False(t, ok, "entry should expire at the ttl")
	assert.Equal(t, 0, s.Len(), "expired entry is evicted on read")

	_, ok, _ = s.Get("k")
	assert.False(t, ok, "expiry is idempotent")
}

func TestMemorySetOverwritesAndRefreshes(t *testing.T) {
	s, clock := newTestStore()
	require.NoError(t, s.Set("k", []message.Message{{UID: "old"}}))

	clock.Advance(DefaultTTL - time.Second)
	require.NoError(t, s.Set("k", []message.Message{{UID: "new"}}))
	clock.Advance(2 * time.Second)

	got, ok, _ := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", got[0].UID)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryReturnsCopies(t *testing.T) {
	s, _ := newTestStore()
	msgs := []message.Message{{UID: "1"}}
	require.NoError(t, s.Set("k", msgs))

	msgs[0].UID = "mutated"
	got, _, _ := s.Get("k")
	assert.Equal(t, "1", got[0].UID)

	got[0].UID = "mutated again"
	again, _, _ := s.Get("k")
	assert.Equal(t, "1", again[0].UID)
}

func TestMemoryPrune(t *testing.T) {
	s, clock := newTestStore()
	require.NoError(t, s.Set("old", nil))
	clock.Advance(DefaultTTL)
	require.NoError(t, s.Set("fresh", nil))

	assert.Equal(t, 1, s.Prune())
	assert.Equal(t, 1, s.Len())
	_, ok, _ := s.Get("fresh")
	assert.True(t, ok)
}

func TestMemoryConcurrentAccess(t *testing.T) {
	s, _ := newTestStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Set("shared", []message.Message{{UID: "x"}})
			_, _, _ = s.Get("shared")
			_ = s.Len()
		}()
	}
	wg.Wait()

	got, ok, _ := s.Get("shared")
	require.True(t, ok)
	assert.Equal(t, "x", got[0].UID)
}

func TestNop(t *testing.T) {
	var s Store = Nop{}
	require.NoError(t, s.Set("k", []message.Message{{UID: "1"}}))

	_, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}
