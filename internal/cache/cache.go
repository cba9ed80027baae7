package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"sync"
	"time"

	"github.com/tracyhatemice/kinbox/internal/message"
)

// DefaultScope is the scope used for a whole-account aggregation.
const DefaultScope = "all"

// DefaultTTL is how long an entry stays fresh.
const DefaultTTL = 600 * time.Second

// Store is a key to message-list cache. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the cached messages for key if a fresh entry exists.
	Get(key string) ([]message.Message, bool, error)
	// Set overwrites the entry for key.
	Set(key string, msgs []message.Message) error
	// Len returns the number of entries currently held.
	Len() int
	// Prune removes expired entries and returns how many were removed.
	Prune() int
}

// Key fingerprints an account and scope into a lookup key.
func Key(address, scope string) string {
	sum := sha256.Sum256([]byte(address + ":" + scope))
	return hex.EncodeToString(sum[:])
}

type entry struct {
	data     []message.Message
	storedAt time.Time
}

// Memory is an in-process Store. Expired entries are evicted on the first
// read after expiry or by an explicit Prune.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Memory store.
type Option func(*Memory)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an empty Memory store. A non-positive ttl uses DefaultTTL.
func NewMemory(ttl time.Duration, opts ...Option) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Get(key string) ([]message.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if m.now().Sub(e.storedAt) >= m.ttl {
		delete(m.entries, key)
		return nil, false, nil
	}
	return slices.Clone(e.data), true, nil
}

func (m *Memory) Set(key string, msgs []message.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry{
		data:     slices.Clone(msgs),
		storedAt: m.now(),
	}
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, e := range m.entries {
		if now.Sub(e.storedAt) >= m.ttl {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Nop is a Store that never holds anything.
type Nop struct{}

func (Nop) Get(string) ([]message.Message, bool, error) { return nil, false, nil }
func (Nop) Set(string, []message.Message) error         { return nil }
func (Nop) Len() int                                    { return 0 }
func (Nop) Prune() int                                  { return 0 }
