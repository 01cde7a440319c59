// Package convcache provides the conversation reuse cache for providers
// that talk to conversation-scoped backends. Entries map an
// "accountID:model" key to a remote conversation id with a fixed TTL, so a
// chat turn can reuse an existing server-side conversation instead of
// creating one per call.
package convcache

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long a cached conversation id may be reused. Past the
// TTL the remote conversation is treated as abandoned.
const DefaultTTL = 30 * time.Minute

// Key builds the composite cache key. An empty account id means the
// process-default account.
func Key(accountID, model string) string {
	if accountID == "" {
		accountID = "default"
	}
	return accountID + ":" + model
}

// Store is the conversation cache backend. Implementations must be safe
// for concurrent use. An expired entry must never be returned.
type Store interface {
	// Get returns the conversation id for key, or ok=false when absent
	// or expired.
	Get(ctx context.Context, key string) (id string, ok bool, err error)

	// Set stores the conversation id for key with the store's TTL.
	Set(ctx context.Context, key, id string) error

	// Delete evicts the entry for key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	id        string
	createdAt time.Time
}

// Memory is an in-process Store with lazy TTL eviction: expired entries
// are removed on the lookup that observes them, not eagerly.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	clock   func() time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock injects a time source, used by tests to control expiry.
func WithClock(clock func() time.Time) MemoryOption {
	return func(m *Memory) { m.clock = clock }
}

// WithTTL overrides the default entry TTL.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.ttl = ttl }
}

// NewMemory creates an in-process conversation cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     DefaultTTL,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if m.clock().Sub(entry.createdAt) >= m.ttl {
		delete(m.entries, key)
		return "", false, nil
	}
	return entry.id, true, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{id: id, createdAt: m.clock()}
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// KeyedLock serializes work per cache key so concurrent chat calls for the
// same (account, model) pair queue on one in-flight send instead of racing
// on a shared remote conversation.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedLock creates an empty lock set.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (l *KeyedLock) Lock(key string) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
