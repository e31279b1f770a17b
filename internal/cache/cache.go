package cache

import (
	"context"
	"sync"
	"time"
)

const (
	// keyIdemCheckout maps a client idempotency key to the committed sale ID.
	keyIdemCheckout = "idem:checkout:%s"
	// keyLock guards a singleton job such as the stale reviser.
	keyLock = "lock:%s"

	// pendingMarker holds a claimed key until the sale ID replaces it.
	pendingMarker = "~pending"
)

// IdempotencyStore remembers which sale a checkout key produced. Claim
// reserves a key before the sale commits so two requests carrying the same
// key cannot both commit; Lookup reports a claimed but unfinished key as a
// miss. Forget drops a claim that never produced a sale.
type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Remember(ctx context.Context, key string, saleID string, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

// Locker hands out short-lived named locks. Acquire reports false when
// another holder owns the lock.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

type memoryEntry struct {
	saleID    string
	expiresAt time.Time
}

// MemoryIdempotencyStore keeps keys in process. Used when no redis is configured.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{now: time.Now, entries: make(map[string]memoryEntry)}
}

// live returns the unexpired entry for key. Callers hold mu.
func (m *MemoryIdempotencyStore) live(key string) (memoryEntry, bool) {
	entry, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}

func (m *MemoryIdempotencyStore) Lookup(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(key)
	if !ok || entry.saleID == pendingMarker {
		return "", false, nil
	}
	return entry.saleID, true, nil
}

func (m *MemoryIdempotencyStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(key); ok {
		return false, nil
	}
	m.entries[key] = memoryEntry{saleID: pendingMarker, expiresAt: m.now().Add(ttl)}
	return true, nil
}

func (m *MemoryIdempotencyStore) Remember(_ context.Context, key string, saleID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = memoryEntry{saleID: saleID, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryIdempotencyStore) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[key]; ok && entry.saleID == pendingMarker {
		delete(m.entries, key)
	}
	return nil
}

// LocalLocker always grants the lock. Fine for a single instance.
type LocalLocker struct{}

func (LocalLocker) Acquire(_ context.Context, _ string, _ time.Duration) (func(), bool, error) {
	return func() {}, true, nil
}
