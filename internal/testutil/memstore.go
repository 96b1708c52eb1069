package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roach88/reefsync/internal/queue"
)

// ErrOpenFailed is the cause wrapped when FailOpen is set.
var ErrOpenFailed = errors.New("storage medium unavailable")

// MemoryStore is an in-memory queue.Store and queue.Leaser for tests.
//
// ListAll deliberately returns entries in map iteration order so callers
// that forget to sort are caught.
type MemoryStore struct {
	Stamper queue.Stamper

	mu         sync.Mutex
	entries    map[string]queue.QueuedRequest
	failOpen   bool
	failRemove map[string]bool
	leaseOwner string
	leaseUntil time.Time
	removed    []string
}

var (
	_ queue.Store  = (*MemoryStore)(nil)
	_ queue.Leaser = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store stamped by ids and clock.
// Either may be nil to use the queue defaults.
func NewMemoryStore(ids queue.IDGenerator, clock queue.Clock) *MemoryStore {
	return &MemoryStore{
		Stamper:    queue.Stamper{IDs: ids, Clock: clock},
		entries:    make(map[string]queue.QueuedRequest),
		failRemove: make(map[string]bool),
	}
}

// SetFailOpen makes every operation fail with StorageUnavailable.
func (m *MemoryStore) SetFailOpen(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOpen = fail
}

// SetFailRemove makes Remove(id) fail with StorageUnavailable.
func (m *MemoryStore) SetFailRemove(id string, fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failRemove[id] = fail
}

// Put inserts a fully stamped entry, bypassing the stamper.
func (m *MemoryStore) Put(entry queue.QueuedRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = entry.Clone()
}

// Removed returns the ids removed so far, in call order.
func (m *MemoryStore) Removed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.removed...)
}

func (m *MemoryStore) open(op string) error {
	if m.failOpen {
		return queue.NewStorageUnavailable(op, ErrOpenFailed)
	}
	return nil
}

// Enqueue implements queue.Store.
func (m *MemoryStore) Enqueue(_ context.Context, req queue.Request) (queue.QueuedRequest, error) {
	entry, err := m.Stamper.Stamp(req)
	if err != nil {
		return queue.QueuedRequest{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.open("enqueue"); err != nil {
		return queue.QueuedRequest{}, err
	}
	if _, exists := m.entries[entry.ID]; exists {
		return queue.QueuedRequest{}, queue.NewStorageUnavailable("enqueue", errors.New("duplicate id"))
	}
	m.entries[entry.ID] = entry.Clone()
	return entry, nil
}

// ListAll implements queue.Store. The result is unordered.
func (m *MemoryStore) ListAll(_ context.Context) ([]queue.QueuedRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.open("list"); err != nil {
		return nil, err
	}
	out := make([]queue.QueuedRequest, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Clone())
	}
	return out, nil
}

// Remove implements queue.Store.
func (m *MemoryStore) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.open("remove"); err != nil {
		return err
	}
	if m.failRemove[id] {
		return queue.NewStorageUnavailable("remove", errors.New("injected failure"))
	}
	if _, ok := m.entries[id]; ok {
		m.removed = append(m.removed, id)
	}
	delete(m.entries, id)
	return nil
}

// Count implements queue.Store.
func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.open("count"); err != nil {
		return 0, err
	}
	return len(m.entries), nil
}

// AcquireLease implements queue.Leaser using the wall clock.
func (m *MemoryStore) AcquireLease(_ context.Context, holder string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.open("acquire lease"); err != nil {
		return false, err
	}
	now := time.Now()
	if m.leaseOwner != "" && m.leaseOwner != holder && now.Before(m.leaseUntil) {
		return false, nil
	}
	m.leaseOwner = holder
	m.leaseUntil = now.Add(ttl)
	return true, nil
}

// ReleaseLease implements queue.Leaser.
func (m *MemoryStore) ReleaseLease(_ context.Context, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.leaseOwner == holder {
		m.leaseOwner = ""
		m.leaseUntil = time.Time{}
	}
	return nil
}

// HoldLease marks the lease as owned by holder, simulating another process.
func (m *MemoryStore) HoldLease(holder string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaseOwner = holder
	m.leaseUntil = time.Now().Add(ttl)
}
