package rate

import (
	"context"
	"strings"
	"sync"

	"github.com/vpbank/snmp_monitor/models"
)

// SnapshotStore keeps the last counter snapshot per interface. Swap must
// replace the stored value and return the previous one atomically, so that
// two observers of the same interface can never diff against the same
// baseline.
type SnapshotStore interface {
	Swap(ctx context.Context, snap models.CounterSnapshot) (prev models.CounterSnapshot, found bool, err error)
	Forget(ctx context.Context, device string) error
}

// MemoryStore is an in-process SnapshotStore. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]models.CounterSnapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]models.CounterSnapshot)}
}

// Swap implements SnapshotStore.
func (m *MemoryStore) Swap(_ context.Context, snap models.CounterSnapshot) (models.CounterSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := snap.Key()
	prev, ok := m.entries[key]
	m.entries[key] = snap
	return prev, ok, nil
}

// Forget implements SnapshotStore.
func (m *MemoryStore) Forget(_ context.Context, device string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := device + "/"
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	return nil
}

// Len returns the number of stored snapshots.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
