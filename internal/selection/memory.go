package selection

import (
	"context"
	"sync"

	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/model"
)

// MemoryStore keeps selection records in a map guarded by an RWMutex. It backs
// tests and deployments without a configured database.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*model.SelectionRecord
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*model.SelectionRecord),
	}
}

// Create stores a copy of the record.
func (m *MemoryStore) Create(_ context.Context, rec *model.SelectionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	cp.SelectedPages = append([]int(nil), rec.SelectedPages...)
	m.records[rec.ID] = &cp
	return nil
}

// Get returns a copy of the record so callers cannot mutate internal state.
func (m *MemoryStore) Get(_ context.Context, id string) (*model.SelectionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	cp.SelectedPages = append([]int(nil), rec.SelectedPages...)
	return &cp, nil
}

// IncrementAccess bumps the access counter by exactly one.
func (m *MemoryStore) IncrementAccess(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.AccessCount++
	return nil
}
