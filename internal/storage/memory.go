package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps journal entries in process memory. It backs tests
// and runs with the journal disabled.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []*JournalModel
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Journal() JournalRepository { return m }

func (m *MemoryRepository) Close() error { return nil }

func (m *MemoryRepository) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryRepository) Save(ctx context.Context, entry *JournalModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if entry.ID != "" && e.ID == entry.ID {
			return nil
		}
	}
	cp := *entry
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *MemoryRepository) SaveBatch(ctx context.Context, entries []*JournalModel) error {
	for _, e := range entries {
		if err := m.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryRepository) FindBySignature(ctx context.Context, signature string) (*JournalModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.Signature == signature {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepository) FindByOperation(ctx context.Context, operationID string) ([]*JournalModel, error) {
	out := m.filter(func(e *JournalModel) bool { return e.OperationID == operationID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].BatchIndex < out[j].BatchIndex })
	return out, nil
}

// FindByOwner returns the owner's entries, newest first.
func (m *MemoryRepository) FindByOwner(ctx context.Context, owner string, limit int, offset int) ([]*JournalModel, error) {
	out := m.filter(func(e *JournalModel) bool { return e.Owner == owner })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) filter(keep func(*JournalModel) bool) []*JournalModel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*JournalModel
	for _, e := range m.entries {
		if keep(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}
