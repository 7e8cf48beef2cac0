package notify

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository for tests and for
// running without a database.
type MemoryRepository struct {
	mu      sync.RWMutex
	rules   map[uint]Rule
	order   []uint
	history []HistoryEntry
	nextID  uint
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rules:  make(map[uint]Rule),
		nextID: 1,
	}
}

func (m *MemoryRepository) Start(_ context.Context) error { return nil }

func (m *MemoryRepository) Stop() error { return nil }

func (m *MemoryRepository) ListRules(_ context.Context) ([]Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Rule, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.rules[id])
	}

	return out, nil
}

func (m *MemoryRepository) GetRule(_ context.Context, id uint) (*Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rule, ok := m.rules[id]
	if !ok {
		return nil, ErrNotFound
	}

	return &rule, nil
}

func (m *MemoryRepository) CreateRule(_ context.Context, rule *Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rule.ID = m.nextID
	m.nextID++

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	m.rules[rule.ID] = *rule
	m.order = append(m.order, rule.ID)

	return nil
}

func (m *MemoryRepository) UpdateRule(_ context.Context, rule *Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.rules[rule.ID]
	if !ok {
		return ErrNotFound
	}

	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	m.rules[rule.ID] = *rule

	return nil
}

func (m *MemoryRepository) DeleteRule(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[id]; !ok {
		return ErrNotFound
	}

	delete(m.rules, id)

	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)

			break
		}
	}

	return nil
}

func (m *MemoryRepository) ListHistory(
	_ context.Context, limit int,
) ([]HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	// Newest first.
	out := make([]HistoryEntry, 0, limit)
	for i := len(m.history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.history[i])
	}

	return out, nil
}

func (m *MemoryRepository) RecordHistory(
	_ context.Context, entry *HistoryEntry,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.ID = uint(len(m.history) + 1)
	entry.CreatedAt = time.Now()
	m.history = append(m.history, *entry)

	return nil
}
