package storage

import (
	"context"
	"io"
	"sort"
	"sync"

	"tululu-scraper/pkg/models"
)

// MemoryStore is an OutcomeStore kept in process memory, used when the
// on-disk state database is disabled
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.OutcomeEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]models.OutcomeEntry)}
}

func (m *MemoryStore) RecordOutcome(bookURL string, entry *models.OutcomeEntry) error {
	if entry == nil {
		return nil
	}
	e := *entry
	if e.BookURL == "" {
		e.BookURL = bookURL
	}
	m.mu.Lock()
	m.entries[bookURL] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) CheckOutcome(bookURL string) (models.BookStatus, *models.OutcomeEntry, error) {
	m.mu.RLock()
	e, ok := m.entries[bookURL]
	m.mu.RUnlock()
	if !ok {
		return models.BookStatusUnset, nil, nil
	}
	return e.Status, &e, nil
}

func (m *MemoryStore) ListOutcomes(ctx context.Context, fn func(entry models.OutcomeEntry) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	snapshot := make([]models.OutcomeEntry, 0, len(keys))
	for _, k := range keys {
		snapshot = append(snapshot, m.entries[k])
	}
	m.mu.RUnlock()

	for _, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) CountByStatus(ctx context.Context) (map[models.BookStatus]int, error) {
	counts := make(map[models.BookStatus]int)
	err := m.ListOutcomes(ctx, func(entry models.OutcomeEntry) error {
		counts[entry.Status]++
		return nil
	})
	return counts, err
}

func (m *MemoryStore) WriteReport(ctx context.Context, w io.Writer) error {
	return writeReport(ctx, m, w)
}

func (m *MemoryStore) Close() error { return nil }

var (
	_ OutcomeStore = (*BadgerStore)(nil)
	_ OutcomeStore = (*MemoryStore)(nil)
)
