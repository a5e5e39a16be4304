package memory

import (
	"context"
	"sync"

	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/storage"
)

// FeedProgressStore is an in-memory implementation of storage.FeedProgressStore.
type FeedProgressStore struct {
	mu       sync.RWMutex
	progress map[domain.SymbolID]int64
}

// NewFeedProgressStore creates a new in-memory feed progress store.
func NewFeedProgressStore() *FeedProgressStore {
	return &FeedProgressStore{
		progress: make(map[domain.SymbolID]int64),
	}
}

// Get retrieves the last ingested timestamp for a symbol.
func (s *FeedProgressStore) Get(_ context.Context, sym domain.SymbolID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ts, exists := s.progress[sym]
	if !exists {
		return 0, storage.ErrNotFound
	}
	return ts, nil
}

// Upsert records the last ingested timestamp for a symbol.
func (s *FeedProgressStore) Upsert(_ context.Context, sym domain.SymbolID, timestampMs int64) error {
	if err := sym.Validate(); err != nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress[sym] = timestampMs
	return nil
}

var _ storage.FeedProgressStore = (*FeedProgressStore)(nil)
