package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/storage"
)

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Bar // keyed by (symbol identity, timestamp_ms)
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{
		data: make(map[string]*domain.Bar),
	}
}

// barKey generates a unique key for a bar.
func barKey(sym domain.SymbolID, timestampMs int64) string {
	return fmt.Sprintf("%s|%d", sym, timestampMs)
}

// Insert adds a new bar. Returns ErrDuplicateKey if (symbol, timestamp_ms) exists.
func (s *BarStore) Insert(_ context.Context, b *domain.Bar) error {
	if b == nil {
		return storage.ErrInvalidInput
	}
	if err := b.Sym.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := barKey(b.Sym, b.TimestampMs)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	barCopy := *b
	s.data[key] = &barCopy
	return nil
}

// InsertBulk adds multiple bars atomically. Fails entire batch on any duplicate.
func (s *BarStore) InsertBulk(_ context.Context, bars []*domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(bars))

	// First pass: check for duplicates (existing + intra-batch)
	for _, b := range bars {
		if b == nil {
			return storage.ErrInvalidInput
		}
		if err := b.Sym.Validate(); err != nil {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		key := barKey(b.Sym, b.TimestampMs)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, b := range bars {
		key := barKey(b.Sym, b.TimestampMs)
		barCopy := *b
		s.data[key] = &barCopy
	}

	return nil
}

// Read retrieves the bar for a symbol at an exact timestamp. Unknown
// timestamps return a fully sentineled bar, never an error.
func (s *BarStore) Read(_ context.Context, sym domain.SymbolID, timestampMs int64) (*domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, exists := s.data[barKey(sym, timestampMs)]; exists {
		barCopy := *b
		return &barCopy, nil
	}
	return domain.SentinelBar(sym, timestampMs), nil
}

// ReadRange retrieves bars for a symbol within [start, end] (inclusive), ordered by timestamp ASC.
func (s *BarStore) ReadRange(_ context.Context, sym domain.SymbolID, start, end int64) ([]*domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Bar
	for _, b := range s.data {
		if b.Sym == sym && b.TimestampMs >= start && b.TimestampMs <= end {
			barCopy := *b
			result = append(result, &barCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

// Timestamps retrieves distinct bar timestamps for a symbol within [start, end], ordered ASC.
func (s *BarStore) Timestamps(_ context.Context, sym domain.SymbolID, start, end int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []int64
	for _, b := range s.data {
		if b.Sym == sym && b.TimestampMs >= start && b.TimestampMs <= end {
			result = append(result, b.TimestampMs)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })

	return result, nil
}

var _ storage.BarStore = (*BarStore)(nil)
