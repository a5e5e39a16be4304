package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/storage"
)

// MetricStore is an in-memory implementation of storage.MetricStore.
type MetricStore struct {
	mu   sync.RWMutex
	data map[string]*domain.MetricPoint // keyed by (symbol identity, metric, timestamp_ms)
}

// NewMetricStore creates a new in-memory metric point store.
func NewMetricStore() *MetricStore {
	return &MetricStore{
		data: make(map[string]*domain.MetricPoint),
	}
}

// metricKey generates a unique key for a metric point.
func metricKey(sym domain.SymbolID, metric string, timestampMs int64) string {
	return fmt.Sprintf("%s|%s|%d", sym, metric, timestampMs)
}

// InsertBulk adds multiple points. Fails entire batch on duplicate (symbol, metric, timestamp_ms).
func (s *MetricStore) InsertBulk(_ context.Context, points []*domain.MetricPoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(points))

	for _, p := range points {
		if p == nil || p.Metric == "" {
			return storage.ErrInvalidInput
		}
		if err := p.Sym.Validate(); err != nil {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		key := metricKey(p.Sym, p.Metric, p.TimestampMs)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, p := range points {
		key := metricKey(p.Sym, p.Metric, p.TimestampMs)
		pointCopy := *p
		s.data[key] = &pointCopy
	}

	return nil
}

// GetBySymbol retrieves all points for a symbol, ordered by (metric, timestamp_ms) ASC.
func (s *MetricStore) GetBySymbol(_ context.Context, sym domain.SymbolID) ([]*domain.MetricPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MetricPoint
	for _, p := range s.data {
		if p.Sym == sym {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Metric != result[j].Metric {
			return result[i].Metric < result[j].Metric
		}
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

// GetByMetric retrieves all points for a symbol and metric name, ordered by timestamp ASC.
func (s *MetricStore) GetByMetric(_ context.Context, sym domain.SymbolID, metric string) ([]*domain.MetricPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MetricPoint
	for _, p := range s.data {
		if p.Sym == sym && p.Metric == metric {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

// GetByTimeRange retrieves points for a symbol and metric within [start, end] (inclusive).
func (s *MetricStore) GetByTimeRange(_ context.Context, sym domain.SymbolID, metric string, start, end int64) ([]*domain.MetricPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.MetricPoint
	for _, p := range s.data {
		if p.Sym == sym && p.Metric == metric && p.TimestampMs >= start && p.TimestampMs <= end {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].TimestampMs < result[j].TimestampMs
	})

	return result, nil
}

var _ storage.MetricStore = (*MetricStore)(nil)
