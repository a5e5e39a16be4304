package postgres

import (
	"context"
	"fmt"

	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/storage"
)

// FeedProgressStore is a PostgreSQL implementation of storage.FeedProgressStore.
// One row per symbol identity holding the last ingested bar timestamp, so a
// restarted feed resumes where it stopped instead of reprocessing.
type FeedProgressStore struct {
	pool *Pool
}

// NewFeedProgressStore creates a new PostgreSQL feed progress store.
func NewFeedProgressStore(pool *Pool) *FeedProgressStore {
	return &FeedProgressStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FeedProgressStore = (*FeedProgressStore)(nil)

// Get retrieves the last ingested timestamp for a symbol.
func (s *FeedProgressStore) Get(ctx context.Context, sym domain.SymbolID) (int64, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT last_timestamp_ms
		FROM feed_progress
		WHERE product_type = $1 AND symbol = $2 AND frequency_seconds = $3
	`, sym.ProductType, sym.Symbol, sym.Frequency)

	var ts int64
	if err := row.Scan(&ts); err != nil {
		if isNotFoundError(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("get feed progress: %w", err)
	}
	return ts, nil
}

// Upsert records the last ingested timestamp for a symbol.
func (s *FeedProgressStore) Upsert(ctx context.Context, sym domain.SymbolID, timestampMs int64) error {
	if err := sym.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO feed_progress (product_type, symbol, frequency_seconds, last_timestamp_ms, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (product_type, symbol, frequency_seconds) DO UPDATE
		SET last_timestamp_ms = EXCLUDED.last_timestamp_ms,
		    updated_at = NOW()
	`, sym.ProductType, sym.Symbol, sym.Frequency, timestampMs)
	if err != nil {
		return fmt.Errorf("upsert feed progress: %w", err)
	}
	return nil
}
