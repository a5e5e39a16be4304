package storage

import (
	"context"

	"market-metrics-lab/internal/domain"
)

// BarStore provides access to bars storage.
type BarStore interface {
	// Insert adds a new bar. Returns ErrDuplicateKey if (symbol, timestamp_ms) exists.
	Insert(ctx context.Context, b *domain.Bar) error

	// InsertBulk adds multiple bars atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, bars []*domain.Bar) error

	// Read retrieves the bar for a symbol at an exact timestamp. It never
	// fails for unknown timestamps: a fully sentineled bar comes back, so
	// refresh paths need no missing-data branch.
	Read(ctx context.Context, sym domain.SymbolID, timestampMs int64) (*domain.Bar, error)

	// ReadRange retrieves bars for a symbol within [start, end] (inclusive), ordered by timestamp ASC.
	ReadRange(ctx context.Context, sym domain.SymbolID, start, end int64) ([]*domain.Bar, error)

	// Timestamps retrieves the distinct bar timestamps for a symbol within
	// [start, end] (inclusive), ordered ASC. Backtest drivers step over them.
	Timestamps(ctx context.Context, sym domain.SymbolID, start, end int64) ([]int64, error)
}

// MetricStore provides access to metric_points storage.
type MetricStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (symbol, metric, timestamp_ms).
	InsertBulk(ctx context.Context, points []*domain.MetricPoint) error

	// GetBySymbol retrieves all points for a symbol, ordered by (metric, timestamp_ms) ASC.
	GetBySymbol(ctx context.Context, sym domain.SymbolID) ([]*domain.MetricPoint, error)

	// GetByMetric retrieves all points for a symbol and metric name, ordered by timestamp ASC.
	GetByMetric(ctx context.Context, sym domain.SymbolID, metric string) ([]*domain.MetricPoint, error)

	// GetByTimeRange retrieves points for a symbol and metric within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, sym domain.SymbolID, metric string, start, end int64) ([]*domain.MetricPoint, error)
}

// FeedProgressStore tracks per-symbol live feed checkpoints.
type FeedProgressStore interface {
	// Get retrieves the last ingested timestamp for a symbol. Returns ErrNotFound if never recorded.
	Get(ctx context.Context, sym domain.SymbolID) (int64, error)

	// Upsert records the last ingested timestamp for a symbol, overwriting
	// any previous value.
	Upsert(ctx context.Context, sym domain.SymbolID, timestampMs int64) error
}
