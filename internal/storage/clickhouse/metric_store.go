package clickhouse

import (
	"context"
	"fmt"

	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/storage"
)

// MetricStore implements storage.MetricStore using ClickHouse. Computed
// points are append-only; warm-up sentinels persist as NULL so stored series
// stay faithful to what the graph produced.
type MetricStore struct {
	conn *Conn
}

// NewMetricStore creates a new MetricStore.
func NewMetricStore(conn *Conn) *MetricStore {
	return &MetricStore{conn: conn}
}

// Compile-time interface check.
var _ storage.MetricStore = (*MetricStore)(nil)

// InsertBulk adds multiple points. Fails entire batch on duplicate (symbol, metric, timestamp_ms).
func (s *MetricStore) InsertBulk(ctx context.Context, points []*domain.MetricPoint) error {
	if len(points) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		sym         domain.SymbolID
		metric      string
		timestampMs int64
	}
	seen := make(map[key]struct{}, len(points))
	for _, p := range points {
		if p == nil || p.Metric == "" {
			return storage.ErrInvalidInput
		}
		if err := p.Sym.Validate(); err != nil {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		k := key{p.Sym, p.Metric, p.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, p := range points {
		exists, err := s.exists(ctx, p.Sym, p.Metric, p.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO metric_points (
			product_type, symbol, frequency_seconds, metric, timestamp_ms, value
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			string(p.Sym.ProductType), p.Sym.Symbol, uint32(p.Sym.Frequency),
			p.Metric, uint64(p.TimestampMs), nullableFloat(p.Value),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBySymbol retrieves all points for a symbol, ordered by (metric, timestamp_ms) ASC.
func (s *MetricStore) GetBySymbol(ctx context.Context, sym domain.SymbolID) ([]*domain.MetricPoint, error) {
	query := `
		SELECT metric, timestamp_ms, value
		FROM metric_points
		WHERE product_type = ? AND symbol = ? AND frequency_seconds = ?
		ORDER BY metric ASC, timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query,
		string(sym.ProductType), sym.Symbol, uint32(sym.Frequency))
	if err != nil {
		return nil, fmt.Errorf("query by symbol: %w", err)
	}
	defer rows.Close()

	return scanMetricPoints(rows, sym)
}

// GetByMetric retrieves all points for a symbol and metric name, ordered by timestamp ASC.
func (s *MetricStore) GetByMetric(ctx context.Context, sym domain.SymbolID, metric string) ([]*domain.MetricPoint, error) {
	query := `
		SELECT metric, timestamp_ms, value
		FROM metric_points
		WHERE product_type = ? AND symbol = ? AND frequency_seconds = ? AND metric = ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query,
		string(sym.ProductType), sym.Symbol, uint32(sym.Frequency), metric)
	if err != nil {
		return nil, fmt.Errorf("query by metric: %w", err)
	}
	defer rows.Close()

	return scanMetricPoints(rows, sym)
}

// GetByTimeRange retrieves points for a symbol and metric within [start, end] (inclusive).
func (s *MetricStore) GetByTimeRange(ctx context.Context, sym domain.SymbolID, metric string, start, end int64) ([]*domain.MetricPoint, error) {
	query := `
		SELECT metric, timestamp_ms, value
		FROM metric_points
		WHERE product_type = ? AND symbol = ? AND frequency_seconds = ? AND metric = ?
		  AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query,
		string(sym.ProductType), sym.Symbol, uint32(sym.Frequency), metric,
		uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanMetricPoints(rows, sym)
}

// exists checks if a point with the given key exists.
func (s *MetricStore) exists(ctx context.Context, sym domain.SymbolID, metric string, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM metric_points
		WHERE product_type = ? AND symbol = ? AND frequency_seconds = ?
		  AND metric = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query,
		string(sym.ProductType), sym.Symbol, uint32(sym.Frequency), metric, uint64(timestampMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanMetricPoints scans multiple rows for one symbol.
func scanMetricPoints(rows chRows, sym domain.SymbolID) ([]*domain.MetricPoint, error) {
	var points []*domain.MetricPoint

	for rows.Next() {
		var (
			metric string
			ts     uint64
			value  *float64
		)
		if err := rows.Scan(&metric, &ts, &value); err != nil {
			return nil, fmt.Errorf("scan metric point row: %w", err)
		}
		points = append(points, &domain.MetricPoint{
			Sym:         sym,
			Metric:      metric,
			TimestampMs: int64(ts),
			Value:       floatOrSentinel(value),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metric point rows: %w", err)
	}

	return points, nil
}
