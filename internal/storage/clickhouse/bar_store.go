package clickhouse

import (
	"context"
	"fmt"

	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/storage"
)

// BarStore implements storage.BarStore using ClickHouse. Sentinel values are
// persisted as NULL and restored on read. MergeTree does not enforce key
// uniqueness, so duplicates are rejected with explicit existence checks
// before each batch.
type BarStore struct {
	conn *Conn
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// Insert adds a new bar. Returns ErrDuplicateKey if (symbol, timestamp_ms) exists.
func (s *BarStore) Insert(ctx context.Context, b *domain.Bar) error {
	if b == nil {
		return storage.ErrInvalidInput
	}
	return s.InsertBulk(ctx, []*domain.Bar{b})
}

// InsertBulk adds multiple bars atomically. Fails entire batch on any duplicate.
func (s *BarStore) InsertBulk(ctx context.Context, bars []*domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	type key struct {
		sym         domain.SymbolID
		timestampMs int64
	}
	seen := make(map[key]struct{}, len(bars))
	for _, b := range bars {
		if b == nil {
			return storage.ErrInvalidInput
		}
		if err := b.Sym.Validate(); err != nil {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		k := key{b.Sym, b.TimestampMs}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, b := range bars {
		exists, err := s.exists(ctx, b.Sym, b.TimestampMs)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bars (
			product_type, symbol, frequency_seconds, timestamp_ms, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(
			string(b.Sym.ProductType), b.Sym.Symbol, uint32(b.Sym.Frequency),
			uint64(b.TimestampMs),
			nullableFloat(b.Open), nullableFloat(b.High), nullableFloat(b.Low),
			nullableFloat(b.Close), nullableFloat(b.Volume),
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

// Read retrieves the bar for a symbol at an exact timestamp. Unknown
// timestamps return a fully sentineled bar, never an error.
func (s *BarStore) Read(ctx context.Context, sym domain.SymbolID, timestampMs int64) (*domain.Bar, error) {
	query := `
		SELECT open, high, low, close, volume
		FROM bars
		WHERE product_type = ? AND symbol = ? AND frequency_seconds = ? AND timestamp_ms = ?
		LIMIT 1
	`

	rows, err := s.conn.Query(ctx, query,
		string(sym.ProductType), sym.Symbol, uint32(sym.Frequency), uint64(timestampMs))
	if err != nil {
		return nil, fmt.Errorf("read bar: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("read bar: %w", err)
		}
		return domain.SentinelBar(sym, timestampMs), nil
	}

	var open, high, low, close_, volume *float64
	if err := rows.Scan(&open, &high, &low, &close_, &volume); err != nil {
		return nil, fmt.Errorf("scan bar row: %w", err)
	}

	return &domain.Bar{
		Sym:         sym,
		TimestampMs: timestampMs,
		Open:        floatOrSentinel(open),
		High:        floatOrSentinel(high),
		Low:         floatOrSentinel(low),
		Close:       floatOrSentinel(close_),
		Volume:      floatOrSentinel(volume),
	}, nil
}

// ReadRange retrieves bars for a symbol within [start, end] (inclusive), ordered by timestamp ASC.
func (s *BarStore) ReadRange(ctx context.Context, sym domain.SymbolID, start, end int64) ([]*domain.Bar, error) {
	query := `
		SELECT timestamp_ms, open, high, low, close, volume
		FROM bars
		WHERE product_type = ? AND symbol = ? AND frequency_seconds = ?
		  AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query,
		string(sym.ProductType), sym.Symbol, uint32(sym.Frequency), uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("read bar range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows, sym)
}

// Timestamps retrieves distinct bar timestamps for a symbol within [start, end], ordered ASC.
func (s *BarStore) Timestamps(ctx context.Context, sym domain.SymbolID, start, end int64) ([]int64, error) {
	query := `
		SELECT DISTINCT timestamp_ms
		FROM bars
		WHERE product_type = ? AND symbol = ? AND frequency_seconds = ?
		  AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query,
		string(sym.ProductType), sym.Symbol, uint32(sym.Frequency), uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("read bar timestamps: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var ts uint64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan timestamp row: %w", err)
		}
		out = append(out, int64(ts))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timestamp rows: %w", err)
	}
	return out, nil
}

// exists checks if a bar with the given key exists.
func (s *BarStore) exists(ctx context.Context, sym domain.SymbolID, timestampMs int64) (bool, error) {
	query := `
		SELECT count(*) FROM bars
		WHERE product_type = ? AND symbol = ? AND frequency_seconds = ? AND timestamp_ms = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query,
		string(sym.ProductType), sym.Symbol, uint32(sym.Frequency), uint64(timestampMs)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// scanBars scans multiple rows into a slice of Bar for one symbol.
func scanBars(rows chRows, sym domain.SymbolID) ([]*domain.Bar, error) {
	var bars []*domain.Bar

	for rows.Next() {
		var (
			ts                              uint64
			open, high, low, close_, volume *float64
		)
		if err := rows.Scan(&ts, &open, &high, &low, &close_, &volume); err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}
		bars = append(bars, &domain.Bar{
			Sym:         sym,
			TimestampMs: int64(ts),
			Open:        floatOrSentinel(open),
			High:        floatOrSentinel(high),
			Low:         floatOrSentinel(low),
			Close:       floatOrSentinel(close_),
			Volume:      floatOrSentinel(volume),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}

	return bars, nil
}

// nullableFloat maps the sentinel to NULL.
func nullableFloat(v float64) *float64 {
	if !domain.HasValue(v) {
		return nil
	}
	return &v
}

// floatOrSentinel maps NULL back to the sentinel.
func floatOrSentinel(v *float64) float64 {
	if v == nil {
		return domain.Sentinel()
	}
	return *v
}
