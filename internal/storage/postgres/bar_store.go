package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/storage"
)

// BarStore implements storage.BarStore using PostgreSQL. Sentinel values
// are persisted as NULL and restored on read, so the wire format stays
// queryable with plain SQL.
type BarStore struct {
	pool *Pool
}

// NewBarStore creates a new BarStore.
func NewBarStore(pool *Pool) *BarStore {
	return &BarStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

const insertBarQuery = `
	INSERT INTO bars (
		product_type, symbol, frequency_seconds, timestamp_ms, open, high, low, close, volume
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

// Insert adds a new bar. Returns ErrDuplicateKey if (symbol, timestamp_ms) exists.
func (s *BarStore) Insert(ctx context.Context, b *domain.Bar) error {
	if b == nil {
		return storage.ErrInvalidInput
	}
	if err := b.Sym.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	_, err := s.pool.Exec(ctx, insertBarQuery,
		b.Sym.ProductType,
		b.Sym.Symbol,
		b.Sym.Frequency,
		b.TimestampMs,
		nullableFloat(b.Open),
		nullableFloat(b.High),
		nullableFloat(b.Low),
		nullableFloat(b.Close),
		nullableFloat(b.Volume),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert bar: %w", err)
	}
	return nil
}

// InsertBulk adds multiple bars atomically. Fails entire batch on any duplicate.
func (s *BarStore) InsertBulk(ctx context.Context, bars []*domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, b := range bars {
		if b == nil {
			return storage.ErrInvalidInput
		}
		if err := b.Sym.Validate(); err != nil {
			return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
		}
		_, err := tx.Exec(ctx, insertBarQuery,
			b.Sym.ProductType,
			b.Sym.Symbol,
			b.Sym.Frequency,
			b.TimestampMs,
			nullableFloat(b.Open),
			nullableFloat(b.High),
			nullableFloat(b.Low),
			nullableFloat(b.Close),
			nullableFloat(b.Volume),
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert bar in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// Read retrieves the bar for a symbol at an exact timestamp. Unknown
// timestamps return a fully sentineled bar, never an error.
func (s *BarStore) Read(ctx context.Context, sym domain.SymbolID, timestampMs int64) (*domain.Bar, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT open, high, low, close, volume
		FROM bars
		WHERE product_type = $1 AND symbol = $2 AND frequency_seconds = $3 AND timestamp_ms = $4
	`, sym.ProductType, sym.Symbol, sym.Frequency, timestampMs)

	var open, high, low, close_, volume *float64
	err := row.Scan(&open, &high, &low, &close_, &volume)
	if err != nil {
		if isNotFoundError(err) {
			return domain.SentinelBar(sym, timestampMs), nil
		}
		return nil, fmt.Errorf("read bar: %w", err)
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
	rows, err := s.pool.Query(ctx, `
		SELECT timestamp_ms, open, high, low, close, volume
		FROM bars
		WHERE product_type = $1 AND symbol = $2 AND frequency_seconds = $3
		  AND timestamp_ms >= $4 AND timestamp_ms <= $5
		ORDER BY timestamp_ms ASC
	`, sym.ProductType, sym.Symbol, sym.Frequency, start, end)
	if err != nil {
		return nil, fmt.Errorf("read bar range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows, sym)
}

// Timestamps retrieves distinct bar timestamps for a symbol within [start, end], ordered ASC.
func (s *BarStore) Timestamps(ctx context.Context, sym domain.SymbolID, start, end int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT timestamp_ms
		FROM bars
		WHERE product_type = $1 AND symbol = $2 AND frequency_seconds = $3
		  AND timestamp_ms >= $4 AND timestamp_ms <= $5
		ORDER BY timestamp_ms ASC
	`, sym.ProductType, sym.Symbol, sym.Frequency, start, end)
	if err != nil {
		return nil, fmt.Errorf("read bar timestamps: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("scan timestamp row: %w", err)
		}
		out = append(out, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timestamp rows: %w", err)
	}
	return out, nil
}

// scanBars scans multiple rows into a slice of Bar for one symbol.
func scanBars(rows pgx.Rows, sym domain.SymbolID) ([]*domain.Bar, error) {
	var bars []*domain.Bar

	for rows.Next() {
		var (
			ts                              int64
			open, high, low, close_, volume *float64
		)
		if err := rows.Scan(&ts, &open, &high, &low, &close_, &volume); err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}
		bars = append(bars, &domain.Bar{
			Sym:         sym,
			TimestampMs: ts,
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

// nullableFloat maps the sentinel to SQL NULL.
func nullableFloat(v float64) any {
	if !domain.HasValue(v) {
		return nil
	}
	return v
}

// floatOrSentinel maps SQL NULL back to the sentinel.
func floatOrSentinel(v *float64) float64 {
	if v == nil {
		return domain.Sentinel()
	}
	return *v
}
