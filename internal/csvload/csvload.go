// Package csvload ingests historical bar files into a BarStore.
package csvload

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/storage"
)

// expectedHeader is the required column layout of a bar file.
var expectedHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// Loader reads CSV bar files and inserts them into a store.
type Loader struct {
	store storage.BarStore
	log   *zap.Logger
}

// NewLoader creates a Loader writing to the given store.
func NewLoader(store storage.BarStore, log *zap.Logger) *Loader {
	return &Loader{store: store, log: log}
}

// Load parses one file as bars of the given symbol and bulk-inserts them.
// Returns the number of bars inserted.
func (l *Loader) Load(ctx context.Context, path string, sym domain.SymbolID) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open bar file: %w", err)
	}
	defer f.Close()

	bars, err := ParseReader(f, sym)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := l.store.InsertBulk(ctx, bars); err != nil {
		return 0, fmt.Errorf("insert bars from %s: %w", path, err)
	}

	l.log.Info("loaded bar file",
		zap.String("file", path),
		zap.String("symbol", sym.String()),
		zap.Int("bars", len(bars)),
	)

	return len(bars), nil
}

// ParseReader parses CSV bar records for one symbol identity. The header
// must be "timestamp,open,high,low,close,volume". Timestamps are Unix
// milliseconds or RFC3339; empty numeric cells become sentinels.
func ParseReader(r io.Reader, sym domain.SymbolID) ([]*domain.Bar, error) {
	if err := sym.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	var bars []*domain.Bar
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := parseTimestamp(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		values := make([]float64, 5)
		for i, name := range expectedHeader[1:] {
			v, err := parseCell(record[i+1])
			if err != nil {
				return nil, fmt.Errorf("line %d: column %s: %w", line, name, err)
			}
			values[i] = v
		}

		bars = append(bars, &domain.Bar{
			Sym:         sym,
			TimestampMs: ts,
			Open:        values[0],
			High:        values[1],
			Low:         values[2],
			Close:       values[3],
			Volume:      values[4],
		})
	}

	return bars, nil
}

func checkHeader(header []string) error {
	if len(header) != len(expectedHeader) {
		return fmt.Errorf("expected %d header columns, got %d", len(expectedHeader), len(header))
	}
	for i, want := range expectedHeader {
		got := strings.ToLower(strings.TrimSpace(header[i]))
		if got != want {
			return fmt.Errorf("header column %d: expected %q, got %q", i, want, header[i])
		}
	}
	return nil
}

// parseTimestamp accepts Unix milliseconds or RFC3339.
func parseTimestamp(cell string) (int64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, fmt.Errorf("empty timestamp")
	}

	if ms, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return ms, nil
	}

	t, err := time.Parse(time.RFC3339, cell)
	if err != nil {
		return 0, fmt.Errorf("timestamp %q is neither unix-ms nor RFC3339", cell)
	}
	return t.UnixMilli(), nil
}

// parseCell parses one numeric cell; empty cells carry no value.
func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return domain.Sentinel(), nil
	}

	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", cell)
	}
	return v, nil
}
