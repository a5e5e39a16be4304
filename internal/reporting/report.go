// Package reporting summarizes persisted metric points into per-series
// statistics and renders them as CSV or Markdown.
package reporting

import (
	"time"

	"market-metrics-lab/internal/domain"
)

// RunSummary represents the report for one completed run.
type RunSummary struct {
	// Metadata
	GeneratedAt    time.Time
	Frequency      int
	StartMs        int64
	EndMs          int64
	TicksProcessed int

	// Per-series statistics, ordered by (symbol, metric).
	Rows []SeriesStatsRow
}

// SeriesStatsRow holds the statistics of one metric for one symbol.
type SeriesStatsRow struct {
	Sym    domain.SymbolID
	Metric string
	SeriesStats
}
