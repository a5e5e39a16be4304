package reporting

import (
	"context"
	"fmt"
	"time"

	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/storage"
)

// RunInfo describes the run being summarized.
type RunInfo struct {
	Frequency      int
	StartMs        int64
	EndMs          int64
	TicksProcessed int
	Symbols        []domain.SymbolID
	Metrics        []string // metric names in definition order
}

// Generator produces run summaries from stored metric points.
type Generator struct {
	points storage.MetricStore
	now    func() time.Time // injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(points storage.MetricStore) *Generator {
	return &Generator{
		points: points,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate computes per-series statistics for every (symbol, metric) pair
// of the run.
func (g *Generator) Generate(ctx context.Context, run RunInfo) (*RunSummary, error) {
	rows := make([]SeriesStatsRow, 0, len(run.Symbols)*len(run.Metrics))
	for _, sym := range run.Symbols {
		for _, metric := range run.Metrics {
			points, err := g.points.GetByMetric(ctx, sym, metric)
			if err != nil {
				return nil, fmt.Errorf("read %s/%s: %w", sym, metric, err)
			}
			values := make([]float64, len(points))
			for i, p := range points {
				values[i] = p.Value
			}
			rows = append(rows, SeriesStatsRow{
				Sym:         sym,
				Metric:      metric,
				SeriesStats: ComputeStats(values),
			})
		}
	}

	return &RunSummary{
		GeneratedAt:    g.now(),
		Frequency:      run.Frequency,
		StartMs:        run.StartMs,
		EndMs:          run.EndMs,
		TicksProcessed: run.TicksProcessed,
		Rows:           rows,
	}, nil
}

// Points gathers every stored point of the run in (symbol, metric,
// timestamp) order, for raw CSV export.
func (g *Generator) Points(ctx context.Context, run RunInfo) ([]*domain.MetricPoint, error) {
	var out []*domain.MetricPoint
	for _, sym := range run.Symbols {
		for _, metric := range run.Metrics {
			points, err := g.points.GetByMetric(ctx, sym, metric)
			if err != nil {
				return nil, fmt.Errorf("read %s/%s: %w", sym, metric, err)
			}
			out = append(out, points...)
		}
	}
	return out, nil
}
