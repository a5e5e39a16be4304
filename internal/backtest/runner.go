// Package backtest replays stored bars through a metric graph and persists
// every computed point.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/marketdata"
	"market-metrics-lab/internal/processor"
	"market-metrics-lab/internal/storage"
)

// ErrNoBars reports a run range holding no bar timestamps for any symbol.
var ErrNoBars = errors.New("no bars in range")

// insertBatchSize caps one MetricStore.InsertBulk call.
const insertBatchSize = 1000

// Results holds backtest output.
type Results struct {
	TicksProcessed int
	PointsWritten  int

	// Ticks lists the processed timestamps ascending. Series maps metric
	// name to per-symbol values aligned with Ticks: a symbol with no bar at
	// a tick still gets a value (usually a sentinel) because every
	// container member computes every round.
	Ticks  []int64
	Series map[string]map[domain.SymbolID][]float64
}

// Runner drives the graph over stored bars.
type Runner struct {
	proc      *processor.Processor
	mgr       *marketdata.Manager
	bars      storage.BarStore
	points    storage.MetricStore
	frequency int
	start     int64
	end       int64
	log       *zap.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Processor *processor.Processor
	Manager   *marketdata.Manager
	Bars      storage.BarStore
	Points    storage.MetricStore
	Frequency int
	Start     int64 // run range start, Unix ms, inclusive
	End       int64 // run range end, Unix ms, inclusive
	Log       *zap.Logger
}

// NewRunner creates a backtest runner. Log must be non-nil.
func NewRunner(opts RunnerOptions) *Runner {
	return &Runner{
		proc:      opts.Processor,
		mgr:       opts.Manager,
		bars:      opts.Bars,
		points:    opts.Points,
		frequency: opts.Frequency,
		start:     opts.Start,
		end:       opts.End,
		log:       opts.Log,
	}
}

// Run replays every distinct bar timestamp in the run range through the
// graph, one Step per tick, and flushes each container's results to the
// metric store in batches. Returns ErrNoBars when the range is empty.
func (r *Runner) Run(ctx context.Context) (*Results, error) {
	ticks, err := r.mergeTimestamps(ctx)
	if err != nil {
		return nil, err
	}
	if len(ticks) == 0 {
		return nil, fmt.Errorf("run [%d, %d]: %w", r.start, r.end, ErrNoBars)
	}

	results := &Results{
		TicksProcessed: len(ticks),
		Ticks:          ticks,
		Series:         make(map[string]map[domain.SymbolID][]float64),
	}
	for _, ct := range r.proc.Containers() {
		series := make(map[domain.SymbolID][]float64, len(ct.Symbols()))
		for _, sym := range ct.Symbols() {
			series[sym] = make([]float64, 0, len(ticks))
		}
		results.Series[ct.Name()] = series
	}

	batch := make([]*domain.MetricPoint, 0, insertBatchSize)
	for _, ts := range ticks {
		if err := r.proc.Step(ctx, ts, r.frequency); err != nil {
			return nil, fmt.Errorf("step at %d: %w", ts, err)
		}

		for _, ct := range r.proc.Containers() {
			name := ct.Name()
			values := ct.Results()
			for _, sym := range ct.Symbols() {
				v := values[sym]
				batch = append(batch, &domain.MetricPoint{
					Sym:         sym,
					Metric:      name,
					TimestampMs: ts,
					Value:       v,
				})
				results.Series[name][sym] = append(results.Series[name][sym], v)
			}
		}

		if len(batch) >= insertBatchSize {
			if err := r.flush(ctx, batch); err != nil {
				return nil, err
			}
			results.PointsWritten += len(batch)
			batch = batch[:0]
		}
	}

	if err := r.flush(ctx, batch); err != nil {
		return nil, err
	}
	results.PointsWritten += len(batch)

	r.log.Info("backtest complete",
		zap.Int("ticks", results.TicksProcessed),
		zap.Int("points", results.PointsWritten),
		zap.Int64("start", r.start),
		zap.Int64("end", r.end),
	)
	return results, nil
}

// mergeTimestamps merges the distinct bar timestamps of every subscribed
// symbol into one ascending tick list.
func (r *Runner) mergeTimestamps(ctx context.Context) ([]int64, error) {
	seen := make(map[int64]struct{})
	for _, sym := range r.mgr.Subscribed() {
		ts, err := r.bars.Timestamps(ctx, sym, r.start, r.end)
		if err != nil {
			return nil, fmt.Errorf("timestamps for %s: %w", sym, err)
		}
		for _, t := range ts {
			seen[t] = struct{}{}
		}
	}

	merged := make([]int64, 0, len(seen))
	for t := range seen {
		merged = append(merged, t)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })
	return merged, nil
}

func (r *Runner) flush(ctx context.Context, batch []*domain.MetricPoint) error {
	if len(batch) == 0 {
		return nil
	}
	if err := r.points.InsertBulk(ctx, batch); err != nil {
		return fmt.Errorf("insert %d points: %w", len(batch), err)
	}
	return nil
}
