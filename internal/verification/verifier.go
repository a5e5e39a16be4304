// Package verification re-executes a completed run on fresh graph state and
// compares the persisted points against the recomputation.
package verification

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"market-metrics-lab/internal/backtest"
	"market-metrics-lab/internal/clock"
	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/marketdata"
	"market-metrics-lab/internal/processor"
	"market-metrics-lab/internal/storage"
	"market-metrics-lab/internal/storage/memory"
)

// FloatTolerance bounds the allowed drift between a stored value and its
// recomputation. Sentinels compare equal to sentinels.
const FloatTolerance = 1e-9

// Divergence represents one mismatching point.
type Divergence struct {
	Sym         domain.SymbolID
	Metric      string
	TimestampMs int64
	Stored      float64 // sentinel when the stored side has no point
	Recomputed  float64 // sentinel when the recomputation has no point
	Missing     string  // "stored" or "recomputed" when one side has no point
}

// Report contains the outcome of verifying one run.
type Report struct {
	PointsChecked int
	PointsMatched int
	Divergences   []Divergence
}

// Match reports whether every point matched.
func (r *Report) Match() bool {
	return len(r.Divergences) == 0
}

// Verifier recomputes a run into a throwaway store and compares it against
// the persisted points, point by point per (symbol, metric, tick).
type Verifier struct {
	bars      storage.BarStore
	points    storage.MetricStore
	symbols   []domain.SymbolID
	specs     []domain.MetricSpec
	frequency int
	start     int64
	end       int64
	log       *zap.Logger
}

// VerifierOptions contains configuration for creating a Verifier.
type VerifierOptions struct {
	Bars      storage.BarStore
	Points    storage.MetricStore
	Symbols   []domain.SymbolID
	Specs     []domain.MetricSpec
	Frequency int
	Start     int64
	End       int64
	Log       *zap.Logger
}

// NewVerifier creates a run verifier. Log must be non-nil.
func NewVerifier(opts VerifierOptions) *Verifier {
	return &Verifier{
		bars:      opts.Bars,
		points:    opts.Points,
		symbols:   opts.Symbols,
		specs:     opts.Specs,
		frequency: opts.Frequency,
		start:     opts.Start,
		end:       opts.End,
		log:       opts.Log,
	}
}

// VerifyRun rebuilds the graph from the specs on a fresh clock, replays the
// run range into an in-memory store, and compares every (symbol, metric,
// tick) against the persisted points.
func (v *Verifier) VerifyRun(ctx context.Context) (*Report, error) {
	scratch := memory.NewMetricStore()
	if err := v.recompute(ctx, scratch); err != nil {
		return nil, fmt.Errorf("recompute: %w", err)
	}

	report := &Report{}
	for _, sym := range v.symbols {
		for _, spec := range v.specs {
			stored, err := v.points.GetByMetric(ctx, sym, spec.Name)
			if err != nil {
				return nil, fmt.Errorf("read stored %s/%s: %w", sym, spec.Name, err)
			}
			recomputed, err := scratch.GetByMetric(ctx, sym, spec.Name)
			if err != nil {
				return nil, fmt.Errorf("read recomputed %s/%s: %w", sym, spec.Name, err)
			}
			comparePoints(report, sym, spec.Name, stored, recomputed)
		}
	}

	v.log.Info("verification complete",
		zap.Int("points_checked", report.PointsChecked),
		zap.Int("points_matched", report.PointsMatched),
		zap.Int("divergences", len(report.Divergences)),
	)
	return report, nil
}

func (v *Verifier) recompute(ctx context.Context, scratch storage.MetricStore) error {
	clk := clock.New()
	mgr := marketdata.NewManager(clk, v.bars)
	for _, sym := range v.symbols {
		if err := mgr.Subscribe(sym); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}

	containers, err := backtest.BuildGraph(clk, mgr, v.symbols, v.specs)
	if err != nil {
		return err
	}

	runner := backtest.NewRunner(backtest.RunnerOptions{
		Processor: processor.New(clk, mgr, containers...),
		Manager:   mgr,
		Bars:      v.bars,
		Points:    scratch,
		Frequency: v.frequency,
		Start:     v.start,
		End:       v.end,
		Log:       v.log,
	})
	_, err = runner.Run(ctx)
	return err
}

// comparePoints aligns both point sets by timestamp. A point present on one
// side only is a divergence; matching timestamps compare by value.
func comparePoints(report *Report, sym domain.SymbolID, metric string, stored, recomputed []*domain.MetricPoint) {
	storedByTs := make(map[int64]float64, len(stored))
	for _, p := range stored {
		storedByTs[p.TimestampMs] = p.Value
	}

	seen := make(map[int64]struct{}, len(recomputed))
	for _, p := range recomputed {
		seen[p.TimestampMs] = struct{}{}
		report.PointsChecked++

		sv, ok := storedByTs[p.TimestampMs]
		if !ok {
			report.Divergences = append(report.Divergences, Divergence{
				Sym: sym, Metric: metric, TimestampMs: p.TimestampMs,
				Stored: domain.Sentinel(), Recomputed: p.Value, Missing: "stored",
			})
			continue
		}
		if valuesMatch(sv, p.Value) {
			report.PointsMatched++
			continue
		}
		report.Divergences = append(report.Divergences, Divergence{
			Sym: sym, Metric: metric, TimestampMs: p.TimestampMs,
			Stored: sv, Recomputed: p.Value,
		})
	}

	for _, p := range stored {
		if _, ok := seen[p.TimestampMs]; ok {
			continue
		}
		report.PointsChecked++
		report.Divergences = append(report.Divergences, Divergence{
			Sym: sym, Metric: metric, TimestampMs: p.TimestampMs,
			Stored: p.Value, Recomputed: domain.Sentinel(), Missing: "recomputed",
		})
	}
}

// valuesMatch compares two point values within FloatTolerance. Two
// sentinels are the same "no value", so they match.
func valuesMatch(a, b float64) bool {
	if !domain.HasValue(a) && !domain.HasValue(b) {
		return true
	}
	if !domain.HasValue(a) || !domain.HasValue(b) {
		return false
	}
	return math.Abs(a-b) <= FloatTolerance
}
