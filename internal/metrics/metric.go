package metrics

import (
	"fmt"

	"market-metrics-lab/internal/clock"
)

// Sample is one recorded (tick, value) pair of a metric's history.
type Sample struct {
	TimestampMs int64
	Value       float64
}

// rule computes one value for the current tick. Implementations may read
// their inputs at offsets <= 0 and the owning metric's history at offsets
// < 0; they must not perform I/O or depend on wall-clock time.
type rule interface {
	compute(self *Metric) (float64, error)
}

// Metric is one node of the computation graph: a named time series whose
// value per clock tick is produced by its rule and memoized in an
// append-only history. Metrics are created once at graph construction and
// live for the whole run; the clock advancing is what moves them forward.
//
// Metrics are not safe for concurrent use. A computation round runs on a
// single goroutine and the clock must not advance mid-round.
type Metric struct {
	name      string
	clk       *clock.Clock
	rule      rule
	hist      []Sample
	computing bool
}

var _ Series = (*Metric)(nil)

func newMetric(clk *clock.Clock, name string, r rule) *Metric {
	return &Metric{name: name, clk: clk, rule: r}
}

// Name returns the metric's name.
func (m *Metric) Name() string {
	return m.name
}

// Value returns the metric's value at the given tick offset.
//
// Offset 0 is the current tick: if the sample exists it is returned as-is,
// otherwise the rule runs exactly once, the sample is recorded, and every
// further call this tick hits the cache. Negative offsets are pure reads
// anchored at the current tick, so a rule evaluating the current value can
// read Value(-1) for the previous tick whether or not the current sample
// has been recorded yet.
func (m *Metric) Value(offset int) (float64, error) {
	if offset > 0 {
		return 0, fmt.Errorf("metric %q: offset %d: %w", m.name, offset, ErrInvalidOffset)
	}
	if !m.clk.Started() {
		return 0, fmt.Errorf("metric %q: %w", m.name, clock.ErrNotStarted)
	}

	nowMs := m.clk.NowMs()
	n := len(m.hist)
	onTick := n > 0 && m.hist[n-1].TimestampMs == nowMs

	if offset == 0 {
		if onTick {
			return m.hist[n-1].Value, nil
		}
		if m.computing {
			return 0, fmt.Errorf("metric %q: %w", m.name, ErrCyclicDependency)
		}
		m.computing = true
		v, err := m.rule.compute(m)
		m.computing = false
		if err != nil {
			return 0, fmt.Errorf("metric %q: %w", m.name, err)
		}
		m.hist = append(m.hist, Sample{TimestampMs: nowMs, Value: v})
		return v, nil
	}

	// Lookback: k ticks behind now. When the current tick's sample is
	// already recorded it sits at hist[n-1]; when it is not (mid-compute),
	// hist[n-1] is itself one tick back.
	k := -offset
	idx := n - k
	if onTick {
		idx = n - 1 - k
	}
	if idx < 0 {
		return 0, fmt.Errorf("metric %q: lookback %d: %w", m.name, k, ErrInsufficientHistory)
	}
	return m.hist[idx].Value, nil
}

// History returns a copy of all recorded samples in tick order. It never
// triggers computation.
func (m *Metric) History() []Sample {
	out := make([]Sample, len(m.hist))
	copy(out, m.hist)
	return out
}
