package metrics

import (
	"fmt"
	"testing"

	"market-metrics-lab/internal/clock"
)

// scriptSeries is a leaf series for tests: a fixed script of (tick, value)
// pairs read through the shared clock, with tick-anchored lookback matching
// the Series contract. calls counts offset-0 reads for memoization checks.
type scriptSeries struct {
	clk   *clock.Clock
	name  string
	ticks []int64
	vals  []float64
	calls int
}

func newScriptSeries(clk *clock.Clock, name string, ticks []int64, vals []float64) *scriptSeries {
	if len(ticks) != len(vals) {
		panic("script length mismatch")
	}
	return &scriptSeries{clk: clk, name: name, ticks: ticks, vals: vals}
}

func (s *scriptSeries) Name() string { return s.name }

func (s *scriptSeries) Value(offset int) (float64, error) {
	if offset > 0 {
		return 0, ErrInvalidOffset
	}
	if offset == 0 {
		s.calls++
	}
	now := s.clk.NowMs()
	at := -1
	for i, ts := range s.ticks {
		if ts == now {
			at = i
			break
		}
	}
	if at < 0 {
		return 0, fmt.Errorf("script %q has no tick %d", s.name, now)
	}
	idx := at + offset
	if idx < 0 {
		return 0, ErrInsufficientHistory
	}
	return s.vals[idx], nil
}

// funcSeries adapts a closure to Series; used to wire deliberate cycles.
type funcSeries struct {
	name string
	fn   func(offset int) (float64, error)
}

func (f funcSeries) Name() string { return f.name }

func (f funcSeries) Value(offset int) (float64, error) { return f.fn(offset) }

// fakeTable is an in-test TableReader with canned rows.
type fakeTable struct {
	rows []fakeRow
}

type fakeRow struct {
	keys map[string]string
	cols map[string]float64
}

func (ft *fakeTable) ColumnValues(filter map[string]string, column string) ([]float64, error) {
	var out []float64
	for _, row := range ft.rows {
		matched := true
		for k, want := range filter {
			if row.keys[k] != want {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, row.cols[column])
		}
	}
	return out, nil
}

// seqTicks returns n ticks spaced 60s apart starting at a fixed epoch.
func seqTicks(n int) []int64 {
	base := int64(1700000000000)
	ticks := make([]int64, n)
	for i := range ticks {
		ticks[i] = base + int64(i)*60_000
	}
	return ticks
}

// runMetric advances the clock through ticks, evaluating m once per tick.
func runMetric(t *testing.T, clk *clock.Clock, m *Metric, ticks []int64) []float64 {
	t.Helper()
	out := make([]float64, 0, len(ticks))
	for _, ts := range ticks {
		if err := clk.Advance(ts); err != nil {
			t.Fatalf("advance to %d: unexpected error: %v", ts, err)
		}
		v, err := m.Value(0)
		if err != nil {
			t.Fatalf("value at tick %d: unexpected error: %v", ts, err)
		}
		out = append(out, v)
	}
	return out
}
