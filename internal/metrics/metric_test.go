package metrics

import (
	"errors"
	"testing"

	"market-metrics-lab/internal/clock"
)

func TestValue_MemoizesWithinTick(t *testing.T) {
	clk := clock.New()
	ticks := seqTicks(2)
	src := newScriptSeries(clk, "src", ticks, []float64{10, 20})
	m, err := NewDuplicate(clk, "dup", src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := clk.Advance(ticks[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		v, err := m.Value(0)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if v != 10 {
			t.Errorf("call %d: expected 10, got %f", i, v)
		}
	}
	if src.calls != 1 {
		t.Errorf("expected exactly 1 input pull, got %d", src.calls)
	}

	if err := clk.Advance(ticks[1]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := m.Value(0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if src.calls != 2 {
		t.Errorf("expected one pull per tick, got %d total", src.calls)
	}
}

func TestValue_LookbackMatchesTickHistory(t *testing.T) {
	clk := clock.New()
	ticks := seqTicks(6)
	vals := []float64{1, 2, 3, 4, 5, 6}
	src := newScriptSeries(clk, "src", ticks, vals)
	m, err := NewDuplicate(clk, "dup", src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runMetric(t, clk, m, ticks)

	for k := 0; k <= 5; k++ {
		v, err := m.Value(-k)
		if err != nil {
			t.Fatalf("lookback %d: unexpected error: %v", k, err)
		}
		if want := vals[5-k]; v != want {
			t.Errorf("lookback %d: expected %f, got %f", k, want, v)
		}
	}

	_, err = m.Value(-6)
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Errorf("expected ErrInsufficientHistory, got %v", err)
	}
}

func TestValue_LookbackAnchorsToCurrentTick(t *testing.T) {
	clk := clock.New()
	ticks := seqTicks(3)
	src := newScriptSeries(clk, "src", ticks, []float64{1, 2, 3})
	m, err := NewDuplicate(clk, "dup", src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runMetric(t, clk, m, ticks[:2])

	// Advance without computing: the newest recorded sample is now one
	// tick back, so Value(-1) must return it.
	if err := clk.Advance(ticks[2]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err := m.Value(-1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 2 {
		t.Errorf("expected 2, got %f", v)
	}

	// After computing the current tick the same offset reads the same
	// sample.
	if _, err := m.Value(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, err = m.Value(-1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 2 {
		t.Errorf("expected 2 after compute, got %f", v)
	}
}

func TestValue_RejectsPositiveOffset(t *testing.T) {
	clk := clock.New()
	ticks := seqTicks(1)
	src := newScriptSeries(clk, "src", ticks, []float64{1})
	m, err := NewDuplicate(clk, "dup", src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := clk.Advance(ticks[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = m.Value(1)
	if !errors.Is(err, ErrInvalidOffset) {
		t.Errorf("expected ErrInvalidOffset, got %v", err)
	}
}

func TestValue_ClockNotStarted(t *testing.T) {
	clk := clock.New()
	src := newScriptSeries(clk, "src", seqTicks(1), []float64{1})
	m, err := NewDuplicate(clk, "dup", src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = m.Value(0)
	if !errors.Is(err, clock.ErrNotStarted) {
		t.Errorf("expected clock.ErrNotStarted, got %v", err)
	}
}

func TestValue_CyclicDependencyDetected(t *testing.T) {
	clk := clock.New()
	var m *Metric
	loop := funcSeries{name: "loop", fn: func(offset int) (float64, error) {
		return m.Value(offset)
	}}
	m, err := NewDuplicate(clk, "self", loop)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := clk.Advance(seqTicks(1)[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = m.Value(0)
	if !errors.Is(err, ErrCyclicDependency) {
		t.Errorf("expected ErrCyclicDependency, got %v", err)
	}
}

func TestValue_IndirectCycleDetected(t *testing.T) {
	clk := clock.New()
	var a, b *Metric
	refB := funcSeries{name: "refB", fn: func(offset int) (float64, error) {
		return b.Value(offset)
	}}
	refA := funcSeries{name: "refA", fn: func(offset int) (float64, error) {
		return a.Value(offset)
	}}
	var err error
	a, err = NewDuplicate(clk, "a", refB)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err = NewDuplicate(clk, "b", refA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := clk.Advance(seqTicks(1)[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = a.Value(0)
	if !errors.Is(err, ErrCyclicDependency) {
		t.Errorf("expected ErrCyclicDependency, got %v", err)
	}
}

func TestHistory_ReturnsCopy(t *testing.T) {
	clk := clock.New()
	ticks := seqTicks(3)
	src := newScriptSeries(clk, "src", ticks, []float64{1, 2, 3})
	m, err := NewDuplicate(clk, "dup", src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runMetric(t, clk, m, ticks)

	hist := m.History()
	if len(hist) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(hist))
	}
	hist[0].Value = 999

	fresh := m.History()
	if fresh[0].Value != 1 {
		t.Errorf("history mutated through the returned copy")
	}
	for i, s := range fresh {
		if s.TimestampMs != ticks[i] {
			t.Errorf("sample %d: expected tick %d, got %d", i, ticks[i], s.TimestampMs)
		}
	}
}
