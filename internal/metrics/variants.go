package metrics

import (
	"errors"
	"fmt"
	"math"

	"market-metrics-lab/internal/clock"
	"market-metrics-lab/internal/domain"
)

func validateNode(clk *clock.Clock, name string, inputs ...Series) error {
	if clk == nil {
		return fmt.Errorf("metric %q: nil clock: %w", name, ErrInvalidParameter)
	}
	if name == "" {
		return fmt.Errorf("metric without a name: %w", ErrInvalidParameter)
	}
	for _, in := range inputs {
		if in == nil {
			return fmt.Errorf("metric %q: nil input: %w", name, ErrInvalidParameter)
		}
	}
	return nil
}

// NewDuplicate returns a metric that mirrors its input tick for tick.
// It exists to materialize a raw series into a recorded history.
func NewDuplicate(clk *clock.Clock, name string, input Series) (*Metric, error) {
	if err := validateNode(clk, name, input); err != nil {
		return nil, err
	}
	return newMetric(clk, name, duplicateRule{input: input}), nil
}

type duplicateRule struct {
	input Series
}

func (r duplicateRule) compute(*Metric) (float64, error) {
	return r.input.Value(0)
}

// NewAccumulate returns a running-sum metric: the input's value on the
// first tick, input plus own previous value afterwards.
func NewAccumulate(clk *clock.Clock, name string, input Series) (*Metric, error) {
	if err := validateNode(clk, name, input); err != nil {
		return nil, err
	}
	return newMetric(clk, name, accumulateRule{input: input}), nil
}

type accumulateRule struct {
	input Series
}

func (r accumulateRule) compute(m *Metric) (float64, error) {
	cur, err := r.input.Value(0)
	if err != nil {
		return 0, err
	}
	prev, err := m.Value(-1)
	if errors.Is(err, ErrInsufficientHistory) {
		return cur, nil
	}
	if err != nil {
		return 0, err
	}
	return cur + prev, nil
}

// NewSubtract returns a metric computing left minus right each tick.
func NewSubtract(clk *clock.Clock, name string, left, right Series) (*Metric, error) {
	if err := validateNode(clk, name, left, right); err != nil {
		return nil, err
	}
	return newMetric(clk, name, subtractRule{left: left, right: right}), nil
}

type subtractRule struct {
	left  Series
	right Series
}

func (r subtractRule) compute(*Metric) (float64, error) {
	l, err := r.left.Value(0)
	if err != nil {
		return 0, err
	}
	rv, err := r.right.Value(0)
	if err != nil {
		return 0, err
	}
	return l - rv, nil
}

// NewDifference returns a metric computing the input's change over lag
// ticks: input now minus input lag ticks ago. Until lag+1 input ticks exist
// the value is the sentinel; sentinel operands yield the sentinel.
func NewDifference(clk *clock.Clock, name string, input Series, lag int) (*Metric, error) {
	if err := validateNode(clk, name, input); err != nil {
		return nil, err
	}
	if lag <= 0 {
		return nil, fmt.Errorf("metric %q: lag must be positive, got %d: %w", name, lag, ErrInvalidParameter)
	}
	return newMetric(clk, name, differenceRule{input: input, lag: lag}), nil
}

type differenceRule struct {
	input Series
	lag   int
}

func (r differenceRule) compute(*Metric) (float64, error) {
	cur, err := r.input.Value(0)
	if err != nil {
		return 0, err
	}
	lagged, err := r.input.Value(-r.lag)
	if errors.Is(err, ErrInsufficientHistory) {
		return domain.Sentinel(), nil
	}
	if err != nil {
		return 0, err
	}
	return cur - lagged, nil
}

// NewSMA returns a simple moving average over the last length input ticks.
// During warm-up the window shrinks to the available input history, so the
// first tick averages one value. Sentinel operands poison the mean.
func NewSMA(clk *clock.Clock, name string, input Series, length int) (*Metric, error) {
	if err := validateNode(clk, name, input); err != nil {
		return nil, err
	}
	if length < 1 {
		return nil, fmt.Errorf("metric %q: length must be >= 1, got %d: %w", name, length, ErrInvalidParameter)
	}
	return newMetric(clk, name, smaRule{input: input, length: length}), nil
}

type smaRule struct {
	input  Series
	length int
}

func (r smaRule) compute(*Metric) (float64, error) {
	sum := 0.0
	count := 0
	for k := 0; k < r.length; k++ {
		v, err := r.input.Value(-k)
		if errors.Is(err, ErrInsufficientHistory) {
			break
		}
		if err != nil {
			return 0, err
		}
		sum += v
		count++
	}
	if count == 0 {
		return domain.Sentinel(), nil
	}
	return sum / float64(count), nil
}

// NewEWMA returns an exponentially weighted moving average parameterized by
// half-life in ticks: the decay factor is 0.5^(1/halfLife), so an
// observation's weight halves every halfLife ticks. The first tick passes
// the input through.
func NewEWMA(clk *clock.Clock, name string, input Series, halfLife float64) (*Metric, error) {
	if err := validateNode(clk, name, input); err != nil {
		return nil, err
	}
	if !(halfLife > 0) || math.IsInf(halfLife, 1) {
		return nil, fmt.Errorf("metric %q: half-life must be a positive finite number, got %v: %w", name, halfLife, ErrInvalidParameter)
	}
	lambda := math.Pow(0.5, 1.0/halfLife)
	return newMetric(clk, name, ewmaRule{input: input, lambda: lambda}), nil
}

type ewmaRule struct {
	input  Series
	lambda float64
}

func (r ewmaRule) compute(m *Metric) (float64, error) {
	cur, err := r.input.Value(0)
	if err != nil {
		return 0, err
	}
	prev, err := m.Value(-1)
	if errors.Is(err, ErrInsufficientHistory) {
		return cur, nil
	}
	if err != nil {
		return 0, err
	}
	return (1-r.lambda)*cur + r.lambda*prev, nil
}

// NewTableReduce returns a metric that scans an externally owned table each
// tick: rows matching the filter predicates contribute their value for the
// named column, folded by reduce. The table is read fresh every tick, so
// mutations between ticks show up in the next computed value.
func NewTableReduce(clk *clock.Clock, name string, table TableReader, filter map[string]string, column string, reduce ReduceFunc) (*Metric, error) {
	if err := validateNode(clk, name); err != nil {
		return nil, err
	}
	if table == nil {
		return nil, fmt.Errorf("metric %q: nil table: %w", name, ErrInvalidParameter)
	}
	if column == "" {
		return nil, fmt.Errorf("metric %q: empty table column: %w", name, ErrInvalidParameter)
	}
	if reduce == nil {
		return nil, fmt.Errorf("metric %q: nil reduce func: %w", name, ErrInvalidParameter)
	}
	return newMetric(clk, name, tableReduceRule{
		table:  table,
		filter: filter,
		column: column,
		reduce: reduce,
	}), nil
}

type tableReduceRule struct {
	table  TableReader
	filter map[string]string
	column string
	reduce ReduceFunc
}

func (r tableReduceRule) compute(*Metric) (float64, error) {
	values, err := r.table.ColumnValues(r.filter, r.column)
	if err != nil {
		return 0, err
	}
	return r.reduce(values), nil
}
