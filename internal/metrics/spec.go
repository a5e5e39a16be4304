package metrics

import (
	"errors"
	"fmt"

	"market-metrics-lab/internal/clock"
	"market-metrics-lab/internal/domain"
)

// Factory errors
var (
	ErrUnknownMetricKind = errors.New("unknown metric kind")
	ErrMissingLength     = errors.New("SMA requires Length")
	ErrMissingLag        = errors.New("DIFFERENCE requires Lag")
	ErrMissingHalfLife   = errors.New("EWMA requires HalfLife")
)

// FromSpec creates a metric from a declarative definition and resolved
// input series. Input resolution (bar column vs earlier metric by name) is
// the caller's job; this factory validates kind, arity, and parameters.
func FromSpec(clk *clock.Clock, spec domain.MetricSpec, inputs []Series) (*Metric, error) {
	switch spec.Kind {
	case domain.MetricKindDuplicate:
		if err := wantInputs(spec, inputs, 1); err != nil {
			return nil, err
		}
		return NewDuplicate(clk, spec.Name, inputs[0])
	case domain.MetricKindAccumulate:
		if err := wantInputs(spec, inputs, 1); err != nil {
			return nil, err
		}
		return NewAccumulate(clk, spec.Name, inputs[0])
	case domain.MetricKindSubtract:
		if err := wantInputs(spec, inputs, 2); err != nil {
			return nil, err
		}
		return NewSubtract(clk, spec.Name, inputs[0], inputs[1])
	case domain.MetricKindDifference:
		if err := wantInputs(spec, inputs, 1); err != nil {
			return nil, err
		}
		if spec.Lag == nil {
			return nil, ErrMissingLag
		}
		return NewDifference(clk, spec.Name, inputs[0], *spec.Lag)
	case domain.MetricKindSMA:
		if err := wantInputs(spec, inputs, 1); err != nil {
			return nil, err
		}
		if spec.Length == nil {
			return nil, ErrMissingLength
		}
		return NewSMA(clk, spec.Name, inputs[0], *spec.Length)
	case domain.MetricKindEWMA:
		if err := wantInputs(spec, inputs, 1); err != nil {
			return nil, err
		}
		if spec.HalfLife == nil {
			return nil, ErrMissingHalfLife
		}
		return NewEWMA(clk, spec.Name, inputs[0], *spec.HalfLife)
	default:
		return nil, fmt.Errorf("kind %q: %w", spec.Kind, ErrUnknownMetricKind)
	}
}

func wantInputs(spec domain.MetricSpec, inputs []Series, n int) error {
	if len(inputs) != n {
		return fmt.Errorf("kind %s wants %d input(s), got %d: %w",
			spec.Kind, n, len(inputs), ErrInvalidParameter)
	}
	return nil
}
