package backtest

import (
	"fmt"

	"market-metrics-lab/internal/clock"
	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/marketdata"
	"market-metrics-lab/internal/metrics"
)

// BuildGraph resolves ordered metric specs into one container per spec,
// one member per symbol. A spec may name any earlier spec as an input, so
// composite graphs build in a single pass without forward references.
func BuildGraph(clk *clock.Clock, mgr *marketdata.Manager, syms []domain.SymbolID, specs []domain.MetricSpec) ([]*metrics.Container, error) {
	built := make(map[string]*metrics.Container, len(specs))
	containers := make([]*metrics.Container, 0, len(specs))

	for _, spec := range specs {
		ct, err := buildContainer(clk, mgr, syms, spec, built)
		if err != nil {
			return nil, fmt.Errorf("metric %q: %w", spec.Name, err)
		}
		built[spec.Name] = ct
		containers = append(containers, ct)
	}
	return containers, nil
}

func buildContainer(clk *clock.Clock, mgr *marketdata.Manager, syms []domain.SymbolID, spec domain.MetricSpec, built map[string]*metrics.Container) (*metrics.Container, error) {
	builder := func(sym domain.SymbolID, inputs []metrics.Series) (*metrics.Metric, error) {
		return metrics.FromSpec(clk, spec, inputs)
	}

	members := make([]metrics.MemberSpec, 0, len(syms))
	for _, sym := range syms {
		inputs, err := resolveInputs(mgr, sym, spec, built)
		if err != nil {
			return nil, err
		}
		members = append(members, metrics.MemberSpec{Symbol: sym, Inputs: inputs})
	}
	return metrics.NewContainer(spec.Name, builder, members)
}

// resolveInputs maps a spec's input references onto live series for one
// symbol.
func resolveInputs(mgr *marketdata.Manager, sym domain.SymbolID, spec domain.MetricSpec, built map[string]*metrics.Container) ([]metrics.Series, error) {
	if spec.Kind == domain.MetricKindSubtract {
		left, err := resolveSeries(mgr, sym, spec.Left, built)
		if err != nil {
			return nil, err
		}
		right, err := resolveSeries(mgr, sym, spec.Right, built)
		if err != nil {
			return nil, err
		}
		return []metrics.Series{left, right}, nil
	}

	ref := spec.Column
	if ref == "" {
		ref = spec.Input
	}
	in, err := resolveSeries(mgr, sym, ref, built)
	if err != nil {
		return nil, err
	}
	return []metrics.Series{in}, nil
}

// resolveSeries resolves one reference: a previously built metric wins,
// otherwise the name must be a bar column. Metric names never collide with
// column names (config validation rejects them), so the order is safe.
func resolveSeries(mgr *marketdata.Manager, sym domain.SymbolID, ref string, built map[string]*metrics.Container) (metrics.Series, error) {
	if ct, ok := built[ref]; ok {
		m, found := ct.Member(sym)
		if !found {
			return nil, fmt.Errorf("input %q has no member for %s: %w", ref, sym, metrics.ErrInvalidParameter)
		}
		return m, nil
	}
	if domain.ValidColumn(ref) {
		return mgr.Column(sym, domain.Column(ref))
	}
	return nil, fmt.Errorf("unknown input %q: %w", ref, metrics.ErrInvalidParameter)
}
