package metrics

import (
	"fmt"

	"market-metrics-lab/internal/domain"
)

// Builder constructs one container member: the metric for a symbol, wired
// to the symbol's own inputs. Shared parameters live in the closure.
type Builder func(sym domain.SymbolID, inputs []Series) (*Metric, error)

// MemberSpec pairs a symbol identity with the input series its member
// metric wraps.
type MemberSpec struct {
	Symbol domain.SymbolID
	Inputs []Series
}

// Container is a named, fixed set of metric instances of one kind, one per
// symbol. Membership is sealed at construction; Calculate drives every
// member for the current tick and records the results.
type Container struct {
	name    string
	order   []domain.SymbolID
	members map[domain.SymbolID]*Metric
	results map[domain.SymbolID]float64
}

// NewContainer builds one metric per member spec via builder. A repeated
// symbol identity fails the whole construction with ErrDuplicateSymbol, as
// does any member build error: containers are never partially constructed.
func NewContainer(name string, builder Builder, members []MemberSpec) (*Container, error) {
	if builder == nil {
		return nil, fmt.Errorf("container %q: nil builder: %w", name, ErrInvalidParameter)
	}
	c := &Container{
		name:    name,
		order:   make([]domain.SymbolID, 0, len(members)),
		members: make(map[domain.SymbolID]*Metric, len(members)),
		results: make(map[domain.SymbolID]float64),
	}
	for _, spec := range members {
		if _, exists := c.members[spec.Symbol]; exists {
			return nil, fmt.Errorf("container %q: symbol %s: %w", name, spec.Symbol, ErrDuplicateSymbol)
		}
		m, err := builder(spec.Symbol, spec.Inputs)
		if err != nil {
			return nil, fmt.Errorf("container %q: symbol %s: %w", name, spec.Symbol, err)
		}
		c.members[spec.Symbol] = m
		c.order = append(c.order, spec.Symbol)
	}
	return c, nil
}

// Name returns the container's name.
func (c *Container) Name() string {
	return c.name
}

// Symbols returns the member identities in insertion order.
func (c *Container) Symbols() []domain.SymbolID {
	out := make([]domain.SymbolID, len(c.order))
	copy(out, c.order)
	return out
}

// Member returns the metric instance for a symbol.
func (c *Container) Member(sym domain.SymbolID) (*Metric, bool) {
	m, ok := c.members[sym]
	return m, ok
}

// Calculate evaluates every member for the current tick in insertion order
// and records the values in the result table. Memoization makes the order
// irrelevant to the results; it only decides where shared subgraphs pay
// their cost.
func (c *Container) Calculate() error {
	for _, sym := range c.order {
		v, err := c.members[sym].Value(0)
		if err != nil {
			return fmt.Errorf("container %q: symbol %s: %w", c.name, sym, err)
		}
		c.results[sym] = v
	}
	return nil
}

// Results returns a copy of the last Calculate's result table keyed by
// symbol identity.
func (c *Container) Results() map[domain.SymbolID]float64 {
	out := make(map[domain.SymbolID]float64, len(c.results))
	for sym, v := range c.results {
		out[sym] = v
	}
	return out
}
