// Package processor drives computation rounds: advance the shared clock to
// a bar timestamp, refresh raw buffers for a frequency, then force every
// registered container to compute the tick. Backtests and live feeds differ
// only in where the timestamps come from.
package processor

import (
	"context"
	"fmt"

	"market-metrics-lab/internal/clock"
	"market-metrics-lab/internal/marketdata"
	"market-metrics-lab/internal/metrics"
)

// Processor owns the round protocol over one clock, one market data
// manager, and an ordered list of containers. Container order never changes
// results (evaluation is memoized); it only decides which container pays
// for shared subgraphs.
type Processor struct {
	clk        *clock.Clock
	mgr        *marketdata.Manager
	containers []*metrics.Container
}

// New creates a processor over the given containers in calculation order.
func New(clk *clock.Clock, mgr *marketdata.Manager, containers ...*metrics.Container) *Processor {
	return &Processor{clk: clk, mgr: mgr, containers: containers}
}

// Advance moves the clock to the next bar timestamp.
func (p *Processor) Advance(timestampMs int64) error {
	return p.clk.Advance(timestampMs)
}

// ProcessBar runs one computation round for a frequency at the current
// tick: refresh every subscribed symbol's buffer, then calculate every
// container in order. The clock is untouched; drivers advance between
// rounds.
func (p *Processor) ProcessBar(ctx context.Context, frequency int) error {
	if err := p.mgr.Refresh(ctx, frequency); err != nil {
		return fmt.Errorf("process bar: %w", err)
	}
	for _, c := range p.containers {
		if err := c.Calculate(); err != nil {
			return fmt.Errorf("process bar: %w", err)
		}
	}
	return nil
}

// Step advances to a timestamp and runs the round for it.
func (p *Processor) Step(ctx context.Context, timestampMs int64, frequency int) error {
	if err := p.Advance(timestampMs); err != nil {
		return fmt.Errorf("step: %w", err)
	}
	return p.ProcessBar(ctx, frequency)
}

// Containers returns the registered containers in calculation order.
func (p *Processor) Containers() []*metrics.Container {
	out := make([]*metrics.Container, len(p.containers))
	copy(out, p.containers)
	return out
}
