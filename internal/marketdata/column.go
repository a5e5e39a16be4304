package marketdata

import (
	"fmt"

	"market-metrics-lab/internal/clock"
	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/metrics"
)

// Column is the leaf series of the graph: a tick-offset view over one OHLCV
// column of a symbol's refreshed buffer. It shares lookback semantics with
// metrics but never computes anything; offset 0 only checks that the buffer
// holds the current tick.
type Column struct {
	clk *clock.Clock
	sym domain.SymbolID
	col domain.Column
	buf *buffer
}

var _ metrics.Series = (*Column)(nil)

// Name renders as "column(product:symbol:frequency)".
func (c *Column) Name() string {
	return fmt.Sprintf("%s(%s)", c.col, c.sym)
}

// Value returns the column's value at the given tick offset. Missing fields
// read as the sentinel; only graph misuse produces errors.
func (c *Column) Value(offset int) (float64, error) {
	if offset > 0 {
		return 0, fmt.Errorf("column %s: offset %d: %w", c.Name(), offset, metrics.ErrInvalidOffset)
	}
	if !c.clk.Started() {
		return 0, fmt.Errorf("column %s: %w", c.Name(), clock.ErrNotStarted)
	}

	nowMs := c.clk.NowMs()
	n := len(c.buf.ticks)
	onTick := n > 0 && c.buf.ticks[n-1] == nowMs

	if offset == 0 {
		if !onTick {
			return 0, fmt.Errorf("column %s at %d: %w", c.Name(), nowMs, ErrNotRefreshed)
		}
		return c.buf.bars[n-1].Field(c.col), nil
	}

	k := -offset
	idx := n - k
	if onTick {
		idx = n - 1 - k
	}
	if idx < 0 {
		return 0, fmt.Errorf("column %s: lookback %d: %w", c.Name(), k, metrics.ErrInsufficientHistory)
	}
	return c.buf.bars[idx].Field(c.col), nil
}
