// Package marketdata buffers raw bars between storage and the metric graph.
// A Manager owns one buffer per subscribed symbol; Refresh pulls the current
// tick's bar for every symbol of a frequency before a computation round, so
// the graph itself never touches storage.
package marketdata

import (
	"context"
	"errors"
	"fmt"

	"market-metrics-lab/internal/clock"
	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/storage"
)

var (
	// ErrAlreadySubscribed is returned when a symbol is subscribed twice.
	ErrAlreadySubscribed = errors.New("symbol already subscribed")

	// ErrNotSubscribed is returned when requesting data for an unknown symbol.
	ErrNotSubscribed = errors.New("symbol not subscribed")

	// ErrNotRefreshed is returned when a column is read at offset 0 before
	// the buffer was refreshed for the current tick.
	ErrNotRefreshed = errors.New("buffer not refreshed for current tick")
)

// Manager reads bars at the clock's tick into per-symbol buffers and exposes
// their columns as series. Subscription set and buffers are mutated only by
// the driving goroutine; the graph reads them synchronously during a round.
type Manager struct {
	clk   *clock.Clock
	store storage.BarStore
	subs  map[domain.SymbolID]*buffer
	order []domain.SymbolID
}

// buffer keeps one appended entry per refreshed tick.
type buffer struct {
	ticks []int64
	bars  []*domain.Bar
}

// NewManager returns a manager reading bars from store at clk's tick.
func NewManager(clk *clock.Clock, store storage.BarStore) *Manager {
	return &Manager{
		clk:   clk,
		store: store,
		subs:  make(map[domain.SymbolID]*buffer),
	}
}

// Subscribe registers a symbol for refreshing. Symbols are usually
// registered before the first tick; late subscriptions start with an empty
// buffer.
func (m *Manager) Subscribe(sym domain.SymbolID) error {
	if err := sym.Validate(); err != nil {
		return err
	}
	if _, exists := m.subs[sym]; exists {
		return fmt.Errorf("%s: %w", sym, ErrAlreadySubscribed)
	}
	m.subs[sym] = &buffer{}
	m.order = append(m.order, sym)
	return nil
}

// Subscribed returns the registered symbols in subscription order.
func (m *Manager) Subscribed() []domain.SymbolID {
	out := make([]domain.SymbolID, len(m.order))
	copy(out, m.order)
	return out
}

// Refresh reads the current tick's bar for every subscribed symbol of the
// given frequency and appends it to the symbol's buffer. Unknown timestamps
// appear as fully sentineled bars, so a refresh entry exists for every
// refreshed tick. Refresh is idempotent within a tick.
func (m *Manager) Refresh(ctx context.Context, frequency int) error {
	if !m.clk.Started() {
		return fmt.Errorf("refresh: %w", clock.ErrNotStarted)
	}
	nowMs := m.clk.NowMs()
	for _, sym := range m.order {
		if sym.Frequency != frequency {
			continue
		}
		buf := m.subs[sym]
		if n := len(buf.ticks); n > 0 && buf.ticks[n-1] == nowMs {
			continue
		}
		bar, err := m.store.Read(ctx, sym, nowMs)
		if err != nil {
			return fmt.Errorf("refresh %s at %d: %w", sym, nowMs, err)
		}
		buf.ticks = append(buf.ticks, nowMs)
		buf.bars = append(buf.bars, bar)
	}
	return nil
}

// Column returns a series view over one bar column of a subscribed symbol.
func (m *Manager) Column(sym domain.SymbolID, col domain.Column) (*Column, error) {
	buf, ok := m.subs[sym]
	if !ok {
		return nil, fmt.Errorf("%s: %w", sym, ErrNotSubscribed)
	}
	return &Column{clk: m.clk, sym: sym, col: col, buf: buf}, nil
}
