// Package portfolio holds the position table: the externally owned tabular
// collaborator that aggregation metrics scan. The table belongs to whatever
// books positions (a fill handler, a simulator, a manual driver); the graph
// only ever reads it.
package portfolio

import (
	"errors"
	"fmt"
	"sync"

	"market-metrics-lab/internal/domain"
	"market-metrics-lab/internal/metrics"
)

// ErrUnknownFilterKey is returned when a scan filters on a key field the
// table does not have.
var ErrUnknownFilterKey = errors.New("unknown filter key")

// Filterable key fields
const (
	FilterStrategy    = "strategy"
	FilterProductType = "product_type"
	FilterSymbol      = "symbol"
)

// Key is the composite row key: one position per strategy and instrument.
type Key struct {
	Strategy    string
	ProductType domain.ProductType
	Symbol      string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Strategy, k.ProductType, k.Symbol)
}

// Table is an in-memory position table with named float columns per row.
// Point access is by full key; scans filter on any subset of key fields and
// visit rows in insertion order. Safe for concurrent use, though the usual
// discipline is single-writer between computation rounds.
type Table struct {
	mu    sync.RWMutex
	order []Key
	rows  map[Key]map[string]float64
}

// NewTable creates an empty position table.
func NewTable() *Table {
	return &Table{
		rows: make(map[Key]map[string]float64),
	}
}

// Set writes one column of a row, creating the row if needed.
func (t *Table) Set(key Key, column string, v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.row(key)[column] = v
}

// Add adds delta to one column of a row, creating the row and treating a
// missing column as 0.
func (t *Table) Add(key Key, column string, delta float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	row := t.row(key)
	row[column] += delta
}

// row returns the row for key, creating it. Callers hold the write lock.
func (t *Table) row(key Key) map[string]float64 {
	row, exists := t.rows[key]
	if !exists {
		row = make(map[string]float64)
		t.rows[key] = row
		t.order = append(t.order, key)
	}
	return row
}

// Get reads one column of a row. The second return is false when the row or
// the column does not exist.
func (t *Table) Get(key Key, column string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	row, exists := t.rows[key]
	if !exists {
		return 0, false
	}
	v, exists := row[column]
	return v, exists
}

// Delete removes a row entirely. Deleting an absent row is a no-op.
func (t *Table) Delete(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.rows[key]; !exists {
		return
	}
	delete(t.rows, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.order)
}

// ColumnValues returns the named column's value for every row matching all
// filter predicates, in insertion order. Rows lacking the column contribute
// nothing. Filter keys must be one of the Filter* constants.
func (t *Table) ColumnValues(filter map[string]string, column string) ([]float64, error) {
	for k := range filter {
		switch k {
		case FilterStrategy, FilterProductType, FilterSymbol:
		default:
			return nil, fmt.Errorf("%q: %w", k, ErrUnknownFilterKey)
		}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []float64
	for _, key := range t.order {
		if !matches(key, filter) {
			continue
		}
		if v, exists := t.rows[key][column]; exists {
			out = append(out, v)
		}
	}
	return out, nil
}

func matches(key Key, filter map[string]string) bool {
	if want, ok := filter[FilterStrategy]; ok && key.Strategy != want {
		return false
	}
	if want, ok := filter[FilterProductType]; ok && string(key.ProductType) != want {
		return false
	}
	if want, ok := filter[FilterSymbol]; ok && key.Symbol != want {
		return false
	}
	return true
}

var _ metrics.TableReader = (*Table)(nil)
