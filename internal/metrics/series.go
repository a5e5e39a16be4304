// Package metrics implements the incremental metric computation graph:
// time-series nodes that compute one value per clock tick, memoize it in an
// append-only history, and compose into DAGs behind a uniform read contract.
//
// Evaluation is pull-based and synchronous. Value(0) computes the current
// tick's value on first call and returns the cached sample afterwards;
// negative offsets are pure reads of recorded history. All I/O happens
// outside the graph: leaf series read from buffers refreshed before a
// computation round.
package metrics

// Series is the uniform read contract over one time series, raw or derived.
// Downstream consumers cannot distinguish a raw bar column from a computed
// metric: both answer tick-offset reads.
//
// Offset 0 addresses the current clock tick and may trigger computation.
// Negative offsets address earlier ticks and never compute; they fail with
// ErrInsufficientHistory past the first recorded sample. Positive offsets
// fail with ErrInvalidOffset.
type Series interface {
	// Name identifies the series in errors and reports.
	Name() string

	// Value returns the series value at the given tick offset.
	Value(offset int) (float64, error)
}

// TableReader is the narrow view of an externally owned table that
// aggregation metrics consume. The filter maps key field names to required
// values; absent fields do not constrain the scan.
type TableReader interface {
	// ColumnValues returns the named column's value for every row matching
	// all filter predicates, in deterministic row order.
	ColumnValues(filter map[string]string, column string) ([]float64, error)
}

// ReduceFunc folds matched table values to a single metric value.
type ReduceFunc func(values []float64) float64

// Sum is the standard reduction: the sum of all values, 0 for no rows.
// Sentinel values poison the sum.
func Sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

// Count reduces to the number of matched rows regardless of their values.
func Count(values []float64) float64 {
	return float64(len(values))
}
