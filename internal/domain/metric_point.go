package domain

// MetricPoint is one computed metric sample in persisted form.
// Corresponds to the metric_points table in ClickHouse.
type MetricPoint struct {
	Sym         SymbolID // symbol the metric was computed for
	Metric      string   // metric name within its container
	TimestampMs int64    // clock tick the value belongs to
	Value       float64  // computed value, sentinel if not yet warmed up
}
