package domain

// MetricSpec represents one declarative metric definition. Specs are
// resolved into live graph nodes per symbol; parameters not used by the
// kind stay nil.
type MetricSpec struct {
	Name string // unique within a run, used as the persisted metric name
	Kind string // one of the MetricKind constants

	// Input selection: exactly one source per input slot. Column reads a
	// raw bar field; Input references an earlier spec's output by name.
	Column string // bar column ("close", "volume", ...)
	Input  string // name of a previously defined metric

	// SUBTRACT operands, each a column or an earlier metric name.
	Left  string
	Right string

	// SMA parameters
	Length *int

	// DIFFERENCE parameters
	Lag *int

	// EWMA parameters
	HalfLife *float64
}

// Metric kind constants
const (
	MetricKindDuplicate  = "DUPLICATE"
	MetricKindAccumulate = "ACCUMULATE"
	MetricKindSubtract   = "SUBTRACT"
	MetricKindDifference = "DIFFERENCE"
	MetricKindSMA        = "SMA"
	MetricKindEWMA       = "EWMA"
)
