package metrics

import "errors"

// Graph construction and evaluation errors. All of them signal programming
// mistakes in graph wiring or driving, never missing market data: absent
// data flows through values as the sentinel.
var (
	// ErrInvalidParameter is returned by constructors for out-of-range or
	// missing variant parameters.
	ErrInvalidParameter = errors.New("invalid metric parameter")

	// ErrInsufficientHistory is returned by lookback reads that reach
	// before the first recorded sample.
	ErrInsufficientHistory = errors.New("insufficient history for lookback")

	// ErrInvalidOffset is returned for positive offsets: the future is not
	// addressable.
	ErrInvalidOffset = errors.New("offset must be zero or negative")

	// ErrCyclicDependency is returned when evaluating a metric re-enters
	// itself within one tick.
	ErrCyclicDependency = errors.New("cyclic metric dependency")

	// ErrDuplicateSymbol is returned when a container is built with two
	// members sharing a symbol identity.
	ErrDuplicateSymbol = errors.New("duplicate symbol in container")
)
