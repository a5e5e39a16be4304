package domain

import "math"

// Bar is one OHLCV record for a symbol at a timestamp.
// Corresponds to the bars table in Postgres and ClickHouse.
type Bar struct {
	Sym         SymbolID // bar stream identity
	TimestampMs int64    // Unix timestamp in milliseconds (bar open time)
	Open        float64  // first trade price, sentinel if no trades
	High        float64  // highest trade price, sentinel if no trades
	Low         float64  // lowest trade price, sentinel if no trades
	Close       float64  // last trade price, sentinel if no trades
	Volume      float64  // traded volume, sentinel if unknown
}

// Column names one value field of a Bar.
type Column string

const (
	ColOpen   Column = "open"
	ColHigh   Column = "high"
	ColLow    Column = "low"
	ColClose  Column = "close"
	ColVolume Column = "volume"
)

// ValidColumn reports whether name names a Bar value field.
func ValidColumn(name string) bool {
	switch Column(name) {
	case ColOpen, ColHigh, ColLow, ColClose, ColVolume:
		return true
	}
	return false
}

// Field returns the named column value of the bar.
// Unknown columns read as the sentinel.
func (b *Bar) Field(col Column) float64 {
	switch col {
	case ColOpen:
		return b.Open
	case ColHigh:
		return b.High
	case ColLow:
		return b.Low
	case ColClose:
		return b.Close
	case ColVolume:
		return b.Volume
	default:
		return Sentinel()
	}
}

// Sentinel is the "no value" marker carried through computations in place
// of missing data. It is NaN; test for it with HasValue, never with ==.
func Sentinel() float64 {
	return math.NaN()
}

// HasValue reports whether v carries real data rather than the sentinel.
func HasValue(v float64) bool {
	return !math.IsNaN(v)
}

// SentinelBar returns a bar for (sym, ts) with every value field absent.
// Stores return it for timestamps that hold no data, so reads never fail.
func SentinelBar(sym SymbolID, timestampMs int64) *Bar {
	return &Bar{
		Sym:         sym,
		TimestampMs: timestampMs,
		Open:        Sentinel(),
		High:        Sentinel(),
		Low:         Sentinel(),
		Close:       Sentinel(),
		Volume:      Sentinel(),
	}
}

// IsSentinel reports whether every value field of the bar is absent.
func (b *Bar) IsSentinel() bool {
	return !HasValue(b.Open) && !HasValue(b.High) && !HasValue(b.Low) &&
		!HasValue(b.Close) && !HasValue(b.Volume)
}
