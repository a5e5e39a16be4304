package domain

import "fmt"

// ProductType classifies the instrument behind a symbol.
type ProductType string

const (
	ProductStock  ProductType = "stock"
	ProductFuture ProductType = "future"
	ProductCrypto ProductType = "crypto"
	ProductIndex  ProductType = "index"
)

// Supported bar frequencies (in seconds)
const (
	Freq1Min  = 60
	Freq5Min  = 300
	Freq1Hour = 3600
	Freq1Day  = 86400
)

// SymbolID uniquely identifies one logical bar stream: the same ticker at
// two frequencies is two distinct streams. The struct is comparable and is
// used directly as a map key throughout.
type SymbolID struct {
	ProductType ProductType // instrument class
	Symbol      string      // exchange ticker
	Frequency   int         // bar interval in seconds
}

// String renders the identity as "product:symbol:frequency".
func (s SymbolID) String() string {
	return fmt.Sprintf("%s:%s:%d", s.ProductType, s.Symbol, s.Frequency)
}

// Validate reports whether the identity is well-formed.
func (s SymbolID) Validate() error {
	if s.ProductType == "" {
		return fmt.Errorf("symbol %q: empty product type", s.Symbol)
	}
	if s.Symbol == "" {
		return fmt.Errorf("empty symbol")
	}
	if s.Frequency <= 0 {
		return fmt.Errorf("symbol %q: frequency must be positive, got %d", s.Symbol, s.Frequency)
	}
	return nil
}
