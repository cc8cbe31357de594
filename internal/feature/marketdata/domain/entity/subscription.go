package entity

import "strings"

// AssetClass routes a symbol to a provider and feed strategy.
type AssetClass string

const (
	AssetClassCrypto AssetClass = "crypto"
	AssetClassForex  AssetClass = "forex"
)

// Valid reports whether a is a known asset class.
func (a AssetClass) Valid() bool {
	return a == AssetClassCrypto || a == AssetClassForex
}

// ClassifySymbol treats pair notation ("EUR/USD") as forex and everything else as crypto.
func ClassifySymbol(symbol string) AssetClass {
	if strings.Contains(symbol, "/") {
		return AssetClassForex
	}
	return AssetClassCrypto
}

// SubscriptionKey identifies one live series. Symbol comparison is case-sensitive.
type SubscriptionKey struct {
	Symbol   string
	Interval Interval
}

// NewSubscriptionKey builds a key from raw transport values.
func NewSubscriptionKey(symbol string, interval Interval) SubscriptionKey {
	return SubscriptionKey{Symbol: symbol, Interval: interval}
}

func (k SubscriptionKey) String() string {
	return k.Symbol + "@" + string(k.Interval)
}
