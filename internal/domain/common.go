package domain

import "strings"

// Side represents the side of an order (buy or sell).
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderStatus represents the lifecycle state of an order as reported by an
// exchange. Only filled orders are history-worthy.
type OrderStatus string

const (
	StatusOpen      OrderStatus = "open"
	StatusPartial   OrderStatus = "partial"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
)

// CanonicalSymbol folds an exchange-reported pair symbol to the single
// canonical casing used across the store ("ETHBTC" becomes "ethbtc").
func CanonicalSymbol(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol))
}

// CanonicalCurrency folds a currency code to upper case ("btc" becomes
// "BTC"). Currencies and pair symbols use opposite casings so the two key
// spaces never collide.
func CanonicalCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}
