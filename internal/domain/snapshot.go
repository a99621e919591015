package domain

import "github.com/shopspring/decimal"

// AccountSnapshot is the normalized per-exchange bundle produced by one
// polling cycle: balance, open orders keyed by id, filled orders from
// recent history, and last prices keyed by canonical symbol.
type AccountSnapshot struct {
	Exchange string
	Balances Balances
	Orders   map[string]Order
	History  []Order // Filled orders only
	Prices   map[string]decimal.Decimal
	Total    decimal.Decimal // Portfolio value in the base currency
}
