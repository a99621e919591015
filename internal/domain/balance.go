package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance holds the funds of a single currency on one exchange.
type Balance struct {
	Available decimal.Decimal // Funds free for new orders
	Reserved  decimal.Decimal // Funds locked in open orders
}

// IsZero reports whether neither component holds any funds.
func (b Balance) IsZero() bool {
	return b.Available.IsZero() && b.Reserved.IsZero()
}

// Balances maps canonical currency codes to their balance. The map is
// ephemeral per polling cycle and never persisted standalone; it feeds the
// balance aggregator only.
type Balances map[string]Balance

// PriceQuote is the last known price for a pair on one exchange. Keyed by
// (Exchange, Symbol); the latest fetched value always wins and no history
// is kept.
type PriceQuote struct {
	Exchange string
	Symbol   string
	Price    decimal.Decimal
}

// TotalSnapshot is one point of the append-only total-value time series.
type TotalSnapshot struct {
	Date     time.Time
	Exchange string
	Total    decimal.Decimal
}
