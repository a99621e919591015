package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order represents an open order on an exchange. Orders are keyed by
// (Exchange, ID); they are written only by the reconciliation step for
// their own exchange and deleted once they stop appearing in a fresh fetch.
type Order struct {
	ID       string          // Exchange-assigned order identifier
	Exchange string          // Name of the exchange the order lives on
	Symbol   string          // Canonical (lower case) pair symbol
	Side     Side            // buy or sell
	Quantity decimal.Decimal // Exact order quantity
	Price    decimal.Decimal // Exact limit price
	Status   OrderStatus     // Lifecycle state as last reported
	AsOf     time.Time       // Timestamp of the fetch that produced this view
}

// IsFilled reports whether the order is history-worthy: the exchange either
// flagged it filled explicitly or no remaining quantity is left.
func (o *Order) IsFilled() bool {
	return o.Status == StatusFilled
}

// HistoryRecord is a durable record of a filled order, driving the
// notification pipeline. Keyed by (ID, Exchange); created once via
// insert-if-absent and immutable except for the monotonic 0->1 transition
// of Confirmed.
type HistoryRecord struct {
	ID        string
	Exchange  string
	Symbol    string
	Side      Side
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Confirmed bool
}

// HistoryFromOrder builds the history row for a filled order.
func HistoryFromOrder(o Order) HistoryRecord {
	return HistoryRecord{
		ID:       o.ID,
		Exchange: o.Exchange,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Price:    o.Price,
		Quantity: o.Quantity,
	}
}
