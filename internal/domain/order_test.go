package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanonicalCasing(t *testing.T) {
	assert.Equal(t, "ethbtc", CanonicalSymbol(" ETHBTC "))
	assert.Equal(t, "ethbtc", CanonicalSymbol("EthBtc"))
	assert.Equal(t, "BTC", CanonicalCurrency(" btc"))
	assert.Equal(t, "BTC", CanonicalCurrency("Btc"))
}

func TestOrderIsFilled(t *testing.T) {
	o := Order{Status: StatusFilled}
	assert.True(t, o.IsFilled())

	for _, status := range []OrderStatus{StatusOpen, StatusPartial, StatusCancelled} {
		o.Status = status
		assert.False(t, o.IsFilled(), "status %s must not be history-worthy", status)
	}
}

func TestHistoryFromOrder(t *testing.T) {
	o := Order{
		ID:       "42",
		Exchange: "hitbtc",
		Symbol:   "ethbtc",
		Side:     Sell,
		Quantity: decimal.RequireFromString("2"),
		Price:    decimal.RequireFromString("0.05"),
		Status:   StatusFilled,
	}
	rec := HistoryFromOrder(o)
	assert.Equal(t, "42", rec.ID)
	assert.Equal(t, "hitbtc", rec.Exchange)
	assert.Equal(t, Sell, rec.Side)
	assert.False(t, rec.Confirmed, "new records always start pending")
	assert.True(t, rec.Price.Equal(o.Price))
	assert.True(t, rec.Quantity.Equal(o.Quantity))
}
