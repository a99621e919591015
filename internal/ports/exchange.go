package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"coinwatch/internal/domain"
)

// ExchangeClient defines the capability interface for one configured
// exchange account. Each exchange variant implements it with its own wire
// protocol and normalization; callers only ever see canonical domain
// records. All operations may fail with a transient or permanent error
// (see errors.go); every network call honors the passed context.
type ExchangeClient interface {
	// Name returns the configured exchange name (e.g. "hitbtc").
	Name() string

	// GetBalance returns currencies with a positive available or reserved
	// balance, keyed by canonical currency code.
	GetBalance(ctx context.Context) (domain.Balances, error)

	// GetOrders returns the currently open orders keyed by order id.
	GetOrders(ctx context.Context) (map[string]domain.Order, error)

	// GetHistory returns the most recent filled orders, newest first,
	// up to limit. Partially filled and still-open orders are excluded.
	GetHistory(ctx context.Context, limit int) ([]domain.Order, error)

	// GetPrices returns the last price for every symbol the exchange
	// quotes, keyed by canonical symbol.
	GetPrices(ctx context.Context) (map[string]decimal.Decimal, error)

	// GetData fetches all of the above and computes the account total in
	// the given base currency.
	GetData(ctx context.Context, base string) (*domain.AccountSnapshot, error)

	// NewOrder places a limit order and returns the exchange-assigned
	// order id. Optional side capability; not part of the polling cycle.
	NewOrder(ctx context.Context, symbol string, side domain.Side, quantity, price decimal.Decimal) (string, error)

	// Close releases network resources held by the client.
	Close() error
}
