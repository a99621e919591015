package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"coinwatch/internal/domain"
)

// OrderRepository stores the open-order mirror. Writes for one exchange are
// only ever issued by that exchange's reconciliation step.
type OrderRepository interface {
	// ApplyOrderDiff inserts toAdd and deletes toRemove for one exchange
	// inside a single transaction, so readers never observe a
	// half-applied diff.
	ApplyOrderDiff(ctx context.Context, exchange string, toAdd []domain.Order, toRemove []string) error
	// OrderIDs returns the stored order ids for one exchange.
	OrderIDs(ctx context.Context, exchange string) (map[string]struct{}, error)
	// Orders returns stored orders, optionally filtered by exchange
	// (empty string means all).
	Orders(ctx context.Context, exchange string) ([]domain.Order, error)
}

// PriceRepository stores the last-fetch-wins price mirror.
type PriceRepository interface {
	// ReplacePrices atomically swaps one exchange's price rows for the
	// freshly fetched set.
	ReplacePrices(ctx context.Context, exchange string, prices map[string]decimal.Decimal) error
	// Prices returns all stored quotes.
	Prices(ctx context.Context) ([]domain.PriceQuote, error)
}

// HistoryRepository stores the filled-order ledger driving notifications.
type HistoryRepository interface {
	// InsertHistory appends records that are not already present by
	// (id, exchange) with confirmed=0. Idempotent: repeated appearances
	// across cycles never duplicate rows. Returns how many rows were
	// actually inserted.
	InsertHistory(ctx context.Context, records []domain.HistoryRecord) (int64, error)
	// PendingHistory returns all unconfirmed records across exchanges.
	PendingHistory(ctx context.Context) ([]domain.HistoryRecord, error)
	// ConfirmHistory transitions one record's confirmed flag 0->1.
	// The transition is monotonic; confirming twice is a no-op.
	ConfirmHistory(ctx context.Context, id, exchange string) error
	// History returns all stored records.
	History(ctx context.Context) ([]domain.HistoryRecord, error)
	// PruneConfirmed deletes confirmed rows beyond the most recent keep
	// rows for one exchange. Pending rows are never touched.
	PruneConfirmed(ctx context.Context, exchange string, keep int) error
}

// Store bundles the four repositories backed by one database handle.
type Store interface {
	OrderRepository
	PriceRepository
	HistoryRepository
	TotalRepository
}

// TotalRepository stores the append-only total-value time series.
type TotalRepository interface {
	// AppendTotal records one point; existing points are never mutated.
	AppendTotal(ctx context.Context, exchange string, total decimal.Decimal, at time.Time) error
	// Totals returns the series for one exchange, oldest first.
	Totals(ctx context.Context, exchange string) ([]domain.TotalSnapshot, error)
}
