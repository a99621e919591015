package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinwatch/internal/domain"
	"coinwatch/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// fakeStore is an in-memory ports.Store with injectable failures.
type fakeStore struct {
	mu      sync.Mutex
	orders  map[string]map[string]domain.Order // exchange -> id -> order
	prices  map[string]map[string]decimal.Decimal
	history []domain.HistoryRecord
	totals  []domain.TotalSnapshot

	failDiff    error
	failPrices  error
	failInsert  error
	failPending error
	failConfirm error

	diffCalls  int
	pruneCalls map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:     make(map[string]map[string]domain.Order),
		prices:     make(map[string]map[string]decimal.Decimal),
		pruneCalls: make(map[string]int),
	}
}

func (f *fakeStore) ApplyOrderDiff(ctx context.Context, exchange string, toAdd []domain.Order, toRemove []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDiff != nil {
		return f.failDiff
	}
	f.diffCalls++
	if f.orders[exchange] == nil {
		f.orders[exchange] = make(map[string]domain.Order)
	}
	for _, o := range toAdd {
		f.orders[exchange][o.ID] = o
	}
	for _, id := range toRemove {
		delete(f.orders[exchange], id)
	}
	return nil
}

func (f *fakeStore) OrderIDs(ctx context.Context, exchange string) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make(map[string]struct{}, len(f.orders[exchange]))
	for id := range f.orders[exchange] {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (f *fakeStore) Orders(ctx context.Context, exchange string) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Order, 0)
	for ex, byID := range f.orders {
		if exchange != "" && ex != exchange {
			continue
		}
		for _, o := range byID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) ReplacePrices(ctx context.Context, exchange string, prices map[string]decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPrices != nil {
		return f.failPrices
	}
	fresh := make(map[string]decimal.Decimal, len(prices))
	for s, p := range prices {
		fresh[s] = p
	}
	f.prices[exchange] = fresh
	return nil
}

func (f *fakeStore) Prices(ctx context.Context) ([]domain.PriceQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.PriceQuote, 0)
	for ex, bySymbol := range f.prices {
		for s, p := range bySymbol {
			out = append(out, domain.PriceQuote{Exchange: ex, Symbol: s, Price: p})
		}
	}
	return out, nil
}

func (f *fakeStore) InsertHistory(ctx context.Context, records []domain.HistoryRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert != nil {
		return 0, f.failInsert
	}
	var inserted int64
	for _, rec := range records {
		if f.findHistory(rec.ID, rec.Exchange) >= 0 {
			continue
		}
		f.history = append(f.history, rec)
		inserted++
	}
	return inserted, nil
}

func (f *fakeStore) findHistory(id, exchange string) int {
	for i, rec := range f.history {
		if rec.ID == id && rec.Exchange == exchange {
			return i
		}
	}
	return -1
}

func (f *fakeStore) PendingHistory(ctx context.Context) ([]domain.HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPending != nil {
		return nil, f.failPending
	}
	out := make([]domain.HistoryRecord, 0)
	for _, rec := range f.history {
		if !rec.Confirmed {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) History(ctx context.Context) ([]domain.HistoryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.HistoryRecord(nil), f.history...), nil
}

func (f *fakeStore) ConfirmHistory(ctx context.Context, id, exchange string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failConfirm != nil {
		return f.failConfirm
	}
	i := f.findHistory(id, exchange)
	if i < 0 {
		return ports.ErrNotFound
	}
	f.history[i].Confirmed = true
	return nil
}

func (f *fakeStore) PruneConfirmed(ctx context.Context, exchange string, keep int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneCalls[exchange]++
	confirmed := 0
	for i := len(f.history) - 1; i >= 0; i-- {
		rec := f.history[i]
		if rec.Exchange != exchange || !rec.Confirmed {
			continue
		}
		confirmed++
		if confirmed > keep {
			f.history = append(f.history[:i], f.history[i+1:]...)
		}
	}
	return nil
}

func (f *fakeStore) AppendTotal(ctx context.Context, exchange string, total decimal.Decimal, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totals = append(f.totals, domain.TotalSnapshot{Date: at, Exchange: exchange, Total: total})
	return nil
}

func (f *fakeStore) Totals(ctx context.Context, exchange string) ([]domain.TotalSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TotalSnapshot, 0)
	for _, snap := range f.totals {
		if snap.Exchange == exchange {
			out = append(out, snap)
		}
	}
	return out, nil
}

func openOrder(id, exchange string) domain.Order {
	return domain.Order{
		ID:       id,
		Exchange: exchange,
		Symbol:   "ethbtc",
		Side:     domain.Buy,
		Price:    decimal.RequireFromString("0.05"),
		Quantity: decimal.RequireFromString("1"),
		Status:   domain.StatusOpen,
		AsOf:     time.Now().UTC(),
	}
}

func filledOrder(id, exchange string) domain.Order {
	o := openOrder(id, exchange)
	o.Side = domain.Sell
	o.Status = domain.StatusFilled
	return o
}

func snapshotOf(exchange string, orders ...domain.Order) *domain.AccountSnapshot {
	byID := make(map[string]domain.Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}
	return &domain.AccountSnapshot{Exchange: exchange, Orders: byID}
}

func TestReconciler_DiffByID(t *testing.T) {
	store := newFakeStore()
	r, err := NewReconciler(store, &mockLogger{})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, r.Apply(ctx, snapshotOf("hitbtc", openOrder("1", "hitbtc"), openOrder("2", "hitbtc"))))

	// Next cycle: 2 vanished, 3 appeared, 1 unchanged.
	require.NoError(t, r.Apply(ctx, snapshotOf("hitbtc", openOrder("1", "hitbtc"), openOrder("3", "hitbtc"))))

	ids, err := store.OrderIDs(ctx, "hitbtc")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "1")
	assert.Contains(t, ids, "3")
}

func TestReconciler_IdenticalSnapshotSkipsWrite(t *testing.T) {
	store := newFakeStore()
	r, err := NewReconciler(store, &mockLogger{})
	require.NoError(t, err)
	ctx := context.Background()

	snap := snapshotOf("hitbtc", openOrder("1", "hitbtc"))
	require.NoError(t, r.Apply(ctx, snap))
	require.Equal(t, 1, store.diffCalls)

	// Stored order 1 matches by id; a changed attribute does not trigger
	// a rewrite.
	changed := openOrder("1", "hitbtc")
	changed.Price = decimal.RequireFromString("0.06")
	require.NoError(t, r.Apply(ctx, snapshotOf("hitbtc", changed)))
	assert.Equal(t, 1, store.diffCalls, "id-identical snapshot must not issue a diff")
}

func TestReconciler_EmptyPricePayloadKeepsMirror(t *testing.T) {
	store := newFakeStore()
	r, err := NewReconciler(store, &mockLogger{})
	require.NoError(t, err)
	ctx := context.Background()

	snap := snapshotOf("hitbtc")
	snap.Prices = map[string]decimal.Decimal{"ethbtc": decimal.RequireFromString("0.05")}
	require.NoError(t, r.Apply(ctx, snap))

	// Empty payload is treated as a failed price fetch, not "no prices".
	require.NoError(t, r.Apply(ctx, snapshotOf("hitbtc")))

	quotes, err := store.Prices(ctx)
	require.NoError(t, err)
	assert.Len(t, quotes, 1)
}

func TestReconciler_InsertsFilledHistory(t *testing.T) {
	store := newFakeStore()
	r, err := NewReconciler(store, &mockLogger{})
	require.NoError(t, err)
	ctx := context.Background()

	snap := snapshotOf("hitbtc")
	snap.History = []domain.Order{filledOrder("10", "hitbtc"), openOrder("11", "hitbtc")}
	require.NoError(t, r.Apply(ctx, snap))

	records, err := store.History(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1, "non-filled orders never reach the ledger")
	assert.Equal(t, "10", records[0].ID)
	assert.False(t, records[0].Confirmed)

	// Same history next cycle: no duplicates.
	require.NoError(t, r.Apply(ctx, snap))
	records, err = store.History(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestReconciler_StoreFailurePropagates(t *testing.T) {
	store := newFakeStore()
	store.failDiff = ports.ErrTxFailed
	r, err := NewReconciler(store, &mockLogger{})
	require.NoError(t, err)

	err = r.Apply(context.Background(), snapshotOf("hitbtc", openOrder("1", "hitbtc")))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrTxFailed)
}
