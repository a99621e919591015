package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

// stubStore serves canned rows and records the filters it was asked for.
type stubStore struct {
	orders        []domain.Order
	prices        []domain.PriceQuote
	history       []domain.HistoryRecord
	totals        []domain.TotalSnapshot
	err           error
	orderFilter   string
	totalExchange string
}

func (s *stubStore) ApplyOrderDiff(ctx context.Context, exchange string, toAdd []domain.Order, toRemove []string) error {
	return nil
}

func (s *stubStore) OrderIDs(ctx context.Context, exchange string) (map[string]struct{}, error) {
	return nil, nil
}

func (s *stubStore) Orders(ctx context.Context, exchange string) ([]domain.Order, error) {
	s.orderFilter = exchange
	return s.orders, s.err
}

func (s *stubStore) ReplacePrices(ctx context.Context, exchange string, prices map[string]decimal.Decimal) error {
	return nil
}

func (s *stubStore) Prices(ctx context.Context) ([]domain.PriceQuote, error) {
	return s.prices, s.err
}

func (s *stubStore) InsertHistory(ctx context.Context, records []domain.HistoryRecord) (int64, error) {
	return 0, nil
}

func (s *stubStore) PendingHistory(ctx context.Context) ([]domain.HistoryRecord, error) {
	pending := make([]domain.HistoryRecord, 0)
	for _, rec := range s.history {
		if !rec.Confirmed {
			pending = append(pending, rec)
		}
	}
	return pending, s.err
}

func (s *stubStore) History(ctx context.Context) ([]domain.HistoryRecord, error) {
	return s.history, s.err
}

func (s *stubStore) ConfirmHistory(ctx context.Context, id, exchange string) error { return nil }

func (s *stubStore) PruneConfirmed(ctx context.Context, exchange string, keep int) error { return nil }

func (s *stubStore) AppendTotal(ctx context.Context, exchange string, total decimal.Decimal, at time.Time) error {
	return nil
}

func (s *stubStore) Totals(ctx context.Context, exchange string) ([]domain.TotalSnapshot, error) {
	s.totalExchange = exchange
	return s.totals, s.err
}

func newTestServer(t *testing.T, store ports.Store) *httptest.Server {
	t.Helper()
	server, err := NewServer(Config{Addr: "127.0.0.1:0", Store: store, Logger: &mockLogger{}})
	require.NoError(t, err)
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Config{Addr: ":8080", Logger: &mockLogger{}})
	assert.Error(t, err)

	_, err = NewServer(Config{Store: &stubStore{}, Logger: &mockLogger{}})
	assert.Error(t, err, "listen address is required")
}

func TestOrdersEndpoint(t *testing.T) {
	store := &stubStore{orders: []domain.Order{{
		ID:       "1",
		Exchange: "hitbtc",
		Symbol:   "ethbtc",
		Side:     domain.Buy,
		Price:    decimal.RequireFromString("0.05000000"),
		Quantity: decimal.RequireFromString("1"),
	}}}
	srv := newTestServer(t, store)

	var got []map[string]interface{}
	status := getJSON(t, srv.URL+"/orders?exchange=hitbtc", &got)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hitbtc", store.orderFilter, "exchange query parameter is passed through")
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0]["id"])
	assert.Equal(t, "0.05000000", got[0]["price"], "prices are rendered as exact strings")
}

func TestHistoryEndpoints(t *testing.T) {
	store := &stubStore{history: []domain.HistoryRecord{
		{ID: "1", Exchange: "hitbtc", Symbol: "ethbtc", Side: domain.Sell,
			Price: decimal.RequireFromString("0.05"), Quantity: decimal.RequireFromString("2"), Confirmed: true},
		{ID: "2", Exchange: "hitbtc", Symbol: "ethbtc", Side: domain.Buy,
			Price: decimal.RequireFromString("0.04"), Quantity: decimal.RequireFromString("1")},
	}}
	srv := newTestServer(t, store)

	var all []map[string]interface{}
	status := getJSON(t, srv.URL+"/history", &all)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, all, 2)

	var pending []map[string]interface{}
	status = getJSON(t, srv.URL+"/history/pending", &pending)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, pending, 1)
	assert.Equal(t, "2", pending[0]["id"])
	assert.Equal(t, false, pending[0]["confirmed"])
}

func TestTotalsEndpoint(t *testing.T) {
	store := &stubStore{totals: []domain.TotalSnapshot{{
		Date:     time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Exchange: "hitbtc",
		Total:    decimal.RequireFromString("1.5"),
	}}}
	srv := newTestServer(t, store)

	var got []map[string]interface{}
	status := getJSON(t, srv.URL+"/totals/hitbtc", &got)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hitbtc", store.totalExchange)
	require.Len(t, got, 1)
	assert.Equal(t, "2026-08-30T12:00:00Z", got[0]["date"])
	assert.Equal(t, "1.5", got[0]["total"])
}

func TestStoreErrorReportedAs500(t *testing.T) {
	store := &stubStore{err: ports.ErrQueryFailed}
	srv := newTestServer(t, store)

	var got map[string]string
	status := getJSON(t, srv.URL+"/prices", &got)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "storage query failed", got["error"])
}
