package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"coinwatch/internal/domain"
	"coinwatch/internal/ports"
)

// Server exposes the persisted state as a read-only JSON API for dashboard
// consumers. It only ever reads the store; it never triggers a fetch and
// never observes a half-applied diff (the per-exchange transaction boundary
// guarantees that).
type Server struct {
	store  ports.Store
	logger ports.Logger
	http   *http.Server
}

// Config holds configuration for the web server.
type Config struct {
	Addr   string
	Store  ports.Store
	Logger ports.Logger
}

// NewServer creates the read API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for web server")
	}
	if cfg.Addr == "" {
		return nil, fmt.Errorf("listen address is required for web server")
	}

	s := &Server{store: cfg.Store, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/orders", s.handleOrders)
	r.Get("/prices", s.handlePrices)
	r.Get("/history", s.handleHistory)
	r.Get("/history/pending", s.handlePendingHistory)
	r.Get("/totals/{exchange}", s.handleTotals)

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Start serves until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Read API listening", map[string]interface{}{"addr": s.http.Addr})
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("read API server failed: %w", err)
	}
}

// Handler returns the underlying handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// --- Response shapes ---

type orderResponse struct {
	ID       string `json:"id"`
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

type priceResponse struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
	Price    string `json:"price"`
}

type historyResponse struct {
	ID        string `json:"id"`
	Exchange  string `json:"exchange"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
	Confirmed bool   `json:"confirmed"`
}

type totalResponse struct {
	Date     string `json:"date"`
	Exchange string `json:"exchange"`
	Total    string `json:"total"`
}

func toOrderResponses(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderResponse{
			ID:       o.ID,
			Exchange: o.Exchange,
			Symbol:   o.Symbol,
			Side:     string(o.Side),
			Price:    o.Price.String(),
			Quantity: o.Quantity.String(),
		})
	}
	return out
}

func toHistoryResponses(records []domain.HistoryRecord) []historyResponse {
	out := make([]historyResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, historyResponse{
			ID:        rec.ID,
			Exchange:  rec.Exchange,
			Symbol:    rec.Symbol,
			Side:      string(rec.Side),
			Price:     rec.Price.String(),
			Quantity:  rec.Quantity.String(),
			Confirmed: rec.Confirmed,
		})
	}
	return out
}

// --- Handlers ---

// handleOrders returns stored open orders; ?exchange= filters to one.
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.store.Orders(r.Context(), r.URL.Query().Get("exchange"))
	if err != nil {
		s.writeStoreError(w, r, err, "list orders")
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	quotes, err := s.store.Prices(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err, "list prices")
		return
	}
	out := make([]priceResponse, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, priceResponse{Exchange: q.Exchange, Symbol: q.Symbol, Price: q.Price.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.History(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err, "list history")
		return
	}
	writeJSON(w, http.StatusOK, toHistoryResponses(records))
}

func (s *Server) handlePendingHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.PendingHistory(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err, "list pending history")
		return
	}
	writeJSON(w, http.StatusOK, toHistoryResponses(records))
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	exchange := chi.URLParam(r, "exchange")
	snapshots, err := s.store.Totals(r.Context(), exchange)
	if err != nil {
		s.writeStoreError(w, r, err, "list totals")
		return
	}
	out := make([]totalResponse, 0, len(snapshots))
	for _, snap := range snapshots {
		out = append(out, totalResponse{
			Date:     snap.Date.UTC().Format(time.RFC3339),
			Exchange: snap.Exchange,
			Total:    snap.Total.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	s.logger.Error(r.Context(), err, "Read API query failed", map[string]interface{}{"operation": operation})
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage query failed"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
