package hitbtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"coinwatch/internal/domain"
	"coinwatch/internal/ports"
)

const defaultBaseURL = "https://api.hitbtc.com"

// Client implements ports.ExchangeClient against the HitBTC API v2.
// Authentication is HTTP basic auth with the API key pair; responses are
// JSON arrays that normalize() maps into canonical domain records.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	logger     ports.Logger
}

// Config holds configuration specific to the HitBTC client adapter.
type Config struct {
	Name      string // Configured exchange name; defaults to "hitbtc"
	BaseURL   string
	APIKey    string
	APISecret string
	Logger    ports.Logger
}

// New creates a new HitBTC client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for HitBTC client")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("HitBTC API credentials are required: %w", ports.ErrConfigurationError)
	}
	name := cfg.Name
	if name == "" {
		name = "hitbtc"
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		name:      name,
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		// Per-call deadlines come from the caller's context; the
		// transport itself stays unbounded.
		httpClient: &http.Client{},
		logger:     cfg.Logger,
	}, nil
}

// Name returns the configured exchange name.
func (c *Client) Name() string { return c.name }

// Close releases idle connections held by the transport.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// --- Wire DTOs ---

type rawBalance struct {
	Currency  string `json:"currency"`
	Available string `json:"available"`
	Reserved  string `json:"reserved"`
}

type rawOrder struct {
	ID            int64  `json:"id"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Status        string `json:"status"`
	Quantity      string `json:"quantity"`
	CumQuantity   string `json:"cumQuantity"`
	Price         string `json:"price"`
	UpdatedAt     string `json:"updatedAt"`
}

type rawTicker struct {
	Symbol string `json:"symbol"`
	Last   string `json:"last"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Requests ---

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	return c.do(req, path, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, operation string, out interface{}) error {
	req.SetBasicAuth(c.apiKey, c.apiSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classifyTransportError(req.Context(), err, operation)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w: %w", operation, ports.ErrConnectionFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return c.classifyStatus(resp.StatusCode, body, operation)
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Warn(req.Context(), "Unparseable exchange payload", map[string]interface{}{
			"exchange": c.name, "operation": operation, "status": resp.StatusCode,
		})
		return fmt.Errorf("%s: %w: %w", operation, ports.ErrMalformedResponse, err)
	}
	return nil
}

func (c *Client) classifyTransportError(ctx context.Context, err error, operation string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w: %w", operation, ports.ErrContextCanceled, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w: %w", operation, ports.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", operation, ports.ErrConnectionFailed, err)
}

func (c *Client) classifyStatus(status int, body []byte, operation string) error {
	var sentinel error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		sentinel = ports.ErrAuthenticationFailed
	case status == http.StatusTooManyRequests:
		sentinel = ports.ErrRateLimited
	case status >= 500:
		sentinel = ports.ErrExchangeUnavailable
	default:
		sentinel = ports.ErrUnknown
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("%s: %w: code %d: %s", operation, sentinel, apiErr.Error.Code, apiErr.Error.Message)
	}
	return fmt.Errorf("%s: %w: http status %d", operation, sentinel, status)
}

// --- ExchangeClient operations ---

// GetBalance returns currencies with a positive available or reserved
// balance, keyed by canonical currency code.
func (c *Client) GetBalance(ctx context.Context) (domain.Balances, error) {
	var raw []rawBalance
	if err := c.get(ctx, "/api/2/trading/balance", nil, &raw); err != nil {
		return nil, err
	}

	balances := make(domain.Balances)
	for _, b := range raw {
		available, err := decimal.NewFromString(b.Available)
		if err != nil {
			return nil, fmt.Errorf("get balance: invalid available %q for %s: %w: %w", b.Available, b.Currency, ports.ErrMalformedResponse, err)
		}
		reserved, err := decimal.NewFromString(b.Reserved)
		if err != nil {
			return nil, fmt.Errorf("get balance: invalid reserved %q for %s: %w: %w", b.Reserved, b.Currency, ports.ErrMalformedResponse, err)
		}
		bal := domain.Balance{Available: available, Reserved: reserved}
		if bal.IsZero() {
			continue
		}
		balances[domain.CanonicalCurrency(b.Currency)] = bal
	}
	return balances, nil
}

// GetOrders returns the currently open orders keyed by order id.
func (c *Client) GetOrders(ctx context.Context) (map[string]domain.Order, error) {
	var raw []rawOrder
	if err := c.get(ctx, "/api/2/order", nil, &raw); err != nil {
		return nil, err
	}

	orders := make(map[string]domain.Order, len(raw))
	for _, r := range raw {
		o, err := c.normalizeOrder(r)
		if err != nil {
			return nil, err
		}
		orders[o.ID] = o
	}
	return orders, nil
}

// GetHistory returns the most recent filled orders, newest first.
func (c *Client) GetHistory(ctx context.Context, limit int) ([]domain.Order, error) {
	params := url.Values{}
	params.Set("sort", "desc")
	params.Set("limit", strconv.Itoa(limit))

	var raw []rawOrder
	if err := c.get(ctx, "/api/2/history/order", params, &raw); err != nil {
		return nil, err
	}

	history := make([]domain.Order, 0, len(raw))
	for _, r := range raw {
		o, err := c.normalizeOrder(r)
		if err != nil {
			return nil, err
		}
		if !o.IsFilled() {
			continue
		}
		history = append(history, o)
	}
	return history, nil
}

// GetPrices returns the last price for every quoted symbol.
func (c *Client) GetPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	var raw []rawTicker
	if err := c.get(ctx, "/api/2/public/ticker/", nil, &raw); err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal, len(raw))
	for _, t := range raw {
		if t.Symbol == "" || t.Last == "" {
			continue
		}
		last, err := decimal.NewFromString(t.Last)
		if err != nil {
			return nil, fmt.Errorf("get prices: invalid last price %q for %s: %w: %w", t.Last, t.Symbol, ports.ErrMalformedResponse, err)
		}
		prices[domain.CanonicalSymbol(t.Symbol)] = last
	}
	return prices, nil
}

// GetData fetches balance, orders, history and prices and computes the
// account total in the given base currency.
func (c *Client) GetData(ctx context.Context, base string) (*domain.AccountSnapshot, error) {
	balances, err := c.GetBalance(ctx)
	if err != nil {
		return nil, err
	}
	orders, err := c.GetOrders(ctx)
	if err != nil {
		return nil, err
	}
	history, err := c.GetHistory(ctx, defaultHistoryLimit)
	if err != nil {
		return nil, err
	}
	prices, err := c.GetPrices(ctx)
	if err != nil {
		return nil, err
	}

	total, missing := domain.TotalValue(balances, prices, base)
	if len(missing) > 0 {
		c.logger.Warn(ctx, "No price for some balance currencies, contribution counted as zero", map[string]interface{}{
			"exchange": c.name, "base": base, "currencies": missing,
		})
	}

	return &domain.AccountSnapshot{
		Exchange: c.name,
		Balances: balances,
		Orders:   orders,
		History:  history,
		Prices:   prices,
		Total:    total,
	}, nil
}

const defaultHistoryLimit = 20

// NewOrder places a limit order and returns the exchange-assigned id.
func (c *Client) NewOrder(ctx context.Context, symbol string, side domain.Side, quantity, price decimal.Decimal) (string, error) {
	form := url.Values{}
	form.Set("symbol", strings.ToUpper(symbol))
	form.Set("side", string(side))
	form.Set("quantity", quantity.String())
	form.Set("price", price.String())

	var raw rawOrder
	if err := c.postForm(ctx, "/api/2/order", form, &raw); err != nil {
		return "", fmt.Errorf("%w: %w", ports.ErrOrderPlacementFailed, err)
	}
	if raw.ID == 0 && raw.ClientOrderID == "" {
		return "", fmt.Errorf("new order: empty ack: %w", ports.ErrMalformedResponse)
	}
	if raw.ID != 0 {
		return strconv.FormatInt(raw.ID, 10), nil
	}
	return raw.ClientOrderID, nil
}

// --- Normalization ---

// normalizeOrder maps a raw HitBTC order into the canonical record: symbol
// case-folded, side mapped onto the domain constants, status collapsed into
// the four canonical states. An order with no remaining quantity counts as
// filled even when the exchange still reports another status.
func (c *Client) normalizeOrder(r rawOrder) (domain.Order, error) {
	quantity, err := decimal.NewFromString(r.Quantity)
	if err != nil {
		return domain.Order{}, fmt.Errorf("normalize order %d: invalid quantity %q: %w: %w", r.ID, r.Quantity, ports.ErrMalformedResponse, err)
	}
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return domain.Order{}, fmt.Errorf("normalize order %d: invalid price %q: %w: %w", r.ID, r.Price, ports.ErrMalformedResponse, err)
	}

	var side domain.Side
	switch strings.ToLower(r.Side) {
	case "buy":
		side = domain.Buy
	case "sell":
		side = domain.Sell
	default:
		return domain.Order{}, fmt.Errorf("normalize order %d: unknown side %q: %w", r.ID, r.Side, ports.ErrMalformedResponse)
	}

	status := normalizeStatus(r.Status)
	if status != domain.StatusFilled && r.CumQuantity != "" {
		cum, err := decimal.NewFromString(r.CumQuantity)
		if err == nil && !quantity.IsZero() && cum.Equal(quantity) {
			status = domain.StatusFilled
		}
	}

	id := strconv.FormatInt(r.ID, 10)
	if r.ID == 0 {
		id = r.ClientOrderID
	}

	var asOf time.Time
	if r.UpdatedAt != "" {
		if t, err := time.Parse(time.RFC3339, r.UpdatedAt); err == nil {
			asOf = t
		}
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	return domain.Order{
		ID:       id,
		Exchange: c.name,
		Symbol:   domain.CanonicalSymbol(r.Symbol),
		Side:     side,
		Quantity: quantity,
		Price:    price,
		Status:   status,
		AsOf:     asOf,
	}, nil
}

func normalizeStatus(status string) domain.OrderStatus {
	switch strings.ToLower(status) {
	case "filled":
		return domain.StatusFilled
	case "partiallyfilled":
		return domain.StatusPartial
	case "canceled", "cancelled", "expired":
		return domain.StatusCancelled
	default:
		return domain.StatusOpen
	}
}
