package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"coinwatch/internal/domain"
	"coinwatch/internal/ports"
)

// Client implements the ports.ExchangeClient interface using the go-binance
// library against the spot API. Binance reports order history per symbol
// only, so GetHistory derives the symbols to query from the currencies that
// currently hold a balance, paired against the configured base currency.
type Client struct {
	name       string
	base       string
	spotClient *binance.Client
	logger     ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	Name         string // Configured exchange name; defaults to "binance"
	APIKey       string
	SecretKey    string
	BaseCurrency string // Quote currency used to derive history symbols
	Logger       ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("binance API credentials are required: %w", ports.ErrConfigurationError)
	}
	name := cfg.Name
	if name == "" {
		name = "binance"
	}
	base := domain.CanonicalCurrency(cfg.BaseCurrency)
	if base == "" {
		base = "BTC"
	}

	return &Client{
		name:       name,
		base:       base,
		spotClient: binance.NewClient(cfg.APIKey, cfg.SecretKey),
		logger:     cfg.Logger,
	}, nil
}

// Name returns the configured exchange name.
func (c *Client) Name() string { return c.name }

// Close is a no-op; the underlying SDK holds no persistent connections for
// the REST surface.
func (c *Client) Close() error { return nil }

// handleError translates common Binance API errors into standardized ports
// errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"exchange": c.name, "operation": operation}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022, -2014, -2015: // Bad signature / invalid API key or permissions
			mappedErr = ports.ErrAuthenticationFailed
		case -2010: // New order rejected
			mappedErr = ports.ErrOrderPlacementFailed
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "no such host") ||
		strings.Contains(err.Error(), "use of closed network connection") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}
	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// GetBalance returns currencies with a positive free or locked balance.
func (c *Client) GetBalance(ctx context.Context) (domain.Balances, error) {
	acct, err := c.spotClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, "GetBalance")
	}

	balances := make(domain.Balances)
	for _, b := range acct.Balances {
		available, err := decimal.NewFromString(b.Free)
		if err != nil {
			return nil, fmt.Errorf("GetBalance: invalid free amount %q for %s: %w: %w", b.Free, b.Asset, ports.ErrMalformedResponse, err)
		}
		reserved, err := decimal.NewFromString(b.Locked)
		if err != nil {
			return nil, fmt.Errorf("GetBalance: invalid locked amount %q for %s: %w: %w", b.Locked, b.Asset, ports.ErrMalformedResponse, err)
		}
		bal := domain.Balance{Available: available, Reserved: reserved}
		if bal.IsZero() {
			continue
		}
		balances[domain.CanonicalCurrency(b.Asset)] = bal
	}
	return balances, nil
}

// GetOrders returns the currently open orders keyed by order id.
func (c *Client) GetOrders(ctx context.Context) (map[string]domain.Order, error) {
	raw, err := c.spotClient.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, "GetOrders")
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

// GetHistory returns recent filled orders. Binance exposes order history
// per symbol only, so the symbols are derived from the currencies holding
// a balance, each paired against the base currency.
func (c *Client) GetHistory(ctx context.Context, limit int) ([]domain.Order, error) {
	balances, err := c.GetBalance(ctx)
	if err != nil {
		return nil, err
	}

	history := make([]domain.Order, 0)
	for currency := range balances {
		if currency == c.base {
			continue
		}
		symbol := currency + c.base
		raw, err := c.spotClient.NewListOrdersService().Symbol(symbol).Limit(limit).Do(ctx)
		if err != nil {
			// Not every held asset trades against the base; skip
			// unknown pairs, propagate everything else.
			var apiErr *common.APIError
			if errors.As(err, &apiErr) && apiErr.Code == -1121 {
				c.logger.Debug(ctx, "No trading pair for held asset", map[string]interface{}{
					"exchange": c.name, "symbol": symbol,
				})
				continue
			}
			return nil, c.handleError(ctx, err, "GetHistory")
		}
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
	}
	return history, nil
}

// GetPrices returns the last price for every quoted symbol.
func (c *Client) GetPrices(ctx context.Context) (map[string]decimal.Decimal, error) {
	raw, err := c.spotClient.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, "GetPrices")
	}

	prices := make(map[string]decimal.Decimal, len(raw))
	for _, p := range raw {
		last, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("GetPrices: invalid price %q for %s: %w: %w", p.Price, p.Symbol, ports.ErrMalformedResponse, err)
		}
		prices[domain.CanonicalSymbol(p.Symbol)] = last
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

// NewOrder places a GTC limit order and returns the exchange-assigned id.
func (c *Client) NewOrder(ctx context.Context, symbol string, side domain.Side, quantity, price decimal.Decimal) (string, error) {
	sideType := binance.SideTypeBuy
	if side == domain.Sell {
		sideType = binance.SideTypeSell
	}

	resp, err := c.spotClient.NewCreateOrderService().
		Symbol(strings.ToUpper(symbol)).
		Side(sideType).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(quantity.String()).
		Price(price.String()).
		Do(ctx)
	if err != nil {
		return "", c.handleError(ctx, err, "NewOrder")
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

// normalizeOrder maps a raw Binance spot order into the canonical record.
// An order whose executed quantity equals its original quantity counts as
// filled regardless of the reported status.
func (c *Client) normalizeOrder(r *binance.Order) (domain.Order, error) {
	quantity, err := decimal.NewFromString(r.OrigQuantity)
	if err != nil {
		return domain.Order{}, fmt.Errorf("normalize order %d: invalid quantity %q: %w: %w", r.OrderID, r.OrigQuantity, ports.ErrMalformedResponse, err)
	}
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return domain.Order{}, fmt.Errorf("normalize order %d: invalid price %q: %w: %w", r.OrderID, r.Price, ports.ErrMalformedResponse, err)
	}

	var side domain.Side
	switch r.Side {
	case binance.SideTypeBuy:
		side = domain.Buy
	case binance.SideTypeSell:
		side = domain.Sell
	default:
		return domain.Order{}, fmt.Errorf("normalize order %d: unknown side %q: %w", r.OrderID, r.Side, ports.ErrMalformedResponse)
	}

	status := normalizeStatus(r.Status)
	if status != domain.StatusFilled && r.ExecutedQuantity != "" {
		executed, err := decimal.NewFromString(r.ExecutedQuantity)
		if err == nil && !quantity.IsZero() && executed.Equal(quantity) {
			status = domain.StatusFilled
		}
	}

	asOf := time.Now().UTC()
	if r.UpdateTime > 0 {
		asOf = time.UnixMilli(r.UpdateTime).UTC()
	}

	return domain.Order{
		ID:       strconv.FormatInt(r.OrderID, 10),
		Exchange: c.name,
		Symbol:   domain.CanonicalSymbol(r.Symbol),
		Side:     side,
		Quantity: quantity,
		Price:    price,
		Status:   status,
		AsOf:     asOf,
	}, nil
}

func normalizeStatus(status binance.OrderStatusType) domain.OrderStatus {
	switch status {
	case binance.OrderStatusTypeFilled:
		return domain.StatusFilled
	case binance.OrderStatusTypePartiallyFilled:
		return domain.StatusPartial
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired, binance.OrderStatusTypeRejected:
		return domain.StatusCancelled
	default:
		return domain.StatusOpen
	}
}
