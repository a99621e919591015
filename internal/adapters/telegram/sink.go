package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"coinwatch/internal/ports"
)

const defaultAPIURL = "https://api.telegram.org"

// Sink implements ports.NotificationSink over the Telegram bot sendMessage
// call, optionally routed through an anonymizing proxy. A message counts as
// delivered only when the response parses and carries ok=true; a send that
// reached Telegram but returned an unreadable acknowledgment is reported as
// failed and will be retried, so duplicates are possible.
type Sink struct {
	sendURL    string
	chatID     string
	httpClient *http.Client
	logger     ports.Logger
}

// Config holds configuration for the Telegram sink.
type Config struct {
	APIURL   string // Defaults to the public Telegram API
	Token    string
	ChatID   string
	ProxyURL string // Optional, e.g. "socks5://localhost:9050"
	Logger   ports.Logger
}

// New creates a Telegram notification sink.
func New(cfg Config) (*Sink, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Telegram sink")
	}
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram token and chat id are required: %w", ports.ErrConfigurationError)
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	httpClient := &http.Client{}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w: %w", cfg.ProxyURL, ports.ErrConfigurationError, err)
		}
		httpClient.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		cfg.Logger.Info(context.Background(), "Telegram sink routed through proxy", map[string]interface{}{"proxy": proxyURL.Scheme + "://" + proxyURL.Host})
	}

	return &Sink{
		sendURL:    fmt.Sprintf("%s/bot%s/sendMessage", apiURL, cfg.Token),
		chatID:     cfg.ChatID,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}, nil
}

type sendResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send dispatches one message and waits for the acknowledgment.
func (s *Sink) Send(ctx context.Context, text string) error {
	form := url.Values{}
	form.Set("chat_id", s.chatID)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.sendURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("sendMessage: %w: %w", ports.ErrTimeout, err)
		}
		return fmt.Errorf("sendMessage: %w: %w", ports.ErrDispatchFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("sendMessage: failed to read acknowledgment: %w: %w", ports.ErrDispatchFailed, err)
	}

	var ack sendResponse
	if err := json.Unmarshal(body, &ack); err != nil {
		// The message may have gone out; without a readable ack it
		// stays unacknowledged and will be resent.
		return fmt.Errorf("sendMessage: unparseable acknowledgment: %w: %w", ports.ErrDispatchFailed, err)
	}
	if !ack.OK {
		return fmt.Errorf("sendMessage: rejected: %s: %w", ack.Description, ports.ErrDispatchFailed)
	}
	return nil
}

// Disabled is a sink used when no notification endpoint is configured.
// Dispatch is skipped silently and every message counts as delivered.
type Disabled struct{}

// Send acknowledges without dispatching.
func (Disabled) Send(ctx context.Context, text string) error { return nil }
