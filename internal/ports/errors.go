package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these sentinels so the
// scheduler can classify failures without knowing the exchange specifics.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrMalformedResponse    = errors.New("exchange returned an unparseable or unexpected payload")
	ErrOrderPlacementFailed = errors.New("failed to place order")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrTxFailed     = errors.New("database transaction failed")

	// Notification Errors
	ErrDispatchFailed = errors.New("notification dispatch failed")
)

// IsPermanent reports whether an exchange error should stop further polling
// of that client until it is reconfigured. Only rejected credentials
// qualify; everything else is retried on the next tick.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}
