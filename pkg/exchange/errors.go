package exchange

import (
	"errors"
	"fmt"
)

// Common error variables exchange clients may return
var (
	// ErrOrderNotFound is returned when an order id is unknown to the exchange
	ErrOrderNotFound = errors.New("order not found")

	// ErrUnsupportedFeature is returned when an exchange does not support
	// a requested capability (e.g. OHLCV fetching)
	ErrUnsupportedFeature = errors.New("feature not supported by exchange")

	// ErrInvalidSymbol is returned when an invalid trading pair symbol is provided
	ErrInvalidSymbol = errors.New("invalid trading pair symbol")
)

// NetworkError wraps a transport-layer failure: timeouts, resets, DNS.
// Network errors are transient and eligible for retry.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// NewNetworkError wraps err as a transient network failure.
func NewNetworkError(err error) error {
	return &NetworkError{Err: err}
}

// ExchangeError wraps an exchange-side failure that is expected to clear
// on its own: rate limit rejections, maintenance windows, 5xx responses.
// Exchange errors are transient and eligible for retry. Validation
// failures (bad symbol, bad parameters) must NOT be wrapped in it.
type ExchangeError struct {
	Exchange string
	Err      error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("%s exchange error: %v", e.Exchange, e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// NewExchangeError wraps err as a transient exchange-side failure.
func NewExchangeError(exchange string, err error) error {
	return &ExchangeError{Exchange: exchange, Err: err}
}

// IsTransient reports whether err is a retryable transport or exchange
// error. Anything else is treated as a logical error and surfaced to the
// caller without retry.
func IsTransient(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var exErr *ExchangeError
	return errors.As(err, &exErr)
}
