// Package exchange defines the unified surface the bridge expects from an
// exchange connectivity library. The Client interface mirrors the unified
// REST vocabulary most crypto exchange SDKs expose (balance, OHLCV,
// order CRUD, positions, order book) plus an escape hatch for venue
// specific endpoints that the unified surface does not cover.
//
// Implementations handle authentication, transport and data
// normalization; the bridge layers retry, rate limiting and caching on
// top in pkg/store.
package exchange

import (
	"context"
	"time"
)

// Feature names understood by Client.Has.
const (
	FeatureFetchOHLCV = "fetchOHLCV"
	FeatureWebsocket  = "ws"
)

// Client is the outbound interface to one exchange account.
//
// Calls are plain request/response; they are not retried here. The store
// wraps every call with its retry and rate limit policy, which relies on
// implementations returning NetworkError/ExchangeError wrappers for
// transient failures so they can be told apart from validation errors.
type Client interface {
	// Name returns the exchange identity, e.g. "binance" or "kraken".
	// It selects default status mappings and order translators.
	Name() string

	// RateLimit returns the minimum interval between requests the
	// exchange advertises.
	RateLimit() time.Duration

	// Timeframes lists the granularity codes the exchange supports
	// ("1m", "4h", "1d", ...). An empty slice means no published list
	// and any code may be attempted.
	Timeframes() []string

	// Has reports whether the exchange supports a named feature.
	Has(feature string) bool

	// Authenticated reports whether the client carries credentials.
	// Unauthenticated clients can only use public market data calls.
	Authenticated() bool

	FetchBalance(ctx context.Context, params map[string]any) (Balance, error)
	FetchOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int, params map[string]any) ([]OHLCV, error)
	FetchOrderBook(ctx context.Context, symbol string, limit int) (OrderBook, error)
	FetchTrades(ctx context.Context, symbol string, since int64, limit int) ([]Trade, error)

	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
	EditOrder(ctx context.Context, id, symbol string, req OrderRequest) (Order, error)
	CancelOrder(ctx context.Context, id, symbol string) (Order, error)
	FetchOrder(ctx context.Context, id, symbol string, params map[string]any) (Order, error)
	FetchOrders(ctx context.Context, symbol string, since int64, limit int) ([]Order, error)
	FetchOpenOrders(ctx context.Context, symbol string, since int64, limit int) ([]Order, error)
	FetchClosedOrders(ctx context.Context, symbol string, since int64, limit int) ([]Order, error)
	FetchPositions(ctx context.Context, symbols []string, params map[string]any) ([]Position, error)

	// CallEndpoint invokes an arbitrary named public or private endpoint
	// with raw parameters and returns the unparsed response document.
	CallEndpoint(ctx context.Context, name string, params map[string]any) (map[string]any, error)
}

// OrderRequest carries the fields of a create/edit order call.
type OrderRequest struct {
	Symbol string
	Type   string // exchange order type string, already translated
	Side   Side
	Amount float64
	Price  float64
	Params map[string]any // venue specific extras, may be nil
}

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)
