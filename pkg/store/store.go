// Package store owns the connectivity to one exchange account. A Store
// is a process-wide singleton per (exchange, account): feeds and
// brokers share it, so the rate-limit budget is consumed once and the
// push channel is subscribed once. Every exchange call is routed
// through a retrying transport; order and position reads can be served
// from push-channel caches when a stream is enabled.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/veiloq/exchange-bridge/pkg/exchange"
	"github.com/veiloq/exchange-bridge/pkg/logging"
	"github.com/veiloq/exchange-bridge/pkg/ratelimit"
	"github.com/veiloq/exchange-bridge/pkg/transport"
	"github.com/veiloq/exchange-bridge/pkg/websocket"
)

// Options configures a Store.
type Options struct {
	// Account distinguishes stores for the same exchange under
	// different credentials.
	Account string

	// Currency is the account currency used for cash/value tracking.
	Currency string

	// Retries is the per-operation attempt budget.
	Retries int

	// Optional logger
	Logger logging.Logger
}

// NewOptions returns default store options.
func NewOptions() *Options {
	return &Options{
		Retries: 5,
		Logger:  logging.NewLogger(),
	}
}

// Store is the shared view of exchange state for one account.
type Store struct {
	client exchange.Client
	opts   *Options
	caller *transport.Caller
	logger logging.Logger

	balMu sync.RWMutex
	cash  float64
	value float64

	source orderSource
	stream *stream
}

var (
	registryMu sync.Mutex
	registry   = make(map[string]*Store)
)

// ForAccount returns the Store for (client.Name(), opts.Account),
// creating it on first call. Redundant calls return the existing
// instance; the construction is guarded so concurrent first access from
// feed and broker setup cannot create two stores. When the client is
// authenticated the initial balance snapshot is fetched eagerly.
func ForAccount(ctx context.Context, client exchange.Client, opts *Options) (*Store, error) {
	if opts == nil {
		opts = NewOptions()
	}

	key := client.Name() + "/" + opts.Account

	registryMu.Lock()
	defer registryMu.Unlock()

	if s, ok := registry[key]; ok {
		return s, nil
	}

	s, err := newStore(ctx, client, opts)
	if err != nil {
		return nil, err
	}
	registry[key] = s
	return s, nil
}

// ResetRegistry drops all registered stores. It exists for test
// harnesses that construct fresh stores per case; applications have no
// reason to call it.
func ResetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]*Store)
}

func newStore(ctx context.Context, client exchange.Client, opts *Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger()
	}
	logger = logger.WithFields(logging.String("exchange", client.Name()))

	retries := opts.Retries
	if retries <= 0 {
		retries = 5
	}

	cfg := &transport.Config{
		Attempts: uint(retries),
		Delay:    client.RateLimit(),
		Logger:   logger,
	}
	if interval := client.RateLimit(); interval > 0 {
		cfg.RateLimit = ratelimit.Rate{Limit: 1, Interval: interval}
	}

	s := &Store{
		client: client,
		opts:   opts,
		caller: transport.NewCaller(cfg),
		logger: logger,
	}
	s.source = &restSource{s: s}

	if client.Authenticated() {
		if _, _, err := s.Balance(ctx, nil); err != nil {
			return nil, fmt.Errorf("initial balance fetch failed: %w", err)
		}
	}

	return s, nil
}

// Client exposes the underlying exchange client for the escape hatch
// paths that need metadata (name, capabilities).
func (s *Store) Client() exchange.Client { return s.client }

// RateLimit returns the exchange's minimum inter-request interval.
func (s *Store) RateLimit() time.Duration { return s.client.RateLimit() }

// EnableStream connects the push channel and switches order/position
// reads to the cache-first source. The channel's callbacks only touch
// the stream caches; they never reach into feed or broker state.
func (s *Store) EnableStream(ctx context.Context, ws websocket.WSConnector) error {
	if !s.client.Has(exchange.FeatureWebsocket) {
		return fmt.Errorf("%q exchange: %w", s.client.Name(), exchange.ErrUnsupportedFeature)
	}
	if s.stream != nil {
		return nil
	}

	st, err := newStream(ctx, ws, s.logger)
	if err != nil {
		return err
	}
	s.stream = st
	s.source = &streamSource{cache: st.cache, rest: &restSource{s: s}}
	return nil
}

// Balance fetches the account balance, updates the cached cash/value
// figures for the configured currency and returns them. A currency
// missing from the response reads as zero.
func (s *Store) Balance(ctx context.Context, params map[string]any) (cash, value float64, err error) {
	var bal exchange.Balance
	err = s.caller.Call(ctx, "fetch balance", func(ctx context.Context) error {
		var callErr error
		bal, callErr = s.client.FetchBalance(ctx, params)
		return callErr
	})
	if err != nil {
		return 0, 0, err
	}

	cash = bal.FreeOf(s.opts.Currency)
	value = bal.TotalOf(s.opts.Currency)

	s.balMu.Lock()
	s.cash = cash
	s.value = value
	s.balMu.Unlock()

	return cash, value, nil
}

// WalletBalance fetches a balance snapshot for an arbitrary currency
// with optional venue parameters (margin wallets and the like). It does
// not touch the cached account figures.
func (s *Store) WalletBalance(ctx context.Context, currency string, params map[string]any) (cash, value float64, err error) {
	var bal exchange.Balance
	err = s.caller.Call(ctx, "fetch wallet balance", func(ctx context.Context) error {
		var callErr error
		bal, callErr = s.client.FetchBalance(ctx, params)
		return callErr
	})
	if err != nil {
		return 0, 0, err
	}
	return bal.FreeOf(currency), bal.TotalOf(currency), nil
}

// Cash returns the cached free balance. No network round trip.
func (s *Store) Cash() float64 {
	s.balMu.RLock()
	defer s.balMu.RUnlock()
	return s.cash
}

// Value returns the cached total balance. No network round trip.
func (s *Store) Value() float64 {
	s.balMu.RLock()
	defer s.balMu.RUnlock()
	return s.value
}

// FetchOHLCV retrieves one page of bars starting at since (ms).
func (s *Store) FetchOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int, params map[string]any) ([]exchange.OHLCV, error) {
	var rows []exchange.OHLCV
	err := s.caller.Call(ctx, "fetch ohlcv", func(ctx context.Context) error {
		var callErr error
		rows, callErr = s.client.FetchOHLCV(ctx, symbol, timeframe, since, limit, params)
		return callErr
	})
	return rows, err
}

// FetchOrderBook retrieves a depth snapshot.
func (s *Store) FetchOrderBook(ctx context.Context, symbol string, limit int) (exchange.OrderBook, error) {
	var book exchange.OrderBook
	err := s.caller.Call(ctx, "fetch order book", func(ctx context.Context) error {
		var callErr error
		book, callErr = s.client.FetchOrderBook(ctx, symbol, limit)
		return callErr
	})
	return book, err
}

// FetchTrades retrieves recent public trades for a symbol.
func (s *Store) FetchTrades(ctx context.Context, symbol string, since int64, limit int) ([]exchange.Trade, error) {
	var trades []exchange.Trade
	err := s.caller.Call(ctx, "fetch trades", func(ctx context.Context) error {
		var callErr error
		trades, callErr = s.client.FetchTrades(ctx, symbol, since, limit)
		return callErr
	})
	return trades, err
}

// CreateOrder submits an order and returns the creation response.
func (s *Store) CreateOrder(ctx context.Context, req exchange.OrderRequest) (exchange.Order, error) {
	var order exchange.Order
	err := s.caller.Call(ctx, "create order", func(ctx context.Context) error {
		var callErr error
		order, callErr = s.client.CreateOrder(ctx, req)
		return callErr
	})
	return order, err
}

// EditOrder amends an existing order.
func (s *Store) EditOrder(ctx context.Context, id, symbol string, req exchange.OrderRequest) (exchange.Order, error) {
	var order exchange.Order
	err := s.caller.Call(ctx, "edit order", func(ctx context.Context) error {
		var callErr error
		order, callErr = s.client.EditOrder(ctx, id, symbol, req)
		return callErr
	})
	return order, err
}

// CancelOrder cancels an order and returns the exchange's response
// document for status evaluation.
func (s *Store) CancelOrder(ctx context.Context, id, symbol string) (exchange.Order, error) {
	var order exchange.Order
	err := s.caller.Call(ctx, "cancel order", func(ctx context.Context) error {
		var callErr error
		order, callErr = s.client.CancelOrder(ctx, id, symbol)
		return callErr
	})
	return order, err
}

// FetchOrder reads one order. With a stream enabled the push-channel
// cache answers first and only a miss falls through to REST. A
// conditional (stop) order is addressed with an empty id and a
// "stop_order_id" entry in params.
func (s *Store) FetchOrder(ctx context.Context, id, symbol string, params map[string]any) (exchange.Order, error) {
	return s.source.fetchOrder(ctx, id, symbol, params)
}

// FetchPositions lists open positions, served from the push-channel
// cache when one is populated.
func (s *Store) FetchPositions(ctx context.Context, symbols []string, params map[string]any) ([]exchange.Position, error) {
	return s.source.fetchPositions(ctx, symbols, params)
}

// FetchOrders lists orders for a symbol.
func (s *Store) FetchOrders(ctx context.Context, symbol string, since int64, limit int) ([]exchange.Order, error) {
	var orders []exchange.Order
	err := s.caller.Call(ctx, "fetch orders", func(ctx context.Context) error {
		var callErr error
		orders, callErr = s.client.FetchOrders(ctx, symbol, since, limit)
		return callErr
	})
	return orders, err
}

// FetchOpenOrders lists open orders for a symbol.
func (s *Store) FetchOpenOrders(ctx context.Context, symbol string, since int64, limit int) ([]exchange.Order, error) {
	var orders []exchange.Order
	err := s.caller.Call(ctx, "fetch open orders", func(ctx context.Context) error {
		var callErr error
		orders, callErr = s.client.FetchOpenOrders(ctx, symbol, since, limit)
		return callErr
	})
	return orders, err
}

// FetchClosedOrders lists closed orders for a symbol.
func (s *Store) FetchClosedOrders(ctx context.Context, symbol string, since int64, limit int) ([]exchange.Order, error) {
	var orders []exchange.Order
	err := s.caller.Call(ctx, "fetch closed orders", func(ctx context.Context) error {
		var callErr error
		orders, callErr = s.client.FetchClosedOrders(ctx, symbol, since, limit)
		return callErr
	})
	return orders, err
}

// CallEndpoint invokes an arbitrary named exchange endpoint with raw
// parameters. Escape hatch for venue functionality the unified surface
// does not cover.
func (s *Store) CallEndpoint(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	var result map[string]any
	err := s.caller.Call(ctx, "call endpoint "+name, func(ctx context.Context) error {
		var callErr error
		result, callErr = s.client.CallEndpoint(ctx, name, params)
		return callErr
	})
	return result, err
}
