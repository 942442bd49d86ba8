// Package exchange-bridge connects a trading engine to cryptocurrency
// exchange APIs. It turns the raw REST and websocket surface of an
// exchange into the three primitives an engine consumes: an account
// store, a bar feed, and an order broker.
//
// Core Features:
//
//   - Account stores shared per exchange and account, with cached
//     cash/value figures and bounded, rate-limited retries on every call
//   - Paginated historical candle download with deduplication, followed
//     by live polling from the same feed
//   - Order submission with authoritative readback, per-tick
//     reconciliation, fill tracking, and a local position ledger
//   - Configurable status mapping so venues that disagree on order-type
//     names and terminal statuses look the same to the engine
//   - Optional websocket push caches for orders and positions, consulted
//     before any REST round trip
//
// The bridge is organized around the exchange.Client interface, the
// seam to the venue connectivity layer. A store.Store wraps one
// authenticated client, a feed.Feed streams bars for one market, and a
// broker.Broker reconciles the in-flight orders of one account.
//
// # Standard Errors
//
// Errors split into two families. Transient failures, wrapped as
// exchange.NetworkError or exchange.ExchangeError, are retried up to
// the store's attempt budget with a fixed delay derived from the
// venue's rate limit. Everything else is a logical error and surfaces
// immediately:
//
//   - ErrOrderNotFound: the order id is unknown to the exchange
//
//   - ErrUnsupportedFeature: the exchange does not support a requested
//     capability, for example OHLCV download or websocket push
//
//   - ErrInvalidSymbol: an invalid trading pair symbol was provided
//
// The feed adds two sentinels of its own: feed.ErrEnded once a
// historical-only feed is exhausted, and feed.ErrNoData when a live
// poll has nothing new yet.
//
// # Examples
//
// Build a store, then hang a feed and a broker off it:
//
//	opts := store.NewOptions()
//	opts.Currency = "USDT"
//	st, err := store.ForAccount(ctx, client, opts)
//	if err != nil {
//		return err
//	}
//
//	f, err := feed.New(st, feed.Options{
//		Symbol:      "BTC/USDT",
//		Timeframe:   store.Minutes,
//		Compression: 1,
//		FromTime:    start,
//	})
//	if err != nil {
//		return err
//	}
//	if err := f.Start(ctx); err != nil {
//		return err
//	}
//
//	b := broker.New(st, broker.Options{})
//	order, err := b.Buy(ctx, broker.OrderSpec{
//		Symbol: "BTC/USDT",
//		Size:   1,
//		Price:  50_000,
//		Kind:   mapping.Limit,
//	})
//
// One engine tick then interleaves f.Next, b.Reconcile and
// b.Notification. See cmd/examples for a complete run.
package exchangebridge
