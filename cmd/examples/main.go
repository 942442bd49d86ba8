package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/veiloq/exchange-bridge/pkg/broker"
	"github.com/veiloq/exchange-bridge/pkg/exchange"
	"github.com/veiloq/exchange-bridge/pkg/feed"
	"github.com/veiloq/exchange-bridge/pkg/logging"
	"github.com/veiloq/exchange-bridge/pkg/mapping"
	"github.com/veiloq/exchange-bridge/pkg/store"
)

// Demonstrates the bridge wiring end to end: store construction, a
// historical candle feed, and an order round trip. The scripted mock
// client stands in for a real venue adapter so the example runs
// without credentials.
func main() {
	// Create logger
	logger := logging.NewZapLogger(
		logging.WithDevelopmentMode(),
		logging.WithLogLevel(logging.DEBUG),
	)

	// Script a small market: three one-minute candles and a funded account
	minute := int64(60_000)
	client := exchange.NewMockClient()
	client.Balances = exchange.Balance{
		Free:  map[string]float64{"USDT": 10_000},
		Total: map[string]float64{"USDT": 10_000},
	}
	client.Candles = []exchange.OHLCV{
		{Timestamp: 1 * minute, Open: 5.40, High: 5.45, Low: 5.39, Close: 5.43, Volume: 100},
		{Timestamp: 2 * minute, Open: 5.43, High: 5.44, Low: 5.41, Close: 5.42, Volume: 80},
		{Timestamp: 3 * minute, Open: 5.42, High: 5.46, Low: 5.42, Close: 5.45, Volume: 90},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Build the account store. Construction fetches the starting balance
	logger.Info("building store")
	opts := store.NewOptions()
	opts.Currency = "USDT"
	opts.Logger = logger

	st, err := store.ForAccount(ctx, client, opts)
	if err != nil {
		logger.Error("failed to build store", logging.Error(err))
		os.Exit(1)
	}
	logger.Info("account ready",
		logging.Float64("cash", st.Cash()),
		logging.Float64("value", st.Value()),
	)

	// Stream the historical window one bar at a time
	logger.Info("starting historical feed")
	f, err := feed.New(st, feed.Options{
		Symbol:      "LTC/USDT",
		Timeframe:   store.Minutes,
		Compression: 1,
		FromTime:    time.UnixMilli(1 * minute),
		ToTime:      time.UnixMilli(4 * minute),
		Historical:  true,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to build feed", logging.Error(err))
		os.Exit(1)
	}
	if err := f.Start(ctx); err != nil {
		logger.Error("backfill failed", logging.Error(err))
		os.Exit(1)
	}

	for {
		bar, err := f.Next(ctx)
		if errors.Is(err, feed.ErrEnded) {
			break
		}
		if err != nil {
			logger.Error("feed failed", logging.Error(err))
			os.Exit(1)
		}
		logger.Info("bar",
			logging.String("time", bar.Time().Format(time.RFC3339)),
			logging.Float64("open", bar.Open),
			logging.Float64("close", bar.Close),
			logging.Float64("volume", bar.Volume),
		)
	}

	// Place a limit order and reconcile it to completion
	logger.Info("submitting limit order")
	b := broker.New(st, broker.Options{Logger: logger})

	order, err := b.Buy(ctx, broker.OrderSpec{
		Symbol: "LTC/USDT",
		Size:   2.0,
		Price:  5.4326,
		Kind:   mapping.Limit,
	})
	if err != nil {
		logger.Error("failed to submit order", logging.Error(err))
		os.Exit(1)
	}
	logger.Info("order accepted",
		logging.String("id", order.ID()),
		logging.Float64("price", order.Price),
	)

	// Simulate the exchange filling the order, then run a tick
	client.SetOrder(exchange.Order{
		ID: order.ID(), Symbol: "LTC/USDT", Status: "closed",
		Price: 5.4326, Amount: 2.0, Filled: 2.0,
		Trades: []exchange.Fill{{ID: "t-1", Amount: 2.0, Price: 5.4326}},
	})
	b.Reconcile(ctx)

	for {
		event, ok := b.Notification()
		if !ok {
			break
		}
		logger.Info("order event",
			logging.String("id", event.ID()),
			logging.String("status", event.Status.String()),
			logging.Float64("executed", event.Executed.Size),
		)
	}

	pos := b.Position("LTC/USDT")
	logger.Info("position",
		logging.String("symbol", pos.Symbol),
		logging.Float64("size", pos.Size),
		logging.Float64("entry", pos.Price),
	)
}
