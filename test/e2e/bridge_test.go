package e2e

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veiloq/exchange-bridge/pkg/broker"
	"github.com/veiloq/exchange-bridge/pkg/exchange"
	"github.com/veiloq/exchange-bridge/pkg/feed"
	"github.com/veiloq/exchange-bridge/pkg/logging"
	"github.com/veiloq/exchange-bridge/pkg/mapping"
	"github.com/veiloq/exchange-bridge/pkg/store"
)

// TestBridge_E2E drives the whole stack, store, feed and broker, over a
// scripted exchange client: a historical candle download followed by a
// limit order placed, filled and reflected in the position ledger.
func TestBridge_E2E(t *testing.T) {
	logger := logging.NewLogger()
	logger.SetLevel(logging.DEBUG)

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

	store.ResetRegistry()
	t.Cleanup(store.ResetRegistry)

	opts := store.NewOptions()
	opts.Currency = "USDT"
	opts.Retries = 3
	opts.Logger = logger

	st, err := store.ForAccount(ctx, client, opts)
	require.NoError(t, err, "failed to build store")

	t.Run("HistoricalFeed", func(t *testing.T) {
		// A 1-minute feed over a two-minute window in historical-only
		// mode, paging two candles at a time.
		f, err := feed.New(st, feed.Options{
			Symbol:      "LTC/USDT",
			Timeframe:   store.Minutes,
			Compression: 1,
			FromTime:    time.UnixMilli(1 * minute),
			ToTime:      time.UnixMilli(3 * minute),
			Historical:  true,
			FetchLimit:  2,
			Logger:      logger,
		})
		require.NoError(t, err, "failed to build feed")
		require.NoError(t, f.Start(ctx), "backfill failed")

		status, ok := f.Notification()
		require.True(t, ok)
		require.Equal(t, feed.StatusDelayed, status)

		var bars []exchange.OHLCV
		for {
			bar, err := f.Next(ctx)
			if errors.Is(err, feed.ErrEnded) {
				break
			}
			require.NoError(t, err)
			bars = append(bars, bar)
		}

		require.Len(t, bars, 2, "a two-minute window holds exactly two bars")
		require.Equal(t, 1*minute, bars[0].Timestamp)
		require.Equal(t, 2*minute, bars[1].Timestamp)

		// The feed stays ended.
		_, err = f.Next(ctx)
		require.ErrorIs(t, err, feed.ErrEnded)

		status, ok = f.Notification()
		require.True(t, ok)
		require.Equal(t, feed.StatusDisconnected, status)
	})

	t.Run("LimitOrderLifecycle", func(t *testing.T) {
		b := broker.New(st, broker.Options{Logger: logger})

		order, err := b.Buy(ctx, broker.OrderSpec{
			Symbol: "LTC/USDT",
			Size:   2.0,
			Price:  5.4326,
			Kind:   mapping.Limit,
		})
		require.NoError(t, err, "failed to submit order")
		require.NotNil(t, order)

		// Exactly one creation call with the exact requested fields.
		require.Len(t, client.CreateCalls, 1)
		req := client.CreateCalls[0]
		require.Equal(t, "LTC/USDT", req.Symbol)
		require.Equal(t, "limit", req.Type)
		require.Equal(t, exchange.Buy, req.Side)
		require.Equal(t, 2.0, req.Amount)
		require.Equal(t, 5.4326, req.Price)

		// The creation was followed immediately by an authoritative
		// readback of the same order id.
		require.Equal(t, []string{order.ID()}, client.FetchOrderCalls)
		require.Equal(t, 5.4326, order.Price)

		accepted, ok := b.Notification()
		require.True(t, ok)
		require.Same(t, order, accepted)
		require.Equal(t, broker.StatusAccepted, accepted.Status)

		// The exchange fills the order; the next tick completes it.
		client.SetOrder(exchange.Order{
			ID: order.ID(), Symbol: "LTC/USDT", Status: "closed",
			Price: 5.4326, Amount: 2.0, Filled: 2.0,
			Trades: []exchange.Fill{{ID: "t-1", Amount: 2.0, Price: 5.4326}},
		})
		b.Reconcile(ctx)

		completed, ok := b.Notification()
		require.True(t, ok)
		require.Equal(t, broker.StatusCompleted, completed.Status)
		require.Empty(t, b.OpenOrders())
		require.Equal(t, 2.0, completed.Executed.Size)

		pos := b.Position("LTC/USDT")
		require.Equal(t, 2.0, pos.Size)
		require.Equal(t, 5.4326, pos.Price)
	})
}
