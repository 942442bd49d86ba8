package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veiloq/exchange-bridge/pkg/exchange"
	"github.com/veiloq/exchange-bridge/pkg/websocket"
)

func newTestClient() *exchange.MockClient {
	client := exchange.NewMockClient()
	client.Balances = exchange.Balance{
		Free:  map[string]float64{"USDT": 100},
		Total: map[string]float64{"USDT": 150},
	}
	return client
}

func newTestStore(t *testing.T, client *exchange.MockClient) *Store {
	t.Helper()
	ResetRegistry()
	t.Cleanup(ResetRegistry)

	opts := NewOptions()
	opts.Currency = "USDT"
	opts.Retries = 3

	s, err := ForAccount(context.Background(), client, opts)
	require.NoError(t, err)
	return s
}

func TestForAccount_ReturnsExistingInstance(t *testing.T) {
	client := newTestClient()
	s1 := newTestStore(t, client)

	opts := NewOptions()
	opts.Currency = "USDT"
	s2, err := ForAccount(context.Background(), client, opts)
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	// Only the first construction fetched the balance.
	assert.Equal(t, 1, client.BalanceCalls)
}

func TestForAccount_SeparateAccountsGetSeparateStores(t *testing.T) {
	client := newTestClient()
	ResetRegistry()
	t.Cleanup(ResetRegistry)

	optsA := NewOptions()
	optsA.Account = "a"
	optsA.Currency = "USDT"
	optsB := NewOptions()
	optsB.Account = "b"
	optsB.Currency = "USDT"

	sa, err := ForAccount(context.Background(), client, optsA)
	require.NoError(t, err)
	sb, err := ForAccount(context.Background(), client, optsB)
	require.NoError(t, err)

	assert.NotSame(t, sa, sb)
}

func TestForAccount_UnauthenticatedSkipsBalance(t *testing.T) {
	client := newTestClient()
	client.HasSecret = false
	s := newTestStore(t, client)

	assert.Equal(t, 0, client.BalanceCalls)
	assert.Zero(t, s.Cash())
	assert.Zero(t, s.Value())
}

func TestBalance_UpdatesCachedFigures(t *testing.T) {
	client := newTestClient()
	s := newTestStore(t, client)

	assert.Equal(t, 100.0, s.Cash())
	assert.Equal(t, 150.0, s.Value())

	client.Balances = exchange.Balance{
		Free:  map[string]float64{"USDT": 42},
		Total: map[string]float64{"USDT": 99},
	}

	cash, value, err := s.Balance(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 42.0, cash)
	assert.Equal(t, 99.0, value)
	assert.Equal(t, 42.0, s.Cash())
	assert.Equal(t, 99.0, s.Value())
}

func TestBalance_MissingCurrencyReadsAsZero(t *testing.T) {
	client := newTestClient()
	client.Balances = exchange.Balance{
		Free:  map[string]float64{"BTC": 1},
		Total: map[string]float64{"BTC": 1},
	}
	s := newTestStore(t, client)

	// USDT was never funded: cached figures are zero, no error.
	assert.Zero(t, s.Cash())
	assert.Zero(t, s.Value())
}

func TestWalletBalance_DoesNotTouchCachedFigures(t *testing.T) {
	client := newTestClient()
	s := newTestStore(t, client)

	client.Balances = exchange.Balance{
		Free:  map[string]float64{"BTC": 2, "USDT": 7},
		Total: map[string]float64{"BTC": 3, "USDT": 9},
	}

	cash, value, err := s.WalletBalance(context.Background(), "BTC", map[string]any{"type": "margin"})
	require.NoError(t, err)
	assert.Equal(t, 2.0, cash)
	assert.Equal(t, 3.0, value)

	// Account cache still holds the construction-time snapshot.
	assert.Equal(t, 100.0, s.Cash())
	assert.Equal(t, 150.0, s.Value())
}

func TestFetchTrades_WindowsBySinceAndLimit(t *testing.T) {
	client := newTestClient()
	s := newTestStore(t, client)

	client.Trades = []exchange.Trade{
		{ID: "t1", Symbol: "BTC/USDT", Side: exchange.Buy, Timestamp: 1_000, Amount: 0.5, Price: 100},
		{ID: "t2", Symbol: "BTC/USDT", Side: exchange.Sell, Timestamp: 2_000, Amount: 0.25, Price: 101},
		{ID: "t3", Symbol: "ETH/USDT", Side: exchange.Buy, Timestamp: 2_500, Amount: 1, Price: 10},
		{ID: "t4", Symbol: "BTC/USDT", Side: exchange.Buy, Timestamp: 3_000, Amount: 0.1, Price: 102},
	}

	trades, err := s.FetchTrades(context.Background(), "BTC/USDT", 2_000, 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "t2", trades[0].ID)
	assert.Equal(t, "t4", trades[1].ID)

	trades, err = s.FetchTrades(context.Background(), "BTC/USDT", 0, 1)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "t1", trades[0].ID)
}

func TestGranularity(t *testing.T) {
	client := newTestClient()
	s := newTestStore(t, client)

	tests := []struct {
		name        string
		timeframe   Timeframe
		compression int
		want        string
		wantErr     bool
	}{
		{"one minute", Minutes, 1, "1m", false},
		{"ninety minutes", Minutes, 90, "90m", false},
		{"twelve hours", Minutes, 720, "12h", false},
		{"three days", Days, 3, "3d", false},
		{"two weeks", Weeks, 2, "2w", false},
		{"six months", Months, 6, "6M", false},
		{"one year", Years, 1, "1y", false},
		{"unsupported compression", Minutes, 7, "", true},
		{"unsupported unit pair", Days, 2, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := s.Granularity(tt.timeframe, tt.compression)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, code)
		})
	}

	// Configuration failures never reach the network.
	assert.Empty(t, client.OHLCVCalls)
}

func TestGranularity_VenueUnsupportedCode(t *testing.T) {
	client := newTestClient()
	client.Granularities = []string{"1m", "1h"}
	s := newTestStore(t, client)

	_, err := s.Granularity(Minutes, 1)
	require.NoError(t, err)

	_, err = s.Granularity(Days, 1)
	require.Error(t, err)
}

func TestGranularity_NoOHLCVSupport(t *testing.T) {
	client := newTestClient()
	client.Features = map[string]bool{exchange.FeatureFetchOHLCV: false}
	s := newTestStore(t, client)

	_, err := s.Granularity(Minutes, 1)
	require.ErrorIs(t, err, exchange.ErrUnsupportedFeature)
}

func TestRetry_TransientErrorsExhaustBudget(t *testing.T) {
	client := newTestClient()
	s := newTestStore(t, client)

	calls := 0
	client.OHLCVFunc = func(call exchange.OHLCVCall) ([]exchange.OHLCV, error) {
		calls++
		return nil, exchange.NewNetworkError(errors.New("connection reset"))
	}

	_, err := s.FetchOHLCV(context.Background(), "BTC/USDT", "1m", 0, 10, nil)
	require.Error(t, err)
	assert.Equal(t, 3, calls) // opts.Retries
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRetry_TransientErrorThenSuccess(t *testing.T) {
	client := newTestClient()
	s := newTestStore(t, client)

	calls := 0
	client.OHLCVFunc = func(call exchange.OHLCVCall) ([]exchange.OHLCV, error) {
		calls++
		if calls == 1 {
			return nil, exchange.NewExchangeError("mock", errors.New("throttled"))
		}
		return []exchange.OHLCV{{Timestamp: 1000, Close: 5}}, nil
	}

	rows, err := s.FetchOHLCV(context.Background(), "BTC/USDT", "1m", 0, 10, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, calls)
}

func TestRetry_LogicalErrorNotRetried(t *testing.T) {
	client := newTestClient()
	s := newTestStore(t, client)

	calls := 0
	client.OHLCVFunc = func(call exchange.OHLCVCall) ([]exchange.OHLCV, error) {
		calls++
		return nil, exchange.ErrInvalidSymbol
	}

	_, err := s.FetchOHLCV(context.Background(), "NOPE", "1m", 0, 10, nil)
	require.ErrorIs(t, err, exchange.ErrInvalidSymbol)
	assert.Equal(t, 1, calls)
}

func TestStream_OrderCacheHitSkipsREST(t *testing.T) {
	client := newTestClient()
	client.Features = map[string]bool{
		exchange.FeatureFetchOHLCV: true,
		exchange.FeatureWebsocket:  true,
	}
	s := newTestStore(t, client)

	ws := websocket.NewMockConnector()
	require.NoError(t, s.EnableStream(context.Background(), ws))

	update := orderEnvelope{
		Topic: topicOrder,
		Data:  []exchange.Order{{ID: "o-1", Symbol: "BTCUSDT", Status: "open", Price: 50000}},
	}
	require.NoError(t, ws.InjectJSON(topicOrder, update))
	// Replaying the same update must not duplicate the entry.
	require.NoError(t, ws.InjectJSON(topicOrder, update))

	order, err := s.FetchOrder(context.Background(), "o-1", "BTCUSDT", nil)
	require.NoError(t, err)
	assert.Equal(t, 50000.0, order.Price)
	assert.Empty(t, client.FetchOrderCalls, "cache hit must not consume REST budget")
}

func TestStream_OrderCacheMissFallsThrough(t *testing.T) {
	client := newTestClient()
	client.Features = map[string]bool{
		exchange.FeatureFetchOHLCV: true,
		exchange.FeatureWebsocket:  true,
	}
	client.SetOrder(exchange.Order{ID: "rest-1", Symbol: "BTCUSDT", Status: "open"})
	s := newTestStore(t, client)

	ws := websocket.NewMockConnector()
	require.NoError(t, s.EnableStream(context.Background(), ws))

	order, err := s.FetchOrder(context.Background(), "rest-1", "BTCUSDT", nil)
	require.NoError(t, err)
	assert.Equal(t, "rest-1", order.ID)
	assert.Equal(t, []string{"rest-1"}, client.FetchOrderCalls)
}

func TestStream_ConditionalOrderLookup(t *testing.T) {
	client := newTestClient()
	client.Features = map[string]bool{
		exchange.FeatureFetchOHLCV: true,
		exchange.FeatureWebsocket:  true,
	}
	s := newTestStore(t, client)

	ws := websocket.NewMockConnector()
	require.NoError(t, s.EnableStream(context.Background(), ws))

	require.NoError(t, ws.InjectJSON(topicStop, orderEnvelope{
		Topic: topicStop,
		Data:  []exchange.Order{{ID: "stop-7", Symbol: "BTCUSDT", Status: "untriggered"}},
	}))

	order, err := s.FetchOrder(context.Background(), "", "BTCUSDT", map[string]any{"stop_order_id": "stop-7"})
	require.NoError(t, err)
	assert.Equal(t, "stop-7", order.ID)
}

func TestStream_PositionsServedFromCache(t *testing.T) {
	client := newTestClient()
	client.Features = map[string]bool{
		exchange.FeatureFetchOHLCV: true,
		exchange.FeatureWebsocket:  true,
	}
	s := newTestStore(t, client)

	ws := websocket.NewMockConnector()
	require.NoError(t, s.EnableStream(context.Background(), ws))

	require.NoError(t, ws.InjectJSON(topicPosition, positionEnvelope{
		Topic: topicPosition,
		Data: []exchange.Position{
			{Symbol: "BTCUSDT", Side: exchange.Sell, Size: 1},
			{Symbol: "BTCUSDT", Side: exchange.Buy, Size: 2},
		},
	}))

	positions, err := s.FetchPositions(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	// Sorted by side for stable reads.
	assert.Equal(t, exchange.Buy, positions[0].Side)

	// A replayed update replaces in place instead of appending.
	require.NoError(t, ws.InjectJSON(topicPosition, positionEnvelope{
		Topic: topicPosition,
		Data:  []exchange.Position{{Symbol: "BTCUSDT", Side: exchange.Buy, Size: 5}},
	}))
	positions, err = s.FetchPositions(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, 5.0, positions[0].Size)
}

func TestEnableStream_RequiresCapability(t *testing.T) {
	client := newTestClient()
	client.Features = map[string]bool{exchange.FeatureFetchOHLCV: true}
	s := newTestStore(t, client)

	err := s.EnableStream(context.Background(), websocket.NewMockConnector())
	require.ErrorIs(t, err, exchange.ErrUnsupportedFeature)
}
