package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// OHLCVCall records the arguments of one FetchOHLCV invocation.
type OHLCVCall struct {
	Symbol    string
	Timeframe string
	Since     int64
	Limit     int
}

// MockClient implements Client for testing. Behavior is scriptable
// through the exported function fields; when a function field is nil a
// reasonable default backed by the exported state fields applies. All
// methods are safe for concurrent use, and scripted functions run with
// the internal lock released so they may call back into the mock, for
// example SetOrder from inside CreateFunc.
type MockClient struct {
	mu sync.Mutex

	// Identity and capabilities
	ExchangeName  string
	Limit         time.Duration
	Granularities []string
	Features      map[string]bool
	HasSecret     bool

	// Scriptable behavior
	BalanceFunc    func(params map[string]any) (Balance, error)
	OHLCVFunc      func(call OHLCVCall) ([]OHLCV, error)
	OrderBookFunc  func(symbol string) (OrderBook, error)
	TradesFunc     func(symbol string, since int64, limit int) ([]Trade, error)
	CreateFunc     func(req OrderRequest) (Order, error)
	FetchOrderFunc func(id, symbol string) (Order, error)
	CancelFunc     func(id, symbol string) (Order, error)
	EndpointFunc   func(name string, params map[string]any) (map[string]any, error)

	// Default state used when the corresponding func field is nil
	Balances  Balance
	Candles   []OHLCV // served by since/limit windowing
	Book      OrderBook
	Trades    []Trade // served by since/limit windowing
	Orders    map[string]Order
	Positions []Position

	// Call records for verifying expectations
	OHLCVCalls      []OHLCVCall
	CreateCalls     []OrderRequest
	FetchOrderCalls []string
	CancelCalls     []string
	BalanceCalls    int
	OrderBookCalls  int
	TradeCalls      []string
	EndpointCalls   []string

	nextID int
}

// NewMockClient creates a mock exchange with sane defaults: no rate
// limit delay, all features enabled, credentials present.
func NewMockClient() *MockClient {
	return &MockClient{
		ExchangeName: "mock",
		Features:     map[string]bool{FeatureFetchOHLCV: true},
		HasSecret:    true,
		Orders:       make(map[string]Order),
	}
}

func (m *MockClient) Name() string {
	if m.ExchangeName == "" {
		return "mock"
	}
	return m.ExchangeName
}

func (m *MockClient) RateLimit() time.Duration { return m.Limit }

func (m *MockClient) Timeframes() []string { return m.Granularities }

func (m *MockClient) Has(feature string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Features == nil {
		return true
	}
	enabled, ok := m.Features[feature]
	return ok && enabled
}

func (m *MockClient) Authenticated() bool { return m.HasSecret }

func (m *MockClient) FetchBalance(ctx context.Context, params map[string]any) (Balance, error) {
	m.mu.Lock()
	m.BalanceCalls++
	fn := m.BalanceFunc
	bal := m.Balances
	m.mu.Unlock()

	if fn != nil {
		return fn(params)
	}
	return bal, nil
}

func (m *MockClient) FetchOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int, params map[string]any) ([]OHLCV, error) {
	m.mu.Lock()
	call := OHLCVCall{Symbol: symbol, Timeframe: timeframe, Since: since, Limit: limit}
	m.OHLCVCalls = append(m.OHLCVCalls, call)
	fn := m.OHLCVFunc
	if fn != nil {
		m.mu.Unlock()
		return fn(call)
	}
	defer m.mu.Unlock()

	// Default: window the scripted candle list by since/limit the way
	// exchange kline endpoints do.
	var page []OHLCV
	for _, row := range m.Candles {
		if row.Timestamp < since {
			continue
		}
		page = append(page, row)
		if limit > 0 && len(page) == limit {
			break
		}
	}
	return page, nil
}

func (m *MockClient) FetchOrderBook(ctx context.Context, symbol string, limit int) (OrderBook, error) {
	m.mu.Lock()
	m.OrderBookCalls++
	fn := m.OrderBookFunc
	book := m.Book
	m.mu.Unlock()

	if fn != nil {
		return fn(symbol)
	}
	return book, nil
}

func (m *MockClient) FetchTrades(ctx context.Context, symbol string, since int64, limit int) ([]Trade, error) {
	m.mu.Lock()
	m.TradeCalls = append(m.TradeCalls, symbol)
	fn := m.TradesFunc
	if fn != nil {
		m.mu.Unlock()
		return fn(symbol, since, limit)
	}
	defer m.mu.Unlock()

	var page []Trade
	for _, trade := range m.Trades {
		if trade.Symbol != symbol || trade.Timestamp < since {
			continue
		}
		page = append(page, trade)
		if limit > 0 && len(page) == limit {
			break
		}
	}
	return page, nil
}

func (m *MockClient) CreateOrder(ctx context.Context, req OrderRequest) (Order, error) {
	m.mu.Lock()
	m.CreateCalls = append(m.CreateCalls, req)
	fn := m.CreateFunc
	if fn != nil {
		m.mu.Unlock()
		return fn(req)
	}
	defer m.mu.Unlock()

	m.nextID++
	order := Order{
		ID:        fmt.Sprintf("mock-%d", m.nextID),
		Symbol:    req.Symbol,
		Type:      req.Type,
		Side:      req.Side,
		Status:    "open",
		Price:     req.Price,
		Amount:    req.Amount,
		Remaining: req.Amount,
		Timestamp: time.Now().UnixMilli(),
	}
	if m.Orders == nil {
		m.Orders = make(map[string]Order)
	}
	m.Orders[order.ID] = order
	return order, nil
}

func (m *MockClient) EditOrder(ctx context.Context, id, symbol string, req OrderRequest) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.Orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	if req.Amount > 0 {
		order.Amount = req.Amount
		order.Remaining = req.Amount - order.Filled
	}
	if req.Price > 0 {
		order.Price = req.Price
	}
	m.Orders[id] = order
	return order, nil
}

func (m *MockClient) CancelOrder(ctx context.Context, id, symbol string) (Order, error) {
	m.mu.Lock()
	m.CancelCalls = append(m.CancelCalls, id)
	fn := m.CancelFunc
	if fn != nil {
		m.mu.Unlock()
		return fn(id, symbol)
	}
	defer m.mu.Unlock()

	order, ok := m.Orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	order.Status = "canceled"
	m.Orders[id] = order
	return order, nil
}

func (m *MockClient) FetchOrder(ctx context.Context, id, symbol string, params map[string]any) (Order, error) {
	m.mu.Lock()
	m.FetchOrderCalls = append(m.FetchOrderCalls, id)
	fn := m.FetchOrderFunc
	if fn != nil {
		m.mu.Unlock()
		return fn(id, symbol)
	}
	defer m.mu.Unlock()

	order, ok := m.Orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (m *MockClient) FetchOrders(ctx context.Context, symbol string, since int64, limit int) ([]Order, error) {
	return m.listOrders(symbol, nil)
}

func (m *MockClient) FetchOpenOrders(ctx context.Context, symbol string, since int64, limit int) ([]Order, error) {
	return m.listOrders(symbol, func(o Order) bool { return o.Status == "open" })
}

func (m *MockClient) FetchClosedOrders(ctx context.Context, symbol string, since int64, limit int) ([]Order, error) {
	return m.listOrders(symbol, func(o Order) bool { return o.Status == "closed" })
}

func (m *MockClient) listOrders(symbol string, keep func(Order) bool) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Order
	for _, o := range m.Orders {
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		if keep != nil && !keep(o) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (m *MockClient) FetchPositions(ctx context.Context, symbols []string, params map[string]any) ([]Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Position(nil), m.Positions...), nil
}

func (m *MockClient) CallEndpoint(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	m.mu.Lock()
	m.EndpointCalls = append(m.EndpointCalls, name)
	fn := m.EndpointFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(name, params)
	}
	return map[string]any{}, nil
}

// SetOrder replaces the stored exchange-side document for an order id.
// Tests use it to simulate fills, closes and external cancellations.
func (m *MockClient) SetOrder(order Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Orders == nil {
		m.Orders = make(map[string]Order)
	}
	m.Orders[order.ID] = order
}
