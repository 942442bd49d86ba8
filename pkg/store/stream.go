package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/veiloq/exchange-bridge/pkg/exchange"
	"github.com/veiloq/exchange-bridge/pkg/logging"
	"github.com/veiloq/exchange-bridge/pkg/websocket"
)

// Push-channel topics. The channel delivers unified order/position
// documents under a topic envelope.
const (
	topicOrder    = "order"
	topicStop     = "stopOrder"
	topicPosition = "position"
)

// streamCache holds the state the push channel maintains. The caches
// are independently locked: the delivery goroutine writes here and the
// tick thread reads, and neither ever touches broker or feed state.
type streamCache struct {
	ordersMu    sync.RWMutex
	orders      map[string]exchange.Order
	conditional map[string]exchange.Order

	posMu     sync.RWMutex
	positions []exchange.Position
}

func newStreamCache() *streamCache {
	return &streamCache{
		orders:      make(map[string]exchange.Order),
		conditional: make(map[string]exchange.Order),
	}
}

func (c *streamCache) activeOrder(id string) (exchange.Order, bool) {
	c.ordersMu.RLock()
	defer c.ordersMu.RUnlock()
	order, ok := c.orders[id]
	return order, ok
}

func (c *streamCache) conditionalOrder(id string) (exchange.Order, bool) {
	c.ordersMu.RLock()
	defer c.ordersMu.RUnlock()
	order, ok := c.conditional[id]
	return order, ok
}

func (c *streamCache) positionsSnapshot() []exchange.Position {
	c.posMu.RLock()
	defer c.posMu.RUnlock()
	return append([]exchange.Position(nil), c.positions...)
}

// upsertOrders replaces cached entries by order id. Replaying the same
// update twice leaves the cache unchanged.
func (c *streamCache) upsertOrders(orders []exchange.Order, conditional bool) {
	c.ordersMu.Lock()
	defer c.ordersMu.Unlock()
	target := c.orders
	if conditional {
		target = c.conditional
	}
	for _, order := range orders {
		if order.ID == "" {
			continue
		}
		target[order.ID] = order
	}
}

// replacePositions replaces cached positions by (symbol, side) and
// keeps the list sorted by side for stable reads.
func (c *streamCache) replacePositions(updates []exchange.Position) {
	c.posMu.Lock()
	defer c.posMu.Unlock()

	for _, update := range updates {
		replaced := false
		for i, existing := range c.positions {
			if existing.Symbol == update.Symbol && existing.Side == update.Side {
				c.positions[i] = update
				replaced = true
				break
			}
		}
		if !replaced {
			c.positions = append(c.positions, update)
		}
	}

	sort.Slice(c.positions, func(i, j int) bool {
		return c.positions[i].Side < c.positions[j].Side
	})
}

// stream wires a websocket connector to a streamCache.
type stream struct {
	ws     websocket.WSConnector
	cache  *streamCache
	logger logging.Logger
}

type orderEnvelope struct {
	Topic string           `json:"topic"`
	Data  []exchange.Order `json:"data"`
}

type positionEnvelope struct {
	Topic string              `json:"topic"`
	Data  []exchange.Position `json:"data"`
}

func newStream(ctx context.Context, ws websocket.WSConnector, logger logging.Logger) (*stream, error) {
	st := &stream{
		ws:     ws,
		cache:  newStreamCache(),
		logger: logger,
	}

	if err := ws.Connect(ctx); err != nil {
		return nil, fmt.Errorf("push channel connect failed: %w", err)
	}

	subs := []struct {
		topic   string
		handler websocket.MessageHandler
	}{
		{topicOrder, st.handleOrder},
		{topicStop, st.handleConditionalOrder},
		{topicPosition, st.handlePositions},
	}
	for _, sub := range subs {
		if err := ws.Subscribe(sub.topic, sub.handler); err != nil {
			_ = ws.Close()
			return nil, fmt.Errorf("push channel subscribe %q failed: %w", sub.topic, err)
		}
	}

	return st, nil
}

func (st *stream) handleOrder(message []byte) {
	var env orderEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		st.logger.Warn("dropping malformed order update", logging.Error(err))
		return
	}
	st.cache.upsertOrders(env.Data, false)
}

func (st *stream) handleConditionalOrder(message []byte) {
	var env orderEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		st.logger.Warn("dropping malformed conditional order update", logging.Error(err))
		return
	}
	st.cache.upsertOrders(env.Data, true)
}

func (st *stream) handlePositions(message []byte) {
	var env positionEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		st.logger.Warn("dropping malformed position update", logging.Error(err))
		return
	}
	st.cache.replacePositions(env.Data)
}
