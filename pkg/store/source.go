package store

import (
	"context"

	"github.com/veiloq/exchange-bridge/pkg/exchange"
)

// orderSource is the read path for order and position state. Two
// implementations exist: a plain REST passthrough and a push-channel
// cache with REST fallthrough. The store picks one at construction (or
// at EnableStream) so call sites never branch on capability.
type orderSource interface {
	fetchOrder(ctx context.Context, id, symbol string, params map[string]any) (exchange.Order, error)
	fetchPositions(ctx context.Context, symbols []string, params map[string]any) ([]exchange.Position, error)
}

// restSource reads through the retryable REST path.
type restSource struct {
	s *Store
}

func (r *restSource) fetchOrder(ctx context.Context, id, symbol string, params map[string]any) (exchange.Order, error) {
	var order exchange.Order
	err := r.s.caller.Call(ctx, "fetch order", func(ctx context.Context) error {
		var callErr error
		order, callErr = r.s.client.FetchOrder(ctx, id, symbol, params)
		return callErr
	})
	return order, err
}

func (r *restSource) fetchPositions(ctx context.Context, symbols []string, params map[string]any) ([]exchange.Position, error) {
	var positions []exchange.Position
	err := r.s.caller.Call(ctx, "fetch positions", func(ctx context.Context) error {
		var callErr error
		positions, callErr = r.s.client.FetchPositions(ctx, symbols, params)
		return callErr
	})
	return positions, err
}

// streamSource answers from the push-channel cache and falls through to
// REST on a miss. A cache hit consumes no rate-limit budget.
type streamSource struct {
	cache *streamCache
	rest  *restSource
}

func (ss *streamSource) fetchOrder(ctx context.Context, id, symbol string, params map[string]any) (exchange.Order, error) {
	if id == "" {
		// Conditional orders are addressed by stop_order_id.
		if sid, ok := params["stop_order_id"].(string); ok {
			if order, found := ss.cache.conditionalOrder(sid); found {
				return order, nil
			}
		}
		return ss.rest.fetchOrder(ctx, id, symbol, params)
	}

	if order, found := ss.cache.activeOrder(id); found {
		return order, nil
	}
	return ss.rest.fetchOrder(ctx, id, symbol, params)
}

func (ss *streamSource) fetchPositions(ctx context.Context, symbols []string, params map[string]any) ([]exchange.Position, error) {
	if positions := ss.cache.positionsSnapshot(); len(positions) > 0 {
		return positions, nil
	}
	return ss.rest.fetchPositions(ctx, symbols, params)
}
