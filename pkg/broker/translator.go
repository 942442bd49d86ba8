package broker

import (
	"context"
	"fmt"

	"github.com/veiloq/exchange-bridge/pkg/exchange"
	"github.com/veiloq/exchange-bridge/pkg/mapping"
	"github.com/veiloq/exchange-bridge/pkg/store"
)

// Instruction is the concrete exchange order derived from an abstract
// OrderSpec: the venue order-type string, the price to send, and any
// extra parameters the venue needs.
type Instruction struct {
	Type   string
	Price  float64
	Params map[string]any
}

// OrderTranslator turns an abstract order spec into a venue
// instruction. Most venues are covered by a static mapping table;
// venues whose order types depend on market state get their own
// implementation.
type OrderTranslator interface {
	Translate(ctx context.Context, st *store.Store, spec OrderSpec) (Instruction, error)
}

// resolveTranslator picks the translator for an exchange identity.
func resolveTranslator(exchangeName string, table mapping.Table) OrderTranslator {
	if exchangeName == "binance" {
		return &binanceTranslator{table: table}
	}
	return &tableTranslator{table: table}
}

// tableTranslator resolves the order type through the mapping table
// and passes price and params through untouched.
type tableTranslator struct {
	table mapping.Table
}

func (t *tableTranslator) Translate(_ context.Context, _ *store.Store, spec OrderSpec) (Instruction, error) {
	typ, ok := t.table.OrderType(spec.Kind)
	if !ok {
		return Instruction{}, fmt.Errorf("no order type mapping for %q", spec.Kind)
	}
	return Instruction{Type: typ, Price: spec.Price, Params: spec.Params}, nil
}

// binanceTranslator handles Binance's stop-limit order types, which
// cannot be expressed in a static table: whether a stop-limit is a
// STOP_LOSS_LIMIT or a TAKE_PROFIT_LIMIT depends on where the trigger
// sits relative to the current market price. The trigger travels in
// the stopPrice parameter and the limit leg becomes the order price.
type binanceTranslator struct {
	table mapping.Table
}

func (t *binanceTranslator) Translate(ctx context.Context, st *store.Store, spec OrderSpec) (Instruction, error) {
	if spec.Kind != mapping.StopLimit {
		fallback := tableTranslator{table: t.table}
		return fallback.Translate(ctx, st, spec)
	}

	market, err := t.marketPrice(ctx, st, spec.Symbol)
	if err != nil {
		return Instruction{}, err
	}

	stopPrice := spec.Price
	var typ string
	if spec.Side == exchange.Sell {
		typ = "TAKE_PROFIT_LIMIT"
		if stopPrice < market {
			typ = "STOP_LOSS_LIMIT"
		}
	} else {
		typ = "STOP_LOSS_LIMIT"
		if stopPrice < market {
			typ = "TAKE_PROFIT_LIMIT"
		}
	}

	params := make(map[string]any, len(spec.Params)+1)
	for k, v := range spec.Params {
		params[k] = v
	}
	params["stopPrice"] = stopPrice

	return Instruction{Type: typ, Price: spec.LimitPrice, Params: params}, nil
}

// marketPrice reads the close of the most recent one-minute candle.
func (t *binanceTranslator) marketPrice(ctx context.Context, st *store.Store, symbol string) (float64, error) {
	rows, err := st.FetchOHLCV(ctx, symbol, "1m", 0, 1, nil)
	if err != nil {
		return 0, fmt.Errorf("market price lookup for %s: %w", symbol, err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("market price lookup for %s: no candles", symbol)
	}
	return rows[0].Close, nil
}
