// Package broker owns the set of in-flight orders for one exchange
// account. It submits orders through the store, reconciles their
// exchange-reported state once per engine tick, classifies raw
// statuses through a mapping table, applies fills to a local position
// ledger, and queues lifecycle notifications for the engine to poll.
//
// The broker is driven from a single tick goroutine. The in-flight
// set, the position ledger, and the notification queue are mutated
// only from that goroutine; concurrent use is not supported.
package broker

import (
	"context"
	"strings"
	"time"

	"github.com/veiloq/exchange-bridge/pkg/exchange"
	"github.com/veiloq/exchange-bridge/pkg/logging"
	"github.com/veiloq/exchange-bridge/pkg/mapping"
	"github.com/veiloq/exchange-bridge/pkg/store"
)

// OrderSpec is an abstract order request. For stop-limit orders Price
// is the stop trigger and LimitPrice the limit leg; for everything
// else Price is the order price and LimitPrice is ignored.
type OrderSpec struct {
	Symbol     string
	Size       float64
	Price      float64
	LimitPrice float64
	Kind       mapping.OrderKind
	Params     map[string]any

	// Side is filled in by Buy/Sell before translation.
	Side exchange.Side
}

// Options configures a Broker.
type Options struct {
	// Mapping, when set, replaces the exchange's mapping table
	// wholesale. There is no field-level merging with the default.
	Mapping *mapping.Table

	// Translator overrides order-type translation. Defaults to the
	// table translator, or the Binance translator for that venue.
	Translator OrderTranslator

	Logger logging.Logger
}

// Broker reconciles engine orders against one exchange account.
type Broker struct {
	store      *store.Store
	table      mapping.Table
	translator OrderTranslator
	logger     logging.Logger

	positions map[string]*Position
	open      []*Order
	notifs    []*Order
	nextRef   int

	// useOrderParams is a learned capability: once the exchange
	// rejects an order carrying extra parameters, the broker stops
	// sending them for the rest of the session.
	useOrderParams bool

	startingCash  float64
	startingValue float64

	now func() time.Time
}

// New builds a Broker over st. The active mapping table resolves in
// order: explicit override, registered venue table, global default.
func New(st *store.Store, opts Options) *Broker {
	table := mapping.For(st.Client().Name())
	if opts.Mapping != nil {
		table = *opts.Mapping
	}
	translator := opts.Translator
	if translator == nil {
		translator = resolveTranslator(st.Client().Name(), table)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger()
	}

	return &Broker{
		store:          st,
		table:          table,
		translator:     translator,
		logger:         logger,
		positions:      make(map[string]*Position),
		useOrderParams: true,
		startingCash:   st.Cash(),
		startingValue:  st.Value(),
		now:            time.Now,
	}
}

// Mapping returns the broker's active mapping table.
func (b *Broker) Mapping() mapping.Table { return b.table }

// Buy submits a buy order.
func (b *Broker) Buy(ctx context.Context, spec OrderSpec) (*Order, error) {
	return b.submit(ctx, exchange.Buy, spec)
}

// Sell submits a sell order.
func (b *Broker) Sell(ctx context.Context, spec OrderSpec) (*Order, error) {
	return b.submit(ctx, exchange.Sell, spec)
}

// submit validates, translates, and places one order, then reads it
// back by id. The creation response's fields are not always complete;
// the readback document is authoritative, in particular for price.
// A non-positive size or price is rejected locally with a nil order
// and no exchange call.
func (b *Broker) submit(ctx context.Context, side exchange.Side, spec OrderSpec) (*Order, error) {
	if spec.Size <= 0 || spec.Price <= 0 {
		return nil, nil
	}

	instr, err := b.translator.Translate(ctx, b.store, orderSpecWithSide(spec, side))
	if err != nil {
		return nil, err
	}

	req := exchange.OrderRequest{
		Symbol: spec.Symbol,
		Type:   instr.Type,
		Side:   side,
		Amount: spec.Size,
		Price:  instr.Price,
	}

	var created exchange.Order
	if b.useOrderParams {
		params := make(map[string]any, len(instr.Params)+1)
		for k, v := range instr.Params {
			params[k] = v
		}
		params["created"] = b.now().UnixMilli()
		req.Params = params

		created, err = b.store.CreateOrder(ctx, req)
		if err != nil {
			// The venue may simply not accept extra parameters.
			// Disable them for the session; the caller resubmits.
			b.useOrderParams = false
			b.logger.Warn("order params rejected, disabling for session",
				logging.String("symbol", spec.Symbol),
				logging.Error(err),
			)
			return nil, nil
		}
	} else {
		req.Params = nil
		created, err = b.store.CreateOrder(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	readback, err := b.store.FetchOrder(ctx, created.ID, spec.Symbol, nil)
	if err != nil {
		return nil, err
	}

	b.nextRef++
	order := newOrder(b.nextRef, spec.Symbol, side, spec.Kind, spec.Size, readback)
	order.Status = StatusAccepted
	b.open = append(b.open, order)
	b.notify(order)

	b.logger.Info("order accepted",
		logging.String("id", order.ID()),
		logging.String("symbol", order.Symbol),
		logging.String("side", string(side)),
		logging.Float64("size", order.Size),
		logging.Float64("price", order.Price),
	)
	return order, nil
}

func orderSpecWithSide(spec OrderSpec, side exchange.Side) OrderSpec {
	spec.Side = side
	return spec
}

// Reconcile re-fetches every in-flight order and applies what changed:
// new fills fold into the execution record, a closed match updates the
// position ledger and completes the order, a canceled match removes it
// with a cancel notification even when the engine never asked for the
// cancel. The two status checks run independently because their
// mapping rules may reference different raw fields. A fetch failure
// for one order is logged and skipped; the remaining orders still
// reconcile this tick.
func (b *Broker) Reconcile(ctx context.Context) {
	inflight := make([]*Order, len(b.open))
	copy(inflight, b.open)

	for _, order := range inflight {
		doc, err := b.store.FetchOrder(ctx, order.ID(), order.Symbol, nil)
		if err != nil {
			b.logger.Warn("order reconciliation skipped",
				logging.String("id", order.ID()),
				logging.Error(err),
			)
			continue
		}
		order.Raw = doc

		for _, fill := range doc.Trades {
			order.applyFill(fill)
		}

		removed := false
		if b.table.Is(mapping.StatusClosed, doc) {
			pos := b.position(order.Symbol)
			pos.Update(order.signedSize(), order.Price)
			order.Status = StatusCompleted
			b.notify(order)
			b.remove(order)
			removed = true

			if _, _, err := b.store.Balance(ctx, nil); err != nil {
				b.logger.Warn("balance refresh after fill failed", logging.Error(err))
			}
		}

		if !removed && b.table.Is(mapping.StatusCanceled, doc) {
			b.remove(order)
			order.Status = StatusCanceled
			b.notify(order)
		}
	}
}

// Cancel requests cancellation of an in-flight order. An order already
// matching the closed mapping is returned unchanged with no cancel
// call. The order leaves the in-flight set only on a confirmed
// canceled status; a venue that rejects the cancel, for instance
// because the order filled in the interim, leaves it for the next
// Reconcile.
func (b *Broker) Cancel(ctx context.Context, order *Order) (*Order, error) {
	doc, err := b.store.FetchOrder(ctx, order.ID(), order.Symbol, nil)
	if err != nil {
		return nil, err
	}
	if b.table.Is(mapping.StatusClosed, doc) {
		return order, nil
	}

	res, err := b.store.CancelOrder(ctx, order.ID(), order.Symbol)
	if err != nil {
		return nil, err
	}
	if b.table.Is(mapping.StatusCanceled, res) {
		b.remove(order)
		order.Status = StatusCanceled
		order.Raw = res
		b.notify(order)
	}
	return order, nil
}

// Notification returns the oldest unread order event, if any.
func (b *Broker) Notification() (*Order, bool) {
	if len(b.notifs) == 0 {
		return nil, false
	}
	order := b.notifs[0]
	b.notifs = b.notifs[1:]
	return order, true
}

// OpenOrders returns the current in-flight set.
func (b *Broker) OpenOrders() []*Order {
	out := make([]*Order, len(b.open))
	copy(out, b.open)
	return out
}

// Position returns a copy of the ledger entry for symbol. A symbol
// never traded reads as a flat position.
func (b *Broker) Position(symbol string) Position {
	if pos, ok := b.positions[symbol]; ok {
		return pos.Clone()
	}
	return Position{Symbol: symbol}
}

// Cash returns the cached free balance. No network call.
func (b *Broker) Cash() float64 { return b.store.Cash() }

// Value returns the cached total balance. No network call.
func (b *Broker) Value() float64 { return b.store.Value() }

// StartingCash returns the free balance at broker construction.
func (b *Broker) StartingCash() float64 { return b.startingCash }

// StartingValue returns the total balance at broker construction.
func (b *Broker) StartingValue() float64 { return b.startingValue }

// Balance refreshes the account balance from the exchange and updates
// the cached cash/value figures.
func (b *Broker) Balance(ctx context.Context) (cash, value float64, err error) {
	return b.store.Balance(ctx, nil)
}

// WalletBalance reads the balance of one currency without touching the
// cached account figures.
func (b *Broker) WalletBalance(ctx context.Context, currency string, params map[string]any) (cash, value float64, err error) {
	return b.store.WalletBalance(ctx, currency, params)
}

// FetchOrder passes through to the store.
func (b *Broker) FetchOrder(ctx context.Context, id, symbol string, params map[string]any) (exchange.Order, error) {
	return b.store.FetchOrder(ctx, id, symbol, params)
}

// FetchOrders passes through to the store.
func (b *Broker) FetchOrders(ctx context.Context, symbol string, since int64, limit int) ([]exchange.Order, error) {
	return b.store.FetchOrders(ctx, symbol, since, limit)
}

// FetchOpenOrders passes through to the store.
func (b *Broker) FetchOpenOrders(ctx context.Context, symbol string, since int64, limit int) ([]exchange.Order, error) {
	return b.store.FetchOpenOrders(ctx, symbol, since, limit)
}

// FetchClosedOrders passes through to the store.
func (b *Broker) FetchClosedOrders(ctx context.Context, symbol string, since int64, limit int) ([]exchange.Order, error) {
	return b.store.FetchClosedOrders(ctx, symbol, since, limit)
}

// Positions fetches exchange-side positions through the store.
func (b *Broker) Positions(ctx context.Context, symbols []string, params map[string]any) ([]exchange.Position, error) {
	return b.store.FetchPositions(ctx, symbols, params)
}

// ModifyOrder amends an open order through the store.
func (b *Broker) ModifyOrder(ctx context.Context, id, symbol string, req exchange.OrderRequest) (exchange.Order, error) {
	return b.store.EditOrder(ctx, id, symbol, req)
}

// PublicEndpoint invokes an arbitrary public venue endpoint by name.
func (b *Broker) PublicEndpoint(ctx context.Context, method, endpoint string, params map[string]any, prefix string) (map[string]any, error) {
	return b.store.CallEndpoint(ctx, endpointName(false, method, endpoint, prefix), params)
}

// PrivateEndpoint invokes an arbitrary private venue endpoint by name.
// It is the escape hatch for venue functionality the unified surface
// does not cover.
func (b *Broker) PrivateEndpoint(ctx context.Context, method, endpoint string, params map[string]any, prefix string) (map[string]any, error) {
	return b.store.CallEndpoint(ctx, endpointName(true, method, endpoint, prefix), params)
}

var endpointCleaner = strings.NewReplacer("/", "_", "-", "_", "{", "", "}", "")

// endpointName normalizes a REST path into the connectivity library's
// implicit method name: path separators and dashes become underscores,
// path-parameter braces are stripped, and the result is prefixed with
// visibility and HTTP verb. Paths carry their leading slash, so
// ("get", "/order/{id}/cancel") becomes "private_get_order_id_cancel".
func endpointName(private bool, method, endpoint, prefix string) string {
	cleaned := strings.ToLower(endpointCleaner.Replace(endpoint))
	scope := "public"
	if private {
		scope = "private"
	}
	name := scope + "_" + strings.ToLower(method) + cleaned
	if prefix != "" {
		name = strings.ToLower(prefix) + "_" + name
	}
	return name
}

func (b *Broker) notify(order *Order) {
	b.notifs = append(b.notifs, order)
}

func (b *Broker) position(symbol string) *Position {
	pos, ok := b.positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		b.positions[symbol] = pos
	}
	return pos
}

func (b *Broker) remove(order *Order) {
	for i, o := range b.open {
		if o == order {
			b.open = append(b.open[:i], b.open[i+1:]...)
			return
		}
	}
}
