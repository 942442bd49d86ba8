package broker

import (
	"github.com/veiloq/exchange-bridge/pkg/exchange"
	"github.com/veiloq/exchange-bridge/pkg/mapping"
)

// Status is the broker-local lifecycle state of an order.
type Status int

const (
	// StatusAccepted means the exchange acknowledged the order and it
	// sits in the in-flight set.
	StatusAccepted Status = iota
	// StatusCompleted means the closed-status mapping matched and the
	// position ledger was updated.
	StatusCompleted
	// StatusCanceled means the canceled-status mapping matched, either
	// after a cancel request or unprompted from the exchange side.
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusCompleted:
		return "completed"
	case StatusCanceled:
		return "canceled"
	}
	return "unknown"
}

// Execution is the accumulated fill record of one order.
type Execution struct {
	Size  float64
	Price float64
}

// Order is the broker's in-flight record for one exchange order. It
// pairs a local reference with the latest exchange document and tracks
// which fills have already been applied. Mutated only from the tick
// goroutine.
type Order struct {
	// Ref is the broker-local sequence number.
	Ref int

	Symbol string
	Side   exchange.Side
	Kind   mapping.OrderKind
	Size   float64
	Price  float64
	Status Status

	// Raw is the most recent exchange order document.
	Raw exchange.Order

	// Executed accumulates applied fills, volume-weighted.
	Executed Execution

	appliedFills map[string]struct{}
}

func newOrder(ref int, symbol string, side exchange.Side, kind mapping.OrderKind, size float64, raw exchange.Order) *Order {
	return &Order{
		Ref:          ref,
		Symbol:       symbol,
		Side:         side,
		Kind:         kind,
		Size:         size,
		Price:        raw.Price,
		Raw:          raw,
		appliedFills: make(map[string]struct{}),
	}
}

// ID returns the exchange-assigned order id.
func (o *Order) ID() string { return o.Raw.ID }

// applyFill folds a fill into the execution record once. It reports
// whether the fill was new; replayed fill ids are ignored.
func (o *Order) applyFill(f exchange.Fill) bool {
	if f.ID == "" {
		return false
	}
	if _, seen := o.appliedFills[f.ID]; seen {
		return false
	}
	o.appliedFills[f.ID] = struct{}{}

	total := o.Executed.Size + f.Amount
	if total != 0 {
		o.Executed.Price = (o.Executed.Price*o.Executed.Size + f.Price*f.Amount) / total
	}
	o.Executed.Size = total
	return true
}

// signedSize returns the position-ledger contribution: positive for
// buys, negative for sells.
func (o *Order) signedSize() float64 {
	if o.Side == exchange.Sell {
		return -o.Size
	}
	return o.Size
}
