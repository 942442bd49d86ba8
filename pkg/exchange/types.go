package exchange

import "time"

// OHLCV is a single open-high-low-close-volume row. Timestamp is the
// bar open time in milliseconds since the Unix epoch, matching the wire
// format exchanges return for kline endpoints.
type OHLCV struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Time returns the bar open time.
func (o OHLCV) Time() time.Time {
	return time.UnixMilli(o.Timestamp)
}

// Balance is an account balance snapshot keyed by currency code.
// A currency absent from all maps reads as zero: exchanges omit
// never-funded currencies from balance responses.
type Balance struct {
	Free  map[string]float64
	Used  map[string]float64
	Total map[string]float64
}

// FreeOf returns the free balance for a currency, zero when absent.
func (b Balance) FreeOf(currency string) float64 {
	return b.Free[currency]
}

// TotalOf returns the total balance for a currency, zero when absent.
func (b Balance) TotalOf(currency string) float64 {
	return b.Total[currency]
}

// Fill is a single trade executed against an order.
type Fill struct {
	ID        string  `json:"id"`
	Timestamp int64   `json:"timestamp"`
	Amount    float64 `json:"amount"`
	Price     float64 `json:"price"`
}

// Trade is one public trade from a symbol's trade tape.
type Trade struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Side      Side    `json:"side"`
	Timestamp int64   `json:"timestamp"`
	Amount    float64 `json:"amount"`
	Price     float64 `json:"price"`
}

// Order is the exchange-side order document in unified form. Status
// carries the venue's raw status string; Info carries any raw fields not
// covered by the unified ones, so status mapping rules can reference
// venue specific keys such as "result".
type Order struct {
	ID        string         `json:"id"`
	Symbol    string         `json:"symbol"`
	Type      string         `json:"type"`
	Side      Side           `json:"side"`
	Status    string         `json:"status"`
	Price     float64        `json:"price"`
	Amount    float64        `json:"amount"`
	Filled    float64        `json:"filled"`
	Remaining float64        `json:"remaining"`
	Timestamp int64          `json:"timestamp"`
	Trades    []Fill         `json:"trades,omitempty"`
	Info      map[string]any `json:"info,omitempty"`
}

// Field resolves a raw field by key: unified fields first, then the
// Info document. Returns nil when the key is unknown.
func (o Order) Field(key string) any {
	switch key {
	case "id":
		return o.ID
	case "symbol":
		return o.Symbol
	case "type":
		return o.Type
	case "side":
		return string(o.Side)
	case "status":
		return o.Status
	case "price":
		return o.Price
	case "amount":
		return o.Amount
	case "filled":
		return o.Filled
	case "remaining":
		return o.Remaining
	}
	if o.Info != nil {
		if v, ok := o.Info[key]; ok {
			return v
		}
	}
	return nil
}

// Position is an open position as reported by the exchange.
type Position struct {
	Symbol string         `json:"symbol"`
	Side   Side           `json:"side"`
	Size   float64        `json:"size"`
	Entry  float64        `json:"entry"`
	Info   map[string]any `json:"info,omitempty"`
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price  float64
	Amount float64
}

// OrderBook is a depth snapshot. Bids are sorted best (highest) first,
// asks best (lowest) first.
type OrderBook struct {
	Symbol    string
	Timestamp int64
	Bids      []BookLevel
	Asks      []BookLevel
}

// BestBid returns the top bid level and whether one exists.
func (b OrderBook) BestBid() (BookLevel, bool) {
	if len(b.Bids) == 0 {
		return BookLevel{}, false
	}
	return b.Bids[0], true
}
