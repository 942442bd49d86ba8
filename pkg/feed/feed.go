// Package feed turns paginated candle history and live polling into a
// pull-one-bar-at-a-time stream. A Feed runs a small state machine: it
// backfills history when a start time is configured, then either ends
// (historical-only mode) or switches to live polling against the same
// store. Bars are deduplicated against a monotonic timestamp watermark
// so the consumer never sees the same candle twice, regardless of how
// the exchange pages its responses.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veiloq/exchange-bridge/pkg/exchange"
	"github.com/veiloq/exchange-bridge/pkg/logging"
	"github.com/veiloq/exchange-bridge/pkg/store"
)

// State identifies the feed's position in its lifecycle.
type State int

const (
	// StateHistorical is the backfill phase driven by Options.FromTime.
	StateHistorical State = iota
	// StateLive polls the exchange forward from the last seen bar.
	StateLive
	// StateDone is terminal. Only historical-only feeds reach it.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateHistorical:
		return "historical"
	case StateLive:
		return "live"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Status is a lifecycle event surfaced to the consumer via Notification.
type Status int

const (
	// StatusDelayed announces that backfill is in progress and bars
	// lag real time.
	StatusDelayed Status = iota
	// StatusLive announces the switch to live polling.
	StatusLive
	// StatusDisconnected announces that no further bars will arrive.
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusDelayed:
		return "delayed"
	case StatusLive:
		return "live"
	case StatusDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ErrEnded reports that a historical-only feed has delivered its whole
// window. Further Next calls keep returning it.
var ErrEnded = errors.New("feed: end of data")

// ErrNoData reports that a live poll produced no new bar yet. The
// caller is expected to try again on its next tick.
var ErrNoData = errors.New("feed: no new bars")

const defaultFetchLimit = 20

// Options configures a Feed.
type Options struct {
	// Symbol is the market to stream, in the exchange's notation.
	Symbol string

	// Timeframe and Compression select the bar granularity. Ticks
	// bypasses candles entirely and samples the order book instead.
	Timeframe   store.Timeframe
	Compression int

	// FromTime, when set, triggers a historical backfill starting
	// there before any live polling.
	FromTime time.Time

	// ToTime caps the backfill window. Zero means "now" at fetch time.
	ToTime time.Time

	// Historical stops the feed once the backfill window is
	// exhausted instead of switching to live polling.
	Historical bool

	// FetchLimit is the page size for candle pagination.
	FetchLimit int

	// DropNewest discards the newest bar of each fetched batch. Some
	// exchanges include the current, still-forming candle in results.
	DropNewest bool

	// Params is passed through to every candle fetch.
	Params map[string]any

	Logger logging.Logger
}

// Feed streams bars for one market. Not safe for concurrent use; the
// engine drives it from a single tick goroutine.
type Feed struct {
	store  *store.Store
	opts   Options
	logger logging.Logger

	// granularity is the exchange code resolved once at construction.
	granularity string

	state   State
	buffer  []exchange.OHLCV
	lastTS  int64
	tsDelta int64

	pending []Status

	now func() time.Time
}

// New builds a Feed over st. The granularity is resolved eagerly so an
// unsupported timeframe/compression pair fails here, before any fetch.
func New(st *store.Store, opts Options) (*Feed, error) {
	if opts.Symbol == "" {
		return nil, errors.New("feed: symbol is required")
	}
	if opts.FetchLimit <= 0 {
		opts.FetchLimit = defaultFetchLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger()
	}

	f := &Feed{
		store:  st,
		opts:   opts,
		logger: logger,
		state:  StateLive,
		now:    time.Now,
	}
	if opts.Timeframe != store.Ticks {
		code, err := st.Granularity(opts.Timeframe, opts.Compression)
		if err != nil {
			return nil, err
		}
		f.granularity = code
	}
	return f, nil
}

// Start primes the feed. With FromTime set it enters the backfill
// phase and fetches the historical window up front; a fetch failure
// here is fatal for the feed. Without FromTime the feed goes straight
// to live polling.
func (f *Feed) Start(ctx context.Context) error {
	if !f.opts.FromTime.IsZero() {
		f.state = StateHistorical
		f.notify(StatusDelayed)
		if err := f.fetchWindow(ctx, f.opts.FromTime.UnixMilli(), f.backfillUntil()); err != nil {
			return err
		}
		return nil
	}
	f.state = StateLive
	f.notify(StatusLive)
	return nil
}

// Next returns the next bar in strictly increasing timestamp order.
// It returns ErrEnded once a historical-only feed is exhausted and
// ErrNoData when a live poll has nothing new yet.
func (f *Feed) Next(ctx context.Context) (exchange.OHLCV, error) {
	for {
		switch f.state {
		case StateDone:
			return exchange.OHLCV{}, ErrEnded

		case StateLive:
			if f.opts.Timeframe == store.Ticks {
				return f.nextTick(ctx)
			}
			if len(f.buffer) == 0 {
				since, err := f.liveSince()
				if err != nil {
					return exchange.OHLCV{}, err
				}
				if err := f.fetchWindow(ctx, since, f.now().UnixMilli()); err != nil {
					return exchange.OHLCV{}, err
				}
			}
			bar, ok := f.pop()
			if !ok {
				return exchange.OHLCV{}, ErrNoData
			}
			return bar, nil

		case StateHistorical:
			if bar, ok := f.pop(); ok {
				return bar, nil
			}
			if f.opts.Historical {
				f.notify(StatusDisconnected)
				f.state = StateDone
				return exchange.OHLCV{}, ErrEnded
			}
			f.state = StateLive
			f.notify(StatusLive)
		}
	}
}

// Notification returns the oldest unread status event, if any.
func (f *Feed) Notification() (Status, bool) {
	if len(f.pending) == 0 {
		return 0, false
	}
	status := f.pending[0]
	f.pending = f.pending[1:]
	return status, true
}

// HasLiveData reports whether live-phase bars are already buffered.
func (f *Feed) HasLiveData() bool {
	return f.state == StateLive && len(f.buffer) > 0
}

// IsLive reports whether the feed will ever enter the live phase.
func (f *Feed) IsLive() bool { return !f.opts.Historical }

// State returns the current lifecycle state.
func (f *Feed) State() State { return f.state }

func (f *Feed) notify(status Status) {
	f.pending = append(f.pending, status)
}

func (f *Feed) pop() (exchange.OHLCV, bool) {
	if len(f.buffer) == 0 {
		return exchange.OHLCV{}, false
	}
	bar := f.buffer[0]
	f.buffer = f.buffer[1:]
	return bar, true
}

// liveSince derives the next fetch cursor from the watermark. Without
// a prior bar there is nothing to anchor the poll on.
func (f *Feed) liveSince() (int64, error) {
	if f.lastTS <= 0 {
		return 0, errors.New("feed: unable to determine fetch window, no prior bar and no start time")
	}
	if f.tsDelta > 0 {
		return f.lastTS + f.tsDelta, nil
	}
	return f.lastTS, nil
}

// fetchWindow pages through fetchOHLCV from since until either the
// upper bound is reached or the exchange returns an empty page, then
// filters, optionally drops the newest bar, and buffers everything
// past the watermark. A short page does not end pagination: the cursor
// advances to the last row's timestamp plus one and the loop asks
// again.
func (f *Feed) fetchWindow(ctx context.Context, since, until int64) error {
	var batch []exchange.OHLCV
	cursor := since
	for cursor < until {
		rows, err := f.store.FetchOHLCV(ctx, f.opts.Symbol, f.granularity, cursor, f.opts.FetchLimit, f.opts.Params)
		if err != nil {
			return fmt.Errorf("feed: ohlcv pagination at %d: %w", cursor, err)
		}
		if len(rows) == 0 {
			break
		}
		cursor = rows[len(rows)-1].Timestamp + 1
		batch = append(batch, rows...)
	}

	kept := batch[:0]
	for _, row := range batch {
		if row.Timestamp >= since && row.Timestamp < until {
			kept = append(kept, row)
		}
	}
	if f.opts.DropNewest && len(kept) > 0 {
		kept = kept[:len(kept)-1]
	}

	for i, row := range kept {
		if i > 0 && f.tsDelta == 0 {
			f.tsDelta = row.Timestamp - kept[i-1].Timestamp
		}
		if row.Timestamp > f.lastTS {
			f.buffer = append(f.buffer, row)
			f.lastTS = row.Timestamp
		}
	}

	f.logger.Debug("fetched candle window",
		logging.String("symbol", f.opts.Symbol),
		logging.Int64("since", since),
		logging.Int("buffered", len(f.buffer)),
	)
	return nil
}

// backfillUntil caps the historical window. The cap applies to the
// initial backfill only; live polls always run up to the present.
func (f *Feed) backfillUntil() int64 {
	if !f.opts.ToTime.IsZero() {
		return f.opts.ToTime.UnixMilli()
	}
	return f.now().UnixMilli()
}

// nextTick samples the order book and emits the best bid as a
// degenerate single-price bar. No pagination, no buffering.
func (f *Feed) nextTick(ctx context.Context) (exchange.OHLCV, error) {
	book, err := f.store.FetchOrderBook(ctx, f.opts.Symbol, 1)
	if err != nil {
		return exchange.OHLCV{}, err
	}
	bid, ok := book.BestBid()
	if !ok {
		return exchange.OHLCV{}, ErrNoData
	}
	ts := book.Timestamp
	if ts == 0 {
		ts = f.now().UnixMilli()
	}
	return exchange.OHLCV{
		Timestamp: ts,
		Open:      bid.Price,
		High:      bid.Price,
		Low:       bid.Price,
		Close:     bid.Price,
		Volume:    bid.Amount,
	}, nil
}
