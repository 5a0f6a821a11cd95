// Package marketmaker implements the per-market market-maker loop:
// maintains a three-venue order book map, and on each trigger event
// (venue R book-diff, venue M ticker, venue T book-diff) invokes the
// quote engine and submits a LIMIT IOC order on venue T for every quote
// level that changed since the last submission.
package marketmaker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chitamaker/internal/config"
	"chitamaker/internal/quote"
	"chitamaker/internal/stream"
	"chitamaker/pkg/book"
	"chitamaker/pkg/venues/taker"
)

// OrderSubmitter is the narrow slice of taker.Client the loop needs to
// post quotes — a seam so tests don't need a live venue T connection.
type OrderSubmitter interface {
	CreateLimitIOCOrder(market string, isBuy, reduceOnly bool, priceF64, quantityF64 float64, expiration uint64) (taker.Order, error)
	SignOrder(o taker.Order) (hashHex, signature string, err error)
	PostSignedOrder(ctx context.Context, o taker.Order, signature string) taker.Response
}

// BreakerNotifier mirrors hedger.BreakerNotifier — the loop's quote
// submissions feed the same per-market circuit breaker the Hedger does.
type BreakerNotifier interface {
	OnSuccess()
	OnFailure(ctx context.Context)
}

const (
	venueReference = "reference"
	venueMaker     = "maker"
	venueTaker     = "taker"
)

// Loop is one market's maker loop: single-owner over its ob_map and its
// last-submitted quote, so no locking is needed.
type Loop struct {
	market      config.MarketConfig
	takerClient OrderSubmitter
	breaker     BreakerNotifier
	logger      *slog.Logger

	books    map[string]*book.Book
	lastPair quote.Pair
	hasLast  bool

	onOrder func(isBuy bool, price, quantity float64, err error)
}

// SetOrderObserver registers a callback invoked after every quote-order
// submission attempt (nil err on success) — the engine uses this to feed
// the dashboard's order-event stream without the loop importing internal/api.
func (l *Loop) SetOrderObserver(fn func(isBuy bool, price, quantity float64, err error)) {
	l.onOrder = fn
}

// Books returns the loop's per-venue book map for read-only dashboard
// access. Book is internally mutex-protected, so concurrent Snapshot/
// BestBidAsk calls from outside the loop's own goroutine are safe.
func (l *Loop) Books() map[string]*book.Book {
	return l.books
}

// LastQuote returns the most recently computed quote pair and whether one
// has been computed yet.
func (l *Loop) LastQuote() (quote.Pair, bool) {
	return l.lastPair, l.hasLast
}

// New constructs a Loop for one market. The three books are pre-created
// (empty) so the loop can detect "book not yet received" via IsStale-free
// zero-length snapshots rather than nil map lookups.
func New(mkt config.MarketConfig, takerClient OrderSubmitter, breaker BreakerNotifier, logger *slog.Logger) *Loop {
	return &Loop{
		market:      mkt,
		takerClient: takerClient,
		breaker:     breaker,
		logger:      logger.With("component", "marketmaker", "market", mkt.Name),
		books: map[string]*book.Book{
			venueReference: book.New(venueReference, mkt.Symbols.Reference),
			venueMaker:     book.New(venueMaker, mkt.Symbols.Maker),
			venueTaker:     book.New(venueTaker, mkt.Symbols.Taker),
		},
	}
}

// Run drains the four streamer channels until ctx is cancelled. Any
// channel disconnect is fatal for this market, per spec.md §4.6.
func (l *Loop) Run(ctx context.Context, refBooks, makerBooks <-chan stream.BookEvent, makerTicker <-chan stream.TickerEvent, takerBooks <-chan stream.BookEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-refBooks:
			if !ok {
				return fmt.Errorf("reference book channel disconnected")
			}
			l.books[venueReference].Replace(ev.Asks, ev.Bids, time.Now())
			l.onTrigger(ctx)

		case ev, ok := <-makerBooks:
			if !ok {
				return fmt.Errorf("maker book channel disconnected")
			}
			l.books[venueMaker].Replace(ev.Asks, ev.Bids, time.Now())
			// book updates alone aren't a trigger; the ticker is.

		case _, ok := <-makerTicker:
			if !ok {
				return fmt.Errorf("maker ticker channel disconnected")
			}
			l.onTrigger(ctx)

		case ev, ok := <-takerBooks:
			if !ok {
				return fmt.Errorf("taker book channel disconnected")
			}
			l.books[venueTaker].Replace(ev.Asks, ev.Bids, time.Now())
			l.onTrigger(ctx)
		}
	}
}

// onTrigger invokes the quote engine once all three books carry at least
// one level, then submits every changed level to venue T.
func (l *Loop) onTrigger(ctx context.Context) {
	for _, v := range []string{venueReference, venueMaker, venueTaker} {
		asks, bids, _ := l.books[v].Snapshot()
		if len(asks) == 0 || len(bids) == 0 {
			return
		}
	}

	pair := quote.CreateMMPair(l.books[venueReference], l.books[venueMaker], l.books[venueTaker], l.market.SkewingCoefficient, l.market)

	var prevAsk, prevBid quote.Side
	if l.hasLast {
		prevAsk, prevBid = l.lastPair.Ask, l.lastPair.Bid
	}

	for _, lvl := range diffLevels(prevAsk, pair.Ask) {
		l.submit(ctx, false, pair.Ask.Prices[lvl], pair.Ask.Sizes[lvl])
	}
	for _, lvl := range diffLevels(prevBid, pair.Bid) {
		l.submit(ctx, true, pair.Bid.Prices[lvl], pair.Bid.Sizes[lvl])
	}

	l.lastPair = pair
	l.hasLast = true
}

// diffLevels returns the indices of new whose (price, size) differ from
// old at that index, including every index beyond old's length.
func diffLevels(old, next quote.Side) []int {
	var changed []int
	for i := range next.Prices {
		if i >= len(old.Prices) || i >= len(old.Sizes) || old.Prices[i] != next.Prices[i] || old.Sizes[i] != next.Sizes[i] {
			changed = append(changed, i)
		}
	}
	return changed
}

// submit builds, signs, and posts a single LIMIT IOC order on venue T for
// one changed quote level, reporting the outcome to the breaker.
func (l *Loop) submit(ctx context.Context, isBuy bool, price, quantity float64) {
	order, err := l.takerClient.CreateLimitIOCOrder(l.market.Symbols.Taker, isBuy, false, price, quantity, taker.MarketOrderExpiration)
	if err != nil {
		l.logger.Error("build quote order", "error", err)
		l.breaker.OnFailure(ctx)
		return
	}
	hash, signature, err := l.takerClient.SignOrder(order)
	if err != nil {
		l.logger.Error("sign quote order", "error", err)
		l.breaker.OnFailure(ctx)
		return
	}
	order.Hash = hash

	resp := l.takerClient.PostSignedOrder(ctx, order, signature)
	if resp.Error != nil {
		l.logger.Error("submit quote order", "error", resp.Error, "is_buy", isBuy, "price", price, "quantity", quantity)
		l.breaker.OnFailure(ctx)
		if l.onOrder != nil {
			l.onOrder(isBuy, price, quantity, resp.Error)
		}
		return
	}
	l.breaker.OnSuccess()
	l.logger.Debug("quote order submitted", "is_buy", isBuy, "price", price, "quantity", quantity)
	if l.onOrder != nil {
		l.onOrder(isBuy, price, quantity, nil)
	}
}
