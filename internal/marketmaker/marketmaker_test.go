package marketmaker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"chitamaker/internal/config"
	"chitamaker/internal/quote"
	"chitamaker/internal/stream"
	"chitamaker/pkg/book"
	"chitamaker/pkg/venues/taker"

	"github.com/shopspring/decimal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMarket() config.MarketConfig {
	return config.MarketConfig{
		Name:            "ETH-PERP",
		MMLotUpperBound: decimal.NewFromInt(0),
		LotSize:         decimal.NewFromInt(0),
		MinSize:         "0",
		PricePrecision:  2,
		Symbols: config.SymbolSet{
			Reference: "ETHUSDT",
			Maker:     "ETHUSDTM",
			Taker:     "ETH-PERP",
		},
	}
}

func level(price float64) []book.PriceLevel {
	return []book.PriceLevel{{Price: price, Size: 1}}
}

type fakeSubmitter struct {
	orders   int
	failNext bool
}

func (f *fakeSubmitter) CreateLimitIOCOrder(market string, isBuy, reduceOnly bool, priceF64, quantityF64 float64, expiration uint64) (taker.Order, error) {
	return taker.Order{Market: market, IsBuy: isBuy}, nil
}

func (f *fakeSubmitter) SignOrder(o taker.Order) (string, string, error) {
	return "deadbeef", "sig", nil
}

func (f *fakeSubmitter) PostSignedOrder(ctx context.Context, o taker.Order, signature string) taker.Response {
	f.orders++
	if f.failNext {
		f.failNext = false
		return taker.Response{Error: io.ErrClosedPipe}
	}
	return taker.Response{OrderHash: "deadbeef"}
}

type countingBreaker struct {
	successes int
	failures  int
}

func (b *countingBreaker) OnSuccess()                    { b.successes++ }
func (b *countingBreaker) OnFailure(ctx context.Context) { b.failures++ }

func TestDiffLevelsDetectsChangesAndNewLevels(t *testing.T) {
	old := quote.Side{Prices: []float64{100, 101}, Sizes: []float64{1, 1}}
	next := quote.Side{Prices: []float64{100, 102, 103}, Sizes: []float64{1, 1, 1}}
	got := diffLevels(old, next)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("diffLevels = %v, want [1 2]", got)
	}
}

func TestDiffLevelsNoChange(t *testing.T) {
	side := quote.Side{Prices: []float64{100}, Sizes: []float64{1}}
	got := diffLevels(side, side)
	if len(got) != 0 {
		t.Errorf("diffLevels = %v, want empty", got)
	}
}

func TestOnTriggerWaitsForAllThreeBooks(t *testing.T) {
	sub := &fakeSubmitter{}
	brk := &countingBreaker{}
	l := New(testMarket(), sub, brk, testLogger())

	l.books[venueReference].Replace(level(101), level(100), time.Now())
	l.onTrigger(context.Background())
	if sub.orders != 0 {
		t.Fatalf("expected no orders submitted with incomplete books, got %d", sub.orders)
	}
}

func TestOnTriggerSubmitsOnceAllBooksPresent(t *testing.T) {
	sub := &fakeSubmitter{}
	brk := &countingBreaker{}
	l := New(testMarket(), sub, brk, testLogger())

	l.books[venueReference].Replace(level(101), level(100), time.Now())
	l.books[venueMaker].Replace(level(100.5), level(99.5), time.Now())
	l.books[venueTaker].Replace(level(102), level(98), time.Now())

	l.onTrigger(context.Background())

	if sub.orders == 0 {
		t.Fatalf("expected orders to be submitted once all books are present")
	}
	if brk.successes == 0 {
		t.Errorf("expected breaker success reports, got 0")
	}
	if !l.hasLast {
		t.Errorf("expected lastPair to be recorded")
	}

	firstOrders := sub.orders
	l.onTrigger(context.Background())
	if sub.orders != firstOrders {
		t.Errorf("expected no re-submission when quote is unchanged, orders went from %d to %d", firstOrders, sub.orders)
	}
}

func TestOnTriggerReportsFailureToBreaker(t *testing.T) {
	sub := &fakeSubmitter{failNext: true}
	brk := &countingBreaker{}
	l := New(testMarket(), sub, brk, testLogger())

	l.books[venueReference].Replace(level(101), level(100), time.Now())
	l.books[venueMaker].Replace(level(100.5), level(99.5), time.Now())
	l.books[venueTaker].Replace(level(102), level(98), time.Now())

	l.onTrigger(context.Background())

	if brk.failures == 0 {
		t.Errorf("expected at least one failure reported to breaker")
	}
}

func TestRunReturnsErrorOnChannelDisconnect(t *testing.T) {
	sub := &fakeSubmitter{}
	brk := &countingBreaker{}
	l := New(testMarket(), sub, brk, testLogger())

	refBooks := make(chan stream.BookEvent)
	makerBooks := make(chan stream.BookEvent)
	makerTicker := make(chan stream.TickerEvent)
	takerBooks := make(chan stream.BookEvent)
	close(takerBooks)

	err := l.Run(context.Background(), refBooks, makerBooks, makerTicker, takerBooks)
	if err == nil {
		t.Fatal("expected error on channel disconnect")
	}
}
