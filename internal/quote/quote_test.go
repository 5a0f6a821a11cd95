package quote

import (
	"math"
	"testing"
	"time"

	"chitamaker/internal/config"
	"chitamaker/pkg/book"

	"github.com/shopspring/decimal"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCreateMMPairScenario(t *testing.T) {
	ref := book.New("ref", "ETH-PERP")
	ref.Replace([]book.PriceLevel{{Price: 101, Size: 1}}, []book.PriceLevel{{Price: 100, Size: 1}}, time.Now())
	// ref_mid = (101+100)/2 = 100.5

	mm := book.New("maker", "ETH-PERP")
	mm.Replace([]book.PriceLevel{{Price: 100.5, Size: 1}}, []book.PriceLevel{{Price: 99.5, Size: 1}}, time.Now())
	// mm_mid = (100.5+99.5)/2 = 100.0

	tkr := book.New("taker", "ETH-PERP")
	tkr.Replace(nil, []book.PriceLevel{{Price: 99, Size: 1.0}}, time.Now())

	mkt := config.MarketConfig{
		Name:           "ETH-PERP",
		MinSize:        "0",
		PricePrecision: 2,
	}

	pair := CreateMMPair(ref, mm, tkr, -0.1, mkt)

	if len(pair.Ask.Prices) != 1 || !almostEqual(pair.Ask.Prices[0], 100.25) {
		t.Errorf("ask prices = %v, want [100.25]", pair.Ask.Prices)
	}
	if len(pair.Ask.Sizes) != 1 || !almostEqual(pair.Ask.Sizes[0], 0.9) {
		t.Errorf("ask sizes = %v, want [0.9]", pair.Ask.Sizes)
	}
	if len(pair.Bid.Prices) != 1 || !almostEqual(pair.Bid.Prices[0], 99.75) {
		t.Errorf("bid prices = %v, want [99.75]", pair.Bid.Prices)
	}
	if len(pair.Bid.Sizes) != 1 || !almostEqual(pair.Bid.Sizes[0], 0.9) {
		t.Errorf("bid sizes = %v, want [0.9]", pair.Bid.Sizes)
	}
}

func TestCreateMMPairDropsBelowMinSize(t *testing.T) {
	ref := book.New("ref", "ETH-PERP")
	ref.Replace([]book.PriceLevel{{Price: 101, Size: 1}}, []book.PriceLevel{{Price: 100, Size: 1}}, time.Now())
	mm := book.New("maker", "ETH-PERP")
	mm.Replace([]book.PriceLevel{{Price: 100.5, Size: 1}}, []book.PriceLevel{{Price: 99.5, Size: 1}}, time.Now())
	tkr := book.New("taker", "ETH-PERP")
	tkr.Replace(nil, []book.PriceLevel{{Price: 99, Size: 0.01}}, time.Now())

	mkt := config.MarketConfig{
		Name:           "ETH-PERP",
		MinSize:        "1.0",
		PricePrecision: 2,
	}

	pair := CreateMMPair(ref, mm, tkr, 0, mkt)
	if len(pair.Ask.Sizes) != 0 {
		t.Errorf("expected level to be dropped below MinSize, got sizes=%v", pair.Ask.Sizes)
	}
}

func TestCreateMMPairDropsAboveUpperBound(t *testing.T) {
	ref := book.New("ref", "ETH-PERP")
	ref.Replace([]book.PriceLevel{{Price: 101, Size: 1}}, []book.PriceLevel{{Price: 100, Size: 1}}, time.Now())
	mm := book.New("maker", "ETH-PERP")
	mm.Replace([]book.PriceLevel{{Price: 100.5, Size: 1}}, []book.PriceLevel{{Price: 99.5, Size: 1}}, time.Now())
	tkr := book.New("taker", "ETH-PERP")
	tkr.Replace(nil, []book.PriceLevel{{Price: 99, Size: 1000}}, time.Now())

	mkt := config.MarketConfig{
		Name:            "ETH-PERP",
		MinSize:         "0",
		MMLotUpperBound: decimal.NewFromInt(10),
		PricePrecision:  2,
	}

	pair := CreateMMPair(ref, mm, tkr, 0, mkt)
	if len(pair.Ask.Sizes) != 0 {
		t.Errorf("expected level to be dropped above MMLotUpperBound, got sizes=%v", pair.Ask.Sizes)
	}
}
