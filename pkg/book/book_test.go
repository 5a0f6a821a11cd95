package book

import (
	"testing"
	"time"
)

func TestMid(t *testing.T) {
	b := New("ref", "ETH-PERP")
	asks := []PriceLevel{{102, 10}, {103, 20}, {104, 30}}
	bids := []PriceLevel{{98, 10}, {97, 20}, {96, 30}}
	b.Replace(asks, bids, time.Now())

	got := b.Mid()
	want := []float64{100, 100, 100}
	if len(got) != len(want) {
		t.Fatalf("len(mid) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("mid[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAskShiftUsesBidSizes(t *testing.T) {
	b := New("tkr", "ETH-PERP")
	asks := []PriceLevel{{101, 5}}
	bids := []PriceLevel{{99, 1}}
	b.Replace(asks, bids, time.Now())

	askShift := b.AskShift(-0.1)
	bidShift := b.BidShift(-0.1)

	if len(askShift) != 1 || askShift[0] != 0.9 {
		t.Fatalf("AskShift = %v, want [0.9] (derived from bid size 1, not ask size 5)", askShift)
	}
	if len(bidShift) != 1 || bidShift[0] != 0.9 {
		t.Fatalf("BidShift = %v, want [0.9]", bidShift)
	}
}

func TestIsStale(t *testing.T) {
	b := New("ref", "ETH-PERP")
	if !b.IsStale(time.Second) {
		t.Fatal("empty book should be stale")
	}
	b.Replace(nil, nil, time.Now())
	if b.IsStale(time.Minute) {
		t.Fatal("freshly updated book should not be stale")
	}
}

func TestBestBidAsk(t *testing.T) {
	b := New("m", "ETH-PERP")
	if _, _, ok := b.BestBidAsk(); ok {
		t.Fatal("expected ok=false for empty book")
	}
	b.Replace([]PriceLevel{{101, 1}}, []PriceLevel{{99, 2}}, time.Now())
	bid, ask, ok := b.BestBidAsk()
	if !ok || bid.Price != 99 || ask.Price != 101 {
		t.Fatalf("BestBidAsk = %+v %+v %v", bid, ask, ok)
	}
}
