package taker

import (
	"math/big"
	"testing"
)

func TestWalletAddressDerivation(t *testing.T) {
	w, err := NewWallet("c501312ca9eb1aaac6344edbe160e41d3d8d79570e6440f2a84f7d9abf462270")
	if err != nil {
		t.Fatalf("NewWallet: %v", err)
	}
	const want = "0xc6c71c996d437eb6589d1b8b17afcd1480afd5f30f6b7155ef468a9713d3240e"
	if got := w.Address(); got != want {
		t.Errorf("Address() = %s, want %s", got, want)
	}
}

func TestOrderFlagsRoundTrip(t *testing.T) {
	o := Order{IOC: true, PostOnly: false, ReduceOnly: false, IsBuy: true, OrderbookOnly: true}
	f := orderFlags(o)
	if f != 0x19 {
		t.Fatalf("flags = %#x, want 0x19", f)
	}
	ioc, postOnly, reduceOnly, isBuy, orderbookOnly := unpackFlags(f)
	if !ioc || postOnly || reduceOnly || !isBuy || !orderbookOnly {
		t.Fatalf("round trip mismatch: ioc=%v post=%v reduce=%v buy=%v obOnly=%v", ioc, postOnly, reduceOnly, isBuy, orderbookOnly)
	}
}

func TestCanonicalSerializeContainsFlagsAndSuffix(t *testing.T) {
	o := Order{
		Market:        "0x" + repeatHex("ab", 32),
		Maker:         "0x" + repeatHex("cd", 32),
		Price:         *big.NewInt(0),
		Quantity:      *big.NewInt(1),
		Leverage:      *big.NewInt(1),
		Salt:          *big.NewInt(1),
		Expiration:    1,
		IOC:           true,
		PostOnly:      false,
		ReduceOnly:    false,
		IsBuy:         true,
		OrderbookOnly: true,
	}
	buf, err := canonicalSerialize(o)
	if err != nil {
		t.Fatalf("canonicalSerialize: %v", err)
	}
	if !hasSuffix(buf, "19"+bluefinHexSuffix) {
		t.Errorf("buffer %q does not end with flags(19) + bluefin suffix", buf)
	}
}

// TestCanonicalSerializeWithDerivedMaker exercises the real signing path:
// a Maker built from a wallet's actual derived address (64 hex chars), the
// same value CreateMarketOrder/CreateLimitIOCOrder set in production.
func TestCanonicalSerializeWithDerivedMaker(t *testing.T) {
	w, err := NewWallet("c501312ca9eb1aaac6344edbe160e41d3d8d79570e6440f2a84f7d9abf462270")
	if err != nil {
		t.Fatalf("NewWallet: %v", err)
	}
	o := NewLimitIOCOrder("0x"+repeatHex("ab", 32), w.Address(), true, false, 3000.5, 0.33, 10, 1234567890, 42)

	if _, err := canonicalSerialize(o); err != nil {
		t.Fatalf("canonicalSerialize with derived maker address: %v", err)
	}
	if _, _, err := w.SignOrder(o); err != nil {
		t.Fatalf("SignOrder with derived maker address: %v", err)
	}
}

func TestMarketOrderQuantityScaling(t *testing.T) {
	o := NewMarketOrder("0x"+repeatHex("ab", 32), "0x"+repeatHex("cd", 32), true, false, 0.33, 1, 42)
	if o.Quantity.Cmp(big.NewInt(330000000000000000)) != 0 {
		t.Errorf("Quantity = %s, want 330000000000000000", o.Quantity.String())
	}
	if o.Leverage.Cmp(big.NewInt(1000000000000000000)) != 0 {
		t.Errorf("Leverage = %s, want 1000000000000000000", o.Leverage.String())
	}
	if o.Price.Sign() != 0 || !o.OrderbookOnly || !o.IOC || o.PostOnly {
		t.Errorf("market order flags wrong: %+v", o)
	}
	if o.Expiration != MarketOrderExpiration {
		t.Errorf("Expiration = %d, want %d", o.Expiration, MarketOrderExpiration)
	}
	if o.OrderType != OrderTypeMarket {
		t.Errorf("OrderType = %s, want MARKET", o.OrderType)
	}
}

func TestLimitIOCOrderPriceScalingExceedsUint64(t *testing.T) {
	// ETH-PERP-scale price: 3000 * 1e18 overflows uint64 (max ~1.8e19) by
	// two orders of magnitude, so this only passes if Price is a big.Int.
	o := NewLimitIOCOrder("0x"+repeatHex("ab", 32), "0x"+repeatHex("cd", 32), true, false, 3000.0, 1.5, 1, 1234567890, 42)
	want, _ := new(big.Int).SetString("3000000000000000000000", 10)
	if o.Price.Cmp(want) != 0 {
		t.Errorf("Price = %s, want %s", o.Price.String(), want.String())
	}
}

func repeatHex(pair string, n int) string {
	out := make([]byte, 0, len(pair)*n)
	for i := 0; i < n; i++ {
		out = append(out, pair...)
	}
	return string(out)
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
