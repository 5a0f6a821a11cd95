package taker

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// flag bit positions, combined bitwise into the single flags byte the
// canonical serialization carries.
const (
	flagIOC           = 1 << 0
	flagPostOnly      = 1 << 1
	flagReduceOnly    = 1 << 2
	flagIsBuy         = 1 << 3
	flagOrderbookOnly = 1 << 4
)

// orderFlags packs the five order booleans into a single byte.
func orderFlags(o Order) byte {
	var f byte
	if o.IOC {
		f |= flagIOC
	}
	if o.PostOnly {
		f |= flagPostOnly
	}
	if o.ReduceOnly {
		f |= flagReduceOnly
	}
	if o.IsBuy {
		f |= flagIsBuy
	}
	if o.OrderbookOnly {
		f |= flagOrderbookOnly
	}
	return f
}

// unpackFlags is the inverse of orderFlags, used only by tests to verify
// the round-trip property.
func unpackFlags(f byte) (ioc, postOnly, reduceOnly, isBuy, orderbookOnly bool) {
	return f&flagIOC != 0, f&flagPostOnly != 0, f&flagReduceOnly != 0, f&flagIsBuy != 0, f&flagOrderbookOnly != 0
}

// bluefinHexSuffix is the ASCII bytes of "Bluefin" hex-encoded; it is a
// constant literal tail on every canonical order buffer.
const bluefinHexSuffix = "426c756566696e"

// canonicalSerialize builds the lowercase-hex buffer whose sha256 is the
// order hash, in the exact field order the venue's verifier expects:
// price, quantity, leverage, salt (each 32 hex digits / u128 big-endian),
// expiration (16 hex digits / u64 big-endian), maker address (64 hex
// chars, no "0x"), market id (64 hex chars, no "0x"), flags byte (2 hex
// digits), then the literal "Bluefin" ASCII-hex tail.
func canonicalSerialize(o Order) (string, error) {
	maker := strings.TrimPrefix(o.Maker, "0x")
	market := strings.TrimPrefix(o.Market, "0x")
	if len(maker) != 64 {
		return "", fmt.Errorf("maker address must be 32 bytes hex, got %d chars", len(maker))
	}
	if len(market) != 64 {
		return "", fmt.Errorf("market id must be 32 bytes hex, got %d chars", len(market))
	}

	var b strings.Builder
	b.WriteString(hexPad(o.Price, 32))
	b.WriteString(hexPad(o.Quantity, 32))
	b.WriteString(hexPad(o.Leverage, 32))
	b.WriteString(hexPad(o.Salt, 32))
	fmt.Fprintf(&b, "%016x", o.Expiration)
	b.WriteString(maker)
	b.WriteString(market)
	fmt.Fprintf(&b, "%02x", orderFlags(o))
	b.WriteString(bluefinHexSuffix)

	out := b.String()
	if _, err := hex.DecodeString(out); err != nil {
		return "", fmt.Errorf("canonical buffer is not valid hex: %w", err)
	}
	return out, nil
}

// hexPad renders n as lowercase hex, left-padded with zeros to width hex
// digits — the u128 big-endian encoding every price/quantity/leverage/salt
// field uses. big.Int.Format has a pointer receiver, so n can't be
// interpolated directly through a %x verb; Text(16) is used instead.
func hexPad(n big.Int, width int) string {
	s := n.Text(16)
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}

// NewMarketOrder builds a MARKET order per venue T's convention: price=0,
// orderbook_only=true, ioc=true, post_only=false, the literal sentinel
// expiration, quantity wei-scaled from its float input, and leverage
// wei-scaled from its integer input.
func NewMarketOrder(market, maker string, isBuy, reduceOnly bool, quantityF64 float64, leverage uint64, salt uint64) Order {
	return Order{
		Market:        market,
		Maker:         maker,
		Price:         big.Int{},
		Quantity:      floatToWei(quantityF64),
		Leverage:      weiScaledLeverage(leverage),
		Salt:          bigFromUint64(salt),
		Expiration:    MarketOrderExpiration,
		IsBuy:         isBuy,
		ReduceOnly:    reduceOnly,
		PostOnly:      false,
		OrderbookOnly: true,
		IOC:           true,
		OrderType:     OrderTypeMarket,
		TimeInForce:   GTT,
	}
}

// NewLimitIOCOrder builds a LIMIT/IOC order: price is wei-scaled from a
// float, quantity likewise, and the order rests for zero time beyond an
// immediate cross attempt.
func NewLimitIOCOrder(market, maker string, isBuy, reduceOnly bool, priceF64, quantityF64 float64, leverage uint64, expiration, salt uint64) Order {
	return Order{
		Market:        market,
		Maker:         maker,
		Price:         floatToWei(priceF64),
		Quantity:      floatToWei(quantityF64),
		Leverage:      weiScaledLeverage(leverage),
		Salt:          bigFromUint64(salt),
		Expiration:    expiration,
		IsBuy:         isBuy,
		ReduceOnly:    reduceOnly,
		PostOnly:      false,
		OrderbookOnly: true,
		IOC:           true,
		OrderType:     OrderTypeLimit,
		TimeInForce:   IOC,
	}
}

// orderRequest is the camelCase wire body POSTed to <rest_base>/orders.
type orderRequest struct {
	OrderbookOnly  bool   `json:"orderbookOnly"`
	Symbol         string `json:"symbol"`
	Price          string `json:"price"`
	Quantity       string `json:"quantity"`
	TriggerPrice   string `json:"triggerPrice"`
	Leverage       string `json:"leverage"`
	UserAddress    string `json:"userAddress"`
	OrderType      string `json:"orderType"`
	Side           string `json:"side"`
	ReduceOnly     bool   `json:"reduceOnly"`
	Salt           string `json:"salt"`
	Expiration     string `json:"expiration"`
	OrderSignature string `json:"orderSignature"`
	TimeInForce    string `json:"timeInForce"`
	PostOnly       bool   `json:"postOnly"`
	CancelOnRevert bool   `json:"cancelOnRevert"`
	ClientID       string `json:"clientId"`
}

func toOrderRequest(o Order, signature string) orderRequest {
	side := "SELL"
	if o.IsBuy {
		side = "BUY"
	}
	return orderRequest{
		OrderbookOnly:  o.OrderbookOnly,
		Symbol:         o.Market,
		Price:          o.Price.String(),
		Quantity:       o.Quantity.String(),
		TriggerPrice:   "0",
		Leverage:       o.Leverage.String(),
		UserAddress:    o.Maker,
		OrderType:      string(o.OrderType),
		Side:           side,
		ReduceOnly:     o.ReduceOnly,
		Salt:           o.Salt.String(),
		Expiration:     fmt.Sprintf("%d", o.Expiration),
		OrderSignature: signature,
		TimeInForce:    string(o.TimeInForce),
		PostOnly:       o.PostOnly,
		CancelOnRevert: false,
		ClientID:       clientID,
	}
}
