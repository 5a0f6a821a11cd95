// Package taker implements the REST client, wallet, and canonical order
// signing protocol for venue T — the on-chain, ed25519-signed taker venue
// (Bluefin-shaped) that the hedger and market-maker loop cross liquidity
// against.
package taker

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Side of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderType distinguishes resting limit orders from immediate market
// sweeps.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// TimeInForce controls how long an unfilled order rests.
type TimeInForce string

const (
	GTT TimeInForce = "GTT" // good-till-time: rests until Expiration
	IOC TimeInForce = "IOC" // immediate-or-cancel
)

// clientID is the constant identifier venue T's API expects on every
// order POST body, regardless of who is actually sending the request.
const clientID = "bluefin-v2-client-python"

// MarketOrderExpiration is the literal epoch-seconds expiration venue T's
// protocol uses for MARKET orders — not a real deadline, just a fixed
// sentinel the canonical serializer must reproduce exactly. IOC orders
// that execute-or-cancel immediately (e.g. the hedger's orders) reuse it
// too, since they never actually rest long enough for it to matter.
const MarketOrderExpiration = 3655643731

// weiScaleDecimal is 10^18 as an exact decimal, used to convert between
// human-readable floats and the wei-scaled u128 integers the wire
// protocol carries.
var weiScaleDecimal = decimal.New(1, 18)

// weiScaleBig is 10^18 as a big.Int, used to scale integer inputs (e.g.
// leverage) that never need float/decimal conversion.
var weiScaleBig = big.NewInt(1_000_000_000_000_000_000)

// Order is venue T's order model prior to submission. Price, quantity,
// leverage, and salt cross the wire as wei-scaled u128 integers — real
// market prices and quantities overflow uint64 once scaled by 10^18 (an
// ETH-PERP price of ~3000 scales to ~3e21), so they're held as big.Int.
type Order struct {
	Market         string // 32-byte hex id, "0x"-prefixed
	Maker          string // 32-byte hex address, "0x"-prefixed
	Price          big.Int
	Quantity       big.Int
	Leverage       big.Int
	Salt           big.Int
	Expiration     uint64
	IsBuy          bool
	ReduceOnly     bool
	PostOnly       bool
	OrderbookOnly  bool
	IOC            bool
	OrderType      OrderType
	TimeInForce    TimeInForce
	Hash           string // hex, filled in once signed
}

// bigFromUint64 lifts a plain uint64 (salt, mostly) into the big.Int
// fields Order carries.
func bigFromUint64(v uint64) big.Int {
	var n big.Int
	n.SetUint64(v)
	return n
}

// weiScaledLeverage scales an integer leverage value (e.g. 10x) by
// weiScaleBig without any float/decimal round trip.
func weiScaledLeverage(leverage uint64) big.Int {
	var n big.Int
	n.Mul(new(big.Int).SetUint64(leverage), weiScaleBig)
	return n
}

// floatToWei scales a human-readable float64 (price or quantity) into its
// wei-scaled big.Int, truncating any sub-wei remainder — the same
// direction as the original's floor(f * 1e18).
func floatToWei(f float64) big.Int {
	scaled := decimal.NewFromFloat(f).Mul(weiScaleDecimal)
	return *scaled.BigInt()
}

// WeiToFloat converts a wei-scaled (10^18) big.Int into an approximate
// human-readable float64, via exact decimal division.
func WeiToFloat(n big.Int) float64 {
	return decimal.NewFromBigInt(&n, 0).Div(weiScaleDecimal).InexactFloat64()
}

// UserPosition is venue T's position model: AvgEntryPrice and Quantity
// are wei-scaled (u128) per spec, held as big.Int for the same overflow
// reason as Order; Margin/Leverage arrive pre-divided to human units.
type UserPosition struct {
	Symbol        string
	Side          bool // true = long, false = short
	AvgEntryPrice big.Int
	Quantity      big.Int
	Margin        float64
	Leverage      float64
}

// QuantityContracts converts the wei-scaled Quantity into contracts; any
// fractional part is kept.
func (p UserPosition) QuantityContracts() float64 {
	return WeiToFloat(p.Quantity)
}

// AvgEntryPriceFloat converts the wei-scaled AvgEntryPrice into a decimal
// price.
func (p UserPosition) AvgEntryPriceFloat() float64 {
	return WeiToFloat(p.AvgEntryPrice)
}

// Response is the structured result of a venue T order submission, per
// the error-handling design's Response{error?, order_id?} contract.
type Response struct {
	OrderHash string
	Error     error
}

// MarketMeta is the per-symbol metadata FetchMarkets populates.
type MarketMeta struct {
	Symbol string
	ID     string // perpetualAddress.id, 32-byte hex
}
