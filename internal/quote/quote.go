// Package quote implements the cross-venue quote-generation pipeline:
// from reference, maker, and taker books, derive the bid/ask price and
// size vectors to rest on the maker venue.
package quote

import (
	"chitamaker/internal/config"
	"chitamaker/pkg/book"

	"github.com/shopspring/decimal"
)

// Side is one side (bids or asks) of a computed quote: parallel price and
// size vectors, already rounded and filtered.
type Side struct {
	Prices []float64
	Sizes  []float64
}

// Pair is the result of CreateMMPair: the ask side and the bid side.
type Pair struct {
	Ask Side
	Bid Side
}

// CreateMMPair derives (ask_prices, ask_sizes) and (bid_prices, bid_sizes)
// from the three venue books:
//
//  1. ref_mid = mid(ref), mm_mid = mid(mm)
//  2. spread = ref_mid - mm_mid, element-wise; half = spread/2
//  3. bid_prices = mm_mid - half, ask_prices = mm_mid + half
//  4. bid_sizes = tkr.BidShift(shift), ask_sizes = tkr.AskShift(shift)
//
// Resulting prices/sizes are rounded to mkt.PricePrecision/mkt.LotSize and
// any level whose size falls below mkt.MinSize or exceeds
// mkt.MMLotUpperBound is dropped from its own side; each side is filtered
// independently, so the other side keeps its level at that index.
func CreateMMPair(ref, mm, tkr *book.Book, shift float64, mkt config.MarketConfig) Pair {
	refMid := ref.Mid()
	mmMid := mm.Mid()

	n := len(refMid)
	if len(mmMid) < n {
		n = len(mmMid)
	}

	bidPrices := make([]float64, n)
	askPrices := make([]float64, n)
	for i := 0; i < n; i++ {
		spread := refMid[i] - mmMid[i]
		half := spread / 2
		bidPrices[i] = mmMid[i] - half
		askPrices[i] = mmMid[i] + half
	}

	bidSizes := tkr.BidShift(shift)
	askSizes := tkr.AskShift(shift)

	return Pair{
		Ask: filterAndRound(askPrices, askSizes, mkt),
		Bid: filterAndRound(bidPrices, bidSizes, mkt),
	}
}

// filterAndRound rounds every level to the market's price precision and
// lot size using exact decimal arithmetic, then drops any level whose
// size falls outside [min_size, mm_lot_upper_bound].
func filterAndRound(prices, sizes []float64, mkt config.MarketConfig) Side {
	n := len(prices)
	if len(sizes) < n {
		n = len(sizes)
	}

	minSize, _ := decimal.NewFromString(mkt.MinSize)
	lotUpper := decimal.NewFromBigInt(mkt.MMLotUpperBound.BigInt(), 0)
	lotSize := decimal.NewFromBigInt(mkt.LotSize.BigInt(), 0)

	outPrices := make([]float64, 0, n)
	outSizes := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		price := roundToPrecision(prices[i], mkt.PricePrecision)
		size := roundToLot(sizes[i], lotSize)

		sizeDec := decimal.NewFromFloat(size)
		if sizeDec.LessThan(minSize) {
			continue
		}
		if !lotUpper.IsZero() && sizeDec.GreaterThan(lotUpper) {
			continue
		}

		outPrices = append(outPrices, price)
		outSizes = append(outSizes, size)
	}

	return Side{Prices: outPrices, Sizes: outSizes}
}

func roundToPrecision(v float64, precision int32) float64 {
	d := decimal.NewFromFloat(v).Round(precision)
	f, _ := d.Float64()
	return f
}

// roundToLot rounds v down to the nearest multiple of lot (lot expressed
// as an integer count of the market's smallest representable unit,
// matching the wei-scaled convention venue T uses for lot_size).
func roundToLot(v float64, lot decimal.Decimal) float64 {
	if lot.IsZero() {
		return v
	}
	lotF, _ := lot.Float64()
	lotUnits := lotF / 1e18
	if lotUnits <= 0 {
		return v
	}
	units := decimal.NewFromFloat(v / lotUnits).Floor()
	f, _ := units.Mul(decimal.NewFromFloat(lotUnits)).Float64()
	return f
}
