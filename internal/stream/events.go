package stream

import "chitamaker/pkg/book"

// BookEvent carries a fresh (asks, bids) snapshot for one venue/symbol,
// already converted to float64 in the venue's native price/size units.
type BookEvent struct {
	Venue  string
	Symbol string
	Asks   []book.PriceLevel
	Bids   []book.PriceLevel
}

// PositionEvent carries a venue's signal that an account position
// changed — routed by an indicator substring on venue T
// ("PositionUpdate", "AccountDataUpdate") or by topic on venue M.
type PositionEvent struct {
	Venue  string
	Symbol string
	Raw    []byte
}

// TickerEvent is a fire-only trigger signal — venue M's tickerV2 topic
// carries a last-traded-price payload the market-maker loop doesn't need;
// only its arrival (a trigger event per spec.md §4.6) matters.
type TickerEvent struct {
	Venue  string
	Symbol string
}
