package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"chitamaker/pkg/book"
)

// ReferenceBaseURL is venue R's public WebSocket base — a fixed endpoint,
// not a deployment-specific credential, so it isn't one of spec.md §6's
// required environment variables.
const ReferenceBaseURL = "wss://fstream.binance.com"

// referenceDepthUpdate is the wire shape of a venue R depth5@100ms
// frame: bid/ask levels as [price, size] decimal-string pairs.
type referenceDepthUpdate struct {
	Symbol string     `json:"s"`
	Bids   [][]string `json:"b"`
	Asks   [][]string `json:"a"`
}

// ReferenceDialer connects to venue R's public depth stream. No
// subscribe handshake or auth is required — the symbol is baked into
// the URL path.
type ReferenceDialer struct {
	BaseURL string
	Symbol  string
	Events  chan<- BookEvent
}

func NewReferenceDialer(baseURL, symbol string, events chan<- BookEvent) *ReferenceDialer {
	return &ReferenceDialer{BaseURL: baseURL, Symbol: symbol, Events: events}
}

func (d *ReferenceDialer) URL(ctx context.Context) (string, error) {
	return fmt.Sprintf("%s/ws/%s@depth5@100ms", strings.TrimRight(d.BaseURL, "/"), strings.ToLower(d.Symbol)), nil
}

func (d *ReferenceDialer) OnConnect(ctx context.Context, conn *Conn) error {
	return nil
}

func (d *ReferenceDialer) PingMessage() any {
	return map[string]string{"type": "ping"}
}

func (d *ReferenceDialer) HandleFrame(data []byte) error {
	var upd referenceDepthUpdate
	if err := json.Unmarshal(data, &upd); err != nil {
		return fmt.Errorf("parse depth update: %w", err)
	}
	asks, err := parseLevels(upd.Asks)
	if err != nil {
		return fmt.Errorf("parse asks: %w", err)
	}
	bids, err := parseLevels(upd.Bids)
	if err != nil {
		return fmt.Errorf("parse bids: %w", err)
	}
	d.Events <- BookEvent{Venue: "reference", Symbol: d.Symbol, Asks: asks, Bids: bids}
	return nil
}

func parseLevels(pairs [][]string) ([]book.PriceLevel, error) {
	out := make([]book.PriceLevel, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			return nil, fmt.Errorf("malformed level %v", pair)
		}
		price, err := strconv.ParseFloat(pair[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		size, err := strconv.ParseFloat(pair[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse size: %w", err)
		}
		out = append(out, book.PriceLevel{Price: price, Size: size})
	}
	return out, nil
}

// RunReference drives the venue R book stream until ctx is cancelled.
func RunReference(ctx context.Context, baseURL, symbol string, events chan<- BookEvent, logger *slog.Logger) error {
	return Run(ctx, "reference:"+symbol, NewReferenceDialer(baseURL, symbol, events), logger)
}
