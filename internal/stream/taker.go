package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// subscribeEnvelope builds venue T's two-element JSON array envelope
// (["SUBSCRIBE", [...]]) — not representable with struct tags, built by
// hand as a raw []any instead.
func subscribeEnvelope(configs ...orderbookSubConfig) []any {
	subs := make([]any, len(configs))
	for i, c := range configs {
		subs[i] = c
	}
	return []any{"SUBSCRIBE", subs}
}

type orderbookSubConfig struct {
	E string `json:"e"`
	P string `json:"p,omitempty"`
	T string `json:"t,omitempty"`
}

type orderbookDepthUpdate struct {
	EventName string `json:"eventName"`
	Data      struct {
		Symbol            string     `json:"symbol"`
		Bids              [][]string `json:"bids"`
		Asks              [][]string `json:"asks"`
		Depth             uint32     `json:"depth"`
		OrderbookUpdateID uint64     `json:"orderbookUpdateId"`
	} `json:"data"`
}

// TakerBookDialer subscribes to venue T's public order book depth
// stream for one market symbol.
type TakerBookDialer struct {
	WSURL  string
	Symbol string
	Events chan<- BookEvent
}

func NewTakerBookDialer(wsURL, symbol string, events chan<- BookEvent) *TakerBookDialer {
	return &TakerBookDialer{WSURL: wsURL, Symbol: symbol, Events: events}
}

func (d *TakerBookDialer) URL(ctx context.Context) (string, error) { return d.WSURL, nil }

func (d *TakerBookDialer) OnConnect(ctx context.Context, conn *Conn) error {
	env := subscribeEnvelope(orderbookSubConfig{E: "orderbookDepthStream", P: d.Symbol})
	return conn.WriteJSON(env)
}

func (d *TakerBookDialer) PingMessage() any {
	return map[string]any{"id": 1, "type": "ping"}
}

func (d *TakerBookDialer) HandleFrame(data []byte) error {
	if !bytes.Contains(data, []byte("OrderbookDepthUpdate")) {
		return nil
	}
	var upd orderbookDepthUpdate
	if err := json.Unmarshal(data, &upd); err != nil {
		return fmt.Errorf("parse orderbook depth update: %w", err)
	}
	asks, err := parseLevels(upd.Data.Asks)
	if err != nil {
		return fmt.Errorf("parse asks: %w", err)
	}
	bids, err := parseLevels(upd.Data.Bids)
	if err != nil {
		return fmt.Errorf("parse bids: %w", err)
	}
	d.Events <- BookEvent{Venue: "taker", Symbol: d.Symbol, Asks: asks, Bids: bids}
	return nil
}

// RunTakerBook drives the venue T public book stream until ctx is
// cancelled.
func RunTakerBook(ctx context.Context, wsURL, symbol string, events chan<- BookEvent, logger *slog.Logger) error {
	return Run(ctx, "taker-book:"+symbol, NewTakerBookDialer(wsURL, symbol, events), logger)
}

// TakerPrivateDialer subscribes to venue T's authenticated user-update
// stream and routes frames whose body contains the caller-supplied
// indicator substring (e.g. "PositionUpdate", "AccountDataUpdate").
type TakerPrivateDialer struct {
	WSURL     string
	AuthToken string
	Indicator string
	Events    chan<- PositionEvent
}

func NewTakerPrivateDialer(wsURL, authToken, indicator string, events chan<- PositionEvent) *TakerPrivateDialer {
	return &TakerPrivateDialer{WSURL: wsURL, AuthToken: authToken, Indicator: indicator, Events: events}
}

func (d *TakerPrivateDialer) URL(ctx context.Context) (string, error) { return d.WSURL, nil }

func (d *TakerPrivateDialer) OnConnect(ctx context.Context, conn *Conn) error {
	env := subscribeEnvelope(orderbookSubConfig{E: "userUpdates", T: d.AuthToken})
	return conn.WriteJSON(env)
}

func (d *TakerPrivateDialer) PingMessage() any {
	return map[string]any{"id": 1, "type": "ping"}
}

func (d *TakerPrivateDialer) HandleFrame(data []byte) error {
	if !strings.Contains(string(data), d.Indicator) {
		return nil
	}
	d.Events <- PositionEvent{Venue: "taker", Raw: append([]byte(nil), data...)}
	return nil
}

// RunTakerPrivate drives the venue T user-update stream, filtering for
// indicator, until ctx is cancelled.
func RunTakerPrivate(ctx context.Context, wsURL, authToken, indicator string, events chan<- PositionEvent, logger *slog.Logger) error {
	return Run(ctx, "taker-private:"+indicator, NewTakerPrivateDialer(wsURL, authToken, indicator, events), logger)
}
