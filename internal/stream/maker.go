package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"chitamaker/pkg/book"
)

type tokenResponse struct {
	Code string `json:"code"`
	Data struct {
		Token           string `json:"token"`
		InstanceServers []struct {
			Endpoint string `json:"endpoint"`
		} `json:"instanceServers"`
	} `json:"data"`
}

// RequestPublicToken obtains the bullet-public token and websocket base
// URL venue M requires before any connection, per spec.md §4.3.
func RequestPublicToken(ctx context.Context, tokenRequestURL string) (wsBaseURL, token string, err error) {
	client := resty.New()
	resp, err := client.R().SetContext(ctx).Post(tokenRequestURL)
	if err != nil {
		return "", "", fmt.Errorf("request public token: %w", err)
	}
	var parsed tokenResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", "", fmt.Errorf("parse token response: %w", err)
	}
	if len(parsed.Data.InstanceServers) == 0 {
		return "", "", fmt.Errorf("no instance servers in token response")
	}
	return parsed.Data.InstanceServers[0].Endpoint, parsed.Data.Token, nil
}

// mixLevel holds a single price/size pair that may arrive as either a
// JSON string or a JSON number, matching venue M's mixed encoding.
type mixLevel [2]json.Number

func (l *mixLevel) UnmarshalJSON(data []byte) error {
	var raw [2]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for i, v := range raw {
		switch t := v.(type) {
		case string:
			l[i] = json.Number(t)
		case json.Number:
			l[i] = t
		case float64:
			l[i] = json.Number(strconv.FormatFloat(t, 'f', -1, 64))
		default:
			return fmt.Errorf("unexpected level element type %T", v)
		}
	}
	return nil
}

func (l mixLevel) toPriceLevel() (book.PriceLevel, error) {
	price, err := strconv.ParseFloat(l[0].String(), 64)
	if err != nil {
		return book.PriceLevel{}, err
	}
	size, err := strconv.ParseFloat(l[1].String(), 64)
	if err != nil {
		return book.PriceLevel{}, err
	}
	return book.PriceLevel{Price: price, Size: size}, nil
}

type level2Depth struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"`
	Subject string `json:"subject"`
	Data    struct {
		Bids []mixLevel `json:"bids"`
		Asks []mixLevel `json:"asks"`
	} `json:"data"`
}

type subscribeAck struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// MakerBookDialer subscribes to venue M's public order book topic for
// one market symbol (already translated, e.g. "ETHUSDTM").
type MakerBookDialer struct {
	TokenRequestURL string
	Topic           string
	VenueSymbol     string
	Events          chan<- BookEvent
	MarketSymbol    string // original cross-venue symbol, used for BookEvent.Symbol

	ackID string
}

func NewMakerBookDialer(tokenRequestURL, topic, venueSymbol, marketSymbol string, events chan<- BookEvent) *MakerBookDialer {
	return &MakerBookDialer{TokenRequestURL: tokenRequestURL, Topic: topic, VenueSymbol: venueSymbol, MarketSymbol: marketSymbol, Events: events}
}

func (d *MakerBookDialer) URL(ctx context.Context) (string, error) {
	base, token, err := RequestPublicToken(ctx, d.TokenRequestURL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s?token=%s", base, token), nil
}

func (d *MakerBookDialer) OnConnect(ctx context.Context, conn *Conn) error {
	d.ackID = randID13()
	msg := map[string]any{
		"id":             d.ackID,
		"type":           "subscribe",
		"topic":          fmt.Sprintf("%s:%s", d.Topic, d.VenueSymbol),
		"privateChannel": false,
		"response":       true,
	}
	return conn.WriteJSON(msg)
}

func (d *MakerBookDialer) PingMessage() any {
	return map[string]string{"id": d.ackID, "type": "ping"}
}

func (d *MakerBookDialer) HandleFrame(data []byte) error {
	var ack subscribeAck
	if err := json.Unmarshal(data, &ack); err == nil && ack.Type == "error" {
		return NewFatalError(fmt.Errorf("subscription ack error: %s", string(data)))
	}
	if !strings.Contains(string(data), "\"subject\"") {
		return nil
	}
	var depth level2Depth
	if err := json.Unmarshal(data, &depth); err != nil {
		return fmt.Errorf("parse level2 depth: %w", err)
	}
	asks := make([]book.PriceLevel, 0, len(depth.Data.Asks))
	for _, l := range depth.Data.Asks {
		pl, err := l.toPriceLevel()
		if err != nil {
			return fmt.Errorf("parse ask level: %w", err)
		}
		asks = append(asks, pl)
	}
	bids := make([]book.PriceLevel, 0, len(depth.Data.Bids))
	for _, l := range depth.Data.Bids {
		pl, err := l.toPriceLevel()
		if err != nil {
			return fmt.Errorf("parse bid level: %w", err)
		}
		bids = append(bids, pl)
	}
	d.Events <- BookEvent{Venue: "maker", Symbol: d.MarketSymbol, Asks: asks, Bids: bids}
	return nil
}

// RunMakerBook drives the venue M public book stream until ctx is
// cancelled or the subscription ack reports an error.
func RunMakerBook(ctx context.Context, tokenRequestURL, topic, venueSymbol, marketSymbol string, events chan<- BookEvent, logger *slog.Logger) error {
	return Run(ctx, "maker-book:"+marketSymbol, NewMakerBookDialer(tokenRequestURL, topic, venueSymbol, marketSymbol, events), logger)
}

// MakerPrivateDialer subscribes to venue M's authenticated position
// topic, using the private socket URL and token the caller already
// obtained from the authenticated token endpoint.
type MakerPrivateDialer struct {
	WSBaseURL string
	Token     string
	Topic     string
	Events    chan<- PositionEvent

	ackID string
}

func NewMakerPrivateDialer(wsBaseURL, token, topic string, events chan<- PositionEvent) *MakerPrivateDialer {
	return &MakerPrivateDialer{WSBaseURL: wsBaseURL, Token: token, Topic: topic, Events: events}
}

func (d *MakerPrivateDialer) URL(ctx context.Context) (string, error) {
	return fmt.Sprintf("%s?token=%s", d.WSBaseURL, d.Token), nil
}

func (d *MakerPrivateDialer) OnConnect(ctx context.Context, conn *Conn) error {
	d.ackID = randID13()
	msg := map[string]any{
		"id":             d.ackID,
		"type":           "subscribe",
		"topic":          d.Topic,
		"privateChannel": true,
		"response":       true,
	}
	return conn.WriteJSON(msg)
}

func (d *MakerPrivateDialer) PingMessage() any {
	return map[string]string{"id": d.ackID, "type": "ping"}
}

func (d *MakerPrivateDialer) HandleFrame(data []byte) error {
	var ack subscribeAck
	if err := json.Unmarshal(data, &ack); err == nil && ack.Type == "error" {
		return NewFatalError(fmt.Errorf("subscription ack error: %s", string(data)))
	}
	if !strings.Contains(string(data), "\"subject\"") {
		return nil
	}
	d.Events <- PositionEvent{Venue: "maker", Raw: append([]byte(nil), data...)}
	return nil
}

// RunMakerPrivate drives venue M's private position stream
// ("/contract/position"-style subject) until ctx is cancelled.
func RunMakerPrivate(ctx context.Context, wsBaseURL, token, topic string, events chan<- PositionEvent, logger *slog.Logger) error {
	return Run(ctx, "maker-private", NewMakerPrivateDialer(wsBaseURL, token, topic, events), logger)
}

// MakerTickerDialer subscribes to venue M's tickerV2 topic purely as a
// market-maker trigger signal — the payload is discarded, only its
// arrival matters (spec.md §4.6).
type MakerTickerDialer struct {
	TokenRequestURL string
	Topic           string
	VenueSymbol     string
	MarketSymbol    string
	Events          chan<- TickerEvent

	ackID string
}

func NewMakerTickerDialer(tokenRequestURL, topic, venueSymbol, marketSymbol string, events chan<- TickerEvent) *MakerTickerDialer {
	return &MakerTickerDialer{TokenRequestURL: tokenRequestURL, Topic: topic, VenueSymbol: venueSymbol, MarketSymbol: marketSymbol, Events: events}
}

func (d *MakerTickerDialer) URL(ctx context.Context) (string, error) {
	base, token, err := RequestPublicToken(ctx, d.TokenRequestURL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s?token=%s", base, token), nil
}

func (d *MakerTickerDialer) OnConnect(ctx context.Context, conn *Conn) error {
	d.ackID = randID13()
	msg := map[string]any{
		"id":             d.ackID,
		"type":           "subscribe",
		"topic":          fmt.Sprintf("%s:%s", d.Topic, d.VenueSymbol),
		"privateChannel": false,
		"response":       true,
	}
	return conn.WriteJSON(msg)
}

func (d *MakerTickerDialer) PingMessage() any {
	return map[string]string{"id": d.ackID, "type": "ping"}
}

func (d *MakerTickerDialer) HandleFrame(data []byte) error {
	var ack subscribeAck
	if err := json.Unmarshal(data, &ack); err == nil && ack.Type == "error" {
		return NewFatalError(fmt.Errorf("subscription ack error: %s", string(data)))
	}
	if !strings.Contains(string(data), "\"subject\"") {
		return nil
	}
	d.Events <- TickerEvent{Venue: "maker", Symbol: d.MarketSymbol}
	return nil
}

// RunMakerTicker drives venue M's tickerV2 stream until ctx is cancelled.
func RunMakerTicker(ctx context.Context, tokenRequestURL, topic, venueSymbol, marketSymbol string, events chan<- TickerEvent, logger *slog.Logger) error {
	return Run(ctx, "maker-ticker:"+marketSymbol, NewMakerTickerDialer(tokenRequestURL, topic, venueSymbol, marketSymbol, events), logger)
}

func randID13() string {
	// A 13-digit identifier, matching the source's millisecond-timestamp
	// convention — deterministic per call site is unnecessary since venue
	// M only echoes it back in the ack.
	return strconv.FormatInt(nowMillis(), 10)
}
