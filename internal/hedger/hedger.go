// Package hedger implements the hedger state machine: it observes
// position-change events on the maker venue and PositionUpdate events on
// the taker venue, computes the residual delta, and posts a signed LIMIT
// IOC order on the taker venue to neutralize it.
package hedger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sync"

	"chitamaker/internal/stream"
	"chitamaker/pkg/venues/taker"
)

// BreakerNotifier is how the Hedger reports submission outcomes to the
// owning market's circuit breaker — a single-method seam rather than an
// import of internal/breaker, since the Hedger only needs to report
// success/failure, not the breaker's state.
type BreakerNotifier interface {
	OnSuccess()
	OnFailure(ctx context.Context)
}

// makerPositionChange is the relevant subset of venue M's
// "/contract/position" push payload.
type makerPositionChange struct {
	Subject string `json:"subject"`
	Data    struct {
		Symbol        string  `json:"symbol"`
		CurrentQty    int32   `json:"currentQty"`
		AvgEntryPrice float64 `json:"avgEntryPrice"`
	} `json:"data"`
}

// takerPositionUpdate is the relevant subset of venue T's
// PositionUpdate push payload: {"data":{"position":{...}}}.
type takerPositionUpdate struct {
	Data struct {
		Position struct {
			Symbol        string `json:"symbol"`
			Side          string `json:"side"`
			Quantity      string `json:"quantity"`
			AvgEntryPrice string `json:"avgEntryPrice"`
			Margin        string `json:"margin"`
			Leverage      string `json:"leverage"`
		} `json:"position"`
	} `json:"data"`
}

// RangeError reports a numeric conversion that overflowed its target
// type — spec.md's u128→i32 conversion check.
type RangeError struct {
	Value string
	Want  string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("value %s out of range for %s", e.Value, e.Want)
}

// Hedger owns the single taker-venue position snapshot (written only by
// its own goroutine, read externally through Position) and reacts to the
// two event streams describing it.
type Hedger struct {
	market        string
	takerMarket   string // taker venue's market identifier (onboarding symbol), used to submit orders
	takerClient   *taker.Client
	breaker       BreakerNotifier
	logger        *slog.Logger
	posMu         sync.RWMutex // guards takerPosition against the dashboard's concurrent Position() reads
	takerPosition taker.UserPosition

	onOrder func(isBuy bool, quantity float64, err error)
}

// SetOrderObserver registers a callback invoked after every hedge-order
// submission attempt (nil err on success) — the engine uses this to feed
// the dashboard's order-event stream without the Hedger importing internal/api.
func (h *Hedger) SetOrderObserver(fn func(isBuy bool, quantity float64, err error)) {
	h.onOrder = fn
}

// Position returns the Hedger's currently held taker-venue position
// snapshot, for dashboard reporting.
func (h *Hedger) Position() taker.UserPosition {
	h.posMu.RLock()
	defer h.posMu.RUnlock()
	return h.takerPosition
}

// New constructs a Hedger, seeded with the taker venue's current
// position (restored by the caller from the store, or fetched via
// GetUserPosition when no snapshot is saved, before streams are wired up).
func New(market, takerMarket string, takerClient *taker.Client, initial taker.UserPosition, breaker BreakerNotifier, logger *slog.Logger) *Hedger {
	return &Hedger{
		market:        market,
		takerMarket:   takerMarket,
		takerClient:   takerClient,
		breaker:       breaker,
		logger:        logger.With("component", "hedger", "market", market),
		takerPosition: initial,
	}
}

// Run drains the maker-venue position-change channel and the
// taker-venue PositionUpdate channel until ctx is cancelled or either
// channel is closed, which is fatal for this market per spec.md §4.7.
func (h *Hedger) Run(ctx context.Context, makerPosCh <-chan stream.PositionEvent, takerPosCh <-chan stream.PositionEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-makerPosCh:
			if !ok {
				return fmt.Errorf("maker position-change channel disconnected")
			}
			if err := h.onMakerPositionChange(ctx, ev.Raw); err != nil {
				h.logger.Error("handle maker position change", "error", err)
			}
		case ev, ok := <-takerPosCh:
			if !ok {
				return fmt.Errorf("taker position-update channel disconnected")
			}
			if err := h.onTakerPositionUpdate(ev.Raw); err != nil {
				h.logger.Error("handle taker position update", "error", err)
			}
		}
	}
}

// onMakerPositionChange implements spec.md §4.7 steps 1-5.
func (h *Hedger) onMakerPositionChange(ctx context.Context, raw []byte) error {
	var msg makerPositionChange
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("parse maker position change: %w", err)
	}

	target := -int64(msg.Data.CurrentQty)

	currentSigned, err := h.takerSignedQuantity()
	if err != nil {
		return err
	}

	diff := target - currentSigned
	if diff == 0 {
		return nil
	}

	isBuy := diff > 0
	quantity := math.Abs(float64(diff))

	// IOC orders execute immediately or not at all, so the expiration
	// sentinel only needs to outlive the single matching attempt; reuse
	// the same far-future literal venue T's MARKET orders carry.
	order, err := h.takerClient.CreateLimitIOCOrder(h.takerMarket, isBuy, false, msg.Data.AvgEntryPrice, quantity, taker.MarketOrderExpiration)
	if err != nil {
		h.breaker.OnFailure(ctx)
		return fmt.Errorf("build hedge order: %w", err)
	}
	hash, signature, err := h.takerClient.SignOrder(order)
	if err != nil {
		h.breaker.OnFailure(ctx)
		return fmt.Errorf("sign hedge order: %w", err)
	}
	order.Hash = hash

	resp := h.takerClient.PostSignedOrder(ctx, order, signature)
	if resp.Error != nil {
		h.breaker.OnFailure(ctx)
		if h.onOrder != nil {
			h.onOrder(isBuy, quantity, resp.Error)
		}
		return fmt.Errorf("submit hedge order: %w", resp.Error)
	}
	h.breaker.OnSuccess()
	h.logger.Info("hedge order submitted", "is_buy", isBuy, "quantity", quantity, "target", target, "current", currentSigned)
	if h.onOrder != nil {
		h.onOrder(isBuy, quantity, nil)
	}
	return nil
}

// onTakerPositionUpdate replaces the locally held position snapshot —
// the Hedger's own goroutine is its only writer, but posMu also guards it
// against the dashboard's concurrent Position() reads.
func (h *Hedger) onTakerPositionUpdate(raw []byte) error {
	var msg takerPositionUpdate
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("parse taker position update: %w", err)
	}
	pos := msg.Data.Position

	quantity, err := parseU128String(pos.Quantity)
	if err != nil {
		return fmt.Errorf("parse quantity: %w", err)
	}
	avgEntry, err := parseU128String(pos.AvgEntryPrice)
	if err != nil {
		return fmt.Errorf("parse avg_entry_price: %w", err)
	}
	margin, err := parseU128String(pos.Margin)
	if err != nil {
		return fmt.Errorf("parse margin: %w", err)
	}
	leverage, err := parseU128String(pos.Leverage)
	if err != nil {
		return fmt.Errorf("parse leverage: %w", err)
	}

	h.posMu.Lock()
	h.takerPosition = taker.UserPosition{
		Symbol:        pos.Symbol,
		Side:          pos.Side != "SELL",
		Quantity:      quantity,
		AvgEntryPrice: avgEntry,
		Margin:        taker.WeiToFloat(margin),
		Leverage:      taker.WeiToFloat(leverage),
	}
	h.posMu.Unlock()
	return nil
}

// takerSignedQuantity converts the held u128-scaled quantity to a signed
// i32 contract count, per spec.md §4.7 step 2 — failing with a
// RangeError when the u128 magnitude can't fit, matching the source's
// u128_to_i32 check.
func (h *Hedger) takerSignedQuantity() (int64, error) {
	contracts := h.takerPosition.QuantityContracts()
	if contracts > math.MaxInt32 {
		return 0, &RangeError{Value: h.takerPosition.Quantity.String(), Want: "i32"}
	}
	signed := int64(contracts)
	if !h.takerPosition.Side {
		signed = -signed
	}
	return signed, nil
}

// parseU128String parses a decimal u128 string (venue T sends position
// quantities wei-scaled, often far past uint64 range) into a big.Int.
func parseU128String(s string) (big.Int, error) {
	if s == "" {
		return big.Int{}, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.Int{}, fmt.Errorf("invalid u128 decimal string %q", s)
	}
	return *n, nil
}
