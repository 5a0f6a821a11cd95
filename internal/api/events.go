package api

import "time"

// DashboardEvent is the wrapper for all events pushed to connected
// dashboard clients over the WebSocket hub.
type DashboardEvent struct {
	Type      string      `json:"type"` // "snapshot", "order", "breaker", "account"
	Timestamp time.Time   `json:"timestamp"`
	Market    string      `json:"market,omitempty"` // empty for account-wide events
	Data      interface{} `json:"data"`
}

// OrderEvent reports a single quote or hedge order submission outcome on
// venue T.
type OrderEvent struct {
	Source   string  `json:"source"` // "marketmaker" or "hedger"
	IsBuy    bool    `json:"is_buy"`
	Price    float64 `json:"price,omitempty"` // zero for hedger orders, whose observer reports no price
	Quantity float64 `json:"quantity"`
	Success  bool    `json:"success"`
	Error    string  `json:"error,omitempty"`
}

// NewOrderEvent builds an OrderEvent from a submission outcome.
func NewOrderEvent(source string, isBuy bool, price, quantity float64, err error) OrderEvent {
	evt := OrderEvent{Source: source, IsBuy: isBuy, Price: price, Quantity: quantity, Success: err == nil}
	if err != nil {
		evt.Error = err.Error()
	}
	return evt
}

// BreakerEvent reports a circuit breaker trip or reset for one market.
type BreakerEvent struct {
	Breaker string `json:"breaker"` // "cancel_all" or "threshold"
	State   string `json:"state"`
}

// NewBreakerEvent builds a BreakerEvent.
func NewBreakerEvent(breaker, state string) BreakerEvent {
	return BreakerEvent{Breaker: breaker, State: state}
}
