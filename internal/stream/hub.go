// Package stream implements the shared websocket connection lifecycle
// used by every venue connector: connect, subscribe, read, parse, emit,
// periodic idle-triggered ping, and on any fault rebuild the socket from
// scratch and resume. Venue-specific subscribe envelopes and frame
// routing live in taker.go, maker.go and reference.go; this file holds
// only the dial/ping/reconnect scaffolding generalized from the
// teacher's WSFeed.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// pingIdle is the elapsed-time-since-last-outbound threshold after which
// a keep-alive ping is sent, per spec.md §4.3.
const pingIdle = 18 * time.Second

const (
	writeTimeout = 10 * time.Second
	dialTimeout  = 10 * time.Second
)

// Dialer opens the connection and performs the venue-specific handshake
// (subscribe, token acquisition, etc). It returns an error for anything
// that should cause an immediate, fatal abort rather than a reconnect —
// spec.md §4.3's subscription-ack error case.
type Dialer interface {
	// URL returns the address to dial. Implementations that need a fresh
	// token per connection attempt (venue M) compute it here.
	URL(ctx context.Context) (string, error)
	// OnConnect runs immediately after the socket is open, before the
	// read loop starts — this is where the subscribe envelope is sent.
	// A non-nil, fatal error aborts the whole connector (e.g. a
	// subscription ack with type="error"); a non-fatal error triggers a
	// reconnect.
	OnConnect(ctx context.Context, conn *Conn) error
	// HandleFrame is invoked once per inbound text frame, after the
	// shared pong/ping bookkeeping has already consumed housekeeping
	// frames. Implementations parse and emit the venue's typed events.
	HandleFrame(data []byte) error
	// PingMessage builds this venue's keep-alive ping payload.
	PingMessage() any
}

// Conn wraps a gorilla/websocket connection with a write mutex so
// ping/subscribe/outbound writes from different goroutines don't race.
type Conn struct {
	mu         sync.Mutex
	ws         *websocket.Conn
	lastWrite  time.Time
	lastWriteMu sync.Mutex
}

// WriteJSON sends a JSON message and records the time for idle-ping
// bookkeeping.
func (c *Conn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := c.ws.WriteJSON(v)
	c.lastWriteMu.Lock()
	c.lastWrite = time.Now()
	c.lastWriteMu.Unlock()
	return err
}

func (c *Conn) sinceLastWrite() time.Duration {
	c.lastWriteMu.Lock()
	defer c.lastWriteMu.Unlock()
	return time.Since(c.lastWrite)
}

// Run drives one connector forever: connect, subscribe, read, ping,
// until ctx is cancelled or the dialer reports a fatal error. Reconnects
// happen immediately with no backoff, per spec.md §4.3 ("no backoff is
// specified; the implementation MAY add one") — none is added here so
// the connector's recovery latency matches the source exactly.
func Run(ctx context.Context, label string, d Dialer, logger *slog.Logger) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := runOnce(ctx, label, d, logger); err != nil {
			var fe *FatalError
			if errors.As(err, &fe) {
				logger.Error("stream connector aborting: fatal error", "stream", label, "error", fe.Unwrap())
				return fe
			}
			logger.Warn("stream connector fault, reconnecting", "stream", label, "error", err)
		}
	}
}

// FatalError marks a stream fault that must not be retried — the only
// case spec.md §4.3 names is a subscription ack with type="error".
type FatalError struct{ err error }

func NewFatalError(err error) *FatalError { return &FatalError{err: err} }
func (e *FatalError) Error() string       { return fmt.Sprintf("fatal stream error: %v", e.err) }
func (e *FatalError) Unwrap() error       { return e.err }

func runOnce(ctx context.Context, label string, d Dialer, logger *slog.Logger) error {
	url, err := d.URL(ctx)
	if err != nil {
		return fmt.Errorf("resolve url: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	conn := &Conn{ws: ws, lastWrite: time.Now()}
	defer ws.Close()

	if err := d.OnConnect(ctx, conn); err != nil {
		return err
	}

	logger.Info("stream connected", "stream", label)

	readCtx, readCancel := context.WithCancel(ctx)
	defer readCancel()

	frames := make(chan []byte, 64)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- msg:
			case <-readCtx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return fmt.Errorf("read: %w", err)
		case data := <-frames:
			if isPong(data) {
				continue
			}
			if err := d.HandleFrame(data); err != nil {
				return fmt.Errorf("handle frame: %w", err)
			}
		case <-ticker.C:
			if conn.sinceLastWrite() >= pingIdle {
				if err := conn.WriteJSON(d.PingMessage()); err != nil {
					return fmt.Errorf("ping: %w", err)
				}
			}
		}
	}
}

func isPong(data []byte) bool {
	return contains(data, "pong") || contains(data, "Pong")
}

func contains(haystack []byte, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack []byte, needle string) int {
	n := len(needle)
	for i := 0; i+n <= len(haystack); i++ {
		if string(haystack[i:i+n]) == needle {
			return i
		}
	}
	return -1
}
