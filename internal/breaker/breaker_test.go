package breaker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"chitamaker/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestCancelAllOrdersBreakerTripsAfterThreshold(t *testing.T) {
	cfg := config.CircuitBreakerConfig{NumRetries: 1, FailureThreshold: 3, LossThresholdBps: 0}
	calls := 0
	cancelAll := func(ctx context.Context) error {
		calls++
		return nil
	}
	b := NewCancelAllOrdersBreaker(cfg, "ETH-PERP", cancelAll, time.Millisecond, testLogger())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		b.OnFailure(ctx)
		if b.IsOpen() {
			t.Fatalf("breaker tripped early on failure %d", i+1)
		}
	}
	// 4th failure exceeds threshold of 3.
	b.OnFailure(ctx)
	if !b.IsOpen() {
		t.Fatal("expected breaker to be Open after exceeding failure_threshold")
	}
	if calls != 1 {
		t.Errorf("expected cancel-all to be called exactly once, got %d", calls)
	}

	b.OnSuccess()
	if b.IsOpen() {
		t.Fatal("expected OnSuccess to reset breaker to Closed")
	}
}

func TestCancelAllOrdersBreakerHalfOpenBeforeTrip(t *testing.T) {
	cfg := config.CircuitBreakerConfig{NumRetries: 1, FailureThreshold: 3, LossThresholdBps: 0}
	b := NewCancelAllOrdersBreaker(cfg, "ETH-PERP", func(ctx context.Context) error { return nil }, time.Millisecond, testLogger())

	ctx := context.Background()
	b.OnFailure(ctx)
	if b.StateValue() != HalfOpen {
		t.Errorf("state = %v, want HalfOpen after first failure", b.StateValue())
	}
}

func TestCancelAllOrdersBreakerRetriesOnFailureThenSucceeds(t *testing.T) {
	cfg := config.CircuitBreakerConfig{NumRetries: 3, FailureThreshold: 1}
	attempts := 0
	cancelAll := func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("boom")
		}
		return nil
	}
	b := NewCancelAllOrdersBreaker(cfg, "ETH-PERP", cancelAll, time.Millisecond, testLogger())

	ctx := context.Background()
	b.OnFailure(ctx)
	b.OnFailure(ctx)
	if attempts < 2 {
		t.Errorf("expected at least 2 cancel-all attempts, got %d", attempts)
	}
}

func TestThresholdBreakerTripsOnDrawdown(t *testing.T) {
	cfg := config.CircuitBreakerConfig{NumRetries: 1, FailureThreshold: 5, LossThresholdBps: 500} // 5% threshold
	calls := 0
	cancelAll := func(ctx context.Context) error {
		calls++
		return nil
	}
	b := NewThresholdBreaker(cfg, "ETH-PERP", cancelAll, time.Millisecond, 1000.0, testLogger())

	ctx := context.Background()
	if b.CheckDrawdown(ctx, 960.0) {
		t.Fatal("4% drawdown should not trip a 5% threshold")
	}
	if !b.CheckDrawdown(ctx, 940.0) {
		t.Fatal("6% drawdown should trip a 5% threshold")
	}
	if !b.IsOpen() {
		t.Fatal("expected breaker to be Open after tripping")
	}
	if calls != 1 {
		t.Errorf("expected cancel-all called once, got %d", calls)
	}

	b.OnSuccess()
	if b.IsOpen() {
		t.Fatal("expected OnSuccess to reset ThresholdBreaker to Closed")
	}
}

func TestThresholdBreakerIgnoresZeroBaseline(t *testing.T) {
	cfg := config.CircuitBreakerConfig{NumRetries: 1, FailureThreshold: 5, LossThresholdBps: 500}
	b := NewThresholdBreaker(cfg, "ETH-PERP", func(ctx context.Context) error { return nil }, time.Millisecond, 0, testLogger())
	if b.CheckDrawdown(context.Background(), 100.0) {
		t.Fatal("zero baseline should never trip")
	}
}
