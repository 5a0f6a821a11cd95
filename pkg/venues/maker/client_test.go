package maker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestGetPositionParsesSignedHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, h := range []string{"kc-api-key", "kc-api-sign", "kc-api-timestamp", "kc-api-passphrase", "kc-api-key-version"} {
			if r.Header.Get(h) == "" {
				t.Errorf("missing request header %q", h)
			}
		}
		if r.URL.Query().Get("symbol") != "ETHUSDTM" {
			t.Errorf("symbol query = %q, want ETHUSDTM", r.URL.Query().Get("symbol"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"symbol":        "ETHUSDTM",
				"avgEntryPrice": 1800.5,
				"currentQty":    -3,
				"realLeverage":  5.0,
				"unrealisedPnl": -12.3,
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{APIKey: "k", APISecret: "cw==", Passphrase: "p"}, 3, false, testLogger())
	pos, err := c.GetPosition(context.Background(), "ETH-PERP")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if pos.CurrentQty != -3 {
		t.Errorf("CurrentQty = %d, want -3", pos.CurrentQty)
	}
}

func TestPlaceLimitOrderDryRun(t *testing.T) {
	c := NewClient("https://unused.example", Credentials{APIKey: "k", APISecret: "s", Passphrase: "p"}, 3, true, testLogger())
	resp := c.PlaceLimitOrder(context.Background(), "ETH-PERP", true, 1700.0, 1)
	if resp.Error != nil {
		t.Fatalf("PlaceLimitOrder dry-run returned error: %v", resp.Error)
	}
	if resp.OrderID == "" {
		t.Error("dry-run OrderID should be non-empty placeholder")
	}
}

func TestCancelAllOrdersDryRun(t *testing.T) {
	c := NewClient("https://unused.example", Credentials{APIKey: "k", APISecret: "s", Passphrase: "p"}, 3, true, testLogger())
	resp := c.CancelAllOrders(context.Background(), "ETH-PERP")
	if resp.Error != nil {
		t.Fatalf("CancelAllOrders dry-run returned error: %v", resp.Error)
	}
}
