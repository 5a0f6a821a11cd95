package taker

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

func TestOnboardSetsAuthToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/authorize" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["isTermAccepted"] != "True" {
			t.Errorf("isTermAccepted = %v, want True", body["isTermAccepted"])
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "T1"})
	}))
	defer srv.Close()

	c, err := NewClient("c501312ca9eb1aaac6344edbe160e41d3d8d79570e6440f2a84f7d9abf462270", srv.URL, "https://testnet.example", 1, testLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := c.Onboard(context.Background()); err != nil {
		t.Fatalf("Onboard: %v", err)
	}
	if got := c.AuthToken(); got != "T1" {
		t.Errorf("AuthToken() = %q, want T1", got)
	}
}

func TestFetchMarketsParsesNestedID(t *testing.T) {
	const ethPerpID = "0xf4b34d977e09ef15c63736ccd6126eb10b54f910f33394ae7c2454d4c144d6ea"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"perpetualAddress": map[string]string{"id": ethPerpID},
		})
	}))
	defer srv.Close()

	c, err := NewClient("c501312ca9eb1aaac6344edbe160e41d3d8d79570e6440f2a84f7d9abf462270", srv.URL, "https://testnet.example", 1, testLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := c.FetchMarkets(context.Background(), []string{"ETH-PERP"}); err != nil {
		t.Fatalf("FetchMarkets: %v", err)
	}
	id, ok := c.MarketID("ETH-PERP")
	if !ok || id != ethPerpID {
		t.Errorf("MarketID = %q, %v; want %q, true", id, ok, ethPerpID)
	}
}

func TestPostSignedOrderRequiresOnboard(t *testing.T) {
	c, err := NewClient("c501312ca9eb1aaac6344edbe160e41d3d8d79570e6440f2a84f7d9abf462270", "https://unused.example", "https://testnet.example", 1, testLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	resp := c.PostSignedOrder(context.Background(), Order{}, "sig")
	if resp.Error == nil {
		t.Fatal("expected error when posting before onboard")
	}
}
