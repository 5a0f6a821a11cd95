package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleMarkets = `{
  "circuit_breaker_config": {"num_retries": 3, "failure_threshold": 3, "loss_threshold_bps": 500},
  "markets": [
    {"name": "ETH-PERP", "mm_lot_upper_bound": 5000000000000000000, "lot_size": 10000000000000000, "min_size": "0.01", "price_precision": 2, "skewing_coefficient": 0.1,
     "symbols": {"reference": "ethusdt", "maker": "ETH-PERP", "taker": "ETH-PERP"}}
  ]
}`

func writeMarketsFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "markets.json")
	if err := os.WriteFile(path, []byte(sampleMarkets), 0o644); err != nil {
		t.Fatalf("write markets.json: %v", err)
	}
	return path
}

func setVenueEnv(t *testing.T) {
	t.Helper()
	vars := map[string]string{
		"BLUEFIN_ON_BOARDING_URL": "https://testnet.bluefin.io",
		"BLUEFIN_ENDPOINT":        "https://api.bluefin.io",
		"BLUEFIN_WALLET_KEY":      "c501312ca9eb1aaac6344edbe160e41d3d8d79570e6440f2a84f7d9abf462270",
		"BLUEFIN_WEB_SOCKET_URL":  "wss://ws.bluefin.io",
		"KUCOIN_API_KEY":          "key",
		"KUCOIN_API_SECRET":       "secret",
		"KUCOIN_API_PHRASE":       "phrase",
		"KUCOIN_ENDPOINT":         "https://api-futures.kucoin.com",
		"KUCOIN_ON_BOARDING_URL":  "https://api-futures.kucoin.com/api/v1/bullet-public",
		"KUCOIN_WEBSOCKET_URL":    "wss://ws-api-futures.kucoin.com",
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoadAndValidate(t *testing.T) {
	setVenueEnv(t)
	path := writeMarketsFile(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(cfg.Markets.Markets) != 1 {
		t.Fatalf("expected 1 market, got %d", len(cfg.Markets.Markets))
	}
	if cfg.Markets.Markets[0].Symbols.Taker != "ETH-PERP" {
		t.Errorf("taker symbol = %q, want ETH-PERP", cfg.Markets.Markets[0].Symbols.Taker)
	}
}

func TestValidateMissingEnv(t *testing.T) {
	path := writeMarketsFile(t)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to fail with no venue env vars set")
	}
}

func TestValidateRequiresAtLeastOneMarket(t *testing.T) {
	setVenueEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "markets.json")
	os.WriteFile(path, []byte(`{"circuit_breaker_config":{"num_retries":1,"failure_threshold":1,"loss_threshold_bps":1},"markets":[]}`), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate to fail with zero markets")
	}
}
