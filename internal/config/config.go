// Package config loads and validates the engine's configuration: the
// per-venue environment variables spec.md §6 requires, plus the
// markets.json-shaped market and circuit-breaker definitions. Apart from
// cmd/bot reading MM_MARKETS_CONFIG to locate the markets file, this is
// the only place that reads the process environment or a config file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// SymbolSet is the per-venue symbol a market trades under.
type SymbolSet struct {
	Reference string `json:"reference"`
	Maker     string `json:"maker"`
	Taker     string `json:"taker"`
}

// MarketConfig is one entry from the markets.json "markets" array.
type MarketConfig struct {
	Name               string          `json:"name"`
	MMLotUpperBound    decimal.Decimal `json:"mm_lot_upper_bound"`
	LotSize            decimal.Decimal `json:"lot_size"`
	MinSize            string          `json:"min_size"`
	PricePrecision     int32           `json:"price_precision"`
	SkewingCoefficient float64         `json:"skewing_coefficient"`
	Symbols            SymbolSet       `json:"symbols"`
}

// CircuitBreakerConfig tunes the cancel-all-orders and threshold
// breakers shared by every market.
type CircuitBreakerConfig struct {
	NumRetries       uint8   `json:"num_retries"`
	FailureThreshold uint8   `json:"failure_threshold"`
	LossThresholdBps float32 `json:"loss_threshold_bps"`
}

// MarketsFile is the on-disk shape of markets.json.
type MarketsFile struct {
	CircuitBreakerConfig CircuitBreakerConfig `json:"circuit_breaker_config"`
	Markets              []MarketConfig       `json:"markets"`
}

// TakerConfig holds venue T's connection parameters, sourced from
// BLUEFIN_* env vars.
type TakerConfig struct {
	OnboardingURL string
	Endpoint      string
	WalletKey     string
	WebSocketURL  string
	Leverage      uint64
}

// MakerConfig holds venue M's connection parameters, sourced from
// KUCOIN_* env vars.
type MakerConfig struct {
	APIKey        string
	APISecret     string
	APIPassphrase string
	Endpoint      string
	OnboardingURL string
	WebSocketURL  string
	Leverage      float64
}

// DashboardConfig tunes the optional read-only status dashboard.
type DashboardConfig struct {
	Enabled        bool
	Port           int
	AllowedOrigins []string
}

// Config is the fully-resolved, validated configuration the engine is
// built from.
type Config struct {
	Taker   TakerConfig
	Maker   MakerConfig
	Markets MarketsFile

	ThrottlePeriod time.Duration // MARKET_MAKING_TIME_THROTTLE_PERIOD
	LogLevel       string        // LOG_LEVEL

	StoreDataDir string
	Dashboard    DashboardConfig
}

// Load reads markets.json from marketsPath and the venue credentials
// from the process environment, matching spec.md §6's required env-var
// list exactly.
func Load(marketsPath string) (*Config, error) {
	raw, err := os.ReadFile(marketsPath)
	if err != nil {
		return nil, fmt.Errorf("read markets config: %w", err)
	}
	var marketsFile MarketsFile
	if err := json.Unmarshal(raw, &marketsFile); err != nil {
		return nil, fmt.Errorf("parse markets config: %w", err)
	}

	cfg := &Config{
		Taker: TakerConfig{
			OnboardingURL: os.Getenv("BLUEFIN_ON_BOARDING_URL"),
			Endpoint:      os.Getenv("BLUEFIN_ENDPOINT"),
			WalletKey:     os.Getenv("BLUEFIN_WALLET_KEY"),
			WebSocketURL:  os.Getenv("BLUEFIN_WEB_SOCKET_URL"),
		},
		Maker: MakerConfig{
			APIKey:        os.Getenv("KUCOIN_API_KEY"),
			APISecret:     os.Getenv("KUCOIN_API_SECRET"),
			APIPassphrase: os.Getenv("KUCOIN_API_PHRASE"),
			Endpoint:      os.Getenv("KUCOIN_ENDPOINT"),
			OnboardingURL: os.Getenv("KUCOIN_ON_BOARDING_URL"),
			WebSocketURL:  os.Getenv("KUCOIN_WEBSOCKET_URL"),
		},
		Markets: marketsFile,
	}

	loadOperational(cfg)

	if lev, err := strconv.ParseUint(os.Getenv("BLUEFIN_LEVERAGE"), 10, 64); err == nil {
		cfg.Taker.Leverage = lev
	}
	if lev, err := strconv.ParseFloat(os.Getenv("KUCOIN_LEVERAGE"), 64); err == nil {
		cfg.Maker.Leverage = lev
	}
	if ms, err := strconv.Atoi(os.Getenv("MARKET_MAKING_TIME_THROTTLE_PERIOD")); err == nil {
		cfg.ThrottlePeriod = time.Duration(ms) * time.Millisecond
	}

	return cfg, nil
}

// loadOperational fills in the ambient operational knobs (log level,
// store directory, dashboard) that spec.md leaves unspecified, via
// viper's layered defaults/file/env resolution — mirroring the teacher's
// config layer for everything outside the venue-credential env vars
// spec.md names explicitly. An operational.yaml in the working directory
// is optional; env vars under the MM_ prefix win over it, except that
// Load afterwards replaces throttle_period with
// MARKET_MAKING_TIME_THROTTLE_PERIOD when that variable is set.
func loadOperational(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("MM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", envOrDefault("LOG_LEVEL", "info"))
	v.SetDefault("store_data_dir", "./data")
	v.SetDefault("throttle_period", "500ms")
	v.SetDefault("dashboard.enabled", false)
	v.SetDefault("dashboard.port", 8090)
	v.SetDefault("dashboard.allowed_origins", []string{})

	v.SetConfigName("operational")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional: absence is not an error

	cfg.LogLevel = v.GetString("log_level")
	cfg.StoreDataDir = v.GetString("store_data_dir")
	cfg.ThrottlePeriod = v.GetDuration("throttle_period")
	cfg.Dashboard = DashboardConfig{
		Enabled:        v.GetBool("dashboard.enabled"),
		Port:           v.GetInt("dashboard.port"),
		AllowedOrigins: v.GetStringSlice("dashboard.allowed_origins"),
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Validate checks all required fields are present and sane.
func (c *Config) Validate() error {
	if c.Taker.OnboardingURL == "" {
		return fmt.Errorf("BLUEFIN_ON_BOARDING_URL is required")
	}
	if c.Taker.Endpoint == "" {
		return fmt.Errorf("BLUEFIN_ENDPOINT is required")
	}
	if c.Taker.WalletKey == "" {
		return fmt.Errorf("BLUEFIN_WALLET_KEY is required")
	}
	if c.Taker.WebSocketURL == "" {
		return fmt.Errorf("BLUEFIN_WEB_SOCKET_URL is required")
	}
	if c.Maker.APIKey == "" {
		return fmt.Errorf("KUCOIN_API_KEY is required")
	}
	if c.Maker.APISecret == "" {
		return fmt.Errorf("KUCOIN_API_SECRET is required")
	}
	if c.Maker.APIPassphrase == "" {
		return fmt.Errorf("KUCOIN_API_PHRASE is required")
	}
	if c.Maker.Endpoint == "" {
		return fmt.Errorf("KUCOIN_ENDPOINT is required")
	}
	if c.Maker.OnboardingURL == "" {
		return fmt.Errorf("KUCOIN_ON_BOARDING_URL is required")
	}
	if c.Maker.WebSocketURL == "" {
		return fmt.Errorf("KUCOIN_WEBSOCKET_URL is required")
	}
	if len(c.Markets.Markets) == 0 {
		return fmt.Errorf("markets config must define at least one market")
	}
	if c.Markets.CircuitBreakerConfig.FailureThreshold == 0 {
		return fmt.Errorf("circuit_breaker_config.failure_threshold must be > 0")
	}
	for _, m := range c.Markets.Markets {
		if m.Name == "" {
			return fmt.Errorf("market entry missing name")
		}
		if m.Symbols.Reference == "" || m.Symbols.Maker == "" || m.Symbols.Taker == "" {
			return fmt.Errorf("market %s missing one or more venue symbols", m.Name)
		}
	}
	return nil
}
