package api

import (
	"time"

	"chitamaker/internal/config"
)

// DashboardSnapshot represents the complete dashboard state: every
// configured market's venue books/quotes/positions plus account-wide
// figures and the resolved operational config.
type DashboardSnapshot struct {
	Timestamp time.Time `json:"timestamp"`

	Markets []MarketStatus `json:"markets"`

	Account AccountSnapshot `json:"account"`
	Config  ConfigSummary   `json:"config"`
}

// MarketStatus represents one market's current cross-venue state.
type MarketStatus struct {
	Market string `json:"market"`

	ReferenceMid float64 `json:"reference_mid"`
	MakerMid     float64 `json:"maker_mid"`
	TakerMid     float64 `json:"taker_mid"`

	ReferenceBestBid float64 `json:"reference_best_bid"`
	ReferenceBestAsk float64 `json:"reference_best_ask"`
	TakerBestBid     float64 `json:"taker_best_bid"`
	TakerBestAsk     float64 `json:"taker_best_ask"`

	LastUpdated time.Time `json:"last_updated"`
	IsStale     bool      `json:"is_stale"`

	ActiveQuote *QuotePairInfo `json:"active_quote,omitempty"`

	TakerPosition PositionSnapshot `json:"taker_position"`

	CancelAllBreakerState string `json:"cancel_all_breaker_state"`
	ThresholdBreakerOpen  bool   `json:"threshold_breaker_open"`

	BuyPercent float64 `json:"buy_percent"`
}

// QuotePairInfo is the market-maker loop's most recently computed and
// submitted ask/bid vectors.
type QuotePairInfo struct {
	AskPrices []float64 `json:"ask_prices"`
	AskSizes  []float64 `json:"ask_sizes"`
	BidPrices []float64 `json:"bid_prices"`
	BidSizes  []float64 `json:"bid_sizes"`
}

// PositionSnapshot mirrors taker.UserPosition in dashboard-friendly form.
type PositionSnapshot struct {
	Side          bool    `json:"side"` // true = long
	Quantity      float64 `json:"quantity"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	Margin        float64 `json:"margin"`
	Leverage      float64 `json:"leverage"`
}

// AccountSnapshot mirrors stats.AccountSnapshot in dashboard-friendly form.
type AccountSnapshot struct {
	TotalAccountBalance float64             `json:"total_account_balance"`
	TotalUnrealisedPnL  float64             `json:"total_unrealised_pnl"`
	Positions           []MakerPositionInfo `json:"positions"`
}

// MakerPositionInfo mirrors maker.Position in dashboard-friendly form.
type MakerPositionInfo struct {
	Symbol        string  `json:"symbol"`
	AvgEntryPrice float64 `json:"avg_entry_price"`
	CurrentQty    int64   `json:"current_qty"`
	RealLeverage  float64 `json:"real_leverage"`
	UnrealisedPnL float64 `json:"unrealised_pnl"`
}

// ConfigSummary represents the resolved operational configuration.
type ConfigSummary struct {
	ThrottlePeriod   string   `json:"throttle_period"`
	LogLevel         string   `json:"log_level"`
	Markets          []string `json:"markets"`
	NumRetries       uint8    `json:"num_retries"`
	FailureThreshold uint8    `json:"failure_threshold"`
	LossThresholdBps float32  `json:"loss_threshold_bps"`
	TakerLeverage    uint64   `json:"taker_leverage"`
	MakerLeverage    float64  `json:"maker_leverage"`
}

// NewConfigSummary creates a config summary from the engine's resolved config.
func NewConfigSummary(cfg config.Config) ConfigSummary {
	names := make([]string, 0, len(cfg.Markets.Markets))
	for _, m := range cfg.Markets.Markets {
		names = append(names, m.Name)
	}
	return ConfigSummary{
		ThrottlePeriod:   cfg.ThrottlePeriod.String(),
		LogLevel:         cfg.LogLevel,
		Markets:          names,
		NumRetries:       cfg.Markets.CircuitBreakerConfig.NumRetries,
		FailureThreshold: cfg.Markets.CircuitBreakerConfig.FailureThreshold,
		LossThresholdBps: cfg.Markets.CircuitBreakerConfig.LossThresholdBps,
		TakerLeverage:    cfg.Taker.Leverage,
		MakerLeverage:    cfg.Maker.Leverage,
	}
}
