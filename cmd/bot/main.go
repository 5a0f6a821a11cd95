// Cross-venue perpetual-futures market maker.
//
// Architecture:
//
//	main.go                  — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	internal/engine           — orchestrator: wires venue streamers, marketmaker loops, hedgers, breakers
//	internal/marketmaker      — quote generation and per-level order submission on venue T
//	internal/hedger           — neutralizes venue M fills with signed orders on venue T
//	internal/breaker          — cancel-all and balance-drawdown circuit breakers
//	internal/stream           — venue R/M/T WebSocket feeds with auto-reconnect
//	internal/stats            — account balance/PnL and fill-flow roll-ups
//	internal/store            — JSON file persistence for taker-venue positions (survives restarts)
//	internal/api              — optional read-only dashboard HTTP/WebSocket server
//	pkg/book                  — shared, mutex-protected order book model
//	pkg/venues/maker, taker   — venue M and venue T REST/signing clients
//
// How it makes money:
//
//	The bot quotes a multi-level bid/ask ladder on venue T, priced off
//	venue R's and venue M's mid prices and sized from venue T's bid book
//	shifted by the market's skewing coefficient, capturing the spread
//	against resting liquidity. Every fill it takes on venue M is
//	immediately neutralized with a signed IOC order on venue T, so the
//	bot's net exposure across venues stays close to flat.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chitamaker/internal/api"
	"chitamaker/internal/config"
	"chitamaker/internal/engine"
)

func main() {
	marketsPath := "configs/markets.json"
	if p := os.Getenv("MM_MARKETS_CONFIG"); p != "" {
		marketsPath = p
	}

	cfg, err := config.Load(marketsPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", marketsPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))

	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, eng, *cfg, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	names := make([]string, 0, len(cfg.Markets.Markets))
	for _, m := range cfg.Markets.Markets {
		names = append(names, m.Name)
	}
	logger.Info("market maker started", "markets", names, "throttle_period", cfg.ThrottlePeriod)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
