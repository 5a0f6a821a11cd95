// Package stats implements the periodic observability feed: a 60s
// account-equity/PnL emission with a per-market position breakdown, and
// a separate buy-percent stream derived from recent fill volume.
package stats

import (
	"context"
	"log/slog"
	"time"

	"chitamaker/pkg/venues/maker"
)

const emitPeriod = 60 * time.Second

// AccountSnapshot is one periodic emission of account-wide figures.
type AccountSnapshot struct {
	TotalAccountBalance float64
	TotalUnrealisedPnL  float64
	Positions           []maker.Position
}

// AccountStats periodically rolls up venue M's transaction history and
// open positions into an AccountSnapshot, mirroring the source's
// AccountStats::log loop (minus its bluefin account-data-update fan-in,
// which the Hedger/market-maker loops already observe directly).
type AccountStats struct {
	client *maker.Client
	out    chan<- AccountSnapshot
	logger *slog.Logger
}

func NewAccountStats(client *maker.Client, out chan<- AccountSnapshot, logger *slog.Logger) *AccountStats {
	return &AccountStats{client: client, out: out, logger: logger.With("component", "account_stats")}
}

// Run emits an AccountSnapshot every 60s until ctx is cancelled.
func (s *AccountStats) Run(ctx context.Context) error {
	ticker := time.NewTicker(emitPeriod)
	defer ticker.Stop()

	for {
		snap, err := s.Collect(ctx)
		if err != nil {
			s.logger.Error("collect account stats", "error", err)
		} else {
			s.logger.Info("account snapshot", "total_account_balance", snap.TotalAccountBalance, "total_unrealised_pnl", snap.TotalUnrealisedPnL)
			select {
			case s.out <- snap:
			default:
				s.logger.Warn("account stats channel full, dropping snapshot")
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Collect performs a single account-snapshot roll-up on demand — used by
// Run's periodic loop and by the engine once at startup to seed each
// market's ThresholdBreaker with a baseline balance.
func (s *AccountStats) Collect(ctx context.Context) (AccountSnapshot, error) {
	history, err := s.client.GetTransactionHistory(ctx)
	if err != nil {
		return AccountSnapshot{}, err
	}
	balance := processTransactionHistory(history)

	positionList, err := s.client.GetPositionList(ctx)
	if err != nil {
		return AccountSnapshot{}, err
	}
	pnl := sumUnrealisedPnL(positionList)

	for _, p := range positionList.Positions {
		s.logger.Info("market data", "symbol", p.Symbol, "current_qty", p.CurrentQty, "real_leverage", p.RealLeverage, "unrealised_pnl", p.UnrealisedPnL)
	}

	return AccountSnapshot{
		TotalAccountBalance: balance,
		TotalUnrealisedPnL:  pnl,
		Positions:           positionList.Positions,
	}, nil
}

// processTransactionHistory sums every ledger entry's amount; the
// source also folds in an "initial account equity" read from the first
// entry, but venue M's transaction-history response doesn't carry a
// distinct account-equity figure per entry in this port, so the sum of
// amounts alone is the running balance delta.
func processTransactionHistory(history []maker.TransactionHistoryEntry) float64 {
	var total float64
	for _, e := range history {
		total += e.Amount
	}
	return total
}

func sumUnrealisedPnL(list maker.PositionList) float64 {
	var total float64
	for _, p := range list.Positions {
		total += p.UnrealisedPnL
	}
	return total
}

// FlowStats periodically computes the fraction of recent fill volume
// that was a buy, per market, matching the source's Stats::emit loop.
type FlowStats struct {
	client  *maker.Client
	market  string
	genesis time.Time
	out     chan<- float64
	logger  *slog.Logger
}

func NewFlowStats(client *maker.Client, market string, genesis time.Time, out chan<- float64, logger *slog.Logger) *FlowStats {
	return &FlowStats{client: client, market: market, genesis: genesis, out: out, logger: logger.With("component", "flow_stats", "market", market)}
}

// Run emits a buy-percent value every 60s until ctx is cancelled.
func (s *FlowStats) Run(ctx context.Context) error {
	ticker := time.NewTicker(emitPeriod)
	defer ticker.Stop()

	for {
		pct, err := s.computeBuyPercent(ctx)
		if err != nil {
			s.logger.Error("compute buy percent", "error", err)
		} else {
			s.logger.Info("buy percent", "value", pct)
			select {
			case s.out <- pct:
			default:
				s.logger.Warn("flow stats channel full, dropping value")
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *FlowStats) computeBuyPercent(ctx context.Context) (float64, error) {
	sinceMs := s.genesis.UnixMilli()
	buySize, err := s.client.GetFillSizeForTimeWindow(ctx, s.market, "buy", sinceMs)
	if err != nil {
		return 0, err
	}
	sellSize, err := s.client.GetFillSizeForTimeWindow(ctx, s.market, "sell", sinceMs)
	if err != nil {
		return 0, err
	}
	if buySize+sellSize == 0 {
		return 50.0, nil
	}
	return (float64(buySize) / float64(buySize+sellSize)) * 100, nil
}
