// Package engine is the central orchestrator of the market-making bot.
//
// It wires together all subsystems:
//
//  1. Config supplies a static list of markets, each quoting a reference
//     venue (R), a maker venue (M), and a taker venue (T).
//  2. Engine starts one marketmaker.Loop and one hedger.Hedger per market,
//     each fed by its own set of venue streamers.
//  3. Each market owns a CancelAllOrdersBreaker and a ThresholdBreaker that
//     force a cancel-all on venue M when failures or drawdown cross
//     configured thresholds.
//  4. A single shared venue T client and venue M client serve every
//     market's loop/hedger — the venue T client guards its auth token and
//     market cache with a mutex, and the venue M client holds no mutable
//     state, so both are safe to share.
//  5. An optional dashboard API surfaces a read-only snapshot (including
//     breaker states) plus a real-time order/account event feed; breaker
//     transitions are not pushed as events.
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chitamaker/internal/api"
	"chitamaker/internal/breaker"
	"chitamaker/internal/config"
	"chitamaker/internal/hedger"
	"chitamaker/internal/marketmaker"
	"chitamaker/internal/stats"
	"chitamaker/internal/store"
	"chitamaker/internal/stream"
	"chitamaker/pkg/book"
	"chitamaker/pkg/venues/maker"
	"chitamaker/pkg/venues/taker"
)

// bookStaleAfter bounds how long a venue book can go unrefreshed before
// the dashboard marks a market stale.
const bookStaleAfter = 30 * time.Second

// marketSlot is one market's full set of running components. Built once
// in New and never mutated as a map entry — only the components it points
// to carry their own internal locking for concurrent dashboard reads.
type marketSlot struct {
	cfg config.MarketConfig

	loop             *marketmaker.Loop
	hedger           *hedger.Hedger
	cancelAllBreaker *breaker.CancelAllOrdersBreaker
	thresholdBreaker *breaker.ThresholdBreaker
	flowStats        *stats.FlowStats
	flowStatsOut     chan float64

	flowMu     sync.RWMutex
	buyPercent float64

	cancel context.CancelFunc
}

// Engine orchestrates every market's goroutines and owns the shared venue
// clients and the optional dashboard event feed.
type Engine struct {
	cfg         config.Config
	takerClient *taker.Client
	makerClient *maker.Client
	store       *store.Store
	logger      *slog.Logger

	accountStats *stats.AccountStats
	accountCh    chan stats.AccountSnapshot
	accountMu    sync.RWMutex
	lastAccount  stats.AccountSnapshot

	slots map[string]*marketSlot

	dashboardEvents chan api.DashboardEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds both venue clients (onboarding venue T; venue M needs no
// onboarding step), fetches venue T market metadata for
// every configured market, seeds each market's Hedger from persisted or
// live position state, and constructs (but does not start) every
// per-market component.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	takerClient, err := taker.NewClient(cfg.Taker.WalletKey, cfg.Taker.Endpoint, cfg.Taker.OnboardingURL, cfg.Taker.Leverage, logger)
	if err != nil {
		return nil, fmt.Errorf("construct taker client: %w", err)
	}

	onboardCtx, onboardCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer onboardCancel()
	if err := takerClient.Onboard(onboardCtx); err != nil {
		return nil, fmt.Errorf("onboard taker venue: %w", err)
	}

	takerSymbols := make([]string, 0, len(cfg.Markets.Markets))
	for _, m := range cfg.Markets.Markets {
		takerSymbols = append(takerSymbols, m.Symbols.Taker)
	}
	if err := takerClient.FetchMarkets(onboardCtx, takerSymbols); err != nil {
		return nil, fmt.Errorf("fetch taker markets: %w", err)
	}

	makerClient := maker.NewClient(cfg.Maker.Endpoint, maker.Credentials{
		APIKey:     cfg.Maker.APIKey,
		APISecret:  cfg.Maker.APISecret,
		Passphrase: cfg.Maker.APIPassphrase,
	}, cfg.Maker.Leverage, false, logger)

	st, err := store.Open(cfg.StoreDataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	accountCh := make(chan stats.AccountSnapshot, 8)
	accountStats := stats.NewAccountStats(makerClient, accountCh, logger)

	var initialBalance float64
	if snap, err := accountStats.Collect(onboardCtx); err != nil {
		logger.Warn("initial account snapshot failed, threshold breakers start disarmed", "error", err)
	} else {
		initialBalance = snap.TotalAccountBalance
	}

	var dashEvents chan api.DashboardEvent
	if cfg.Dashboard.Enabled {
		dashEvents = make(chan api.DashboardEvent, 256)
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:             cfg,
		takerClient:     takerClient,
		makerClient:     makerClient,
		store:           st,
		logger:          logger.With("component", "engine"),
		accountStats:    accountStats,
		accountCh:       accountCh,
		slots:           make(map[string]*marketSlot, len(cfg.Markets.Markets)),
		dashboardEvents: dashEvents,
		ctx:             ctx,
		cancel:          cancel,
	}

	for _, mkt := range cfg.Markets.Markets {
		slot, err := e.buildSlot(onboardCtx, mkt, initialBalance)
		if err != nil {
			return nil, fmt.Errorf("build market %s: %w", mkt.Name, err)
		}
		e.slots[mkt.Name] = slot
	}

	return e, nil
}

// buildSlot constructs one market's breakers, Hedger, and market-maker
// Loop. It does not start any goroutines.
func (e *Engine) buildSlot(ctx context.Context, mkt config.MarketConfig, initialBalance float64) (*marketSlot, error) {
	cbCfg := e.cfg.Markets.CircuitBreakerConfig

	cancelAll := func(ctx context.Context) error {
		resp := e.makerClient.CancelAllOrders(ctx, maker.VenueSymbol(mkt.Symbols.Maker))
		return resp.Error
	}

	cancelAllBreaker := breaker.NewCancelAllOrdersBreaker(cbCfg, mkt.Name, cancelAll, e.cfg.ThrottlePeriod, e.logger)
	thresholdBreaker := breaker.NewThresholdBreaker(cbCfg, mkt.Name, cancelAll, e.cfg.ThrottlePeriod, initialBalance, e.logger)

	initialPos, err := e.store.LoadPosition(mkt.Name)
	if err != nil {
		return nil, fmt.Errorf("load persisted position: %w", err)
	}
	if initialPos == nil {
		pos, err := e.takerClient.GetUserPosition(ctx, mkt.Symbols.Taker)
		if err != nil {
			return nil, fmt.Errorf("fetch initial taker position: %w", err)
		}
		initialPos = &pos
	}

	hg := hedger.New(mkt.Name, mkt.Symbols.Taker, e.takerClient, *initialPos, cancelAllBreaker, e.logger)
	hg.SetOrderObserver(func(isBuy bool, quantity float64, err error) {
		e.emitDashboardEvent(mkt.Name, "order", api.NewOrderEvent("hedger", isBuy, 0, quantity, err))
	})

	loop := marketmaker.New(mkt, e.takerClient, cancelAllBreaker, e.logger)
	loop.SetOrderObserver(func(isBuy bool, price, quantity float64, err error) {
		e.emitDashboardEvent(mkt.Name, "order", api.NewOrderEvent("marketmaker", isBuy, price, quantity, err))
	})

	flowCh := make(chan float64, 4)
	flowStats := stats.NewFlowStats(e.makerClient, maker.VenueSymbol(mkt.Symbols.Maker), time.Now(), flowCh, e.logger)

	return &marketSlot{
		cfg:              mkt,
		loop:             loop,
		hedger:           hg,
		cancelAllBreaker: cancelAllBreaker,
		thresholdBreaker: thresholdBreaker,
		flowStats:        flowStats,
		flowStatsOut:     flowCh,
		buyPercent:       50.0,
	}, nil
}

// Start launches every background goroutine: the account-stats loop and,
// per market, six venue streamers, the market-maker loop, the hedger, and
// the flow-stats loop.
func (e *Engine) Start() error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.accountStats.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("account stats stopped", "error", err)
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.consumeAccountSnapshots()
	}()

	for name, slot := range e.slots {
		e.startMarket(name, slot)
	}

	return nil
}

// consumeAccountSnapshots keeps the engine's cached AccountSnapshot fresh
// for dashboard reads and broadcasts each one as a dashboard event, and
// feeds every market's ThresholdBreaker a fresh drawdown check.
func (e *Engine) consumeAccountSnapshots() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case snap, ok := <-e.accountCh:
			if !ok {
				return
			}
			e.accountMu.Lock()
			e.lastAccount = snap
			e.accountMu.Unlock()

			for _, slot := range e.slots {
				slot.thresholdBreaker.CheckDrawdown(e.ctx, snap.TotalAccountBalance)
			}

			e.emitDashboardEvent("", "account", toAPIAccountSnapshot(snap))
		}
	}
}

// startMarket spawns the six venue streamers for mkt plus its
// marketmaker.Loop, Hedger, and FlowStats goroutines, all scoped to a
// child context cancelled by Stop.
func (e *Engine) startMarket(name string, slot *marketSlot) {
	ctx, cancel := context.WithCancel(e.ctx)
	slot.cancel = cancel
	mkt := slot.cfg
	logger := e.logger.With("market", name)

	refBooks := make(chan stream.BookEvent, 16)
	makerBooks := make(chan stream.BookEvent, 16)
	makerTicker := make(chan stream.TickerEvent, 16)
	takerBooks := make(chan stream.BookEvent, 16)
	makerPos := make(chan stream.PositionEvent, 16)
	takerPos := make(chan stream.PositionEvent, 16)

	e.spawn(func() error {
		return stream.RunReference(ctx, stream.ReferenceBaseURL, mkt.Symbols.Reference, refBooks, logger)
	}, "reference-stream", name)

	e.spawn(func() error {
		return stream.RunMakerBook(ctx, e.cfg.Maker.OnboardingURL, "/contractMarket/level2Depth5", maker.VenueSymbol(mkt.Symbols.Maker), name, makerBooks, logger)
	}, "maker-book-stream", name)

	e.spawn(func() error {
		return stream.RunMakerTicker(ctx, e.cfg.Maker.OnboardingURL, "/contractMarket/tickerV2", maker.VenueSymbol(mkt.Symbols.Maker), name, makerTicker, logger)
	}, "maker-ticker-stream", name)

	e.spawn(func() error {
		return stream.RunTakerBook(ctx, e.cfg.Taker.WebSocketURL, mkt.Symbols.Taker, takerBooks, logger)
	}, "taker-book-stream", name)

	e.spawn(func() error {
		privateURL, err := e.makerClient.GetPrivateSocketURL(ctx)
		if err != nil {
			return fmt.Errorf("request maker private socket url: %w", err)
		}
		wsBase, makerToken, _ := strings.Cut(privateURL, "?token=")
		return stream.RunMakerPrivate(ctx, wsBase, makerToken, "/contract/position", makerPos, logger)
	}, "maker-private-stream", name)

	e.spawn(func() error {
		return stream.RunTakerPrivate(ctx, e.cfg.Taker.WebSocketURL, e.takerClient.AuthToken(), "PositionUpdate", takerPos, logger)
	}, "taker-private-stream", name)

	e.spawn(func() error {
		return slot.loop.Run(ctx, refBooks, makerBooks, makerTicker, takerBooks)
	}, "marketmaker-loop", name)

	e.spawn(func() error {
		return slot.hedger.Run(ctx, makerPos, takerPos)
	}, "hedger", name)

	e.spawn(func() error {
		return slot.flowStats.Run(ctx)
	}, "flow-stats", name)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case pct, ok := <-slot.flowStatsOut:
				if !ok {
					return
				}
				slot.flowMu.Lock()
				slot.buyPercent = pct
				slot.flowMu.Unlock()
			}
		}
	}()
}

// spawn runs fn in a tracked goroutine; any error other than context
// cancellation is logged, matching spec.md §9's "fatal for that market,
// not the process" design.
func (e *Engine) spawn(fn func() error, component, market string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := fn(); err != nil && e.ctx.Err() == nil {
			e.logger.Error("component stopped", "component", component, "market", market, "error", err)
		}
	}()
}

// Stop cancels every market's context, forces a cancel-all on venue M for
// each market as a safety net, persists final taker-venue positions,
// waits for all goroutines, and closes the store.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")

	e.cancel()

	cancelCtx, cancelCancel := context.WithTimeout(context.Background(), 10*time.Second)
	for name, slot := range e.slots {
		if resp := e.makerClient.CancelAllOrders(cancelCtx, maker.VenueSymbol(slot.cfg.Symbols.Maker)); resp.Error != nil {
			e.logger.Error("failed to cancel all orders on shutdown", "market", name, "error", resp.Error)
		}
		if err := e.store.SavePosition(name, slot.hedger.Position()); err != nil {
			e.logger.Error("failed to save position", "market", name, "error", err)
		}
	}
	cancelCancel()

	e.wg.Wait()
	e.store.Close()
	if e.dashboardEvents != nil {
		close(e.dashboardEvents)
	}

	e.logger.Info("shutdown complete")
}

// DashboardEvents returns the dashboard event channel (nil if disabled).
func (e *Engine) DashboardEvents() <-chan api.DashboardEvent {
	return e.dashboardEvents
}

// GetMarketsSnapshot returns the current cross-venue state of every
// configured market, for dashboard consumption.
func (e *Engine) GetMarketsSnapshot() []api.MarketStatus {
	result := make([]api.MarketStatus, 0, len(e.slots))
	for name, slot := range e.slots {
		result = append(result, e.marketStatus(name, slot))
	}
	return result
}

func (e *Engine) marketStatus(name string, slot *marketSlot) api.MarketStatus {
	books := slot.loop.Books()
	refBook, makerBook, takerBook := books["reference"], books["maker"], books["taker"]

	refMid, refBid, refAsk, refUpdated := midAndBest(refBook)
	makerMid, _, _, makerUpdated := midAndBest(makerBook)
	takerMid, takerBid, takerAsk, takerUpdated := midAndBest(takerBook)

	lastUpdated := latest(refUpdated, makerUpdated, takerUpdated)
	stale := refBook.IsStale(bookStaleAfter) || makerBook.IsStale(bookStaleAfter) || takerBook.IsStale(bookStaleAfter)

	status := api.MarketStatus{
		Market:                name,
		ReferenceMid:          refMid,
		MakerMid:              makerMid,
		TakerMid:              takerMid,
		ReferenceBestBid:      refBid,
		ReferenceBestAsk:      refAsk,
		TakerBestBid:          takerBid,
		TakerBestAsk:          takerAsk,
		LastUpdated:           lastUpdated,
		IsStale:               stale,
		CancelAllBreakerState: slot.cancelAllBreaker.StateValue().String(),
		ThresholdBreakerOpen:  slot.thresholdBreaker.IsOpen(),
	}

	slot.flowMu.RLock()
	status.BuyPercent = slot.buyPercent
	slot.flowMu.RUnlock()

	if pair, ok := slot.loop.LastQuote(); ok {
		status.ActiveQuote = &api.QuotePairInfo{
			AskPrices: pair.Ask.Prices,
			AskSizes:  pair.Ask.Sizes,
			BidPrices: pair.Bid.Prices,
			BidSizes:  pair.Bid.Sizes,
		}
	}

	pos := slot.hedger.Position()
	status.TakerPosition = api.PositionSnapshot{
		Side:          pos.Side,
		Quantity:      pos.QuantityContracts(),
		AvgEntryPrice: pos.AvgEntryPriceFloat(),
		Margin:        pos.Margin,
		Leverage:      pos.Leverage,
	}

	return status
}

// GetAccountSnapshot returns the most recently collected account-wide
// balance/PnL figures, for dashboard consumption.
func (e *Engine) GetAccountSnapshot() api.AccountSnapshot {
	e.accountMu.RLock()
	defer e.accountMu.RUnlock()
	return toAPIAccountSnapshot(e.lastAccount)
}

func toAPIAccountSnapshot(snap stats.AccountSnapshot) api.AccountSnapshot {
	positions := make([]api.MakerPositionInfo, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		positions = append(positions, api.MakerPositionInfo{
			Symbol:        p.Symbol,
			AvgEntryPrice: p.AvgEntryPrice,
			CurrentQty:    p.CurrentQty,
			RealLeverage:  p.RealLeverage,
			UnrealisedPnL: p.UnrealisedPnL,
		})
	}
	return api.AccountSnapshot{
		TotalAccountBalance: snap.TotalAccountBalance,
		TotalUnrealisedPnL:  snap.TotalUnrealisedPnL,
		Positions:           positions,
	}
}

// emitDashboardEvent sends an event to the dashboard (non-blocking).
func (e *Engine) emitDashboardEvent(market, typ string, data interface{}) {
	if e.dashboardEvents == nil {
		return
	}
	select {
	case e.dashboardEvents <- api.DashboardEvent{Type: typ, Timestamp: time.Now(), Market: market, Data: data}:
	default:
		e.logger.Warn("dashboard event channel full, dropping event")
	}
}

// midAndBest reads a venue book's top-of-book levels and element-wise
// mid, tolerating a book that hasn't received any snapshot yet.
func midAndBest(b *book.Book) (mid, bid, ask float64, updated time.Time) {
	bidLvl, askLvl, ok := b.BestBidAsk()
	if !ok {
		return 0, 0, 0, time.Time{}
	}
	mids := b.Mid()
	if len(mids) > 0 {
		mid = mids[0]
	}
	_, _, updated = b.Snapshot()
	return mid, bidLvl.Price, askLvl.Price, updated
}

func latest(times ...time.Time) time.Time {
	var result time.Time
	for _, t := range times {
		if t.After(result) {
			result = t
		}
	}
	return result
}
