package app

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"uoa-scanner/broker"
	"uoa-scanner/database"
)

// TradeStore persists one account's trade lifecycle. Implemented by
// database.TradeLog.
type TradeStore interface {
	LogOpen(t *database.PaperTrade) (int64, error)
	LogClose(id int64, exitTime time.Time, exitPrice, pnl, pnlPct float64, reason string) error
	OpenTrades() ([]database.PaperTrade, error)
}

// SignalCloser flips a symbol's active signal row to CLOSED. Implemented by
// database.Repository.
type SignalCloser interface {
	MarkSignalClosed(symbol string) error
}

// StreamWatcher adjusts the hard-stop monitor's live subscriptions as
// positions open and close. Implemented by broker.EquityStream.
type StreamWatcher interface {
	Watch(symbols ...string) error
	Unwatch(symbols ...string) error
}

// OutcomeNotifier receives decisive position events. Implemented by the
// webhook notifier; nil disables notifications.
type OutcomeNotifier interface {
	PositionOpened(account, symbol string, shares int, price float64, score int)
	PositionClosed(account, symbol, reason string, pnl, pnlPct float64)
}

// PositionLimits are the sizing and concurrency parameters for one account.
type PositionLimits struct {
	MaxConcurrent int
	NotionalCap   float64
	EquityPct     float64
	HardStopPct   float64
	SectorCap     int
}

// dailyStats is the per-account per-day tally, cleared on daily reset.
type dailyStats struct {
	opened int
	closed int
	pnl    float64
}

// PositionManager owns one account's position state: admission checks,
// sizing, broker orders, persistence and the close reentrancy guard.
type PositionManager struct {
	account  string
	broker   broker.Broker
	trades   TradeStore
	signals  SignalCloser
	ref      *RefDataHandle
	regime   *RegimeMonitor
	watcher  StreamWatcher
	notifier OutcomeNotifier
	limits   PositionLimits

	mu           sync.Mutex
	active       map[string]*Position
	pending      map[string]struct{}
	closing      map[string]struct{}
	pendingClose map[string]struct{}
	stats        dailyStats

	now func() time.Time
}

// NewPositionManager creates the manager for one account. watcher and
// notifier may be nil.
func NewPositionManager(account string, b broker.Broker, trades TradeStore, signals SignalCloser,
	ref *RefDataHandle, regime *RegimeMonitor, watcher StreamWatcher, notifier OutcomeNotifier,
	limits PositionLimits) *PositionManager {
	return &PositionManager{
		account:      account,
		broker:       b,
		trades:       trades,
		signals:      signals,
		ref:          ref,
		regime:       regime,
		watcher:      watcher,
		notifier:     notifier,
		limits:       limits,
		active:       make(map[string]*Position),
		pending:      make(map[string]struct{}),
		closing:      make(map[string]struct{}),
		pendingClose: make(map[string]struct{}),
		now:          time.Now,
	}
}

// Account returns the account label.
func (pm *PositionManager) Account() string { return pm.account }

// OpenPosition runs the admission checks that need live account state,
// sizes the order and submits a market buy. Returns the position on fill,
// nil with a reason when admission failed, and an error only on broker or
// persistence failure.
func (pm *PositionManager) OpenPosition(ctx context.Context, sig *Signal) (*Position, string, error) {
	symbol := sig.Symbol

	pm.mu.Lock()
	if _, held := pm.active[symbol]; held {
		pm.mu.Unlock()
		return nil, "already_open", nil
	}
	if _, inflight := pm.pending[symbol]; inflight {
		pm.mu.Unlock()
		return nil, "order_pending", nil
	}
	if len(pm.active)+len(pm.pending) >= pm.limits.MaxConcurrent {
		pm.mu.Unlock()
		return nil, "max_concurrent", nil
	}
	if pm.sectorCountLocked(sig.Sector) >= pm.limits.SectorCap {
		pm.mu.Unlock()
		return nil, "sector_cap", nil
	}
	pm.pending[symbol] = struct{}{}
	pm.mu.Unlock()

	// pending is held from here; every exit path below must release it.
	release := func() {
		pm.mu.Lock()
		delete(pm.pending, symbol)
		pm.mu.Unlock()
	}

	if !pm.regime.RegimeOK(ctx) {
		release()
		return nil, "market_regime", nil
	}

	shares, err := pm.sizePosition(sig.SpotPrice)
	if err != nil {
		release()
		return nil, "", fmt.Errorf("[%s] sizing failed for %s: %w", pm.account, symbol, err)
	}
	if shares < 1 {
		release()
		return nil, "spot_too_high", nil
	}

	fill, err := pm.broker.MarketBuy(symbol, shares)
	if err != nil {
		release()
		return nil, "", fmt.Errorf("[%s] buy rejected for %s: %w", pm.account, symbol, err)
	}

	pos := &Position{
		Symbol:     symbol,
		EntryTime:  fill.FilledAt,
		EntryPrice: fill.AvgPrice,
		Shares:     fill.Qty,
		Score:      sig.Score,
		RSI14:      sig.RSI14,
		Notional:   sig.Stats.NotionalTotal,
		OrderID:    fill.OrderID,
		State:      StateHolding,
	}

	dbID, err := pm.trades.LogOpen(&database.PaperTrade{
		Symbol:     symbol,
		EntryTime:  fill.FilledAt,
		EntryPrice: fill.AvgPrice,
		Shares:     fill.Qty,
		Score:      sig.Score,
		RSI14:      sig.RSI14,
		Notional:   sig.Stats.NotionalTotal,
		OrderID:    fill.OrderID,
	})
	if err != nil {
		// In-memory state is authoritative during the session; the
		// reconciler heals the missing row on next boot.
		log.Printf("⚠️  [%s] Trade open persistence failed for %s: %v", pm.account, symbol, err)
	}
	pos.DBID = dbID

	pm.mu.Lock()
	delete(pm.pending, symbol)
	pm.active[symbol] = pos
	pm.stats.opened++
	pm.mu.Unlock()

	if pm.watcher != nil {
		if err := pm.watcher.Watch(symbol); err != nil {
			log.Printf("⚠️  [%s] Stream watch failed for %s, REST safety net covers it: %v", pm.account, symbol, err)
		}
	}
	if pm.notifier != nil {
		pm.notifier.PositionOpened(pm.account, symbol, fill.Qty, fill.AvgPrice, sig.Score)
	}

	log.Printf("✅ [%s] Opened %s: %d shares @ %.2f (score %d)", pm.account, symbol, fill.Qty, fill.AvgPrice, sig.Score)
	return pos, "", nil
}

// ClosePosition sells an active position and completes its trade row. The
// closing set is the reentrancy guard: a second close for the same symbol
// returns immediately, and the guard is cleared on every path.
func (pm *PositionManager) ClosePosition(symbol, reason string) error {
	pm.mu.Lock()
	if _, busy := pm.closing[symbol]; busy {
		pm.mu.Unlock()
		return nil
	}
	pos, held := pm.active[symbol]
	if !held {
		delete(pm.pendingClose, symbol)
		pm.mu.Unlock()
		return nil
	}
	pm.closing[symbol] = struct{}{}
	pos.State = StateClosing
	pm.mu.Unlock()

	defer func() {
		pm.mu.Lock()
		delete(pm.closing, symbol)
		delete(pm.pendingClose, symbol)
		pm.mu.Unlock()
	}()

	fill, err := pm.broker.MarketSell(symbol, pos.Shares)
	if err != nil {
		pm.mu.Lock()
		pos.State = StateHolding
		pm.mu.Unlock()
		return fmt.Errorf("[%s] sell failed for %s: %w", pm.account, symbol, err)
	}

	pnl := (fill.AvgPrice - pos.EntryPrice) * float64(pos.Shares)
	pnlPct := 0.0
	if pos.EntryPrice > 0 {
		pnlPct = fill.AvgPrice/pos.EntryPrice - 1
	}

	if pos.DBID != 0 {
		if err := pm.trades.LogClose(pos.DBID, fill.FilledAt, fill.AvgPrice, pnl, pnlPct, reason); err != nil {
			log.Printf("⚠️  [%s] Trade close persistence failed for %s: %v", pm.account, symbol, err)
		}
	}
	if err := pm.signals.MarkSignalClosed(symbol); err != nil {
		log.Printf("⚠️  [%s] Signal close update failed for %s: %v", pm.account, symbol, err)
	}

	pm.mu.Lock()
	delete(pm.active, symbol)
	pm.stats.closed++
	pm.stats.pnl += pnl
	pm.mu.Unlock()

	if pm.watcher != nil {
		_ = pm.watcher.Unwatch(symbol)
	}
	if pm.notifier != nil {
		pm.notifier.PositionClosed(pm.account, symbol, reason, pnl, pnlPct)
	}

	log.Printf("💰 [%s] Closed %s (%s): pnl %.2f (%.2f%%)", pm.account, symbol, reason, pnl, pnlPct*100)
	return nil
}

// RequestClose schedules an asynchronous close once per symbol. The
// pendingClose set debounces rapid-fire stream ticks; ClosePosition's guard
// is the ultimate protection.
func (pm *PositionManager) RequestClose(symbol, reason string) {
	pm.mu.Lock()
	if _, dup := pm.pendingClose[symbol]; dup {
		pm.mu.Unlock()
		return
	}
	if _, held := pm.active[symbol]; !held {
		pm.mu.Unlock()
		return
	}
	pm.pendingClose[symbol] = struct{}{}
	pm.mu.Unlock()

	go func() {
		if err := pm.ClosePosition(symbol, reason); err != nil {
			log.Printf("❌ [%s] Close failed for %s: %v", pm.account, symbol, err)
		}
	}()
}

// OnPriceTick re-checks the hard stop for a symbol against a fresh mark.
func (pm *PositionManager) OnPriceTick(symbol string, price float64) {
	if price <= 0 {
		return
	}

	pm.mu.Lock()
	pos, held := pm.active[symbol]
	if !held || pos.EntryPrice <= 0 {
		pm.mu.Unlock()
		return
	}
	pnlPct := price/pos.EntryPrice - 1
	pm.mu.Unlock()

	if pnlPct <= pm.limits.HardStopPct {
		log.Printf("🛑 [%s] Hard stop %s: %.2f%% at %.2f", pm.account, symbol, pnlPct*100, price)
		pm.RequestClose(symbol, "hard_stop")
	}
}

// CloseAll closes every active position in parallel with the given reason.
func (pm *PositionManager) CloseAll(reason string) {
	symbols := pm.activeSymbols()
	if len(symbols) == 0 {
		return
	}
	log.Printf("🔔 [%s] Closing %d positions (%s)", pm.account, len(symbols), reason)

	var g errgroup.Group
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			return pm.ClosePosition(symbol, reason)
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("❌ [%s] CloseAll finished with error: %v", pm.account, err)
	}
}

// Positions returns a snapshot of the active positions.
func (pm *PositionManager) Positions() []Position {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]Position, 0, len(pm.active))
	for _, p := range pm.active {
		out = append(out, *p)
	}
	return out
}

// Holding reports whether the account currently holds symbol.
func (pm *PositionManager) Holding(symbol string) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	_, held := pm.active[symbol]
	return held
}

// ResetDaily clears the daily tally. Open positions are untouched.
func (pm *PositionManager) ResetDaily() {
	pm.mu.Lock()
	pm.stats = dailyStats{}
	pm.mu.Unlock()
}

// DailyStats returns today's opened/closed counts and realized pnl.
func (pm *PositionManager) DailyStats() (opened, closed int, pnl float64) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.stats.opened, pm.stats.closed, pm.stats.pnl
}

// sizePosition computes shares = floor(min(cap, equity*pct) / spot).
func (pm *PositionManager) sizePosition(spot float64) (int, error) {
	if spot <= 0 {
		return 0, fmt.Errorf("no spot price")
	}
	equity, err := pm.broker.AccountEquity()
	if err != nil {
		return 0, err
	}
	budget := math.Min(pm.limits.NotionalCap, equity*pm.limits.EquityPct)
	return int(budget / spot), nil
}

func (pm *PositionManager) sectorCountLocked(sector string) int {
	if sector == "" {
		return 0
	}
	ref := pm.ref.Current()
	count := 0
	for symbol := range pm.active {
		if ref.Sector(symbol) == sector {
			count++
		}
	}
	for symbol := range pm.pending {
		if ref.Sector(symbol) == sector {
			count++
		}
	}
	return count
}

func (pm *PositionManager) activeSymbols() []string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]string, 0, len(pm.active))
	for symbol := range pm.active {
		out = append(out, symbol)
	}
	return out
}
