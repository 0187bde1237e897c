package app

import (
	"context"
	"log"
	"time"
)

// SyncOnStartup is the three-way merge between persisted open trades, the
// broker's reported positions and the empty in-memory state:
//
//	DB ∩ Broker  restore the position with its stored metadata
//	DB \ Broker  the broker lost it across the crash: mark the row closed
//	             with reason crash_recovery at the last known price
//	Broker \ DB  an orphan fill nothing tracks: liquidate it
//
// Running the sync twice in a row is a no-op: restored positions are in
// both sets, healed rows leave the DB set, liquidated orphans leave the
// broker set.
func (pm *PositionManager) SyncOnStartup(ctx context.Context) error {
	openTrades, err := pm.trades.OpenTrades()
	if err != nil {
		return err
	}
	brokerPositions, err := pm.broker.Positions()
	if err != nil {
		return err
	}

	held := make(map[string]float64, len(brokerPositions))
	for _, p := range brokerPositions {
		held[p.Symbol] = p.CurrentPrice
	}

	tracked := make(map[string]struct{}, len(openTrades))
	restored, healed := 0, 0
	for _, row := range openTrades {
		tracked[row.Symbol] = struct{}{}

		if _, ok := held[row.Symbol]; ok {
			pm.mu.Lock()
			pm.active[row.Symbol] = &Position{
				Symbol:     row.Symbol,
				EntryTime:  row.EntryTime,
				EntryPrice: row.EntryPrice,
				Shares:     row.Shares,
				Score:      row.Score,
				RSI14:      row.RSI14,
				Notional:   row.Notional,
				OrderID:    row.OrderID,
				DBID:       row.ID,
				State:      StateHolding,
			}
			pm.mu.Unlock()

			if pm.watcher != nil {
				_ = pm.watcher.Watch(row.Symbol)
			}
			restored++
			continue
		}

		exitPrice := pm.lastKnownPrice(ctx, row.Symbol, row.EntryPrice)
		pnl := (exitPrice - row.EntryPrice) * float64(row.Shares)
		pnlPct := 0.0
		if row.EntryPrice > 0 {
			pnlPct = exitPrice/row.EntryPrice - 1
		}
		if err := pm.trades.LogClose(row.ID, pm.now(), exitPrice, pnl, pnlPct, "crash_recovery"); err != nil {
			log.Printf("⚠️  [%s] Crash-recovery close failed for %s: %v", pm.account, row.Symbol, err)
			continue
		}
		_ = pm.signals.MarkSignalClosed(row.Symbol)
		healed++
	}

	orphans := 0
	for symbol := range held {
		if _, ok := tracked[symbol]; ok {
			continue
		}
		log.Printf("🧹 [%s] Orphan broker position %s, liquidating (orphan_cleanup)", pm.account, symbol)
		if _, err := pm.broker.Liquidate(symbol); err != nil {
			log.Printf("❌ [%s] Orphan liquidation failed for %s: %v", pm.account, symbol, err)
			continue
		}
		orphans++
	}

	log.Printf("🔄 [%s] Startup sync: %d restored, %d crash-recovered, %d orphans cleaned",
		pm.account, restored, healed, orphans)
	return nil
}

// lastKnownPrice fetches a fresh mark for a crash-recovered symbol, falling
// back to the entry price so the healed row never carries a zero exit.
func (pm *PositionManager) lastKnownPrice(ctx context.Context, symbol string, entry float64) float64 {
	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	snap, err := pm.broker.GetSnapshot(sctx, symbol)
	if err == nil && snap.LastPrice > 0 {
		return snap.LastPrice
	}
	return entry
}
