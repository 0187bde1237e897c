package app

import (
	"context"
	"log"
	"time"
)

const hardStopPollInterval = 30 * time.Second

// WatchChecker reports whether a live stream subscription covers a symbol,
// so the REST poll skips what the stream already watches. Implemented by
// broker.EquityStream.
type WatchChecker interface {
	IsWatched(symbol string) bool
}

// HardStopMonitor enforces the hard stop on both accounts. The real-time
// path is the equity trade stream feeding OnTrade; the REST poll is the
// safety net for symbols without a live subscription or when the stream is
// down.
type HardStopMonitor struct {
	managers []*PositionManager
	watched  WatchChecker
}

// NewHardStopMonitor creates a monitor over the given managers. watched may
// be nil, in which case the poll covers every open symbol.
func NewHardStopMonitor(watched WatchChecker, managers ...*PositionManager) *HardStopMonitor {
	return &HardStopMonitor{managers: managers, watched: watched}
}

// OnTrade is the stream handler: fan each print out to every account that
// might hold the symbol.
func (m *HardStopMonitor) OnTrade(symbol string, price float64, _ time.Time) {
	for _, pm := range m.managers {
		pm.OnPriceTick(symbol, price)
	}
}

// Start runs the REST safety net until ctx is canceled.
func (m *HardStopMonitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(hardStopPollInterval)
		defer ticker.Stop()

		log.Println("🛡️  Hard-stop monitor started")
		for {
			select {
			case <-ctx.Done():
				log.Println("🛑 Hard-stop monitor stopped")
				return
			case <-ticker.C:
				m.poll()
			}
		}
	}()
}

// poll re-checks every open position against the broker's reported mark,
// skipping symbols the stream already covers.
func (m *HardStopMonitor) poll() {
	for _, pm := range m.managers {
		open := pm.Positions()
		if len(open) == 0 {
			continue
		}

		brokerPositions, err := pm.broker.Positions()
		if err != nil {
			log.Printf("⚠️  [%s] Hard-stop poll failed: %v", pm.Account(), err)
			continue
		}
		marks := make(map[string]float64, len(brokerPositions))
		for _, p := range brokerPositions {
			marks[p.Symbol] = p.CurrentPrice
		}

		for _, pos := range open {
			if m.watched != nil && m.watched.IsWatched(pos.Symbol) {
				continue
			}
			if mark, ok := marks[pos.Symbol]; ok {
				pm.OnPriceTick(pos.Symbol, mark)
			}
		}
	}
}
