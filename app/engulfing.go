package app

import (
	"log"
	"sync"
	"time"

	"uoa-scanner/database"
)

// EngulfingSource is the engulfing-pattern slice of the repository.
type EngulfingSource interface {
	RecentEngulfing(symbol string, since time.Time, timeframe, direction string) (*database.EngulfingScore, error)
	DailyEngulfingWatchlist(since time.Time) ([]string, error)
}

// EngulfingChecker answers account B's confirmation question: did the
// symbol print a bullish 5-minute engulfing candle within the lookback, or
// is it on the daily engulfing watchlist. The checker never fails the
// calling flow; a DB error reads as "no pattern".
type EngulfingChecker struct {
	src      EngulfingSource
	lookback time.Duration

	mu        sync.RWMutex
	watchlist map[string]struct{}

	now func() time.Time
}

// NewEngulfingChecker creates a checker and preloads the daily watchlist:
// every symbol with a bullish 1D pattern detected in the last 20 hours.
func NewEngulfingChecker(src EngulfingSource, lookback time.Duration) *EngulfingChecker {
	c := &EngulfingChecker{
		src:       src,
		lookback:  lookback,
		watchlist: make(map[string]struct{}),
		now:       time.Now,
	}
	c.RefreshWatchlist()
	return c
}

// RefreshWatchlist reloads the daily 1D watchlist. Called at startup and on
// daily reset.
func (c *EngulfingChecker) RefreshWatchlist() {
	symbols, err := c.src.DailyEngulfingWatchlist(c.now().Add(-20 * time.Hour))
	if err != nil {
		log.Printf("⚠️  Engulfing watchlist load failed: %v", err)
		return
	}

	fresh := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		fresh[s] = struct{}{}
	}

	c.mu.Lock()
	c.watchlist = fresh
	c.mu.Unlock()
	log.Printf("🕯️  Engulfing watchlist: %d symbols", len(symbols))
}

// Check returns whether a bullish engulfing confirmation exists for the
// symbol and, when it came from a 5-minute row, its pattern strength.
func (c *EngulfingChecker) Check(symbol string) (bool, string) {
	row, err := c.src.RecentEngulfing(symbol, c.now().Add(-c.lookback), "5min", "bullish")
	if err != nil {
		log.Printf("⚠️  Engulfing lookup failed for %s: %v", symbol, err)
		return false, ""
	}
	if row != nil {
		return true, row.PatternStrength
	}

	c.mu.RLock()
	_, onWatchlist := c.watchlist[symbol]
	c.mu.RUnlock()
	if onWatchlist {
		return true, ""
	}
	return false, ""
}
