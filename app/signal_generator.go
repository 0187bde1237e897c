package app

import (
	"context"
	"log"
	"sync"
	"time"

	"uoa-scanner/database"
)

const (
	spotTimeout = 2 * time.Second
	taTimeout   = 3 * time.Second
	taBarsDays  = 120
)

// intradayTACutoffMinutes: before 09:35 local the 5-minute TA job has not
// produced a stable row yet, so the daily-close cache is authoritative.
var intradayCutoff = struct{ hour, minute int }{9, 35}

// TASource is the technical-analysis slice of the repository.
type TASource interface {
	LatestDailyTA() (map[string]database.TADailyClose, error)
	LatestIntradayTA(since time.Time) (map[string]database.TAIntraday5m, error)
}

// TACache holds the preloaded daily TA rows and the periodically refreshed
// intraday rows.
type TACache struct {
	src TASource

	mu       sync.RWMutex
	daily    map[string]database.TADailyClose
	intraday map[string]database.TAIntraday5m
}

// NewTACache preloads the daily rows. A failed preload leaves the cache
// empty; signals then lean on the bars fallback.
func NewTACache(src TASource) *TACache {
	c := &TACache{src: src, intraday: make(map[string]database.TAIntraday5m)}
	daily, err := src.LatestDailyTA()
	if err != nil {
		log.Printf("⚠️  Daily TA preload failed: %v", err)
		daily = make(map[string]database.TADailyClose)
	} else {
		log.Printf("📊 Daily TA cache: %d symbols", len(daily))
	}
	c.daily = daily
	return c
}

// RefreshIntraday reloads the 5-minute TA snapshot, keeping rows from the
// last 15 minutes.
func (c *TACache) RefreshIntraday(now time.Time) {
	rows, err := c.src.LatestIntradayTA(now.Add(-15 * time.Minute))
	if err != nil {
		log.Printf("⚠️  Intraday TA refresh failed: %v", err)
		return
	}
	c.mu.Lock()
	c.intraday = rows
	c.mu.Unlock()
}

// Daily returns the daily TA row for a symbol.
func (c *TACache) Daily(symbol string) (database.TADailyClose, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	row, ok := c.daily[symbol]
	return row, ok
}

// Intraday returns the freshest 5-minute TA row for a symbol.
func (c *TACache) Intraday(symbol string) (database.TAIntraday5m, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	row, ok := c.intraday[symbol]
	return row, ok
}

// SignalGenerator enriches a scored trigger into a Signal: spot price from
// the broker snapshot, TA from the caches (bars REST as last resort), GEX
// and sector as metadata. Every lookup is best-effort with its own timeout;
// a signal with missing TA is still emitted and left for the filter chain
// to reject.
type SignalGenerator struct {
	md  MarketData
	ta  *TACache
	ref *RefDataHandle
	loc *time.Location

	now func() time.Time
}

// NewSignalGenerator creates a generator.
func NewSignalGenerator(md MarketData, ta *TACache, ref *RefDataHandle, loc *time.Location) *SignalGenerator {
	return &SignalGenerator{md: md, ta: ta, ref: ref, loc: loc, now: time.Now}
}

// Generate builds the Signal for a trigger.
func (g *SignalGenerator) Generate(ctx context.Context, trigger Trigger) *Signal {
	score, components := ScoreTrigger(&trigger)
	ref := g.ref.Current()
	sig := &Signal{
		Trigger:    trigger,
		Score:      score,
		Components: components,
		Sector:     ref.Sector(trigger.Symbol),
		Metadata:   make(map[string]interface{}),
	}

	g.attachTA(ctx, sig)
	g.attachSpot(ctx, sig)
	g.attachTrend(sig)

	if gex, ok := ref.Gex(trigger.Symbol); ok {
		sig.Metadata["gex"] = map[string]float64{
			"net_gex":    gex.NetGex,
			"gamma_flip": gex.GammaFlip,
		}
	}
	return sig
}

// attachSpot fetches the last trade price with a short timeout, falling back
// to the TA cache's last close.
func (g *SignalGenerator) attachSpot(ctx context.Context, sig *Signal) {
	sctx, cancel := context.WithTimeout(ctx, spotTimeout)
	defer cancel()

	snap, err := g.md.GetSnapshot(sctx, sig.Symbol)
	if err == nil && snap.LastPrice > 0 {
		sig.SpotPrice = snap.LastPrice
		return
	}
	if err != nil {
		log.Printf("⚠️  Spot lookup failed for %s, falling back to last close: %v", sig.Symbol, err)
	}
	sig.SpotPrice = sig.LastClose
}

// attachTA fills rsi_14, sma_20, sma_50 and last_close. Before 09:35 local
// the daily cache is used directly; after that the intraday cache is
// preferred, with the daily row supplying sma_50 and last_close. If neither
// cache has the symbol, a bars fetch computes the indicators.
func (g *SignalGenerator) attachTA(ctx context.Context, sig *Signal) {
	now := g.now().In(g.loc)
	preferIntraday := now.Hour() > intradayCutoff.hour ||
		(now.Hour() == intradayCutoff.hour && now.Minute() >= intradayCutoff.minute)

	daily, hasDaily := g.ta.Daily(sig.Symbol)
	if hasDaily {
		sig.LastClose = daily.ClosePrice
	}

	if preferIntraday {
		if row, ok := g.ta.Intraday(sig.Symbol); ok {
			sig.RSI14 = ptr(row.RSI14)
			sig.SMA20 = ptr(row.SMA20)
			if hasDaily {
				sig.SMA50 = ptr(daily.SMA50)
			}
			return
		}
	}
	if hasDaily {
		sig.RSI14 = ptr(daily.RSI14)
		sig.SMA20 = ptr(daily.SMA20)
		sig.SMA50 = ptr(daily.SMA50)
		return
	}

	g.fetchTAFromBars(ctx, sig)
}

// fetchTAFromBars is the last-resort path: pull 120 daily bars and compute
// the indicators directly.
func (g *SignalGenerator) fetchTAFromBars(ctx context.Context, sig *Signal) {
	bctx, cancel := context.WithTimeout(ctx, taTimeout)
	defer cancel()

	bars, err := g.md.DailyBars(bctx, []string{sig.Symbol}, taBarsDays)
	if err != nil {
		log.Printf("⚠️  TA bars fetch failed for %s, signal carries null TA: %v", sig.Symbol, err)
		return
	}
	daily := bars[sig.Symbol]
	if len(daily) < 51 {
		return
	}

	closes := make([]float64, len(daily))
	for i, b := range daily {
		closes[i] = b.Close
	}

	sig.RSI14 = ptr(RSI(closes, 14))
	sig.SMA20 = ptr(SMA(closes, 20))
	sig.SMA50 = ptr(SMA(closes, 50))
	sig.LastClose = closes[len(closes)-1]
}

func (g *SignalGenerator) attachTrend(sig *Signal) {
	switch {
	case sig.SMA20 == nil || sig.SMA50 == nil || sig.SpotPrice <= 0:
		sig.Trend = "flat"
	case sig.SpotPrice > *sig.SMA20 && *sig.SMA20 > *sig.SMA50:
		sig.Trend = "up"
	case sig.SpotPrice < *sig.SMA20:
		sig.Trend = "down"
	default:
		sig.Trend = "flat"
	}
}

func ptr(v float64) *float64 { return &v }
