package app

import (
	"context"
	"log"
	"sync"
	"time"

	"uoa-scanner/broker"
	"uoa-scanner/cache"
)

const (
	regimeCacheTTL  = 30 * time.Second
	regimeDrawdown  = -0.005 // intraday return from open that blocks entries
	rsiThresholdHot = 60.0   // bounce day
	rsiThreshold    = 50.0
)

// MarketData is the slice of the broker surface the regime monitor needs.
type MarketData interface {
	GetSnapshot(ctx context.Context, symbol string) (*broker.Snapshot, error)
	DailyBars(ctx context.Context, symbols []string, days int) (map[string][]broker.Bar, error)
}

// RegimeMonitor answers two questions about the benchmark: is today a
// bounce day (relaxing the RSI filter), and is the market currently weak
// enough to block new entries. Both checks fail open so a market-data
// outage never freezes the pipeline.
type RegimeMonitor struct {
	md        MarketData
	redis     *cache.RedisClient
	benchmark string
	loc       *time.Location

	mu        sync.Mutex
	bounceDay bool
	regimeOK  bool
	checkedAt time.Time

	now func() time.Time
}

// NewRegimeMonitor creates a monitor on the given benchmark symbol. redis
// may be nil.
func NewRegimeMonitor(md MarketData, redis *cache.RedisClient, benchmark string, loc *time.Location) *RegimeMonitor {
	return &RegimeMonitor{
		md:        md,
		redis:     redis,
		benchmark: benchmark,
		loc:       loc,
		regimeOK:  true,
		now:       time.Now,
	}
}

// EvaluateBounceDay runs the after-open check: the benchmark opened
// strictly above yesterday's close after two consecutive lower closes. The
// result is cached until the next daily reset.
func (m *RegimeMonitor) EvaluateBounceDay(ctx context.Context) {
	bounce := m.computeBounceDay(ctx)

	m.mu.Lock()
	m.bounceDay = bounce
	m.mu.Unlock()

	if bounce {
		log.Printf("📈 Bounce day detected on %s, RSI threshold relaxed to %.0f", m.benchmark, rsiThresholdHot)
	}
}

func (m *RegimeMonitor) computeBounceDay(ctx context.Context) bool {
	snap, err := m.md.GetSnapshot(ctx, m.benchmark)
	if err != nil || snap.DailyOpen <= 0 || snap.PrevClose <= 0 {
		return false
	}
	if snap.DailyOpen <= snap.PrevClose {
		return false
	}

	bars, err := m.md.DailyBars(ctx, []string{m.benchmark}, 10)
	if err != nil {
		return false
	}

	// Intraday the bars response already carries today's forming bar; the
	// red-close test only looks at completed days.
	today := m.now().In(m.loc)
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, m.loc)
	daily := make([]broker.Bar, 0, len(bars[m.benchmark]))
	for _, b := range bars[m.benchmark] {
		if b.Date.Before(start) {
			daily = append(daily, b)
		}
	}
	if len(daily) < 3 {
		return false
	}

	// Two consecutive red closes before today's green open.
	n := len(daily)
	return daily[n-1].Close < daily[n-2].Close && daily[n-2].Close < daily[n-3].Close
}

// BounceDay reports the cached start-of-day flag.
func (m *RegimeMonitor) BounceDay() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bounceDay
}

// EffectiveRSIThreshold is 60 on a bounce day, 50 otherwise.
func (m *RegimeMonitor) EffectiveRSIThreshold() float64 {
	if m.BounceDay() {
		return rsiThresholdHot
	}
	return rsiThreshold
}

// RegimeOK reports whether the market is healthy enough for new entries:
// the benchmark's intraday return from today's open above -0.5%. The answer
// is cached for 30 seconds; snapshot errors and stale/zero prices fail open.
func (m *RegimeMonitor) RegimeOK(ctx context.Context) bool {
	now := m.now()

	m.mu.Lock()
	if now.Sub(m.checkedAt) < regimeCacheTTL {
		ok := m.regimeOK
		m.mu.Unlock()
		return ok
	}
	m.mu.Unlock()

	ok := m.checkRegime(ctx)

	m.mu.Lock()
	m.regimeOK = ok
	m.checkedAt = now
	m.mu.Unlock()

	if m.redis != nil {
		_ = m.redis.Set(ctx, "regime:ok", ok, regimeCacheTTL)
	}
	return ok
}

func (m *RegimeMonitor) checkRegime(ctx context.Context) bool {
	snap, err := m.md.GetSnapshot(ctx, m.benchmark)
	if err != nil {
		log.Printf("⚠️  Regime check failed for %s, allowing entries: %v", m.benchmark, err)
		return true
	}
	if snap.DailyOpen <= 0 || snap.LastPrice <= 0 {
		return true
	}

	intradayReturn := snap.LastPrice/snap.DailyOpen - 1
	if intradayReturn <= regimeDrawdown {
		log.Printf("🛑 Weak regime: %s %.2f%% from open", m.benchmark, intradayReturn*100)
		return false
	}
	return true
}

// ResetDaily clears the cached state at the date rollover. The bounce flag
// is re-evaluated separately after the next open, once today's DailyOpen
// exists and the daily bars still end at yesterday's close.
func (m *RegimeMonitor) ResetDaily(ctx context.Context) {
	m.mu.Lock()
	m.bounceDay = false
	m.checkedAt = time.Time{}
	m.regimeOK = true
	m.mu.Unlock()
}
