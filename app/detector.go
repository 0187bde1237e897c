package app

import (
	"log"
	"time"

	"uoa-scanner/config"
	"uoa-scanner/helpers"
)

// Detector compares each active symbol's rolling window notional against
// its baseline and emits a Trigger when the ratio clears the threshold and
// the symbol is out of cooldown.
type Detector struct {
	agg       *TradeAggregator
	baselines *BaselineProvider
	cfg       config.DetectorConfig

	lastTrigger map[string]time.Time
}

// NewDetector creates a detector over agg and baselines.
func NewDetector(agg *TradeAggregator, baselines *BaselineProvider, cfg config.DetectorConfig) *Detector {
	return &Detector{
		agg:         agg,
		baselines:   baselines,
		cfg:         cfg,
		lastTrigger: make(map[string]time.Time),
	}
}

// Scan walks the active symbols in ascending order and returns the triggers
// fired at now. The detector never errors: a missing baseline means the
// fallback, an empty window means skip.
func (d *Detector) Scan(now time.Time) []Trigger {
	cooldown := time.Duration(d.cfg.CooldownMinutes) * time.Minute

	var triggers []Trigger
	for _, symbol := range d.agg.ActiveSymbols(now) {
		stats, ok := d.agg.Stats(symbol, now)
		if !ok || stats.NotionalTotal < d.cfg.MinNotional {
			continue
		}

		baseline := d.baselines.Baseline(symbol)
		ratio := stats.NotionalTotal / baseline
		if ratio < d.cfg.VolumeThreshold {
			continue
		}

		if last, ok := d.lastTrigger[symbol]; ok && now.Sub(last) < cooldown {
			continue
		}
		d.lastTrigger[symbol] = now

		log.Printf("🚨 UOA %s: %s vs baseline %s (%.1fx), %d prints, %d contracts",
			symbol, helpers.FormatUSD(stats.NotionalTotal), helpers.FormatUSD(baseline), ratio,
			stats.Prints, stats.ContractsTotal)
		triggers = append(triggers, Trigger{
			Symbol:           symbol,
			At:               now,
			Stats:            stats,
			VolumeRatio:      ratio,
			BaselineNotional: baseline,
		})
	}
	return triggers
}

// ResetDaily clears the cooldown ledger at start of day.
func (d *Detector) ResetDaily() {
	d.lastTrigger = make(map[string]time.Time)
}
