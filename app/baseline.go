package app

import "log"

// BaselineSource loads the per-symbol historical baseline notionals.
// Implemented by database.Repository.
type BaselineSource interface {
	BaselineNotionals(lookbackDays int) (map[string]float64, error)
}

// BaselineProvider serves the per-symbol expected window notional: the mean
// bucket notional across all 30-minute rows of the most recent lookback
// trading days, loaded once at startup. Symbols without history get the
// fallback.
type BaselineProvider struct {
	baselines map[string]float64
	fallback  float64
}

// NewBaselineProvider loads baselines from src. A load failure is not fatal:
// every symbol falls back until the next boot.
func NewBaselineProvider(src BaselineSource, lookbackDays int, fallback float64) *BaselineProvider {
	baselines, err := src.BaselineNotionals(lookbackDays)
	if err != nil {
		log.Printf("⚠️  Baseline preload failed, using fallback $%.0f for all symbols: %v", fallback, err)
		baselines = make(map[string]float64)
	} else {
		log.Printf("📊 Loaded baselines for %d symbols (%d-day lookback)", len(baselines), lookbackDays)
	}
	return &BaselineProvider{baselines: baselines, fallback: fallback}
}

// Baseline returns the expected notional for a symbol.
func (p *BaselineProvider) Baseline(symbol string) float64 {
	if v, ok := p.baselines[symbol]; ok && v > 0 {
		return v
	}
	return p.fallback
}

// Known reports whether the symbol has real history behind its baseline.
func (p *BaselineProvider) Known(symbol string) bool {
	v, ok := p.baselines[symbol]
	return ok && v > 0
}
