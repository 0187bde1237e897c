package app

import (
	"errors"
	"testing"
	"time"

	"uoa-scanner/config"
)

type fakeBaselineSource struct {
	baselines map[string]float64
	err       error
}

func (f *fakeBaselineSource) BaselineNotionals(lookbackDays int) (map[string]float64, error) {
	return f.baselines, f.err
}

func detectorConfig() config.DetectorConfig {
	return config.DetectorConfig{
		WindowSeconds:        60,
		ScanIntervalSeconds:  10,
		VolumeThreshold:      3.0,
		MinNotional:          10_000,
		BaselineFallback:     50_000,
		BaselineLookbackDays: 20,
		CooldownMinutes:      60,
		MaxWindowEntries:     10_000,
	}
}

func newTestDetector(t *testing.T, baselines map[string]float64) (*Detector, *TradeAggregator) {
	t.Helper()
	cfg := detectorConfig()
	agg := NewTradeAggregator(time.Duration(cfg.WindowSeconds)*time.Second, cfg.MaxWindowEntries)
	provider := NewBaselineProvider(&fakeBaselineSource{baselines: baselines}, cfg.BaselineLookbackDays, cfg.BaselineFallback)
	return NewDetector(agg, provider, cfg), agg
}

func TestDetectorBelowThresholdNoTrigger(t *testing.T) {
	det, agg := newTestDetector(t, map[string]float64{"AAPL": 40_000})
	now := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)

	// $50K against a $40K baseline is 1.25x, well under 3x.
	agg.AddTrade(optTrade("AAPL", now.Add(-5*time.Second), 5.0, 100, 'C', 250, false))

	if triggers := det.Scan(now); len(triggers) != 0 {
		t.Fatalf("got %d triggers, want 0", len(triggers))
	}
}

func TestDetectorTriggersAtThreshold(t *testing.T) {
	det, agg := newTestDetector(t, map[string]float64{"NET": 40_000})
	now := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)

	// $120K vs $40K baseline = 3.0x, exactly at threshold.
	agg.AddTrade(optTrade("NET", now.Add(-5*time.Second), 6.0, 200, 'C', 90, true))

	triggers := det.Scan(now)
	if len(triggers) != 1 {
		t.Fatalf("got %d triggers, want 1", len(triggers))
	}
	tr := triggers[0]
	if tr.Symbol != "NET" {
		t.Errorf("symbol = %s, want NET", tr.Symbol)
	}
	if tr.VolumeRatio != 3.0 {
		t.Errorf("ratio = %v, want 3.0", tr.VolumeRatio)
	}
	if tr.BaselineNotional != 40_000 {
		t.Errorf("baseline = %v, want 40000", tr.BaselineNotional)
	}
}

func TestDetectorUsesFallbackBaseline(t *testing.T) {
	det, agg := newTestDetector(t, map[string]float64{})
	now := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)

	// Unknown symbol gets the $50K fallback: $150K is exactly 3x.
	agg.AddTrade(optTrade("XYZ", now.Add(-5*time.Second), 7.5, 200, 'C', 40, false))

	triggers := det.Scan(now)
	if len(triggers) != 1 {
		t.Fatalf("got %d triggers, want 1", len(triggers))
	}
	if triggers[0].BaselineNotional != 50_000 {
		t.Errorf("baseline = %v, want fallback 50000", triggers[0].BaselineNotional)
	}
}

func TestDetectorBaselineLoadFailureFallsBack(t *testing.T) {
	cfg := detectorConfig()
	provider := NewBaselineProvider(&fakeBaselineSource{err: errors.New("db down")}, cfg.BaselineLookbackDays, cfg.BaselineFallback)
	if got := provider.Baseline("AAPL"); got != 50_000 {
		t.Errorf("baseline after load failure = %v, want fallback 50000", got)
	}
	if provider.Known("AAPL") {
		t.Error("no symbol should be known after a failed load")
	}
}

func TestDetectorSkipsBelowMinNotional(t *testing.T) {
	// Baseline $100 would make any print a huge ratio, but the window is
	// only $9,999, one dollar under the notional floor.
	det, agg := newTestDetector(t, map[string]float64{"PENNY": 100})
	now := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)

	agg.AddTrade(optTrade("PENNY", now.Add(-5*time.Second), 0.9999, 100, 'C', 5, false))

	if triggers := det.Scan(now); len(triggers) != 0 {
		t.Fatalf("got %d triggers, want 0", len(triggers))
	}
}

func TestDetectorCooldown(t *testing.T) {
	det, agg := newTestDetector(t, map[string]float64{"TSLA": 40_000})
	first := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)

	agg.AddTrade(optTrade("TSLA", first.Add(-5*time.Second), 10.0, 200, 'C', 400, true))
	if triggers := det.Scan(first); len(triggers) != 1 {
		t.Fatalf("first scan: got %d triggers, want 1", len(triggers))
	}

	// 59m59s later: still in cooldown.
	inCooldown := first.Add(59*time.Minute + 59*time.Second)
	agg.AddTrade(optTrade("TSLA", inCooldown.Add(-5*time.Second), 10.0, 200, 'C', 400, true))
	if triggers := det.Scan(inCooldown); len(triggers) != 0 {
		t.Fatalf("in cooldown: got %d triggers, want 0", len(triggers))
	}

	// Exactly 60m after the first trigger: admitted again.
	after := first.Add(60 * time.Minute)
	agg.AddTrade(optTrade("TSLA", after.Add(-5*time.Second), 10.0, 200, 'C', 400, true))
	if triggers := det.Scan(after); len(triggers) != 1 {
		t.Fatalf("after cooldown: got %d triggers, want 1", len(triggers))
	}
}

func TestDetectorResetDailyClearsCooldown(t *testing.T) {
	det, agg := newTestDetector(t, map[string]float64{"NVDA": 40_000})
	now := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)

	agg.AddTrade(optTrade("NVDA", now.Add(-5*time.Second), 10.0, 200, 'C', 900, true))
	if triggers := det.Scan(now); len(triggers) != 1 {
		t.Fatalf("got %d triggers, want 1", len(triggers))
	}

	det.ResetDaily()

	later := now.Add(time.Minute)
	agg.AddTrade(optTrade("NVDA", later.Add(-5*time.Second), 10.0, 200, 'C', 900, true))
	if triggers := det.Scan(later); len(triggers) != 1 {
		t.Fatalf("after reset: got %d triggers, want 1", len(triggers))
	}
}

func TestDetectorMultipleSymbolsSorted(t *testing.T) {
	det, agg := newTestDetector(t, map[string]float64{"AAPL": 10_000, "ZM": 10_000})
	now := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)

	agg.AddTrade(optTrade("ZM", now.Add(-5*time.Second), 5.0, 100, 'C', 70, false))
	agg.AddTrade(optTrade("AAPL", now.Add(-5*time.Second), 5.0, 100, 'C', 250, false))

	triggers := det.Scan(now)
	if len(triggers) != 2 {
		t.Fatalf("got %d triggers, want 2", len(triggers))
	}
	if triggers[0].Symbol != "AAPL" || triggers[1].Symbol != "ZM" {
		t.Errorf("order = [%s, %s], want [AAPL, ZM]", triggers[0].Symbol, triggers[1].Symbol)
	}
}
