package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"uoa-scanner/broker"
	"uoa-scanner/database"
)

type fakeTASource struct {
	daily    map[string]database.TADailyClose
	intraday map[string]database.TAIntraday5m
	dailyErr error
}

func (f *fakeTASource) LatestDailyTA() (map[string]database.TADailyClose, error) {
	if f.dailyErr != nil {
		return nil, f.dailyErr
	}
	return f.daily, nil
}

func (f *fakeTASource) LatestIntradayTA(since time.Time) (map[string]database.TAIntraday5m, error) {
	return f.intraday, nil
}

func genFixture(t *testing.T, taSrc *fakeTASource, mb *broker.MockBroker) *SignalGenerator {
	t.Helper()
	ta := NewTACache(taSrc)
	ta.RefreshIntraday(time.Now())
	return NewSignalGenerator(mb, ta, testRefData(), time.UTC)
}

func genTrigger(symbol string) Trigger {
	return Trigger{
		Symbol: symbol,
		At:     time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC),
		Stats: WindowStats{
			NotionalTotal:  250_000,
			ContractsTotal: 500,
			CallPct:        0.90,
			SweepPct:       0.60,
			UniqueStrikes:  2,
		},
		VolumeRatio: 12,
	}
}

func TestGenerateMidSessionPrefersIntradayTA(t *testing.T) {
	src := &fakeTASource{
		daily: map[string]database.TADailyClose{
			"NET": {Symbol: "NET", RSI14: 40, SMA20: 90, SMA50: 85, ClosePrice: 99},
		},
		intraday: map[string]database.TAIntraday5m{
			"NET": {Symbol: "NET", RSI14: 44, SMA20: 92},
		},
	}
	mb := broker.NewMockBroker()
	mb.SetPrice("NET", 100.0)

	g := genFixture(t, src, mb)
	g.now = func() time.Time { return time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC) }

	sig := g.Generate(context.Background(), genTrigger("NET"))

	if sig.Score != 15 {
		t.Errorf("score = %d, want 15", sig.Score)
	}
	if sig.RSI14 == nil || *sig.RSI14 != 44 {
		t.Errorf("rsi = %v, want intraday 44", sig.RSI14)
	}
	if sig.SMA20 == nil || *sig.SMA20 != 92 {
		t.Errorf("sma20 = %v, want intraday 92", sig.SMA20)
	}
	if sig.SMA50 == nil || *sig.SMA50 != 85 {
		t.Errorf("sma50 = %v, want daily 85", sig.SMA50)
	}
	if sig.SpotPrice != 100.0 {
		t.Errorf("spot = %v, want 100", sig.SpotPrice)
	}
	if sig.Trend != "up" {
		t.Errorf("trend = %s, want up", sig.Trend)
	}
	if sig.Sector != "Technology" {
		t.Errorf("sector = %s, want Technology", sig.Sector)
	}
}

func TestGenerateEarlySessionUsesDailyTA(t *testing.T) {
	src := &fakeTASource{
		daily: map[string]database.TADailyClose{
			"NET": {Symbol: "NET", RSI14: 40, SMA20: 90, SMA50: 85, ClosePrice: 99},
		},
		intraday: map[string]database.TAIntraday5m{
			"NET": {Symbol: "NET", RSI14: 70, SMA20: 120},
		},
	}
	mb := broker.NewMockBroker()
	mb.SetPrice("NET", 100.0)

	g := genFixture(t, src, mb)
	g.now = func() time.Time { return time.Date(2026, 8, 25, 9, 32, 0, 0, time.UTC) }

	sig := g.Generate(context.Background(), genTrigger("NET"))

	if sig.RSI14 == nil || *sig.RSI14 != 40 {
		t.Errorf("rsi = %v, want daily 40 before 09:35", sig.RSI14)
	}
	if sig.SMA20 == nil || *sig.SMA20 != 90 {
		t.Errorf("sma20 = %v, want daily 90", sig.SMA20)
	}
}

func TestGenerateSpotFallsBackToLastClose(t *testing.T) {
	src := &fakeTASource{
		daily: map[string]database.TADailyClose{
			"NET": {Symbol: "NET", RSI14: 40, SMA20: 90, SMA50: 85, ClosePrice: 99},
		},
	}
	mb := broker.NewMockBroker()
	mb.SnapshotErr = errors.New("api down")

	g := genFixture(t, src, mb)
	sig := g.Generate(context.Background(), genTrigger("NET"))

	if sig.SpotPrice != 99 {
		t.Errorf("spot = %v, want last close 99", sig.SpotPrice)
	}
}

func TestGenerateBarsFallbackComputesTA(t *testing.T) {
	mb := broker.NewMockBroker()
	mb.SetPrice("XYZ", 60.0)
	bars := make([]broker.Bar, 60)
	for i := range bars {
		bars[i] = broker.Bar{Close: 50 + float64(i)*0.1}
	}
	mb.Bars["XYZ"] = bars

	g := genFixture(t, &fakeTASource{}, mb)
	sig := g.Generate(context.Background(), genTrigger("XYZ"))

	if sig.RSI14 == nil || sig.SMA20 == nil || sig.SMA50 == nil {
		t.Fatal("bars fallback must compute all three indicators")
	}
	if sig.LastClose != bars[len(bars)-1].Close {
		t.Errorf("last close = %v, want %v", sig.LastClose, bars[len(bars)-1].Close)
	}
}

func TestGenerateMissingTAStillEmits(t *testing.T) {
	mb := broker.NewMockBroker()
	mb.SetPrice("XYZ", 60.0)

	g := genFixture(t, &fakeTASource{}, mb)
	sig := g.Generate(context.Background(), genTrigger("XYZ"))

	if sig == nil {
		t.Fatal("signal must always be emitted")
	}
	if sig.RSI14 != nil {
		t.Error("no TA anywhere: rsi must stay nil for the filter chain")
	}
	if sig.Trend != "flat" {
		t.Errorf("trend = %s, want flat without TA", sig.Trend)
	}
}
