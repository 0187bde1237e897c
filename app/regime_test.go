package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"uoa-scanner/broker"
)

func regimeBars(closes ...float64) []broker.Bar {
	bars := make([]broker.Bar, len(closes))
	for i, c := range closes {
		bars[i] = broker.Bar{Close: c}
	}
	return bars
}

func TestBounceDayDetected(t *testing.T) {
	mb := broker.NewMockBroker()
	mb.Snapshots["SPY"] = &broker.Snapshot{LastPrice: 502, DailyOpen: 501, PrevClose: 500}
	// Two consecutive lower closes before today's green open.
	mb.Bars["SPY"] = regimeBars(510, 505, 500)

	m := NewRegimeMonitor(mb, nil, "SPY", time.UTC)
	m.EvaluateBounceDay(context.Background())

	if !m.BounceDay() {
		t.Fatal("expected bounce day")
	}
	if got := m.EffectiveRSIThreshold(); got != 60.0 {
		t.Errorf("RSI threshold = %v, want 60", got)
	}
}

func TestBounceDayNeedsTwoRedCloses(t *testing.T) {
	mb := broker.NewMockBroker()
	mb.Snapshots["SPY"] = &broker.Snapshot{LastPrice: 502, DailyOpen: 501, PrevClose: 500}
	// Yesterday closed higher than the day before: not a bounce setup.
	mb.Bars["SPY"] = regimeBars(510, 505, 507)

	m := NewRegimeMonitor(mb, nil, "SPY", time.UTC)
	m.EvaluateBounceDay(context.Background())

	if m.BounceDay() {
		t.Fatal("bounce day without two red closes")
	}
	if got := m.EffectiveRSIThreshold(); got != 50.0 {
		t.Errorf("RSI threshold = %v, want 50", got)
	}
}

func TestBounceDayNeedsGapUpOpen(t *testing.T) {
	mb := broker.NewMockBroker()
	mb.Snapshots["SPY"] = &broker.Snapshot{LastPrice: 499, DailyOpen: 500, PrevClose: 500}
	mb.Bars["SPY"] = regimeBars(510, 505, 500)

	m := NewRegimeMonitor(mb, nil, "SPY", time.UTC)
	m.EvaluateBounceDay(context.Background())

	if m.BounceDay() {
		t.Fatal("bounce day requires open strictly above previous close")
	}
}

func TestBounceDayIgnoresTodaysPartialBar(t *testing.T) {
	mb := broker.NewMockBroker()
	mb.Snapshots["SPY"] = &broker.Snapshot{LastPrice: 502, DailyOpen: 501, PrevClose: 500}

	// Started mid-session, the bars response ends with today's forming bar.
	// Its rising close must not mask the two completed red days.
	day := func(d int) time.Time { return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC) }
	mb.Bars["SPY"] = []broker.Bar{
		{Date: day(20), Close: 510},
		{Date: day(21), Close: 505},
		{Date: day(24), Close: 500},
		{Date: day(25), Close: 502},
	}

	m := NewRegimeMonitor(mb, nil, "SPY", time.UTC)
	m.now = func() time.Time { return time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC) }
	m.EvaluateBounceDay(context.Background())

	if !m.BounceDay() {
		t.Fatal("today's partial bar must not hide the bounce setup")
	}
}

func TestResetDailyClearsBounceFlag(t *testing.T) {
	mb := broker.NewMockBroker()
	mb.Snapshots["SPY"] = &broker.Snapshot{LastPrice: 502, DailyOpen: 501, PrevClose: 500}
	mb.Bars["SPY"] = regimeBars(510, 505, 500)

	m := NewRegimeMonitor(mb, nil, "SPY", time.UTC)
	m.EvaluateBounceDay(context.Background())
	if !m.BounceDay() {
		t.Fatal("expected bounce day")
	}

	// The rollover only clears state; re-evaluation waits for the next
	// open, when the new day's snapshot exists.
	m.ResetDaily(context.Background())
	if m.BounceDay() {
		t.Fatal("rollover must clear the bounce flag without re-evaluating")
	}
	if got := m.EffectiveRSIThreshold(); got != 50.0 {
		t.Errorf("RSI threshold after rollover = %v, want 50", got)
	}
}

func TestRegimeOKHealthyMarket(t *testing.T) {
	mb := broker.NewMockBroker()
	mb.Snapshots["SPY"] = &broker.Snapshot{LastPrice: 500, DailyOpen: 499, PrevClose: 498}

	m := NewRegimeMonitor(mb, nil, "SPY", time.UTC)
	if !m.RegimeOK(context.Background()) {
		t.Fatal("healthy market must allow entries")
	}
}

func TestRegimeBlocksOnDrawdown(t *testing.T) {
	mb := broker.NewMockBroker()
	// 1% down from the open.
	mb.Snapshots["SPY"] = &broker.Snapshot{LastPrice: 495, DailyOpen: 500, PrevClose: 501}

	m := NewRegimeMonitor(mb, nil, "SPY", time.UTC)
	if m.RegimeOK(context.Background()) {
		t.Fatal("1% drawdown must block entries")
	}
}

func TestRegimeFailsOpen(t *testing.T) {
	mb := broker.NewMockBroker()
	mb.SnapshotErr = errors.New("api down")

	m := NewRegimeMonitor(mb, nil, "SPY", time.UTC)
	if !m.RegimeOK(context.Background()) {
		t.Fatal("snapshot error must fail open")
	}

	mb2 := broker.NewMockBroker()
	mb2.Snapshots["SPY"] = &broker.Snapshot{LastPrice: 0, DailyOpen: 0}
	m2 := NewRegimeMonitor(mb2, nil, "SPY", time.UTC)
	if !m2.RegimeOK(context.Background()) {
		t.Fatal("zero prices must fail open")
	}
}

func TestRegimeResultCached(t *testing.T) {
	mb := broker.NewMockBroker()
	mb.Snapshots["SPY"] = &broker.Snapshot{LastPrice: 495, DailyOpen: 500}

	base := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)
	current := base
	m := NewRegimeMonitor(mb, nil, "SPY", time.UTC)
	m.now = func() time.Time { return current }

	if m.RegimeOK(context.Background()) {
		t.Fatal("expected weak regime")
	}

	// Price recovers, but the cached answer holds inside the TTL.
	mb.SetPrice("SPY", 505)
	current = base.Add(10 * time.Second)
	if m.RegimeOK(context.Background()) {
		t.Fatal("cached weak regime must hold inside TTL")
	}

	// Past the TTL the fresh snapshot wins.
	current = base.Add(31 * time.Second)
	if !m.RegimeOK(context.Background()) {
		t.Fatal("recovered market must allow entries after TTL")
	}
}
