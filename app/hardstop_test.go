package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHardStopOnTradeFansOut(t *testing.T) {
	fxA := newPMFixture(t)
	fxB := newPMFixture(t)
	openOne(t, fxA, "NET")
	openOne(t, fxB, "NET")

	monitor := NewHardStopMonitor(nil, fxA.pm, fxB.pm)

	fxA.broker.SetPrice("NET", 48.0)
	fxB.broker.SetPrice("NET", 48.0)
	monitor.OnTrade("NET", 48.0, time.Now())

	require.Eventually(t, func() bool {
		return !fxA.pm.Holding("NET") && !fxB.pm.Holding("NET")
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"hard_stop"}, fxA.trades.closedReasons())
	assert.Equal(t, []string{"hard_stop"}, fxB.trades.closedReasons())
}

func TestHardStopPollSkipsWatchedSymbols(t *testing.T) {
	fx := newPMFixture(t)
	openOne(t, fx, "NET")
	openOne(t, fx, "AAPL")

	// Both are past the stop per the broker's marks, but NET has a live
	// stream subscription so only AAPL's poll fires.
	net := fx.broker.Held["NET"]
	net.CurrentPrice = 48.0
	fx.broker.Held["NET"] = net
	aapl := fx.broker.Held["AAPL"]
	aapl.CurrentPrice = 48.0
	fx.broker.Held["AAPL"] = aapl

	watched := newFakeWatcher()
	require.NoError(t, watched.Watch("NET"))

	monitor := NewHardStopMonitor(watched, fx.pm)
	fx.broker.SetPrice("AAPL", 48.0)
	monitor.poll()

	require.Eventually(t, func() bool {
		return !fx.pm.Holding("AAPL")
	}, time.Second, 5*time.Millisecond)
	assert.True(t, fx.pm.Holding("NET"))
}

func TestHardStopMonitorStops(t *testing.T) {
	fx := newPMFixture(t)
	monitor := NewHardStopMonitor(nil, fx.pm)

	ctx, cancel := context.WithCancel(context.Background())
	monitor.Start(ctx)
	cancel()
}
