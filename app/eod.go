package app

import (
	"context"
	"log"
	"sync"
	"time"
)

const eodCheckInterval = 5 * time.Second

// EODCloser liquidates every open position across both accounts at the
// configured wall-clock time. The trigger condition has no upper bound: a
// process started after the exit time still closes everything it holds
// until the daily flag is set.
type EODCloser struct {
	managers []*PositionManager
	hour     int
	minute   int
	loc      *time.Location

	mu          sync.Mutex
	closedToday bool

	now func() time.Time
}

// NewEODCloser creates a closer firing at hour:minute in loc.
func NewEODCloser(hour, minute int, loc *time.Location, managers ...*PositionManager) *EODCloser {
	return &EODCloser{
		managers: managers,
		hour:     hour,
		minute:   minute,
		loc:      loc,
		now:      time.Now,
	}
}

// Start runs the periodic check until ctx is canceled.
func (e *EODCloser) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(eodCheckInterval)
		defer ticker.Stop()

		log.Printf("⏰ EOD closer armed for %02d:%02d", e.hour, e.minute)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Check(e.now())
			}
		}
	}()
}

// Check fires the liquidation when now has reached the exit time and it
// has not fired yet today.
func (e *EODCloser) Check(now time.Time) {
	local := now.In(e.loc)
	exit := time.Date(local.Year(), local.Month(), local.Day(), e.hour, e.minute, 0, 0, e.loc)
	if local.Before(exit) {
		return
	}

	e.mu.Lock()
	if e.closedToday {
		e.mu.Unlock()
		return
	}
	e.closedToday = true
	e.mu.Unlock()

	log.Printf("🔔 EOD close at %s", local.Format("15:04:05"))
	for _, pm := range e.managers {
		pm.CloseAll("eod")
	}
}

// ResetDaily re-arms the closer for the next session.
func (e *EODCloser) ResetDaily() {
	e.mu.Lock()
	e.closedToday = false
	e.mu.Unlock()
}

// ClosedToday reports whether today's liquidation already ran.
func (e *EODCloser) ClosedToday() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closedToday
}
