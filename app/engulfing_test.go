package app

import (
	"errors"
	"testing"
	"time"

	"uoa-scanner/database"
)

type fakeEngulfingSource struct {
	rows      map[string]*database.EngulfingScore
	watchlist []string
	rowErr    error
	listErr   error

	lastSince time.Time
}

func (f *fakeEngulfingSource) RecentEngulfing(symbol string, since time.Time, timeframe, direction string) (*database.EngulfingScore, error) {
	f.lastSince = since
	if f.rowErr != nil {
		return nil, f.rowErr
	}
	return f.rows[symbol], nil
}

func (f *fakeEngulfingSource) DailyEngulfingWatchlist(since time.Time) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.watchlist, nil
}

func TestEngulfingCheckIntradayRow(t *testing.T) {
	src := &fakeEngulfingSource{
		rows: map[string]*database.EngulfingScore{
			"NET": {Symbol: "NET", Timeframe: "5min", Direction: "bullish", PatternStrength: "strong"},
		},
	}
	c := NewEngulfingChecker(src, 30*time.Minute)

	ok, strength := c.Check("NET")
	if !ok {
		t.Fatal("expected confirmation from 5min row")
	}
	if strength != "strong" {
		t.Errorf("strength = %q, want strong", strength)
	}
}

func TestEngulfingCheckWatchlistFallback(t *testing.T) {
	src := &fakeEngulfingSource{watchlist: []string{"AAPL"}}
	c := NewEngulfingChecker(src, 30*time.Minute)

	ok, strength := c.Check("AAPL")
	if !ok {
		t.Fatal("expected confirmation from daily watchlist")
	}
	if strength != "" {
		t.Errorf("watchlist confirmation carries no strength, got %q", strength)
	}

	if ok, _ := c.Check("TSLA"); ok {
		t.Fatal("no row and not on watchlist must not confirm")
	}
}

func TestEngulfingCheckDBErrorReadsAsNoPattern(t *testing.T) {
	src := &fakeEngulfingSource{rowErr: errors.New("db down"), watchlist: []string{"NET"}}
	c := NewEngulfingChecker(src, 30*time.Minute)

	if ok, _ := c.Check("NET"); ok {
		t.Fatal("lookup error must read as no pattern, even for watchlist symbols")
	}
}

func TestEngulfingLookbackWindow(t *testing.T) {
	src := &fakeEngulfingSource{}
	c := NewEngulfingChecker(src, 30*time.Minute)

	now := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Check("NET")
	if want := now.Add(-30 * time.Minute); !src.lastSince.Equal(want) {
		t.Errorf("since = %v, want %v", src.lastSince, want)
	}
}

func TestEngulfingWatchlistLoadFailureKeepsOld(t *testing.T) {
	src := &fakeEngulfingSource{watchlist: []string{"AAPL"}}
	c := NewEngulfingChecker(src, 30*time.Minute)

	src.listErr = errors.New("db down")
	c.RefreshWatchlist()

	if ok, _ := c.Check("AAPL"); !ok {
		t.Fatal("failed refresh must keep the previous watchlist")
	}
}
