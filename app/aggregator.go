package app

import (
	"sort"
	"sync"
	"time"
)

// windowEntry is one retained print inside a symbol's rolling window.
type windowEntry struct {
	ts       time.Time
	notional float64
	strike   float64
	size     int
	isCall   bool
	isSweep  bool
}

// symbolWindow holds one underlying's entries plus running sums so that
// Stats is cheap when nothing expired.
type symbolWindow struct {
	entries []windowEntry

	notional      float64
	callsNotional float64
	putsNotional  float64
	sweepNotional float64
	contracts     int
	strikes       map[float64]int
}

// TradeAggregator maintains per-underlying sliding-window statistics over
// the last window duration. AddTrade only appends; eviction of stale entries
// happens on Stats so the ingest path stays a few map lookups and adds.
type TradeAggregator struct {
	mu         sync.Mutex
	windows    map[string]*symbolWindow
	window     time.Duration
	maxEntries int

	dropped   int64
	malformed int64
}

// NewTradeAggregator creates an aggregator with the given window width and
// per-symbol entry cap.
func NewTradeAggregator(window time.Duration, maxEntries int) *TradeAggregator {
	return &TradeAggregator{
		windows:    make(map[string]*symbolWindow),
		window:     window,
		maxEntries: maxEntries,
	}
}

// AddTrade appends a print to its underlying's window and updates running
// sums. Malformed prints (non-positive price or size) are counted and
// dropped; the stream must never fail.
func (a *TradeAggregator) AddTrade(t OptionTrade) {
	if t.Price <= 0 || t.Size <= 0 {
		a.mu.Lock()
		a.malformed++
		a.mu.Unlock()
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	w := a.windows[t.Underlying]
	if w == nil {
		w = &symbolWindow{strikes: make(map[float64]int)}
		a.windows[t.Underlying] = w
	}

	// Soft cap: drop the oldest retained entry to bound memory under a
	// firehose burst. The detector stays correct over the retained sample.
	if a.maxEntries > 0 && len(w.entries) >= a.maxEntries {
		a.removeEntry(w, 0)
		a.dropped++
	}

	w.entries = append(w.entries, windowEntry{
		ts:       t.Timestamp,
		notional: t.Notional,
		strike:   t.Strike,
		size:     t.Size,
		isCall:   t.Right == 'C',
		isSweep:  t.IsSweep,
	})
	w.notional += t.Notional
	w.contracts += t.Size
	if t.Right == 'C' {
		w.callsNotional += t.Notional
	} else {
		w.putsNotional += t.Notional
	}
	if t.IsSweep {
		w.sweepNotional += t.Notional
	}
	w.strikes[t.Strike]++
}

// Stats evicts entries older than now-window and returns a consistent
// snapshot of what remains. The second return is false when the window is
// empty after eviction.
func (a *TradeAggregator) Stats(symbol string, now time.Time) (WindowStats, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	w := a.windows[symbol]
	if w == nil {
		return WindowStats{}, false
	}

	a.evict(w, now.Add(-a.window))
	if len(w.entries) == 0 {
		delete(a.windows, symbol)
		return WindowStats{}, false
	}

	stats := WindowStats{
		NotionalTotal:  w.notional,
		ContractsTotal: w.contracts,
		Prints:         len(w.entries),
		CallsNotional:  w.callsNotional,
		PutsNotional:   w.putsNotional,
		UniqueStrikes:  len(w.strikes),
	}
	if directional := w.callsNotional + w.putsNotional; directional > 0 {
		stats.CallPct = w.callsNotional / directional
	}
	if w.notional > 0 {
		stats.SweepPct = w.sweepNotional / w.notional
	}
	for _, e := range w.entries {
		if e.size > stats.MaxPrintSize {
			stats.MaxPrintSize = e.size
		}
	}
	stats.AvgContracts = float64(w.contracts) / float64(len(w.entries))
	return stats, true
}

// ActiveSymbols returns, sorted ascending, every symbol with at least one
// retained entry newer than now-window.
func (a *TradeAggregator) ActiveSymbols(now time.Time) []string {
	cutoff := now.Add(-a.window)

	a.mu.Lock()
	symbols := make([]string, 0, len(a.windows))
	for sym, w := range a.windows {
		if n := len(w.entries); n > 0 && w.entries[n-1].ts.After(cutoff) {
			symbols = append(symbols, sym)
		}
	}
	a.mu.Unlock()

	sort.Strings(symbols)
	return symbols
}

// Reset discards one symbol's window, used on daily rollover.
func (a *TradeAggregator) Reset(symbol string) {
	a.mu.Lock()
	delete(a.windows, symbol)
	a.mu.Unlock()
}

// ResetAll discards every window.
func (a *TradeAggregator) ResetAll() {
	a.mu.Lock()
	a.windows = make(map[string]*symbolWindow)
	a.mu.Unlock()
}

// Dropped returns how many prints were discarded by the per-symbol cap.
func (a *TradeAggregator) Dropped() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// CountMalformed records a print rejected before it reached AddTrade, so
// unparseable symbols land in the same malformed tally as bad prices.
func (a *TradeAggregator) CountMalformed() {
	a.mu.Lock()
	a.malformed++
	a.mu.Unlock()
}

// Malformed returns how many prints failed validation on ingest.
func (a *TradeAggregator) Malformed() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.malformed
}

// evict drops entries with ts < cutoff, adjusting the running sums.
// Insertion order is non-decreasing by ts, so stale entries form a prefix.
func (a *TradeAggregator) evict(w *symbolWindow, cutoff time.Time) {
	i := 0
	for i < len(w.entries) && w.entries[i].ts.Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	for j := 0; j < i; j++ {
		a.subtractEntry(w, w.entries[j])
	}
	w.entries = append(w.entries[:0], w.entries[i:]...)
}

func (a *TradeAggregator) removeEntry(w *symbolWindow, idx int) {
	a.subtractEntry(w, w.entries[idx])
	w.entries = append(w.entries[:idx], w.entries[idx+1:]...)
}

func (a *TradeAggregator) subtractEntry(w *symbolWindow, e windowEntry) {
	w.notional -= e.notional
	w.contracts -= e.size
	if e.isCall {
		w.callsNotional -= e.notional
	} else {
		w.putsNotional -= e.notional
	}
	if e.isSweep {
		w.sweepNotional -= e.notional
	}
	if w.strikes[e.strike]--; w.strikes[e.strike] <= 0 {
		delete(w.strikes, e.strike)
	}
}
