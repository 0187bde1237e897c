package app

import (
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"uoa-scanner/database"
)

// excludedETFs is the hard-coded set of index and leveraged ETFs whose
// options flow is dominated by hedging, not conviction.
var excludedETFs = map[string]struct{}{
	"SPY": {}, "QQQ": {}, "IWM": {}, "DIA": {}, "VXX": {}, "UVXY": {},
	"SQQQ": {}, "TQQQ": {}, "SPXU": {}, "UPRO": {}, "SOXL": {}, "SOXS": {},
	"GLD": {}, "SLV": {}, "USO": {}, "TLT": {}, "HYG": {}, "EEM": {},
	"FXI": {}, "EFA": {}, "ARKK": {}, "KRE": {}, "SMH": {}, "XBI": {},
	"XLF": {}, "XLE": {}, "XLK": {}, "XLV": {}, "XLI": {}, "XLU": {},
	"XLY": {}, "XLP": {}, "XLB": {}, "XLRE": {}, "XLC": {},
}

// ReferenceDataSource is the subset of the repository the reference loader
// needs.
type ReferenceDataSource interface {
	Sectors() (map[string]string, error)
	EarningsBetween(from, to time.Time) ([]database.EarningsEvent, error)
	LatestMediaFeatures() (map[string]database.MediaDailyFeature, error)
	LatestGex() (map[string]database.GexSnapshot, error)
}

// RefDataHandle publishes the current ReferenceData value. The daily
// refresh swaps in a whole new load; readers dereference through Current on
// every evaluation so they always see the latest one.
type RefDataHandle struct {
	p atomic.Pointer[ReferenceData]
}

// NewRefDataHandle wraps an initial load.
func NewRefDataHandle(ref *ReferenceData) *RefDataHandle {
	h := &RefDataHandle{}
	h.p.Store(ref)
	return h
}

// Current returns the most recently published reference data.
func (h *RefDataHandle) Current() *ReferenceData { return h.p.Load() }

// Replace publishes a fresh load.
func (h *RefDataHandle) Replace(ref *ReferenceData) { h.p.Store(ref) }

// ReferenceData is the read-only bundle of slow-moving lookups the filter
// chain and signal generator consult on the hot path. Loaded once at
// startup; a daily refresh builds a new value rather than mutating this one.
type ReferenceData struct {
	sectors  map[string]string
	earnings map[string][]time.Time
	media    map[string]database.MediaDailyFeature
	gex      map[string]database.GexSnapshot
	loadedAt time.Time
}

// LoadReferenceData bulk-loads all reference stores in parallel. Earnings
// are loaded for a window wide enough to answer proximity checks for the
// whole session.
func LoadReferenceData(src ReferenceDataSource, now time.Time) (*ReferenceData, error) {
	ref := &ReferenceData{loadedAt: now}

	var g errgroup.Group
	g.Go(func() error {
		sectors, err := src.Sectors()
		ref.sectors = sectors
		return err
	})
	g.Go(func() error {
		events, err := src.EarningsBetween(now.AddDate(0, 0, -3), now.AddDate(0, 0, 7))
		if err != nil {
			return err
		}
		ref.earnings = make(map[string][]time.Time)
		for _, e := range events {
			ref.earnings[e.Symbol] = append(ref.earnings[e.Symbol], e.EventDate)
		}
		return nil
	})
	g.Go(func() error {
		media, err := src.LatestMediaFeatures()
		ref.media = media
		return err
	})
	g.Go(func() error {
		gex, err := src.LatestGex()
		ref.gex = gex
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Printf("📚 Reference data loaded: %d sectors, %d earnings symbols, %d media rows, %d gex rows",
		len(ref.sectors), len(ref.earnings), len(ref.media), len(ref.gex))
	return ref, nil
}

// IsETF reports whether a symbol is in the excluded ETF set.
func (r *ReferenceData) IsETF(symbol string) bool {
	_, ok := excludedETFs[symbol]
	return ok
}

// Sector returns the symbol's sector, or "" when unknown.
func (r *ReferenceData) Sector(symbol string) string {
	return r.sectors[symbol]
}

// HasEarningsWithin reports whether the symbol has an earnings event within
// days calendar days of date in either direction.
func (r *ReferenceData) HasEarningsWithin(symbol string, date time.Time, days int) bool {
	for _, event := range r.earnings[symbol] {
		diff := event.Sub(date).Hours() / 24
		if diff < 0 {
			diff = -diff
		}
		if diff <= float64(days) {
			return true
		}
	}
	return false
}

// Media returns the symbol's latest media features.
func (r *ReferenceData) Media(symbol string) (database.MediaDailyFeature, bool) {
	m, ok := r.media[symbol]
	return m, ok
}

// Gex returns the symbol's latest gamma exposure snapshot.
func (r *ReferenceData) Gex(symbol string) (database.GexSnapshot, bool) {
	g, ok := r.gex[symbol]
	return g, ok
}
