package app

import (
	"log"
	"sync"
	"time"
)

// BaselineFlusher persists one 30-minute bucket row. Implemented by
// database.Pool with an ON CONFLICT upsert, so a double flush is harmless.
type BaselineFlusher interface {
	UpsertBaseline(symbol string, tradeDate time.Time, bucketStart string, prints int, notional float64, contractsUnique int) error
}

const bucketWidth = 30 * time.Minute

// bucket accumulates one underlying's flow inside one wall-clock bucket.
type bucket struct {
	start     time.Time
	prints    int
	notional  float64
	contracts map[string]struct{}
}

type bucketKey struct {
	symbol string
	start  time.Time
}

// BucketAggregator builds future baselines from current flow: every valid
// trade lands in its underlying's current 30-minute bucket, and crossing a
// bucket boundary flushes every closed bucket to the persistent store.
type BucketAggregator struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
	flusher BaselineFlusher
	loc     *time.Location

	lastBoundary time.Time
}

// NewBucketAggregator creates a bucket aggregator flushing through flusher.
// Bucket boundaries align to the wall clock in loc (09:30, 10:00, ...).
func NewBucketAggregator(flusher BaselineFlusher, loc *time.Location) *BucketAggregator {
	return &BucketAggregator{
		buckets: make(map[bucketKey]*bucket),
		flusher: flusher,
		loc:     loc,
	}
}

// Add accumulates one trade into its current bucket.
func (b *BucketAggregator) Add(t OptionTrade) {
	start := b.bucketStart(t.Timestamp)

	b.mu.Lock()
	defer b.mu.Unlock()

	key := bucketKey{symbol: t.Underlying, start: start}
	bk := b.buckets[key]
	if bk == nil {
		bk = &bucket{start: start, contracts: make(map[string]struct{})}
		b.buckets[key] = bk
	}
	bk.prints++
	bk.notional += t.Notional
	bk.contracts[t.OCCSymbol] = struct{}{}
}

// FlushIfBoundaryCrossed flushes all buckets that closed before the current
// boundary. Cheap when nothing crossed; called from a periodic tick.
func (b *BucketAggregator) FlushIfBoundaryCrossed(now time.Time) {
	boundary := b.bucketStart(now)

	b.mu.Lock()
	if !boundary.After(b.lastBoundary) {
		b.mu.Unlock()
		return
	}
	b.lastBoundary = boundary
	closed := b.takeClosedLocked(boundary)
	b.mu.Unlock()

	b.flush(closed)
}

// FlushAll flushes every accumulated bucket, closed or not. Runs on
// shutdown so a mid-bucket exit loses nothing.
func (b *BucketAggregator) FlushAll() {
	b.mu.Lock()
	all := make(map[bucketKey]*bucket, len(b.buckets))
	for k, v := range b.buckets {
		all[k] = v
	}
	b.buckets = make(map[bucketKey]*bucket)
	b.mu.Unlock()

	b.flush(all)
}

// PendingNotional reports the not-yet-flushed notional for a symbol,
// summed across its open buckets.
func (b *BucketAggregator) PendingNotional(symbol string) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0.0
	for k, bk := range b.buckets {
		if k.symbol == symbol {
			total += bk.notional
		}
	}
	return total
}

func (b *BucketAggregator) takeClosedLocked(boundary time.Time) map[bucketKey]*bucket {
	closed := make(map[bucketKey]*bucket)
	for k, bk := range b.buckets {
		if bk.start.Before(boundary) {
			closed[k] = bk
			delete(b.buckets, k)
		}
	}
	return closed
}

func (b *BucketAggregator) flush(buckets map[bucketKey]*bucket) {
	if len(buckets) == 0 {
		return
	}

	flushed := 0
	for k, bk := range buckets {
		tradeDate := time.Date(bk.start.Year(), bk.start.Month(), bk.start.Day(), 0, 0, 0, 0, time.UTC)
		err := b.flusher.UpsertBaseline(k.symbol, tradeDate, bk.start.Format("15:04"), bk.prints, bk.notional, len(bk.contracts))
		if err != nil {
			log.Printf("⚠️  Baseline flush failed for %s %s: %v", k.symbol, bk.start.Format("15:04"), err)
			continue
		}
		flushed++
	}
	log.Printf("📊 Flushed %d/%d baseline buckets", flushed, len(buckets))
}

// bucketStart floors a timestamp to its 30-minute wall-clock bucket in the
// market timezone.
func (b *BucketAggregator) bucketStart(ts time.Time) time.Time {
	local := ts.In(b.loc)
	minute := (local.Minute() / 30) * 30
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), minute, 0, 0, b.loc)
}
