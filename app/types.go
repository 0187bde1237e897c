// Package app contains the UOA engine: the rolling trade aggregator, the
// bucket aggregator feeding tomorrow's baselines, the anomaly detector,
// scorer and filter chain, and the two per-account position managers with
// their hard-stop and end-of-day machinery.
package app

import "time"

// OptionTrade is one parsed firehose print. Consumed by the aggregators and
// discarded.
type OptionTrade struct {
	OCCSymbol  string
	Underlying string
	Right      byte // 'C' or 'P'
	Strike     float64
	Expiry     time.Time
	Price      float64
	Size       int
	Notional   float64 // price * size * 100
	IsSweep    bool
	Timestamp  time.Time
}

// WindowStats is a consistent snapshot of one underlying's rolling window.
type WindowStats struct {
	NotionalTotal  float64
	ContractsTotal int
	Prints         int
	CallsNotional  float64
	PutsNotional   float64
	CallPct        float64 // calls / (calls + puts)
	SweepPct       float64 // sweep notional / total
	UniqueStrikes  int
	MaxPrintSize   int
	AvgContracts   float64 // contracts per print
}

// Trigger is a volume anomaly emitted by the detector.
type Trigger struct {
	Symbol           string
	At               time.Time
	Stats            WindowStats
	VolumeRatio      float64
	BaselineNotional float64
}

// Signal is a scored trigger enriched with TA, spot price and metadata,
// ready for the filter chain. TA pointers are nil when neither the daily nor
// the intraday cache nor the bars fallback produced values.
type Signal struct {
	Trigger

	Score      int
	Components map[string]int

	RSI14     *float64
	SMA20     *float64
	SMA50     *float64
	LastClose float64
	SpotPrice float64
	Trend     string // "up", "down", "flat"
	Sector    string

	Metadata map[string]interface{}
}

// PositionState tracks a position's place in its lifecycle.
type PositionState string

const (
	StateOpening PositionState = "opening"
	StateHolding PositionState = "holding"
	StateClosing PositionState = "closing"
	StateClosed  PositionState = "closed"
)

// Position is one account's live holding.
type Position struct {
	Symbol     string
	EntryTime  time.Time
	EntryPrice float64
	Shares     int
	Score      int
	RSI14      *float64
	Notional   float64 // signal window notional, kept for reporting
	OrderID    string
	DBID       int64
	State      PositionState
}
