// Package database provides connection management and repositories for the
// UOA scanner's persistent state.
//
// Two connections are held side by side:
//   - a GORM connection for schema management and ORM-style reads/writes
//   - a raw database/sql pool (lib/pq) used by the bucket flusher for
//     batched ON CONFLICT upserts off the hot path
//
// Reference tables (ta_daily_close, earnings_calendar, media_daily_features,
// master_tickers, gex_snapshot, engulfing_scores, intraday_baselines_30m) are
// written by nightly jobs outside this process; this process only reads them,
// except intraday_baselines_30m which the bucket aggregator also upserts.
package database

import "time"

// TADailyClose is a nightly precomputed technical-indicator row.
type TADailyClose struct {
	Symbol     string    `gorm:"size:10;primaryKey" json:"symbol"`
	TradeDate  time.Time `gorm:"primaryKey" json:"trade_date"`
	RSI14      float64   `gorm:"column:rsi_14;type:decimal(10,4)" json:"rsi_14"`
	SMA20      float64   `gorm:"column:sma_20;type:decimal(15,4)" json:"sma_20"`
	SMA50      float64   `gorm:"column:sma_50;type:decimal(15,4)" json:"sma_50"`
	ClosePrice float64   `gorm:"type:decimal(15,4)" json:"close_price"`
}

func (TADailyClose) TableName() string { return "ta_daily_close" }

// TAIntraday5m is a 5-minute technical-indicator snapshot, refreshed
// intraday by an external job.
type TAIntraday5m struct {
	Symbol     string    `gorm:"size:10;primaryKey" json:"symbol"`
	SnapshotTS time.Time `gorm:"primaryKey" json:"snapshot_ts"`
	RSI14      float64   `gorm:"column:rsi_14;type:decimal(10,4)" json:"rsi_14"`
	SMA20      float64   `gorm:"column:sma_20;type:decimal(15,4)" json:"sma_20"`
	Price      float64   `gorm:"type:decimal(15,4)" json:"price"`
}

func (TAIntraday5m) TableName() string { return "ta_intraday_5m" }

// IntradayBaseline is one 30-minute time-of-day bucket of options flow for a
// symbol. Rows are written by the bucket aggregator (upsert on the composite
// key, so a double flush is harmless) and read at startup to build the
// per-symbol baseline notionals.
type IntradayBaseline struct {
	Symbol          string    `gorm:"size:10;primaryKey" json:"symbol"`
	TradeDate       time.Time `gorm:"primaryKey" json:"trade_date"`
	BucketStart     string    `gorm:"size:5;primaryKey" json:"bucket_start"` // "09:30", "10:00", ...
	Prints          int       `json:"prints"`
	Notional        float64   `gorm:"type:decimal(20,2)" json:"notional"`
	ContractsUnique int       `json:"contracts_unique"`
}

func (IntradayBaseline) TableName() string { return "intraday_baselines_30m" }

// EarningsEvent marks an upcoming or recent earnings date for a symbol.
type EarningsEvent struct {
	Symbol    string    `gorm:"size:10;primaryKey" json:"symbol"`
	EventDate time.Time `gorm:"primaryKey" json:"event_date"`
}

func (EarningsEvent) TableName() string { return "earnings_calendar" }

// MediaDailyFeature holds per-symbol daily media mention counts and
// aggregate sentiment, used by the crowded-trade filter.
type MediaDailyFeature struct {
	Symbol    string    `gorm:"size:10;primaryKey" json:"symbol"`
	AsofDate  time.Time `gorm:"primaryKey" json:"asof_date"`
	Mentions  int       `json:"mentions"`
	Sentiment float64   `gorm:"type:decimal(6,3)" json:"sentiment"`
}

func (MediaDailyFeature) TableName() string { return "media_daily_features" }

// MasterTicker maps a symbol to its sector.
type MasterTicker struct {
	Symbol string `gorm:"size:10;primaryKey" json:"symbol"`
	Sector string `gorm:"size:64" json:"sector"`
}

func (MasterTicker) TableName() string { return "master_tickers" }

// GexSnapshot is the nightly gamma-exposure computation for a symbol.
// Attached to signals as opaque metadata, never consulted by the filters.
type GexSnapshot struct {
	Symbol     string    `gorm:"size:10;primaryKey" json:"symbol"`
	SnapshotTS time.Time `gorm:"primaryKey" json:"snapshot_ts"`
	NetGex     float64   `gorm:"column:net_gex;type:decimal(20,2)" json:"net_gex"`
	GammaFlip  float64   `gorm:"type:decimal(15,4)" json:"gamma_flip"`
}

func (GexSnapshot) TableName() string { return "gex_snapshot" }

// EngulfingScore is a candlestick pattern detection written by an external
// scanner. Timeframe is "5min" or "1D"; direction "bullish" or "bearish".
type EngulfingScore struct {
	Symbol          string    `gorm:"size:10;primaryKey" json:"symbol"`
	ScanTS          time.Time `gorm:"primaryKey" json:"scan_ts"`
	Timeframe       string    `gorm:"size:8;primaryKey" json:"timeframe"`
	Direction       string    `gorm:"size:8" json:"direction"`
	PatternStrength string    `gorm:"size:16" json:"pattern_strength"` // strong, moderate, weak
}

func (EngulfingScore) TableName() string { return "engulfing_scores" }

// SignalEvaluation records every signal that reached the filter chain,
// pass or fail. Append-only.
type SignalEvaluation struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DetectedAt       time.Time `gorm:"index;not null" json:"detected_at"`
	Symbol           string    `gorm:"size:10;index;not null" json:"symbol"`
	VolumeRatio      float64   `gorm:"type:decimal(12,4)" json:"volume_ratio"`
	BaselineNotional float64   `gorm:"type:decimal(20,2)" json:"baseline_notional"`
	NotionalTotal    float64   `gorm:"type:decimal(20,2)" json:"notional_total"`
	ContractsTotal   int       `json:"contracts_total"`
	Prints           int       `json:"prints"`
	CallPct          float64   `gorm:"type:decimal(6,4)" json:"call_pct"`
	SweepPct         float64   `gorm:"type:decimal(6,4)" json:"sweep_pct"`
	UniqueStrikes    int       `json:"unique_strikes"`
	ScoreTotal       int       `json:"score_total"`
	ComponentScores  string    `gorm:"type:jsonb" json:"component_scores"`
	RSI14            *float64  `gorm:"column:rsi_14;type:decimal(10,4)" json:"rsi_14,omitempty"`
	SMA20            *float64  `gorm:"column:sma_20;type:decimal(15,4)" json:"sma_20,omitempty"`
	SMA50            *float64  `gorm:"column:sma_50;type:decimal(15,4)" json:"sma_50,omitempty"`
	SpotPrice        float64   `gorm:"type:decimal(15,4)" json:"spot_price"`
	Trend            string    `gorm:"size:16" json:"trend"`
	PassedAllFilters bool      `gorm:"index" json:"passed_all_filters"`
	RejectionReason  *string   `gorm:"size:255" json:"rejection_reason,omitempty"`
	Metadata         string    `gorm:"type:jsonb" json:"metadata"`
}

func (SignalEvaluation) TableName() string { return "signal_evaluations" }

// ActiveSignal is the de-duplicated projection of passed evaluations.
// Unique on (detected_at, symbol).
type ActiveSignal struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DetectedAt time.Time `gorm:"uniqueIndex:idx_active_signal_key;not null" json:"detected_at"`
	Symbol     string    `gorm:"size:10;uniqueIndex:idx_active_signal_key;not null" json:"symbol"`
	Score      int       `json:"score"`
	SpotPrice  float64   `gorm:"type:decimal(15,4)" json:"spot_price"`
	Status     string    `gorm:"size:16;default:ACTIVE" json:"status"` // ACTIVE, CLOSED
}

func (ActiveSignal) TableName() string { return "active_signals" }

// PaperTrade is one position lifecycle row. An open position is a row with
// exit_time IS NULL; a partial unique index on (symbol) WHERE exit_time IS
// NULL enforces at most one open row per symbol per account table.
// The table name is chosen per account ("paper_trades_log" /
// "paper_trades_log_b") via TradeLog, so this struct carries no TableName.
type PaperTrade struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol     string     `gorm:"size:10;index;not null" json:"symbol"`
	EntryTime  time.Time  `gorm:"not null" json:"entry_time"`
	EntryPrice float64    `gorm:"type:decimal(15,4);not null" json:"entry_price"`
	Shares     int        `gorm:"not null" json:"shares"`
	Score      int        `json:"score"`
	RSI14      *float64   `gorm:"column:rsi_14;type:decimal(10,4)" json:"rsi_14,omitempty"`
	Notional   float64    `gorm:"type:decimal(20,2)" json:"notional"`
	OrderID    string     `gorm:"size:64" json:"order_id"`
	ExitTime   *time.Time `json:"exit_time,omitempty"`
	ExitPrice  *float64   `gorm:"type:decimal(15,4)" json:"exit_price,omitempty"`
	ExitReason *string    `gorm:"size:32" json:"exit_reason,omitempty"`
	PnL        *float64   `gorm:"column:pnl;type:decimal(20,4)" json:"pnl,omitempty"`
	PnLPct     *float64   `gorm:"column:pnl_pct;type:decimal(10,6)" json:"pnl_pct,omitempty"`
}

// TrackedSymbol counts triggers per symbol; upserted on every trigger.
type TrackedSymbol struct {
	Symbol        string    `gorm:"size:10;primaryKey" json:"symbol"`
	TriggerCount  int       `json:"trigger_count"`
	LastTriggerTS time.Time `gorm:"column:last_trigger_ts" json:"last_trigger_ts"`
}

func (TrackedSymbol) TableName() string { return "tracked_symbols" }
