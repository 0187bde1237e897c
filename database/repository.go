package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles reads of the reference stores and writes of signal
// evaluations, active signals and tracked symbols.
type Repository struct {
	db *Database
}

// NewRepository creates a new repository
func NewRepository(db *Database) *Repository {
	return &Repository{db: db}
}

// InitSchema performs auto-migration and creates the indexes GORM cannot
// express. Any error here is fatal at boot: a half-migrated schema must not
// trade.
func (r *Repository) InitSchema() error {
	log.Println("🔄 Starting database schema initialization...")

	err := r.db.db.AutoMigrate(
		&TADailyClose{},
		&TAIntraday5m{},
		&IntradayBaseline{},
		&EarningsEvent{},
		&MediaDailyFeature{},
		&MasterTicker{},
		&GexSnapshot{},
		&EngulfingScore{},
		&SignalEvaluation{},
		&ActiveSignal{},
		&TrackedSymbol{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	for _, table := range []string{"paper_trades_log", "paper_trades_log_b"} {
		if err := r.db.db.Table(table).AutoMigrate(&PaperTrade{}); err != nil {
			return fmt.Errorf("auto-migration of %s failed: %w", table, err)
		}
		// At most one open row per symbol. The WHERE clause keeps closed
		// history out of the constraint so a symbol can be re-traded.
		if err := r.db.db.Exec(fmt.Sprintf(`
			CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_open_symbol
			ON %s (symbol) WHERE exit_time IS NULL
		`, table, table)).Error; err != nil {
			return fmt.Errorf("failed to create open-row index on %s: %w", table, err)
		}
	}

	if err := r.db.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_engulfing_lookup
		ON engulfing_scores (symbol, timeframe, direction, scan_ts DESC)
	`).Error; err != nil {
		return fmt.Errorf("failed to create engulfing index: %w", err)
	}

	log.Println("✅ Database schema initialization completed successfully")
	return nil
}

// BaselineNotionals returns, per symbol, the mean bucket notional across all
// 30-minute rows of the most recent lookbackDays trading days. The hot path
// compares a 60-second window against this day-rolled average, not against
// the matching time-of-day bucket.
func (r *Repository) BaselineNotionals(lookbackDays int) (map[string]float64, error) {
	type row struct {
		Symbol   string
		Notional float64
	}
	var rows []row
	err := r.db.db.Raw(`
		SELECT symbol, AVG(notional) AS notional
		FROM intraday_baselines_30m
		WHERE trade_date IN (
			SELECT DISTINCT trade_date FROM intraday_baselines_30m
			ORDER BY trade_date DESC LIMIT ?
		)
		GROUP BY symbol
	`, lookbackDays).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load baselines: %w", err)
	}

	out := make(map[string]float64, len(rows))
	for _, b := range rows {
		out[b.Symbol] = b.Notional
	}
	return out, nil
}

// LatestDailyTA returns the most recent nightly TA row per symbol.
func (r *Repository) LatestDailyTA() (map[string]TADailyClose, error) {
	var rows []TADailyClose
	err := r.db.db.Raw(`
		SELECT DISTINCT ON (symbol) *
		FROM ta_daily_close
		ORDER BY symbol, trade_date DESC
	`).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load daily TA: %w", err)
	}

	out := make(map[string]TADailyClose, len(rows))
	for _, t := range rows {
		out[t.Symbol] = t
	}
	return out, nil
}

// LatestIntradayTA returns the freshest 5-minute TA snapshot per symbol,
// ignoring snapshots older than since.
func (r *Repository) LatestIntradayTA(since time.Time) (map[string]TAIntraday5m, error) {
	var rows []TAIntraday5m
	err := r.db.db.Raw(`
		SELECT DISTINCT ON (symbol) *
		FROM ta_intraday_5m
		WHERE snapshot_ts > ?
		ORDER BY symbol, snapshot_ts DESC
	`, since).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load intraday TA: %w", err)
	}

	out := make(map[string]TAIntraday5m, len(rows))
	for _, t := range rows {
		out[t.Symbol] = t
	}
	return out, nil
}

// EarningsBetween returns all earnings events in [from, to].
func (r *Repository) EarningsBetween(from, to time.Time) ([]EarningsEvent, error) {
	var rows []EarningsEvent
	err := r.db.db.Where("event_date BETWEEN ? AND ?", from, to).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load earnings calendar: %w", err)
	}
	return rows, nil
}

// LatestMediaFeatures returns the most recent media feature row per symbol.
func (r *Repository) LatestMediaFeatures() (map[string]MediaDailyFeature, error) {
	var rows []MediaDailyFeature
	err := r.db.db.Raw(`
		SELECT DISTINCT ON (symbol) *
		FROM media_daily_features
		ORDER BY symbol, asof_date DESC
	`).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load media features: %w", err)
	}

	out := make(map[string]MediaDailyFeature, len(rows))
	for _, m := range rows {
		out[m.Symbol] = m
	}
	return out, nil
}

// Sectors returns the symbol → sector map.
func (r *Repository) Sectors() (map[string]string, error) {
	var rows []MasterTicker
	if err := r.db.db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load master tickers: %w", err)
	}

	out := make(map[string]string, len(rows))
	for _, t := range rows {
		out[t.Symbol] = t.Sector
	}
	return out, nil
}

// LatestGex returns the most recent GEX snapshot per symbol.
func (r *Repository) LatestGex() (map[string]GexSnapshot, error) {
	var rows []GexSnapshot
	err := r.db.db.Raw(`
		SELECT DISTINCT ON (symbol) *
		FROM gex_snapshot
		ORDER BY symbol, snapshot_ts DESC
	`).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load gex snapshots: %w", err)
	}

	out := make(map[string]GexSnapshot, len(rows))
	for _, g := range rows {
		out[g.Symbol] = g
	}
	return out, nil
}

// RecentEngulfing returns the most recent engulfing detection for a symbol
// matching timeframe and direction with scan_ts after since, or nil.
func (r *Repository) RecentEngulfing(symbol string, since time.Time, timeframe, direction string) (*EngulfingScore, error) {
	var row EngulfingScore
	err := r.db.db.
		Where("symbol = ? AND timeframe = ? AND direction = ? AND scan_ts > ?",
			symbol, timeframe, direction, since).
		Order("scan_ts DESC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// DailyEngulfingWatchlist returns symbols with a bullish 1D engulfing
// detected after since.
func (r *Repository) DailyEngulfingWatchlist(since time.Time) ([]string, error) {
	var symbols []string
	err := r.db.db.Model(&EngulfingScore{}).
		Where("timeframe = ? AND direction = ? AND scan_ts > ?", "1D", "bullish", since).
		Distinct().
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load engulfing watchlist: %w", err)
	}
	return symbols, nil
}

// SaveEvaluation appends a filter-chain evaluation row.
func (r *Repository) SaveEvaluation(e *SignalEvaluation) error {
	return r.db.db.Create(e).Error
}

// SaveActiveSignal records a passed signal. Idempotent on
// (detected_at, symbol); a retried write is a no-op.
func (r *Repository) SaveActiveSignal(s *ActiveSignal) error {
	return r.db.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "detected_at"}, {Name: "symbol"}},
		DoNothing: true,
	}).Create(s).Error
}

// MarkSignalClosed flips the most recent ACTIVE signal row for a symbol to
// CLOSED when its position is exited.
func (r *Repository) MarkSignalClosed(symbol string) error {
	return r.db.db.Model(&ActiveSignal{}).
		Where("symbol = ? AND status = ?", symbol, "ACTIVE").
		Update("status", "CLOSED").Error
}

// UpsertTrackedSymbol bumps the trigger counter for a symbol. Every trigger
// is admitted to the tracking table, cooldown notwithstanding.
func (r *Repository) UpsertTrackedSymbol(symbol string, triggerTS time.Time) error {
	return r.db.db.Exec(`
		INSERT INTO tracked_symbols (symbol, trigger_count, last_trigger_ts)
		VALUES (?, 1, ?)
		ON CONFLICT (symbol)
		DO UPDATE SET trigger_count = tracked_symbols.trigger_count + 1,
		              last_trigger_ts = EXCLUDED.last_trigger_ts
	`, symbol, triggerTS).Error
}

// RecentEvaluations returns the latest evaluation rows for the ops API.
func (r *Repository) RecentEvaluations(limit int) ([]SignalEvaluation, error) {
	var rows []SignalEvaluation
	err := r.db.db.Order("detected_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// RecentActiveSignals returns the latest passed signals for the ops API.
func (r *Repository) RecentActiveSignals(limit int) ([]ActiveSignal, error) {
	var rows []ActiveSignal
	err := r.db.db.Order("detected_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}
