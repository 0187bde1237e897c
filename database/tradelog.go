package database

import (
	"fmt"
	"time"
)

// TradeLog persists one account's paper-trade lifecycle rows. Account A
// writes paper_trades_log, account B paper_trades_log_b; both tables share
// the PaperTrade shape.
type TradeLog struct {
	db    *Database
	table string
}

// NewTradeLog creates a trade log bound to an account's table.
func NewTradeLog(db *Database, account string) *TradeLog {
	table := "paper_trades_log"
	if account == "B" {
		table = "paper_trades_log_b"
	}
	return &TradeLog{db: db, table: table}
}

// Table returns the backing table name.
func (l *TradeLog) Table() string { return l.table }

// LogOpen inserts the entry row and returns its id. exit_time stays NULL
// until LogClose.
func (l *TradeLog) LogOpen(t *PaperTrade) (int64, error) {
	if err := l.db.db.Table(l.table).Create(t).Error; err != nil {
		return 0, fmt.Errorf("failed to log trade open for %s: %w", t.Symbol, err)
	}
	return t.ID, nil
}

// LogClose completes a row by id. The update is keyed on id alone so a close
// succeeds regardless of how many days have passed since the open.
func (l *TradeLog) LogClose(id int64, exitTime time.Time, exitPrice, pnl, pnlPct float64, reason string) error {
	res := l.db.db.Table(l.table).Where("id = ?", id).Updates(map[string]interface{}{
		"exit_time":   exitTime,
		"exit_price":  exitPrice,
		"pnl":         pnl,
		"pnl_pct":     pnlPct,
		"exit_reason": reason,
	})
	if res.Error != nil {
		return fmt.Errorf("failed to log trade close id=%d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("trade close id=%d matched no open row", id)
	}
	return nil
}

// OpenTrades returns all rows with exit_time IS NULL, used by the startup
// reconciler.
func (l *TradeLog) OpenTrades() ([]PaperTrade, error) {
	var rows []PaperTrade
	err := l.db.db.Table(l.table).Where("exit_time IS NULL").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load open trades: %w", err)
	}
	return rows, nil
}
