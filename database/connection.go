package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Pool wraps a raw database/sql connection pool. The bucket flusher uses it
// for batched ON CONFLICT upserts so flush traffic never contends with the
// ORM connection.
type Pool struct {
	conn *sql.DB
}

// NewPool creates a raw connection pool from a lib/pq DSN or Postgres URL.
func NewPool(dsn string) (*Pool, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Flush traffic is bursty but narrow: one statement per accumulated bucket
	// every 30 minutes, plus the safety flush on shutdown.
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)
	conn.SetConnMaxIdleTime(2 * time.Minute)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ Database pool established")
	return &Pool{conn: conn}, nil
}

// UpsertBaseline writes one 30-minute bucket row. Idempotent on the
// composite key, so retried or duplicated flushes are harmless.
func (p *Pool) UpsertBaseline(symbol string, tradeDate time.Time, bucketStart string, prints int, notional float64, contractsUnique int) error {
	_, err := p.conn.Exec(`
		INSERT INTO intraday_baselines_30m (symbol, trade_date, bucket_start, prints, notional, contracts_unique)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol, trade_date, bucket_start)
		DO UPDATE SET prints = EXCLUDED.prints,
		              notional = EXCLUDED.notional,
		              contracts_unique = EXCLUDED.contracts_unique
	`, symbol, tradeDate, bucketStart, prints, notional, contractsUnique)
	return err
}

// Close closes the pool.
func (p *Pool) Close() error {
	if p.conn != nil {
		log.Println("📡 Closing database pool...")
		return p.conn.Close()
	}
	return nil
}

// Ping checks if the pool is alive.
func (p *Pool) Ping() error {
	return p.conn.Ping()
}
