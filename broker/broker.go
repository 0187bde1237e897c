// Package broker wraps the paper-trading broker API: account state, market
// orders, price snapshots, daily bars and the real-time equity trade stream.
package broker

import (
	"context"
	"time"
)

// Snapshot is the latest-known pricing state of an equity symbol.
type Snapshot struct {
	LastPrice float64
	DailyOpen float64
	PrevClose float64
}

// Fill is the result of an executed market order.
type Fill struct {
	OrderID  string
	Symbol   string
	Qty      int
	AvgPrice float64
	FilledAt time.Time
}

// Position is a broker-reported equity position.
type Position struct {
	Symbol        string
	Qty           int
	AvgEntryPrice float64
	CurrentPrice  float64
}

// Bar is one daily OHLCV bar.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Broker is the trading surface the position managers depend on. One
// instance is bound to one account's credentials.
type Broker interface {
	// AccountEquity returns current account equity in dollars.
	AccountEquity() (float64, error)
	// Positions returns the broker's view of open positions.
	Positions() ([]Position, error)
	// MarketBuy submits a market buy and waits for the fill.
	MarketBuy(symbol string, qty int) (*Fill, error)
	// MarketSell submits a market sell and waits for the fill.
	MarketSell(symbol string, qty int) (*Fill, error)
	// Liquidate closes whatever quantity the broker holds in symbol,
	// used for orphan cleanup during reconciliation.
	Liquidate(symbol string) (*Fill, error)
	// GetSnapshot returns last trade, daily open and previous close.
	GetSnapshot(ctx context.Context, symbol string) (*Snapshot, error)
	// DailyBars returns up to days of daily bars per symbol from the
	// official (SIP) feed.
	DailyBars(ctx context.Context, symbols []string, days int) (map[string][]Bar, error)
}
