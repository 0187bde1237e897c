package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockBroker is an in-memory Broker for tests. Fills execute instantly at
// the scripted snapshot price unless an error is scripted.
type MockBroker struct {
	mu sync.Mutex

	Equity    float64
	Snapshots map[string]*Snapshot
	Bars      map[string][]Bar
	Held      map[string]Position

	BuyErr      error
	SellErr     error
	SnapshotErr error
	EquityErr   error

	BuyOrders  []string
	SellOrders []string

	orderSeq int
}

var _ Broker = (*MockBroker)(nil)

// NewMockBroker returns a mock with sane defaults.
func NewMockBroker() *MockBroker {
	return &MockBroker{
		Equity:    100_000,
		Snapshots: make(map[string]*Snapshot),
		Bars:      make(map[string][]Bar),
		Held:      make(map[string]Position),
	}
}

// SetPrice scripts the last-trade price for a symbol.
func (m *MockBroker) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.Snapshots[symbol]
	if snap == nil {
		snap = &Snapshot{}
		m.Snapshots[symbol] = snap
	}
	snap.LastPrice = price
}

func (m *MockBroker) AccountEquity() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EquityErr != nil {
		return 0, m.EquityErr
	}
	return m.Equity, nil
}

func (m *MockBroker) Positions() ([]Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Position, 0, len(m.Held))
	for _, p := range m.Held {
		out = append(out, p)
	}
	return out, nil
}

func (m *MockBroker) MarketBuy(symbol string, qty int) (*Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BuyErr != nil {
		return nil, m.BuyErr
	}
	m.BuyOrders = append(m.BuyOrders, symbol)

	price := m.lastPrice(symbol)
	m.Held[symbol] = Position{Symbol: symbol, Qty: qty, AvgEntryPrice: price, CurrentPrice: price}
	return m.fill(symbol, qty, price), nil
}

func (m *MockBroker) MarketSell(symbol string, qty int) (*Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SellErr != nil {
		return nil, m.SellErr
	}
	m.SellOrders = append(m.SellOrders, symbol)

	price := m.lastPrice(symbol)
	delete(m.Held, symbol)
	return m.fill(symbol, qty, price), nil
}

func (m *MockBroker) Liquidate(symbol string) (*Fill, error) {
	m.mu.Lock()
	pos, ok := m.Held[symbol]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no position in %s", symbol)
	}
	return m.MarketSell(symbol, pos.Qty)
}

func (m *MockBroker) GetSnapshot(_ context.Context, symbol string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SnapshotErr != nil {
		return nil, m.SnapshotErr
	}
	if snap, ok := m.Snapshots[symbol]; ok {
		cp := *snap
		return &cp, nil
	}
	return nil, fmt.Errorf("no snapshot for %s", symbol)
}

func (m *MockBroker) DailyBars(_ context.Context, symbols []string, _ int) (map[string][]Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]Bar)
	for _, sym := range symbols {
		if bars, ok := m.Bars[sym]; ok {
			out[sym] = bars
		}
	}
	return out, nil
}

func (m *MockBroker) lastPrice(symbol string) float64 {
	if snap, ok := m.Snapshots[symbol]; ok {
		return snap.LastPrice
	}
	return 0
}

func (m *MockBroker) fill(symbol string, qty int, price float64) *Fill {
	m.orderSeq++
	return &Fill{
		OrderID:  fmt.Sprintf("mock-%d", m.orderSeq),
		Symbol:   symbol,
		Qty:      qty,
		AvgPrice: price,
		FilledAt: time.Now(),
	}
}
