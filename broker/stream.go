package broker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"
)

// TradeHandler receives real-time equity trade prints.
type TradeHandler func(symbol string, price float64, at time.Time)

// EquityStream subscribes to real-time equity trades for the symbols the
// hard-stop monitor is watching. Watches are refcounted: both accounts can
// hold the same symbol, and the trade subscription stays live until the
// last holder unwatches.
type EquityStream struct {
	client  *stream.StocksClient
	handler TradeHandler

	subscribe   func(symbols ...string) error
	unsubscribe func(symbols ...string) error

	mu      sync.Mutex
	watched map[string]int
}

// NewEquityStream creates the stream client. The IEX feed is sufficient for
// stop monitoring on paper accounts.
func NewEquityStream(apiKey, apiSecret string) *EquityStream {
	s := &EquityStream{
		client: stream.NewStocksClient(
			marketdata.IEX,
			stream.WithCredentials(apiKey, apiSecret),
			stream.WithReconnectSettings(10, 500*time.Millisecond),
		),
		watched: make(map[string]int),
	}
	s.subscribe = func(symbols ...string) error {
		return s.client.SubscribeToTrades(s.onTrade, symbols...)
	}
	s.unsubscribe = s.client.UnsubscribeFromTrades
	return s
}

// SetHandler installs the trade callback. Must be called before Start.
func (s *EquityStream) SetHandler(h TradeHandler) {
	s.handler = h
}

// Start connects in the background. The SDK reconnects on its own; a
// connection that gives up entirely is logged and the REST safety net
// carries the monitoring load.
func (s *EquityStream) Start(ctx context.Context) {
	go func() {
		log.Println("🔌 Connecting to equity trade stream...")
		if err := s.client.Connect(ctx); err != nil && ctx.Err() == nil {
			log.Printf("⚠️  Equity stream closed with error: %v (REST safety net remains active)", err)
		}
	}()
}

// Watch takes a reference on trades for the given symbols, subscribing the
// ones not already covered.
func (s *EquityStream) Watch(symbols ...string) error {
	if len(symbols) == 0 {
		return nil
	}

	s.mu.Lock()
	fresh := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if s.watched[sym] == 0 {
			fresh = append(fresh, sym)
		}
		s.watched[sym]++
	}
	s.mu.Unlock()

	if len(fresh) == 0 {
		return nil
	}
	if err := s.subscribe(fresh...); err != nil {
		s.mu.Lock()
		for _, sym := range symbols {
			if s.watched[sym]--; s.watched[sym] <= 0 {
				delete(s.watched, sym)
			}
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Unwatch releases one reference per symbol, unsubscribing the ones no
// holder still wants.
func (s *EquityStream) Unwatch(symbols ...string) error {
	if len(symbols) == 0 {
		return nil
	}

	s.mu.Lock()
	stale := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		switch n := s.watched[sym]; {
		case n > 1:
			s.watched[sym] = n - 1
		case n == 1:
			delete(s.watched, sym)
			stale = append(stale, sym)
		}
	}
	s.mu.Unlock()

	if len(stale) == 0 {
		return nil
	}
	return s.unsubscribe(stale...)
}

// IsWatched reports whether a live subscription covers the symbol, so the
// REST safety net can focus on the uncovered ones.
func (s *EquityStream) IsWatched(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watched[symbol] > 0
}

func (s *EquityStream) onTrade(t stream.Trade) {
	if s.handler != nil {
		s.handler(t.Symbol, t.Price, t.Timestamp)
	}
}
