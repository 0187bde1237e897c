package firehose

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jpillora/backoff"
)

const maxConnectionsCooldown = 60 * time.Second

// TradeSink receives every decoded trade print from the feed.
type TradeSink func(TradeMessage)

// ConnectionManager owns the firehose session lifecycle: connect, pump
// trades into the sink, and reconnect with backoff whenever the session
// drops. A max_connections rejection waits a full minute before retrying so
// the stale session on the other side can expire.
type ConnectionManager struct {
	url     string
	apiKey  string
	sink    TradeSink
	onBatch func()

	client *Client
}

// NewConnectionManager creates a manager that delivers trades to sink.
func NewConnectionManager(url, apiKey string, sink TradeSink) *ConnectionManager {
	return &ConnectionManager{url: url, apiKey: apiKey, sink: sink}
}

// OnBatch registers a callback invoked after each batch of trades has been
// delivered to the sink. Must be set before Run.
func (cm *ConnectionManager) OnBatch(fn func()) {
	cm.onBatch = fn
}

// Run connects and pumps trades until ctx is canceled. It never returns a
// transport error; every failure is logged and retried.
func (cm *ConnectionManager) Run(ctx context.Context) {
	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	for {
		if ctx.Err() != nil {
			return
		}

		cm.client = NewClient(cm.url, cm.apiKey)
		err := cm.client.Connect()
		if err == nil {
			b.Reset()
			err = cm.pump(ctx)
		}
		cm.client.Close()

		if ctx.Err() != nil {
			return
		}

		wait := b.Duration()
		if errors.Is(err, ErrMaxConnections) {
			wait = maxConnectionsCooldown
			log.Printf("⚠️  Feed reports another active connection, waiting %v", wait)
		} else {
			log.Printf("⚠️  Firehose connection lost: %v, reconnecting in %v", err, wait)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// pump reads trade batches until the connection fails or ctx is canceled.
func (cm *ConnectionManager) pump(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)

	// ReadMessage blocks with no context support; closing the conn on
	// cancel unblocks it.
	go func() {
		select {
		case <-ctx.Done():
			cm.client.Close()
		case <-done:
		}
	}()

	for {
		trades, err := cm.client.ReadTrades()
		if err != nil {
			return err
		}
		for _, t := range trades {
			cm.sink(t)
		}
		if len(trades) > 0 && cm.onBatch != nil {
			cm.onBatch()
		}
	}
}
