package firehose

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestManagerNotifiesAfterEachBatch(t *testing.T) {
	srv := feedServer(t, "auth_success", []string{
		`[{"ev":"T","sym":"O:AAPL260116C00250000","p":5.25,"s":40,"t":1756130400000000000},` +
			`{"ev":"T","sym":"O:TSLA260116P00200000","p":3.10,"s":10,"t":1756130401000000000}]`,
		`[{"ev":"status","status":"success","message":"subscribed to: T.*"}]`,
		`[{"ev":"T","sym":"O:SPY260116C00450000","p":1.00,"s":5,"t":1756130402000000000}]`,
	})
	defer srv.Close()

	var mu sync.Mutex
	trades := 0
	batches := 0
	done := make(chan struct{})

	cm := NewConnectionManager(wsURL(srv), "test-key", func(TradeMessage) {
		mu.Lock()
		trades++
		mu.Unlock()
	})
	cm.OnBatch(func() {
		mu.Lock()
		batches++
		n := batches
		mu.Unlock()
		if n == 2 {
			close(done)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go cm.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch notifications")
	}
	cancel()

	mu.Lock()
	defer mu.Unlock()
	if trades != 3 {
		t.Errorf("trades delivered = %d, want 3", trades)
	}
	// Two trade batches notify; the status-only batch does not.
	if batches != 2 {
		t.Errorf("batch notifications = %d, want 2", batches)
	}
}
