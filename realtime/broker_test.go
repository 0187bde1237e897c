package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBroadcastReachesClient(t *testing.T) {
	b := NewBroker()
	go b.Run()

	client := make(chan []byte, 16)
	b.register <- client

	b.Broadcast("signal_passed", map[string]string{"symbol": "NET"})

	select {
	case msg := <-client:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("bad event payload: %v", err)
		}
		if ev.Event != "signal_passed" {
			t.Errorf("event = %s, want signal_passed", ev.Event)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestSlowClientDoesNotBlock(t *testing.T) {
	b := NewBroker()
	go b.Run()

	// Unbuffered and never read: every delivery must be skipped, not block.
	stuck := make(chan []byte)
	b.register <- stuck

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Broadcast("position_opened", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
}

func TestServeHTTPStreamsEvents(t *testing.T) {
	b := NewBroker()
	go b.Run()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/events", nil)
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	served := make(chan struct{})
	go func() {
		b.ServeHTTP(rec, req.WithContext(ctx))
		close(served)
	}()

	// Wait for the client to register, then broadcast and disconnect.
	time.Sleep(50 * time.Millisecond)
	b.Broadcast("position_closed", map[string]string{"symbol": "NET"})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-served:
	case <-time.After(time.Second):
		t.Fatal("handler did not return after disconnect")
	}

	body := rec.Body.String()
	if !strings.Contains(body, "data: ") || !strings.Contains(body, "position_closed") {
		t.Errorf("unexpected SSE body: %q", body)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}
}
