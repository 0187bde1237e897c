package app

import (
	"sync"
	"testing"
)

type fakePublisher struct {
	mu       sync.Mutex
	events   []string
	payloads []map[string]interface{}
}

func (p *fakePublisher) Broadcast(event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	fields, _ := payload.(map[string]interface{})
	p.payloads = append(p.payloads, fields)
}

func TestPositionOpenedReachesDashboardStream(t *testing.T) {
	pub := &fakePublisher{}
	o := newOutcomeFanout(nil, pub)

	o.PositionOpened("A", "NET", 100, 100.0, 12)

	if len(pub.events) != 1 || pub.events[0] != "position_opened" {
		t.Fatalf("events = %v, want [position_opened]", pub.events)
	}
	fields := pub.payloads[0]
	if fields["account"] != "A" || fields["symbol"] != "NET" || fields["shares"] != 100 {
		t.Errorf("unexpected payload: %v", fields)
	}
}

func TestPositionClosedReachesDashboardStream(t *testing.T) {
	pub := &fakePublisher{}
	o := newOutcomeFanout(nil, pub)

	o.PositionClosed("B", "NET", "hard_stop", -201.0, -0.0201)

	if len(pub.events) != 1 || pub.events[0] != "position_closed" {
		t.Fatalf("events = %v, want [position_closed]", pub.events)
	}
	fields := pub.payloads[0]
	if fields["reason"] != "hard_stop" {
		t.Errorf("reason = %v, want hard_stop", fields["reason"])
	}
	if fields["pnl"] != -201.0 || fields["pnl_pct"] != -0.0201 {
		t.Errorf("unexpected pnl fields: %v", fields)
	}
}
