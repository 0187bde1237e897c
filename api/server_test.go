package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"
)

func testServer() *Server {
	health := func() map[string]interface{} {
		return map[string]interface{}{"dropped_trades": 0}
	}
	positions := func(account string) []PositionView {
		if account != "A" {
			return []PositionView{}
		}
		return []PositionView{{
			Symbol:     "NET",
			EntryTime:  time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC),
			EntryPrice: 100.0,
			Shares:     100,
			Score:      12,
			State:      "holding",
		}}
	}
	return NewServer(nil, nil, health, positions)
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if _, ok := body["dropped_trades"]; !ok {
		t.Error("health counters missing from body")
	}
}

func TestPositionsEndpoint(t *testing.T) {
	s := testServer()

	rec := httptest.NewRecorder()
	s.handleGetPositions(rec, httptest.NewRequest("GET", "/api/positions?account=A", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var views []PositionView
	if err := json.NewDecoder(rec.Body).Decode(&views); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(views) != 1 || views[0].Symbol != "NET" {
		t.Errorf("views = %+v", views)
	}

	// Missing account defaults to A.
	rec = httptest.NewRecorder()
	s.handleGetPositions(rec, httptest.NewRequest("GET", "/api/positions", nil))
	views = nil
	if err := json.NewDecoder(rec.Body).Decode(&views); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if len(views) != 1 {
		t.Errorf("default account views = %+v", views)
	}
}

func TestPositionsEndpointRejectsUnknownAccount(t *testing.T) {
	s := testServer()
	rec := httptest.NewRecorder()
	s.handleGetPositions(rec, httptest.NewRequest("GET", "/api/positions?account=C", nil))
	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
