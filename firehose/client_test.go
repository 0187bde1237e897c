package firehose

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// feedServer emulates the firehose handshake: connected status, auth check,
// subscribe ack, then whatever frames the script holds.
func feedServer(t *testing.T, authStatus string, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`[{"ev":"status","status":"connected","message":"Connected Successfully"}]`))

		var auth action
		if err := conn.ReadJSON(&auth); err != nil || auth.Action != "auth" {
			t.Errorf("expected auth action, got %+v err=%v", auth, err)
			return
		}
		conn.WriteMessage(websocket.TextMessage, []byte(`[{"ev":"status","status":"`+authStatus+`"}]`))
		if authStatus != "auth_success" {
			return
		}

		var sub action
		if err := conn.ReadJSON(&sub); err != nil || sub.Action != "subscribe" {
			t.Errorf("expected subscribe action, got %+v err=%v", sub, err)
			return
		}

		for _, f := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		time.Sleep(50 * time.Millisecond)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientReadsTrades(t *testing.T) {
	srv := feedServer(t, "auth_success", []string{
		`[{"ev":"T","sym":"O:AAPL260116C00250000","p":5.25,"s":40,"t":1756130400000000000,"c":[14]},` +
			`{"ev":"T","sym":"O:TSLA260116P00200000","p":3.10,"s":10,"t":1756130401000000000,"c":[]}]`,
	})
	defer srv.Close()

	c := NewClient(wsURL(srv), "test-key")
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close()

	trades, err := c.ReadTrades()
	if err != nil {
		t.Fatalf("ReadTrades failed: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}

	first := trades[0]
	if first.Symbol != "O:AAPL260116C00250000" {
		t.Errorf("wrong symbol: %s", first.Symbol)
	}
	if first.Price != 5.25 || first.Size != 40 {
		t.Errorf("wrong price/size: %v/%v", first.Price, first.Size)
	}
	if !first.IsSweep() {
		t.Error("condition 14 should mark a sweep")
	}
	if trades[1].IsSweep() {
		t.Error("empty conditions should not mark a sweep")
	}

	want := time.Unix(0, 1756130400000000000)
	if !first.Time().Equal(want) {
		t.Errorf("timestamp mismatch: got %v want %v", first.Time(), want)
	}
}

func TestClientSkipsStatusFrames(t *testing.T) {
	srv := feedServer(t, "auth_success", []string{
		`[{"ev":"status","status":"success","message":"subscribed to: T.*"}]`,
		`[{"ev":"T","sym":"O:SPY260116C00450000","p":1.00,"s":5,"t":1756130400000000000}]`,
	})
	defer srv.Close()

	c := NewClient(wsURL(srv), "test-key")
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer c.Close()

	trades, err := c.ReadTrades()
	if err != nil {
		t.Fatalf("ReadTrades failed: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("status-only batch should yield no trades, got %d", len(trades))
	}

	trades, err = c.ReadTrades()
	if err != nil {
		t.Fatalf("second ReadTrades failed: %v", err)
	}
	if len(trades) != 1 || trades[0].Symbol != "O:SPY260116C00450000" {
		t.Fatalf("unexpected trades: %+v", trades)
	}
}

func TestClientAuthRejected(t *testing.T) {
	srv := feedServer(t, "auth_failed", nil)
	defer srv.Close()

	c := NewClient(wsURL(srv), "bad-key")
	if err := c.Connect(); err == nil {
		t.Fatal("expected auth failure")
	}
}

func TestClientMaxConnections(t *testing.T) {
	srv := feedServer(t, "max_connections", nil)
	defer srv.Close()

	c := NewClient(wsURL(srv), "test-key")
	err := c.Connect()
	if !errors.Is(err, ErrMaxConnections) {
		t.Fatalf("expected ErrMaxConnections, got %v", err)
	}
}

func TestTradeMessageDecode(t *testing.T) {
	raw := `{"ev":"T","sym":"O:NVDA260116C00900000","p":12.5,"s":100,"t":1756130400123456789,"c":[14,37]}`
	var m TradeMessage
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if m.Event != "T" || m.Size != 100 || !m.IsSweep() {
		t.Errorf("unexpected decode: %+v", m)
	}
}
