// Package firehose consumes the real-time options trade feed over WebSocket:
// every trade print on every options contract, delivered as JSON arrays.
package firehose

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Subscribe to every options trade print.
	allTradesChannel = "T.*"

	handshakeTimeout = 10 * time.Second
)

// ErrMaxConnections is returned when the feed rejects the session because
// another connection already holds the account's slot.
var ErrMaxConnections = errors.New("max_connections")

// TradeMessage is one decoded feed event. Trade events carry ev "T"; status
// events carry ev "status" with Status/Message set instead.
type TradeMessage struct {
	Event      string  `json:"ev"`
	Symbol     string  `json:"sym"`
	Price      float64 `json:"p"`
	Size       int     `json:"s"`
	Timestamp  int64   `json:"t"` // epoch nanoseconds
	Conditions []int   `json:"c"`

	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
}

// Time converts the nanosecond epoch timestamp.
func (m *TradeMessage) Time() time.Time {
	return time.Unix(0, m.Timestamp)
}

// IsSweep reports whether the print carries the intermarket sweep condition.
func (m *TradeMessage) IsSweep() bool {
	for _, c := range m.Conditions {
		if c == sweepCondition {
			return true
		}
	}
	return false
}

// Condition code for an intermarket sweep print.
const sweepCondition = 14

type action struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// Client is one WebSocket session against the options firehose.
type Client struct {
	url     string
	apiKey  string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewClient creates a client for the given feed URL and API key.
func NewClient(url, apiKey string) *Client {
	return &Client{url: url, apiKey: apiKey}
}

// Connect dials the feed, authenticates and subscribes to all trades. On
// return the session is live and ReadTrades can be called.
func (c *Client) Connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}
	c.conn = conn
	log.Printf("✅ Connected to %s", c.url)

	if err := c.authenticate(); err != nil {
		c.Close()
		return err
	}

	if err := c.send(action{Action: "subscribe", Params: allTradesChannel}); err != nil {
		c.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	log.Printf("📡 Subscribed to %s (all options trades)", allTradesChannel)
	return nil
}

// authenticate sends the auth action and waits for auth_success. The feed
// sends a "connected" status first, then the auth result.
func (c *Client) authenticate() error {
	if err := c.send(action{Action: "auth", Params: c.apiKey}); err != nil {
		return fmt.Errorf("failed to send auth: %w", err)
	}

	for i := 0; i < 5; i++ {
		msgs, err := c.readBatch()
		if err != nil {
			return fmt.Errorf("auth read failed: %w", err)
		}
		for _, m := range msgs {
			if m.Event != "status" {
				continue
			}
			switch m.Status {
			case "auth_success":
				log.Println("🔑 Firehose authenticated")
				return nil
			case "auth_failed":
				return fmt.Errorf("auth rejected: %s", m.Message)
			case "max_connections":
				return ErrMaxConnections
			}
		}
	}
	return fmt.Errorf("no auth response from feed")
}

// ReadTrades reads the next batch and returns only the trade events. Status
// events are handled inline; a max_connections status aborts the session.
func (c *Client) ReadTrades() ([]TradeMessage, error) {
	msgs, err := c.readBatch()
	if err != nil {
		return nil, err
	}

	trades := msgs[:0]
	for _, m := range msgs {
		switch m.Event {
		case "T":
			trades = append(trades, m)
		case "status":
			if m.Status == "max_connections" {
				return nil, ErrMaxConnections
			}
			log.Printf("📶 Firehose status: %s %s", m.Status, m.Message)
		}
	}
	return trades, nil
}

// readBatch reads one frame and decodes the JSON array it carries.
func (c *Client) readBatch() ([]TradeMessage, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("connection is nil")
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var msgs []TradeMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		// Some status frames arrive as a single object.
		var one TradeMessage
		if err2 := json.Unmarshal(data, &one); err2 != nil {
			return nil, fmt.Errorf("failed to decode frame: %w", err)
		}
		msgs = []TradeMessage{one}
	}
	return msgs, nil
}

func (c *Client) send(a action) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("connection is nil")
	}
	return c.conn.WriteJSON(a)
}

// Close closes the WebSocket connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
