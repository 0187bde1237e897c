// Package realtime streams decisive scanner outcomes (signals passed,
// positions opened and closed) to dashboard clients over Server-Sent
// Events.
package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// Event is one broadcast message.
type Event struct {
	Event   string      `json:"event"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload"`
}

// Broker fans events out to connected SSE clients. A slow client drops
// messages instead of blocking the publisher.
type Broker struct {
	mu         sync.RWMutex
	clients    map[chan []byte]struct{}
	register   chan chan []byte
	unregister chan chan []byte
	broadcast  chan []byte
}

// NewBroker creates an SSE broker.
func NewBroker() *Broker {
	return &Broker{
		clients:    make(map[chan []byte]struct{}),
		register:   make(chan chan []byte),
		unregister: make(chan chan []byte),
		broadcast:  make(chan []byte, 256),
	}
}

// Run starts the broker loop.
func (b *Broker) Run() {
	for {
		select {
		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = struct{}{}
			b.mu.Unlock()
			log.Printf("SSE client connected, total %d", b.clientCount())

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client)
			}
			b.mu.Unlock()
			log.Printf("SSE client disconnected, total %d", b.clientCount())

		case msg := <-b.broadcast:
			b.mu.RLock()
			for client := range b.clients {
				select {
				case client <- msg:
				default:
					// Slow client, skip this message.
				}
			}
			b.mu.RUnlock()
		}
	}
}

// ServeHTTP handles the SSE endpoint.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientChan := make(chan []byte, 16)
	b.register <- clientChan

	done := r.Context().Done()
	for {
		select {
		case <-done:
			b.unregister <- clientChan
			return
		case msg := <-clientChan:
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// Broadcast queues an event for every connected client. Drops the event
// when the broadcast buffer is full.
func (b *Broker) Broadcast(event string, payload interface{}) {
	msg, err := json.Marshal(Event{Event: event, At: time.Now().UTC(), Payload: payload})
	if err != nil {
		log.Printf("⚠️  Failed to marshal SSE event: %v", err)
		return
	}

	select {
	case b.broadcast <- msg:
	default:
	}
}

func (b *Broker) clientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
