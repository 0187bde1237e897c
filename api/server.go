// Package api is the read-only ops surface: health, open positions, recent
// signals and a server-sent-events stream of decisive outcomes. Nothing
// here sits on the trading hot path.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"uoa-scanner/database"
	"uoa-scanner/realtime"
)

// PositionView is the JSON shape of one open position.
type PositionView struct {
	Symbol     string    `json:"symbol"`
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	Shares     int       `json:"shares"`
	Score      int       `json:"score"`
	State      string    `json:"state"`
}

// HealthFunc supplies the engine counters reported by /health.
type HealthFunc func() map[string]interface{}

// PositionsFunc lists one account's open positions.
type PositionsFunc func(account string) []PositionView

// Server handles HTTP API requests
type Server struct {
	repo      *database.Repository
	events    *realtime.Broker
	health    HealthFunc
	positions PositionsFunc
}

// NewServer creates a new API server instance
func NewServer(repo *database.Repository, events *realtime.Broker, health HealthFunc, positions PositionsFunc) *Server {
	return &Server{
		repo:      repo,
		events:    events,
		health:    health,
		positions: positions,
	}
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()

	mux.Handle("GET /api/events", s.events) // SSE endpoint
	mux.HandleFunc("GET /api/positions", s.handleGetPositions)
	mux.HandleFunc("GET /api/signals/recent", s.handleGetRecentSignals)
	mux.HandleFunc("GET /api/evaluations/recent", s.handleGetRecentEvaluations)
	mux.HandleFunc("GET /health", s.handleHealth)

	handler := s.loggingMiddleware(mux)

	serverAddr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Printf("🚀 API server starting on %s", serverAddr)
	return http.ListenAndServe(serverAddr, handler)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	}
	for k, v := range s.health() {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		account = "A"
	}
	if account != "A" && account != "B" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "account must be A or B"})
		return
	}
	writeJSON(w, http.StatusOK, s.positions(account))
}

func (s *Server) handleGetRecentSignals(w http.ResponseWriter, r *http.Request) {
	signals, err := s.repo.RecentActiveSignals(50)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, signals)
}

func (s *Server) handleGetRecentEvaluations(w http.ResponseWriter, r *http.Request) {
	evals, err := s.repo.RecentEvaluations(100)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, evals)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("⚠️  Failed to encode response: %v", err)
	}
}
