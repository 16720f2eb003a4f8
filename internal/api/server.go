// Package api exposes the monitor's state over HTTP: the latest snapshot,
// the rolling history, the daily aggregates, the offset prediction and the
// per-subsystem diagnostics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/VectorBarks/smart-climate-sub001/internal/climate"
	"github.com/VectorBarks/smart-climate-sub001/internal/diagnostics"
	"github.com/VectorBarks/smart-climate-sub001/internal/monitor"
)

const defaultHistoryMinutes = 60

// Server provides the HTTP API for the smart climate companion.
type Server struct {
	monitor  *monitor.Monitor
	registry *diagnostics.Registry
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates an API server bound to the given port.
func NewServer(mon *monitor.Monitor, registry *diagnostics.Registry, logger *zap.Logger, port int) *Server {
	s := &Server{
		monitor:  mon,
		registry: registry,
		logger:   logger.Named("api"),
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/state", s.handleState).Methods(http.MethodGet)
	router.HandleFunc("/api/history", s.handleHistory).Methods(http.MethodGet)
	router.HandleFunc("/api/daily", s.handleDaily).Methods(http.MethodGet)
	router.HandleFunc("/api/offset", s.handleOffset).Methods(http.MethodGet)
	router.HandleFunc("/api/diagnostics", s.handleDiagnostics).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handlers.LoggingHandler(os.Stdout, router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// StateResponse is the JSON shape of the latest-state endpoint.
type StateResponse struct {
	Snapshot climate.Snapshot       `json:"snapshot"`
	Triggers []string               `json:"triggers"`
	Events   []monitor.TriggerEvent `json:"events"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, triggers, ok := s.monitor.LastSnapshot()
	if !ok {
		http.Error(w, "no snapshot yet", http.StatusServiceUnavailable)
		return
	}

	if triggers == nil {
		triggers = []string{}
	}
	s.writeJSON(w, StateResponse{
		Snapshot: snap,
		Triggers: triggers,
		Events:   s.monitor.RecentEvents(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	minutes := defaultHistoryMinutes
	if raw := r.URL.Query().Get("minutes"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "minutes must be a positive integer", http.StatusBadRequest)
			return
		}
		minutes = parsed
	}

	entries := s.monitor.History(minutes)
	if entries == nil {
		entries = []climate.BufferEntry{}
	}
	s.writeJSON(w, entries)
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.monitor.Daily())
}

func (s *Server) handleOffset(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.monitor.Prediction())
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.registry.Collect())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// Start begins serving HTTP requests in the background.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP API server", zap.String("addr", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}

// Handler exposes the configured handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
