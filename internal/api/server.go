package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"lightzone/internal/zone"

	"go.uber.org/zap"
)

// Server exposes the zone status registry over HTTP for dashboards and
// health checks.
type Server struct {
	registry *zone.Registry
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates an API server on the given port
func NewServer(registry *zone.Registry, logger *zap.Logger, port int) *Server {
	s := &Server{
		registry: registry,
		logger:   logger.Named("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/zones", s.handleZones)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// ZonesResponse is the JSON shape of the zones endpoint
type ZonesResponse struct {
	Zones []zone.StatusSnapshot `json:"zones"`
}

// handleZones returns the latest snapshot of every zone
func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snapshots := s.registry.All()
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Zone < snapshots[j].Zone
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ZonesResponse{Zones: snapshots}); err != nil {
		s.logger.Error("Failed to encode zones response", zap.Error(err))
	}
}

// handleHealth is a liveness probe
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Start begins serving in a background goroutine
func (s *Server) Start() {
	go func() {
		s.logger.Info("API server listening", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts the server down
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("API server shutdown failed", zap.Error(err))
	}
}
