package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket event stream
	mux.HandleFunc("/api/stream", s.app.StreamHandler.HandleStream)

	// API routes - Snapshot ingestion
	mux.HandleFunc("/api/snapshots", s.app.SnapshotHandler.IngestHandler) // POST - ingest discourse snapshot

	// API routes - Baselines
	mux.HandleFunc("/api/baselines", s.app.BaselineHandler.ListHandler) // GET - list baseline entities
	mux.HandleFunc("/api/baselines/", s.app.BaselineHandler.EntityHandler) // GET /{entity}, POST /{entity}/rebuild

	// API routes - Context triggers
	mux.HandleFunc("/api/triggers", s.app.TriggerHandler.ListHandler)            // GET - active and upcoming triggers
	mux.HandleFunc("/api/triggers/detect", s.app.TriggerHandler.DetectHandler)   // POST - scan text for trigger keywords
	mux.HandleFunc("/api/triggers/earnings", s.app.TriggerHandler.EarningsHandler) // POST - register earnings trigger

	// API routes - Deltas
	mux.HandleFunc("/api/deltas", s.app.DeltaHandler.ListHandler)       // GET - query stored deltas
	mux.HandleFunc("/api/deltas/stats", s.app.DeltaHandler.StatsHandler) // GET - per-entity delta statistics

	// API routes - Detected events
	mux.HandleFunc("/api/events", s.app.EventHandler.ListHandler)              // GET - query detected events
	mux.HandleFunc("/api/events/timeline", s.app.EventHandler.TimelineHandler) // GET - per-entity event timeline
	mux.HandleFunc("/api/events/", s.app.EventHandler.EventRoutes)             // GET /{id}, GET /{id}/alert, POST /{id}/validate

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)

	// Catch-all for unmatched API routes
	mux.HandleFunc("/api/", s.handleAPINotFound)

	return mux
}

// handleAPINotFound returns JSON 404 for unknown API routes
func (s *Server) handleAPINotFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		s.app.StatusHandler.NotFoundHandler(w, r)
		return
	}
	http.NotFound(w, r)
}
