package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacet/internal/common"
	"github.com/ternarybob/tacet/internal/interfaces"
	"github.com/ternarybob/tacet/internal/services/monitor"
)

// StatusHandler reports monitor and storage state.
type StatusHandler struct {
	monitor *monitor.Service
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(monitorService *monitor.Service, storage interfaces.StorageManager, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		monitor: monitorService,
		storage: storage,
		logger:  logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	status := h.monitor.Status(r.Context())

	events, err := h.storage.EventStorage().CountEvents(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count events")
	}
	deltas, err := h.storage.DeltaStorage().CountDeltas(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count deltas")
	}
	snapshots, err := h.storage.SnapshotStorage().CountSnapshots(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count snapshots")
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"monitor": status,
		"storage": map[string]int{
			"events":    events,
			"deltas":    deltas,
			"snapshots": snapshots,
		},
		"version": common.GetFullVersion(),
	})
}

// VersionHandler returns version information
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"git_commit": common.GetGitCommit(),
	})
}

// HealthHandler returns health check status
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// NotFoundHandler handles 404 errors with JSON response
func (h *StatusHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
