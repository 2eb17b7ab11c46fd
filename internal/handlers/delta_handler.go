package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacet/internal/interfaces"
	"github.com/ternarybob/tacet/internal/models"
	"github.com/ternarybob/tacet/internal/services/monitor"
)

// DeltaHandler serves detected deltas and their statistics.
type DeltaHandler struct {
	monitor *monitor.Service
	storage interfaces.DeltaStorage
	logger  arbor.ILogger
}

// NewDeltaHandler creates the delta handler.
func NewDeltaHandler(monitorService *monitor.Service, storage interfaces.DeltaStorage, logger arbor.ILogger) *DeltaHandler {
	return &DeltaHandler{
		monitor: monitorService,
		storage: storage,
		logger:  logger,
	}
}

// ListHandler handles GET /api/deltas with entity, type, min_severity and
// since_hours filters.
func (h *DeltaHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	opts := &interfaces.DeltaListOptions{
		Entity:      r.URL.Query().Get("entity"),
		Type:        models.DeltaType(r.URL.Query().Get("type")),
		MinSeverity: models.DeltaSeverity(r.URL.Query().Get("min_severity")),
		Limit:       QueryInt(r, "limit", 100),
	}
	if hours := QueryInt(r, "since_hours", 0); hours > 0 {
		opts.Since = time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	}

	deltas, err := h.storage.ListDeltas(r.Context(), opts)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list deltas: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(deltas),
		"deltas": deltas,
	})
}

// StatsHandler handles GET /api/deltas/stats?entity=X using the detector's
// in-memory recent window.
func (h *DeltaHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	entity := r.URL.Query().Get("entity")
	if entity == "" {
		WriteError(w, http.StatusBadRequest, "Query parameter 'entity' is required")
		return
	}

	WriteJSON(w, http.StatusOK, h.monitor.Detector().DeltaStatistics(entity))
}
