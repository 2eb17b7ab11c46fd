package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/tacet/internal/common"
	"github.com/ternarybob/tacet/internal/models"
	"github.com/ternarybob/tacet/internal/services/monitor"
)

// SnapshotHandler ingests discourse snapshots into the pipeline.
type SnapshotHandler struct {
	monitor  *monitor.Service
	validate *validator.Validate
	limiter  *rate.Limiter
	logger   arbor.ILogger
}

// NewSnapshotHandler creates the ingest handler with rate limiting from config.
func NewSnapshotHandler(monitorService *monitor.Service, config *common.IngestConfig, logger arbor.ILogger) *SnapshotHandler {
	limit := rate.Inf
	burst := 1
	if config != nil && config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
		burst = config.Burst
		if burst <= 0 {
			burst = 1
		}
	}

	return &SnapshotHandler{
		monitor:  monitorService,
		validate: validator.New(),
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
	}
}

// IngestHandler handles POST /api/snapshots
func (h *SnapshotHandler) IngestHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if !h.limiter.Allow() {
		WriteError(w, http.StatusTooManyRequests, "Ingest rate limit exceeded")
		return
	}

	var snapshot models.DiscourseSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snapshot); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	if err := h.validate.Struct(snapshot); err != nil {
		WriteError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	deltas, err := h.monitor.ProcessSnapshot(r.Context(), &snapshot)
	if err != nil {
		h.logger.Error().Err(err).Str("entity", snapshot.Entity).Msg("Snapshot processing failed")
		WriteError(w, http.StatusInternalServerError, "Processing failed: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"snapshot_id": snapshot.SnapshotID,
		"entity":      snapshot.Entity,
		"delta_count": len(deltas),
		"deltas":      deltas,
	})
}
