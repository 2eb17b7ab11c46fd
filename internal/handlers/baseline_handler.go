package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacet/internal/interfaces"
	"github.com/ternarybob/tacet/internal/services/monitor"
)

// BaselineHandler serves baseline patterns and rebuild requests.
type BaselineHandler struct {
	monitor *monitor.Service
	storage interfaces.BaselineStorage
	logger  arbor.ILogger
}

// NewBaselineHandler creates the baseline handler.
func NewBaselineHandler(monitorService *monitor.Service, storage interfaces.BaselineStorage, logger arbor.ILogger) *BaselineHandler {
	return &BaselineHandler{
		monitor: monitorService,
		storage: storage,
		logger:  logger,
	}
}

// ListHandler handles GET /api/baselines
func (h *BaselineHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	entities, err := h.storage.ListEntities(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list baselines: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(entities),
		"entities": entities,
	})
}

// EntityHandler handles GET /api/baselines/{entity} and
// POST /api/baselines/{entity}/rebuild
func (h *BaselineHandler) EntityHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/baselines/")

	if strings.HasSuffix(path, "/rebuild") {
		entity := strings.TrimSuffix(path, "/rebuild")
		h.rebuild(w, r, entity)
		return
	}

	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	baseline, err := h.storage.GetBaseline(r.Context(), path)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, baseline)
}

func (h *BaselineHandler) rebuild(w http.ResponseWriter, r *http.Request, entity string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if entity == "" {
		WriteError(w, http.StatusBadRequest, "Entity is required")
		return
	}

	if err := h.monitor.RebuildBaseline(r.Context(), entity); err != nil {
		h.logger.Warn().Err(err).Str("entity", entity).Msg("Baseline rebuild failed")
		WriteError(w, http.StatusUnprocessableEntity, "Rebuild failed: "+err.Error())
		return
	}

	WriteSuccess(w, "Baseline rebuilt for "+entity)
}
