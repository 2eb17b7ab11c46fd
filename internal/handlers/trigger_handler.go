package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacet/internal/services/monitor"
	"github.com/ternarybob/tacet/internal/triggers"
)

// TriggerHandler manages context triggers over HTTP.
type TriggerHandler struct {
	monitor *monitor.Service
	logger  arbor.ILogger
}

// NewTriggerHandler creates the trigger handler.
func NewTriggerHandler(monitorService *monitor.Service, logger arbor.ILogger) *TriggerHandler {
	return &TriggerHandler{
		monitor: monitorService,
		logger:  logger,
	}
}

// ListHandler handles GET /api/triggers?entity=X
func (h *TriggerHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	entity := r.URL.Query().Get("entity")
	if entity == "" {
		WriteError(w, http.StatusBadRequest, "Query parameter 'entity' is required")
		return
	}

	now := time.Now().UTC()
	manager := h.monitor.TriggerManager()

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"entity":   entity,
		"active":   manager.GetActiveTriggers(entity, now),
		"upcoming": manager.GetUpcomingTriggers(entity, QueryInt(r, "hours_ahead", 48)),
		"summary":  manager.SummarizeActiveTriggers(entity, now),
	})
}

type detectTriggerRequest struct {
	Text   string `json:"text"`
	Entity string `json:"entity"`
	Source string `json:"source"`
}

// DetectHandler handles POST /api/triggers/detect
func (h *TriggerHandler) DetectHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req detectTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	if req.Text == "" || req.Entity == "" {
		WriteError(w, http.StatusBadRequest, "Fields 'text' and 'entity' are required")
		return
	}

	source := triggers.Source(req.Source)
	if req.Source == "" {
		source = triggers.SourceManual
	}

	trigger, ok := h.monitor.DetectTrigger(req.Text, req.Entity, source)
	if !ok {
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"detected": false,
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"detected": true,
		"trigger":  trigger,
	})
}

type earningsTriggerRequest struct {
	Entity         string    `json:"entity"`
	ReleaseTime    time.Time `json:"release_time"`
	RequiredVoices []string  `json:"required_voices,omitempty"`
}

// EarningsHandler handles POST /api/triggers/earnings
func (h *TriggerHandler) EarningsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req earningsTriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	if req.Entity == "" || req.ReleaseTime.IsZero() {
		WriteError(w, http.StatusBadRequest, "Fields 'entity' and 'release_time' are required")
		return
	}

	manager := h.monitor.TriggerManager()
	trigger := manager.CreateEarningsTrigger(req.Entity, req.ReleaseTime, req.RequiredVoices)
	manager.AddTrigger(trigger)

	h.logger.Info().
		Str("entity", req.Entity).
		Str("trigger_id", trigger.TriggerID).
		Msg("Earnings trigger registered")

	WriteJSON(w, http.StatusCreated, trigger)
}
