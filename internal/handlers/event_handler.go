package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacet/internal/interfaces"
	"github.com/ternarybob/tacet/internal/models"
	"github.com/ternarybob/tacet/internal/services/monitor"
)

// EventHandler serves detected events and records validation outcomes.
type EventHandler struct {
	storage interfaces.EventStorage
	monitor *monitor.Service
	logger  arbor.ILogger
}

// NewEventHandler creates the event handler.
func NewEventHandler(storage interfaces.EventStorage, monitorService *monitor.Service, logger arbor.ILogger) *EventHandler {
	return &EventHandler{
		storage: storage,
		monitor: monitorService,
		logger:  logger,
	}
}

// TimelineHandler handles GET /api/events/timeline?entity=
func (h *EventHandler) TimelineHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	entity := r.URL.Query().Get("entity")
	if entity == "" {
		WriteError(w, http.StatusBadRequest, "Missing required query parameter: entity")
		return
	}

	timeline, ok := h.monitor.Timeline(entity)
	if !ok {
		WriteError(w, http.StatusNotFound, "No timeline for entity: "+entity)
		return
	}
	WriteJSON(w, http.StatusOK, timeline)
}

// ListHandler handles GET /api/events with entity, type, status,
// min_severity and since_hours filters.
func (h *EventHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	opts := &interfaces.EventListOptions{
		Entity:      r.URL.Query().Get("entity"),
		Type:        models.EventType(r.URL.Query().Get("type")),
		Status:      r.URL.Query().Get("status"),
		MinSeverity: models.EventSeverity(r.URL.Query().Get("min_severity")),
		Limit:       QueryInt(r, "limit", 100),
		Offset:      QueryInt(r, "offset", 0),
	}
	if hours := QueryInt(r, "since_hours", 0); hours > 0 {
		opts.Since = time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	}

	events, err := h.storage.ListEvents(r.Context(), opts)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to list events: "+err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(events),
		"events": events,
	})
}

// EventRoutes dispatches GET /api/events/{id}, GET /api/events/{id}/alert and
// POST /api/events/{id}/validate
func (h *EventHandler) EventRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/events/")

	switch {
	case strings.HasSuffix(path, "/alert"):
		h.alert(w, r, strings.TrimSuffix(path, "/alert"))
	case strings.HasSuffix(path, "/validate"):
		h.validate(w, r, strings.TrimSuffix(path, "/validate"))
	default:
		h.get(w, r, path)
	}
}

func (h *EventHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	event, err := h.storage.GetEvent(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, event)
}

func (h *EventHandler) alert(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	event, err := h.storage.GetEvent(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, event.ToAlert())
}

type validateEventRequest struct {
	ObservedDirection string  `json:"observed_direction"`
	ObservedMovePct   float64 `json:"observed_move_pct"`
	Notes             string  `json:"notes,omitempty"`
}

func (h *EventHandler) validate(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req validateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	event, err := h.storage.GetEvent(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	result := &models.ValidationResult{
		CheckedAt:         time.Now().UTC(),
		ObservedDirection: req.ObservedDirection,
		ObservedMovePct:   req.ObservedMovePct,
		Notes:             req.Notes,
	}
	correct := req.ObservedDirection != "" &&
		req.ObservedDirection == event.Classification.PredictedDirection

	if err := h.storage.SaveValidation(r.Context(), id, result, correct); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to save validation: "+err.Error())
		return
	}

	h.logger.Info().
		Str("event_id", id).
		Bool("correct", correct).
		Msg("Event validation recorded")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"event_id":           id,
		"prediction_correct": correct,
	})
}
