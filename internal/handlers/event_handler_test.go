package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/tacet/internal/common"
	"github.com/ternarybob/tacet/internal/interfaces"
	"github.com/ternarybob/tacet/internal/models"
)

// mockEventStorage implements interfaces.EventStorage for testing
type mockEventStorage struct {
	getEventFunc       func(ctx context.Context, id string) (*models.DetectedEvent, error)
	listEventsFunc     func(ctx context.Context, opts *interfaces.EventListOptions) ([]*models.DetectedEvent, error)
	saveValidationFunc func(ctx context.Context, id string, result *models.ValidationResult, correct bool) error
}

func (m *mockEventStorage) SaveEvent(ctx context.Context, event *models.DetectedEvent) error {
	return nil
}

func (m *mockEventStorage) GetEvent(ctx context.Context, id string) (*models.DetectedEvent, error) {
	if m.getEventFunc != nil {
		return m.getEventFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockEventStorage) ListEvents(ctx context.Context, opts *interfaces.EventListOptions) ([]*models.DetectedEvent, error) {
	if m.listEventsFunc != nil {
		return m.listEventsFunc(ctx, opts)
	}
	return nil, nil
}

func (m *mockEventStorage) GetEventsByEntity(ctx context.Context, entity string) ([]*models.DetectedEvent, error) {
	return nil, nil
}

func (m *mockEventStorage) GetActiveEvents(ctx context.Context) ([]*models.DetectedEvent, error) {
	return nil, nil
}

func (m *mockEventStorage) UpdateEventStatus(ctx context.Context, id, status string) error {
	return nil
}

func (m *mockEventStorage) SaveValidation(ctx context.Context, id string, result *models.ValidationResult, correct bool) error {
	if m.saveValidationFunc != nil {
		return m.saveValidationFunc(ctx, id, result, correct)
	}
	return nil
}

func (m *mockEventStorage) DeleteEvent(ctx context.Context, id string) error {
	return nil
}

func (m *mockEventStorage) CountEvents(ctx context.Context) (int, error) {
	return 0, nil
}

func createTestEvent(id, entity string) *models.DetectedEvent {
	return &models.DetectedEvent{
		EventID: id,
		Entity:  entity,
		Type:    models.EventInformationSuppression,
		Classification: models.EventClassification{
			PrimaryType:        models.EventInformationSuppression,
			PrimaryConfidence:  0.8,
			Severity:           models.EventSignificant,
			PredictedDirection: "down",
		},
		Title:       "Potential information suppression for " + entity,
		Description: "Topic earnings absent from discourse",
		Severity:    models.EventSignificant,
		Confidence:  0.8,
		Status:      models.EventStatusDetected,
		DetectedAt:  time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}
}

func TestEventListHandler(t *testing.T) {
	storage := &mockEventStorage{
		listEventsFunc: func(ctx context.Context, opts *interfaces.EventListOptions) ([]*models.DetectedEvent, error) {
			if opts.Entity != "ticker:ACME" {
				t.Errorf("expected entity filter ticker:ACME, got %q", opts.Entity)
			}
			if opts.Limit != 25 {
				t.Errorf("expected limit 25, got %d", opts.Limit)
			}
			return []*models.DetectedEvent{createTestEvent("event_1", "ticker:ACME")}, nil
		},
	}
	handler := NewEventHandler(storage, nil, common.GetLogger())

	req := httptest.NewRequest("GET", "/api/events?entity=ticker:ACME&limit=25", nil)
	rec := httptest.NewRecorder()
	handler.ListHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["count"].(float64) != 1 {
		t.Errorf("expected count 1, got %v", body["count"])
	}
}

func TestEventListHandlerRejectsPost(t *testing.T) {
	handler := NewEventHandler(&mockEventStorage{}, nil, common.GetLogger())

	req := httptest.NewRequest("POST", "/api/events", nil)
	rec := httptest.NewRecorder()
	handler.ListHandler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestEventGetHandler(t *testing.T) {
	storage := &mockEventStorage{
		getEventFunc: func(ctx context.Context, id string) (*models.DetectedEvent, error) {
			if id != "event_1" {
				t.Errorf("expected id event_1, got %q", id)
			}
			return createTestEvent("event_1", "ticker:ACME"), nil
		},
	}
	handler := NewEventHandler(storage, nil, common.GetLogger())

	req := httptest.NewRequest("GET", "/api/events/event_1", nil)
	rec := httptest.NewRecorder()
	handler.EventRoutes(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var event models.DetectedEvent
	if err := json.Unmarshal(rec.Body.Bytes(), &event); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if event.EventID != "event_1" {
		t.Errorf("expected event_1, got %q", event.EventID)
	}
}

func TestEventAlertHandler(t *testing.T) {
	storage := &mockEventStorage{
		getEventFunc: func(ctx context.Context, id string) (*models.DetectedEvent, error) {
			return createTestEvent(id, "ticker:ACME"), nil
		},
	}
	handler := NewEventHandler(storage, nil, common.GetLogger())

	req := httptest.NewRequest("GET", "/api/events/event_1/alert", nil)
	rec := httptest.NewRecorder()
	handler.EventRoutes(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var alert models.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &alert); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if alert.EventID != "event_1" {
		t.Errorf("expected event_1, got %q", alert.EventID)
	}
	if alert.Confidence != "80%" {
		t.Errorf("expected confidence 80%%, got %q", alert.Confidence)
	}
}

func TestEventValidateHandler(t *testing.T) {
	var savedCorrect bool
	var savedResult *models.ValidationResult

	storage := &mockEventStorage{
		getEventFunc: func(ctx context.Context, id string) (*models.DetectedEvent, error) {
			return createTestEvent(id, "ticker:ACME"), nil
		},
		saveValidationFunc: func(ctx context.Context, id string, result *models.ValidationResult, correct bool) error {
			savedCorrect = correct
			savedResult = result
			return nil
		},
	}
	handler := NewEventHandler(storage, nil, common.GetLogger())

	body := `{"observed_direction": "down", "observed_move_pct": -3.2, "notes": "earnings miss"}`
	req := httptest.NewRequest("POST", "/api/events/event_1/validate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.EventRoutes(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !savedCorrect {
		t.Error("expected prediction to be marked correct for matching direction")
	}
	if savedResult == nil || savedResult.ObservedMovePct != -3.2 {
		t.Errorf("expected observed move -3.2, got %+v", savedResult)
	}
}

func TestEventValidateHandlerWrongDirection(t *testing.T) {
	var savedCorrect bool

	storage := &mockEventStorage{
		getEventFunc: func(ctx context.Context, id string) (*models.DetectedEvent, error) {
			return createTestEvent(id, "ticker:ACME"), nil
		},
		saveValidationFunc: func(ctx context.Context, id string, result *models.ValidationResult, correct bool) error {
			savedCorrect = correct
			return nil
		},
	}
	handler := NewEventHandler(storage, nil, common.GetLogger())

	body := `{"observed_direction": "up", "observed_move_pct": 1.5}`
	req := httptest.NewRequest("POST", "/api/events/event_1/validate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.EventRoutes(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if savedCorrect {
		t.Error("expected prediction to be marked incorrect for mismatched direction")
	}
}

func TestEventValidateHandlerInvalidJSON(t *testing.T) {
	handler := NewEventHandler(&mockEventStorage{}, nil, common.GetLogger())

	req := httptest.NewRequest("POST", "/api/events/event_1/validate", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.EventRoutes(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/events?limit=50&bad=abc", nil)

	if got := QueryInt(req, "limit", 100); got != 50 {
		t.Errorf("expected 50, got %d", got)
	}
	if got := QueryInt(req, "bad", 7); got != 7 {
		t.Errorf("expected fallback 7 for non-numeric value, got %d", got)
	}
	if got := QueryInt(req, "missing", 9); got != 9 {
		t.Errorf("expected fallback 9 for missing value, got %d", got)
	}
}
