package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tacet/internal/interfaces"
	"github.com/ternarybob/tacet/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// EventStorage implements the EventStorage interface for Badger
type EventStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEventStorage creates a new EventStorage instance
func NewEventStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EventStorage {
	return &EventStorage{
		db:     db,
		logger: logger,
	}
}

func (s *EventStorage) SaveEvent(ctx context.Context, event *models.DetectedEvent) error {
	if event.EventID == "" {
		return fmt.Errorf("event ID is required")
	}

	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now

	if err := s.db.Store().Upsert(event.EventID, event); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

func (s *EventStorage) GetEvent(ctx context.Context, id string) (*models.DetectedEvent, error) {
	var event models.DetectedEvent
	if err := s.db.Store().Get(id, &event); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("event not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &event, nil
}

func (s *EventStorage) ListEvents(ctx context.Context, opts *interfaces.EventListOptions) ([]*models.DetectedEvent, error) {
	query := badgerhold.Where("EventID").Ne("")

	if opts != nil {
		if opts.Entity != "" {
			query = query.And("Entity").Eq(opts.Entity)
		}
		if opts.Type != "" {
			query = query.And("Type").Eq(opts.Type)
		}
		if opts.Status != "" {
			query = query.And("Status").Eq(opts.Status)
		}
		if !opts.Since.IsZero() {
			query = query.And("DetectedAt").Ge(opts.Since)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}
	query = query.SortBy("DetectedAt").Reverse()

	var events []models.DetectedEvent
	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	// Severity ordering is not lexical, filter after the query
	minRank := 0
	if opts != nil && opts.MinSeverity != "" {
		minRank = models.EventSeverityRank(opts.MinSeverity)
	}

	result := make([]*models.DetectedEvent, 0, len(events))
	for i := range events {
		if models.EventSeverityRank(events[i].Severity) < minRank {
			continue
		}
		result = append(result, &events[i])
	}
	return result, nil
}

func (s *EventStorage) GetEventsByEntity(ctx context.Context, entity string) ([]*models.DetectedEvent, error) {
	return s.ListEvents(ctx, &interfaces.EventListOptions{Entity: entity})
}

func (s *EventStorage) GetActiveEvents(ctx context.Context) ([]*models.DetectedEvent, error) {
	var events []models.DetectedEvent
	query := badgerhold.Where("Status").In(models.EventStatusDetected, models.EventStatusTracking)
	if err := s.db.Store().Find(&events, query); err != nil {
		return nil, fmt.Errorf("failed to get active events: %w", err)
	}

	result := make([]*models.DetectedEvent, len(events))
	for i := range events {
		result[i] = &events[i]
	}
	return result, nil
}

func (s *EventStorage) UpdateEventStatus(ctx context.Context, id, status string) error {
	event, err := s.GetEvent(ctx, id)
	if err != nil {
		return err
	}

	event.Status = status
	return s.SaveEvent(ctx, event)
}

func (s *EventStorage) SaveValidation(ctx context.Context, id string, result *models.ValidationResult, correct bool) error {
	event, err := s.GetEvent(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	event.ValidatedAt = &now
	event.ValidationResult = result
	event.PredictionCorrect = &correct
	event.Status = models.EventStatusValidated

	return s.SaveEvent(ctx, event)
}

func (s *EventStorage) DeleteEvent(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.DetectedEvent{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

func (s *EventStorage) CountEvents(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.DetectedEvent{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return int(count), nil
}
