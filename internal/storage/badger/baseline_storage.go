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

// BaselineStorage implements the BaselineStorage interface for Badger
type BaselineStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBaselineStorage creates a new BaselineStorage instance
func NewBaselineStorage(db *BadgerDB, logger arbor.ILogger) interfaces.BaselineStorage {
	return &BaselineStorage{
		db:     db,
		logger: logger,
	}
}

func (s *BaselineStorage) SaveBaseline(ctx context.Context, baseline *models.BaselinePattern) error {
	if baseline.Entity == "" {
		return fmt.Errorf("baseline entity is required")
	}

	now := time.Now().UTC()
	baseline.LastUpdated = &now

	if err := s.db.Store().Upsert(baseline.Entity, baseline); err != nil {
		return fmt.Errorf("failed to save baseline: %w", err)
	}
	return nil
}

func (s *BaselineStorage) GetBaseline(ctx context.Context, entity string) (*models.BaselinePattern, error) {
	var baseline models.BaselinePattern
	if err := s.db.Store().Get(entity, &baseline); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("baseline not found: %s", entity)
		}
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}
	return &baseline, nil
}

func (s *BaselineStorage) ListEntities(ctx context.Context) ([]string, error) {
	var baselines []models.BaselinePattern
	if err := s.db.Store().Find(&baselines, badgerhold.Where("Entity").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list baselines: %w", err)
	}

	entities := make([]string, len(baselines))
	for i := range baselines {
		entities[i] = baselines[i].Entity
	}
	return entities, nil
}

func (s *BaselineStorage) DeleteBaseline(ctx context.Context, entity string) error {
	if err := s.db.Store().Delete(entity, &models.BaselinePattern{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete baseline: %w", err)
	}
	return nil
}
