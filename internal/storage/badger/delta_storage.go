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

// DeltaStorage implements the DeltaStorage interface for Badger
type DeltaStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDeltaStorage creates a new DeltaStorage instance
func NewDeltaStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DeltaStorage {
	return &DeltaStorage{
		db:     db,
		logger: logger,
	}
}

func (s *DeltaStorage) SaveDelta(ctx context.Context, delta *models.Delta) error {
	if delta.DeltaID == "" {
		return fmt.Errorf("delta ID is required")
	}

	if err := s.db.Store().Upsert(delta.DeltaID, delta); err != nil {
		return fmt.Errorf("failed to save delta: %w", err)
	}
	return nil
}

func (s *DeltaStorage) SaveDeltas(ctx context.Context, deltas []*models.Delta) error {
	for _, delta := range deltas {
		if err := s.SaveDelta(ctx, delta); err != nil {
			return err
		}
	}
	return nil
}

func (s *DeltaStorage) GetDelta(ctx context.Context, id string) (*models.Delta, error) {
	var delta models.Delta
	if err := s.db.Store().Get(id, &delta); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("delta not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get delta: %w", err)
	}
	return &delta, nil
}

func (s *DeltaStorage) ListDeltas(ctx context.Context, opts *interfaces.DeltaListOptions) ([]*models.Delta, error) {
	query := badgerhold.Where("DeltaID").Ne("")

	if opts != nil {
		if opts.Entity != "" {
			query = query.And("Entity").Eq(opts.Entity)
		}
		if opts.Type != "" {
			query = query.And("Type").Eq(opts.Type)
		}
		if !opts.Since.IsZero() {
			query = query.And("DetectedAt").Ge(opts.Since)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
	}
	query = query.SortBy("DetectedAt").Reverse()

	var deltas []models.Delta
	if err := s.db.Store().Find(&deltas, query); err != nil {
		return nil, fmt.Errorf("failed to list deltas: %w", err)
	}

	minRank := 0
	if opts != nil && opts.MinSeverity != "" {
		minRank = models.SeverityRank(opts.MinSeverity)
	}

	result := make([]*models.Delta, 0, len(deltas))
	for i := range deltas {
		if models.SeverityRank(deltas[i].Severity) < minRank {
			continue
		}
		result = append(result, &deltas[i])
	}
	return result, nil
}

func (s *DeltaStorage) DeleteDeltasBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var stale []models.Delta
	if err := s.db.Store().Find(&stale, badgerhold.Where("DetectedAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to find stale deltas: %w", err)
	}

	deleted := 0
	for i := range stale {
		if err := s.db.Store().Delete(stale[i].DeltaID, &models.Delta{}); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return deleted, fmt.Errorf("failed to delete delta: %w", err)
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Debug().Int("deleted", deleted).Msg("Removed stale deltas")
	}
	return deleted, nil
}

func (s *DeltaStorage) CountDeltas(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Delta{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count deltas: %w", err)
	}
	return int(count), nil
}
