package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tacet/internal/common"
	"github.com/ternarybob/tacet/internal/interfaces"
	"github.com/ternarybob/tacet/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// SnapshotStorage implements the SnapshotStorage interface for Badger
type SnapshotStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSnapshotStorage creates a new SnapshotStorage instance
func NewSnapshotStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SnapshotStorage {
	return &SnapshotStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SnapshotStorage) SaveSnapshot(ctx context.Context, snapshot *models.DiscourseSnapshot) error {
	if snapshot.Entity == "" {
		return fmt.Errorf("snapshot entity is required")
	}
	if snapshot.SnapshotID == "" {
		snapshot.SnapshotID = common.NewSnapshotID()
	}

	if err := s.db.Store().Upsert(snapshot.SnapshotID, snapshot); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *SnapshotStorage) GetSnapshot(ctx context.Context, id string) (*models.DiscourseSnapshot, error) {
	var snapshot models.DiscourseSnapshot
	if err := s.db.Store().Get(id, &snapshot); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("snapshot not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &snapshot, nil
}

func (s *SnapshotStorage) GetSnapshotsByEntity(ctx context.Context, entity string, since time.Time) ([]*models.DiscourseSnapshot, error) {
	query := badgerhold.Where("Entity").Eq(entity)
	if !since.IsZero() {
		query = query.And("WindowStart").Ge(since)
	}
	query = query.SortBy("WindowStart")

	var snapshots []models.DiscourseSnapshot
	if err := s.db.Store().Find(&snapshots, query); err != nil {
		return nil, fmt.Errorf("failed to get snapshots: %w", err)
	}

	result := make([]*models.DiscourseSnapshot, len(snapshots))
	for i := range snapshots {
		result[i] = &snapshots[i]
	}
	return result, nil
}

func (s *SnapshotStorage) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	var stale []models.DiscourseSnapshot
	if err := s.db.Store().Find(&stale, badgerhold.Where("WindowEnd").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to find stale snapshots: %w", err)
	}

	deleted := 0
	for i := range stale {
		if err := s.db.Store().Delete(stale[i].SnapshotID, &models.DiscourseSnapshot{}); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return deleted, fmt.Errorf("failed to delete snapshot: %w", err)
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Debug().Int("deleted", deleted).Msg("Removed stale snapshots")
	}
	return deleted, nil
}

func (s *SnapshotStorage) CountSnapshots(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.DiscourseSnapshot{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return int(count), nil
}
