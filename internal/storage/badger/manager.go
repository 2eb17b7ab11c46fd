package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tacet/internal/common"
	"github.com/ternarybob/tacet/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	event    interfaces.EventStorage
	delta    interfaces.DeltaStorage
	baseline interfaces.BaselineStorage
	snapshot interfaces.SnapshotStorage
	logger   arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:       db,
		event:    NewEventStorage(db, logger),
		delta:    NewDeltaStorage(db, logger),
		baseline: NewBaselineStorage(db, logger),
		snapshot: NewSnapshotStorage(db, logger),
		logger:   logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// EventStorage returns the event storage interface
func (m *Manager) EventStorage() interfaces.EventStorage {
	return m.event
}

// DeltaStorage returns the delta storage interface
func (m *Manager) DeltaStorage() interfaces.DeltaStorage {
	return m.delta
}

// BaselineStorage returns the baseline storage interface
func (m *Manager) BaselineStorage() interfaces.BaselineStorage {
	return m.baseline
}

// SnapshotStorage returns the snapshot storage interface
func (m *Manager) SnapshotStorage() interfaces.SnapshotStorage {
	return m.snapshot
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
