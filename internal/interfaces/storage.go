package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/tacet/internal/models"
)

// EventListOptions filters and pages event queries.
type EventListOptions struct {
	Entity      string
	Type        models.EventType
	MinSeverity models.EventSeverity
	Status      string
	Since       time.Time
	Limit       int
	Offset      int
}

// EventStorage - interface for detected event persistence
type EventStorage interface {
	SaveEvent(ctx context.Context, event *models.DetectedEvent) error
	GetEvent(ctx context.Context, id string) (*models.DetectedEvent, error)
	ListEvents(ctx context.Context, opts *EventListOptions) ([]*models.DetectedEvent, error)
	GetEventsByEntity(ctx context.Context, entity string) ([]*models.DetectedEvent, error)
	GetActiveEvents(ctx context.Context) ([]*models.DetectedEvent, error)
	UpdateEventStatus(ctx context.Context, id, status string) error
	SaveValidation(ctx context.Context, id string, result *models.ValidationResult, correct bool) error
	DeleteEvent(ctx context.Context, id string) error
	CountEvents(ctx context.Context) (int, error)
}

// DeltaListOptions filters and pages delta queries.
type DeltaListOptions struct {
	Entity      string
	Type        models.DeltaType
	MinSeverity models.DeltaSeverity
	Since       time.Time
	Limit       int
}

// DeltaStorage - interface for delta persistence
type DeltaStorage interface {
	SaveDelta(ctx context.Context, delta *models.Delta) error
	SaveDeltas(ctx context.Context, deltas []*models.Delta) error
	GetDelta(ctx context.Context, id string) (*models.Delta, error)
	ListDeltas(ctx context.Context, opts *DeltaListOptions) ([]*models.Delta, error)
	DeleteDeltasBefore(ctx context.Context, cutoff time.Time) (int, error)
	CountDeltas(ctx context.Context) (int, error)
}

// BaselineStorage - interface for baseline pattern persistence
type BaselineStorage interface {
	SaveBaseline(ctx context.Context, baseline *models.BaselinePattern) error
	GetBaseline(ctx context.Context, entity string) (*models.BaselinePattern, error)
	ListEntities(ctx context.Context) ([]string, error)
	DeleteBaseline(ctx context.Context, entity string) error
}

// SnapshotStorage - interface for discourse snapshot persistence
type SnapshotStorage interface {
	SaveSnapshot(ctx context.Context, snapshot *models.DiscourseSnapshot) error
	GetSnapshot(ctx context.Context, id string) (*models.DiscourseSnapshot, error)
	GetSnapshotsByEntity(ctx context.Context, entity string, since time.Time) ([]*models.DiscourseSnapshot, error)
	DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int, error)
	CountSnapshots(ctx context.Context) (int, error)
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	EventStorage() EventStorage
	DeltaStorage() DeltaStorage
	BaselineStorage() BaselineStorage
	SnapshotStorage() SnapshotStorage
	Close() error
}
