package badger

import (
	"context"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tacet/internal/interfaces"
	"github.com/ternarybob/tacet/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	options := badgerhold.DefaultOptions
	options.Dir = t.TempDir()
	options.ValueDir = options.Dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store}
}

func TestEventStoragePersistence(t *testing.T) {
	db := newTestDB(t)
	storage := NewEventStorage(db, arbor.NewLogger())
	ctx := context.Background()

	now := time.Now().UTC()
	event := &models.DetectedEvent{
		EventID:    "event_1",
		Entity:     "acme",
		Type:       models.EventInformationSuppression,
		Severity:   models.EventSignificant,
		Confidence: 0.8,
		DetectedAt: now,
		Status:     models.EventStatusDetected,
	}
	if err := storage.SaveEvent(ctx, event); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}

	got, err := storage.GetEvent(ctx, "event_1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.Entity != "acme" || got.Type != models.EventInformationSuppression {
		t.Errorf("got %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	if _, err := storage.GetEvent(ctx, "missing"); err == nil {
		t.Error("expected not-found error")
	}
}

func TestEventStorageListFilters(t *testing.T) {
	db := newTestDB(t)
	storage := NewEventStorage(db, arbor.NewLogger())
	ctx := context.Background()

	now := time.Now().UTC()
	events := []*models.DetectedEvent{
		{EventID: "event_1", Entity: "acme", Type: models.EventInformationSuppression, Severity: models.EventMajor, DetectedAt: now, Status: models.EventStatusDetected},
		{EventID: "event_2", Entity: "acme", Type: models.EventSentimentShift, Severity: models.EventMinor, DetectedAt: now.Add(-time.Hour), Status: models.EventStatusValidated},
		{EventID: "event_3", Entity: "globex", Type: models.EventInsiderActivity, Severity: models.EventNotable, DetectedAt: now, Status: models.EventStatusTracking},
	}
	for _, e := range events {
		if err := storage.SaveEvent(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	byEntity, err := storage.GetEventsByEntity(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(byEntity) != 2 {
		t.Errorf("acme events = %d, want 2", len(byEntity))
	}
	// newest first
	if byEntity[0].EventID != "event_1" {
		t.Errorf("order = %s first", byEntity[0].EventID)
	}

	active, err := storage.GetActiveEvents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 2 {
		t.Errorf("active = %d, want 2", len(active))
	}

	severe, err := storage.ListEvents(ctx, &interfaces.EventListOptions{MinSeverity: models.EventNotable})
	if err != nil {
		t.Fatal(err)
	}
	if len(severe) != 2 {
		t.Errorf("notable+ = %d, want 2", len(severe))
	}
}

func TestEventStorageValidation(t *testing.T) {
	db := newTestDB(t)
	storage := NewEventStorage(db, arbor.NewLogger())
	ctx := context.Background()

	event := &models.DetectedEvent{
		EventID:    "event_1",
		Entity:     "acme",
		DetectedAt: time.Now().UTC(),
		Status:     models.EventStatusDetected,
	}
	if err := storage.SaveEvent(ctx, event); err != nil {
		t.Fatal(err)
	}

	result := &models.ValidationResult{ObservedDirection: "down", ObservedMovePct: -4.2}
	if err := storage.SaveValidation(ctx, "event_1", result, true); err != nil {
		t.Fatalf("SaveValidation: %v", err)
	}

	got, err := storage.GetEvent(ctx, "event_1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.EventStatusValidated {
		t.Errorf("status = %s", got.Status)
	}
	if got.PredictionCorrect == nil || !*got.PredictionCorrect {
		t.Error("prediction correct not recorded")
	}
	if got.ValidationResult == nil || got.ValidationResult.ObservedDirection != "down" {
		t.Errorf("validation result = %+v", got.ValidationResult)
	}
}

func TestDeltaStorageCleanup(t *testing.T) {
	db := newTestDB(t)
	storage := NewDeltaStorage(db, arbor.NewLogger())
	ctx := context.Background()

	now := time.Now().UTC()
	deltas := []*models.Delta{
		{DeltaID: "delta_1", Entity: "acme", Type: models.DeltaVolumeCollapse, Severity: models.SeverityHigh, DetectedAt: now.Add(-30 * time.Hour)},
		{DeltaID: "delta_2", Entity: "acme", Type: models.DeltaVoiceSilence, Severity: models.SeverityMedium, DetectedAt: now},
	}
	if err := storage.SaveDeltas(ctx, deltas); err != nil {
		t.Fatal(err)
	}

	deleted, err := storage.DeleteDeltasBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	count, err := storage.CountDeltas(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestBaselineStorageRoundTrip(t *testing.T) {
	db := newTestDB(t)
	storage := NewBaselineStorage(db, arbor.NewLogger())
	ctx := context.Background()

	baseline := models.NewBaselinePattern("acme", models.WindowHour)
	baseline.AvgPostsPerWindow = 120
	baseline.PostStddev = 30

	if err := storage.SaveBaseline(ctx, &baseline); err != nil {
		t.Fatalf("SaveBaseline: %v", err)
	}

	got, err := storage.GetBaseline(ctx, "acme")
	if err != nil {
		t.Fatal(err)
	}
	if got.AvgPostsPerWindow != 120 {
		t.Errorf("avg = %v", got.AvgPostsPerWindow)
	}
	if got.LastUpdated == nil {
		t.Error("LastUpdated not set")
	}

	entities, err := storage.ListEntities(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entities) != 1 || entities[0] != "acme" {
		t.Errorf("entities = %v", entities)
	}

	if err := storage.DeleteBaseline(ctx, "acme"); err != nil {
		t.Fatal(err)
	}
	if _, err := storage.GetBaseline(ctx, "acme"); err == nil {
		t.Error("expected not-found after delete")
	}
}

func TestSnapshotStorageEntityQuery(t *testing.T) {
	db := newTestDB(t)
	storage := NewSnapshotStorage(db, arbor.NewLogger())
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		snapshot := &models.DiscourseSnapshot{
			Entity:      "acme",
			WindowStart: base.Add(time.Duration(i) * time.Hour),
			WindowEnd:   base.Add(time.Duration(i+1) * time.Hour),
			TotalPosts:  100 + i,
		}
		if err := storage.SaveSnapshot(ctx, snapshot); err != nil {
			t.Fatal(err)
		}
		if snapshot.SnapshotID == "" {
			t.Error("snapshot ID not assigned")
		}
	}

	all, err := storage.GetSnapshotsByEntity(ctx, "acme", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("snapshots = %d, want 3", len(all))
	}
	// oldest first
	if !all[0].WindowStart.Equal(base) {
		t.Errorf("order wrong: %v first", all[0].WindowStart)
	}

	recent, err := storage.GetSnapshotsByEntity(ctx, "acme", base.Add(90*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Errorf("recent = %d, want 1", len(recent))
	}

	deleted, err := storage.DeleteSnapshotsBefore(ctx, base.Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
}
