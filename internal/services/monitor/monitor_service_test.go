package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/tacet/internal/common"
	"github.com/ternarybob/tacet/internal/interfaces"
	"github.com/ternarybob/tacet/internal/models"
)

// memoryStorage is an in-memory StorageManager for pipeline tests.
type memoryStorage struct {
	mu        sync.Mutex
	events    map[string]*models.DetectedEvent
	deltas    map[string]*models.Delta
	baselines map[string]*models.BaselinePattern
	snapshots map[string]*models.DiscourseSnapshot
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{
		events:    make(map[string]*models.DetectedEvent),
		deltas:    make(map[string]*models.Delta),
		baselines: make(map[string]*models.BaselinePattern),
		snapshots: make(map[string]*models.DiscourseSnapshot),
	}
}

func (m *memoryStorage) EventStorage() interfaces.EventStorage       { return m }
func (m *memoryStorage) DeltaStorage() interfaces.DeltaStorage       { return m }
func (m *memoryStorage) BaselineStorage() interfaces.BaselineStorage { return m }
func (m *memoryStorage) SnapshotStorage() interfaces.SnapshotStorage { return m }
func (m *memoryStorage) Close() error                                { return nil }

func (m *memoryStorage) SaveEvent(ctx context.Context, event *models.DetectedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *event
	m.events[event.EventID] = &copied
	return nil
}

func (m *memoryStorage) GetEvent(ctx context.Context, id string) (*models.DetectedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event, ok := m.events[id]; ok {
		return event, nil
	}
	return nil, fmt.Errorf("event not found: %s", id)
}

func (m *memoryStorage) ListEvents(ctx context.Context, opts *interfaces.EventListOptions) ([]*models.DetectedEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.DetectedEvent
	for _, event := range m.events {
		if opts != nil && opts.Entity != "" && event.Entity != opts.Entity {
			continue
		}
		result = append(result, event)
	}
	return result, nil
}

func (m *memoryStorage) GetEventsByEntity(ctx context.Context, entity string) ([]*models.DetectedEvent, error) {
	return m.ListEvents(ctx, &interfaces.EventListOptions{Entity: entity})
}

func (m *memoryStorage) GetActiveEvents(ctx context.Context) ([]*models.DetectedEvent, error) {
	return m.ListEvents(ctx, nil)
}

func (m *memoryStorage) UpdateEventStatus(ctx context.Context, id, status string) error {
	event, err := m.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	event.Status = status
	return nil
}

func (m *memoryStorage) SaveValidation(ctx context.Context, id string, result *models.ValidationResult, correct bool) error {
	event, err := m.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	event.ValidationResult = result
	event.PredictionCorrect = &correct
	return nil
}

func (m *memoryStorage) DeleteEvent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, id)
	return nil
}

func (m *memoryStorage) CountEvents(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events), nil
}

func (m *memoryStorage) SaveDelta(ctx context.Context, delta *models.Delta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *delta
	m.deltas[delta.DeltaID] = &copied
	return nil
}

func (m *memoryStorage) SaveDeltas(ctx context.Context, deltas []*models.Delta) error {
	for _, delta := range deltas {
		if err := m.SaveDelta(ctx, delta); err != nil {
			return err
		}
	}
	return nil
}

func (m *memoryStorage) GetDelta(ctx context.Context, id string) (*models.Delta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if delta, ok := m.deltas[id]; ok {
		return delta, nil
	}
	return nil, fmt.Errorf("delta not found: %s", id)
}

func (m *memoryStorage) ListDeltas(ctx context.Context, opts *interfaces.DeltaListOptions) ([]*models.Delta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.Delta
	for _, delta := range m.deltas {
		result = append(result, delta)
	}
	return result, nil
}

func (m *memoryStorage) DeleteDeltasBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, delta := range m.deltas {
		if delta.DetectedAt.Before(cutoff) {
			delete(m.deltas, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memoryStorage) CountDeltas(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deltas), nil
}

func (m *memoryStorage) SaveBaseline(ctx context.Context, baseline *models.BaselinePattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *baseline
	m.baselines[baseline.Entity] = &copied
	return nil
}

func (m *memoryStorage) GetBaseline(ctx context.Context, entity string) (*models.BaselinePattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if baseline, ok := m.baselines[entity]; ok {
		return baseline, nil
	}
	return nil, fmt.Errorf("baseline not found: %s", entity)
}

func (m *memoryStorage) ListEntities(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entities []string
	for entity := range m.baselines {
		entities = append(entities, entity)
	}
	return entities, nil
}

func (m *memoryStorage) DeleteBaseline(ctx context.Context, entity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.baselines, entity)
	return nil
}

func (m *memoryStorage) SaveSnapshot(ctx context.Context, snapshot *models.DiscourseSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snapshot.SnapshotID == "" {
		snapshot.SnapshotID = fmt.Sprintf("snap_%d", len(m.snapshots)+1)
	}
	copied := *snapshot
	m.snapshots[snapshot.SnapshotID] = &copied
	return nil
}

func (m *memoryStorage) GetSnapshot(ctx context.Context, id string) (*models.DiscourseSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snapshot, ok := m.snapshots[id]; ok {
		return snapshot, nil
	}
	return nil, fmt.Errorf("snapshot not found: %s", id)
}

func (m *memoryStorage) GetSnapshotsByEntity(ctx context.Context, entity string, since time.Time) ([]*models.DiscourseSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.DiscourseSnapshot
	for _, snapshot := range m.snapshots {
		if snapshot.Entity != entity {
			continue
		}
		if !since.IsZero() && snapshot.WindowStart.Before(since) {
			continue
		}
		result = append(result, snapshot)
	}
	return result, nil
}

func (m *memoryStorage) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for id, snapshot := range m.snapshots {
		if snapshot.WindowEnd.Before(cutoff) {
			delete(m.snapshots, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memoryStorage) CountSnapshots(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots), nil
}

// recordingBus records messages synchronously so tests can assert on them.
type recordingBus struct {
	mu       sync.Mutex
	messages []interfaces.BusMessage
}

func (b *recordingBus) Subscribe(topic interfaces.BusTopic, handler interfaces.BusHandler) error {
	return nil
}

func (b *recordingBus) Publish(ctx context.Context, msg interfaces.BusMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
	return nil
}

func (b *recordingBus) PublishSync(ctx context.Context, msg interfaces.BusMessage) error {
	return b.Publish(ctx, msg)
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) byTopic(topic interfaces.BusTopic) []interfaces.BusMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	var matched []interfaces.BusMessage
	for _, msg := range b.messages {
		if msg.Topic == topic {
			matched = append(matched, msg)
		}
	}
	return matched
}

func newTestService() (*Service, *memoryStorage, *recordingBus) {
	config := common.NewDefaultConfig()
	config.Monitor.Entities = []string{"ticker:ACME"}
	storage := newMemoryStorage()
	bus := &recordingBus{}
	return NewService(config, storage, bus), storage, bus
}

func testSnapshot(entity string, start time.Time, posts int) *models.DiscourseSnapshot {
	return &models.DiscourseSnapshot{
		Entity:        entity,
		WindowStart:   start,
		WindowEnd:     start.Add(time.Hour),
		TotalPosts:    posts,
		UniqueAuthors: posts / 2,
	}
}

func loadedBaseline(entity string) models.BaselinePattern {
	pattern := models.NewBaselinePattern(entity, models.WindowHour)
	pattern.AvgPostsPerWindow = 100
	pattern.PostStddev = 20
	pattern.AvgSentiment = 0.1
	pattern.SentimentStddev = 0.1
	pattern.SampleSize = 50
	for i := range pattern.HourlyVolumePattern {
		pattern.HourlyVolumePattern[i] = 1.0
	}
	for i := range pattern.DailyVolumePattern {
		pattern.DailyVolumePattern[i] = 1.0
	}
	return pattern
}

func TestProcessSnapshotWithoutBaseline(t *testing.T) {
	service, storage, _ := newTestService()
	ctx := context.Background()

	snapshot := testSnapshot("ticker:ACME", time.Now().UTC().Add(-time.Hour), 50)
	deltas, err := service.ProcessSnapshot(ctx, snapshot)
	if err != nil {
		t.Fatalf("ProcessSnapshot: %v", err)
	}
	if len(deltas) != 0 {
		t.Errorf("deltas = %d, want 0 without baseline", len(deltas))
	}

	count, _ := storage.CountSnapshots(ctx)
	if count != 1 {
		t.Errorf("stored snapshots = %d, want 1", count)
	}
}

func TestProcessSnapshotDetectsCollapse(t *testing.T) {
	service, storage, bus := newTestService()
	ctx := context.Background()

	service.Generator().LoadBaseline("ticker:ACME", loadedBaseline("ticker:ACME"))

	snapshot := testSnapshot("ticker:ACME", time.Now().UTC().Add(-time.Hour), 20)
	deltas, err := service.ProcessSnapshot(ctx, snapshot)
	if err != nil {
		t.Fatalf("ProcessSnapshot: %v", err)
	}
	if len(deltas) != 1 {
		t.Fatalf("deltas = %d, want 1", len(deltas))
	}
	if deltas[0].Type != models.DeltaVolumeCollapse {
		t.Errorf("type = %s", deltas[0].Type)
	}

	count, _ := storage.CountDeltas(ctx)
	if count != 1 {
		t.Errorf("stored deltas = %d, want 1", count)
	}
	if got := bus.byTopic(interfaces.TopicDeltaDetected); len(got) != 1 {
		t.Errorf("delta messages = %d, want 1", len(got))
	}
}

func TestProcessSnapshotCreatesEventFromCluster(t *testing.T) {
	service, storage, bus := newTestService()
	ctx := context.Background()

	pattern := loadedBaseline("ticker:ACME")
	pattern.TypicalTopics = []models.ExpectedTopic{
		{TopicID: "company:acme:earnings", TopicName: "earnings", ExpectedMentionCount: 50, Confidence: 0.9, AbsenceSeverity: 0.8},
	}
	service.Generator().LoadBaseline("ticker:ACME", pattern)

	// collapse plus required topic absence in one window forms a cluster
	snapshot := testSnapshot("ticker:ACME", time.Now().UTC().Add(-time.Hour), 20)
	deltas, err := service.ProcessSnapshot(ctx, snapshot)
	if err != nil {
		t.Fatalf("ProcessSnapshot: %v", err)
	}
	if len(deltas) != 2 {
		t.Fatalf("deltas = %d, want 2", len(deltas))
	}

	count, _ := storage.CountEvents(ctx)
	if count != 1 {
		t.Fatalf("stored events = %d, want 1", count)
	}

	messages := bus.byTopic(interfaces.TopicEventDetected)
	if len(messages) != 1 {
		t.Fatalf("event messages = %d, want 1", len(messages))
	}
	event := messages[0].Payload.(models.DetectedEvent)
	if event.Type != models.EventInformationSuppression {
		t.Errorf("event type = %s", event.Type)
	}

	timeline, ok := service.Timeline("ticker:ACME")
	if !ok || timeline.TotalEvents != 1 {
		t.Errorf("timeline missing or empty")
	}
}

func TestRebuildBaseline(t *testing.T) {
	service, storage, bus := newTestService()
	ctx := context.Background()

	base := time.Now().UTC().AddDate(0, 0, -2)
	for i := 0; i < 6; i++ {
		snapshot := testSnapshot("ticker:ACME", base.Add(time.Duration(i)*time.Hour), 100)
		if err := storage.SaveSnapshot(ctx, snapshot); err != nil {
			t.Fatal(err)
		}
	}

	if err := service.RebuildBaseline(ctx, "ticker:ACME"); err != nil {
		t.Fatalf("RebuildBaseline: %v", err)
	}

	stored, err := storage.GetBaseline(ctx, "ticker:ACME")
	if err != nil {
		t.Fatalf("baseline not persisted: %v", err)
	}
	if stored.AvgPostsPerWindow != 100 {
		t.Errorf("avg = %v, want 100", stored.AvgPostsPerWindow)
	}
	if _, ok := service.Generator().Baseline("ticker:ACME"); !ok {
		t.Error("baseline not loaded into generator")
	}
	if got := bus.byTopic(interfaces.TopicBaselineUpdated); len(got) != 1 {
		t.Errorf("baseline messages = %d", len(got))
	}
}

func TestRebuildBaselineNeedsSamples(t *testing.T) {
	service, storage, _ := newTestService()
	ctx := context.Background()

	snapshot := testSnapshot("ticker:ACME", time.Now().UTC().Add(-time.Hour), 100)
	if err := storage.SaveSnapshot(ctx, snapshot); err != nil {
		t.Fatal(err)
	}

	if err := service.RebuildBaseline(ctx, "ticker:ACME"); err == nil {
		t.Error("expected error with too few snapshots")
	}
}

func TestStartRejectsDoubleStart(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	if err := service.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer service.Stop()

	if err := service.Start(ctx); err == nil {
		t.Error("expected error on second start")
	}
}

func TestStatusReporting(t *testing.T) {
	service, storage, _ := newTestService()
	ctx := context.Background()

	pattern := loadedBaseline("ticker:ACME")
	if err := storage.SaveBaseline(ctx, &pattern); err != nil {
		t.Fatal(err)
	}
	service.Generator().LoadBaseline("ticker:ACME", pattern)

	snapshot := testSnapshot("ticker:ACME", time.Now().UTC().Add(-time.Hour), 100)
	if _, err := service.ProcessSnapshot(ctx, snapshot); err != nil {
		t.Fatal(err)
	}

	status := service.Status(ctx)
	if status.SnapshotsProcessed != 1 {
		t.Errorf("processed = %d", status.SnapshotsProcessed)
	}
	if status.BaselineEntities != 1 {
		t.Errorf("baseline entities = %d", status.BaselineEntities)
	}
}
