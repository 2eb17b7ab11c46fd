// Package monitor wires the detection pipeline together: snapshots come in,
// expectations are generated against stored baselines, deltas are detected
// and clustered, and classified events go out over the bus and into storage.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacet/internal/baseline"
	"github.com/ternarybob/tacet/internal/classification"
	"github.com/ternarybob/tacet/internal/common"
	"github.com/ternarybob/tacet/internal/detection"
	"github.com/ternarybob/tacet/internal/expectation"
	"github.com/ternarybob/tacet/internal/interfaces"
	"github.com/ternarybob/tacet/internal/models"
	"github.com/ternarybob/tacet/internal/triggers"
)

// Service runs the detection pipeline for monitored entities.
type Service struct {
	config     *common.Config
	storage    interfaces.StorageManager
	bus        interfaces.EventBus
	builder    *baseline.Builder
	generator  *expectation.Generator
	detector   *detection.Detector
	classifier *classification.Classifier
	triggers   *triggers.Manager
	cron       *cron.Cron
	logger     arbor.ILogger

	mu          sync.Mutex
	entityLocks map[string]*sync.Mutex
	timelines   map[string]*models.EventTimeline
	processed   int64
	running     bool
	startedAt   time.Time
}

// NewService builds the pipeline from configuration.
func NewService(config *common.Config, storage interfaces.StorageManager, bus interfaces.EventBus) *Service {
	logger := common.GetLogger().WithPrefix("monitor")

	builder := baseline.NewBuilder(config.Baseline.WindowDays, config.Baseline.MinSamples)

	registry := triggers.DefaultRegistry()
	if config.Triggers.DefinitionsFile != "" {
		loaded, err := triggers.LoadRegistry(config.Triggers.DefinitionsFile)
		if err != nil {
			logger.Warn().Err(err).Str("path", config.Triggers.DefinitionsFile).Msg("Falling back to built-in trigger definitions")
		} else {
			registry = loaded
		}
	}
	triggerManager := triggers.NewManagerWithRegistry(registry)
	generator := expectation.NewGenerator(builder, triggerManager, config.Baseline.DecayFactor)

	detectionConfig := detection.DefaultConfig()
	detectionConfig.MinDeltaConfidence = config.Detection.MinConfidence
	detectionConfig.VoiceSilenceThresholdHours = config.Detection.SilenceThresholdHours
	detectionConfig.ClusterWindow = config.ClusterGapDuration()
	detectionConfig.CoordinationWindow = config.CoordinationWindowDuration()

	detector := detection.NewDetector(generator, detectionConfig)

	s := &Service{
		config:      config,
		storage:     storage,
		bus:         bus,
		builder:     builder,
		generator:   generator,
		detector:    detector,
		classifier:  classification.NewClassifier(),
		triggers:    triggerManager,
		cron:        cron.New(),
		logger:      logger,
		entityLocks: make(map[string]*sync.Mutex),
		timelines:   make(map[string]*models.EventTimeline),
	}

	detector.OnDelta(s.handleDelta)
	detector.OnCluster(s.handleCluster)
	triggerManager.OnDetected(s.handleTrigger)

	return s
}

// Detector exposes the delta detector for handlers.
func (s *Service) Detector() *detection.Detector { return s.detector }

// Generator exposes the expectation generator for handlers.
func (s *Service) Generator() *expectation.Generator { return s.generator }

// TriggerManager exposes the context trigger manager for handlers.
func (s *Service) TriggerManager() *triggers.Manager { return s.triggers }

// Start loads stored baselines and schedules background jobs.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("monitor already running")
	}
	s.running = true
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.loadBaselines(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load stored baselines")
	}

	if s.config.Cleanup.Enabled {
		if _, err := s.cron.AddFunc(s.config.Cleanup.Schedule, func() { s.runCleanup(context.Background()) }); err != nil {
			return fmt.Errorf("failed to schedule cleanup: %w", err)
		}
		s.logger.Info().Str("schedule", s.config.Cleanup.Schedule).Msg("Cleanup job scheduled")
	}

	if s.config.Triggers.MarketHoursEnabled {
		if _, err := s.cron.AddFunc(s.config.Triggers.MarketOpenSchedule, func() {
			s.addMarketHoursTriggers(models.TriggerMarketOpen)
		}); err != nil {
			return fmt.Errorf("failed to schedule market open triggers: %w", err)
		}
		if _, err := s.cron.AddFunc(s.config.Triggers.MarketCloseSchedule, func() {
			s.addMarketHoursTriggers(models.TriggerMarketClose)
		}); err != nil {
			return fmt.Errorf("failed to schedule market close triggers: %w", err)
		}
		s.logger.Info().Msg("Market hours triggers scheduled")
	}

	s.cron.Start()
	s.logger.Info().Int("entities", len(s.config.Monitor.Entities)).Msg("Monitor started")

	return nil
}

// Stop shuts down background jobs.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info().Msg("Monitor stopped")
}

// loadBaselines pulls every stored baseline into the generator so detection
// works immediately after a restart.
func (s *Service) loadBaselines(ctx context.Context) error {
	entities, err := s.storage.BaselineStorage().ListEntities(ctx)
	if err != nil {
		return err
	}

	for _, entity := range entities {
		pattern, err := s.storage.BaselineStorage().GetBaseline(ctx, entity)
		if err != nil {
			s.logger.Warn().Err(err).Str("entity", entity).Msg("Failed to load baseline")
			continue
		}
		s.generator.LoadBaseline(entity, *pattern)
	}

	s.logger.Info().Int("baselines", len(entities)).Msg("Baselines loaded")
	return nil
}

// entityLock serializes processing per entity so snapshots for the same
// entity never interleave while different entities run in parallel.
func (s *Service) entityLock(entity string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.entityLocks[entity]
	if !ok {
		lock = &sync.Mutex{}
		s.entityLocks[entity] = lock
	}
	return lock
}

// ProcessSnapshot runs the full pipeline for one snapshot: persist, detect,
// check coordinated silence, and store any resulting deltas.
func (s *Service) ProcessSnapshot(ctx context.Context, snapshot *models.DiscourseSnapshot) ([]models.Delta, error) {
	if snapshot.Entity == "" {
		return nil, fmt.Errorf("snapshot entity is required")
	}

	lock := s.entityLock(snapshot.Entity)
	lock.Lock()
	defer lock.Unlock()

	if err := s.storage.SnapshotStorage().SaveSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}

	if _, ok := s.generator.Baseline(snapshot.Entity); !ok {
		if err := s.RebuildBaseline(ctx, snapshot.Entity); err != nil {
			s.logger.Debug().Err(err).Str("entity", snapshot.Entity).Msg("No baseline available yet")
		}
	}

	deltas := s.detector.Detect(*snapshot, nil)

	if silence, ok := s.detector.DetectCoordinatedSilence(*snapshot); ok {
		if silence.Confidence >= s.config.Detection.MinConfidence {
			deltas = append(deltas, silence)
			s.handleDelta(silence)
		}
	}

	for i := range deltas {
		if err := s.storage.DeltaStorage().SaveDelta(ctx, &deltas[i]); err != nil {
			s.logger.Error().Err(err).Str("delta_id", deltas[i].DeltaID).Msg("Failed to persist delta")
		}
	}

	s.mu.Lock()
	s.processed++
	s.mu.Unlock()

	return deltas, nil
}

// RebuildBaseline rebuilds an entity's baseline from stored snapshots and
// persists the result.
func (s *Service) RebuildBaseline(ctx context.Context, entity string) error {
	since := time.Now().UTC().AddDate(0, 0, -s.config.Baseline.WindowDays)
	stored, err := s.storage.SnapshotStorage().GetSnapshotsByEntity(ctx, entity, since)
	if err != nil {
		return err
	}
	if len(stored) < s.config.Baseline.MinSamples {
		return fmt.Errorf("not enough snapshots for %s: %d of %d", entity, len(stored), s.config.Baseline.MinSamples)
	}

	history := make([]models.DiscourseSnapshot, len(stored))
	for i, snap := range stored {
		history[i] = *snap
	}

	s.generator.BuildBaseline(entity, history)

	pattern, ok := s.generator.Baseline(entity)
	if !ok {
		return fmt.Errorf("baseline build produced nothing for %s", entity)
	}
	if err := s.storage.BaselineStorage().SaveBaseline(ctx, &pattern); err != nil {
		return err
	}

	s.bus.Publish(ctx, interfaces.BusMessage{
		Topic:   interfaces.TopicBaselineUpdated,
		Entity:  entity,
		Payload: pattern,
	})

	s.logger.Info().Str("entity", entity).Int("snapshots", len(history)).Msg("Baseline rebuilt")
	return nil
}

// DetectTrigger scans free text for context trigger keywords.
func (s *Service) DetectTrigger(text, entity string, source triggers.Source) (models.ContextTrigger, bool) {
	return s.triggers.DetectTriggerFromText(text, entity, source)
}

func (s *Service) handleDelta(delta models.Delta) {
	s.bus.Publish(context.Background(), interfaces.BusMessage{
		Topic:   interfaces.TopicDeltaDetected,
		Entity:  delta.Entity,
		Payload: delta,
	})
}

func (s *Service) handleCluster(cluster models.DeltaCluster) {
	ctx := context.Background()

	s.bus.Publish(ctx, interfaces.BusMessage{
		Topic:   interfaces.TopicClusterDetected,
		Entity:  cluster.Entity,
		Payload: cluster,
	})

	event := s.classifier.CreateEvent(cluster.Entity, nil, &cluster)

	if err := s.storage.EventStorage().SaveEvent(ctx, &event); err != nil {
		s.logger.Error().Err(err).Str("event_id", event.EventID).Msg("Failed to persist event")
	}

	s.recordEvent(event)

	s.bus.Publish(ctx, interfaces.BusMessage{
		Topic:   interfaces.TopicEventDetected,
		Entity:  event.Entity,
		Payload: event,
	})
}

func (s *Service) handleTrigger(trigger models.ContextTrigger) {
	s.bus.Publish(context.Background(), interfaces.BusMessage{
		Topic:   interfaces.TopicTriggerDetected,
		Entity:  trigger.Entity,
		Payload: trigger,
	})
}

func (s *Service) recordEvent(event models.DetectedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timeline, ok := s.timelines[event.Entity]
	if !ok {
		timeline = models.NewEventTimeline(event.Entity)
		s.timelines[event.Entity] = timeline
	}
	timeline.AddEvent(event)
}

// Timeline returns the in-memory event timeline for an entity.
func (s *Service) Timeline(entity string) (*models.EventTimeline, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	timeline, ok := s.timelines[entity]
	return timeline, ok
}

// addMarketHoursTriggers registers a market open or close trigger for every
// monitored entity.
func (s *Service) addMarketHoursTriggers(triggerType models.TriggerType) {
	now := time.Now().UTC()
	for _, entity := range s.config.Monitor.Entities {
		trigger := s.triggers.CreateMarketHoursTrigger(entity, triggerType, now)
		s.triggers.AddTrigger(trigger)
	}
	s.logger.Debug().
		Str("trigger_type", string(triggerType)).
		Int("entities", len(s.config.Monitor.Entities)).
		Msg("Market hours triggers added")
}

// runCleanup drops stale deltas from the detector and from storage.
func (s *Service) runCleanup(ctx context.Context) {
	retention := s.config.DeltaRetentionDuration()

	removed := s.detector.CleanupOldDeltas(retention)

	cutoff := time.Now().UTC().Add(-retention)
	deleted, err := s.storage.DeltaStorage().DeleteDeltasBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("Delta cleanup failed")
	}

	snapshotCutoff := time.Now().UTC().AddDate(0, 0, -s.config.Baseline.WindowDays*2)
	expired, err := s.storage.SnapshotStorage().DeleteSnapshotsBefore(ctx, snapshotCutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("Snapshot cleanup failed")
	}

	s.logger.Info().
		Int("memory_deltas", removed).
		Int("stored_deltas", deleted).
		Int("snapshots", expired).
		Msg("Cleanup complete")
}

// Status summarizes the running pipeline.
type Status struct {
	Running            bool      `json:"running"`
	StartedAt          time.Time `json:"started_at"`
	SnapshotsProcessed int64     `json:"snapshots_processed"`
	MonitoredEntities  []string  `json:"monitored_entities,omitempty"`
	BaselineEntities   int       `json:"baseline_entities"`
	TrackedTimelines   int       `json:"tracked_timelines"`
}

// Status reports pipeline state for the status endpoint.
func (s *Service) Status(ctx context.Context) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	baselines, err := s.storage.BaselineStorage().ListEntities(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to count baselines")
	}

	return Status{
		Running:            s.running,
		StartedAt:          s.startedAt,
		SnapshotsProcessed: s.processed,
		MonitoredEntities:  s.config.Monitor.Entities,
		BaselineEntities:   len(baselines),
		TrackedTimelines:   len(s.timelines),
	}
}
