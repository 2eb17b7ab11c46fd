package triggers

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacet/internal/common"
	"github.com/ternarybob/tacet/internal/models"
)

// DetectedCallback is invoked when a trigger is detected from text.
type DetectedCallback func(models.ContextTrigger)

// Summary describes the combined effect of an entity's active triggers.
// Volume multipliers combine multiplicatively, sentiment shifts additively.
type Summary struct {
	Entity                   string        `json:"entity"`
	ActiveCount              int           `json:"active_count"`
	Triggers                 []TriggerInfo `json:"triggers"`
	CombinedVolumeMultiplier float64       `json:"combined_volume_multiplier"`
	CombinedSentimentShift   float64       `json:"combined_sentiment_shift"`
}

// TriggerInfo is a short description of one active trigger.
type TriggerInfo struct {
	Type   models.TriggerType `json:"type"`
	Name   string             `json:"name"`
	EndsAt *time.Time         `json:"ends_at,omitempty"`
}

// Manager stores active and scheduled triggers and detects new ones from
// text. Safe for concurrent use.
type Manager struct {
	mu sync.Mutex

	registry  Registry
	active    map[string][]models.ContextTrigger
	scheduled []models.ContextTrigger

	onDetected DetectedCallback

	logger arbor.ILogger
}

// NewManager creates an empty trigger manager with the built-in catalog.
func NewManager() *Manager {
	return NewManagerWithRegistry(DefaultRegistry())
}

// NewManagerWithRegistry creates an empty trigger manager using a custom
// definition catalog.
func NewManagerWithRegistry(registry Registry) *Manager {
	return &Manager{
		registry: registry,
		active:   make(map[string][]models.ContextTrigger),
		logger:   common.GetLogger().WithPrefix("triggers"),
	}
}

// OnDetected registers a callback for triggers detected from text.
func (m *Manager) OnDetected(cb DetectedCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDetected = cb
}

// AddTrigger adds a trigger. Triggers starting in the future are held as
// scheduled and promoted once their start time arrives.
func (m *Manager) AddTrigger(trigger models.ContextTrigger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addTriggerLocked(trigger, time.Now().UTC())
}

func (m *Manager) addTriggerLocked(trigger models.ContextTrigger, now time.Time) {
	if trigger.StartTime != nil && trigger.StartTime.After(now) {
		m.scheduled = append(m.scheduled, trigger)
		m.logger.Info().Str("entity", trigger.Entity).Str("name", trigger.Name).Msg("Scheduled trigger")
		return
	}
	m.active[trigger.Entity] = append(m.active[trigger.Entity], trigger)
	m.logger.Info().Str("entity", trigger.Entity).Str("name", trigger.Name).Msg("Activated trigger")
}

// GetActiveTriggers returns the triggers active for an entity at the given
// time. Due scheduled triggers are promoted and expired triggers removed as
// a side effect.
func (m *Manager) GetActiveTriggers(entity string, at time.Time) []models.ContextTrigger {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.activateScheduledLocked(at)

	var active []models.ContextTrigger
	for _, trigger := range m.active[entity] {
		if trigger.IsActive(at) {
			active = append(active, trigger)
		}
	}

	m.cleanupExpiredLocked(entity, at)

	return active
}

// activateScheduledLocked moves scheduled triggers to active when their time
// comes.
func (m *Manager) activateScheduledLocked(now time.Time) {
	var stillScheduled []models.ContextTrigger
	for _, trigger := range m.scheduled {
		if trigger.StartTime != nil && !trigger.StartTime.After(now) {
			m.active[trigger.Entity] = append(m.active[trigger.Entity], trigger)
			m.logger.Info().Str("entity", trigger.Entity).Str("name", trigger.Name).Msg("Activated trigger")
		} else {
			stillScheduled = append(stillScheduled, trigger)
		}
	}
	m.scheduled = stillScheduled
}

func (m *Manager) cleanupExpiredLocked(entity string, now time.Time) {
	triggers, ok := m.active[entity]
	if !ok {
		return
	}
	var kept []models.ContextTrigger
	for _, t := range triggers {
		if t.IsActive(now) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(m.active, entity)
		return
	}
	m.active[entity] = kept
}

// DetectTriggerFromText scans text for trigger keywords and creates a trigger
// for the first match. Returns false if nothing was detected.
func (m *Manager) DetectTriggerFromText(text, entity string, source Source) (models.ContextTrigger, bool) {
	textLower := strings.ToLower(text)

	for _, triggerType := range m.registry.Types() {
		definition, ok := m.registry.Get(triggerType)
		if !ok {
			continue
		}
		for _, keyword := range definition.DetectionKeywords {
			if !strings.Contains(textLower, strings.ToLower(keyword)) {
				continue
			}

			trigger := m.createFromDetection(definition, entity, text)

			m.mu.Lock()
			cb := m.onDetected
			m.mu.Unlock()
			if cb != nil {
				cb(trigger)
			}

			m.logger.Info().
				Str("entity", entity).
				Str("type", string(triggerType)).
				Str("source", string(source)).
				Str("keyword", keyword).
				Msg("Detected trigger from text")

			return trigger, true
		}
	}

	return models.ContextTrigger{}, false
}

func (m *Manager) createFromDetection(definition Definition, entity, sourceText string) models.ContextTrigger {
	now := time.Now().UTC()
	end := now.Add(time.Duration(definition.DefaultDurationHours * float64(time.Hour)))

	excerpt := sourceText
	if len(excerpt) > 100 {
		excerpt = excerpt[:100]
	}

	return models.ContextTrigger{
		TriggerID:         common.NewTriggerID(),
		TriggerType:       definition.TriggerType,
		Entity:            entity,
		Name:              definition.Name,
		Description:       fmt.Sprintf("Detected from: %s...", excerpt),
		StartTime:         &now,
		EndTime:           &end,
		VolumeMultiplier:  definition.DefaultVolumeMultiplier,
		SentimentShift:    definition.DefaultSentimentShift,
		ExpectedNewTopics: definition.TypicalExpectedTopics,
	}
}

// CreateEarningsTrigger builds a pre-scheduled earnings trigger covering two
// hours before the release through 48 hours after.
func (m *Manager) CreateEarningsTrigger(entity string, releaseTime time.Time, requiredVoices []string) models.ContextTrigger {
	definition, _ := m.registry.Get(models.TriggerEarningsRelease)

	start := releaseTime.Add(-2 * time.Hour)
	end := releaseTime.Add(48 * time.Hour)

	return models.ContextTrigger{
		TriggerID:         fmt.Sprintf("earnings_%s_%s", entity, releaseTime.Format("2006-01-02")),
		TriggerType:       models.TriggerEarningsRelease,
		Entity:            entity,
		Name:              fmt.Sprintf("%s Earnings Release", entity),
		Description:       fmt.Sprintf("Scheduled earnings release at %s", releaseTime.Format(time.RFC3339)),
		StartTime:         &start,
		EndTime:           &end,
		VolumeMultiplier:  definition.DefaultVolumeMultiplier,
		ExpectedNewTopics: []string{"earnings", "revenue", "eps", "guidance", "outlook"},
		RequiredVoices:    requiredVoices,
	}
}

// CreateMarketHoursTrigger builds a one hour trigger at market open or close.
// Used by the scheduler for recurring market sessions.
func (m *Manager) CreateMarketHoursTrigger(entity string, triggerType models.TriggerType, at time.Time) models.ContextTrigger {
	definition, _ := m.registry.Get(triggerType)

	start := at
	end := at.Add(time.Duration(definition.DefaultDurationHours * float64(time.Hour)))

	return models.ContextTrigger{
		TriggerID:        fmt.Sprintf("%s_%s_%s", triggerType, entity, at.Format("2006-01-02")),
		TriggerType:      triggerType,
		Entity:           entity,
		Name:             definition.Name,
		StartTime:        &start,
		EndTime:          &end,
		VolumeMultiplier: definition.DefaultVolumeMultiplier,
		SentimentShift:   definition.DefaultSentimentShift,
	}
}

// GetUpcomingTriggers returns scheduled triggers for an entity starting
// within the next hoursAhead hours.
func (m *Manager) GetUpcomingTriggers(entity string, hoursAhead int) []models.ContextTrigger {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(time.Duration(hoursAhead) * time.Hour)

	var upcoming []models.ContextTrigger
	for _, t := range m.scheduled {
		if t.Entity == entity && t.StartTime != nil && !t.StartTime.After(cutoff) {
			upcoming = append(upcoming, t)
		}
	}
	return upcoming
}

// SummarizeActiveTriggers combines the effects of all active triggers for an
// entity at the given time.
func (m *Manager) SummarizeActiveTriggers(entity string, at time.Time) Summary {
	active := m.GetActiveTriggers(entity, at)

	summary := Summary{
		Entity:                   entity,
		ActiveCount:              len(active),
		Triggers:                 []TriggerInfo{},
		CombinedVolumeMultiplier: 1.0,
		CombinedSentimentShift:   0.0,
	}

	for _, t := range active {
		summary.CombinedVolumeMultiplier *= t.VolumeMultiplier
		summary.CombinedSentimentShift += t.SentimentShift
		summary.Triggers = append(summary.Triggers, TriggerInfo{
			Type:   t.TriggerType,
			Name:   t.Name,
			EndsAt: t.EndTime,
		})
	}

	return summary
}
