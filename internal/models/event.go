package models

import (
	"fmt"
	"time"
)

// EventType classifies what a group of deltas most likely indicates.
type EventType string

const (
	EventInformationLeak        EventType = "information_leak"
	EventInformationSuppression EventType = "information_suppression"
	EventSentimentShift         EventType = "sentiment_shift"
	EventConfidenceLoss         EventType = "confidence_loss"
	EventInsiderActivity        EventType = "insider_activity"
	EventCoordinationDetected   EventType = "coordination_detected"
	EventPreAnnouncement        EventType = "pre_announcement"
	EventCrisisEmerging         EventType = "crisis_emerging"
	EventRelationshipChange     EventType = "relationship_change"
	EventDepartureSignal        EventType = "departure_signal"
	EventAnomalyDetected        EventType = "anomaly_detected"
)

// EventSeverity grades how market-relevant a detected event is.
type EventSeverity string

const (
	EventNoise       EventSeverity = "noise"
	EventMinor       EventSeverity = "minor"
	EventNotable     EventSeverity = "notable"
	EventSignificant EventSeverity = "significant"
	EventMajor       EventSeverity = "major"
)

var eventSeverityOrder = []EventSeverity{EventNoise, EventMinor, EventNotable, EventSignificant, EventMajor}

// EventSeverityRank returns the position of a severity in NOISE..MAJOR order.
func EventSeverityRank(s EventSeverity) int {
	for i, v := range eventSeverityOrder {
		if v == s {
			return i
		}
	}
	return 0
}

// EscalateEventSeverity bumps a severity one level, capped at MAJOR.
func EscalateEventSeverity(s EventSeverity) EventSeverity {
	idx := EventSeverityRank(s)
	if idx < len(eventSeverityOrder)-1 {
		return eventSeverityOrder[idx+1]
	}
	return s
}

// Market impact direction and magnitude labels.
const (
	DirectionUp       = "up"
	DirectionDown     = "down"
	DirectionVolatile = "volatile"
	DirectionNeutral  = "neutral"

	MagnitudeNegligible = "negligible"
	MagnitudeMinor      = "minor"
	MagnitudeModerate   = "moderate"
	MagnitudeMajor      = "major"

	TimingImmediate = "immediate"
	TimingHours     = "hours"
	TimingDays      = "days"
)

// EventClassification is the classifier's assessment of a delta pattern,
// including alternative type probabilities and market impact predictions.
type EventClassification struct {
	PrimaryType       EventType `json:"primary_type"`
	PrimaryConfidence float64   `json:"primary_confidence"`

	TypeProbabilities map[EventType]float64 `json:"type_probabilities,omitempty"`

	Severity           EventSeverity `json:"severity"`
	SeverityConfidence float64       `json:"severity_confidence"`

	PredictedDirection  string  `json:"predicted_direction,omitempty"`
	DirectionConfidence float64 `json:"direction_confidence"`
	PredictedMagnitude  string  `json:"predicted_magnitude,omitempty"`
	MagnitudeConfidence float64 `json:"magnitude_confidence"`

	PredictedTiming  string  `json:"predicted_timing,omitempty"`
	TimingConfidence float64 `json:"timing_confidence"`

	Reasoning string `json:"reasoning,omitempty"`
}

// IsTradeable reports whether the classification is strong enough to act on:
// significant or major severity, primary confidence above 0.7 and direction
// confidence above 0.6.
func (c *EventClassification) IsTradeable() bool {
	return (c.Severity == EventSignificant || c.Severity == EventMajor) &&
		c.PrimaryConfidence > 0.7 &&
		c.DirectionConfidence > 0.6
}

// Event lifecycle status values.
const (
	EventStatusDetected    = "detected"
	EventStatusTracking    = "tracking"
	EventStatusValidated   = "validated"
	EventStatusInvalidated = "invalidated"
)

// MarketPrediction captures the expected market reaction to an event.
type MarketPrediction struct {
	Direction           string  `json:"direction,omitempty"`
	DirectionConfidence float64 `json:"direction_confidence"`
	Magnitude           string  `json:"magnitude,omitempty"`
	MagnitudeConfidence float64 `json:"magnitude_confidence"`
	Timing              string  `json:"timing,omitempty"`
	TimingConfidence    float64 `json:"timing_confidence"`
}

// ValidationResult records how an event's prediction fared against the market.
type ValidationResult struct {
	CheckedAt         time.Time `json:"checked_at"`
	ObservedDirection string    `json:"observed_direction,omitempty"`
	ObservedMovePct   float64   `json:"observed_move_pct"`
	Notes             string    `json:"notes,omitempty"`
}

// DetectedEvent is the main output of the pipeline: something we believe is
// happening for an entity, derived from one or more deltas.
type DetectedEvent struct {
	EventID string `json:"event_id" badgerhold:"key"`
	Entity  string `json:"entity" badgerhold:"index"`

	Type           EventType           `json:"event_type"`
	Classification EventClassification `json:"classification"`

	DetectedAt       time.Time `json:"detected_at"`
	EventWindowStart time.Time `json:"event_window_start"`
	EventWindowEnd   time.Time `json:"event_window_end"`

	SourceDeltas  []string `json:"source_deltas,omitempty"`
	SourceCluster string   `json:"source_cluster,omitempty"`

	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	Severity   EventSeverity `json:"severity"`
	Confidence float64       `json:"confidence"`

	EvidenceSummary []string `json:"evidence_summary,omitempty"`
	KeySignals      []string `json:"key_signals,omitempty"`

	MarketPrediction MarketPrediction `json:"market_prediction"`

	RelatedEntities []string `json:"related_entities,omitempty"`
	RelatedTickers  []string `json:"related_tickers,omitempty"`

	Status string `json:"status"`

	ValidatedAt       *time.Time        `json:"validated_at,omitempty"`
	ValidationResult  *ValidationResult `json:"validation_result,omitempty"`
	PredictionCorrect *bool             `json:"prediction_correct,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventFromDelta builds an event from a single delta and its classification.
func EventFromDelta(id string, delta Delta, classification EventClassification, entity string, now time.Time) DetectedEvent {
	return DetectedEvent{
		EventID:          id,
		Entity:           entity,
		Type:             classification.PrimaryType,
		Classification:   classification,
		DetectedAt:       now,
		EventWindowStart: delta.WindowStart,
		EventWindowEnd:   delta.WindowEnd,
		SourceDeltas:     []string{delta.DeltaID},
		Severity:         classification.Severity,
		Confidence:       classification.PrimaryConfidence,
		Description:      delta.Description,
		Status:           EventStatusDetected,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// EventFromCluster builds an event from a delta cluster. Confidence is the
// primary classification confidence scaled by the cluster's reinforcement.
func EventFromCluster(id string, cluster *DeltaCluster, classification EventClassification, now time.Time) DetectedEvent {
	start := now
	if cluster.FirstDeltaTime != nil {
		start = *cluster.FirstDeltaTime
	}
	end := now
	if cluster.LastDeltaTime != nil {
		end = *cluster.LastDeltaTime
	}
	deltaIDs := make([]string, len(cluster.Deltas))
	for i, d := range cluster.Deltas {
		deltaIDs[i] = d.DeltaID
	}
	return DetectedEvent{
		EventID:          id,
		Entity:           cluster.Entity,
		Type:             classification.PrimaryType,
		Classification:   classification,
		DetectedAt:       now,
		EventWindowStart: start,
		EventWindowEnd:   end,
		SourceDeltas:     deltaIDs,
		SourceCluster:    cluster.ClusterID,
		Severity:         classification.Severity,
		Confidence:       classification.PrimaryConfidence * cluster.ReinforcementScore,
		Description:      cluster.Summary,
		Status:           EventStatusDetected,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Alert is the notification-friendly view of an event.
type Alert struct {
	EventID    string           `json:"event_id"`
	Entity     string           `json:"entity"`
	Type       EventType        `json:"type"`
	Severity   EventSeverity    `json:"severity"`
	Confidence string           `json:"confidence"`
	Title      string           `json:"title"`
	Summary    string           `json:"summary"`
	Tickers    []string         `json:"tickers,omitempty"`
	Prediction MarketPrediction `json:"prediction"`
	DetectedAt time.Time        `json:"detected_at"`
}

// ToAlert formats the event for notification, truncating the summary to 200
// characters.
func (e *DetectedEvent) ToAlert() Alert {
	summary := e.Description
	if len(summary) > 200 {
		summary = summary[:200]
	}
	return Alert{
		EventID:    e.EventID,
		Entity:     e.Entity,
		Type:       e.Type,
		Severity:   e.Severity,
		Confidence: fmt.Sprintf("%.0f%%", e.Confidence*100),
		Title:      e.Title,
		Summary:    summary,
		Tickers:    e.RelatedTickers,
		Prediction: e.MarketPrediction,
		DetectedAt: e.DetectedAt,
	}
}

// EventTimeline tracks the evolution of events for one entity over time.
type EventTimeline struct {
	Entity string          `json:"entity"`
	Events []DetectedEvent `json:"events,omitempty"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	TotalEvents      int                   `json:"total_events"`
	EventsByType     map[EventType]int     `json:"events_by_type,omitempty"`
	EventsBySeverity map[EventSeverity]int `json:"events_by_severity,omitempty"`

	ValidatedEvents    int     `json:"validated_events"`
	CorrectPredictions int     `json:"correct_predictions"`
	Accuracy           float64 `json:"accuracy"`
}

// NewEventTimeline creates an empty timeline for an entity.
func NewEventTimeline(entity string) *EventTimeline {
	return &EventTimeline{
		Entity:           entity,
		EventsByType:     make(map[EventType]int),
		EventsBySeverity: make(map[EventSeverity]int),
	}
}

// AddEvent appends an event and updates counts, bounds and validation stats.
func (t *EventTimeline) AddEvent(event DetectedEvent) {
	t.Events = append(t.Events, event)
	t.TotalEvents++

	if t.EventsByType == nil {
		t.EventsByType = make(map[EventType]int)
	}
	if t.EventsBySeverity == nil {
		t.EventsBySeverity = make(map[EventSeverity]int)
	}
	t.EventsByType[event.Type]++
	t.EventsBySeverity[event.Severity]++

	at := event.DetectedAt
	if t.StartTime == nil || at.Before(*t.StartTime) {
		v := at
		t.StartTime = &v
	}
	if t.EndTime == nil || at.After(*t.EndTime) {
		v := at
		t.EndTime = &v
	}

	if event.PredictionCorrect != nil {
		t.ValidatedEvents++
		if *event.PredictionCorrect {
			t.CorrectPredictions++
		}
		t.Accuracy = float64(t.CorrectPredictions) / float64(t.ValidatedEvents)
	}
}

// GetRecent returns events detected within the last n hours relative to now.
func (t *EventTimeline) GetRecent(now time.Time, hours int) []DetectedEvent {
	cutoff := now.Add(-time.Duration(hours) * time.Hour)
	var recent []DetectedEvent
	for _, e := range t.Events {
		if !e.DetectedAt.Before(cutoff) {
			recent = append(recent, e)
		}
	}
	return recent
}

// GetByType returns all events of a given type.
func (t *EventTimeline) GetByType(eventType EventType) []DetectedEvent {
	var matched []DetectedEvent
	for _, e := range t.Events {
		if e.Type == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

// GetHighConfidence returns events at or above the confidence threshold.
func (t *EventTimeline) GetHighConfidence(threshold float64) []DetectedEvent {
	var matched []DetectedEvent
	for _, e := range t.Events {
		if e.Confidence >= threshold {
			matched = append(matched, e)
		}
	}
	return matched
}
