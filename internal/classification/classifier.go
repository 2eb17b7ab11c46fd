// Package classification turns deltas and delta clusters into classified
// events with market-impact predictions.
package classification

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacet/internal/common"
	"github.com/ternarybob/tacet/internal/models"
)

// Classifier maps delta patterns onto event types and predicts the likely
// market reaction.
type Classifier struct {
	logger arbor.ILogger
}

// NewClassifier creates an event classifier.
func NewClassifier() *Classifier {
	return &Classifier{
		logger: common.GetLogger().WithPrefix("classification"),
	}
}

// ClassifyDelta classifies a single delta.
func (c *Classifier) ClassifyDelta(delta models.Delta) models.EventClassification {
	return c.classify([]models.DeltaType{delta.Type}, []models.Delta{delta})
}

// ClassifyCluster classifies a cluster of deltas. Clusters usually produce
// higher confidence classifications than lone deltas.
func (c *Classifier) ClassifyCluster(cluster models.DeltaCluster) models.EventClassification {
	return c.classify(cluster.UniqueTypes(), cluster.Deltas)
}

func (c *Classifier) classify(types []models.DeltaType, deltas []models.Delta) models.EventClassification {
	candidates := lookupPattern(types)

	if candidates == nil {
		return models.EventClassification{
			PrimaryType:       models.EventAnomalyDetected,
			PrimaryConfidence: 0.3,
			TypeProbabilities: map[models.EventType]float64{
				models.EventAnomalyDetected: 0.3,
			},
			Severity:           models.EventMinor,
			SeverityConfidence: 0.3,
			PredictedTiming:    models.TimingHours,
			TimingConfidence:   0.3,
			Reasoning:          "Unrecognized delta pattern",
		}
	}

	probabilities := make(map[models.EventType]float64, len(candidates))
	for _, cand := range candidates {
		probabilities[cand.Type] = cand.Weight
	}

	primary := candidates[0]

	avgConfidence := 0.0
	for _, delta := range deltas {
		avgConfidence += delta.Confidence
	}
	avgConfidence /= float64(len(deltas))

	// Stronger deltas boost the base probability, capped at 0.95
	primaryConfidence := primary.Weight * (0.5 + avgConfidence*0.5)
	if primaryConfidence > 0.95 {
		primaryConfidence = 0.95
	}

	severity := determineSeverity(deltas)
	direction := directionByType[primary.Type]
	timing, timingConfidence := predictTiming(primary.Type)

	c.logger.Debug().
		Str("event_type", string(primary.Type)).
		Str("severity", string(severity)).
		Int("deltas", len(deltas)).
		Msg("Classified delta pattern")

	return models.EventClassification{
		PrimaryType:         primary.Type,
		PrimaryConfidence:   primaryConfidence,
		TypeProbabilities:   probabilities,
		Severity:            severity,
		SeverityConfidence:  avgConfidence,
		PredictedDirection:  direction.Direction,
		DirectionConfidence: direction.Confidence,
		PredictedMagnitude:  magnitudeBySeverity[severity],
		MagnitudeConfidence: 0.5,
		PredictedTiming:     timing,
		TimingConfidence:    timingConfidence,
		Reasoning:           buildReasoning(primary.Type, deltas),
	}
}

// determineSeverity maps the worst delta severity to an event severity,
// escalating one level when three or more deltas reinforce each other.
func determineSeverity(deltas []models.Delta) models.EventSeverity {
	maxSeverity := models.SeverityLow
	for _, delta := range deltas {
		if models.SeverityRank(delta.Severity) > models.SeverityRank(maxSeverity) {
			maxSeverity = delta.Severity
		}
	}

	severity := severityByDelta[maxSeverity]
	if len(deltas) >= 3 {
		severity = models.EscalateEventSeverity(severity)
	}
	return severity
}

func predictTiming(eventType models.EventType) (string, float64) {
	if timing, ok := timingByType[eventType]; ok {
		return timing, 0.5
	}
	return models.TimingHours, 0.3
}

func buildReasoning(eventType models.EventType, deltas []models.Delta) string {
	descriptions := make([]string, 0, 3)
	for _, delta := range deltas {
		descriptions = append(descriptions, delta.Description)
		if len(descriptions) == 3 {
			break
		}
	}
	summary := strings.Join(descriptions, "; ")

	if template, ok := reasoningByType[eventType]; ok {
		return fmt.Sprintf(template, summary)
	}
	return fmt.Sprintf("Anomaly detected: %s", summary)
}

// CreateEvent builds a DetectedEvent from deltas. A provided cluster is
// classified directly; multiple loose deltas get a synthetic cluster so
// their combined pattern is what gets classified. Empty input still yields
// an event: an empty cluster has no recognized pattern, so classification
// falls through to the low-confidence anomaly.
func (c *Classifier) CreateEvent(entity string, deltas []models.Delta, cluster *models.DeltaCluster) models.DetectedEvent {
	now := time.Now().UTC()
	var event models.DetectedEvent

	switch {
	case cluster != nil:
		classification := c.ClassifyCluster(*cluster)
		event = models.EventFromCluster(common.NewEventID(), cluster, classification, now)
	case len(deltas) == 1:
		classification := c.ClassifyDelta(deltas[0])
		event = models.EventFromDelta(common.NewEventID(), deltas[0], classification, entity, now)
	default:
		synthetic := &models.DeltaCluster{
			ClusterID: common.NewClusterID(),
			Entity:    entity,
			// Empty clusters carry the fallback confidence unscaled.
			ReinforcementScore: 1.0,
		}
		for _, delta := range deltas {
			synthetic.AddDelta(delta)
		}
		classification := c.ClassifyCluster(*synthetic)
		event = models.EventFromCluster(common.NewEventID(), synthetic, classification, now)
	}

	event.Title = buildTitle(event.Type, event.Entity)
	event.MarketPrediction = models.MarketPrediction{
		Direction:           event.Classification.PredictedDirection,
		DirectionConfidence: event.Classification.DirectionConfidence,
		Magnitude:           event.Classification.PredictedMagnitude,
		MagnitudeConfidence: event.Classification.MagnitudeConfidence,
		Timing:              event.Classification.PredictedTiming,
		TimingConfidence:    event.Classification.TimingConfidence,
	}

	c.logger.Info().
		Str("event_id", event.EventID).
		Str("entity", event.Entity).
		Str("event_type", string(event.Type)).
		Msg("Created event")

	return event
}

func buildTitle(eventType models.EventType, entity string) string {
	if template, ok := titleByType[eventType]; ok {
		return fmt.Sprintf(template, entity)
	}
	return fmt.Sprintf("Event detected for %s", entity)
}
