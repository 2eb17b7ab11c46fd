package detection

import (
	"math"
	"time"

	"github.com/ternarybob/tacet/internal/common"
	"github.com/ternarybob/tacet/internal/models"
)

// SentimentDecouplingAnalyzer detects tone that does not match expectations,
// overall and per topic. Sentiment decoupled from context can mean insiders
// know something, or that sentiment is being manipulated.
type SentimentDecouplingAnalyzer struct {
	// Standard deviations from expected before flagging.
	ZThreshold float64
}

// NewSentimentDecouplingAnalyzer creates the analyzer with the default two
// sigma threshold.
func NewSentimentDecouplingAnalyzer() *SentimentDecouplingAnalyzer {
	return &SentimentDecouplingAnalyzer{ZThreshold: 2.0}
}

func (a *SentimentDecouplingAnalyzer) Name() string { return "sentiment_decoupling" }

func (a *SentimentDecouplingAnalyzer) Analyze(snapshot models.DiscourseSnapshot, expectation models.DiscourseExpectation) []models.Delta {
	var deltas []models.Delta

	if delta, ok := a.checkOverall(snapshot, expectation); ok {
		deltas = append(deltas, delta)
	}
	deltas = append(deltas, a.checkTopics(snapshot, expectation)...)

	return deltas
}

func (a *SentimentDecouplingAnalyzer) checkOverall(snapshot models.DiscourseSnapshot, expectation models.DiscourseExpectation) (models.Delta, bool) {
	observed := snapshot.AvgSentiment
	expected := expectation.ExpectedSentiment
	stddev := expectation.Baseline.SentimentStddev

	if stddev == 0 {
		return models.Delta{}, false
	}

	z := (observed - expected) / stddev
	if math.Abs(z) < a.ZThreshold {
		return models.Delta{}, false
	}

	confidence := math.Min(0.95, 0.4+(math.Abs(z)-a.ZThreshold)*0.1)

	return models.NewSentimentDecouplingDelta(
		common.NewDeltaID(),
		snapshot.Entity,
		time.Now().UTC(),
		snapshot.WindowStart,
		snapshot.WindowEnd,
		models.SentimentDecouplingDetails{
			ExpectedSentiment: expected,
			ObservedSentiment: observed,
			ZScore:            z,
			ObservedTones:     snapshot.DominantTones,
			ExpectedTones:     inferTones(expected),
		},
		confidence,
	), true
}

func (a *SentimentDecouplingAnalyzer) checkTopics(snapshot models.DiscourseSnapshot, expectation models.DiscourseExpectation) []models.Delta {
	var deltas []models.Delta
	now := time.Now().UTC()

	for _, topic := range expectation.ExpectedTopics {
		observed, ok := snapshot.TopicSentiment(topic.TopicID)
		if !ok {
			continue
		}
		if topic.SentimentStddev == 0 {
			continue
		}

		z := (observed - topic.ExpectedSentiment) / topic.SentimentStddev
		if math.Abs(z) < a.ZThreshold {
			continue
		}

		confidence := math.Min(0.9, 0.3+(math.Abs(z)-a.ZThreshold)*0.1)

		deltas = append(deltas, models.NewSentimentDecouplingDelta(
			common.NewDeltaID(),
			snapshot.Entity,
			now,
			snapshot.WindowStart,
			snapshot.WindowEnd,
			models.SentimentDecouplingDetails{
				ExpectedSentiment: topic.ExpectedSentiment,
				ObservedSentiment: observed,
				ContextTrigger:    "Topic: " + topic.TopicName,
				ZScore:            z,
			},
			confidence,
		))
	}

	return deltas
}

// inferTones maps a sentiment value to the tones we would expect to see.
func inferTones(sentiment float64) []string {
	switch {
	case sentiment > 0.3:
		return []string{"positive", "optimistic"}
	case sentiment < -0.3:
		return []string{"negative", "concerned"}
	default:
		return []string{"neutral"}
	}
}
