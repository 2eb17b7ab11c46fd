// Package expectation combines baselines and active triggers into concrete
// expectations: what discourse SHOULD look like for an entity in a time
// window.
package expectation

import (
	"math"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacet/internal/baseline"
	"github.com/ternarybob/tacet/internal/common"
	"github.com/ternarybob/tacet/internal/models"
	"github.com/ternarybob/tacet/internal/triggers"
)

// Generator produces DiscourseExpectation records by projecting cached
// baselines onto a time window and applying active context triggers.
type Generator struct {
	builder        *baseline.Builder
	triggerManager *triggers.Manager
	decayFactor    float64

	mu        sync.RWMutex
	baselines map[string]models.BaselinePattern

	logger arbor.ILogger
}

// NewGenerator creates an expectation generator. decayFactor controls
// incremental baseline updates.
func NewGenerator(builder *baseline.Builder, triggerManager *triggers.Manager, decayFactor float64) *Generator {
	return &Generator{
		builder:        builder,
		triggerManager: triggerManager,
		decayFactor:    decayFactor,
		baselines:      make(map[string]models.BaselinePattern),
		logger:         common.GetLogger().WithPrefix("expectation"),
	}
}

// LoadBaseline installs a pre-computed baseline for an entity.
func (g *Generator) LoadBaseline(entity string, pattern models.BaselinePattern) {
	g.mu.Lock()
	g.baselines[entity] = pattern
	g.mu.Unlock()
	g.logger.Info().Str("entity", entity).Msg("Loaded baseline")
}

// BuildBaseline builds and caches a baseline from historical snapshots.
func (g *Generator) BuildBaseline(entity string, history []models.DiscourseSnapshot) {
	pattern := g.builder.BuildBaseline(entity, history, models.WindowHour)
	g.mu.Lock()
	g.baselines[entity] = pattern
	g.mu.Unlock()
	g.logger.Info().Str("entity", entity).Int("snapshots", len(history)).Msg("Built baseline")
}

// Baseline returns the cached baseline for an entity, if any.
func (g *Generator) Baseline(entity string) (models.BaselinePattern, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	pattern, ok := g.baselines[entity]
	return pattern, ok
}

// UpdateWithNewData merges new snapshots into the entity's baseline, or
// builds one if none exists.
func (g *Generator) UpdateWithNewData(entity string, newSnapshots []models.DiscourseSnapshot) {
	g.mu.Lock()
	existing, ok := g.baselines[entity]
	g.mu.Unlock()

	if !ok {
		g.BuildBaseline(entity, newSnapshots)
		return
	}

	updated := g.builder.UpdateBaseline(existing, newSnapshots, g.decayFactor)
	g.mu.Lock()
	g.baselines[entity] = updated
	g.mu.Unlock()
	g.logger.Info().Str("entity", entity).Int("snapshots", len(newSnapshots)).Msg("Updated baseline")
}

// GenerateExpectation produces the expectation for an entity in a time
// window: baseline projection plus all triggers active at the window start.
// Without a baseline the expectation is wide open and low confidence.
func (g *Generator) GenerateExpectation(entity string, windowStart, windowEnd time.Time) models.DiscourseExpectation {
	pattern, ok := g.Baseline(entity)
	if !ok {
		g.logger.Warn().Str("entity", entity).Msg("No baseline, using empty expectation")
		return emptyExpectation(entity, windowStart, windowEnd)
	}

	exp := expectationFromBaseline(entity, pattern, windowStart, windowEnd)

	for _, trigger := range g.triggerManager.GetActiveTriggers(entity, windowStart) {
		exp.ApplyTrigger(trigger)
		g.logger.Debug().Str("entity", entity).Str("trigger", trigger.Name).Msg("Applied trigger")
	}

	return exp
}

func expectationFromBaseline(entity string, pattern models.BaselinePattern, windowStart, windowEnd time.Time) models.DiscourseExpectation {
	expectedVolume := pattern.ExpectedVolumeAt(windowStart)

	volumeMin := math.Max(0, expectedVolume-2*pattern.PostStddev)
	volumeMax := expectedVolume + 2*pattern.PostStddev

	sentimentMin := pattern.AvgSentiment - 2*pattern.SentimentStddev
	sentimentMax := pattern.AvgSentiment + 2*pattern.SentimentStddev

	var expectedTopics []models.ExpectedTopic
	for _, t := range pattern.TypicalTopics {
		if t.Confidence > 0.5 {
			expectedTopics = append(expectedTopics, t)
		}
	}

	var expectedVoices []models.ExpectedVoice
	for _, v := range pattern.TypicalVoices {
		if v.ExpectedToBeActive(windowStart) {
			expectedVoices = append(expectedVoices, v)
		}
	}

	var requiredTopics []string
	for _, t := range expectedTopics {
		if t.AbsenceSeverity > 0.7 {
			requiredTopics = append(requiredTopics, t.TopicID)
		}
	}

	var requiredVoices []string
	for _, v := range expectedVoices {
		if v.IsKeyVoice {
			requiredVoices = append(requiredVoices, v.AccountID)
		}
	}

	return models.DiscourseExpectation{
		ExpectationID:     common.NewExpectationID(),
		Entity:            entity,
		WindowStart:       windowStart,
		WindowEnd:         windowEnd,
		Baseline:          pattern,
		ExpectedPostCount: expectedVolume,
		PostCountRange:    models.Range{Min: volumeMin, Max: volumeMax},
		ExpectedTopics:    expectedTopics,
		RequiredTopics:    requiredTopics,
		ExpectedVoices:    expectedVoices,
		RequiredVoices:    requiredVoices,
		ExpectedSentiment: pattern.AvgSentiment,
		SentimentRange:    models.Range{Min: sentimentMin, Max: sentimentMax},
		Confidence:        math.Min(0.9, float64(pattern.SampleSize)/100),
	}
}

func emptyExpectation(entity string, windowStart, windowEnd time.Time) models.DiscourseExpectation {
	return models.DiscourseExpectation{
		ExpectationID:     common.NewExpectationID(),
		Entity:            entity,
		WindowStart:       windowStart,
		WindowEnd:         windowEnd,
		ExpectedPostCount: 0,
		PostCountRange:    models.Range{Min: 0, Max: math.Inf(1)},
		ExpectedSentiment: 0.0,
		SentimentRange:    models.Range{Min: -1.0, Max: 1.0},
		Confidence:        0.1,
	}
}

// VolumeComparison describes observed versus expected volume.
type VolumeComparison struct {
	Expected  float64 `json:"expected"`
	Observed  int     `json:"observed"`
	Ratio     float64 `json:"ratio"`
	Anomalous bool    `json:"anomalous"`
}

// SentimentComparison describes observed versus expected sentiment.
type SentimentComparison struct {
	Expected   float64 `json:"expected"`
	Observed   float64 `json:"observed"`
	Difference float64 `json:"difference"`
	Anomalous  bool    `json:"anomalous"`
}

// TopicPresence describes one expected topic's observed volume.
type TopicPresence struct {
	Expected  float64 `json:"expected"`
	Observed  int     `json:"observed"`
	Anomalous bool    `json:"anomalous"`
	ZScore    float64 `json:"z_score"`
}

// Comparison summarizes the differences between an expectation and an
// observed snapshot, for delta detection and the API.
type Comparison struct {
	Volume                VolumeComparison         `json:"volume"`
	Sentiment             SentimentComparison      `json:"sentiment"`
	MissingRequiredTopics []string                 `json:"missing_required_topics,omitempty"`
	MissingRequiredVoices []string                 `json:"missing_required_voices,omitempty"`
	TopicPresence         map[string]TopicPresence `json:"topic_presence,omitempty"`
	OverallDeviationScore float64                  `json:"overall_deviation_score"`
}

// CompareToObservation measures how far an observed snapshot sits from an
// expectation.
func (g *Generator) CompareToObservation(exp models.DiscourseExpectation, obs models.DiscourseSnapshot) Comparison {
	volumeRatio := math.Inf(1)
	if exp.ExpectedPostCount > 0 {
		volumeRatio = float64(obs.TotalPosts) / exp.ExpectedPostCount
	}

	sentimentDiff := obs.AvgSentiment - exp.ExpectedSentiment

	var missingTopics []string
	for _, topicID := range exp.RequiredTopics {
		if obs.TopicVolume(topicID) == 0 {
			missingTopics = append(missingTopics, topicID)
		}
	}

	observedVoices := obs.ActiveAccountIDs()
	var missingVoices []string
	for _, accountID := range exp.RequiredVoices {
		if !observedVoices[accountID] {
			missingVoices = append(missingVoices, accountID)
		}
	}

	topicPresence := make(map[string]TopicPresence, len(exp.ExpectedTopics))
	for _, topic := range exp.ExpectedTopics {
		observed := obs.TopicVolume(topic.TopicID)
		anomalous, z := topic.IsAnomalousCount(observed)
		topicPresence[topic.TopicID] = TopicPresence{
			Expected:  topic.ExpectedMentionCount,
			Observed:  observed,
			Anomalous: anomalous,
			ZScore:    z,
		}
	}

	return Comparison{
		Volume: VolumeComparison{
			Expected:  exp.ExpectedPostCount,
			Observed:  obs.TotalPosts,
			Ratio:     volumeRatio,
			Anomalous: volumeRatio < 0.5 || volumeRatio > 2.0,
		},
		Sentiment: SentimentComparison{
			Expected:   exp.ExpectedSentiment,
			Observed:   obs.AvgSentiment,
			Difference: sentimentDiff,
			Anomalous:  math.Abs(sentimentDiff) > 2*exp.Baseline.SentimentStddev,
		},
		MissingRequiredTopics: missingTopics,
		MissingRequiredVoices: missingVoices,
		TopicPresence:         topicPresence,
		OverallDeviationScore: deviationScore(volumeRatio, sentimentDiff, len(missingTopics), len(missingVoices)),
	}
}

// deviationScore weights volume (0.3), sentiment (0.3), missing topics (0.2)
// and missing voices (0.2) into one 0-1 score.
func deviationScore(volumeRatio, sentimentDiff float64, missingTopics, missingVoices int) float64 {
	score := 0.0

	if volumeRatio < 1 {
		score += (1 - volumeRatio) * 0.3
	} else {
		score += math.Min(1.0, (volumeRatio-1)/3) * 0.3
	}

	score += math.Min(1.0, math.Abs(sentimentDiff)) * 0.3
	score += math.Min(1.0, float64(missingTopics)/3) * 0.2
	score += math.Min(1.0, float64(missingVoices)/3) * 0.2

	return math.Min(1.0, score)
}

// Summary is a human-readable projection of an expectation for the API.
type Summary struct {
	Entity              string   `json:"entity"`
	Time                string   `json:"time"`
	Confidence          float64  `json:"confidence"`
	ExpectedPostCount   float64  `json:"expected_post_count"`
	PostCountRange      [2]float64 `json:"post_count_range"`
	ExpectedSentiment   float64  `json:"expected_sentiment"`
	SentimentRange      [2]float64 `json:"sentiment_range"`
	RequiredTopics      []string `json:"required_topics,omitempty"`
	ExpectedVoicesCount int      `json:"expected_voices_count"`
	RequiredVoices      []string `json:"required_voices,omitempty"`
	ActiveTriggers      []string `json:"active_triggers,omitempty"`
}

// GetExpectationSummary generates a one-hour expectation at the given time
// and summarizes it.
func (g *Generator) GetExpectationSummary(entity string, at time.Time) Summary {
	exp := g.GenerateExpectation(entity, at, at.Add(time.Hour))

	var triggerNames []string
	for _, t := range exp.ActiveTriggers {
		triggerNames = append(triggerNames, t.Name)
	}

	return Summary{
		Entity:              entity,
		Time:                at.Format(time.RFC3339),
		Confidence:          exp.Confidence,
		ExpectedPostCount:   exp.ExpectedPostCount,
		PostCountRange:      [2]float64{exp.PostCountRange.Min, exp.PostCountRange.Max},
		ExpectedSentiment:   exp.ExpectedSentiment,
		SentimentRange:      [2]float64{exp.SentimentRange.Min, exp.SentimentRange.Max},
		RequiredTopics:      exp.RequiredTopics,
		ExpectedVoicesCount: len(exp.ExpectedVoices),
		RequiredVoices:      exp.RequiredVoices,
		ActiveTriggers:      triggerNames,
	}
}
