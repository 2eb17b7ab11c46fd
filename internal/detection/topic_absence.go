package detection

import (
	"math"
	"time"

	"github.com/ternarybob/tacet/internal/common"
	"github.com/ternarybob/tacet/internal/models"
)

// TopicAbsenceAnalyzer detects when expected topics go undiscussed. People
// going quiet about something they usually discuss is one of the strongest
// signals in the pipeline.
type TopicAbsenceAnalyzer struct {
	// Ratio of observed to expected mentions below which a topic counts as
	// absent.
	Threshold float64
}

// NewTopicAbsenceAnalyzer creates the analyzer with the default 0.3 absence
// threshold.
func NewTopicAbsenceAnalyzer() *TopicAbsenceAnalyzer {
	return &TopicAbsenceAnalyzer{Threshold: 0.3}
}

func (a *TopicAbsenceAnalyzer) Name() string { return "topic_absence" }

// Analyze returns a delta for every expected topic whose observed mention
// count sits below the absence threshold.
func (a *TopicAbsenceAnalyzer) Analyze(snapshot models.DiscourseSnapshot, expectation models.DiscourseExpectation) []models.Delta {
	var deltas []models.Delta
	now := time.Now().UTC()

	for _, topic := range expectation.ExpectedTopics {
		observed := snapshot.TopicVolume(topic.TopicID)
		expected := topic.ExpectedMentionCount

		if expected < 1 {
			continue
		}

		ratio := float64(observed) / expected
		if ratio >= a.Threshold {
			continue
		}

		isRequired := expectation.IsTopicRequired(topic.TopicID)

		confidence := math.Min(0.95, (a.Threshold-ratio)/a.Threshold+0.3)
		if isRequired {
			confidence = math.Min(0.99, confidence+0.2)
		}

		deltas = append(deltas, models.NewTopicAbsenceDelta(
			common.NewDeltaID(),
			snapshot.Entity,
			now,
			snapshot.WindowStart,
			snapshot.WindowEnd,
			models.TopicAbsenceDetails{
				TopicID:          topic.TopicID,
				TopicName:        topic.TopicName,
				ExpectedMentions: expected,
				ObservedMentions: observed,
				TopicImportance:  topic.AbsenceSeverity,
				IsRequiredTopic:  isRequired,
			},
			confidence,
		))
	}

	return deltas
}
