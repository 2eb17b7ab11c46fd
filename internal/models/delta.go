package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// DeltaType discriminates the variants of a detected discourse gap.
type DeltaType string

const (
	DeltaTopicAbsence        DeltaType = "topic_absence"
	DeltaVoiceSilence        DeltaType = "voice_silence"
	DeltaSentimentDecoupling DeltaType = "sentiment_decoupling"
	DeltaNetworkBreak        DeltaType = "network_break"
	DeltaVolumeCollapse      DeltaType = "volume_collapse"
	DeltaVolumeSpike         DeltaType = "volume_spike"
	DeltaCoordinatedSilence  DeltaType = "coordinated_silence"
)

// DeltaSeverity orders the significance of a detected delta.
type DeltaSeverity string

const (
	SeverityLow      DeltaSeverity = "low"
	SeverityMedium   DeltaSeverity = "medium"
	SeverityHigh     DeltaSeverity = "high"
	SeverityCritical DeltaSeverity = "critical"
)

var severityOrder = []DeltaSeverity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// SeverityRank returns the position of a severity in LOW..CRITICAL order.
func SeverityRank(s DeltaSeverity) int {
	for i, v := range severityOrder {
		if v == s {
			return i
		}
	}
	return 0
}

// SeverityWeight returns the clustering weight of a severity (LOW=1..CRITICAL=4).
func SeverityWeight(s DeltaSeverity) int {
	return SeverityRank(s) + 1
}

// EscalateSeverity bumps a severity one level, capped at CRITICAL.
func EscalateSeverity(s DeltaSeverity) DeltaSeverity {
	idx := SeverityRank(s)
	if idx < len(severityOrder)-1 {
		return severityOrder[idx+1]
	}
	return s
}

// TopicAbsenceDetails is the payload for a topic that stopped being mentioned.
type TopicAbsenceDetails struct {
	TopicID          string  `json:"topic_id"`
	TopicName        string  `json:"topic_name"`
	ExpectedMentions float64 `json:"expected_mentions"`
	ObservedMentions int     `json:"observed_mentions"`
	TopicImportance  float64 `json:"topic_importance"`
	IsRequiredTopic  bool    `json:"is_required_topic"`
}

// VoiceSilenceDetails is the payload for an expected voice gone quiet.
type VoiceSilenceDetails struct {
	AccountID            string     `json:"account_id"`
	Username             string     `json:"username"`
	SilenceHours         float64    `json:"silence_hours"`
	ExpectedPosts        float64    `json:"expected_posts"`
	ObservedPosts        int        `json:"observed_posts"`
	LastPostTime         *time.Time `json:"last_post_time,omitempty"`
	TypicalPostFrequency float64    `json:"typical_post_frequency"`
	IsKeyVoice           bool       `json:"is_key_voice"`
	InfluenceScore       float64    `json:"influence_score"`
}

// SentimentDecouplingDetails is the payload for tone diverging from context.
type SentimentDecouplingDetails struct {
	ExpectedSentiment float64  `json:"expected_sentiment"`
	ObservedSentiment float64  `json:"observed_sentiment"`
	SentimentGap      float64  `json:"sentiment_gap"`
	ContextTrigger    string   `json:"context_trigger,omitempty"`
	ZScore            float64  `json:"z_score"`
	ObservedTones     []string `json:"observed_tones,omitempty"`
	ExpectedTones     []string `json:"expected_tones,omitempty"`
}

// NetworkBreakDetails is the payload for an expected response that never came.
type NetworkBreakDetails struct {
	ExpectedResponderID    string  `json:"expected_responder_id"`
	ExpectedResponderName  string  `json:"expected_responder_name"`
	TriggerAuthor          string  `json:"trigger_author"`
	TriggerTopic           string  `json:"trigger_topic"`
	WaitTimeHours          float64 `json:"wait_time_hours"`
	ResponseWindowHours    float64 `json:"response_window_hours"`
	HistoricalResponseRate float64 `json:"historical_response_rate"`
}

// VolumeAnomalyDetails is the payload for volume falling far below or rising
// far above expectation.
type VolumeAnomalyDetails struct {
	ExpectedVolume  float64 `json:"expected_volume"`
	ObservedVolume  int     `json:"observed_volume"`
	VolumeRatio     float64 `json:"volume_ratio"`
	BaselineVolume  float64 `json:"baseline_volume"`
	VolumeStddev    float64 `json:"volume_stddev"`
	ZScore          float64 `json:"z_score"`
	IsCollapse      bool    `json:"is_collapse"`
	UniqueAuthors   int     `json:"unique_authors"`
	ExpectedAuthors float64 `json:"expected_authors"`
}

// CoordinatedSilenceDetails is the payload for multiple voices going quiet
// together.
type CoordinatedSilenceDetails struct {
	SilentAccounts    []string    `json:"silent_accounts"`
	SilentUsernames   []string    `json:"silent_usernames"`
	SilenceStartTimes []time.Time `json:"silence_start_times,omitempty"`
	TimeSpreadHours   float64     `json:"time_spread_hours"`
	CoordinationScore float64     `json:"coordination_score"`
}

// Delta is a detected gap between expected and observed discourse. It is a
// tagged union: Type selects which details pointer is populated.
type Delta struct {
	DeltaID string    `json:"delta_id"`
	Type    DeltaType `json:"delta_type"`
	Entity  string    `json:"entity"`

	DetectedAt  time.Time `json:"detected_at"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	Severity   DeltaSeverity `json:"severity"`
	Confidence float64       `json:"confidence"`

	ExpectedValue  string  `json:"expected_value"`
	ObservedValue  string  `json:"observed_value"`
	DeviationScore float64 `json:"deviation_score"`

	Description string   `json:"description"`
	Evidence    []string `json:"evidence,omitempty"`

	Validated bool `json:"validated"`

	TopicAbsence        *TopicAbsenceDetails        `json:"topic_absence,omitempty"`
	VoiceSilence        *VoiceSilenceDetails        `json:"voice_silence,omitempty"`
	SentimentDecoupling *SentimentDecouplingDetails `json:"sentiment_decoupling,omitempty"`
	NetworkBreak        *NetworkBreakDetails        `json:"network_break,omitempty"`
	VolumeAnomaly       *VolumeAnomalyDetails       `json:"volume_anomaly,omitempty"`
	CoordinatedSilence  *CoordinatedSilenceDetails  `json:"coordinated_silence,omitempty"`
}

// ClampUnit restricts a value to [0, 1].
func ClampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// NewTopicAbsenceDelta builds a topic absence delta with its deviation score
// and description derived from the details.
func NewTopicAbsenceDelta(id, entity string, detectedAt, windowStart, windowEnd time.Time, d TopicAbsenceDetails, confidence float64) Delta {
	deviation := 0.0
	if d.ExpectedMentions > 0 {
		deviation = 1.0 - float64(d.ObservedMentions)/d.ExpectedMentions
	}
	return Delta{
		DeltaID:        id,
		Type:           DeltaTopicAbsence,
		Entity:         entity,
		DetectedAt:     detectedAt,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		Severity:       SeverityMedium,
		Confidence:     ClampUnit(confidence),
		ExpectedValue:  fmt.Sprintf("%.1f", d.ExpectedMentions),
		ObservedValue:  fmt.Sprintf("%d", d.ObservedMentions),
		DeviationScore: ClampUnit(deviation),
		Description: fmt.Sprintf(
			"Topic '%s' not mentioned for %s. Expected ~%.0f mentions, saw %d.",
			d.TopicName, entity, d.ExpectedMentions, d.ObservedMentions),
		TopicAbsence: &d,
	}
}

// NewVoiceSilenceDelta builds a voice silence delta.
func NewVoiceSilenceDelta(id, entity string, detectedAt, windowStart, windowEnd time.Time, d VoiceSilenceDetails, confidence float64) Delta {
	deviation := 0.0
	if d.ExpectedPosts > 0 {
		deviation = 1.0 - float64(d.ObservedPosts)/d.ExpectedPosts
	}
	role := "regular"
	if d.IsKeyVoice {
		role = "key_voice"
	}
	return Delta{
		DeltaID:        id,
		Type:           DeltaVoiceSilence,
		Entity:         entity,
		DetectedAt:     detectedAt,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		Severity:       SeverityMedium,
		Confidence:     ClampUnit(confidence),
		ExpectedValue:  fmt.Sprintf("%.1f", d.ExpectedPosts),
		ObservedValue:  fmt.Sprintf("%d", d.ObservedPosts),
		DeviationScore: ClampUnit(deviation),
		Description: fmt.Sprintf(
			"@%s (%s) silent for %.1f hours. Expected ~%.0f posts, saw %d.",
			d.Username, role, d.SilenceHours, d.ExpectedPosts, d.ObservedPosts),
		VoiceSilence: &d,
	}
}

// NewSentimentDecouplingDelta builds a sentiment decoupling delta. The gap is
// normalized by the full [-1,1] sentiment span for the deviation score.
func NewSentimentDecouplingDelta(id, entity string, detectedAt, windowStart, windowEnd time.Time, d SentimentDecouplingDetails, confidence float64) Delta {
	d.SentimentGap = d.ObservedSentiment - d.ExpectedSentiment

	expectedDir := "negative"
	if d.ExpectedSentiment > 0 {
		expectedDir = "positive"
	}
	observedDir := "positive"
	if d.ObservedSentiment < 0 {
		observedDir = "negative"
	}
	return Delta{
		DeltaID:        id,
		Type:           DeltaSentimentDecoupling,
		Entity:         entity,
		DetectedAt:     detectedAt,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		Severity:       SeverityMedium,
		Confidence:     ClampUnit(confidence),
		ExpectedValue:  fmt.Sprintf("%.2f", d.ExpectedSentiment),
		ObservedValue:  fmt.Sprintf("%.2f", d.ObservedSentiment),
		DeviationScore: ClampUnit(math.Abs(d.SentimentGap) / 2.0),
		Description: fmt.Sprintf(
			"Sentiment mismatch for %s: expected %s (%.2f), observed %s (%.2f). Gap: %.2f",
			entity, expectedDir, d.ExpectedSentiment, observedDir, d.ObservedSentiment, d.SentimentGap),
		SentimentDecoupling: &d,
	}
}

// NewNetworkBreakDelta builds a network break delta for a missing response.
func NewNetworkBreakDelta(id, entity string, detectedAt, windowStart, windowEnd time.Time, d NetworkBreakDetails, confidence float64) Delta {
	deviation := 0.0
	if d.ResponseWindowHours > 0 {
		deviation = math.Min(1.0, d.WaitTimeHours/d.ResponseWindowHours)
	}
	return Delta{
		DeltaID:        id,
		Type:           DeltaNetworkBreak,
		Entity:         entity,
		DetectedAt:     detectedAt,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		Severity:       SeverityMedium,
		Confidence:     ClampUnit(confidence),
		ExpectedValue:  "response",
		ObservedValue:  "no response",
		DeviationScore: deviation,
		Description: fmt.Sprintf(
			"@%s did not respond to @%s's post about %s. Usually responds %.0f%% of the time.",
			d.ExpectedResponderName, d.TriggerAuthor, d.TriggerTopic, d.HistoricalResponseRate*100),
		NetworkBreak: &d,
	}
}

// NewVolumeAnomalyDelta builds a volume collapse or spike delta depending on
// the observed/expected ratio.
func NewVolumeAnomalyDelta(id, entity string, detectedAt, windowStart, windowEnd time.Time, d VolumeAnomalyDetails, confidence float64) Delta {
	deviation := 0.0
	if d.ExpectedVolume > 0 {
		d.VolumeRatio = float64(d.ObservedVolume) / d.ExpectedVolume
		deviation = math.Abs(1.0 - d.VolumeRatio)
	}
	d.IsCollapse = d.VolumeRatio < 0.5

	deltaType := DeltaVolumeSpike
	direction := "above"
	if d.IsCollapse {
		deltaType = DeltaVolumeCollapse
		direction = "below"
	}
	return Delta{
		DeltaID:        id,
		Type:           deltaType,
		Entity:         entity,
		DetectedAt:     detectedAt,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		Severity:       SeverityMedium,
		Confidence:     ClampUnit(confidence),
		ExpectedValue:  fmt.Sprintf("%.1f", d.ExpectedVolume),
		ObservedValue:  fmt.Sprintf("%d", d.ObservedVolume),
		DeviationScore: ClampUnit(deviation),
		Description: fmt.Sprintf(
			"Volume %s expectations for %s: expected ~%.0f, observed %d (%.1f%% of expected). Z-score: %.2f",
			direction, entity, d.ExpectedVolume, d.ObservedVolume, d.VolumeRatio*100, d.ZScore),
		VolumeAnomaly: &d,
	}
}

// NewCoordinatedSilenceDelta builds a coordinated silence delta.
func NewCoordinatedSilenceDelta(id, entity string, detectedAt, windowStart, windowEnd time.Time, d CoordinatedSilenceDetails, confidence float64) Delta {
	names := strings.Join(firstN(d.SilentUsernames, 3), ", ")
	if len(d.SilentUsernames) > 3 {
		names += fmt.Sprintf(", and %d others", len(d.SilentUsernames)-3)
	}
	return Delta{
		DeltaID:        id,
		Type:           DeltaCoordinatedSilence,
		Entity:         entity,
		DetectedAt:     detectedAt,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		Severity:       SeverityMedium,
		Confidence:     ClampUnit(confidence),
		ExpectedValue:  fmt.Sprintf("%d voices active", len(d.SilentAccounts)),
		ObservedValue:  "all silent",
		DeviationScore: ClampUnit(d.CoordinationScore),
		Description: fmt.Sprintf(
			"Coordinated silence detected: %s all went quiet within %.1f hours about %s. Coordination score: %.2f",
			names, d.TimeSpreadHours, entity, d.CoordinationScore),
		CoordinatedSilence: &d,
	}
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// DeltaCluster is a time-windowed group of mutually reinforcing deltas for
// one entity. Multiple weak signals can combine into a strong one.
type DeltaCluster struct {
	ClusterID string `json:"cluster_id"`
	Entity    string `json:"entity"`

	Deltas     []Delta     `json:"deltas"`
	DeltaTypes []DeltaType `json:"delta_types"`

	FirstDeltaTime *time.Time `json:"first_delta_time,omitempty"`
	LastDeltaTime  *time.Time `json:"last_delta_time,omitempty"`

	CombinedSeverity   DeltaSeverity `json:"combined_severity"`
	CombinedConfidence float64       `json:"combined_confidence"`
	ReinforcementScore float64       `json:"reinforcement_score"`

	Summary string `json:"summary,omitempty"`
}

// AddDelta appends a delta and recalculates cluster significance.
func (c *DeltaCluster) AddDelta(delta Delta) {
	c.Deltas = append(c.Deltas, delta)
	c.DeltaTypes = append(c.DeltaTypes, delta.Type)

	at := delta.DetectedAt
	if c.FirstDeltaTime == nil || at.Before(*c.FirstDeltaTime) {
		t := at
		c.FirstDeltaTime = &t
	}
	if c.LastDeltaTime == nil || at.After(*c.LastDeltaTime) {
		t := at
		c.LastDeltaTime = &t
	}

	c.recalculate()
}

// UniqueTypes returns the distinct delta types in the cluster, sorted.
func (c *DeltaCluster) UniqueTypes() []DeltaType {
	seen := make(map[DeltaType]bool)
	var types []DeltaType
	for _, t := range c.DeltaTypes {
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// recalculate recomputes combined confidence (severity-weighted mean),
// combined severity (max member severity, escalated one level when three or
// more distinct delta types reinforce each other), and the reinforcement
// score (unique types / 4, capped at 1).
func (c *DeltaCluster) recalculate() {
	if len(c.Deltas) == 0 {
		return
	}

	totalWeight := 0
	weightedConfidence := 0.0
	maxSeverity := SeverityLow

	for _, d := range c.Deltas {
		w := SeverityWeight(d.Severity)
		totalWeight += w
		weightedConfidence += d.Confidence * float64(w)
		if SeverityRank(d.Severity) > SeverityRank(maxSeverity) {
			maxSeverity = d.Severity
		}
	}

	if totalWeight > 0 {
		c.CombinedConfidence = weightedConfidence / float64(totalWeight)
	}

	uniqueTypes := len(c.UniqueTypes())
	if uniqueTypes >= 3 && maxSeverity != SeverityCritical {
		maxSeverity = EscalateSeverity(maxSeverity)
	}

	c.CombinedSeverity = maxSeverity
	c.ReinforcementScore = math.Min(1.0, float64(uniqueTypes)/4)
	c.Summary = c.buildSummary()
}

func (c *DeltaCluster) buildSummary() string {
	types := c.UniqueTypes()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return fmt.Sprintf("%d deltas for %s (%s), combined severity %s",
		len(c.Deltas), c.Entity, strings.Join(names, ", "), c.CombinedSeverity)
}
