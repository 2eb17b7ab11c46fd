package models

import (
	"math"
	"time"
)

// TriggerType identifies events that modify discourse expectations.
type TriggerType string

const (
	TriggerEarningsRelease  TriggerType = "earnings_release"
	TriggerProductLaunch    TriggerType = "product_launch"
	TriggerExecutiveChange  TriggerType = "executive_change"
	TriggerRegulatoryFiling TriggerType = "regulatory_filing"
	TriggerNewsBreaking     TriggerType = "news_breaking"
	TriggerMarketOpen       TriggerType = "market_open"
	TriggerMarketClose      TriggerType = "market_close"
	TriggerCompetitorEvent  TriggerType = "competitor_event"
	TriggerSeasonal         TriggerType = "seasonal"
	TriggerCustom           TriggerType = "custom"
)

// TimeWindow is the granularity a baseline pattern was built at.
type TimeWindow string

const (
	WindowHour          TimeWindow = "hour"
	WindowMarketSession TimeWindow = "market_session"
	WindowTradingDay    TimeWindow = "trading_day"
	WindowWeek          TimeWindow = "week"
)

// ExpectedTopic is a topic expected to be discussed for an entity, with
// baseline metrics and acceptable variance.
type ExpectedTopic struct {
	TopicID   string `json:"topic_id"`
	TopicName string `json:"topic_name"`

	ExpectedMentionCount float64 `json:"expected_mention_count"`
	MentionStddev        float64 `json:"mention_stddev"`

	ExpectedSentiment float64 `json:"expected_sentiment"`
	SentimentStddev   float64 `json:"sentiment_stddev"`

	Confidence float64 `json:"confidence"`
	SampleSize int     `json:"sample_size"`

	// How significant the absence of this topic is, 0-1.
	AbsenceSeverity float64 `json:"absence_severity"`
}

// IsAnomalousCount reports whether an observed mention count deviates more
// than two standard deviations from expectation, along with the z-score.
// A zero stddev disables the check.
func (t ExpectedTopic) IsAnomalousCount(observed int) (bool, float64) {
	if t.MentionStddev == 0 {
		return false, 0
	}
	z := (float64(observed) - t.ExpectedMentionCount) / t.MentionStddev
	return math.Abs(z) > 2.0, z
}

// IsAnomalousSentiment reports whether an observed sentiment deviates more
// than two standard deviations from expectation, along with the z-score.
func (t ExpectedTopic) IsAnomalousSentiment(observed float64) (bool, float64) {
	if t.SentimentStddev == 0 {
		return false, 0
	}
	z := (observed - t.ExpectedSentiment) / t.SentimentStddev
	return math.Abs(z) > 2.0, z
}

// ExpectedVoice is an account expected to participate in discourse about an
// entity.
type ExpectedVoice struct {
	AccountID string `json:"account_id"`
	Username  string `json:"username"`

	ExpectedPostsPerDay float64 `json:"expected_posts_per_day"`
	PostStddev          float64 `json:"post_stddev"`

	TypicalSentiment float64 `json:"typical_sentiment"`

	// Activity windows; empty means always.
	ActiveHoursUTC []int `json:"active_hours_utc,omitempty"`
	ActiveDays     []int `json:"active_days,omitempty"`

	SilenceSeverity float64 `json:"silence_severity"`
	IsKeyVoice      bool    `json:"is_key_voice"`

	TypicalResponders []string `json:"typical_responders,omitempty"`
}

// ExpectedToBeActive reports whether this voice is expected to be active at
// the given time, based on its typical active hours and days.
func (v ExpectedVoice) ExpectedToBeActive(at time.Time) bool {
	hourOK := len(v.ActiveHoursUTC) == 0
	for _, h := range v.ActiveHoursUTC {
		if h == at.Hour() {
			hourOK = true
			break
		}
	}
	dayOK := len(v.ActiveDays) == 0
	for _, d := range v.ActiveDays {
		if d == weekdayMondayBased(at) {
			dayOK = true
			break
		}
	}
	return hourOK && dayOK
}

// weekdayMondayBased maps time.Weekday to 0=Monday..6=Sunday.
func weekdayMondayBased(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// ContextTrigger is a time-bounded known event that temporarily modifies an
// entity's discourse expectations while active.
type ContextTrigger struct {
	TriggerID   string      `json:"trigger_id"`
	TriggerType TriggerType `json:"trigger_type" validate:"required"`
	Entity      string      `json:"entity" validate:"required"`

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	VolumeMultiplier float64 `json:"volume_multiplier"`
	SentimentShift   float64 `json:"sentiment_shift"`

	ExpectedNewTopics []string `json:"expected_new_topics,omitempty"`
	ExpectedNewVoices []string `json:"expected_new_voices,omitempty"`
	RequiredVoices    []string `json:"required_voices,omitempty"`

	Confidence float64 `json:"confidence"`
}

// IsActive reports whether the trigger's window covers the given time.
// Missing bounds are open-ended.
func (c ContextTrigger) IsActive(at time.Time) bool {
	if c.StartTime != nil && at.Before(*c.StartTime) {
		return false
	}
	if c.EndTime != nil && at.After(*c.EndTime) {
		return false
	}
	return true
}

// BaselinePattern holds the historical norms for an entity's discourse: what
// "normal" looks like. Built from history, then incrementally merged with new
// data via exponential decay.
type BaselinePattern struct {
	Entity     string     `json:"entity"`
	TimeWindow TimeWindow `json:"time_window"`

	AvgPostsPerWindow float64 `json:"avg_posts_per_window"`
	PostStddev        float64 `json:"post_stddev"`

	// Normalized volume multipliers: 24 hour-of-day slots, 7 day-of-week
	// slots (Monday first). Each series is scaled to its own max.
	HourlyVolumePattern []float64 `json:"hourly_volume_pattern"`
	DailyVolumePattern  []float64 `json:"daily_volume_pattern"`

	AvgSentiment    float64 `json:"avg_sentiment"`
	SentimentStddev float64 `json:"sentiment_stddev"`

	TypicalTopics []ExpectedTopic `json:"typical_topics,omitempty"`
	TypicalVoices []ExpectedVoice `json:"typical_voices,omitempty"`

	// Who typically responds to whom: author id -> responder ids.
	VoiceResponsePatterns map[string][]string `json:"voice_response_patterns,omitempty"`

	SampleStart *time.Time `json:"sample_start,omitempty"`
	SampleEnd   *time.Time `json:"sample_end,omitempty"`
	SampleSize  int        `json:"sample_size"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// NewBaselinePattern returns an all-zero baseline for an entity.
func NewBaselinePattern(entity string, window TimeWindow) BaselinePattern {
	return BaselinePattern{
		Entity:              entity,
		TimeWindow:          window,
		HourlyVolumePattern: make([]float64, 24),
		DailyVolumePattern:  make([]float64, 7),
	}
}

// ExpectedVolumeAt returns the expected volume at a specific time, scaling
// the window average by the hour and day multipliers. If only one factor is
// nonzero, it is used alone.
func (b BaselinePattern) ExpectedVolumeAt(at time.Time) float64 {
	var hourFactor, dayFactor float64
	if len(b.HourlyVolumePattern) == 24 {
		hourFactor = b.HourlyVolumePattern[at.Hour()]
	}
	if len(b.DailyVolumePattern) == 7 {
		dayFactor = b.DailyVolumePattern[weekdayMondayBased(at)]
	}

	var factor float64
	if hourFactor > 0 && dayFactor > 0 {
		factor = (hourFactor + dayFactor) / 2
	} else {
		factor = math.Max(hourFactor, dayFactor)
	}
	return b.AvgPostsPerWindow * factor
}

// Range is an inclusive [Min, Max] band of acceptable values.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// DiscourseExpectation is the complete expectation for an entity in one time
// window: baseline plus active trigger modifications. Created per detection
// call and discarded afterwards.
type DiscourseExpectation struct {
	ExpectationID string `json:"expectation_id"`
	Entity        string `json:"entity"`

	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	Baseline BaselinePattern `json:"-"`

	ActiveTriggers []ContextTrigger `json:"active_triggers,omitempty"`

	ExpectedPostCount float64 `json:"expected_post_count"`
	PostCountRange    Range   `json:"post_count_range"`

	ExpectedTopics []ExpectedTopic `json:"expected_topics,omitempty"`
	RequiredTopics []string        `json:"required_topics,omitempty"`

	ExpectedVoices []ExpectedVoice `json:"expected_voices,omitempty"`
	RequiredVoices []string        `json:"required_voices,omitempty"`

	ExpectedSentiment float64 `json:"expected_sentiment"`
	SentimentRange    Range   `json:"sentiment_range"`

	Confidence float64 `json:"confidence"`
}

// ExpectedTopic returns the expectation for a specific topic, if present.
func (e *DiscourseExpectation) ExpectedTopic(topicID string) (ExpectedTopic, bool) {
	for _, t := range e.ExpectedTopics {
		if t.TopicID == topicID {
			return t, true
		}
	}
	return ExpectedTopic{}, false
}

// ExpectedVoice returns the expectation for a specific voice, if present.
func (e *DiscourseExpectation) ExpectedVoice(accountID string) (ExpectedVoice, bool) {
	for _, v := range e.ExpectedVoices {
		if v.AccountID == accountID {
			return v, true
		}
	}
	return ExpectedVoice{}, false
}

// IsTopicRequired reports whether a topic must be discussed in this window.
func (e *DiscourseExpectation) IsTopicRequired(topicID string) bool {
	for _, id := range e.RequiredTopics {
		if id == topicID {
			return true
		}
	}
	return false
}

// IsVoiceRequired reports whether an account must participate in this window.
func (e *DiscourseExpectation) IsVoiceRequired(accountID string) bool {
	for _, id := range e.RequiredVoices {
		if id == accountID {
			return true
		}
	}
	return false
}

// ApplyTrigger modifies the expectation in place: volume expectations scale
// by the trigger's multiplier, sentiment shifts additively, and the trigger's
// required voices and new topics are merged in.
func (e *DiscourseExpectation) ApplyTrigger(trigger ContextTrigger) {
	e.ActiveTriggers = append(e.ActiveTriggers, trigger)

	e.ExpectedPostCount *= trigger.VolumeMultiplier
	e.PostCountRange.Min *= trigger.VolumeMultiplier
	e.PostCountRange.Max *= trigger.VolumeMultiplier

	e.ExpectedSentiment += trigger.SentimentShift

	e.RequiredVoices = append(e.RequiredVoices, trigger.RequiredVoices...)

	for _, topicID := range trigger.ExpectedNewTopics {
		if _, ok := e.ExpectedTopic(topicID); ok {
			continue
		}
		e.ExpectedTopics = append(e.ExpectedTopics, ExpectedTopic{
			TopicID:              topicID,
			TopicName:            topicID,
			ExpectedMentionCount: 10.0,
			MentionStddev:        5.0,
			SentimentStddev:      0.3,
			AbsenceSeverity:      0.7,
		})
	}
}
