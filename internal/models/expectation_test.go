package models

import (
	"math"
	"testing"
	"time"
)

// TestExpectedVolumeAt verifies hour/day factor combination
func TestExpectedVolumeAt(t *testing.T) {
	b := NewBaselinePattern("acme", WindowHour)
	b.AvgPostsPerWindow = 100

	// Tuesday 2026-03-10 at 14:00 UTC
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		hourFactor float64
		dayFactor  float64
		want       float64
	}{
		{"both factors averaged", 0.8, 0.6, 70},
		{"only hour factor", 0.8, 0, 80},
		{"only day factor", 0, 0.6, 60},
		{"no factors", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b.HourlyVolumePattern[14] = tt.hourFactor
			b.DailyVolumePattern[1] = tt.dayFactor
			if got := b.ExpectedVolumeAt(at); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ExpectedVolumeAt = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestExpectedToBeActive verifies hour and day windows with Monday-based days
func TestExpectedToBeActive(t *testing.T) {
	// Monday 2026-03-09 at 09:00 UTC
	monday9am := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		voice ExpectedVoice
		want  bool
	}{
		{"no restrictions", ExpectedVoice{}, true},
		{"matching hour", ExpectedVoice{ActiveHoursUTC: []int{9, 10}}, true},
		{"wrong hour", ExpectedVoice{ActiveHoursUTC: []int{14}}, false},
		{"matching day monday is zero", ExpectedVoice{ActiveDays: []int{0}}, true},
		{"wrong day", ExpectedVoice{ActiveDays: []int{5, 6}}, false},
		{"hour ok day wrong", ExpectedVoice{ActiveHoursUTC: []int{9}, ActiveDays: []int{3}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.voice.ExpectedToBeActive(monday9am); got != tt.want {
				t.Errorf("ExpectedToBeActive = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestTriggerIsActive verifies open-ended and bounded windows
func TestTriggerIsActive(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	start := now.Add(-time.Hour)
	end := now.Add(time.Hour)

	tests := []struct {
		name    string
		trigger ContextTrigger
		at      time.Time
		want    bool
	}{
		{"inside window", ContextTrigger{StartTime: &start, EndTime: &end}, now, true},
		{"before start", ContextTrigger{StartTime: &start, EndTime: &end}, start.Add(-time.Minute), false},
		{"after end", ContextTrigger{StartTime: &start, EndTime: &end}, end.Add(time.Minute), false},
		{"no bounds", ContextTrigger{}, now, true},
		{"open end", ContextTrigger{StartTime: &start}, now.Add(100 * time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.trigger.IsActive(tt.at); got != tt.want {
				t.Errorf("IsActive = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestApplyTrigger verifies volume scaling, sentiment shift and topic merging
func TestApplyTrigger(t *testing.T) {
	e := &DiscourseExpectation{
		Entity:            "acme",
		ExpectedPostCount: 100,
		PostCountRange:    Range{Min: 50, Max: 150},
		ExpectedSentiment: 0.2,
		ExpectedTopics: []ExpectedTopic{
			{TopicID: "topic:earnings", TopicName: "earnings", ExpectedMentionCount: 20},
		},
	}

	e.ApplyTrigger(ContextTrigger{
		TriggerType:       TriggerEarningsRelease,
		VolumeMultiplier:  5.0,
		SentimentShift:    -0.1,
		RequiredVoices:    []string{"x:ceo"},
		ExpectedNewTopics: []string{"topic:earnings", "topic:guidance"},
	})

	if e.ExpectedPostCount != 500 {
		t.Errorf("ExpectedPostCount = %v, want 500", e.ExpectedPostCount)
	}
	if e.PostCountRange.Min != 250 || e.PostCountRange.Max != 750 {
		t.Errorf("PostCountRange = %+v, want {250 750}", e.PostCountRange)
	}
	if math.Abs(e.ExpectedSentiment-0.1) > 1e-9 {
		t.Errorf("ExpectedSentiment = %v, want 0.1", e.ExpectedSentiment)
	}
	if !e.IsVoiceRequired("x:ceo") {
		t.Error("x:ceo should be required after trigger")
	}
	if len(e.ExpectedTopics) != 2 {
		t.Fatalf("ExpectedTopics = %d, want 2 (existing topic not duplicated)", len(e.ExpectedTopics))
	}
	existing, _ := e.ExpectedTopic("topic:earnings")
	if existing.ExpectedMentionCount != 20 {
		t.Errorf("existing topic overwritten: count %v", existing.ExpectedMentionCount)
	}
	added, ok := e.ExpectedTopic("topic:guidance")
	if !ok || added.ExpectedMentionCount != 10.0 || added.AbsenceSeverity != 0.7 {
		t.Errorf("new topic defaults wrong: %+v", added)
	}
	if len(e.ActiveTriggers) != 1 {
		t.Errorf("ActiveTriggers = %d, want 1", len(e.ActiveTriggers))
	}
}

// TestIsAnomalousCount verifies the two sigma gate and z-score
func TestIsAnomalousCount(t *testing.T) {
	topic := ExpectedTopic{ExpectedMentionCount: 10, MentionStddev: 2}

	anomalous, z := topic.IsAnomalousCount(15)
	if !anomalous || math.Abs(z-2.5) > 1e-9 {
		t.Errorf("IsAnomalousCount(15) = %v z=%v, want true z=2.5", anomalous, z)
	}
	if anomalous, _ := topic.IsAnomalousCount(12); anomalous {
		t.Error("IsAnomalousCount(12) should be within range")
	}

	zeroStddev := ExpectedTopic{ExpectedMentionCount: 10}
	if anomalous, _ := zeroStddev.IsAnomalousCount(1000); anomalous {
		t.Error("zero stddev should disable the check")
	}
}

// TestAccountHighValue verifies account type and influence heuristics
func TestAccountHighValue(t *testing.T) {
	tests := []struct {
		name    string
		account Account
		want    bool
	}{
		{"executive", Account{AccountType: AccountExecutive}, true},
		{"official", Account{AccountType: AccountCompanyOfficial}, true},
		{"analyst", Account{AccountType: AccountAnalyst}, true},
		{"verified individual", Account{AccountType: AccountIndividual, Verified: true}, true},
		{"high influence", Account{AccountType: AccountIndividual, InfluenceScore: 0.8}, true},
		{"regular", Account{AccountType: AccountIndividual, InfluenceScore: 0.2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.account.IsHighValue(); got != tt.want {
				t.Errorf("IsHighValue = %v, want %v", got, tt.want)
			}
		})
	}
}
