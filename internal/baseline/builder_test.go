package baseline

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/ternarybob/tacet/internal/models"
)

func snapshotAt(entity string, start time.Time, posts int, sentiment float64) models.DiscourseSnapshot {
	return models.DiscourseSnapshot{
		SnapshotID:   "snap_" + start.Format("20060102T15"),
		Entity:       entity,
		WindowStart:  start,
		WindowEnd:    start.Add(time.Hour),
		TotalPosts:   posts,
		AvgSentiment: sentiment,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBuildBaselineEmptyHistory(t *testing.T) {
	b := NewBuilder(7, 5)
	pattern := b.BuildBaseline("acme", nil, models.WindowHour)

	if pattern.Entity != "acme" {
		t.Errorf("Entity = %s, want acme", pattern.Entity)
	}
	if pattern.AvgPostsPerWindow != 0 || pattern.SampleSize != 0 {
		t.Error("empty history should produce a zeroed baseline")
	}
	if len(pattern.HourlyVolumePattern) != 24 || len(pattern.DailyVolumePattern) != 7 {
		t.Error("empty baseline should still carry full pattern slices")
	}
}

func TestBuildBaselineVolumeStats(t *testing.T) {
	// Monday 2026-03-09, hourly snapshots
	start := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	snapshots := []models.DiscourseSnapshot{
		snapshotAt("acme", start.Add(9*time.Hour), 100, 0.2),
		snapshotAt("acme", start.Add(10*time.Hour), 200, 0.4),
		snapshotAt("acme", start.Add(11*time.Hour), 300, 0.6),
	}

	b := NewBuilder(7, 5)
	pattern := b.BuildBaseline("acme", snapshots, models.WindowHour)

	if !almostEqual(pattern.AvgPostsPerWindow, 200) {
		t.Errorf("AvgPostsPerWindow = %v, want 200", pattern.AvgPostsPerWindow)
	}
	if !almostEqual(pattern.PostStddev, 100) {
		t.Errorf("PostStddev = %v, want 100 (sample stddev)", pattern.PostStddev)
	}
	// Hour 11 is the busiest so it normalizes to 1.0
	if !almostEqual(pattern.HourlyVolumePattern[11], 1.0) {
		t.Errorf("hour 11 factor = %v, want 1.0", pattern.HourlyVolumePattern[11])
	}
	if !almostEqual(pattern.HourlyVolumePattern[9], 100.0/300.0) {
		t.Errorf("hour 9 factor = %v, want 1/3", pattern.HourlyVolumePattern[9])
	}
	// All on Monday so Monday (index 0) normalizes to 1.0
	if !almostEqual(pattern.DailyVolumePattern[0], 1.0) {
		t.Errorf("Monday factor = %v, want 1.0", pattern.DailyVolumePattern[0])
	}
	if pattern.SampleSize != 3 {
		t.Errorf("SampleSize = %d, want 3", pattern.SampleSize)
	}
}

func TestSentimentStatsFallbacks(t *testing.T) {
	start := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)

	// Windows with no posts are excluded, leaving nothing
	empty := []models.DiscourseSnapshot{snapshotAt("acme", start, 0, 0.9)}
	avg, std := sentimentStats(empty)
	if !almostEqual(avg, 0.0) || !almostEqual(std, 0.5) {
		t.Errorf("no data: got (%v, %v), want (0, 0.5)", avg, std)
	}

	// A single sample keeps a wide stddev
	single := []models.DiscourseSnapshot{snapshotAt("acme", start, 10, 0.4)}
	avg, std = sentimentStats(single)
	if !almostEqual(avg, 0.4) || !almostEqual(std, 0.3) {
		t.Errorf("single sample: got (%v, %v), want (0.4, 0.3)", avg, std)
	}
}

func TestTopicExpectations(t *testing.T) {
	start := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	var snapshots []models.DiscourseSnapshot
	for i := 0; i < 10; i++ {
		s := snapshotAt("acme", start.Add(time.Duration(i)*time.Hour), 50, 0.1)
		s.TopicCounts = map[string]int{"topic:earnings": 20}
		s.TopicSentiments = map[string]float64{"topic:earnings": 0.2}
		if i < 3 {
			// Rare topic, below the sample threshold
			s.TopicCounts["topic:rumor"] = 5
		}
		snapshots = append(snapshots, s)
	}

	b := NewBuilder(7, 5)
	pattern := b.BuildBaseline("acme", snapshots, models.WindowHour)

	if len(pattern.TypicalTopics) != 1 {
		t.Fatalf("TypicalTopics = %d, want 1 (rare topic filtered)", len(pattern.TypicalTopics))
	}
	topic := pattern.TypicalTopics[0]
	if topic.TopicID != "topic:earnings" || topic.TopicName != "earnings" {
		t.Errorf("topic = %s/%s, want topic:earnings/earnings", topic.TopicID, topic.TopicName)
	}
	if !almostEqual(topic.ExpectedMentionCount, 20) {
		t.Errorf("ExpectedMentionCount = %v, want 20", topic.ExpectedMentionCount)
	}
	// Present in all 10 snapshots
	if !almostEqual(topic.Confidence, 1.0) {
		t.Errorf("Confidence = %v, want 1.0", topic.Confidence)
	}
	// frequency 1.0, consistency 1 - 0/21 = 1.0
	if !almostEqual(topic.AbsenceSeverity, 1.0) {
		t.Errorf("AbsenceSeverity = %v, want 1.0", topic.AbsenceSeverity)
	}
	if topic.SampleSize != 10 {
		t.Errorf("SampleSize = %d, want 10", topic.SampleSize)
	}
}

func TestVoiceExpectations(t *testing.T) {
	start := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	ceo := models.Account{PlatformID: "ceo1", Username: "ceo", AccountType: models.AccountExecutive}
	fan := models.Account{PlatformID: "fan1", Username: "fan", AccountType: models.AccountIndividual}

	var snapshots []models.DiscourseSnapshot
	for i := 0; i < 10; i++ {
		s := snapshotAt("acme", start.Add(time.Duration(i)*time.Hour), 50, 0.1)
		s.ActiveAccounts = []models.Account{ceo}
		s.AuthorPostCounts = map[string]int{ceo.AccountID(): 2}
		if i == 0 {
			// Below the minSamples/2 threshold
			s.ActiveAccounts = append(s.ActiveAccounts, fan)
		}
		snapshots = append(snapshots, s)
	}

	b := NewBuilder(7, 6)
	pattern := b.BuildBaseline("acme", snapshots, models.WindowHour)

	if len(pattern.TypicalVoices) != 1 {
		t.Fatalf("TypicalVoices = %d, want 1", len(pattern.TypicalVoices))
	}
	voice := pattern.TypicalVoices[0]
	if voice.AccountID != "x:ceo1" {
		t.Errorf("AccountID = %s, want x:ceo1", voice.AccountID)
	}
	if !voice.IsKeyVoice {
		t.Error("executive should be a key voice")
	}
	if !almostEqual(voice.ExpectedPostsPerDay, 48) {
		t.Errorf("ExpectedPostsPerDay = %v, want 48 (2 per hour window x 24)", voice.ExpectedPostsPerDay)
	}
	// Active in all 10 snapshots, high value weight 0.8
	if !almostEqual(voice.SilenceSeverity, 0.8) {
		t.Errorf("SilenceSeverity = %v, want 0.8", voice.SilenceSeverity)
	}
}

func TestResponsePatterns(t *testing.T) {
	start := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	s := snapshotAt("acme", start, 20, 0.1)
	s.Replies = []models.Reply{
		{AuthorID: "x:ceo", ResponderID: "x:analyst"},
		{AuthorID: "x:ceo", ResponderID: "x:analyst"},
		{AuthorID: "x:ceo", ResponderID: "x:drive_by"},
		{AuthorID: "x:ceo", ResponderID: "x:ceo"},
	}

	patterns := responsePatterns([]models.DiscourseSnapshot{s})

	responders, ok := patterns["x:ceo"]
	if !ok || len(responders) != 1 || responders[0] != "x:analyst" {
		t.Errorf("patterns[x:ceo] = %v, want [x:analyst]", responders)
	}
}

func TestUpdateBaselineDecay(t *testing.T) {
	start := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	b := NewBuilder(7, 1)
	existing := models.NewBaselinePattern("acme", models.WindowHour)
	existing.AvgPostsPerWindow = 100
	existing.AvgSentiment = 0.5
	existing.SampleSize = 50

	fresh := []models.DiscourseSnapshot{
		snapshotAt("acme", start.Add(9*time.Hour), 200, -0.5),
	}

	tests := []struct {
		name          string
		decay         float64
		wantVolume    float64
		wantSentiment float64
	}{
		{"full decay keeps old values", 1.0, 100, 0.5},
		{"zero decay replaces with new", 0.0, 200, -0.5},
		{"default decay blends", 0.95, 105, 0.45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := b.UpdateBaseline(existing, fresh, tt.decay)
			if !almostEqual(merged.AvgPostsPerWindow, tt.wantVolume) {
				t.Errorf("AvgPostsPerWindow = %v, want %v", merged.AvgPostsPerWindow, tt.wantVolume)
			}
			if !almostEqual(merged.AvgSentiment, tt.wantSentiment) {
				t.Errorf("AvgSentiment = %v, want %v", merged.AvgSentiment, tt.wantSentiment)
			}
			if merged.SampleSize != 51 {
				t.Errorf("SampleSize = %d, want 51", merged.SampleSize)
			}
		})
	}
}

func TestUpdateBaselineNoNewSnapshots(t *testing.T) {
	b := NewBuilder(7, 5)
	existing := models.NewBaselinePattern("acme", models.WindowHour)
	existing.AvgPostsPerWindow = 42

	merged := b.UpdateBaseline(existing, nil, 0.95)
	if !almostEqual(merged.AvgPostsPerWindow, 42) {
		t.Errorf("AvgPostsPerWindow = %v, want unchanged 42", merged.AvgPostsPerWindow)
	}
}

func TestMergeTopicsUnion(t *testing.T) {
	existing := []models.ExpectedTopic{
		{TopicID: "topic:shared", ExpectedMentionCount: 100, AbsenceSeverity: 0.9},
		{TopicID: "topic:old_only", ExpectedMentionCount: 40, AbsenceSeverity: 0.5},
	}
	fresh := []models.ExpectedTopic{
		{TopicID: "topic:shared", TopicName: "shared", ExpectedMentionCount: 200, AbsenceSeverity: 0.6},
		{TopicID: "topic:new_only", TopicName: "new_only", ExpectedMentionCount: 30, AbsenceSeverity: 0.4},
	}

	merged := mergeTopics(existing, fresh, 0.9)
	if len(merged) != 3 {
		t.Fatalf("merged = %d topics, want 3", len(merged))
	}

	byID := make(map[string]models.ExpectedTopic)
	for _, topic := range merged {
		byID[topic.TopicID] = topic
	}

	if !almostEqual(byID["topic:shared"].ExpectedMentionCount, 110) {
		t.Errorf("shared count = %v, want 110", byID["topic:shared"].ExpectedMentionCount)
	}
	// Topic gone quiet decays toward zero
	if !almostEqual(byID["topic:old_only"].ExpectedMentionCount, 36) {
		t.Errorf("old_only count = %v, want 36", byID["topic:old_only"].ExpectedMentionCount)
	}
	if !almostEqual(byID["topic:new_only"].ExpectedMentionCount, 30) {
		t.Errorf("new_only count = %v, want 30 (adopted as is)", byID["topic:new_only"].ExpectedMentionCount)
	}
}

func TestHourlyPatternSparseData(t *testing.T) {
	start := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	snapshots := []models.DiscourseSnapshot{
		snapshotAt("acme", start.Add(14*time.Hour), 80, 0.1),
	}

	pattern := hourlyPattern(snapshots)
	for h, factor := range pattern {
		want := 0.0
		if h == 14 {
			want = 1.0
		}
		if !almostEqual(factor, want) {
			t.Errorf("hour %d factor = %v, want %v", h, factor, want)
		}
	}
}

func BenchmarkBuildBaseline(b *testing.B) {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	var snapshots []models.DiscourseSnapshot
	for i := 0; i < 168; i++ {
		s := snapshotAt("acme", start.Add(time.Duration(i)*time.Hour), 50+i%40, 0.1)
		s.TopicCounts = map[string]int{
			"topic:earnings": 10 + i%5,
			"topic:product":  5 + i%3,
		}
		s.ActiveAccounts = []models.Account{
			{PlatformID: fmt.Sprintf("acct%d", i%20), Username: "user"},
		}
		snapshots = append(snapshots, s)
	}

	builder := NewBuilder(7, 5)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		builder.BuildBaseline("acme", snapshots, models.WindowHour)
	}
}
