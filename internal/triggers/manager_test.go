package triggers

import (
	"math"
	"testing"
	"time"

	"github.com/ternarybob/tacet/internal/models"
)

func boundedTrigger(entity string, triggerType models.TriggerType, start, end time.Time) models.ContextTrigger {
	return models.ContextTrigger{
		TriggerID:        "trigger_" + string(triggerType),
		TriggerType:      triggerType,
		Entity:           entity,
		Name:             string(triggerType),
		StartTime:        &start,
		EndTime:          &end,
		VolumeMultiplier: defaultDefinitions[triggerType].DefaultVolumeMultiplier,
		SentimentShift:   defaultDefinitions[triggerType].DefaultSentimentShift,
	}
}

func TestAddAndGetActiveTriggers(t *testing.T) {
	m := NewManager()
	now := time.Now().UTC()

	m.AddTrigger(boundedTrigger("acme", models.TriggerEarningsRelease, now.Add(-time.Hour), now.Add(time.Hour)))
	m.AddTrigger(boundedTrigger("acme", models.TriggerNewsBreaking, now.Add(-10*time.Hour), now.Add(-5*time.Hour)))
	m.AddTrigger(boundedTrigger("other", models.TriggerProductLaunch, now.Add(-time.Hour), now.Add(time.Hour)))

	active := m.GetActiveTriggers("acme", now)
	if len(active) != 1 {
		t.Fatalf("active = %d triggers, want 1 (expired filtered, other entity excluded)", len(active))
	}
	if active[0].TriggerType != models.TriggerEarningsRelease {
		t.Errorf("active trigger = %s, want earnings_release", active[0].TriggerType)
	}
}

func TestScheduledTriggerPromotion(t *testing.T) {
	m := NewManager()
	now := time.Now().UTC()

	future := boundedTrigger("acme", models.TriggerEarningsRelease, now.Add(2*time.Hour), now.Add(50*time.Hour))
	m.AddTrigger(future)

	if got := m.GetActiveTriggers("acme", now); len(got) != 0 {
		t.Fatalf("future trigger should not be active yet, got %d", len(got))
	}
	if upcoming := m.GetUpcomingTriggers("acme", 24); len(upcoming) != 1 {
		t.Fatalf("upcoming = %d, want 1", len(upcoming))
	}

	// Query past the start time promotes the scheduled trigger
	active := m.GetActiveTriggers("acme", now.Add(3*time.Hour))
	if len(active) != 1 {
		t.Fatalf("active after promotion = %d, want 1", len(active))
	}
	if upcoming := m.GetUpcomingTriggers("acme", 24); len(upcoming) != 0 {
		t.Errorf("scheduled list should be empty after promotion, got %d", len(upcoming))
	}
}

func TestDetectTriggerFromText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantType models.TriggerType
		wantHit  bool
	}{
		{"earnings keyword", "ACME quarterly results beat estimates", models.TriggerEarningsRelease, true},
		{"breaking news keyword", "BREAKING: factory fire reported", models.TriggerNewsBreaking, true},
		{"sec filing keyword", "New 8-K filed this morning", models.TriggerRegulatoryFiling, true},
		{"executive keyword", "CFO steps down effective today", models.TriggerExecutiveChange, true},
		{"no keywords", "nothing interesting here", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager()
			trigger, ok := m.DetectTriggerFromText(tt.text, "acme", SourceNews)
			if ok != tt.wantHit {
				t.Fatalf("detected = %v, want %v", ok, tt.wantHit)
			}
			if !ok {
				return
			}
			if trigger.TriggerType != tt.wantType {
				t.Errorf("type = %s, want %s", trigger.TriggerType, tt.wantType)
			}
			if trigger.StartTime == nil || trigger.EndTime == nil {
				t.Fatal("detected trigger should have bounded window")
			}
			wantDuration := time.Duration(defaultDefinitions[tt.wantType].DefaultDurationHours * float64(time.Hour))
			if got := trigger.EndTime.Sub(*trigger.StartTime); got != wantDuration {
				t.Errorf("duration = %v, want %v", got, wantDuration)
			}
		})
	}
}

func TestDetectTriggerCallback(t *testing.T) {
	m := NewManager()
	var captured models.ContextTrigger
	m.OnDetected(func(trigger models.ContextTrigger) {
		captured = trigger
	})

	_, ok := m.DetectTriggerFromText("announcing our new product", "acme", SourceSocial)
	if !ok {
		t.Fatal("expected detection")
	}
	if captured.TriggerType != models.TriggerProductLaunch {
		t.Errorf("callback type = %s, want product_launch", captured.TriggerType)
	}
}

func TestCreateEarningsTrigger(t *testing.T) {
	m := NewManager()
	release := time.Date(2026, 4, 21, 21, 0, 0, 0, time.UTC)

	trigger := m.CreateEarningsTrigger("ticker:ACME", release, []string{"x:ir_team"})

	if !trigger.StartTime.Equal(release.Add(-2 * time.Hour)) {
		t.Errorf("StartTime = %v, want release - 2h", trigger.StartTime)
	}
	if !trigger.EndTime.Equal(release.Add(48 * time.Hour)) {
		t.Errorf("EndTime = %v, want release + 48h", trigger.EndTime)
	}
	if trigger.VolumeMultiplier != 5.0 {
		t.Errorf("VolumeMultiplier = %v, want 5.0", trigger.VolumeMultiplier)
	}
	if len(trigger.RequiredVoices) != 1 || trigger.RequiredVoices[0] != "x:ir_team" {
		t.Errorf("RequiredVoices = %v, want [x:ir_team]", trigger.RequiredVoices)
	}
	if trigger.TriggerID != "earnings_ticker:ACME_2026-04-21" {
		t.Errorf("TriggerID = %s", trigger.TriggerID)
	}
}

func TestSummarizeActiveTriggers(t *testing.T) {
	m := NewManager()
	now := time.Now().UTC()

	empty := m.SummarizeActiveTriggers("acme", now)
	if empty.ActiveCount != 0 || empty.CombinedVolumeMultiplier != 1.0 || empty.CombinedSentimentShift != 0.0 {
		t.Errorf("empty summary = %+v", empty)
	}

	m.AddTrigger(boundedTrigger("acme", models.TriggerEarningsRelease, now.Add(-time.Hour), now.Add(time.Hour)))
	m.AddTrigger(boundedTrigger("acme", models.TriggerExecutiveChange, now.Add(-time.Hour), now.Add(time.Hour)))

	summary := m.SummarizeActiveTriggers("acme", now)
	if summary.ActiveCount != 2 {
		t.Fatalf("ActiveCount = %d, want 2", summary.ActiveCount)
	}
	// Volume multiplies: 5.0 * 4.0
	if math.Abs(summary.CombinedVolumeMultiplier-20.0) > 1e-9 {
		t.Errorf("CombinedVolumeMultiplier = %v, want 20.0", summary.CombinedVolumeMultiplier)
	}
	// Sentiment adds: 0 + (-0.1)
	if math.Abs(summary.CombinedSentimentShift-(-0.1)) > 1e-9 {
		t.Errorf("CombinedSentimentShift = %v, want -0.1", summary.CombinedSentimentShift)
	}
}

func TestMarketHoursTrigger(t *testing.T) {
	m := NewManager()
	at := time.Date(2026, 3, 9, 13, 30, 0, 0, time.UTC)

	trigger := m.CreateMarketHoursTrigger("ticker:ACME", models.TriggerMarketOpen, at)

	if trigger.VolumeMultiplier != 1.5 {
		t.Errorf("VolumeMultiplier = %v, want 1.5", trigger.VolumeMultiplier)
	}
	if !trigger.EndTime.Equal(at.Add(time.Hour)) {
		t.Errorf("EndTime = %v, want start + 1h", trigger.EndTime)
	}
}
