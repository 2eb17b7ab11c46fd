package detection

import (
	"math"
	"sync"
	"time"

	"github.com/ternarybob/tacet/internal/common"
	"github.com/ternarybob/tacet/internal/models"
)

// VoiceSilenceAnalyzer detects when expected voices stop participating. Key
// voices going quiet is often a leading indicator of events. The analyzer is
// stateful: it tracks the last time each account was seen posting.
type VoiceSilenceAnalyzer struct {
	// Hours of silence before an expected voice is flagged.
	ThresholdHours float64

	mu       sync.Mutex
	lastSeen map[string]time.Time
}

// NewVoiceSilenceAnalyzer creates the analyzer with the given silence
// threshold in hours.
func NewVoiceSilenceAnalyzer(thresholdHours float64) *VoiceSilenceAnalyzer {
	return &VoiceSilenceAnalyzer{
		ThresholdHours: thresholdHours,
		lastSeen:       make(map[string]time.Time),
	}
}

func (a *VoiceSilenceAnalyzer) Name() string { return "voice_silence" }

// Analyze updates last-seen times from the snapshot's active accounts, then
// flags expected voices that are silent past the threshold. Time "now" is
// the snapshot's window end, so replayed history behaves the same as live
// data.
func (a *VoiceSilenceAnalyzer) Analyze(snapshot models.DiscourseSnapshot, expectation models.DiscourseExpectation) []models.Delta {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := snapshot.WindowEnd
	activeIDs := snapshot.ActiveAccountIDs()

	for id := range activeIDs {
		a.lastSeen[id] = now
	}

	var deltas []models.Delta
	detectedAt := time.Now().UTC()

	for _, voice := range expectation.ExpectedVoices {
		if activeIDs[voice.AccountID] {
			continue
		}
		if !voice.ExpectedToBeActive(now) {
			continue
		}

		var silenceHours float64
		var lastPost *time.Time
		if seen, ok := a.lastSeen[voice.AccountID]; ok {
			silenceHours = now.Sub(seen).Hours()
			t := seen
			lastPost = &t
		} else {
			// Never seen, assume a very long silence
			silenceHours = a.ThresholdHours * 2
		}

		if silenceHours < a.ThresholdHours {
			continue
		}

		windowHours := snapshot.WindowEnd.Sub(snapshot.WindowStart).Hours()
		expectedPosts := voice.ExpectedPostsPerDay * windowHours / 24

		silenceFactor := math.Min(1.0, silenceHours/(a.ThresholdHours*2))
		keyVoiceFactor := 0.0
		if voice.IsKeyVoice {
			keyVoiceFactor = 0.3
		}
		confidence := math.Min(0.95, 0.4+silenceFactor*0.3+keyVoiceFactor)

		deltas = append(deltas, models.NewVoiceSilenceDelta(
			common.NewDeltaID(),
			snapshot.Entity,
			detectedAt,
			snapshot.WindowStart,
			snapshot.WindowEnd,
			models.VoiceSilenceDetails{
				AccountID:            voice.AccountID,
				Username:             voice.Username,
				SilenceHours:         silenceHours,
				ExpectedPosts:        expectedPosts,
				ObservedPosts:        0,
				LastPostTime:         lastPost,
				TypicalPostFrequency: voice.ExpectedPostsPerDay,
				IsKeyVoice:           voice.IsKeyVoice,
				InfluenceScore:       voice.SilenceSeverity,
			},
			confidence,
		))
	}

	return deltas
}

// UpdateLastSeen records a posting time for an account, for seeding from
// stored history.
func (a *VoiceSilenceAnalyzer) UpdateLastSeen(accountID string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastSeen[accountID] = at
}

// SilenceDuration returns how long an account has been silent, if it has
// ever been seen.
func (a *VoiceSilenceAnalyzer) SilenceDuration(accountID string, now time.Time) (time.Duration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	seen, ok := a.lastSeen[accountID]
	if !ok {
		return 0, false
	}
	return now.Sub(seen), true
}

// Baselines keep only repeat responders, not per-pair response counts.
const typicalResponseRate = 0.5

// AnalyzeResponseBreaks flags typical responders who stayed quiet while an
// author they usually answer posted in the window. Response patterns come
// from the baseline behind the expectation. Runs after Analyze so last-seen
// times already include this window.
func (a *VoiceSilenceAnalyzer) AnalyzeResponseBreaks(snapshot models.DiscourseSnapshot, expectation models.DiscourseExpectation) []models.Delta {
	patterns := expectation.Baseline.VoiceResponsePatterns
	if len(patterns) == 0 {
		return nil
	}

	activeIDs := snapshot.ActiveAccountIDs()
	usernames := make(map[string]string, len(snapshot.ActiveAccounts))
	for _, acct := range snapshot.ActiveAccounts {
		usernames[acct.AccountID()] = acct.Username
	}

	topic := dominantTopic(snapshot)

	var deltas []models.Delta
	detectedAt := time.Now().UTC()

	for authorID, responders := range patterns {
		if !activeIDs[authorID] {
			continue
		}
		for _, responderID := range responders {
			if activeIDs[responderID] {
				continue
			}

			waitHours := snapshot.WindowEnd.Sub(snapshot.WindowStart).Hours()
			if silence, ok := a.SilenceDuration(responderID, snapshot.WindowEnd); ok {
				waitHours = silence.Hours()
			}
			if waitHours < a.ThresholdHours {
				continue
			}

			responderName := responderID
			keyVoiceFactor := 0.0
			if voice, ok := expectation.ExpectedVoice(responderID); ok {
				responderName = voice.Username
				if voice.IsKeyVoice {
					keyVoiceFactor = 0.2
				}
			}

			silenceFactor := math.Min(1.0, waitHours/(a.ThresholdHours*2))
			confidence := math.Min(0.9, 0.35+silenceFactor*0.3+keyVoiceFactor)

			deltas = append(deltas, models.NewNetworkBreakDelta(
				common.NewDeltaID(),
				snapshot.Entity,
				detectedAt,
				snapshot.WindowStart,
				snapshot.WindowEnd,
				models.NetworkBreakDetails{
					ExpectedResponderID:    responderID,
					ExpectedResponderName:  responderName,
					TriggerAuthor:          authorName(usernames, authorID),
					TriggerTopic:           topic,
					WaitTimeHours:          waitHours,
					ResponseWindowHours:    a.ThresholdHours,
					HistoricalResponseRate: typicalResponseRate,
				},
				confidence,
			))
		}
	}

	return deltas
}

func authorName(usernames map[string]string, accountID string) string {
	if name, ok := usernames[accountID]; ok && name != "" {
		return name
	}
	return accountID
}

// dominantTopic returns the most mentioned topic in the window, falling back
// to the entity when the snapshot carries no topic counts.
func dominantTopic(snapshot models.DiscourseSnapshot) string {
	topic := snapshot.Entity
	best := 0
	for id, count := range snapshot.TopicCounts {
		if count > best || (count == best && best > 0 && id < topic) {
			topic = id
			best = count
		}
	}
	return topic
}
