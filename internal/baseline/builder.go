// Package baseline builds and incrementally updates BaselinePattern records
// from historical discourse snapshots: volume rhythms, typical topics,
// typical voices, sentiment norms and response patterns.
package baseline

import (
	"math"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacet/internal/common"
	"github.com/ternarybob/tacet/internal/models"
)

// Builder computes baseline patterns from snapshot history.
type Builder struct {
	lookbackDays int
	minSamples   int
	logger       arbor.ILogger
}

// NewBuilder creates a baseline builder. minSamples is the number of
// snapshots a topic must appear in before it becomes part of the baseline;
// voices use half that threshold.
func NewBuilder(lookbackDays, minSamples int) *Builder {
	return &Builder{
		lookbackDays: lookbackDays,
		minSamples:   minSamples,
		logger:       common.GetLogger().WithPrefix("baseline"),
	}
}

// BuildBaseline builds a baseline pattern from historical snapshots. An empty
// history yields a zeroed baseline.
func (b *Builder) BuildBaseline(entity string, snapshots []models.DiscourseSnapshot, window models.TimeWindow) models.BaselinePattern {
	if len(snapshots) == 0 {
		b.logger.Warn().Str("entity", entity).Msg("No snapshots provided, returning empty baseline")
		return models.NewBaselinePattern(entity, window)
	}

	b.logger.Info().Str("entity", entity).Int("snapshots", len(snapshots)).Msg("Building baseline")

	sorted := make([]models.DiscourseSnapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].WindowStart.Before(sorted[j].WindowStart)
	})

	avgVolume, volumeStd := volumeStats(sorted)
	avgSentiment, sentimentStd := sentimentStats(sorted)

	pattern := models.NewBaselinePattern(entity, window)
	pattern.AvgPostsPerWindow = avgVolume
	pattern.PostStddev = volumeStd
	pattern.HourlyVolumePattern = hourlyPattern(sorted)
	pattern.DailyVolumePattern = dailyPattern(sorted)
	pattern.AvgSentiment = avgSentiment
	pattern.SentimentStddev = sentimentStd
	pattern.TypicalTopics = b.topicExpectations(sorted)
	pattern.TypicalVoices = b.voiceExpectations(sorted)
	pattern.VoiceResponsePatterns = responsePatterns(sorted)

	start := sorted[0].WindowStart
	end := sorted[len(sorted)-1].WindowEnd
	now := time.Now().UTC()
	pattern.SampleStart = &start
	pattern.SampleEnd = &end
	pattern.SampleSize = len(sorted)
	pattern.LastUpdated = &now

	return pattern
}

// hourlyPattern computes average volume per hour of day, normalized to the
// busiest hour.
func hourlyPattern(snapshots []models.DiscourseSnapshot) []float64 {
	sums := make([]float64, 24)
	counts := make([]int, 24)
	for _, s := range snapshots {
		h := s.WindowStart.Hour()
		sums[h] += float64(s.TotalPosts)
		counts[h]++
	}

	avgs := make([]float64, 24)
	maxVol := 0.0
	for h := range avgs {
		if counts[h] > 0 {
			avgs[h] = sums[h] / float64(counts[h])
		}
		maxVol = math.Max(maxVol, avgs[h])
	}
	if maxVol > 0 {
		for h := range avgs {
			avgs[h] /= maxVol
		}
	}
	return avgs
}

// dailyPattern computes average volume per day of week (Monday first),
// normalized to the busiest day.
func dailyPattern(snapshots []models.DiscourseSnapshot) []float64 {
	sums := make([]float64, 7)
	counts := make([]int, 7)
	for _, s := range snapshots {
		d := (int(s.WindowStart.Weekday()) + 6) % 7
		sums[d] += float64(s.TotalPosts)
		counts[d]++
	}

	avgs := make([]float64, 7)
	maxVol := 0.0
	for d := range avgs {
		if counts[d] > 0 {
			avgs[d] = sums[d] / float64(counts[d])
		}
		maxVol = math.Max(maxVol, avgs[d])
	}
	if maxVol > 0 {
		for d := range avgs {
			avgs[d] /= maxVol
		}
	}
	return avgs
}

func volumeStats(snapshots []models.DiscourseSnapshot) (float64, float64) {
	volumes := make([]float64, len(snapshots))
	for i, s := range snapshots {
		volumes[i] = float64(s.TotalPosts)
	}
	return meanStddev(volumes, 0.0)
}

// sentimentStats averages sentiment over non-empty windows. No data at all
// yields a neutral mean with wide variance; a single sample keeps a wide
// stddev of 0.3.
func sentimentStats(snapshots []models.DiscourseSnapshot) (float64, float64) {
	var sentiments []float64
	for _, s := range snapshots {
		if s.TotalPosts > 0 {
			sentiments = append(sentiments, s.AvgSentiment)
		}
	}
	if len(sentiments) == 0 {
		return 0.0, 0.5
	}
	return meanStddev(sentiments, 0.3)
}

// meanStddev returns the mean and sample standard deviation. With fewer than
// two values the stddev falls back to singleFallback.
func meanStddev(values []float64, singleFallback float64) (float64, float64) {
	if len(values) == 0 {
		return 0.0, singleFallback
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	if len(values) < 2 {
		return mean, singleFallback
	}

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)-1))
}

// topicExpectations computes expectations for topics appearing in at least
// minSamples snapshots. Absence severity combines how often the topic shows
// up with how consistent its volume is.
func (b *Builder) topicExpectations(snapshots []models.DiscourseSnapshot) []models.ExpectedTopic {
	topicMentions := make(map[string][]float64)
	topicSentiments := make(map[string][]float64)

	for _, s := range snapshots {
		for topicID, count := range s.TopicCounts {
			topicMentions[topicID] = append(topicMentions[topicID], float64(count))
		}
		for topicID, sentiment := range s.TopicSentiments {
			topicSentiments[topicID] = append(topicSentiments[topicID], sentiment)
		}
	}

	var expectations []models.ExpectedTopic
	for topicID, counts := range topicMentions {
		if len(counts) < b.minSamples {
			continue
		}

		avgCount, countStd := meanStddev(counts, 0.0)
		avgSentiment, sentimentStd := meanStddev(topicSentiments[topicID], 0.0)

		frequencyScore := math.Min(1.0, float64(len(counts))/float64(len(snapshots)))
		consistencyScore := 1.0 - countStd/(avgCount+1)
		importance := (frequencyScore + consistencyScore) / 2

		expectations = append(expectations, models.ExpectedTopic{
			TopicID:              topicID,
			TopicName:            topicShortName(topicID),
			ExpectedMentionCount: avgCount,
			MentionStddev:        countStd,
			ExpectedSentiment:    avgSentiment,
			SentimentStddev:      sentimentStd,
			Confidence:           frequencyScore,
			SampleSize:           len(counts),
			AbsenceSeverity:      importance,
		})
	}

	sort.SliceStable(expectations, func(i, j int) bool {
		return expectations[i].AbsenceSeverity > expectations[j].AbsenceSeverity
	})

	return expectations
}

// topicShortName extracts the display name from a namespaced topic id like
// "topic:earnings".
func topicShortName(topicID string) string {
	for i := len(topicID) - 1; i >= 0; i-- {
		if topicID[i] == ':' {
			return topicID[i+1:]
		}
	}
	return topicID
}

// voiceExpectations computes expectations for accounts active in at least
// minSamples/2 snapshots. Silence severity scales presence rate by account
// value.
func (b *Builder) voiceExpectations(snapshots []models.DiscourseSnapshot) []models.ExpectedVoice {
	voiceActivity := make(map[string][]float64)
	voiceInfo := make(map[string]models.Account)

	for _, s := range snapshots {
		for _, account := range s.ActiveAccounts {
			id := account.AccountID()
			voiceInfo[id] = account

			posts := 1.0
			if count, ok := s.AuthorPostCounts[id]; ok {
				posts = float64(count)
			}
			voiceActivity[id] = append(voiceActivity[id], posts)
		}
	}

	var expectations []models.ExpectedVoice
	for accountID, activity := range voiceActivity {
		if len(activity) < b.minSamples/2 {
			continue
		}

		account := voiceInfo[accountID]
		avgPosts, postStd := meanStddev(activity, 0.0)
		presenceRate := float64(len(activity)) / float64(len(snapshots))

		valueWeight := 0.3
		if account.IsHighValue() {
			valueWeight = 0.8
		}

		expectations = append(expectations, models.ExpectedVoice{
			AccountID:           accountID,
			Username:            account.Username,
			ExpectedPostsPerDay: avgPosts * 24,
			PostStddev:          postStd,
			SilenceSeverity:     presenceRate * valueWeight,
			IsKeyVoice:          account.IsHighValue(),
		})
	}

	sort.SliceStable(expectations, func(i, j int) bool {
		return expectations[i].SilenceSeverity > expectations[j].SilenceSeverity
	})

	return expectations
}

// responsePatterns derives who typically responds to whom from reply edges.
// A responder counts as typical after at least two replies to the same
// author.
func responsePatterns(snapshots []models.DiscourseSnapshot) map[string][]string {
	responseCounts := make(map[string]map[string]int)

	for _, s := range snapshots {
		for _, reply := range s.Replies {
			if reply.ResponderID == reply.AuthorID {
				continue
			}
			if responseCounts[reply.AuthorID] == nil {
				responseCounts[reply.AuthorID] = make(map[string]int)
			}
			responseCounts[reply.AuthorID][reply.ResponderID]++
		}
	}

	patterns := make(map[string][]string)
	for authorID, responders := range responseCounts {
		var typical []string
		for responderID, count := range responders {
			if count >= 2 {
				typical = append(typical, responderID)
			}
		}
		if len(typical) > 0 {
			sort.Strings(typical)
			patterns[authorID] = typical
		}
	}

	return patterns
}

// UpdateBaseline incrementally merges new snapshots into an existing
// baseline. decayFactor is the weight kept by the existing data; recent data
// gets the remainder.
func (b *Builder) UpdateBaseline(existing models.BaselinePattern, newSnapshots []models.DiscourseSnapshot, decayFactor float64) models.BaselinePattern {
	if len(newSnapshots) == 0 {
		return existing
	}

	fresh := b.BuildBaseline(existing.Entity, newSnapshots, existing.TimeWindow)

	merged := models.NewBaselinePattern(existing.Entity, existing.TimeWindow)

	merged.AvgPostsPerWindow = decayMerge(existing.AvgPostsPerWindow, fresh.AvgPostsPerWindow, decayFactor)
	merged.PostStddev = decayMerge(existing.PostStddev, fresh.PostStddev, decayFactor)

	for i := 0; i < 24; i++ {
		merged.HourlyVolumePattern[i] = decayMerge(patternAt(existing.HourlyVolumePattern, i), fresh.HourlyVolumePattern[i], decayFactor)
	}
	for i := 0; i < 7; i++ {
		merged.DailyVolumePattern[i] = decayMerge(patternAt(existing.DailyVolumePattern, i), fresh.DailyVolumePattern[i], decayFactor)
	}

	merged.AvgSentiment = decayMerge(existing.AvgSentiment, fresh.AvgSentiment, decayFactor)
	merged.SentimentStddev = decayMerge(existing.SentimentStddev, fresh.SentimentStddev, decayFactor)

	merged.TypicalTopics = mergeTopics(existing.TypicalTopics, fresh.TypicalTopics, decayFactor)
	merged.TypicalVoices = mergeVoices(existing.TypicalVoices, fresh.TypicalVoices, decayFactor)
	merged.VoiceResponsePatterns = existing.VoiceResponsePatterns

	now := time.Now().UTC()
	merged.SampleStart = existing.SampleStart
	merged.SampleEnd = fresh.SampleEnd
	merged.SampleSize = existing.SampleSize + len(newSnapshots)
	merged.LastUpdated = &now

	return merged
}

func decayMerge(old, fresh, decay float64) float64 {
	return old*decay + fresh*(1-decay)
}

func patternAt(pattern []float64, i int) float64 {
	if i < len(pattern) {
		return pattern[i]
	}
	return 0
}

// mergeTopics merges topic expectations by id. Topics seen in both get
// decay-weighted averages, topics gone quiet decay toward zero, and new
// topics enter as-is.
func mergeTopics(existing, fresh []models.ExpectedTopic, decay float64) []models.ExpectedTopic {
	existingMap := make(map[string]models.ExpectedTopic, len(existing))
	for _, t := range existing {
		existingMap[t.TopicID] = t
	}
	freshMap := make(map[string]models.ExpectedTopic, len(fresh))
	for _, t := range fresh {
		freshMap[t.TopicID] = t
	}

	var merged []models.ExpectedTopic
	for topicID, old := range existingMap {
		current, ok := freshMap[topicID]
		if !ok {
			old.ExpectedMentionCount *= decay
			merged = append(merged, old)
			continue
		}
		merged = append(merged, models.ExpectedTopic{
			TopicID:              topicID,
			TopicName:            current.TopicName,
			ExpectedMentionCount: decayMerge(old.ExpectedMentionCount, current.ExpectedMentionCount, decay),
			MentionStddev:        decayMerge(old.MentionStddev, current.MentionStddev, decay),
			ExpectedSentiment:    decayMerge(old.ExpectedSentiment, current.ExpectedSentiment, decay),
			SentimentStddev:      decayMerge(old.SentimentStddev, current.SentimentStddev, decay),
			Confidence:           math.Max(old.Confidence, current.Confidence),
			SampleSize:           old.SampleSize + current.SampleSize,
			AbsenceSeverity:      math.Max(old.AbsenceSeverity, current.AbsenceSeverity),
		})
	}
	for topicID, current := range freshMap {
		if _, ok := existingMap[topicID]; !ok {
			merged = append(merged, current)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].AbsenceSeverity > merged[j].AbsenceSeverity
	})
	return merged
}

// mergeVoices merges voice expectations by account id.
func mergeVoices(existing, fresh []models.ExpectedVoice, decay float64) []models.ExpectedVoice {
	existingMap := make(map[string]models.ExpectedVoice, len(existing))
	for _, v := range existing {
		existingMap[v.AccountID] = v
	}
	freshMap := make(map[string]models.ExpectedVoice, len(fresh))
	for _, v := range fresh {
		freshMap[v.AccountID] = v
	}

	var merged []models.ExpectedVoice
	for accountID, old := range existingMap {
		current, ok := freshMap[accountID]
		if !ok {
			merged = append(merged, old)
			continue
		}
		merged = append(merged, models.ExpectedVoice{
			AccountID:           accountID,
			Username:            current.Username,
			ExpectedPostsPerDay: decayMerge(old.ExpectedPostsPerDay, current.ExpectedPostsPerDay, decay),
			PostStddev:          decayMerge(old.PostStddev, current.PostStddev, decay),
			IsKeyVoice:          old.IsKeyVoice || current.IsKeyVoice,
			SilenceSeverity:     math.Max(old.SilenceSeverity, current.SilenceSeverity),
		})
	}
	for accountID, current := range freshMap {
		if _, ok := existingMap[accountID]; !ok {
			merged = append(merged, current)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].SilenceSeverity > merged[j].SilenceSeverity
	})
	return merged
}
