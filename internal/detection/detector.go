package detection

import (
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacet/internal/common"
	"github.com/ternarybob/tacet/internal/expectation"
	"github.com/ternarybob/tacet/internal/models"
)

// Config holds the tunables for delta detection.
type Config struct {
	TopicAbsenceThreshold      float64
	VoiceSilenceThresholdHours float64
	SentimentZThreshold        float64
	VolumeCollapseThreshold    float64

	MinDeltaConfidence float64

	ClusterWindow  time.Duration
	MinClusterSize int

	CoordinationWindow time.Duration
}

// DefaultConfig returns the standard detection thresholds.
func DefaultConfig() Config {
	return Config{
		TopicAbsenceThreshold:      0.3,
		VoiceSilenceThresholdHours: 24.0,
		SentimentZThreshold:        2.0,
		VolumeCollapseThreshold:    0.5,
		MinDeltaConfidence:         0.5,
		ClusterWindow:              60 * time.Minute,
		MinClusterSize:             2,
		CoordinationWindow:         6 * time.Hour,
	}
}

// DeltaCallback fires for every delta that clears the confidence filter.
type DeltaCallback func(models.Delta)

// ClusterCallback fires for every cluster of mutually reinforcing deltas.
type ClusterCallback func(models.DeltaCluster)

// Statistics summarizes recent deltas for an entity.
type Statistics struct {
	Entity        string                       `json:"entity"`
	TotalDeltas   int                          `json:"total_deltas"`
	ByType        map[models.DeltaType]int     `json:"by_type,omitempty"`
	BySeverity    map[models.DeltaSeverity]int `json:"by_severity,omitempty"`
	AvgConfidence float64                      `json:"avg_confidence"`
}

// Detector is the core engine: it runs the analyzers over each snapshot,
// filters and grades the resulting deltas, and groups them into clusters.
type Detector struct {
	generator *expectation.Generator
	config    Config

	topicAnalyzer     *TopicAbsenceAnalyzer
	voiceAnalyzer     *VoiceSilenceAnalyzer
	sentimentAnalyzer *SentimentDecouplingAnalyzer
	volumeAnalyzer    *VolumeAnomalyAnalyzer
	analyzers         []Analyzer

	mu           sync.Mutex
	recentDeltas []models.Delta
	deltaHistory []models.Delta

	onDelta   DeltaCallback
	onCluster ClusterCallback

	logger arbor.ILogger
}

// NewDetector wires the four analyzers with the given config.
func NewDetector(generator *expectation.Generator, config Config) *Detector {
	topicAnalyzer := &TopicAbsenceAnalyzer{Threshold: config.TopicAbsenceThreshold}
	voiceAnalyzer := NewVoiceSilenceAnalyzer(config.VoiceSilenceThresholdHours)
	sentimentAnalyzer := &SentimentDecouplingAnalyzer{ZThreshold: config.SentimentZThreshold}
	volumeAnalyzer := &VolumeAnomalyAnalyzer{
		CollapseThreshold: config.VolumeCollapseThreshold,
		SpikeThreshold:    2.0,
		ZThreshold:        2.0,
	}

	return &Detector{
		generator:         generator,
		config:            config,
		topicAnalyzer:     topicAnalyzer,
		voiceAnalyzer:     voiceAnalyzer,
		sentimentAnalyzer: sentimentAnalyzer,
		volumeAnalyzer:    volumeAnalyzer,
		analyzers:         []Analyzer{topicAnalyzer, voiceAnalyzer, sentimentAnalyzer, volumeAnalyzer},
		logger:            common.GetLogger().WithPrefix("detection"),
	}
}

// OnDelta registers a callback for individual deltas.
func (d *Detector) OnDelta(cb DeltaCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDelta = cb
}

// OnCluster registers a callback for delta clusters.
func (d *Detector) OnCluster(cb ClusterCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onCluster = cb
}

// VoiceAnalyzer exposes the stateful voice silence analyzer so last-seen
// times can be seeded from stored history.
func (d *Detector) VoiceAnalyzer() *VoiceSilenceAnalyzer {
	return d.voiceAnalyzer
}

// Detect runs all analyzers over a snapshot. A nil expectation is generated
// from the cached baseline. Returns the deltas that cleared the confidence
// filter, graded by severity.
func (d *Detector) Detect(snapshot models.DiscourseSnapshot, exp *models.DiscourseExpectation) []models.Delta {
	var expect models.DiscourseExpectation
	if exp != nil {
		expect = *exp
	} else {
		expect = d.generator.GenerateExpectation(snapshot.Entity, snapshot.WindowStart, snapshot.WindowEnd)
	}

	d.logger.Debug().Str("entity", snapshot.Entity).Msg("Detecting deltas")

	var deltas []models.Delta
	for _, analyzer := range d.analyzers {
		deltas = append(deltas, analyzer.Analyze(snapshot, expect)...)
	}
	deltas = append(deltas, d.voiceAnalyzer.AnalyzeResponseBreaks(snapshot, expect)...)

	var kept []models.Delta
	for _, delta := range deltas {
		if delta.Confidence >= d.config.MinDeltaConfidence {
			delta.Severity = gradeSeverity(delta)
			kept = append(kept, delta)
		}
	}

	d.mu.Lock()
	d.recentDeltas = append(d.recentDeltas, kept...)
	d.deltaHistory = append(d.deltaHistory, kept...)
	clusters := d.detectClustersLocked(snapshot.Entity)
	onDelta := d.onDelta
	onCluster := d.onCluster
	d.mu.Unlock()

	if onDelta != nil {
		for _, delta := range kept {
			onDelta(delta)
		}
	}
	if onCluster != nil {
		for _, cluster := range clusters {
			onCluster(cluster)
		}
	}

	d.logger.Info().Str("entity", snapshot.Entity).Int("deltas", len(kept)).Msg("Detection complete")

	return kept
}

// gradeSeverity maps deviation x confidence onto the severity ladder.
func gradeSeverity(delta models.Delta) models.DeltaSeverity {
	score := delta.DeviationScore * delta.Confidence
	switch {
	case score >= 0.8:
		return models.SeverityCritical
	case score >= 0.6:
		return models.SeverityHigh
	case score >= 0.4:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// DetectCoordinatedSilence checks whether multiple expected voices for an
// entity went quiet around the same time. Returns false when fewer than two
// voices are silent or their silences are spread too far apart.
func (d *Detector) DetectCoordinatedSilence(snapshot models.DiscourseSnapshot) (models.Delta, bool) {
	d.mu.Lock()
	var silent []models.Delta
	for _, delta := range d.recentDeltas {
		if delta.Type == models.DeltaVoiceSilence && delta.Entity == snapshot.Entity && delta.VoiceSilence != nil {
			silent = append(silent, delta)
		}
	}
	d.mu.Unlock()

	if len(silent) < 2 {
		return models.Delta{}, false
	}

	var silenceTimes []time.Time
	for _, delta := range silent {
		if delta.VoiceSilence.LastPostTime != nil {
			silenceTimes = append(silenceTimes, *delta.VoiceSilence.LastPostTime)
		}
	}
	if len(silenceTimes) == 0 {
		return models.Delta{}, false
	}

	minTime, maxTime := silenceTimes[0], silenceTimes[0]
	for _, t := range silenceTimes[1:] {
		if t.Before(minTime) {
			minTime = t
		}
		if t.After(maxTime) {
			maxTime = t
		}
	}
	spread := maxTime.Sub(minTime)
	windowHours := d.config.CoordinationWindow.Hours()

	if spread >= d.config.CoordinationWindow {
		return models.Delta{}, false
	}

	spreadHours := spread.Hours()
	score := 1.0 - spreadHours/windowHours

	accounts := make([]string, len(silent))
	usernames := make([]string, len(silent))
	for i, delta := range silent {
		accounts[i] = delta.VoiceSilence.AccountID
		usernames[i] = delta.VoiceSilence.Username
	}

	delta := models.NewCoordinatedSilenceDelta(
		common.NewDeltaID(),
		snapshot.Entity,
		time.Now().UTC(),
		snapshot.WindowStart,
		snapshot.WindowEnd,
		models.CoordinatedSilenceDetails{
			SilentAccounts:    accounts,
			SilentUsernames:   usernames,
			SilenceStartTimes: silenceTimes,
			TimeSpreadHours:   spreadHours,
			CoordinationScore: score,
		},
		score*0.8,
	)
	delta.Severity = gradeSeverity(delta)
	return delta, true
}

// detectClustersLocked groups an entity's recent deltas into clusters: runs
// of deltas each within the cluster window of the previous one. Only groups
// of at least MinClusterSize survive.
func (d *Detector) detectClustersLocked(entity string) []models.DeltaCluster {
	var entityDeltas []models.Delta
	for _, delta := range d.recentDeltas {
		if delta.Entity == entity {
			entityDeltas = append(entityDeltas, delta)
		}
	}

	if len(entityDeltas) < d.config.MinClusterSize {
		return nil
	}

	sort.SliceStable(entityDeltas, func(i, j int) bool {
		return entityDeltas[i].DetectedAt.Before(entityDeltas[j].DetectedAt)
	})

	var clusters []models.DeltaCluster
	var current *models.DeltaCluster

	for _, delta := range entityDeltas {
		switch {
		case current == nil:
			current = &models.DeltaCluster{ClusterID: common.NewClusterID(), Entity: entity}
			current.AddDelta(delta)
		case current.LastDeltaTime != nil && delta.DetectedAt.Sub(*current.LastDeltaTime) <= d.config.ClusterWindow:
			current.AddDelta(delta)
		default:
			if len(current.Deltas) >= d.config.MinClusterSize {
				clusters = append(clusters, *current)
			}
			current = &models.DeltaCluster{ClusterID: common.NewClusterID(), Entity: entity}
			current.AddDelta(delta)
		}
	}

	if current != nil && len(current.Deltas) >= d.config.MinClusterSize {
		clusters = append(clusters, *current)
	}

	return clusters
}

// CleanupOldDeltas drops deltas older than maxAge from recent tracking and
// returns how many were removed.
func (d *Detector) CleanupOldDeltas(maxAge time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	var kept []models.Delta
	for _, delta := range d.recentDeltas {
		if !delta.DetectedAt.Before(cutoff) {
			kept = append(kept, delta)
		}
	}
	removed := len(d.recentDeltas) - len(kept)
	d.recentDeltas = kept
	return removed
}

// RecentDeltas returns recent deltas, optionally filtered by entity, type
// and minimum severity. Empty entity or type match everything.
func (d *Detector) RecentDeltas(entity string, deltaType models.DeltaType, minSeverity models.DeltaSeverity) []models.Delta {
	d.mu.Lock()
	defer d.mu.Unlock()

	minRank := 0
	if minSeverity != "" {
		minRank = models.SeverityRank(minSeverity)
	}

	var matched []models.Delta
	for _, delta := range d.recentDeltas {
		if entity != "" && delta.Entity != entity {
			continue
		}
		if deltaType != "" && delta.Type != deltaType {
			continue
		}
		if models.SeverityRank(delta.Severity) < minRank {
			continue
		}
		matched = append(matched, delta)
	}
	return matched
}

// DeltaStatistics counts recent deltas for an entity by type and severity.
func (d *Detector) DeltaStatistics(entity string) Statistics {
	deltas := d.RecentDeltas(entity, "", "")

	stats := Statistics{
		Entity:     entity,
		ByType:     make(map[models.DeltaType]int),
		BySeverity: make(map[models.DeltaSeverity]int),
	}

	totalConfidence := 0.0
	for _, delta := range deltas {
		stats.ByType[delta.Type]++
		stats.BySeverity[delta.Severity]++
		totalConfidence += delta.Confidence
	}
	stats.TotalDeltas = len(deltas)
	if len(deltas) > 0 {
		stats.AvgConfidence = totalConfidence / float64(len(deltas))
	}
	return stats
}
