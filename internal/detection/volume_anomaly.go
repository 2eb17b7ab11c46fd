package detection

import (
	"math"
	"time"

	"github.com/ternarybob/tacet/internal/common"
	"github.com/ternarybob/tacet/internal/models"
)

// VolumeAnomalyAnalyzer detects unusual activity levels. Both directions
// matter: a collapse can be coordinated silence or pre-announcement quiet, a
// spike can be breaking news or a coordinated campaign.
type VolumeAnomalyAnalyzer struct {
	// Volume ratio below which the window counts as collapsed.
	CollapseThreshold float64
	// Volume ratio above which the window counts as a spike.
	SpikeThreshold float64
	// Z-score a spike must additionally clear. Collapses near zero always
	// have extreme ratios, so they skip the z gate.
	ZThreshold float64
}

// NewVolumeAnomalyAnalyzer creates the analyzer with default thresholds.
func NewVolumeAnomalyAnalyzer() *VolumeAnomalyAnalyzer {
	return &VolumeAnomalyAnalyzer{
		CollapseThreshold: 0.5,
		SpikeThreshold:    2.0,
		ZThreshold:        2.0,
	}
}

func (a *VolumeAnomalyAnalyzer) Name() string { return "volume_anomaly" }

func (a *VolumeAnomalyAnalyzer) Analyze(snapshot models.DiscourseSnapshot, expectation models.DiscourseExpectation) []models.Delta {
	expected := expectation.ExpectedPostCount
	observed := snapshot.TotalPosts

	if expected <= 0 {
		return nil
	}

	ratio := float64(observed) / expected
	stddev := expectation.Baseline.PostStddev

	z := 0.0
	if stddev > 0 {
		z = (float64(observed) - expected) / stddev
	}

	switch {
	case ratio < a.CollapseThreshold:
		confidence := math.Min(0.95, 0.5+(a.CollapseThreshold-ratio)*0.5)
		return []models.Delta{a.buildDelta(snapshot, expectation, ratio, z, confidence)}
	case ratio > a.SpikeThreshold && math.Abs(z) >= a.ZThreshold:
		confidence := math.Min(0.95, 0.4+(ratio-a.SpikeThreshold)*0.1)
		return []models.Delta{a.buildDelta(snapshot, expectation, ratio, z, confidence)}
	}

	return nil
}

func (a *VolumeAnomalyAnalyzer) buildDelta(snapshot models.DiscourseSnapshot, expectation models.DiscourseExpectation, ratio, z, confidence float64) models.Delta {
	uniqueAuthorRatio := 0.0
	if snapshot.TotalPosts > 0 {
		uniqueAuthorRatio = float64(snapshot.UniqueAuthors) / float64(snapshot.TotalPosts)
	}

	return models.NewVolumeAnomalyDelta(
		common.NewDeltaID(),
		snapshot.Entity,
		time.Now().UTC(),
		snapshot.WindowStart,
		snapshot.WindowEnd,
		models.VolumeAnomalyDetails{
			ExpectedVolume:  expectation.ExpectedPostCount,
			ObservedVolume:  snapshot.TotalPosts,
			VolumeRatio:     ratio,
			BaselineVolume:  expectation.Baseline.AvgPostsPerWindow,
			VolumeStddev:    expectation.Baseline.PostStddev,
			ZScore:          z,
			UniqueAuthors:   snapshot.UniqueAuthors,
			ExpectedAuthors: expectation.ExpectedPostCount * uniqueAuthorRatio,
		},
		confidence,
	)
}
