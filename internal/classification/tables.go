package classification

import (
	"sort"
	"strings"

	"github.com/ternarybob/tacet/internal/models"
)

// typeWeight pairs an event type with its base probability for a pattern.
type typeWeight struct {
	Type   models.EventType
	Weight float64
}

// pattern maps a combination of delta types to candidate event types,
// ordered by weight. Multi-type patterns are more specific and sit after
// the single-type entries so subset matching prefers the simple patterns
// the same way every run.
type pattern struct {
	DeltaTypes []models.DeltaType
	Candidates []typeWeight
}

var deltaEventPatterns = []pattern{
	{
		DeltaTypes: []models.DeltaType{models.DeltaTopicAbsence},
		Candidates: []typeWeight{
			{models.EventInformationSuppression, 0.6},
			{models.EventPreAnnouncement, 0.3},
		},
	},
	{
		DeltaTypes: []models.DeltaType{models.DeltaVoiceSilence},
		Candidates: []typeWeight{
			{models.EventInsiderActivity, 0.5},
			{models.EventDepartureSignal, 0.3},
		},
	},
	{
		DeltaTypes: []models.DeltaType{models.DeltaSentimentDecoupling},
		Candidates: []typeWeight{
			{models.EventConfidenceLoss, 0.5},
			{models.EventSentimentShift, 0.4},
		},
	},
	{
		DeltaTypes: []models.DeltaType{models.DeltaVolumeCollapse},
		Candidates: []typeWeight{
			{models.EventInformationSuppression, 0.4},
			{models.EventPreAnnouncement, 0.4},
		},
	},
	{
		DeltaTypes: []models.DeltaType{models.DeltaCoordinatedSilence},
		Candidates: []typeWeight{
			{models.EventCoordinationDetected, 0.8},
			{models.EventInformationSuppression, 0.6},
		},
	},
	{
		DeltaTypes: []models.DeltaType{models.DeltaTopicAbsence, models.DeltaVoiceSilence},
		Candidates: []typeWeight{
			{models.EventInformationSuppression, 0.8},
			{models.EventCrisisEmerging, 0.5},
		},
	},
	{
		DeltaTypes: []models.DeltaType{models.DeltaSentimentDecoupling, models.DeltaVolumeSpike},
		Candidates: []typeWeight{
			{models.EventCrisisEmerging, 0.7},
			{models.EventSentimentShift, 0.5},
		},
	},
	{
		DeltaTypes: []models.DeltaType{models.DeltaVoiceSilence, models.DeltaSentimentDecoupling},
		Candidates: []typeWeight{
			{models.EventInsiderActivity, 0.7},
			{models.EventConfidenceLoss, 0.6},
		},
	},
}

// patternKey builds a canonical key from a set of delta types.
func patternKey(types []models.DeltaType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	sort.Strings(names)
	return strings.Join(names, "+")
}

var exactPatterns = buildExactIndex()

func buildExactIndex() map[string][]typeWeight {
	index := make(map[string][]typeWeight, len(deltaEventPatterns))
	for _, p := range deltaEventPatterns {
		index[patternKey(p.DeltaTypes)] = p.Candidates
	}
	return index
}

// lookupPattern resolves candidates for a set of delta types: exact match
// first, then the first pattern whose types are all present.
func lookupPattern(types []models.DeltaType) []typeWeight {
	if candidates, ok := exactPatterns[patternKey(types)]; ok {
		return candidates
	}

	present := make(map[models.DeltaType]bool, len(types))
	for _, t := range types {
		present[t] = true
	}

	for _, p := range deltaEventPatterns {
		matched := true
		for _, t := range p.DeltaTypes {
			if !present[t] {
				matched = false
				break
			}
		}
		if matched {
			return p.Candidates
		}
	}
	return nil
}

// severityByDelta maps the worst delta severity to an event severity.
var severityByDelta = map[models.DeltaSeverity]models.EventSeverity{
	models.SeverityLow:      models.EventMinor,
	models.SeverityMedium:   models.EventNotable,
	models.SeverityHigh:     models.EventSignificant,
	models.SeverityCritical: models.EventMajor,
}

type directionPrediction struct {
	Direction  string
	Confidence float64
}

var directionByType = map[models.EventType]directionPrediction{
	models.EventInformationSuppression: {models.DirectionDown, 0.6},
	models.EventConfidenceLoss:         {models.DirectionDown, 0.7},
	models.EventCrisisEmerging:         {models.DirectionDown, 0.8},
	models.EventDepartureSignal:        {models.DirectionDown, 0.5},
	models.EventInsiderActivity:        {models.DirectionVolatile, 0.6},
	models.EventCoordinationDetected:   {models.DirectionVolatile, 0.5},
	models.EventSentimentShift:         {models.DirectionVolatile, 0.5},
	models.EventPreAnnouncement:        {models.DirectionVolatile, 0.6},
	models.EventAnomalyDetected:        {"", 0.3},
}

var magnitudeBySeverity = map[models.EventSeverity]string{
	models.EventNoise:       models.MagnitudeNegligible,
	models.EventMinor:       models.MagnitudeMinor,
	models.EventNotable:     models.MagnitudeMinor,
	models.EventSignificant: models.MagnitudeModerate,
	models.EventMajor:       models.MagnitudeMajor,
}

// timingByType gives a coarse expectation of when the market reaction
// should show up. Crisis signals move fast, insider behavior plays out over
// days.
var timingByType = map[models.EventType]string{
	models.EventCrisisEmerging:         models.TimingImmediate,
	models.EventSentimentShift:         models.TimingImmediate,
	models.EventInformationSuppression: models.TimingHours,
	models.EventPreAnnouncement:        models.TimingHours,
	models.EventCoordinationDetected:   models.TimingHours,
	models.EventConfidenceLoss:         models.TimingDays,
	models.EventInsiderActivity:        models.TimingDays,
	models.EventDepartureSignal:        models.TimingDays,
}

var reasoningByType = map[models.EventType]string{
	models.EventInformationSuppression: "Detected potential information suppression: %s. This pattern often precedes negative news announcements.",
	models.EventConfidenceLoss:         "Detected signals of confidence loss: %s. Sentiment and/or voice patterns suggest insiders may be concerned.",
	models.EventInsiderActivity:        "Detected unusual insider behavior: %s. Key voices are behaving differently than expected.",
	models.EventCrisisEmerging:         "Detected early crisis signals: %s. Multiple anomalies suggest a developing situation.",
	models.EventPreAnnouncement:        "Detected pre-announcement quiet: %s. Volume and topic patterns suggest announcement may be imminent.",
}

var titleByType = map[models.EventType]string{
	models.EventInformationSuppression: "Potential information suppression for %s",
	models.EventConfidenceLoss:         "Confidence signals weakening for %s",
	models.EventInsiderActivity:        "Unusual insider behavior detected for %s",
	models.EventCrisisEmerging:         "Early crisis signals for %s",
	models.EventPreAnnouncement:        "Pre-announcement quiet detected for %s",
	models.EventSentimentShift:         "Sentiment shift detected for %s",
	models.EventCoordinationDetected:   "Coordinated activity detected for %s",
	models.EventDepartureSignal:        "Potential departure signal for %s",
	models.EventAnomalyDetected:        "Anomaly detected for %s",
}
