// Package triggers manages context triggers: known events like earnings
// releases or product launches that temporarily change what normal discourse
// looks like for an entity.
package triggers

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/tacet/internal/models"
)

// Source identifies where a trigger came from.
type Source string

const (
	SourceCalendar Source = "calendar"
	SourceNews     Source = "news"
	SourceMarket   Source = "market"
	SourceSocial   Source = "social"
	SourceManual   Source = "manual"
)

// Definition describes a trigger type and its default effects on
// expectations.
type Definition struct {
	TriggerType models.TriggerType `toml:"trigger_type"`
	Name        string             `toml:"name"`

	DefaultVolumeMultiplier float64 `toml:"volume_multiplier"`
	DefaultSentimentShift   float64 `toml:"sentiment_shift"`
	DefaultDurationHours    float64 `toml:"duration_hours"`

	TypicalRequiredVoices []string `toml:"required_voices,omitempty"`
	TypicalExpectedTopics []string `toml:"expected_topics,omitempty"`

	DetectionKeywords []string `toml:"detection_keywords,omitempty"`
}

// Registry is an immutable trigger catalog with a fixed keyword scan order
// so text detection is deterministic. Built once and injected into the
// Manager at construction.
type Registry struct {
	order []models.TriggerType
	defs  map[models.TriggerType]Definition
}

// Get returns the definition for a trigger type.
func (r Registry) Get(triggerType models.TriggerType) (Definition, bool) {
	def, ok := r.defs[triggerType]
	return def, ok
}

// Types returns trigger types in scan order.
func (r Registry) Types() []models.TriggerType {
	return r.order
}

// DefaultRegistry returns the built-in trigger catalog.
func DefaultRegistry() Registry {
	return Registry{
		order: []models.TriggerType{
			models.TriggerEarningsRelease,
			models.TriggerProductLaunch,
			models.TriggerExecutiveChange,
			models.TriggerRegulatoryFiling,
			models.TriggerNewsBreaking,
			models.TriggerMarketOpen,
			models.TriggerMarketClose,
		},
		defs: defaultDefinitions,
	}
}

// LoadRegistry reads a TOML definitions file and overlays it onto the
// built-in catalog. Entries with a known trigger_type replace the default;
// unknown types are appended to the scan order.
func LoadRegistry(path string) (Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Registry{}, fmt.Errorf("failed to read trigger definitions %s: %w", path, err)
	}

	var file struct {
		Definitions []Definition `toml:"definitions"`
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return Registry{}, fmt.Errorf("failed to parse trigger definitions %s: %w", path, err)
	}

	base := DefaultRegistry()
	defs := make(map[models.TriggerType]Definition, len(base.defs)+len(file.Definitions))
	for k, v := range base.defs {
		defs[k] = v
	}
	order := append([]models.TriggerType(nil), base.order...)

	for _, def := range file.Definitions {
		if def.TriggerType == "" {
			return Registry{}, fmt.Errorf("trigger definition in %s is missing trigger_type", path)
		}
		if _, known := defs[def.TriggerType]; !known {
			order = append(order, def.TriggerType)
		}
		defs[def.TriggerType] = def
	}

	return Registry{order: order, defs: defs}, nil
}

var defaultDefinitions = map[models.TriggerType]Definition{
	models.TriggerEarningsRelease: {
		TriggerType:             models.TriggerEarningsRelease,
		Name:                    "Earnings Release",
		DefaultVolumeMultiplier: 5.0,
		DefaultDurationHours:    48.0,
		TypicalExpectedTopics:   []string{"earnings", "revenue", "guidance", "eps"},
		DetectionKeywords:       []string{"earnings", "quarterly results", "Q1", "Q2", "Q3", "Q4"},
	},
	models.TriggerProductLaunch: {
		TriggerType:             models.TriggerProductLaunch,
		Name:                    "Product Launch",
		DefaultVolumeMultiplier: 3.0,
		DefaultDurationHours:    72.0,
		TypicalExpectedTopics:   []string{"launch", "announcement", "new product"},
		DetectionKeywords:       []string{"launch", "announcing", "introducing", "unveil"},
	},
	models.TriggerExecutiveChange: {
		TriggerType:             models.TriggerExecutiveChange,
		Name:                    "Executive Change",
		DefaultVolumeMultiplier: 4.0,
		DefaultSentimentShift:   -0.1,
		DefaultDurationHours:    168.0,
		TypicalExpectedTopics:   []string{"ceo", "cfo", "departure", "appointment"},
		DetectionKeywords:       []string{"steps down", "appointed", "resignation", "new ceo"},
	},
	models.TriggerRegulatoryFiling: {
		TriggerType:             models.TriggerRegulatoryFiling,
		Name:                    "Regulatory Filing",
		DefaultVolumeMultiplier: 2.0,
		DefaultDurationHours:    24.0,
		TypicalExpectedTopics:   []string{"sec", "filing", "disclosure"},
		DetectionKeywords:       []string{"8-K", "10-K", "10-Q", "SEC filing", "Form 4"},
	},
	models.TriggerNewsBreaking: {
		TriggerType:             models.TriggerNewsBreaking,
		Name:                    "Breaking News",
		DefaultVolumeMultiplier: 10.0,
		DefaultDurationHours:    12.0,
		DetectionKeywords:       []string{"breaking", "just in", "developing"},
	},
	models.TriggerMarketOpen: {
		TriggerType:             models.TriggerMarketOpen,
		Name:                    "Market Open",
		DefaultVolumeMultiplier: 1.5,
		DefaultDurationHours:    1.0,
	},
	models.TriggerMarketClose: {
		TriggerType:             models.TriggerMarketClose,
		Name:                    "Market Close",
		DefaultVolumeMultiplier: 1.3,
		DefaultDurationHours:    1.0,
	},
}
