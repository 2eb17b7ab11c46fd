// Package detection compares observed discourse snapshots against
// expectations and turns the differences into deltas, clusters and
// coordinated silence signals.
package detection

import (
	"github.com/ternarybob/tacet/internal/models"
)

// Analyzer inspects one snapshot against its expectation and returns any
// deltas found.
type Analyzer interface {
	Name() string
	Analyze(snapshot models.DiscourseSnapshot, expectation models.DiscourseExpectation) []models.Delta
}
