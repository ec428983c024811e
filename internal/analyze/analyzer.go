// Package analyze maps deep-dive transcripts to raw per-topic sub-scores.
// The mapping is a pluggable, versioned boundary: the orchestrator only
// depends on the Analyzer interface, and the scorer consumes Extraction
// values without ever touching transcripts.
package analyze

import (
	"context"

	"parley/internal/domain"
)

// Extraction is the raw analyzer output consumed by the confidence scorer.
type Extraction struct {
	Topics  map[domain.Topic]domain.TopicScore `json:"topics"`
	Depth   domain.DepthDimensions             `json:"depth_dimensions"`
	Quality domain.QualityIndicators           `json:"quality_indicators"`
}

// Analyzer converts transcripts into sub-scores. Implementations must be
// swappable; Version is persisted with every confidence report so scores
// stay attributable after an analyzer upgrade.
type Analyzer interface {
	Version() string
	Analyze(ctx context.Context, dives []domain.DeepDive) (Extraction, error)
}
