package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/domain"
	"parley/internal/scoring"
)

func fullTopics(total int) map[domain.Topic]domain.TopicScore {
	per := total / 4
	rem := total - per*3
	topics := map[domain.Topic]domain.TopicScore{}
	for _, topic := range domain.AllTopics() {
		topics[topic] = domain.TopicScore{Coverage: per, Depth: per, Specificity: per, Actionability: rem}
	}
	return topics
}

func TestTopicConfidenceClampsSubScores(t *testing.T) {
	assert.Equal(t, 0.85, scoring.TopicConfidence(domain.TopicScore{Coverage: 25, Depth: 20, Specificity: 20, Actionability: 20}))
	// out-of-range sub-scores clamp to [0,25] before summing
	assert.Equal(t, 0.25, scoring.TopicConfidence(domain.TopicScore{Coverage: 99, Depth: -10, Specificity: 0, Actionability: 0}))
	assert.Equal(t, 0.0, scoring.TopicConfidence(domain.TopicScore{}))
}

func TestScoreCanonicalBreakdown(t *testing.T) {
	topics := map[domain.Topic]domain.TopicScore{
		domain.TopicCurrentChallenges: {Coverage: 25, Depth: 22, Specificity: 20, Actionability: 18}, // 0.85
		domain.TopicBusinessGoals:     {Coverage: 22, Depth: 18, Specificity: 15, Actionability: 12}, // 0.67
		domain.TopicTeamOperations:    {Coverage: 18, Depth: 15, Specificity: 12, Actionability: 10}, // 0.55
		domain.TopicTechnology:        {Coverage: 20, Depth: 18, Specificity: 15, Actionability: 12}, // 0.65
		domain.TopicBudgetTimeline:    {Coverage: 15, Depth: 10, Specificity: 8, Actionability: 8},   // 0.41
	}
	depth := domain.DepthDimensions{
		IntegrationDepth:        0.70,
		CostQuantification:      0.70,
		StakeholderMapping:      0.70,
		ImplementationReadiness: 0.70,
	}
	quality := domain.QualityIndicators{PainPointsExtracted: 3, QuantifiableImpacts: 2}

	res := scoring.Score(topics, depth, quality)

	assert.InDelta(t, 0.6558, res.WeightedAverage, 0.001)
	assert.InDelta(t, 0.105, res.DepthBonus, 1e-9)
	assert.InDelta(t, 0.10, res.QualityBonus, 1e-9)
	assert.InDelta(t, 0.8608, res.Readiness.Score, 0.001)
	assert.Equal(t, domain.LevelExcellent, res.Readiness.Level)
	assert.True(t, res.Readiness.HardGates.Pass())
	assert.True(t, res.Readiness.IsReadyForReport)
	assert.Empty(t, res.SuggestedTopics)
}

func TestChallengesGateOverridesHighScore(t *testing.T) {
	topics := fullTopics(100)
	// challenges barely below the gate but still scoring well overall
	topics[domain.TopicCurrentChallenges] = domain.TopicScore{Coverage: 12, Depth: 12, Specificity: 12, Actionability: 9} // 0.45
	depth := domain.DepthDimensions{IntegrationDepth: 1, CostQuantification: 1, StakeholderMapping: 1, ImplementationReadiness: 1}
	quality := domain.QualityIndicators{PainPointsExtracted: 5, QuantifiableImpacts: 4}

	res := scoring.Score(topics, depth, quality)

	require.Equal(t, domain.LevelExcellent, res.Readiness.Level)
	assert.False(t, res.Readiness.HardGates.ChallengesCovered)
	assert.False(t, res.Readiness.IsReadyForReport)
}

func TestPainPointGateOverridesHighScore(t *testing.T) {
	depth := domain.DepthDimensions{IntegrationDepth: 1, CostQuantification: 1, StakeholderMapping: 1, ImplementationReadiness: 1}
	res := scoring.Score(fullTopics(100), depth, domain.QualityIndicators{PainPointsExtracted: 0, QuantifiableImpacts: 4})

	assert.Equal(t, 1.0, res.Readiness.Score)
	assert.False(t, res.Readiness.HardGates.PainPointFound)
	assert.False(t, res.Readiness.IsReadyForReport)
}

func TestTopicSpreadGate(t *testing.T) {
	topics := map[domain.Topic]domain.TopicScore{
		domain.TopicCurrentChallenges: {Coverage: 25, Depth: 25, Specificity: 25, Actionability: 25},
		domain.TopicBusinessGoals:     {Coverage: 25, Depth: 25, Specificity: 25, Actionability: 25},
	}
	quality := domain.QualityIndicators{PainPointsExtracted: 3}

	res := scoring.Score(topics, domain.DepthDimensions{}, quality)

	assert.False(t, res.Readiness.HardGates.TopicSpreadMet)
	assert.False(t, res.Readiness.IsReadyForReport)
}

func TestScoreClippedToOne(t *testing.T) {
	depth := domain.DepthDimensions{IntegrationDepth: 1, CostQuantification: 1, StakeholderMapping: 1, ImplementationReadiness: 1}
	quality := domain.QualityIndicators{PainPointsExtracted: 9, QuantifiableImpacts: 9}

	res := scoring.Score(fullTopics(100), depth, quality)

	assert.Equal(t, 1.0, res.Readiness.Score)
	assert.True(t, res.Readiness.IsReadyForReport)
}

func TestLevelBoundaries(t *testing.T) {
	// weighted average equals the raw topic confidence when all topics tie
	res := scoring.Score(fullTopics(60), domain.DepthDimensions{}, domain.QualityIndicators{PainPointsExtracted: 1})
	assert.InDelta(t, 0.60, res.Readiness.Score, 1e-9)
	assert.Equal(t, domain.LevelAcceptable, res.Readiness.Level)

	res = scoring.Score(fullTopics(80), domain.DepthDimensions{}, domain.QualityIndicators{PainPointsExtracted: 1})
	assert.InDelta(t, 0.80, res.Readiness.Score, 1e-9)
	assert.Equal(t, domain.LevelExcellent, res.Readiness.Level)

	res = scoring.Score(fullTopics(59), domain.DepthDimensions{}, domain.QualityIndicators{PainPointsExtracted: 1})
	assert.Equal(t, domain.LevelInsufficient, res.Readiness.Level)
	assert.False(t, res.Readiness.IsReadyForReport)
}

func TestSuggestedTopicsWeakestFirst(t *testing.T) {
	topics := fullTopics(90)
	topics[domain.TopicTechnology] = domain.TopicScore{Coverage: 5, Depth: 5}       // 0.10
	topics[domain.TopicBudgetTimeline] = domain.TopicScore{Coverage: 15, Depth: 15} // 0.30

	res := scoring.Score(topics, domain.DepthDimensions{}, domain.QualityIndicators{PainPointsExtracted: 3})

	require.Len(t, res.SuggestedTopics, 2)
	assert.Equal(t, domain.TopicTechnology, res.SuggestedTopics[0])
	assert.Equal(t, domain.TopicBudgetTimeline, res.SuggestedTopics[1])
}
