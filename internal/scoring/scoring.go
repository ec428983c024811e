// Package scoring turns extracted topic sub-scores into an overall readiness
// verdict. It is fully deterministic and never reads transcripts itself; the
// transcript-to-sub-score mapping lives behind the analyze.Analyzer boundary.
package scoring

import (
	"sort"

	"parley/internal/domain"
)

// topicWeights biases the weighted average toward the topics the report
// pipeline depends on most.
var topicWeights = map[domain.Topic]float64{
	domain.TopicCurrentChallenges: 1.5,
	domain.TopicBusinessGoals:     1.2,
	domain.TopicTeamOperations:    1.0,
	domain.TopicTechnology:        1.0,
	domain.TopicBudgetTimeline:    0.8,
}

const (
	depthBonusFactor   = 0.15
	qualityBonusStep   = 0.05
	acceptableFloor    = 0.6
	excellentFloor     = 0.8
	challengesGateMin  = 0.5
	topicSpreadGateMin = 0.4
	topicSpreadCount   = 3
)

// Result is a full scoring breakdown for one analyzer extraction.
type Result struct {
	TopicConfidence map[domain.Topic]float64
	WeightedAverage float64
	DepthBonus      float64
	QualityBonus    float64
	Readiness       domain.OverallReadiness
	SuggestedTopics []domain.Topic
}

// TopicConfidence collapses the four sub-scores into [0,1].
func TopicConfidence(ts domain.TopicScore) float64 {
	sum := clampSub(ts.Coverage) + clampSub(ts.Depth) + clampSub(ts.Specificity) + clampSub(ts.Actionability)
	return float64(sum) / 100.0
}

func clampSub(v int) int {
	if v < 0 {
		return 0
	}
	if v > 25 {
		return 25
	}
	return v
}

// Score aggregates topic sub-scores, depth dimensions and quality indicators
// into an overall readiness verdict. Hard gates are evaluated independently
// of the numeric score and can never be out-argued by it.
func Score(topics map[domain.Topic]domain.TopicScore, depth domain.DepthDimensions, quality domain.QualityIndicators) Result {
	confidence := make(map[domain.Topic]float64, len(topicWeights))
	var weightedSum, weightTotal float64
	for _, topic := range domain.AllTopics() {
		tc := TopicConfidence(topics[topic])
		confidence[topic] = tc
		w := topicWeights[topic]
		weightedSum += tc * w
		weightTotal += w
	}
	weightedAverage := 0.0
	if weightTotal > 0 {
		weightedAverage = weightedSum / weightTotal
	}

	depthAvg := (depth.IntegrationDepth + depth.CostQuantification + depth.StakeholderMapping + depth.ImplementationReadiness) / 4.0
	depthBonus := depthAvg * depthBonusFactor

	qualityBonus := 0.0
	if quality.PainPointsExtracted >= 3 {
		qualityBonus += qualityBonusStep
	}
	if quality.QuantifiableImpacts >= 2 {
		qualityBonus += qualityBonusStep
	}

	score := weightedAverage + depthBonus + qualityBonus
	if score > 1.0 {
		score = 1.0
	}
	if score < 0 {
		score = 0
	}

	level := domain.LevelInsufficient
	switch {
	case score >= excellentFloor:
		level = domain.LevelExcellent
	case score >= acceptableFloor:
		level = domain.LevelAcceptable
	}

	gates := domain.HardGates{
		ChallengesCovered: confidence[domain.TopicCurrentChallenges] >= challengesGateMin,
		TopicSpreadMet:    countAtLeast(confidence, topicSpreadGateMin) >= topicSpreadCount,
		PainPointFound:    quality.PainPointsExtracted >= 1,
	}

	readiness := domain.OverallReadiness{
		Score:            score,
		Level:            level,
		HardGates:        gates,
		IsReadyForReport: gates.Pass() && level != domain.LevelInsufficient,
	}

	return Result{
		TopicConfidence: confidence,
		WeightedAverage: weightedAverage,
		DepthBonus:      depthBonus,
		QualityBonus:    qualityBonus,
		Readiness:       readiness,
		SuggestedTopics: suggestTopics(confidence),
	}
}

func countAtLeast(confidence map[domain.Topic]float64, min float64) int {
	n := 0
	for _, tc := range confidence {
		if tc >= min {
			n++
		}
	}
	return n
}

// suggestTopics names follow-up topics, weakest first. This is the actionable
// half of an insufficient-confidence result.
func suggestTopics(confidence map[domain.Topic]float64) []domain.Topic {
	var weak []domain.Topic
	for _, topic := range domain.AllTopics() {
		if confidence[topic] < topicSpreadGateMin {
			weak = append(weak, topic)
		}
	}
	sort.SliceStable(weak, func(i, j int) bool {
		return confidence[weak[i]] < confidence[weak[j]]
	})
	return weak
}
