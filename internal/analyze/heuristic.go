package analyze

import (
	"context"
	"regexp"
	"strings"

	"parley/internal/domain"
)

var (
	numberPattern   = regexp.MustCompile(`\d+`)
	metricPattern   = regexp.MustCompile(`(?i)(seconds?|minutes?|hours?|days?|weeks?|months?|\$|%|per\s|users?|clients?|orders?|tickets?)`)
	examplePattern  = regexp.MustCompile(`(?i)(e\.g\.|for example|for instance|such as|like when|last time)`)
	currencyPattern = regexp.MustCompile(`(?i)(\$\s?\d|dollars?|budget|cost|spend|pricing|per month|per year)`)
	timelinePattern = regexp.MustCompile(`(?i)(this quarter|next quarter|by q[1-4]|deadline|within \d|by (january|february|march|april|may|june|july|august|september|october|november|december))`)
	titlePattern    = regexp.MustCompile(`(?i)\b(ceo|cfo|coo|cto|founder|owner|director|vp|head of|manager)\b`)
	toolPattern     = regexp.MustCompile(`(?i)\b(excel|spreadsheet|quickbooks|salesforce|hubspot|slack|asana|trello|jira|notion|airtable|zapier|sap|netsuite|shopify|stripe|monday|clickup)\b`)
)

// stageTopics maps each deep-dive stage to the topics its answers inform.
var stageTopics = map[domain.Stage][]domain.Topic{
	domain.StageCurrentState:   {domain.TopicCurrentChallenges, domain.TopicTeamOperations},
	domain.StageFailedAttempts: {domain.TopicCurrentChallenges, domain.TopicTechnology},
	domain.StageCostImpact:     {domain.TopicBudgetTimeline, domain.TopicCurrentChallenges},
	domain.StageIdealState:     {domain.TopicBusinessGoals, domain.TopicTechnology},
	domain.StageStakeholders:   {domain.TopicTeamOperations, domain.TopicBusinessGoals},
}

// Heuristic is the shipped deterministic analyzer. It scores transcripts
// with keyword and pattern tables; every component is non-decreasing in
// added substantive content, which the scorer's monotonicity relies on.
type Heuristic struct{}

func NewHeuristic() Heuristic { return Heuristic{} }

func (Heuristic) Version() string { return "heuristic/v1" }

type topicEvidence struct {
	userTurns    int
	words        int
	numberHits   int
	metricHits   int
	exampleHits  int
	toolHits     int
	currencyHits int
}

func (Heuristic) Analyze(_ context.Context, dives []domain.DeepDive) (Extraction, error) {
	evidence := map[domain.Topic]*topicEvidence{}
	for _, topic := range domain.AllTopics() {
		evidence[topic] = &topicEvidence{}
	}

	var depth domain.DepthDimensions
	var quality domain.QualityIndicators
	toolsSeen := map[string]bool{}
	stakeholderHits := 0
	timelineHits := 0
	integrationHits := 0
	currencyTotal := 0

	for _, dive := range dives {
		substantiveTurns := 0
		stage := domain.StageCurrentState
		for _, turn := range dive.Transcript {
			if turn.Role != "user" {
				continue
			}
			content := turn.Content
			if len(strings.Fields(content)) >= 5 {
				substantiveTurns++
			}
			// A turn answers the stage the question was asked in; without
			// per-turn stage tags, attribute by position in the stage order.
			topics := stageTopics[stage]
			if dive.Stage == domain.StageComplete || stageIndex(stage) < stageIndex(dive.Stage) {
				stage = domain.NextStage(stage)
			}
			for _, topic := range topics {
				ev := evidence[topic]
				ev.userTurns++
				ev.words += len(strings.Fields(content))
				ev.numberHits += len(numberPattern.FindAllString(content, -1))
				ev.metricHits += len(metricPattern.FindAllString(content, -1))
				ev.exampleHits += len(examplePattern.FindAllString(content, -1))
				ev.toolHits += len(toolPattern.FindAllString(content, -1))
				ev.currencyHits += len(currencyPattern.FindAllString(content, -1))
			}
			for _, tool := range toolPattern.FindAllString(content, -1) {
				toolsSeen[strings.ToLower(tool)] = true
			}
			stakeholderHits += len(titlePattern.FindAllString(content, -1))
			timelineHits += len(timelinePattern.FindAllString(content, -1))
			currencyTotal += len(currencyPattern.FindAllString(content, -1))
			if strings.Contains(strings.ToLower(content), "integrat") || strings.Contains(strings.ToLower(content), "sync") {
				integrationHits++
			}
			if numberPattern.MatchString(content) && metricPattern.MatchString(content) {
				quality.QuantifiableImpacts++
			}
		}
		if substantiveTurns >= 2 {
			quality.PainPointsExtracted++
		}
	}

	topics := map[domain.Topic]domain.TopicScore{}
	for _, topic := range domain.AllTopics() {
		topics[topic] = scoreTopic(*evidence[topic])
	}

	depth.IntegrationDepth = ratio(integrationHits, 4)
	depth.CostQuantification = ratio(currencyTotal, 3)
	depth.StakeholderMapping = ratio(stakeholderHits, 3)
	depth.ImplementationReadiness = ratio(timelineHits, 2)

	quality.SpecificToolsMentioned = len(toolsSeen)
	quality.BudgetClarity = currencyTotal >= 2
	quality.TimelineClarity = timelineHits >= 1
	quality.DecisionMakerIdentified = stakeholderHits >= 1

	return Extraction{Topics: topics, Depth: depth, Quality: quality}, nil
}

func scoreTopic(ev topicEvidence) domain.TopicScore {
	return domain.TopicScore{
		Coverage:      cap25(ev.userTurns * 5),
		Depth:         cap25(ev.words / 12),
		Specificity:   cap25(ev.numberHits*3 + ev.metricHits*2 + ev.toolHits*4),
		Actionability: cap25(ev.exampleHits*5 + ev.currencyHits*3 + ev.userTurns*2),
	}
}

func stageIndex(s domain.Stage) int {
	for i, st := range domain.StageOrder {
		if st == s {
			return i
		}
	}
	return len(domain.StageOrder) - 1
}

func cap25(v int) int {
	if v > 25 {
		return 25
	}
	if v < 0 {
		return 0
	}
	return v
}

func ratio(hits, target int) float64 {
	if target <= 0 {
		return 0
	}
	r := float64(hits) / float64(target)
	if r > 1 {
		return 1
	}
	return r
}
