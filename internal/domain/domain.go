package domain

import "fmt"

// Phase is the outer workshop state.
type Phase string

const (
	PhaseConfirmation Phase = "confirmation"
	PhaseDeepDive     Phase = "deepdive"
	PhaseSynthesis    Phase = "synthesis"
	PhaseComplete     Phase = "complete"
)

// phaseTransitions is the only legal forward order; anything absent is rejected.
var phaseTransitions = map[Phase][]Phase{
	PhaseConfirmation: {PhaseDeepDive},
	PhaseDeepDive:     {PhaseSynthesis, PhaseComplete},
	PhaseSynthesis:    {PhaseComplete},
	PhaseComplete:     {},
}

// EnsurePhaseTransition rejects any phase change not present in the table.
func EnsurePhaseTransition(from, to Phase) error {
	for _, next := range phaseTransitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("invalid phase transition %s -> %s", from, to)
}

// Stage is the per-pain-point deep-dive sub-state.
type Stage string

const (
	StageCurrentState   Stage = "current_state"
	StageFailedAttempts Stage = "failed_attempts"
	StageCostImpact     Stage = "cost_impact"
	StageIdealState     Stage = "ideal_state"
	StageStakeholders   Stage = "stakeholders"
	StageComplete       Stage = "complete"
)

// StageOrder is the fixed deep-dive progression.
var StageOrder = []Stage{
	StageCurrentState,
	StageFailedAttempts,
	StageCostImpact,
	StageIdealState,
	StageStakeholders,
	StageComplete,
}

// NextStage returns the stage after s, or StageComplete when at the end.
func NextStage(s Stage) Stage {
	for i, st := range StageOrder {
		if st == s && i+1 < len(StageOrder) {
			return StageOrder[i+1]
		}
	}
	return StageComplete
}

// ValidStage reports whether s is a member of the closed stage set.
func ValidStage(s Stage) bool {
	for _, st := range StageOrder {
		if st == s {
			return true
		}
	}
	return false
}

// Topic is one of the five scored interview topics.
type Topic string

const (
	TopicCurrentChallenges Topic = "current_challenges"
	TopicBusinessGoals     Topic = "business_goals"
	TopicTeamOperations    Topic = "team_operations"
	TopicTechnology        Topic = "technology"
	TopicBudgetTimeline    Topic = "budget_timeline"
)

// AllTopics returns the fixed topic set in scoring order.
func AllTopics() []Topic {
	return []Topic{
		TopicCurrentChallenges,
		TopicBusinessGoals,
		TopicTeamOperations,
		TopicTechnology,
		TopicBudgetTimeline,
	}
}

// Profile is the upstream intake data a session is created with.
type Profile struct {
	Role        string            `json:"role"`
	CompanySize string            `json:"company_size"`
	Budget      string            `json:"budget"`
	Answers     map[string]string `json:"answers,omitempty"`
	PainPoints  []PainPoint       `json:"pain_points"`
}

// PainPoint is one candidate deep-dive subject from intake.
type PainPoint struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// DetectedSignals drives question framing adaptation.
type DetectedSignals struct {
	Technical     bool `json:"technical"`
	BudgetReady   bool `json:"budget_ready"`
	DecisionMaker bool `json:"decision_maker"`
}

// SummaryCard is one confirmation card shown before the deep dives.
type SummaryCard struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Confirmation records the outcome of the confirmation phase.
type Confirmation struct {
	Cards         []SummaryCard     `json:"cards,omitempty"`
	Ratings       map[string]int    `json:"ratings,omitempty"`
	Corrections   map[string]string `json:"corrections,omitempty"`
	PriorityOrder []string          `json:"priority_order,omitempty"`
	ConfirmedAt   string            `json:"confirmed_at,omitempty" format:"date-time"`
}

// Turn is one transcript entry.
type Turn struct {
	Role      string `json:"role" enum:"user,assistant"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp" format:"date-time"`
}

// DeepDive is the focused sub-conversation for one pain point.
type DeepDive struct {
	PainPointID string `json:"pain_point_id"`
	Label       string `json:"label"`
	Stage       Stage  `json:"stage" enum:"current_state,failed_attempts,cost_impact,ideal_state,stakeholders,complete"`
	Transcript  []Turn `json:"transcript,omitempty"`
	HasFinding  bool   `json:"has_finding"`
}

// Finding is the structured core of a synthesized milestone.
type Finding struct {
	Title          string `json:"title"`
	Summary        string `json:"summary"`
	CurrentProcess string `json:"current_process,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// ROI is the derived financial estimate attached to a milestone.
type ROI struct {
	HoursPerWeek      float64 `json:"hours_per_week"`
	HourlyRate        float64 `json:"hourly_rate"`
	AnnualCost        float64 `json:"annual_cost"`
	PotentialSavings  float64 `json:"potential_savings"`
	SavingsPercentage float64 `json:"savings_percentage"`
	Rationale         string  `json:"rationale,omitempty"`
}

// Vendor fit tiers form a closed set.
const (
	FitHigh   = "high"
	FitMedium = "medium"
	FitLow    = "low"
)

// VendorFit is one suggested vendor with a fit tier.
type VendorFit struct {
	Name    string `json:"name"`
	FitTier string `json:"fit_tier" enum:"high,medium,low"`
	Reason  string `json:"reason,omitempty"`
}

// Milestone is one synthesized finding shown after a deep dive completes.
type Milestone struct {
	PainPointID       string      `json:"pain_point_id"`
	Finding           Finding     `json:"finding"`
	ROI               ROI         `json:"roi"`
	Vendors           []VendorFit `json:"vendors,omitempty"`
	Confidence        float64     `json:"confidence" minimum:"0" maximum:"1"`
	DataGaps          []string    `json:"data_gaps,omitempty"`
	UserFeedback      string      `json:"user_feedback,omitempty"`
	NeedsManualReview bool        `json:"needs_manual_review"`
	ShownAt           string      `json:"shown_at" format:"date-time"`
}

// TopicScore holds the four raw sub-scores for one topic, each in [0,25].
type TopicScore struct {
	Coverage      int `json:"coverage" minimum:"0" maximum:"25"`
	Depth         int `json:"depth" minimum:"0" maximum:"25"`
	Specificity   int `json:"specificity" minimum:"0" maximum:"25"`
	Actionability int `json:"actionability" minimum:"0" maximum:"25"`
}

// DepthDimensions are the four depth floats, each in [0,1].
type DepthDimensions struct {
	IntegrationDepth        float64 `json:"integration_depth"`
	CostQuantification      float64 `json:"cost_quantification"`
	StakeholderMapping      float64 `json:"stakeholder_mapping"`
	ImplementationReadiness float64 `json:"implementation_readiness"`
}

// QualityIndicators are counted/boolean evidence markers.
type QualityIndicators struct {
	PainPointsExtracted     int  `json:"pain_points_extracted"`
	QuantifiableImpacts     int  `json:"quantifiable_impacts"`
	SpecificToolsMentioned  int  `json:"specific_tools_mentioned"`
	BudgetClarity           bool `json:"budget_clarity"`
	TimelineClarity         bool `json:"timeline_clarity"`
	DecisionMakerIdentified bool `json:"decision_maker_identified"`
}

// Readiness levels form a closed set.
const (
	LevelInsufficient = "insufficient"
	LevelAcceptable   = "acceptable"
	LevelExcellent    = "excellent"
)

// HardGates reports each completion precondition individually.
type HardGates struct {
	ChallengesCovered bool `json:"challenges_covered"`
	TopicSpreadMet    bool `json:"topic_spread_met"`
	PainPointFound    bool `json:"pain_point_found"`
}

// Pass is true only when every gate passes.
func (g HardGates) Pass() bool {
	return g.ChallengesCovered && g.TopicSpreadMet && g.PainPointFound
}

// OverallReadiness is the scored verdict on whether to hand off.
type OverallReadiness struct {
	Score            float64   `json:"score" minimum:"0" maximum:"1"`
	Level            string    `json:"level" enum:"insufficient,acceptable,excellent"`
	HardGates        HardGates `json:"hard_gates"`
	IsReadyForReport bool      `json:"is_ready_for_report"`
}

// ConfidenceReport is one persisted scoring run.
type ConfidenceReport struct {
	SessionID       string               `json:"session_id"`
	AnalyzerVersion string               `json:"analyzer_version"`
	Topics          map[Topic]TopicScore `json:"topics"`
	TopicConfidence map[Topic]float64    `json:"topic_confidence"`
	Depth           DepthDimensions      `json:"depth_dimensions"`
	Quality         QualityIndicators    `json:"quality_indicators"`
	Readiness       OverallReadiness     `json:"readiness"`
	SuggestedTopics []Topic              `json:"suggested_topics,omitempty"`
	CreatedAt       string               `json:"created_at" format:"date-time"`
}

// WorkshopState is the durable per-session interview state.
type WorkshopState struct {
	Phase             Phase             `json:"phase" enum:"confirmation,deepdive,synthesis,complete"`
	Signals           DetectedSignals   `json:"detected_signals"`
	Confirmation      Confirmation      `json:"confirmation"`
	DeepDives         []DeepDive        `json:"deep_dives,omitempty"`
	DeepDiveOrder     []string          `json:"deep_dive_order,omitempty"`
	FinalAnswers      map[string]string `json:"final_answers,omitempty"`
	NeedsManualReview bool              `json:"needs_manual_review"`
	StartedAt         string            `json:"started_at,omitempty" format:"date-time"`
	CompletedAt       string            `json:"completed_at,omitempty" format:"date-time"`
	DurationMinutes   int               `json:"duration_minutes,omitempty"`
}

// DeepDiveFor returns the deep dive for a pain point, or nil.
func (s *WorkshopState) DeepDiveFor(painPointID string) *DeepDive {
	for i := range s.DeepDives {
		if s.DeepDives[i].PainPointID == painPointID {
			return &s.DeepDives[i]
		}
	}
	return nil
}

// ActiveDeepDive returns the single non-complete deep dive, or nil.
func (s *WorkshopState) ActiveDeepDive() *DeepDive {
	for i := range s.DeepDives {
		if s.DeepDives[i].Stage != StageComplete {
			return &s.DeepDives[i]
		}
	}
	return nil
}

// Session is the durable record owning one WorkshopState.
type Session struct {
	ID        string        `json:"id"`
	Profile   Profile       `json:"profile"`
	State     WorkshopState `json:"state"`
	Version   int64         `json:"version"`
	CreatedAt string        `json:"created_at" format:"date-time"`
	UpdatedAt string        `json:"updated_at" format:"date-time"`
}

// Handoff is the payload released to the report pipeline on completion.
type Handoff struct {
	SessionID         string  `json:"session_id"`
	Token             string  `json:"token"`
	MilestoneCount    int     `json:"milestone_count"`
	TotalAnnualCost   float64 `json:"total_annual_cost"`
	TotalSavings      float64 `json:"total_savings"`
	DurationMinutes   int     `json:"duration_minutes"`
	NeedsManualReview bool    `json:"needs_manual_review"`
	ReadyForReport    bool    `json:"ready_for_report"`
}

// Event is one append-only audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIKey is a hashed credential for machine callers.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	Scopes    string `json:"scopes,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
