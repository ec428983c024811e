// Package generate holds the adapter contracts for the out-of-process
// generation services (question generation and milestone synthesis), the
// schema validation applied to synthesis drafts, and the templated
// fallbacks used when a service stays down.
package generate

import (
	"context"
	"errors"
	"fmt"

	"parley/internal/domain"
)

// ErrUpstream wraps adapter failures after retries are exhausted. Callers
// degrade to fallbacks instead of surfacing it raw.
var ErrUpstream = errors.New("upstream generation failure")

// QuestionRequest carries everything the question service needs for one turn.
type QuestionRequest struct {
	SessionID        string                 `json:"session_id"`
	PainPointID      string                 `json:"pain_point_id"`
	PainPointLabel   string                 `json:"pain_point_label"`
	Stage            domain.Stage           `json:"stage"`
	Signals          domain.DetectedSignals `json:"signals"`
	RecentTranscript []domain.Turn          `json:"recent_transcript,omitempty"`
}

// Question is the service's reply: the next assistant turn and the stage the
// deep dive moves to.
type Question struct {
	Text      string       `json:"text"`
	NextStage domain.Stage `json:"next_stage"`
}

// QuestionService produces the next interview question for a deep dive.
type QuestionService interface {
	NextQuestion(ctx context.Context, req QuestionRequest) (Question, error)
}

// SynthesisRequest carries one completed deep-dive transcript. RepairHint is
// set on repair retries with the previous draft's validation error.
type SynthesisRequest struct {
	SessionID      string                 `json:"session_id"`
	PainPointID    string                 `json:"pain_point_id"`
	PainPointLabel string                 `json:"pain_point_label"`
	Transcript     []domain.Turn          `json:"transcript"`
	Signals        domain.DetectedSignals `json:"signals"`
	RepairHint     string                 `json:"repair_hint,omitempty"`
}

// Draft is an unvalidated milestone-shaped synthesis result.
type Draft struct {
	Finding    domain.Finding     `json:"finding"`
	ROI        domain.ROI         `json:"roi"`
	Vendors    []domain.VendorFit `json:"vendors,omitempty"`
	Confidence float64            `json:"confidence"`
	DataGaps   []string           `json:"data_gaps,omitempty"`
}

// SynthesisService turns a completed deep dive into a milestone draft.
type SynthesisService interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (Draft, error)
}

// ValidateDraft enforces the milestone schema. A failing draft is never
// shown to callers; the orchestrator re-prompts with this error as the
// repair hint.
func ValidateDraft(d Draft) error {
	if d.Finding.Title == "" {
		return errors.New("finding.title is required")
	}
	if d.Finding.Summary == "" {
		return errors.New("finding.summary is required")
	}
	for name, v := range map[string]float64{
		"roi.hours_per_week":     d.ROI.HoursPerWeek,
		"roi.hourly_rate":        d.ROI.HourlyRate,
		"roi.annual_cost":        d.ROI.AnnualCost,
		"roi.potential_savings":  d.ROI.PotentialSavings,
		"roi.savings_percentage": d.ROI.SavingsPercentage,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %v", name, v)
		}
	}
	if d.ROI.PotentialSavings > d.ROI.AnnualCost {
		return fmt.Errorf("roi.potential_savings %v exceeds roi.annual_cost %v", d.ROI.PotentialSavings, d.ROI.AnnualCost)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0,1]", d.Confidence)
	}
	for _, v := range d.Vendors {
		if v.Name == "" {
			return errors.New("vendor name is required")
		}
		switch v.FitTier {
		case domain.FitHigh, domain.FitMedium, domain.FitLow:
		default:
			return fmt.Errorf("vendor %s has unknown fit tier %q", v.Name, v.FitTier)
		}
	}
	for i, gap := range d.DataGaps {
		if gap == "" {
			return fmt.Errorf("data_gaps[%d] is empty", i)
		}
	}
	return nil
}

// PlaceholderMilestone is the degraded result recorded when synthesis keeps
// failing; it carries confidence 0 and is flagged for manual review.
func PlaceholderMilestone(painPointID, label, shownAt string) domain.Milestone {
	return domain.Milestone{
		PainPointID: painPointID,
		Finding: domain.Finding{
			Title:   label,
			Summary: "Automatic synthesis was unavailable for this conversation. A specialist will review the transcript and prepare the finding manually.",
		},
		Confidence:        0,
		DataGaps:          []string{"synthesis unavailable; full transcript pending manual review"},
		NeedsManualReview: true,
		ShownAt:           shownAt,
	}
}

// Stage-appropriate fallback questions, used when the question service is
// unreachable so the interview never stalls on the user.
var fallbackQuestions = map[domain.Stage]string{
	domain.StageCurrentState:   "Walk me through how this works for you today. What does a typical week look like?",
	domain.StageFailedAttempts: "What have you already tried to fix this, and where did those attempts fall short?",
	domain.StageCostImpact:     "Roughly how much time or money does this cost you in a normal month?",
	domain.StageIdealState:     "If this were solved completely, what would the new way of working look like?",
	domain.StageStakeholders:   "Who else is affected by this, and who would be involved in changing it?",
}

var technicalFallbackQuestions = map[domain.Stage]string{
	domain.StageCurrentState:   "Walk me through the current workflow, including the systems and integrations involved.",
	domain.StageFailedAttempts: "What have you already tried, tooling or process-wise, and where did it break down?",
	domain.StageCostImpact:     "How much engineering or operations time does this consume in a normal month?",
	domain.StageIdealState:     "If you could rebuild this end to end, what would the target architecture look like?",
	domain.StageStakeholders:   "Which teams own the systems involved, and who signs off on changes?",
}

// FallbackQuestion returns the templated question for a stage, framed for the
// detected signals.
func FallbackQuestion(stage domain.Stage, sig domain.DetectedSignals) Question {
	table := fallbackQuestions
	if sig.Technical {
		table = technicalFallbackQuestions
	}
	text, ok := table[stage]
	if !ok {
		text = fallbackQuestions[domain.StageCurrentState]
	}
	return Question{Text: text, NextStage: domain.NextStage(stage)}
}
