package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"parley/internal/analyze"
	"parley/internal/config"
	"parley/internal/domain"
	"parley/internal/events"
	"parley/internal/generate"
	"parley/internal/repo"
	"parley/internal/scoring"
	"parley/internal/signals"
	"parley/internal/vendors"
)

const synthesisRepairRetries = 2

// Engine orchestrates workshop sessions. All state lives in the durable
// session record; the engine itself is stateless and safe to run on any
// number of instances.
type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Questions generate.QuestionService
	Synth     generate.SynthesisService
	Analyzer  analyze.Analyzer
	Catalog   *vendors.Catalog
	Now       func() time.Time
}

// New wires an engine from config. Generation services are only attached
// when configured; without them the engine runs on templated fallbacks.
func New(db *sql.DB, cfg *config.Config) (Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	catalog, err := vendors.Load(cfg.Catalog.Path)
	if err != nil {
		return Engine{}, fmt.Errorf("load vendor catalog: %w", err)
	}
	e := Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Analyzer: analyze.NewHeuristic(),
		Catalog:  catalog,
		Now:      time.Now,
	}
	if cfg.Services.Questions.BaseURL != "" {
		e.Questions = serviceClient(cfg.Services.Questions)
	}
	if cfg.Services.Synthesis.BaseURL != "" {
		e.Synth = serviceClient(cfg.Services.Synthesis)
	}
	return e, nil
}

func serviceClient(sc config.ServiceConfig) *generate.HTTPClient {
	client := generate.NewHTTPClient(sc.BaseURL, sc.APIKey)
	if sc.TimeoutSeconds > 0 {
		client.Client.Timeout = time.Duration(sc.TimeoutSeconds) * time.Second
	}
	if sc.Attempts > 0 {
		client.Attempts = sc.Attempts
	}
	return client
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC() string {
	return e.now().UTC().Format(time.RFC3339)
}

// CreateSessionOptions are parameters for creating a session from intake.
type CreateSessionOptions struct {
	ID      string
	Profile domain.Profile
	ActorID string
}

// CreateSession stores a new session in the confirmation phase. The
// workshop itself begins with Start.
func (e Engine) CreateSession(ctx context.Context, opts CreateSessionOptions) (domain.Session, error) {
	if len(opts.Profile.PainPoints) == 0 {
		return domain.Session{}, errors.New("at least one pain point is required")
	}
	seen := map[string]bool{}
	for _, pp := range opts.Profile.PainPoints {
		if strings.TrimSpace(pp.ID) == "" {
			return domain.Session{}, errors.New("pain point id is required")
		}
		if seen[pp.ID] {
			return domain.Session{}, fmt.Errorf("duplicate pain point id %s", pp.ID)
		}
		seen[pp.ID] = true
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowRFC()
	s := domain.Session{
		ID:      id,
		Profile: opts.Profile,
		State: domain.WorkshopState{
			Phase: domain.PhaseConfirmation,
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSession(ctx, tx, s); err != nil {
		return domain.Session{}, fmt.Errorf("insert session: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "session.created", s.ID, "session", s.ID, opts.ActorID, events.EventPayload{
		"pain_points": len(opts.Profile.PainPoints),
	}); err != nil {
		return domain.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// Start runs signal detection, builds the confirmation summary cards and
// opens the workshop. Calling it twice is an invalid transition.
func (e Engine) Start(ctx context.Context, sessionID, actorID string) (domain.Session, error) {
	s, err := e.Repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if s.State.Phase != domain.PhaseConfirmation || s.State.StartedAt != "" {
		return domain.Session{}, phaseErr("start", s.State.Phase)
	}
	s.State.Signals = signals.Detect(s.Profile)
	s.State.Confirmation.Cards = buildSummaryCards(s.Profile)
	s.State.StartedAt = e.nowRFC()

	if err := e.persist(ctx, &s, actorID, "workshop.started", events.EventPayload{
		"technical":      s.State.Signals.Technical,
		"budget_ready":   s.State.Signals.BudgetReady,
		"decision_maker": s.State.Signals.DecisionMaker,
	}); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// ConfirmOptions carry the user's reaction to the summary cards.
type ConfirmOptions struct {
	SessionID     string
	Ratings       map[string]int
	Corrections   map[string]string
	PriorityOrder []string
	ActorID       string
}

// Confirm records corrections, fixes the deep-dive order and moves the
// workshop into the deep-dive phase.
func (e Engine) Confirm(ctx context.Context, opts ConfirmOptions) (domain.Session, error) {
	s, err := e.Repo.GetSession(ctx, opts.SessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if s.State.Phase != domain.PhaseConfirmation || s.State.StartedAt == "" {
		return domain.Session{}, phaseErr("confirm", s.State.Phase)
	}
	order, err := deepDiveOrder(s.Profile, opts.PriorityOrder)
	if err != nil {
		return domain.Session{}, err
	}
	if max := e.Config.Interview.MaxDeepDives; max > 0 && len(order) > max {
		order = order[:max]
	}
	if err := domain.EnsurePhaseTransition(s.State.Phase, domain.PhaseDeepDive); err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", ErrInvalidPhase, err)
	}
	s.State.Confirmation.Ratings = opts.Ratings
	s.State.Confirmation.Corrections = opts.Corrections
	s.State.Confirmation.PriorityOrder = opts.PriorityOrder
	s.State.Confirmation.ConfirmedAt = e.nowRFC()
	s.State.DeepDiveOrder = order
	s.State.Phase = domain.PhaseDeepDive

	if err := e.persist(ctx, &s, opts.ActorID, "workshop.confirmed", events.EventPayload{
		"deep_dive_order": order,
	}); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// deepDiveOrder validates the user priority against intake pain points and
// falls back to intake order.
func deepDiveOrder(p domain.Profile, priority []string) ([]string, error) {
	known := map[string]bool{}
	for _, pp := range p.PainPoints {
		known[pp.ID] = true
	}
	if len(priority) == 0 {
		order := make([]string, 0, len(p.PainPoints))
		for _, pp := range p.PainPoints {
			order = append(order, pp.ID)
		}
		return order, nil
	}
	seen := map[string]bool{}
	for _, id := range priority {
		if !known[id] {
			return nil, fmt.Errorf("unknown pain point %s in priority order", id)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate pain point %s in priority order", id)
		}
		seen[id] = true
	}
	return priority, nil
}

// RespondResult is the outcome of one user turn.
type RespondResult struct {
	Session        domain.Session
	Question       string
	Stage          domain.Stage
	UsedFallback   bool
	MilestoneReady bool
}

// RespondOptions carry one user message for a deep dive.
type RespondOptions struct {
	SessionID   string
	PainPointID string
	Message     string
	ActorID     string
}

// Respond appends the user turn, asks the question service for the next
// question, advances the stage and reports whether a milestone can now be
// offered. When the service stays down the stage still advances with a
// templated question; the user is never blocked on an upstream outage.
func (e Engine) Respond(ctx context.Context, opts RespondOptions) (RespondResult, error) {
	if strings.TrimSpace(opts.Message) == "" {
		return RespondResult{}, errors.New("message is required")
	}
	s, err := e.Repo.GetSession(ctx, opts.SessionID)
	if err != nil {
		return RespondResult{}, err
	}
	if s.State.Phase != domain.PhaseDeepDive {
		return RespondResult{}, phaseErr("respond", s.State.Phase)
	}
	dive := s.State.DeepDiveFor(opts.PainPointID)
	if dive == nil {
		if active := s.State.ActiveDeepDive(); active != nil {
			return RespondResult{}, fmt.Errorf("%w: %s", ErrDeepDiveActive, active.PainPointID)
		}
		label, ok := painPointLabel(s.Profile, opts.PainPointID)
		if !ok {
			return RespondResult{}, fmt.Errorf("unknown pain point %s", opts.PainPointID)
		}
		if !contains(s.State.DeepDiveOrder, opts.PainPointID) {
			return RespondResult{}, fmt.Errorf("pain point %s not in deep dive order", opts.PainPointID)
		}
		s.State.DeepDives = append(s.State.DeepDives, domain.DeepDive{
			PainPointID: opts.PainPointID,
			Label:       label,
			Stage:       domain.StageCurrentState,
		})
		dive = s.State.DeepDiveFor(opts.PainPointID)
	}
	if dive.Stage == domain.StageComplete {
		return RespondResult{}, fmt.Errorf("deep dive %s already complete", opts.PainPointID)
	}

	now := e.nowRFC()
	dive.Transcript = append(dive.Transcript, domain.Turn{Role: "user", Content: opts.Message, Timestamp: now})

	question, usedFallback := e.nextQuestion(ctx, s, dive)
	dive.Transcript = append(dive.Transcript, domain.Turn{Role: "assistant", Content: question.Text, Timestamp: e.nowRFC()})
	dive.Stage = question.NextStage

	payload := events.EventPayload{
		"pain_point": opts.PainPointID,
		"stage":      string(dive.Stage),
	}
	if usedFallback {
		payload["fallback"] = true
	}
	if err := e.persist(ctx, &s, opts.ActorID, "deepdive.turn", payload); err != nil {
		return RespondResult{}, err
	}
	return RespondResult{
		Session:        s,
		Question:       question.Text,
		Stage:          dive.Stage,
		UsedFallback:   usedFallback,
		MilestoneReady: dive.Stage == domain.StageComplete,
	}, nil
}

// nextQuestion asks the configured service, constraining its stage choice
// to the legal progression, and falls back to templates on failure.
func (e Engine) nextQuestion(ctx context.Context, s domain.Session, dive *domain.DeepDive) (generate.Question, bool) {
	if e.Questions == nil {
		return generate.FallbackQuestion(dive.Stage, s.State.Signals), true
	}
	window := e.Config.Interview.TranscriptWindow
	if window <= 0 {
		window = 6
	}
	recent := dive.Transcript
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}
	q, err := e.Questions.NextQuestion(ctx, generate.QuestionRequest{
		SessionID:        s.ID,
		PainPointID:      dive.PainPointID,
		PainPointLabel:   dive.Label,
		Stage:            dive.Stage,
		Signals:          s.State.Signals,
		RecentTranscript: recent,
	})
	if err != nil {
		return generate.FallbackQuestion(dive.Stage, s.State.Signals), true
	}
	// The service may hold a stage or advance it, never rewind or skip.
	if q.NextStage != dive.Stage && q.NextStage != domain.NextStage(dive.Stage) {
		q.NextStage = domain.NextStage(dive.Stage)
	}
	return q, false
}

// Milestone synthesizes and records the finding for a completed deep dive.
// Retries are idempotent: a milestone already recorded for the pain point
// is returned as-is.
func (e Engine) Milestone(ctx context.Context, sessionID, painPointID, actorID string) (domain.Milestone, error) {
	s, err := e.Repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Milestone{}, err
	}
	if s.State.Phase != domain.PhaseDeepDive && s.State.Phase != domain.PhaseSynthesis {
		return domain.Milestone{}, phaseErr("milestone", s.State.Phase)
	}
	dive := s.State.DeepDiveFor(painPointID)
	if dive == nil {
		return domain.Milestone{}, fmt.Errorf("no deep dive for pain point %s", painPointID)
	}
	if dive.Stage != domain.StageComplete {
		return domain.Milestone{}, fmt.Errorf("%w: %s at stage %s", ErrDeepDiveIncomplete, painPointID, dive.Stage)
	}
	if existing, err := e.Repo.GetMilestone(ctx, sessionID, painPointID); err == nil {
		return existing, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Milestone{}, err
	}

	milestone, degraded := e.synthesize(ctx, s, *dive)

	dive.HasFinding = true
	if allDivesFound(s.State) {
		if err := domain.EnsurePhaseTransition(s.State.Phase, domain.PhaseSynthesis); err == nil {
			s.State.Phase = domain.PhaseSynthesis
		}
	}

	evtType := "milestone.recorded"
	if degraded {
		evtType = "milestone.degraded"
	}
	version := s.Version
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Milestone{}, err
	}
	defer tx.Rollback()
	inserted, err := e.Repo.InsertMilestoneTx(ctx, tx, sessionID, milestone)
	if err != nil {
		return domain.Milestone{}, err
	}
	if !inserted {
		// Lost a race with a concurrent retry; its milestone wins.
		return e.Repo.GetMilestoneTx(ctx, tx, sessionID, painPointID)
	}
	if err := e.Repo.UpdateSessionState(ctx, tx, sessionID, s.State, version, e.nowRFC()); err != nil {
		return domain.Milestone{}, err
	}
	if err := e.Events.Append(ctx, tx, evtType, sessionID, "milestone", painPointID, actorID, events.EventPayload{
		"confidence":   milestone.Confidence,
		"needs_review": milestone.NeedsManualReview,
	}); err != nil {
		return domain.Milestone{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Milestone{}, err
	}
	return milestone, nil
}

// synthesize produces a validated milestone, repairing malformed drafts up
// to twice before degrading to a placeholder. It never returns a malformed
// object.
func (e Engine) synthesize(ctx context.Context, s domain.Session, dive domain.DeepDive) (domain.Milestone, bool) {
	shownAt := e.nowRFC()
	if e.Synth == nil {
		return generate.PlaceholderMilestone(dive.PainPointID, dive.Label, shownAt), true
	}
	req := generate.SynthesisRequest{
		SessionID:      s.ID,
		PainPointID:    dive.PainPointID,
		PainPointLabel: dive.Label,
		Transcript:     dive.Transcript,
		Signals:        s.State.Signals,
	}
	for attempt := 0; attempt <= synthesisRepairRetries; attempt++ {
		draft, err := e.Synth.Synthesize(ctx, req)
		if err != nil {
			return generate.PlaceholderMilestone(dive.PainPointID, dive.Label, shownAt), true
		}
		if err := generate.ValidateDraft(draft); err != nil {
			req.RepairHint = err.Error()
			continue
		}
		vendorFits := e.Catalog.Normalize(draft.Vendors)
		if len(vendorFits) == 0 {
			vendorFits = e.Catalog.Suggest(transcriptText(dive.Transcript), 3)
		}
		return domain.Milestone{
			PainPointID: dive.PainPointID,
			Finding:     draft.Finding,
			ROI:         draft.ROI,
			Vendors:     vendorFits,
			Confidence:  draft.Confidence,
			DataGaps:    draft.DataGaps,
			ShownAt:     shownAt,
		}, false
	}
	return generate.PlaceholderMilestone(dive.PainPointID, dive.Label, shownAt), true
}

// Confidence analyzes all deep dives, scores the extraction and persists
// the breakdown.
func (e Engine) Confidence(ctx context.Context, sessionID, actorID string) (domain.ConfidenceReport, error) {
	s, err := e.Repo.GetSession(ctx, sessionID)
	if err != nil {
		return domain.ConfidenceReport{}, err
	}
	report, err := e.scoreSession(ctx, s)
	if err != nil {
		return domain.ConfidenceReport{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ConfidenceReport{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertReportTx(ctx, tx, report); err != nil {
		return domain.ConfidenceReport{}, err
	}
	if err := e.Events.Append(ctx, tx, "confidence.scored", sessionID, "confidence", "", actorID, events.EventPayload{
		"score": report.Readiness.Score,
		"level": report.Readiness.Level,
		"ready": report.Readiness.IsReadyForReport,
	}); err != nil {
		return domain.ConfidenceReport{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ConfidenceReport{}, err
	}
	return report, nil
}

func (e Engine) scoreSession(ctx context.Context, s domain.Session) (domain.ConfidenceReport, error) {
	extraction, err := e.Analyzer.Analyze(ctx, s.State.DeepDives)
	if err != nil {
		return domain.ConfidenceReport{}, fmt.Errorf("analyze transcripts: %w", err)
	}
	result := scoring.Score(extraction.Topics, extraction.Depth, extraction.Quality)
	return domain.ConfidenceReport{
		SessionID:       s.ID,
		AnalyzerVersion: e.Analyzer.Version(),
		Topics:          extraction.Topics,
		TopicConfidence: result.TopicConfidence,
		Depth:           extraction.Depth,
		Quality:         extraction.Quality,
		Readiness:       result.Readiness,
		SuggestedTopics: result.SuggestedTopics,
		CreatedAt:       e.nowRFC(),
	}, nil
}

// CompleteOptions carry the final answers and the explicit override choice.
type CompleteOptions struct {
	SessionID    string
	FinalAnswers map[string]string
	Force        bool
	ActorID      string
}

// CompleteResult reports either a handoff or an actionable gating result.
type CompleteResult struct {
	Completed       bool
	Handoff         *domain.Handoff
	Readiness       domain.OverallReadiness
	SuggestedTopics []domain.Topic
	Session         domain.Session
}

// Complete evaluates the completion gate and, when it passes or the caller
// explicitly forces, closes the workshop and emits the handoff. A forced
// completion below the gate flags the session for mandatory human review;
// the flag travels with the handoff and is never dropped.
func (e Engine) Complete(ctx context.Context, opts CompleteOptions) (CompleteResult, error) {
	s, err := e.Repo.GetSession(ctx, opts.SessionID)
	if err != nil {
		return CompleteResult{}, err
	}
	if err := domain.EnsurePhaseTransition(s.State.Phase, domain.PhaseComplete); err != nil {
		return CompleteResult{}, fmt.Errorf("%w: %v", ErrInvalidPhase, err)
	}
	report, err := e.scoreSession(ctx, s)
	if err != nil {
		return CompleteResult{}, err
	}
	if !report.Readiness.IsReadyForReport && !opts.Force {
		// Not an error: an explicit gating result with follow-up topics.
		return CompleteResult{
			Completed:       false,
			Readiness:       report.Readiness,
			SuggestedTopics: report.SuggestedTopics,
			Session:         s,
		}, nil
	}

	now := e.now()
	forcedBelowGate := opts.Force && !report.Readiness.IsReadyForReport
	s.State.FinalAnswers = opts.FinalAnswers
	s.State.CompletedAt = now.UTC().Format(time.RFC3339)
	if s.State.StartedAt != "" {
		if started, parseErr := time.Parse(time.RFC3339, s.State.StartedAt); parseErr == nil {
			s.State.DurationMinutes = int(now.UTC().Sub(started).Minutes())
		}
	}
	if forcedBelowGate {
		s.State.NeedsManualReview = true
	}
	s.State.Phase = domain.PhaseComplete

	milestones, err := e.Repo.ListMilestones(ctx, s.ID)
	if err != nil {
		return CompleteResult{}, err
	}
	handoff := domain.Handoff{
		SessionID:         s.ID,
		Token:             uuid.New().String(),
		MilestoneCount:    len(milestones),
		DurationMinutes:   s.State.DurationMinutes,
		NeedsManualReview: s.State.NeedsManualReview,
		ReadyForReport:    report.Readiness.IsReadyForReport,
	}
	for _, m := range milestones {
		handoff.TotalAnnualCost += m.ROI.AnnualCost
		handoff.TotalSavings += m.ROI.PotentialSavings
		if m.NeedsManualReview {
			handoff.NeedsManualReview = true
			s.State.NeedsManualReview = true
		}
	}

	version := s.Version
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CompleteResult{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateSessionState(ctx, tx, s.ID, s.State, version, e.nowRFC()); err != nil {
		return CompleteResult{}, err
	}
	if err := e.Repo.InsertReportTx(ctx, tx, report); err != nil {
		return CompleteResult{}, err
	}
	if forcedBelowGate {
		if err := e.Events.Append(ctx, tx, "override.forced_completion", s.ID, "session", s.ID, opts.ActorID, events.EventPayload{
			"score": report.Readiness.Score,
			"level": report.Readiness.Level,
		}); err != nil {
			return CompleteResult{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, "workshop.completed", s.ID, "session", s.ID, opts.ActorID, events.EventPayload{
		"token":               handoff.Token,
		"milestones":          handoff.MilestoneCount,
		"total_annual_cost":   handoff.TotalAnnualCost,
		"total_savings":       handoff.TotalSavings,
		"duration_minutes":    handoff.DurationMinutes,
		"needs_manual_review": handoff.NeedsManualReview,
		"ready_for_report":    handoff.ReadyForReport,
	}); err != nil {
		return CompleteResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return CompleteResult{}, err
	}
	s.Version++
	return CompleteResult{
		Completed:       true,
		Handoff:         &handoff,
		Readiness:       report.Readiness,
		SuggestedTopics: report.SuggestedTopics,
		Session:         s,
	}, nil
}

// RecordFeedback stores the user's reaction to a shown milestone.
func (e Engine) RecordFeedback(ctx context.Context, sessionID, painPointID, feedback, actorID string) error {
	if _, err := e.Repo.GetSession(ctx, sessionID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.SetMilestoneFeedbackTx(ctx, tx, sessionID, painPointID, feedback); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "milestone.feedback", sessionID, "milestone", painPointID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateAPIKey issues a new key and returns the plaintext exactly once.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name, scopes string) (domain.APIKey, string, error) {
	plain := uuid.New().String() + uuid.New().String()
	key := domain.APIKey{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		Scopes:    scopes,
		CreatedAt: e.nowRFC(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Events.Append(ctx, tx, "apikey.created", "", "apikey", key.ID, actorID, events.EventPayload{"name": name}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}

// persist applies the state change guarded by the version the operation
// read, then appends its audit event. A concurrent writer surfaces as
// repo.ErrStaleWrite and nothing is committed.
func (e Engine) persist(ctx context.Context, s *domain.Session, actorID, evtType string, payload events.EventPayload) error {
	version := s.Version
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateSessionState(ctx, tx, s.ID, s.State, version, e.nowRFC()); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, evtType, s.ID, "session", s.ID, actorID, payload); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.Version++
	return nil
}

func buildSummaryCards(p domain.Profile) []domain.SummaryCard {
	cards := []domain.SummaryCard{
		{
			Key:   "profile",
			Title: "About you",
			Body:  fmt.Sprintf("%s at a %s company, budget %s", orUnknown(p.Role), orUnknown(p.CompanySize), orUnknown(p.Budget)),
		},
	}
	for _, pp := range p.PainPoints {
		cards = append(cards, domain.SummaryCard{
			Key:   "pain_point:" + pp.ID,
			Title: pp.Label,
			Body:  "We picked this up from your intake answers. Does it sound right?",
		})
	}
	return cards
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return "unspecified"
	}
	return v
}

func painPointLabel(p domain.Profile, id string) (string, bool) {
	for _, pp := range p.PainPoints {
		if pp.ID == id {
			return pp.Label, true
		}
	}
	return "", false
}

func allDivesFound(state domain.WorkshopState) bool {
	if len(state.DeepDiveOrder) == 0 {
		return false
	}
	found := map[string]bool{}
	for _, d := range state.DeepDives {
		if d.Stage == domain.StageComplete && d.HasFinding {
			found[d.PainPointID] = true
		}
	}
	for _, id := range state.DeepDiveOrder {
		if !found[id] {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func transcriptText(turns []domain.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Role != "user" {
			continue
		}
		b.WriteString(t.Content)
		b.WriteString(" ")
	}
	return b.String()
}
