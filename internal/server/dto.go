package server

import (
	"parley/internal/domain"
	"parley/internal/engine"
)

// Request payloads

type CreateSessionRequest struct {
	ID      *string        `json:"id,omitempty"`
	Profile domain.Profile `json:"profile"`
}

type ConfirmRequest struct {
	Ratings       map[string]int    `json:"ratings,omitempty"`
	Corrections   map[string]string `json:"corrections,omitempty"`
	PriorityOrder []string          `json:"priority_order,omitempty"`
}

type RespondRequest struct {
	PainPointID string `json:"pain_point_id"`
	Message     string `json:"message"`
}

type FeedbackRequest struct {
	Feedback string `json:"feedback" enum:"positive,negative,neutral"`
}

type CompleteRequest struct {
	FinalAnswers map[string]string `json:"final_answers,omitempty"`
	Force        bool              `json:"force,omitempty"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
	Scopes  string `json:"scopes,omitempty"`
}

type DevLoginRequest struct {
	ActorID     string   `json:"actor_id"`
	Permissions []string `json:"permissions,omitempty"`
}

// Response payloads

type SessionResponse struct {
	ID        string               `json:"id"`
	Profile   domain.Profile       `json:"profile"`
	State     domain.WorkshopState `json:"state"`
	Version   int64                `json:"version"`
	CreatedAt string               `json:"created_at" format:"date-time"`
	UpdatedAt string               `json:"updated_at" format:"date-time"`
}

type RespondResponse struct {
	Question       string          `json:"question"`
	Stage          domain.Stage    `json:"stage"`
	UsedFallback   bool            `json:"used_fallback"`
	MilestoneReady bool            `json:"milestone_ready"`
	Session        SessionResponse `json:"session"`
}

type CompleteResponse struct {
	Completed       bool                    `json:"completed"`
	Handoff         *domain.Handoff         `json:"handoff,omitempty"`
	Readiness       domain.OverallReadiness `json:"readiness"`
	SuggestedTopics []domain.Topic          `json:"suggested_topics,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Scopes    string `json:"scopes,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func sessionResponse(s domain.Session) SessionResponse {
	return SessionResponse{
		ID:        s.ID,
		Profile:   s.Profile,
		State:     s.State,
		Version:   s.Version,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func mapSessions(items []domain.Session) []SessionResponse {
	res := make([]SessionResponse, 0, len(items))
	for _, s := range items {
		res = append(res, sessionResponse(s))
	}
	return res
}

func completeResponse(r engine.CompleteResult) CompleteResponse {
	return CompleteResponse{
		Completed:       r.Completed,
		Handoff:         r.Handoff,
		Readiness:       r.Readiness,
		SuggestedTopics: r.SuggestedTopics,
	}
}
