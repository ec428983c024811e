package parleysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Parley HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Session is the API session model (partial).
type Session struct {
	ID      string `json:"id"`
	Profile struct {
		Role        string `json:"role"`
		CompanySize string `json:"company_size"`
		Budget      string `json:"budget"`
		PainPoints  []struct {
			ID    string `json:"id"`
			Label string `json:"label"`
		} `json:"pain_points"`
	} `json:"profile"`
	State     map[string]any `json:"state"`
	Version   int64          `json:"version"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// RespondResult is the outcome of one submitted turn.
type RespondResult struct {
	Question       string  `json:"question"`
	Stage          string  `json:"stage"`
	UsedFallback   bool    `json:"used_fallback"`
	MilestoneReady bool    `json:"milestone_ready"`
	Session        Session `json:"session"`
}

// Milestone is one synthesized finding.
type Milestone struct {
	PainPointID string `json:"pain_point_id"`
	Finding     struct {
		Title          string `json:"title"`
		Summary        string `json:"summary"`
		Recommendation string `json:"recommendation,omitempty"`
	} `json:"finding"`
	ROI               map[string]any `json:"roi"`
	Confidence        float64        `json:"confidence"`
	DataGaps          []string       `json:"data_gaps,omitempty"`
	NeedsManualReview bool           `json:"needs_manual_review"`
	ShownAt           string         `json:"shown_at"`
}

// ConfidenceReport is a persisted scoring run (partial).
type ConfidenceReport struct {
	SessionID       string             `json:"session_id"`
	AnalyzerVersion string             `json:"analyzer_version"`
	TopicConfidence map[string]float64 `json:"topic_confidence"`
	Readiness       struct {
		Score            float64 `json:"score"`
		Level            string  `json:"level"`
		IsReadyForReport bool    `json:"is_ready_for_report"`
	} `json:"readiness"`
	SuggestedTopics []string `json:"suggested_topics,omitempty"`
	CreatedAt       string   `json:"created_at"`
}

// CompleteResult is the response of the completion endpoint.
type CompleteResult struct {
	Completed bool `json:"completed"`
	Handoff   *struct {
		SessionID         string  `json:"session_id"`
		Token             string  `json:"token"`
		MilestoneCount    int     `json:"milestone_count"`
		TotalAnnualCost   float64 `json:"total_annual_cost"`
		TotalSavings      float64 `json:"total_savings"`
		NeedsManualReview bool    `json:"needs_manual_review"`
	} `json:"handoff,omitempty"`
	Readiness struct {
		Score            float64 `json:"score"`
		Level            string  `json:"level"`
		IsReadyForReport bool    `json:"is_ready_for_report"`
	} `json:"readiness"`
	SuggestedTopics []string `json:"suggested_topics,omitempty"`
}

// Event is one audit log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	SessionID  string `json:"session_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateSession creates a session from an intake profile.
func (c *Client) CreateSession(ctx context.Context, profile any) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "sessions", map[string]any{"profile": profile}, &resp)
	return resp, err
}

// GetSession fetches a session by id.
func (c *Client) GetSession(ctx context.Context, sessionID string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodGet, "sessions/"+url.PathEscape(sessionID), nil, &resp)
	return resp, err
}

// Start opens the workshop: runs signal detection and builds summary cards.
func (c *Client) Start(ctx context.Context, sessionID string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "sessions/"+url.PathEscape(sessionID)+"/start", nil, &resp)
	return resp, err
}

// Confirm accepts the summary and fixes the deep-dive order.
func (c *Client) Confirm(ctx context.Context, sessionID string, priorityOrder []string) (Session, error) {
	body := map[string]any{}
	if len(priorityOrder) > 0 {
		body["priority_order"] = priorityOrder
	}
	var resp Session
	err := c.do(ctx, http.MethodPost, "sessions/"+url.PathEscape(sessionID)+"/confirm", body, &resp)
	return resp, err
}

// Respond submits one user turn for a deep dive.
func (c *Client) Respond(ctx context.Context, sessionID, painPointID, message string) (RespondResult, error) {
	body := map[string]any{
		"pain_point_id": painPointID,
		"message":       message,
	}
	var resp RespondResult
	err := c.do(ctx, http.MethodPost, "sessions/"+url.PathEscape(sessionID)+"/respond", body, &resp)
	return resp, err
}

// SynthesizeMilestone records the finding for a completed deep dive.
func (c *Client) SynthesizeMilestone(ctx context.Context, sessionID, painPointID string) (Milestone, error) {
	var resp Milestone
	err := c.do(ctx, http.MethodPost, "sessions/"+url.PathEscape(sessionID)+"/milestones/"+url.PathEscape(painPointID), nil, &resp)
	return resp, err
}

// ListMilestones lists a session's recorded milestones.
func (c *Client) ListMilestones(ctx context.Context, sessionID string) ([]Milestone, error) {
	var resp []Milestone
	err := c.do(ctx, http.MethodGet, "sessions/"+url.PathEscape(sessionID)+"/milestones", nil, &resp)
	return resp, err
}

// MilestoneFeedback records the user's reaction to a shown milestone.
func (c *Client) MilestoneFeedback(ctx context.Context, sessionID, painPointID, feedback string) (Milestone, error) {
	var resp Milestone
	err := c.do(ctx, http.MethodPost,
		"sessions/"+url.PathEscape(sessionID)+"/milestones/"+url.PathEscape(painPointID)+"/feedback",
		map[string]any{"feedback": feedback}, &resp)
	return resp, err
}

// ScoreConfidence runs scoring and persists the breakdown.
func (c *Client) ScoreConfidence(ctx context.Context, sessionID string) (ConfidenceReport, error) {
	var resp ConfidenceReport
	err := c.do(ctx, http.MethodPost, "sessions/"+url.PathEscape(sessionID)+"/confidence", nil, &resp)
	return resp, err
}

// LatestConfidence fetches the most recent report.
func (c *Client) LatestConfidence(ctx context.Context, sessionID string) (ConfidenceReport, error) {
	var resp ConfidenceReport
	err := c.do(ctx, http.MethodGet, "sessions/"+url.PathEscape(sessionID)+"/confidence", nil, &resp)
	return resp, err
}

// Complete evaluates the gate and, when it passes or force is set, closes
// the workshop.
func (c *Client) Complete(ctx context.Context, sessionID string, finalAnswers map[string]string, force bool) (CompleteResult, error) {
	body := map[string]any{"force": force}
	if len(finalAnswers) > 0 {
		body["final_answers"] = finalAnswers
	}
	var resp CompleteResult
	err := c.do(ctx, http.MethodPost, "sessions/"+url.PathEscape(sessionID)+"/complete", body, &resp)
	return resp, err
}

// Events lists audit events, newest first.
func (c *Client) Events(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	endpoint := "events"
	q := url.Values{}
	if sessionID != "" {
		q.Set("session_id", sessionID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
