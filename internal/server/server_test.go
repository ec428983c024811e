package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"parley/internal/config"
	"parley/internal/db"
	"parley/internal/domain"
	"parley/internal/engine"
	"parley/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e, err := engine.New(conn, config.Default())
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: "test-secret"},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func devToken(t *testing.T, srv *testServer, actorID string, permissions []string) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"actor_id":    actorID,
		"permissions": permissions,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var out DevLoginResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	return out.Token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func intakeBody() map[string]any {
	return map[string]any{
		"profile": map[string]any{
			"role":         "operations manager",
			"company_size": "11-50",
			"budget":       "25k-50k",
			"pain_points": []map[string]string{
				{"id": "pp-1", "label": "Manual invoice processing"},
				{"id": "pp-2", "label": "Scattered customer data"},
			},
		},
	}
}

func TestWorkshopFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	token := devToken(t, srv, "tester", []string{"session.force_complete"})
	headers := authHeaders(token)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions", intakeBody(), headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create session status %d: %s", res.StatusCode, string(data))
	}
	var created SessionResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal session: %v", err)
	}
	sessionURL := srv.URL + "/v1/sessions/" + created.ID

	res, data = doJSON(t, client, http.MethodPost, sessionURL+"/start", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start status %d: %s", res.StatusCode, string(data))
	}
	var started SessionResponse
	_ = json.Unmarshal(data, &started)
	if len(started.State.Confirmation.Cards) == 0 {
		t.Fatalf("expected summary cards after start")
	}

	res, data = doJSON(t, client, http.MethodPost, sessionURL+"/confirm", map[string]any{
		"priority_order": []string{"pp-1", "pp-2"},
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("confirm status %d: %s", res.StatusCode, string(data))
	}
	var confirmed SessionResponse
	_ = json.Unmarshal(data, &confirmed)
	if confirmed.State.Phase != domain.PhaseDeepDive {
		t.Fatalf("expected deepdive phase, got %s", confirmed.State.Phase)
	}

	var last RespondResponse
	for i := 0; i < 5; i++ {
		res, data = doJSON(t, client, http.MethodPost, sessionURL+"/respond", map[string]any{
			"pain_point_id": "pp-1",
			"message":       "We key every invoice into the ledger by hand and it takes hours",
		}, headers)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("respond %d status %d: %s", i, res.StatusCode, string(data))
		}
		if err := json.Unmarshal(data, &last); err != nil {
			t.Fatalf("unmarshal respond: %v", err)
		}
		if last.Question == "" {
			t.Fatalf("respond %d returned empty question", i)
		}
	}
	if !last.MilestoneReady {
		t.Fatalf("expected milestone ready after full dive, stage %s", last.Stage)
	}

	res, data = doJSON(t, client, http.MethodPost, sessionURL+"/milestones/pp-1", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("milestone status %d: %s", res.StatusCode, string(data))
	}
	var milestone domain.Milestone
	if err := json.Unmarshal(data, &milestone); err != nil {
		t.Fatalf("unmarshal milestone: %v", err)
	}
	if !milestone.NeedsManualReview {
		t.Fatalf("expected placeholder milestone without a synthesis service")
	}

	res, data = doJSON(t, client, http.MethodPost, sessionURL+"/confidence", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("score confidence status %d: %s", res.StatusCode, string(data))
	}
	var report domain.ConfidenceReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.SessionID != created.ID {
		t.Fatalf("report session %s, want %s", report.SessionID, created.ID)
	}

	res, data = doJSON(t, client, http.MethodPost, sessionURL+"/complete", map[string]any{
		"force": true,
	}, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}
	var completed CompleteResponse
	if err := json.Unmarshal(data, &completed); err != nil {
		t.Fatalf("unmarshal complete: %v", err)
	}
	if !completed.Completed || completed.Handoff == nil {
		t.Fatalf("expected forced completion with handoff: %s", string(data))
	}
	if completed.Handoff.Token == "" {
		t.Fatalf("handoff token missing")
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/sessions", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %s", code)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should be open, got %d", res.StatusCode)
	}
}

func TestForceCompleteRequiresPermission(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers := authHeaders(devToken(t, srv, "tester", nil))

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions", intakeBody(), headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create session status %d: %s", res.StatusCode, string(data))
	}
	var created SessionResponse
	_ = json.Unmarshal(data, &created)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions/"+created.ID+"/complete", map[string]any{
		"force": true,
	}, headers)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "forbidden" {
		t.Fatalf("expected forbidden code, got %s", code)
	}
}

func TestErrorCodeMapping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers := authHeaders(devToken(t, srv, "tester", nil))

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/sessions/missing", nil, headers)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "not_found" {
		t.Fatalf("expected not_found code, got %s", code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions", intakeBody(), headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create session status %d: %s", res.StatusCode, string(data))
	}
	var created SessionResponse
	_ = json.Unmarshal(data, &created)

	// Responding before the workshop is confirmed is a phase violation.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions/"+created.ID+"/respond", map[string]any{
		"pain_point_id": "pp-1",
		"message":       "hello",
	}, headers)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "invalid_phase_transition" {
		t.Fatalf("expected invalid_phase_transition code, got %s", code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	headers := authHeaders(devToken(t, srv, "admin", []string{"apikey.create"}))

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/apikeys", map[string]any{
		"actor_id": "robot",
		"name":     "ci",
		"scopes":   "session.force_complete",
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create apikey status %d: %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal apikey: %v", err)
	}
	if key.Key == "" {
		t.Fatalf("expected plaintext key on creation")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me struct {
		ActorID     string   `json:"actor_id"`
		Permissions []string `json:"permissions"`
		Source      string   `json:"source"`
	}
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.ActorID != "robot" || me.Source != "api_key" {
		t.Fatalf("unexpected principal: %+v", me)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": "bogus"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad key, got %d: %s", res.StatusCode, string(data))
	}

	// Listing never exposes plaintext or hashes.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/apikeys", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list apikeys status %d: %s", res.StatusCode, string(data))
	}
	var listed []APIKeyResponse
	if err := json.Unmarshal(data, &listed); err != nil {
		t.Fatalf("unmarshal apikeys: %v", err)
	}
	if len(listed) != 1 || listed[0].Key != "" {
		t.Fatalf("unexpected apikey list: %s", string(data))
	}
}
