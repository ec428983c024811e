package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"parley/internal/app"
	"parley/internal/server"
)

func main() {
	workspace := "/tmp/parley-check1"
	appCtx, err := app.Open(workspace)
	if err != nil {
		panic(err)
	}
	defer appCtx.Close()

	jwtSecret := "test-secret"
	h, err := server.New(server.Config{
		Engine:   appCtx.Engine,
		BasePath: "/v1",
		Auth:     server.AuthConfig{JWTSecret: jwtSecret},
	})
	if err != nil {
		panic(err)
	}
	ts := httptest.NewServer(h)
	defer ts.Close()

	token := devLogin(ts.URL, "tester")

	body := map[string]any{
		"profile": map[string]any{
			"role":         "founder",
			"company_size": "2-10",
			"budget":       "under-5k",
			"pain_points": []map[string]string{
				{"id": "pp-1", "label": "Manual data entry"},
			},
		},
	}
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/sessions", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer res.Body.Close()
	var resp any
	_ = json.NewDecoder(res.Body).Decode(&resp)
	fmt.Printf("status=%d resp=%v\n", res.StatusCode, resp)
}

func devLogin(baseURL, actorID string) string {
	b, _ := json.Marshal(map[string]any{"actor_id": actorID})
	res, err := http.Post(baseURL+"/v1/auth/dev/login", "application/json", bytes.NewReader(b))
	if err != nil {
		panic(err)
	}
	defer res.Body.Close()
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		panic(err)
	}
	return out.Token
}
