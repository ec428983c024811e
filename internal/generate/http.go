package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"parley/internal/domain"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultAttempts = 3
	defaultBackoff  = 250 * time.Millisecond
)

// HTTPClient calls the external generation services over JSON/HTTP with
// bounded retry and backoff. One client serves both adapter contracts.
type HTTPClient struct {
	BaseURL  string
	APIKey   string
	Client   *http.Client
	Attempts int
	Backoff  time.Duration
}

// NewHTTPClient creates a client with sane defaults.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		APIKey:   apiKey,
		Client:   &http.Client{Timeout: defaultTimeout},
		Attempts: defaultAttempts,
		Backoff:  defaultBackoff,
	}
}

// NextQuestion implements QuestionService.
func (c *HTTPClient) NextQuestion(ctx context.Context, req QuestionRequest) (Question, error) {
	var out Question
	if err := c.post(ctx, "/v1/questions", req, &out); err != nil {
		return Question{}, err
	}
	if strings.TrimSpace(out.Text) == "" {
		return Question{}, fmt.Errorf("%w: empty question text", ErrUpstream)
	}
	if !domain.ValidStage(out.NextStage) {
		return Question{}, fmt.Errorf("%w: unknown next stage %q", ErrUpstream, out.NextStage)
	}
	return out, nil
}

// Synthesize implements SynthesisService.
func (c *HTTPClient) Synthesize(ctx context.Context, req SynthesisRequest) (Draft, error) {
	var out Draft
	if err := c.post(ctx, "/v1/milestones", req, &out); err != nil {
		return Draft{}, err
	}
	return out, nil
}

// post sends one JSON request with retries on transport errors and 5xx.
// 4xx responses are not retried: the request itself is wrong.
func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	attempts := c.Attempts
	if attempts <= 0 {
		attempts = defaultAttempts
	}
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		retryable, err := c.doOnce(ctx, client, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return fmt.Errorf("%w: %v", ErrUpstream, lastErr)
}

func (c *HTTPClient) doOnce(ctx context.Context, client *http.Client, path string, body []byte, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	res, err := client.Do(req)
	if err != nil {
		return true, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		// 5xx may be transient; anything else means the request is wrong.
		return res.StatusCode >= 500, fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return false, nil
}
