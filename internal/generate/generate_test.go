package generate_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/domain"
	"parley/internal/generate"
)

func validDraft() generate.Draft {
	return generate.Draft{
		Finding: domain.Finding{Title: "Manual invoice entry", Summary: "Invoices are keyed in by hand."},
		ROI: domain.ROI{
			HoursPerWeek:     10,
			HourlyRate:       40,
			AnnualCost:       20800,
			PotentialSavings: 15000,
		},
		Confidence: 0.8,
	}
}

func TestValidateDraft(t *testing.T) {
	assert.NoError(t, generate.ValidateDraft(validDraft()))

	d := validDraft()
	d.Finding.Title = ""
	assert.Error(t, generate.ValidateDraft(d))

	d = validDraft()
	d.Finding.Summary = ""
	assert.Error(t, generate.ValidateDraft(d))

	d = validDraft()
	d.ROI.HourlyRate = -1
	assert.Error(t, generate.ValidateDraft(d))

	d = validDraft()
	d.ROI.PotentialSavings = d.ROI.AnnualCost + 1
	assert.Error(t, generate.ValidateDraft(d))

	d = validDraft()
	d.Confidence = 1.2
	assert.Error(t, generate.ValidateDraft(d))

	d = validDraft()
	d.Vendors = []domain.VendorFit{{Name: "Zapier", FitTier: "great"}}
	assert.Error(t, generate.ValidateDraft(d))

	d = validDraft()
	d.Vendors = []domain.VendorFit{{Name: "Zapier", FitTier: domain.FitHigh}}
	assert.NoError(t, generate.ValidateDraft(d))

	d = validDraft()
	d.DataGaps = []string{"missing hourly rate", ""}
	assert.Error(t, generate.ValidateDraft(d))
}

func TestPlaceholderMilestone(t *testing.T) {
	m := generate.PlaceholderMilestone("pp-1", "Manual invoicing", "2026-01-01T00:00:00Z")
	assert.Equal(t, "pp-1", m.PainPointID)
	assert.True(t, m.NeedsManualReview)
	assert.Zero(t, m.Confidence)
	assert.NotEmpty(t, m.DataGaps)
	assert.Equal(t, "Manual invoicing", m.Finding.Title)
}

func TestFallbackQuestion(t *testing.T) {
	q := generate.FallbackQuestion(domain.StageCurrentState, domain.DetectedSignals{})
	assert.NotEmpty(t, q.Text)
	assert.Equal(t, domain.StageFailedAttempts, q.NextStage)

	tech := generate.FallbackQuestion(domain.StageCurrentState, domain.DetectedSignals{Technical: true})
	assert.NotEqual(t, q.Text, tech.Text)
	assert.Equal(t, domain.StageFailedAttempts, tech.NextStage)

	last := generate.FallbackQuestion(domain.StageStakeholders, domain.DetectedSignals{})
	assert.Equal(t, domain.StageComplete, last.NextStage)
}

func TestHTTPClientRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"What does a typical week look like?","next_stage":"failed_attempts"}`))
	}))
	defer srv.Close()

	c := generate.NewHTTPClient(srv.URL, "test-key")
	c.Backoff = time.Millisecond

	q, err := c.NextQuestion(context.Background(), generate.QuestionRequest{Stage: domain.StageCurrentState})
	require.NoError(t, err)
	assert.Equal(t, domain.StageFailedAttempts, q.NextStage)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestHTTPClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := generate.NewHTTPClient(srv.URL, "")
	c.Backoff = time.Millisecond

	_, err := c.NextQuestion(context.Background(), generate.QuestionRequest{Stage: domain.StageCurrentState})
	require.Error(t, err)
	assert.True(t, errors.Is(err, generate.ErrUpstream))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestHTTPClientGivesUpAfterAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := generate.NewHTTPClient(srv.URL, "")
	c.Attempts = 2
	c.Backoff = time.Millisecond

	_, err := c.Synthesize(context.Background(), generate.SynthesisRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, generate.ErrUpstream))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestHTTPClientRejectsMalformedQuestion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"","next_stage":"failed_attempts"}`))
	}))
	defer srv.Close()

	c := generate.NewHTTPClient(srv.URL, "")
	_, err := c.NextQuestion(context.Background(), generate.QuestionRequest{Stage: domain.StageCurrentState})
	require.Error(t, err)
	assert.True(t, errors.Is(err, generate.ErrUpstream))

	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"ok","next_stage":"teleport"}`))
	}))
	defer srv2.Close()

	c2 := generate.NewHTTPClient(srv2.URL, "")
	_, err = c2.NextQuestion(context.Background(), generate.QuestionRequest{Stage: domain.StageCurrentState})
	require.Error(t, err)
	assert.True(t, errors.Is(err, generate.ErrUpstream))
}

func TestHTTPClientSendsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"ok","next_stage":"failed_attempts"}`))
	}))
	defer srv.Close()

	c := generate.NewHTTPClient(srv.URL, "secret-key")
	_, err := c.NextQuestion(context.Background(), generate.QuestionRequest{Stage: domain.StageCurrentState})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-key", gotAuth)
}
