package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/config"
)

func TestLoadFallsBackToDefaults(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Interview.TranscriptWindow)
	assert.Equal(t, 5, cfg.Interview.MaxDeepDives)
	assert.Empty(t, cfg.Services.Questions.BaseURL)
	assert.Empty(t, cfg.Webhooks)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	workspace := t.TempDir()
	raw := `interview:
  max_deep_dives: 2
services:
  questions:
    base_url: http://localhost:9000
`
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "parley.yml"), []byte(raw), 0o644))

	cfg, err := config.Load(workspace)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Interview.MaxDeepDives)
	assert.Equal(t, "http://localhost:9000", cfg.Services.Questions.BaseURL)
	// Untouched keys keep their defaults.
	assert.Equal(t, 6, cfg.Interview.TranscriptWindow)
	assert.Equal(t, 3, cfg.Services.Questions.Attempts)
}

func TestValidateRejectsBadValues(t *testing.T) {
	_, err := config.FromYAML([]byte("interview:\n  transcript_window: -1\n"))
	assert.Error(t, err)

	_, err = config.FromYAML([]byte("services:\n  synthesis:\n    attempts: -2\n"))
	assert.Error(t, err)

	_, err = config.FromYAML([]byte("webhooks:\n  - events: [workshop.completed]\n"))
	assert.Error(t, err)

	_, err = config.FromYAML([]byte("interview: ["))
	assert.Error(t, err)
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault()))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.yml")
	require.NoError(t, os.WriteFile(path, []byte("interview:\n  transcript_window: 10\n"), 0o644))
	cfg, err := config.FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Interview.TranscriptWindow)

	_, err = config.FromFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
