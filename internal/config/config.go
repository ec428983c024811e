package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models parley.yml.
type Config struct {
	Interview struct {
		// TranscriptWindow is how many recent turns accompany each
		// question-generation request.
		TranscriptWindow int `yaml:"transcript_window"`
		// MaxDeepDives caps how many pain points one session explores.
		MaxDeepDives int `yaml:"max_deep_dives"`
	} `yaml:"interview"`
	Services struct {
		Questions ServiceConfig `yaml:"questions"`
		Synthesis ServiceConfig `yaml:"synthesis"`
	} `yaml:"services"`
	Catalog struct {
		Path string `yaml:"path"`
	} `yaml:"catalog"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// ServiceConfig points at one external generation service.
type ServiceConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Attempts       int    `yaml:"attempts"`
}

// WebhookConfig is one outbound event subscription. The report pipeline
// subscribes to workshop.completed this way.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from the workspace, falling back to
// defaults when no file exists.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "parley.yml")
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Interview.TranscriptWindow < 0 {
		return fmt.Errorf("config.interview.transcript_window must be non-negative")
	}
	if c.Interview.MaxDeepDives < 0 {
		return fmt.Errorf("config.interview.max_deep_dives must be non-negative")
	}
	for name, svc := range map[string]ServiceConfig{
		"questions": c.Services.Questions,
		"synthesis": c.Services.Synthesis,
	} {
		if svc.TimeoutSeconds < 0 {
			return fmt.Errorf("config.services.%s.timeout_seconds must be non-negative", name)
		}
		if svc.Attempts < 0 {
			return fmt.Errorf("config.services.%s.attempts must be non-negative", name)
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Default returns a config with built-in defaults and no external services
// configured; the engine falls back to templated questions in that mode.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns the default config YAML for `parley config init`.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `interview:
  transcript_window: 6
  max_deep_dives: 5

services:
  questions:
    base_url: ""
    api_key: ""
    timeout_seconds: 15
    attempts: 3
  synthesis:
    base_url: ""
    api_key: ""
    timeout_seconds: 30
    attempts: 3

catalog:
  path: ""

webhooks: []
`
