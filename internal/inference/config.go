// Package inference provides the OpenAI-compatible chat-completions adapter
// used by the reasoning and communication stages: per-attempt timeouts,
// bounded retries, circuit breaking, prompt hardening, and JSON-shape
// recovery.
package inference

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/clinicaflow/go-triage/internal/domain/triage"
)

// BackendConfig configures one external endpoint. A zero Backend (or
// BackendDeterministic) disables external calls entirely.
type BackendConfig struct {
	Backend      triage.Backend `yaml:"backend"`
	BaseURL      string         `yaml:"base_url"`
	Model        string         `yaml:"model"`
	APIKey       string         `yaml:"api_key"`
	Timeout      time.Duration  `yaml:"timeout"`
	MaxRetries   int            `yaml:"max_retries"`
	RetryBackoff time.Duration  `yaml:"retry_backoff"`
	Temperature  float32        `yaml:"temperature"`
	MaxTokens    int            `yaml:"max_tokens"`
	SendImages   bool           `yaml:"send_images"`
	MaxImages    int            `yaml:"max_images"`
}

// DefaultBackendConfig returns the documented defaults.
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		Backend:      triage.BackendDeterministic,
		Timeout:      30 * time.Second,
		MaxRetries:   1,
		RetryBackoff: 500 * time.Millisecond,
		Temperature:  0.2,
		MaxTokens:    600,
		SendImages:   false,
		MaxImages:    2,
	}
}

// External reports whether the config selects the external backend.
func (c BackendConfig) External() bool {
	return c.Backend == triage.BackendExternal
}

// Validate checks the fields required when the external backend is selected.
func (c BackendConfig) Validate() error {
	if !c.External() {
		return nil
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("inference: base_url is required for the external backend")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("inference: model is required for the external backend")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("inference: timeout must be > 0")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("inference: max_retries must be >= 0")
	}
	return nil
}

// EndpointKey identifies the endpoint for circuit-breaker sharing.
func (c BackendConfig) EndpointKey() string {
	return strings.TrimRight(c.BaseURL, "/") + "::" + c.Model
}

// BackendConfigFromEnv loads a backend config from TRIAGE_<prefix>_* env
// vars. Values missing under a non-REASONING prefix fall back to the
// TRIAGE_REASONING_* vars so the two backends can share an endpoint.
func BackendConfigFromEnv(prefix string) BackendConfig {
	cfg := DefaultBackendConfig()
	get := func(name string) string {
		if v, ok := os.LookupEnv("TRIAGE_" + prefix + "_" + name); ok {
			return strings.TrimSpace(v)
		}
		if prefix != "REASONING" {
			if v, ok := os.LookupEnv("TRIAGE_REASONING_" + name); ok {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	if v := get("BACKEND"); v != "" {
		cfg.Backend = triage.Backend(strings.ToLower(v))
	}
	cfg.BaseURL = get("BASE_URL")
	cfg.Model = get("MODEL")
	cfg.APIKey = get("API_KEY")
	if v := get("TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}
	if v := get("MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxRetries = min(n, 5)
		}
	}
	if v := get("RETRY_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RetryBackoff = d
		}
	}
	if v := get("TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			cfg.Temperature = float32(f)
		}
	}
	if v := get("MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxTokens = n
		}
	}
	if v := get("SEND_IMAGES"); v != "" {
		cfg.SendImages = parseBool(v)
	}
	if v := get("MAX_IMAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxImages = n
		}
	}
	return cfg
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
