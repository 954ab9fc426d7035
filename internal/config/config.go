// Package config loads engine configuration from the environment with an
// optional YAML file overlay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/clinicaflow/go-triage/internal/inference"
)

// CircuitConfig holds the shared breaker parameters for external endpoints.
type CircuitConfig struct {
	FailuresThreshold uint32        `yaml:"failures_threshold"`
	Cooldown          time.Duration `yaml:"cooldown"`
	Window            time.Duration `yaml:"window"`
}

// PolicyConfig locates the policy pack and bounds matching.
type PolicyConfig struct {
	PackPath string `yaml:"pack_path"`
	TopK     int    `yaml:"top_k"`
}

// RequestConfig bounds one triage request.
type RequestConfig struct {
	MaxBytes int64         `yaml:"max_bytes"`
	Deadline time.Duration `yaml:"deadline"`
}

// TracingConfig enables the OTLP exporter.
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Config is the full engine configuration. All keys are optional with
// documented defaults.
type Config struct {
	Port            string                  `yaml:"port"`
	LogLevel        string                  `yaml:"log_level"`
	APIKey          string                  `yaml:"api_key"`
	CORSAllowOrigin string                  `yaml:"cors_allow_origin"`
	PHIGuardEnabled bool                    `yaml:"phi_guard_enabled"`
	Request         RequestConfig           `yaml:"request"`
	Policy          PolicyConfig            `yaml:"policy"`
	Circuit         CircuitConfig           `yaml:"circuit"`
	Reasoning       inference.BackendConfig `yaml:"reasoning"`
	Communication   inference.BackendConfig `yaml:"communication"`
	Tracing         TracingConfig           `yaml:"tracing"`
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Port:            "8080",
		LogLevel:        "info",
		CORSAllowOrigin: "*",
		PHIGuardEnabled: true,
		Request: RequestConfig{
			MaxBytes: 256 << 10,
			Deadline: 5 * time.Second,
		},
		Policy: PolicyConfig{TopK: 2},
		Circuit: CircuitConfig{
			FailuresThreshold: 2,
			Cooldown:          15 * time.Second,
			Window:            60 * time.Second,
		},
		Reasoning:     inference.DefaultBackendConfig(),
		Communication: inference.DefaultBackendConfig(),
		Tracing:       TracingConfig{OTLPEndpoint: "localhost:4317"},
	}
}

// Load reads configuration from TRIAGE_* environment variables on top of the
// defaults.
func Load() Config {
	cfg := Default()

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("TRIAGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
	}
	cfg.APIKey = strings.TrimSpace(os.Getenv("TRIAGE_API_KEY"))
	if v := os.Getenv("TRIAGE_CORS_ALLOW_ORIGIN"); strings.TrimSpace(v) != "" {
		cfg.CORSAllowOrigin = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv("TRIAGE_PHI_GUARD"); ok {
		cfg.PHIGuardEnabled = envBool(v)
	}
	if n, err := strconv.ParseInt(os.Getenv("TRIAGE_REQUEST_MAX_BYTES"), 10, 64); err == nil && n > 0 {
		cfg.Request.MaxBytes = n
	}
	if d, err := time.ParseDuration(os.Getenv("TRIAGE_REQUEST_DEADLINE")); err == nil && d > 0 {
		cfg.Request.Deadline = d
	}
	cfg.Policy.PackPath = strings.TrimSpace(os.Getenv("TRIAGE_POLICY_PACK_PATH"))
	if n, err := strconv.Atoi(os.Getenv("TRIAGE_POLICY_TOPK")); err == nil && n > 0 {
		cfg.Policy.TopK = n
	}
	if n, err := strconv.ParseUint(os.Getenv("TRIAGE_CIRCUIT_FAILS"), 10, 32); err == nil && n > 0 {
		cfg.Circuit.FailuresThreshold = uint32(n)
	}
	if d, err := time.ParseDuration(os.Getenv("TRIAGE_CIRCUIT_COOLDOWN")); err == nil && d > 0 {
		cfg.Circuit.Cooldown = d
	}
	if d, err := time.ParseDuration(os.Getenv("TRIAGE_CIRCUIT_WINDOW")); err == nil && d > 0 {
		cfg.Circuit.Window = d
	}
	if v, ok := os.LookupEnv("TRIAGE_TRACING_ENABLED"); ok {
		cfg.Tracing.Enabled = envBool(v)
	}
	if v := os.Getenv("TRIAGE_OTLP_ENDPOINT"); strings.TrimSpace(v) != "" {
		cfg.Tracing.OTLPEndpoint = strings.TrimSpace(v)
	}

	cfg.Reasoning = inference.BackendConfigFromEnv("REASONING")
	cfg.Communication = inference.BackendConfigFromEnv("COMMUNICATION")
	return cfg
}

// LoadFile overlays a YAML file onto cfg. Missing file is an error; callers
// decide whether the file is optional.
func LoadFile(path string, cfg Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func envBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
