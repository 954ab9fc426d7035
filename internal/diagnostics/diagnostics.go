// Package diagnostics collects a safe runtime snapshot for the doctor
// endpoint: configuration without secrets, policy-pack identity, backend
// reachability, and circuit-breaker health.
package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/clinicaflow/go-triage/internal/config"
	"github.com/clinicaflow/go-triage/internal/inference"
	"github.com/clinicaflow/go-triage/internal/pipeline"
	"github.com/clinicaflow/go-triage/internal/policy"
	"github.com/clinicaflow/go-triage/internal/safety/rulebook"
	"github.com/clinicaflow/go-triage/pkg/circuitbreaker"
)

// BackendReport describes one configured external backend.
type BackendReport struct {
	Backend           string `json:"backend"`
	BaseURL           string `json:"base_url,omitempty"`
	Model             string `json:"model,omitempty"`
	Timeout           string `json:"timeout"`
	MaxRetries        int    `json:"max_retries"`
	ConnectivityOK    *bool  `json:"connectivity_ok,omitempty"`
	ConnectivityError string `json:"connectivity_error,omitempty"`
	ModelFound        *bool  `json:"model_found,omitempty"`
}

// Report is the doctor payload. No secrets are ever included.
type Report struct {
	PipelineVersion    string                         `json:"pipeline_version"`
	SafetyRulesVersion string                         `json:"safety_rules_version"`
	PHIGuardEnabled    bool                           `json:"phi_guard_enabled"`
	RequestDeadline    string                         `json:"request_deadline"`
	RequestMaxBytes    int64                          `json:"request_max_bytes"`
	APIKeyConfigured   bool                           `json:"api_key_configured"`
	PolicyPack         PolicyPackReport               `json:"policy_pack"`
	Reasoning          BackendReport                  `json:"reasoning_backend"`
	Communication      BackendReport                  `json:"communication_backend"`
	Circuits           []circuitbreaker.HealthStatus  `json:"circuits"`
}

// PolicyPackReport identifies the loaded pack.
type PolicyPackReport struct {
	Source    string `json:"source"`
	SHA256    string `json:"sha256"`
	Version   string `json:"version"`
	NPolicies int    `json:"n_policies"`
}

// Collector gathers reports against live components.
type Collector struct {
	cfg      config.Config
	snapshot *policy.Snapshot
	rules    *rulebook.Rulebook
	breakers *circuitbreaker.Manager
	client   *http.Client
}

// New builds a collector. client may be nil; probes then use a short-lived
// default client.
func New(cfg config.Config, snapshot *policy.Snapshot, rules *rulebook.Rulebook, breakers *circuitbreaker.Manager, client *http.Client) *Collector {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	return &Collector{cfg: cfg, snapshot: snapshot, rules: rules, breakers: breakers, client: client}
}

// Collect assembles the report. Connectivity probes are best-effort and never
// fail the call.
func (c *Collector) Collect(ctx context.Context) Report {
	pack := c.snapshot.Pack()
	return Report{
		PipelineVersion:    pipeline.Version,
		SafetyRulesVersion: c.rules.Version,
		PHIGuardEnabled:    c.cfg.PHIGuardEnabled,
		RequestDeadline:    c.cfg.Request.Deadline.String(),
		RequestMaxBytes:    c.cfg.Request.MaxBytes,
		APIKeyConfigured:   c.cfg.APIKey != "",
		PolicyPack: PolicyPackReport{
			Source:    c.snapshot.Source(),
			SHA256:    c.snapshot.SHA256(),
			Version:   pack.Version,
			NPolicies: len(pack.Policies),
		},
		Reasoning:     c.backendReport(ctx, c.cfg.Reasoning),
		Communication: c.backendReport(ctx, c.cfg.Communication),
		Circuits:      c.breakers.GetHealthStatus(),
	}
}

func (c *Collector) backendReport(ctx context.Context, cfg inference.BackendConfig) BackendReport {
	report := BackendReport{
		Backend:    string(cfg.Backend),
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Timeout:    cfg.Timeout.String(),
		MaxRetries: cfg.MaxRetries,
	}
	if !cfg.External() {
		return report
	}

	ok, modelFound, probeErr := c.probeModels(ctx, cfg)
	report.ConnectivityOK = &ok
	if probeErr != "" {
		report.ConnectivityError = probeErr
	}
	if ok && modelFound != nil {
		report.ModelFound = modelFound
	}
	return report
}

// probeModels checks the endpoint's /v1/models listing with a short timeout.
func (c *Collector) probeModels(ctx context.Context, cfg inference.BackendConfig) (bool, *bool, string) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	url := strings.TrimRight(cfg.BaseURL, "/") + "/v1/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, nil, truncate(err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, nil, truncate(err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, nil, fmt.Sprintf("HTTP %d", resp.StatusCode)
	}

	var payload struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, nil, truncate(err.Error())
	}
	if len(payload.Data) == 0 {
		return true, nil, ""
	}
	found := false
	for _, m := range payload.Data {
		if m.ID == cfg.Model {
			found = true
			break
		}
	}
	return true, &found, ""
}

func truncate(s string) string {
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
