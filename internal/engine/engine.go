// Package engine assembles the triage pipeline and its collaborators from
// configuration. Both the API server and the CLI build on it.
package engine

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/clinicaflow/go-triage/internal/config"
	"github.com/clinicaflow/go-triage/internal/diagnostics"
	"github.com/clinicaflow/go-triage/internal/inference"
	"github.com/clinicaflow/go-triage/internal/observability/metrics"
	"github.com/clinicaflow/go-triage/internal/pipeline"
	"github.com/clinicaflow/go-triage/internal/policy"
	"github.com/clinicaflow/go-triage/internal/safety/rulebook"
	"github.com/clinicaflow/go-triage/internal/stages/communication"
	"github.com/clinicaflow/go-triage/internal/stages/evidence"
	"github.com/clinicaflow/go-triage/internal/stages/reasoning"
	"github.com/clinicaflow/go-triage/internal/stages/safety"
	"github.com/clinicaflow/go-triage/internal/stages/structuring"
	"github.com/clinicaflow/go-triage/pkg/circuitbreaker"
)

// Engine bundles the assembled pipeline with the shared process-wide state:
// the policy snapshot, rulebook, breaker manager, and pooled HTTP client.
type Engine struct {
	Config   config.Config
	Pipeline *pipeline.Pipeline
	Snapshot *policy.Snapshot
	Rules    *rulebook.Rulebook
	Breakers *circuitbreaker.Manager
	Doctor   *diagnostics.Collector
}

// New assembles an engine. A missing or malformed policy pack fails here,
// at startup. m may be nil (the CLI runs without metrics).
func New(cfg config.Config, m *metrics.Metrics, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	rules := rulebook.Default()
	snapshot, err := policy.Load(cfg.Policy.PackPath, logger)
	if err != nil {
		return nil, fmt.Errorf("load policy pack: %w", err)
	}

	breakers := circuitbreaker.NewManager(logger)
	circuit := circuitbreaker.Config{
		FailuresThreshold: cfg.Circuit.FailuresThreshold,
		Cooldown:          cfg.Circuit.Cooldown,
		Window:            cfg.Circuit.Window,
	}

	// One pooled client shared by both adapters across all requests.
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	reasoningClient, err := externalClient(cfg.Reasoning, breakers, circuit, httpClient, logger)
	if err != nil {
		return nil, err
	}
	communicationClient, err := externalClient(cfg.Communication, breakers, circuit, httpClient, logger)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(
		structuring.New(rules),
		reasoning.New(cfg.Reasoning, reasoningClient, cfg.PHIGuardEnabled, logger),
		evidence.New(snapshot, cfg.Policy.TopK),
		safety.New(rules),
		communication.New(cfg.Communication, communicationClient, cfg.PHIGuardEnabled, logger),
		cfg.Request.Deadline,
		m,
		logger,
	)

	return &Engine{
		Config:   cfg,
		Pipeline: p,
		Snapshot: snapshot,
		Rules:    rules,
		Breakers: breakers,
		Doctor:   diagnostics.New(cfg, snapshot, rules, breakers, httpClient),
	}, nil
}

func externalClient(cfg inference.BackendConfig, breakers *circuitbreaker.Manager, circuit circuitbreaker.Config, httpClient *http.Client, logger *zap.Logger) (*inference.Client, error) {
	if !cfg.External() {
		return nil, nil
	}
	client, err := inference.NewClient(cfg, breakers, circuit, httpClient, logger)
	if err != nil {
		return nil, fmt.Errorf("configure external backend: %w", err)
	}
	return client, nil
}
