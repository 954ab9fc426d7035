// Package pipeline orchestrates the five triage stages in fixed order,
// maintains the per-request trace, and enforces the result invariants.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/clinicaflow/go-triage/internal/domain/triage"
	"github.com/clinicaflow/go-triage/internal/observability/metrics"
	"github.com/clinicaflow/go-triage/internal/stages/communication"
	"github.com/clinicaflow/go-triage/internal/stages/evidence"
	"github.com/clinicaflow/go-triage/internal/stages/reasoning"
	"github.com/clinicaflow/go-triage/internal/stages/safety"
	"github.com/clinicaflow/go-triage/internal/stages/structuring"
)

// Version identifies the pipeline implementation in results.
const Version = "2.0.0-go"

// ErrCancelled is returned when the caller cancels before structuring
// completes; no TriageResult is emitted in that case.
var ErrCancelled = errors.New("cancelled")

// Pipeline wires the five stage agents. Stateless per request; safe for
// concurrent use.
type Pipeline struct {
	structuring   *structuring.Agent
	reasoning     *reasoning.Agent
	evidence      *evidence.Agent
	safety        *safety.Agent
	communication *communication.Agent

	requestDeadline time.Duration
	metrics         *metrics.Metrics
	logger          *zap.Logger
	tracer          trace.Tracer
}

// New assembles a pipeline from stage agents. metrics may be nil.
func New(st *structuring.Agent, rs *reasoning.Agent, ev *evidence.Agent, sf *safety.Agent, cm *communication.Agent, requestDeadline time.Duration, m *metrics.Metrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if requestDeadline <= 0 {
		requestDeadline = 5 * time.Second
	}
	return &Pipeline{
		structuring:     st,
		reasoning:       rs,
		evidence:        ev,
		safety:          sf,
		communication:   cm,
		requestDeadline: requestDeadline,
		metrics:         m,
		logger:          logger,
		tracer:          otel.Tracer("triage-pipeline"),
	}
}

// Triage validates the intake and executes the five stages in order. Stage
// failures degrade in-band; only validation and early cancellation surface
// as errors.
func (p *Pipeline) Triage(ctx context.Context, in *triage.Intake, requestID string) (*triage.TriageResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if requestID == "" {
		requestID = uuid.New().String()
	}

	ctx, cancel := context.WithTimeout(ctx, p.requestDeadline)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "triage",
		trace.WithAttributes(attribute.String("request_id", requestID)))
	defer span.End()

	start := time.Now()
	createdAt := triage.UTCNowISO()
	in = in.Clone()

	result := &triage.TriageResult{
		RequestID:       requestID,
		CreatedAt:       createdAt,
		PipelineVersion: Version,
	}

	// Stage 1: structuring. A cancellation here aborts the request; no
	// result is emitted without a structured intake.
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	structured, entry := runStage(structuring.AgentName, p.metrics, func() *triage.StructuredIntake {
		return p.structuring.Run(in)
	}, func() *triage.StructuredIntake { return &triage.StructuredIntake{} })
	result.Trace = append(result.Trace, entry)
	if ctx.Err() != nil && entry.Error == "" {
		// Structuring completed under the wire; downstream stages degrade
		// but safety still runs.
		p.logger.Warn("request cancelled after structuring", zap.String("request_id", requestID))
	}

	// Stage 2: reasoning. Never errors; external failures are in-band.
	reasoningOut, entry := runStage(reasoning.AgentName, p.metrics, func() *triage.ReasoningOutput {
		return p.reasoning.Run(ctx, in, structured)
	}, func() *triage.ReasoningOutput {
		return &triage.ReasoningOutput{
			ReasoningBackend:       triage.BackendDeterministic,
			ReasoningPromptVersion: reasoning.PromptVersion,
		}
	})
	result.Trace = append(result.Trace, entry)

	// Stage 3: evidence.
	evidenceOut, entry := runStage(evidence.AgentName, p.metrics, func() *triage.EvidenceOutput {
		return p.evidence.Run(structured, in.Vitals)
	}, func() *triage.EvidenceOutput { return &triage.EvidenceOutput{} })
	result.Trace = append(result.Trace, entry)

	// Stage 4: safety. Must always run against whatever signals exist.
	safetyOut, entry := runStage(safety.AgentName, p.metrics, func() *triage.SafetyOutput {
		return p.safety.Run(in, structured, reasoningOut, evidenceOut.RecommendedActionsFromPolicy)
	}, func() *triage.SafetyOutput {
		return &triage.SafetyOutput{RiskTier: triage.TierRoutine}
	})
	result.Trace = append(result.Trace, entry)

	actions := safety.MergedActions(safetyOut, evidenceOut.RecommendedActionsFromPolicy)

	// Stage 5: communication. Marked cancelled when the deadline fired;
	// the deterministic draft is still produced.
	commOut, entry := runStage(communication.AgentName, p.metrics, func() *triage.CommunicationOutput {
		return p.communication.Run(ctx, in, structured, reasoningOut, safetyOut, actions)
	}, func() *triage.CommunicationOutput {
		return &triage.CommunicationOutput{
			CommunicationBackend:       triage.BackendDeterministic,
			CommunicationPromptVersion: communication.PromptVersion,
		}
	})
	if ctx.Err() != nil && entry.Error == "" && commOut.CommunicationBackendError == "cancelled" {
		entry.Error = "cancelled"
	}
	result.Trace = append(result.Trace, entry)

	result.Structured = structured
	result.Reasoning = reasoningOut
	result.Evidence = evidenceOut
	result.Safety = safetyOut
	result.Communication = commOut

	result.RiskTier = safetyOut.RiskTier
	result.EscalationRequired = safetyOut.RiskTier == triage.TierUrgent || safetyOut.RiskTier == triage.TierCritical
	result.DifferentialConsiderations = reasoningOut.DifferentialConsiderations
	result.RedFlags = safetyOut.RedFlags
	result.RecommendedNextActions = actions
	result.ClinicianHandoff = commOut.ClinicianHandoff
	result.PatientSummary = commOut.PatientSummary
	result.UncertaintyReasons = safetyOut.UncertaintyReasons
	result.Confidence = confidence(structured, reasoningOut, safetyOut)
	result.TotalLatencyMS = time.Since(start).Milliseconds()

	span.SetAttributes(
		attribute.String("risk_tier", string(result.RiskTier)),
		attribute.Bool("escalation_required", result.EscalationRequired),
	)
	if p.metrics != nil {
		p.metrics.TriageCompleted(string(result.RiskTier), time.Since(start))
	}
	p.logger.Info("triage completed",
		zap.String("request_id", requestID),
		zap.String("risk_tier", string(result.RiskTier)),
		zap.Bool("escalation_required", result.EscalationRequired),
		zap.Int64("total_latency_ms", result.TotalLatencyMS))

	return result, nil
}

// runStage times fn, recovers panics into the trace entry, and substitutes
// the fallback output so downstream stages always receive a value.
func runStage[T any](name string, m *metrics.Metrics, fn func() T, fallback func() T) (T, triage.TraceEntry) {
	start := time.Now()
	var out T
	var stageErr string

	func() {
		defer func() {
			if r := recover(); r != nil {
				stageErr = fmt.Sprintf("stage panic: %v", r)
			}
		}()
		out = fn()
	}()

	elapsed := time.Since(start)
	if stageErr != "" {
		out = fallback()
	}
	if m != nil {
		m.ObserveStage(name, elapsed)
	}
	return out, triage.TraceEntry{
		Agent:     name,
		LatencyMS: elapsed.Milliseconds(),
		Output:    out,
		Error:     stageErr,
	}
}
