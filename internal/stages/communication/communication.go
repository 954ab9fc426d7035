package communication

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/clinicaflow/go-triage/internal/domain/triage"
	"github.com/clinicaflow/go-triage/internal/inference"
	"github.com/clinicaflow/go-triage/pkg/circuitbreaker"
)

// AgentName is the trace label of this stage.
const AgentName = "communication"

// PromptVersion is recorded on every output for auditability.
const PromptVersion = "2026-02.v2"

const systemPrompt = "You are a clinical documentation assistant. " +
	"Rewrite the following for clarity. Do not add new clinical facts. " +
	"Preserve section headers. Return JSON with keys `clinician_handoff` and `patient_summary`."

// Agent drafts the handoff and precautions deterministically and may send
// them through a rewrite-only external pass.
type Agent struct {
	cfg      inference.BackendConfig
	client   *inference.Client
	phiGuard bool
	logger   *zap.Logger
}

// New builds the communication agent. client may be nil when the backend is
// deterministic.
func New(cfg inference.BackendConfig, client *inference.Client, phiGuard bool, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{cfg: cfg, client: client, phiGuard: phiGuard, logger: logger}
}

// Run never surfaces an error; a failed or fact-dropping rewrite keeps the
// deterministic draft.
func (a *Agent) Run(ctx context.Context, in *triage.Intake, structured *triage.StructuredIntake, reasoning *triage.ReasoningOutput, safety *triage.SafetyOutput, actions []string) *triage.CommunicationOutput {
	out := &triage.CommunicationOutput{
		ClinicianHandoff:           draftHandoff(in, structured, reasoning, safety, actions),
		PatientSummary:             draftPatientSummary(safety),
		CommunicationBackend:       triage.BackendDeterministic,
		CommunicationPromptVersion: PromptVersion,
	}

	if !a.cfg.External() || a.client == nil {
		out.CommunicationBackendSkipped = "backend=deterministic"
		return out
	}
	if a.phiGuard && len(structured.PHIHits) > 0 {
		out.CommunicationBackendSkipped = "phi_guard"
		return out
	}

	content, err := a.client.Complete(ctx, []openai.ChatCompletionMessage{
		inference.SystemMessage(systemPrompt),
		inference.UserMessage(buildRewritePrompt(out.ClinicianHandoff, out.PatientSummary), nil),
	})
	if err != nil {
		switch {
		case circuitbreaker.IsOpen(err):
			out.CommunicationBackendSkipped = "circuit_open"
		case errors.Is(err, context.Canceled) || ctx.Err() != nil:
			out.CommunicationBackendError = "cancelled"
		default:
			out.CommunicationBackendError = truncate(err.Error(), 200)
		}
		a.logger.Warn("external rewrite failed, keeping deterministic draft",
			zap.String("endpoint", a.cfg.EndpointKey()),
			zap.Error(err))
		return out
	}

	handoff, summary, ok := parseRewriteResponse(content)
	if !ok {
		out.CommunicationBackendError = "invalid_json"
		return out
	}
	if !rewritePreservesFacts(handoff, summary, safety.RedFlags) {
		out.CommunicationBackendError = "facts_dropped"
		return out
	}

	out.ClinicianHandoff = handoff
	out.PatientSummary = summary
	out.CommunicationBackend = triage.BackendExternal
	out.CommunicationBackendModel = a.cfg.Model
	return out
}

func buildRewritePrompt(handoff, summary string) string {
	return fmt.Sprintf(
		"Rewrite these two drafts. Do not add facts; keep every red flag and all section headers.\n\n"+
			"Draft clinician_handoff:\n%s\n\nDraft patient_summary:\n%s\n\nReturn ONLY JSON.",
		handoff, summary)
}

func parseRewriteResponse(content string) (string, string, bool) {
	obj, err := inference.ExtractJSONObject(content)
	if err != nil {
		return "", "", false
	}
	handoff, ok := inference.DecodeString(obj["clinician_handoff"])
	if !ok || strings.TrimSpace(handoff) == "" {
		return "", "", false
	}
	summary, ok := inference.DecodeString(obj["patient_summary"])
	if !ok || strings.TrimSpace(summary) == "" {
		return "", "", false
	}
	return strings.TrimSpace(handoff), strings.TrimSpace(summary), true
}

// rewritePreservesFacts conservatively requires every SBAR section header in
// the rewritten handoff and every red-flag phrase somewhere in the rewrite.
func rewritePreservesFacts(handoff, summary string, redFlags []string) bool {
	for _, header := range sbarHeaders {
		if !strings.Contains(handoff, header) {
			return false
		}
	}
	combined := handoff + "\n" + summary
	for _, flag := range redFlags {
		if !strings.Contains(combined, flag) {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
