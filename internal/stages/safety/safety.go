// Package safety implements the safety & escalation stage. It wraps the
// deterministic rulebook and can never be bypassed by upstream results.
package safety

import (
	"github.com/clinicaflow/go-triage/internal/domain/triage"
	"github.com/clinicaflow/go-triage/internal/safety/rulebook"
)

// AgentName is the trace label of this stage.
const AgentName = "safety_escalation"

// Agent evaluates the rulebook and injects mandated actions ahead of the
// evidence recommendations.
type Agent struct {
	rules *rulebook.Rulebook
}

// New builds the safety agent.
func New(rules *rulebook.Rulebook) *Agent {
	if rules == nil {
		rules = rulebook.Default()
	}
	return &Agent{rules: rules}
}

// Run is deterministic: identical inputs and rulebook version yield
// bit-identical output.
func (a *Agent) Run(in *triage.Intake, structured *triage.StructuredIntake, reasoning *triage.ReasoningOutput, evidenceActions []string) *triage.SafetyOutput {
	eval := a.rules.Evaluate(structured, in.Vitals)

	// Mandated actions are prepended in trigger order; dedupe is
	// first-occurrence-wins, so every mandated action lands at safety's
	// position in the final list.
	addedBySafety := triage.Dedupe(eval.MandatedActions)

	return &triage.SafetyOutput{
		RiskTier:             eval.Tier,
		EscalationRequired:   eval.Tier == triage.TierUrgent || eval.Tier == triage.TierCritical,
		RedFlags:             eval.RedFlags,
		SafetyTriggers:       eval.Triggers,
		ActionsAddedBySafety: addedBySafety,
		RiskTierRationale:    eval.Rationale,
		RiskScores:           eval.Scores,
		UncertaintyReasons:   a.uncertaintyReasons(structured, reasoning, eval),
		SafetyRulesVersion:   a.rules.Version,
	}
}

// MergedActions returns the final recommended action list: safety-mandated
// actions first, then evidence recommendations, deduplicated.
func MergedActions(out *triage.SafetyOutput, evidenceActions []string) []string {
	merged := make([]string, 0, len(out.ActionsAddedBySafety)+len(evidenceActions))
	merged = append(merged, out.ActionsAddedBySafety...)
	merged = append(merged, evidenceActions...)
	return triage.Dedupe(merged)
}

func (a *Agent) uncertaintyReasons(structured *triage.StructuredIntake, reasoning *triage.ReasoningOutput, eval rulebook.Evaluation) []string {
	var reasons []string

	if len(structured.MissingCriticalFields) > 0 {
		reasons = append(reasons, "Missing critical intake fields: "+joinComma(structured.MissingCriticalFields))
	}
	if hasSymptom(structured.Symptoms, "chest_pain") && vitalsAbsent(structured.MissingCriticalFields) {
		reasons = append(reasons, "Chest pain reported without a complete vitals set")
	}
	if reasoning != nil {
		if reasoning.ReasoningBackendError != "" {
			reasons = append(reasons, "External reasoning errored; deterministic fallback used")
		} else if reasoning.ReasoningBackendSkipped != "" && reasoning.ReasoningBackendSkipped != "backend=deterministic" {
			reasons = append(reasons, "External reasoning skipped: "+reasoning.ReasoningBackendSkipped)
		}
	}
	if eval.Scores.ShockIndexHigh && eval.Tier != triage.TierCritical {
		reasons = append(reasons, "Elevated shock index without other critical findings")
	}

	return triage.Dedupe(reasons)
}

func hasSymptom(symptoms []string, token string) bool {
	for _, s := range symptoms {
		if s == token {
			return true
		}
	}
	return false
}

func vitalsAbsent(missing []string) bool {
	for _, m := range missing {
		if len(m) > len("vitals.") && m[:len("vitals.")] == "vitals." {
			return true
		}
	}
	return false
}

func joinComma(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ", "
		}
		out += it
	}
	return out
}
