package pipeline

import (
	"math"

	"github.com/clinicaflow/go-triage/internal/domain/triage"
)

// Tier-dependent confidence caps.
var tierCaps = map[triage.RiskTier]float64{
	triage.TierRoutine:  0.85,
	triage.TierUrgent:   0.90,
	triage.TierCritical: 0.95,
}

// confidence is the deterministic coverage heuristic: fired triggers raise
// it, missing fields and degraded reasoning lower it, capped by tier.
func confidence(structured *triage.StructuredIntake, reasoning *triage.ReasoningOutput, safety *triage.SafetyOutput) float64 {
	score := 0.6

	fired := 0
	for _, t := range safety.SafetyTriggers {
		if t.Severity == triage.SeverityCritical || t.Severity == triage.SeverityUrgent {
			fired++
		}
	}
	score += math.Min(0.05*float64(fired), 0.2)

	missing := len(structured.MissingCriticalFields)
	if missing == 0 {
		score += 0.1
	} else {
		score -= math.Min(0.05*float64(missing), 0.2)
	}

	if reasoning.ReasoningBackendError != "" ||
		(reasoning.ReasoningBackendSkipped != "" && reasoning.ReasoningBackendSkipped != "backend=deterministic") {
		score -= 0.05
	}

	tierCap := tierCaps[safety.RiskTier]
	if tierCap == 0 {
		tierCap = 0.85
	}
	score = math.Max(0.2, math.Min(score, tierCap))
	return math.Round(score*100) / 100
}
