// Package communication implements the communication stage: deterministic
// SBAR handoff and patient return precautions, with an optional rewrite-only
// external pass.
package communication

import (
	"fmt"
	"strings"

	"github.com/clinicaflow/go-triage/internal/domain/triage"
)

// SBAR section headers. The rewrite validator requires all four to survive.
var sbarHeaders = []string{"Situation", "Background", "Assessment", "Recommendation"}

const maxListed = 3

// draftHandoff renders the fixed SBAR template. Ordering is stable: inputs
// are already in catalog/trigger order.
func draftHandoff(in *triage.Intake, structured *triage.StructuredIntake, reasoning *triage.ReasoningOutput, safety *triage.SafetyOutput, actions []string) string {
	var b strings.Builder

	b.WriteString("Situation:\n")
	fmt.Fprintf(&b, "- Chief complaint: %s\n", strings.TrimSpace(in.ChiefComplaint))
	fmt.Fprintf(&b, "- Risk tier: %s", strings.ToUpper(string(safety.RiskTier)))
	if safety.EscalationRequired {
		b.WriteString(" (escalation required)")
	}
	b.WriteString("\n")

	b.WriteString("Background:\n")
	if hx := strings.TrimSpace(in.History); hx != "" {
		fmt.Fprintf(&b, "- History: %s\n", hx)
	}
	if len(structured.RiskFactors) > 0 {
		fmt.Fprintf(&b, "- Risk factors: %s\n", strings.Join(structured.RiskFactors, ", "))
	}
	if vit := keyVitals(in.Vitals); vit != "" {
		fmt.Fprintf(&b, "- Vitals: %s\n", vit)
	}
	if len(structured.Symptoms) > 0 {
		fmt.Fprintf(&b, "- Symptoms: %s\n", strings.Join(structured.Symptoms, ", "))
	}

	b.WriteString("Assessment:\n")
	fmt.Fprintf(&b, "- %s\n", safety.RiskTierRationale)
	for _, flag := range top(safety.RedFlags, maxListed) {
		fmt.Fprintf(&b, "- Red flag: %s\n", flag)
	}
	if len(reasoning.DifferentialConsiderations) > 0 {
		fmt.Fprintf(&b, "- Differential considerations: %s\n",
			strings.Join(top(reasoning.DifferentialConsiderations, maxListed), "; "))
	}

	b.WriteString("Recommendation:\n")
	for _, act := range top(actions, maxListed) {
		fmt.Fprintf(&b, "- %s\n", act)
	}
	b.WriteString("- Decision support only; confirm all actions clinically.")

	return b.String()
}

// draftPatientSummary renders plain-language return precautions with
// tier-dependent disposition text.
func draftPatientSummary(safety *triage.SafetyOutput) string {
	var b strings.Builder
	b.WriteString("You were assessed with a decision-support tool that helps your care team. ")
	b.WriteString("It does not give a final diagnosis.\n")

	if safety.EscalationRequired {
		b.WriteString("Seek emergency care immediately if any of the following occur or worsen:\n")
	} else {
		b.WriteString("Return to clinic if any of the following occur or worsen:\n")
	}
	flags := top(safety.RedFlags, maxListed)
	if len(flags) == 0 {
		b.WriteString("- Your symptoms get worse or do not improve\n")
	}
	for _, flag := range flags {
		fmt.Fprintf(&b, "- %s\n", flag)
	}
	b.WriteString("If you feel your condition is an emergency, call your local emergency number.")
	return b.String()
}

func keyVitals(v triage.Vitals) string {
	var parts []string
	if v.HeartRate != nil {
		parts = append(parts, fmt.Sprintf("HR %.0f", *v.HeartRate))
	}
	if v.SystolicBP != nil {
		parts = append(parts, fmt.Sprintf("SBP %.0f", *v.SystolicBP))
	}
	if v.TemperatureC != nil {
		parts = append(parts, fmt.Sprintf("Temp %.1fC", *v.TemperatureC))
	}
	if v.SpO2 != nil {
		parts = append(parts, fmt.Sprintf("SpO2 %.0f%%", *v.SpO2))
	}
	if v.RespiratoryRate != nil {
		parts = append(parts, fmt.Sprintf("RR %.0f", *v.RespiratoryRate))
	}
	return strings.Join(parts, ", ")
}

func top(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
