package structuring

import (
	"fmt"
	"strings"

	"github.com/clinicaflow/go-triage/internal/domain/triage"
	"github.com/clinicaflow/go-triage/internal/safety/rulebook"
)

// AgentName is the trace label of this stage.
const AgentName = "intake_structuring"

// Agent produces a StructuredIntake from a raw Intake. Pure computation: no
// randomness, no I/O, no observable errors.
type Agent struct {
	rules *rulebook.Rulebook
}

// New builds the structuring agent against the given rulebook (its negation
// window and vitals-required set apply here).
func New(rules *rulebook.Rulebook) *Agent {
	if rules == nil {
		rules = rulebook.Default()
	}
	return &Agent{rules: rules}
}

// Run extracts canonical tokens, derives warnings, and composes the
// normalized summary. The input intake is never mutated.
func (a *Agent) Run(in *triage.Intake) *triage.StructuredIntake {
	normalized := NormalizeText(in.CombinedText())
	window := a.rules.NegationWindow

	symptoms := extractTokens(normalized, SymptomCatalog, window)
	riskFactors := extractTokens(normalized, RiskFactorCatalog, window)

	out := &triage.StructuredIntake{
		Symptoms:              symptoms,
		RiskFactors:           riskFactors,
		MissingCriticalFields: a.missingCriticalFields(in, symptoms),
		DataQualityWarnings:   qualityWarnings(in),
		PHIHits:               detectPHI(in),
	}
	out.NormalizedSummary = summarize(in, out)
	return out
}

func (a *Agent) missingCriticalFields(in *triage.Intake, symptoms []string) []string {
	var missing []string
	if strings.TrimSpace(in.ChiefComplaint) == "" {
		missing = append(missing, "chief_complaint")
	}
	if !a.rules.RequiresVitals(symptoms) {
		return missing
	}
	v := in.Vitals
	if v.HeartRate == nil {
		missing = append(missing, "vitals.heart_rate")
	}
	if v.SystolicBP == nil {
		missing = append(missing, "vitals.systolic_bp")
	}
	if v.SpO2 == nil {
		missing = append(missing, "vitals.spo2")
	}
	if v.TemperatureC == nil {
		missing = append(missing, "vitals.temperature_c")
	}
	return missing
}

// summarize renders the deterministic one-line summary. Empty sections are
// omitted; token ordering is catalog order.
func summarize(in *triage.Intake, s *triage.StructuredIntake) string {
	var parts []string
	if cc := strings.TrimSpace(in.ChiefComplaint); cc != "" {
		parts = append(parts, "CC: "+cc)
	}
	if hx := strings.TrimSpace(in.History); hx != "" {
		parts = append(parts, "Hx: "+hx)
	}
	if vit := vitalsSummary(in.Vitals); vit != "" {
		parts = append(parts, "Vitals: "+vit)
	}
	if len(s.Symptoms) > 0 {
		parts = append(parts, "Symptoms: "+strings.Join(s.Symptoms, ", "))
	}
	if len(s.RiskFactors) > 0 {
		parts = append(parts, "RiskFactors: "+strings.Join(s.RiskFactors, ", "))
	}
	return strings.Join(parts, " | ")
}

func vitalsSummary(v triage.Vitals) string {
	var parts []string
	if v.HeartRate != nil {
		parts = append(parts, fmt.Sprintf("HR=%.0f", *v.HeartRate))
	}
	if v.SystolicBP != nil {
		if v.DiastolicBP != nil {
			parts = append(parts, fmt.Sprintf("BP=%.0f/%.0f", *v.SystolicBP, *v.DiastolicBP))
		} else {
			parts = append(parts, fmt.Sprintf("BP=%.0f/?", *v.SystolicBP))
		}
	}
	if v.TemperatureC != nil {
		parts = append(parts, fmt.Sprintf("Temp=%.1fC", *v.TemperatureC))
	}
	if v.SpO2 != nil {
		parts = append(parts, fmt.Sprintf("SpO2=%.0f%%", *v.SpO2))
	}
	if v.RespiratoryRate != nil {
		parts = append(parts, fmt.Sprintf("RR=%.0f", *v.RespiratoryRate))
	}
	return strings.Join(parts, ", ")
}
