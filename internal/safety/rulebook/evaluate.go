package rulebook

import (
	"fmt"
	"math"
	"strings"

	"github.com/clinicaflow/go-triage/internal/domain/triage"
)

// Evaluation is the deterministic outcome of running the rulebook against one
// structured intake.
type Evaluation struct {
	Triggers        []triage.SafetyTrigger
	Tier            triage.RiskTier
	RedFlags        []string
	Scores          triage.RiskScores
	MandatedActions []string
	Rationale       string
}

// Evaluate runs every trigger in declaration order, applies the composite
// escalation rules, and derives the risk tier from the highest severity fired.
func (rb *Rulebook) Evaluate(structured *triage.StructuredIntake, vitals triage.Vitals) Evaluation {
	symptoms := toSet(structured.Symptoms)
	risks := toSet(structured.RiskFactors)
	scores := rb.computeScores(symptoms, vitals)

	var fired []triage.SafetyTrigger
	var mandated []string
	categories := make(map[Category]struct{})

	addFired := func(def Trigger, severity triage.Severity, detail string) {
		fired = append(fired, triage.SafetyTrigger{
			ID:       def.ID,
			Label:    def.Label,
			Severity: severity,
			Detail:   detail,
		})
		if severity == triage.SeverityCritical || severity == triage.SeverityUrgent {
			categories[def.Category] = struct{}{}
			mandated = append(mandated, def.MandatedActions...)
		}
	}

	for _, def := range rb.Triggers {
		ok, severity, detail := rb.evalTrigger(def, symptoms, risks, vitals)
		if ok {
			addFired(def, severity, detail)
		}
	}

	// Score-derived triggers come after the catalog triggers so the trace
	// order is stable.
	anyUrgentOrWorse := highestSeverity(fired) != ""
	if scores.QSOFAHighRisk {
		fired = append(fired, triage.SafetyTrigger{
			ID:       "qsofa_high_risk",
			Label:    "qSOFA high risk",
			Severity: triage.SeverityInfo,
			Detail:   fmt.Sprintf("qSOFA score %d", scores.QSOFA),
		})
	}
	if scores.ShockIndexHigh {
		severity := triage.SeverityInfo
		detail := fmt.Sprintf("Shock index %.2f at or above %.1f", *scores.ShockIndex, rb.Thresholds.ShockIndexHigh)
		if anyUrgentOrWorse {
			severity = triage.SeverityCritical
			detail += "; combined with an active urgent trigger"
		}
		fired = append(fired, triage.SafetyTrigger{
			ID:       "shock_index_high",
			Label:    "Elevated shock index",
			Severity: severity,
			Detail:   detail,
		})
	}

	tier := tierFromSeverity(highestSeverity(fired))

	// Two or more distinct trigger categories escalate one step.
	if tier == triage.TierUrgent && len(categories) >= 2 {
		fired = append(fired, triage.SafetyTrigger{
			ID:       "multi_category",
			Label:    "Multiple concern categories",
			Severity: triage.SeverityCritical,
			Detail:   fmt.Sprintf("%d distinct trigger categories active", len(categories)),
		})
		tier = triage.TierCritical
	}

	return Evaluation{
		Triggers:        fired,
		Tier:            tier,
		RedFlags:        rb.redFlags(structured.Symptoms, vitals),
		Scores:          scores,
		MandatedActions: triage.Dedupe(mandated),
		Rationale:       rationale(tier, fired),
	}
}

func (rb *Rulebook) evalTrigger(def Trigger, symptoms, risks map[string]struct{}, vitals triage.Vitals) (bool, triage.Severity, string) {
	th := rb.Thresholds
	has := func(token string) bool { _, ok := symptoms[token]; return ok }

	switch def.ID {
	case "cardiopulmonary_red_flag":
		if has("chest_pain") {
			return true, def.Severity, def.Detail
		}
	case "stroke_red_flag":
		n := 0
		var present []string
		for _, tok := range rb.StrokeSymptoms {
			if has(tok) {
				n++
				present = append(present, tok)
			}
		}
		if n == 0 {
			return false, "", ""
		}
		severity := def.Severity
		if n >= 2 {
			severity = triage.SeverityCritical
		}
		return true, severity, "Focal deficits: " + strings.Join(present, ", ")
	case "hypoxemia":
		if vitals.SpO2 == nil {
			return false, "", ""
		}
		if *vitals.SpO2 < th.SpO2Critical {
			return true, triage.SeverityCritical, fmt.Sprintf("SpO2 %.0f%% below %.0f%%", *vitals.SpO2, th.SpO2Critical)
		}
		if *vitals.SpO2 < th.SpO2Urgent {
			return true, def.Severity, fmt.Sprintf("SpO2 %.0f%% below %.0f%%", *vitals.SpO2, th.SpO2Urgent)
		}
	case "hypotension":
		if vitals.SystolicBP != nil && *vitals.SystolicBP < th.SBPHypotension {
			return true, def.Severity, fmt.Sprintf("SBP %.0f below %.0f", *vitals.SystolicBP, th.SBPHypotension)
		}
	case "tachycardia_severe":
		if vitals.HeartRate != nil && *vitals.HeartRate >= th.HRSevere {
			return true, def.Severity, fmt.Sprintf("HR %.0f at or above %.0f", *vitals.HeartRate, th.HRSevere)
		}
	case "fever_sepsis":
		if vitals.TemperatureC == nil || *vitals.TemperatureC < th.TempSepsis {
			return false, "", ""
		}
		severity := def.Severity
		detail := fmt.Sprintf("Temperature %.1f°C at or above %.1f°C", *vitals.TemperatureC, th.TempSepsis)
		if vitals.HeartRate != nil && *vitals.HeartRate >= th.HRSevere {
			severity = triage.SeverityCritical
			detail += " with severe tachycardia"
		}
		return true, severity, detail
	case "hemodynamic_combo":
		if has("chest_pain") && vitals.SpO2 != nil && *vitals.SpO2 < th.SpO2Urgent {
			return true, def.Severity, def.Detail
		}
	case "pregnancy_bleeding":
		if _, pregnant := risks["pregnancy"]; !pregnant {
			return false, "", ""
		}
		for _, tok := range rb.BleedingSymptoms {
			if has(tok) {
				return true, def.Severity, def.Detail
			}
		}
	case "gi_bleed":
		if has("hematemesis") || has("melena") {
			return true, def.Severity, def.Detail
		}
	case "syncope":
		if has("syncope") {
			return true, def.Severity, def.Detail
		}
	}
	return false, "", ""
}

func (rb *Rulebook) computeScores(symptoms map[string]struct{}, vitals triage.Vitals) triage.RiskScores {
	var scores triage.RiskScores
	th := rb.Thresholds

	if vitals.HeartRate != nil && vitals.SystolicBP != nil && *vitals.SystolicBP > 0 {
		si := math.Round(*vitals.HeartRate / *vitals.SystolicBP * 100) / 100
		scores.ShockIndex = &si
		scores.ShockIndexHigh = si >= th.ShockIndexHigh
	}

	if vitals.RespiratoryRate != nil && *vitals.RespiratoryRate >= th.QSOFARespRate {
		scores.QSOFA++
	}
	if vitals.SystolicBP != nil && *vitals.SystolicBP <= th.QSOFASystolicBP {
		scores.QSOFA++
	}
	for _, tok := range rb.AlteredMentationSymptoms {
		if _, ok := symptoms[tok]; ok {
			scores.QSOFA++
			break
		}
	}
	scores.QSOFAHighRisk = scores.QSOFA >= th.QSOFAHighRiskMin
	return scores
}

func (rb *Rulebook) redFlags(symptoms []string, vitals triage.Vitals) []string {
	th := rb.Thresholds
	var flags []string
	for _, tok := range symptoms {
		if phrase, ok := rb.RedFlagKeywords[tok]; ok {
			flags = append(flags, phrase)
		}
	}
	if vitals.SpO2 != nil && *vitals.SpO2 < th.SpO2Urgent {
		flags = append(flags, fmt.Sprintf("Low oxygen saturation (<%.0f%%)", th.SpO2Urgent))
	}
	if vitals.SystolicBP != nil && *vitals.SystolicBP < th.SBPHypotension {
		flags = append(flags, fmt.Sprintf("Hypotension (SBP < %.0f)", th.SBPHypotension))
	}
	if vitals.HeartRate != nil && *vitals.HeartRate >= th.HRSevere {
		flags = append(flags, fmt.Sprintf("Severe tachycardia (HR >= %.0f)", th.HRSevere))
	}
	if vitals.TemperatureC != nil && *vitals.TemperatureC >= th.TempSepsis {
		flags = append(flags, fmt.Sprintf("High fever (>= %.1f°C)", th.TempSepsis))
	}
	return triage.Dedupe(flags)
}

// RequiresVitals reports whether the symptom set puts the intake in the
// vitals-required group.
func (rb *Rulebook) RequiresVitals(symptoms []string) bool {
	set := toSet(symptoms)
	for _, tok := range rb.VitalsRequired {
		if _, ok := set[tok]; ok {
			return true
		}
	}
	return false
}

func highestSeverity(triggers []triage.SafetyTrigger) triage.Severity {
	var out triage.Severity
	for _, t := range triggers {
		switch t.Severity {
		case triage.SeverityCritical:
			return triage.SeverityCritical
		case triage.SeverityUrgent:
			out = triage.SeverityUrgent
		}
	}
	return out
}

func tierFromSeverity(sev triage.Severity) triage.RiskTier {
	switch sev {
	case triage.SeverityCritical:
		return triage.TierCritical
	case triage.SeverityUrgent:
		return triage.TierUrgent
	}
	return triage.TierRoutine
}

func rationale(tier triage.RiskTier, triggers []triage.SafetyTrigger) string {
	var dominant []string
	want := triage.SeverityCritical
	if tier == triage.TierUrgent {
		want = triage.SeverityUrgent
	}
	if tier == triage.TierRoutine {
		return "No urgent or critical safety triggers fired; routine disposition."
	}
	for _, t := range triggers {
		if t.Severity == want {
			dominant = append(dominant, t.Label)
		}
	}
	return fmt.Sprintf("%s tier driven by: %s.", capitalize(string(tier)), strings.Join(dominant, "; "))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
