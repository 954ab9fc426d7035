// Package reasoning implements the multimodal clinical reasoning stage: a
// deterministic differential table that is always available, optionally
// replaced by an external chat-completions backend with strict fallback.
package reasoning

import (
	"fmt"
	"strings"

	"github.com/clinicaflow/go-triage/internal/domain/triage"
)

// features are the boolean signals the fallback table keys on.
type features struct {
	symptoms       map[string]struct{}
	risks          map[string]struct{}
	hypotension    bool
	hypoxemia      bool
	shockIndexHigh bool
	fever          bool
}

func computeFeatures(structured *triage.StructuredIntake, vitals triage.Vitals) features {
	f := features{
		symptoms: make(map[string]struct{}, len(structured.Symptoms)),
		risks:    make(map[string]struct{}, len(structured.RiskFactors)),
	}
	for _, s := range structured.Symptoms {
		f.symptoms[s] = struct{}{}
	}
	for _, r := range structured.RiskFactors {
		f.risks[r] = struct{}{}
	}
	if vitals.SystolicBP != nil && *vitals.SystolicBP < 90 {
		f.hypotension = true
	}
	if vitals.SpO2 != nil && *vitals.SpO2 < 92 {
		f.hypoxemia = true
	}
	if vitals.HeartRate != nil && vitals.SystolicBP != nil && *vitals.SystolicBP > 0 &&
		*vitals.HeartRate / *vitals.SystolicBP >= 0.9 {
		f.shockIndexHigh = true
	}
	if vitals.TemperatureC != nil && *vitals.TemperatureC >= 38.0 {
		f.fever = true
	}
	return f
}

func (f features) has(token string) bool {
	_, ok := f.symptoms[token]
	return ok
}

func (f features) strokeSigns() bool {
	for _, tok := range []string{"slurred_speech", "facial_droop", "unilateral_weakness", "aphasia"} {
		if f.has(tok) {
			return true
		}
	}
	return false
}

// deterministicDifferential applies the ranked rule table in fixed order.
// Output is deduplicated and capped at six entries.
func deterministicDifferential(f features) []string {
	var out []string
	add := func(items ...string) { out = append(out, items...) }

	switch {
	case f.has("chest_pain") && (f.hypotension || f.shockIndexHigh):
		add("Acute coronary syndrome", "Aortic dissection", "Pulmonary embolism")
	case f.has("chest_pain"):
		add("Acute coronary syndrome", "Pulmonary embolism", "GERD", "Musculoskeletal chest pain")
	}
	switch {
	case f.has("dyspnea") && f.hypoxemia:
		add("Acute hypoxemic respiratory failure", "Pulmonary embolism", "Pneumonia", "Heart failure")
	case f.has("dyspnea"):
		add("Asthma/COPD exacerbation", "Pneumonia", "Heart failure")
	}
	if f.strokeSigns() {
		add("Acute ischemic stroke", "Transient ischemic attack", "Hypoglycemia", "Migraine with aura")
	}
	switch {
	case f.has("fever") && f.has("confusion"):
		add("Sepsis", "Meningitis or encephalitis", "Urinary tract infection with delirium")
	case f.has("confusion"):
		add("Metabolic encephalopathy", "Sepsis", "Intracranial pathology")
	case f.has("fever") && f.has("cough"):
		add("Community-acquired pneumonia", "Viral respiratory infection")
	case f.fever:
		add("Viral syndrome", "Early bacterial infection")
	}
	if f.has("hematemesis") || f.has("melena") {
		add("Upper gastrointestinal bleed", "Peptic ulcer disease", "Variceal hemorrhage")
	}
	if f.has("syncope") {
		add("Vasovagal syncope", "Cardiac arrhythmia", "Orthostatic hypotension")
	}
	if f.has("abdominal_pain") {
		add("Gastroenteritis", "Appendicitis", "Biliary colic")
	}
	if f.has("sore_throat") {
		add("Viral pharyngitis", "Streptococcal pharyngitis")
	}
	if f.has("severe_headache") {
		add("Subarachnoid hemorrhage", "Meningitis", "Migraine")
	} else if f.has("headache") {
		add("Tension headache", "Migraine")
	}

	if len(out) == 0 {
		add("Viral syndrome", "Medication side effect", "Dehydration")
	}
	out = triage.Dedupe(out)
	if len(out) > maxDifferentials {
		out = out[:maxDifferentials]
	}
	return out
}

const maxDifferentials = 6

// deterministicRationale templates a one-paragraph rationale from the same
// features that drove the table.
func deterministicRationale(f features, structured *triage.StructuredIntake) string {
	var drivers []string
	if len(structured.Symptoms) > 0 {
		drivers = append(drivers, "symptom pattern ("+strings.Join(structured.Symptoms, ", ")+")")
	}
	if f.hypotension {
		drivers = append(drivers, "hypotension")
	}
	if f.hypoxemia {
		drivers = append(drivers, "hypoxemia")
	}
	if f.shockIndexHigh {
		drivers = append(drivers, "elevated shock index")
	}
	if f.fever {
		drivers = append(drivers, "fever")
	}
	if len(structured.RiskFactors) > 0 {
		drivers = append(drivers, "risk factors ("+strings.Join(structured.RiskFactors, ", ")+")")
	}
	if len(drivers) == 0 {
		drivers = append(drivers, "the available intake signals")
	}
	return fmt.Sprintf(
		"Differential considerations are ranked deterministically from %s. "+
			"No diagnosis is made; clinician validation is required.",
		strings.Join(drivers, ", "))
}
