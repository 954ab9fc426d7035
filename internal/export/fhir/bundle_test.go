package fhir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicaflow/go-triage/internal/domain/triage"
)

func f(v float64) *float64 { return &v }

func TestBuildBundleShape(t *testing.T) {
	age := 61
	in := &triage.Intake{
		ChiefComplaint: "chest pain",
		Demographics:   triage.Demographics{Age: &age, Sex: "female"},
		Vitals:         triage.Vitals{HeartRate: f(128), SystolicBP: f(92)},
	}
	result := &triage.TriageResult{
		RequestID:                  "req-9",
		CreatedAt:                  "2026-02-01T00:00:00Z",
		RiskTier:                   triage.TierUrgent,
		DifferentialConsiderations: []string{"Acute coronary syndrome"},
		RedFlags:                   []string{"Potential acute coronary syndrome"},
		RecommendedNextActions:     []string{"Obtain 12-lead ECG within 10 minutes", "Urgent clinician review"},
		ClinicianHandoff:           "Situation: ...",
		PatientSummary:             "Seek emergency care immediately if ...",
	}

	bundle := BuildBundle(in, result, false)
	assert.Equal(t, "Bundle", bundle.ResourceType)
	assert.Equal(t, "req-9", bundle.Identifier.Value)

	// Patient + 2 observations + impression + communication + 2 tasks.
	require.Len(t, bundle.Entry, 7)

	patient, ok := bundle.Entry[0].Resource.(Patient)
	require.True(t, ok)
	assert.Equal(t, "female", patient.Gender)
	assert.Contains(t, patient.Text.Div, "Age 61")

	// Round-trips as JSON.
	data, err := json.Marshal(bundle)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"resourceType":"ClinicalImpression"`)
	assert.Contains(t, string(data), "decision support only, not a diagnosis")
}

func TestBuildBundleRedacted(t *testing.T) {
	age := 61
	in := &triage.Intake{
		ChiefComplaint: "chest pain",
		Demographics:   triage.Demographics{Age: &age, Sex: "female"},
	}
	result := &triage.TriageResult{RequestID: "req-9", RiskTier: triage.TierRoutine}

	bundle := BuildBundle(in, result, true)
	patient := bundle.Entry[0].Resource.(Patient)
	assert.Empty(t, patient.Gender)
	assert.Contains(t, patient.Text.Div, "Synthetic/demo patient")
	assert.NotContains(t, patient.Text.Div, "61")
}
