package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicaflow/go-triage/internal/domain/triage"
	"github.com/clinicaflow/go-triage/internal/safety/rulebook"
)

func f(v float64) *float64 { return &v }

func TestSafetyActionsPrependedAndDeduplicated(t *testing.T) {
	agent := New(rulebook.Default())
	in := &triage.Intake{
		ChiefComplaint: "chest pain",
		Vitals:         triage.Vitals{HeartRate: f(90), SystolicBP: f(120), SpO2: f(97), TemperatureC: f(37)},
	}
	structured := &triage.StructuredIntake{Symptoms: []string{"chest_pain"}}
	evidenceActions := []string{
		"Obtain 12-lead ECG within 10 minutes", // duplicate of a mandated action
		"Draw troponin and repeat per serial protocol",
	}

	out := agent.Run(in, structured, &triage.ReasoningOutput{}, evidenceActions)
	merged := MergedActions(out, evidenceActions)

	require.NotEmpty(t, out.ActionsAddedBySafety)
	assert.Equal(t, "Obtain 12-lead ECG within 10 minutes", merged[0])

	// Duplicate-free, and every safety action is present in the final list.
	seen := map[string]int{}
	for _, a := range merged {
		seen[a]++
	}
	for a, n := range seen {
		assert.Equal(t, 1, n, "duplicated action %q", a)
	}
	for _, a := range out.ActionsAddedBySafety {
		assert.Contains(t, merged, a)
	}
	assert.Contains(t, merged, "Draw troponin and repeat per serial protocol")
}

func TestEscalationRequiredMatchesTier(t *testing.T) {
	agent := New(rulebook.Default())

	urgent := agent.Run(
		&triage.Intake{ChiefComplaint: "chest pain", Vitals: triage.Vitals{HeartRate: f(80), SystolicBP: f(130), SpO2: f(98), TemperatureC: f(37)}},
		&triage.StructuredIntake{Symptoms: []string{"chest_pain"}},
		&triage.ReasoningOutput{}, nil)
	assert.Equal(t, triage.TierUrgent, urgent.RiskTier)
	assert.True(t, urgent.EscalationRequired)

	routine := agent.Run(
		&triage.Intake{ChiefComplaint: "sore throat"},
		&triage.StructuredIntake{Symptoms: []string{"sore_throat"}},
		&triage.ReasoningOutput{}, nil)
	assert.Equal(t, triage.TierRoutine, routine.RiskTier)
	assert.False(t, routine.EscalationRequired)
}

func TestUncertaintyReasons(t *testing.T) {
	agent := New(rulebook.Default())

	out := agent.Run(
		&triage.Intake{ChiefComplaint: "chest pain"},
		&triage.StructuredIntake{
			Symptoms:              []string{"chest_pain"},
			MissingCriticalFields: []string{"vitals.heart_rate", "vitals.systolic_bp"},
		},
		&triage.ReasoningOutput{ReasoningBackendError: "connection refused"},
		nil)

	require.NotEmpty(t, out.UncertaintyReasons)
	assert.Contains(t, out.UncertaintyReasons[0], "Missing critical intake fields")
	assert.Contains(t, out.UncertaintyReasons, "Chest pain reported without a complete vitals set")
	assert.Contains(t, out.UncertaintyReasons, "External reasoning errored; deterministic fallback used")
}

func TestSafetyRulesVersionRecorded(t *testing.T) {
	agent := New(rulebook.Default())
	out := agent.Run(&triage.Intake{ChiefComplaint: "x"}, &triage.StructuredIntake{}, &triage.ReasoningOutput{}, nil)
	assert.Equal(t, rulebook.Version, out.SafetyRulesVersion)
}
