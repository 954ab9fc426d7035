package structuring

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicaflow/go-triage/internal/domain/triage"
	"github.com/clinicaflow/go-triage/internal/safety/rulebook"
)

func f(v float64) *float64 { return &v }

func newAgent() *Agent { return New(rulebook.Default()) }

func TestSymptomExtraction(t *testing.T) {
	in := &triage.Intake{
		ChiefComplaint: "Crushing chest pain and shortness of breath",
		History:        "Patient has diabetes and hypertension.",
	}
	out := newAgent().Run(in)

	assert.Equal(t, []string{"chest_pain", "dyspnea"}, out.Symptoms)
	assert.Equal(t, []string{"diabetes", "hypertension"}, out.RiskFactors)
}

func TestExtractionOrderFollowsCatalog(t *testing.T) {
	// Fever appears before chest pain in the text but after it in the catalog.
	in := &triage.Intake{ChiefComplaint: "fever, then chest pain started"}
	out := newAgent().Run(in)
	assert.Equal(t, []string{"chest_pain", "fever"}, out.Symptoms)
}

func TestNegationSuppressesMatch(t *testing.T) {
	cases := []struct {
		name string
		text string
		want bool
	}{
		{"plain match", "patient reports chest pain", true},
		{"denies", "patient denies chest pain", false},
		{"no", "no chest pain today", false},
		{"negative for", "negative for chest pain", false},
		{"without", "without chest pain or pressure", false},
		{"cue outside window", "denies any nausea but has had worsening crushing chest pain", true},
	}
	agent := newAgent()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := agent.Run(&triage.Intake{ChiefComplaint: tc.text})
			got := false
			for _, s := range out.Symptoms {
				if s == "chest_pain" {
					got = true
				}
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestUnicodeNormalization(t *testing.T) {
	// Curly apostrophe and doubled spaces must still match after folding.
	in := &triage.Intake{ChiefComplaint: "can’t   catch  breath"}
	out := newAgent().Run(in)
	assert.Contains(t, out.Symptoms, "dyspnea")
}

func TestPHIHitsRecordFieldAndPatternOnly(t *testing.T) {
	in := &triage.Intake{
		ChiefComplaint: "Fever and cough",
		History:        "Contact: test@example.com, call (415) 555-1212",
		PriorNotes:     []string{"SSN 123-45-6789 on file"},
	}
	out := newAgent().Run(in)

	assert.Equal(t, []string{"history:email", "history:phone", "prior_notes:ssn"}, out.PHIHits)
	for _, hit := range out.PHIHits {
		assert.NotContains(t, hit, "example.com")
		assert.NotContains(t, hit, "6789")
	}
}

func TestQualityWarnings(t *testing.T) {
	age := 130
	in := &triage.Intake{
		ChiefComplaint: "dizzy",
		Demographics:   triage.Demographics{Age: &age},
		Vitals: triage.Vitals{
			HeartRate:       f(300),
			SystolicBP:      f(30),
			TemperatureC:    f(98.6), // Fahrenheit slipped in
			SpO2:            f(104),
			RespiratoryRate: f(2),
		},
	}
	out := newAgent().Run(in)
	require.Len(t, out.DataQualityWarnings, 6)
	assert.Contains(t, out.DataQualityWarnings[0], "Age > 120")
}

func TestMissingCriticalFieldsOnlyForVitalsRequiredSymptoms(t *testing.T) {
	agent := newAgent()

	// Chest pain requires the full vitals set.
	out := agent.Run(&triage.Intake{ChiefComplaint: "chest pain"})
	assert.Equal(t, []string{
		"vitals.heart_rate", "vitals.systolic_bp", "vitals.spo2", "vitals.temperature_c",
	}, out.MissingCriticalFields)

	// A rash does not.
	out = agent.Run(&triage.Intake{ChiefComplaint: "itchy rash on arm"})
	assert.Empty(t, out.MissingCriticalFields)

	// Present vitals are not missing.
	out = agent.Run(&triage.Intake{
		ChiefComplaint: "chest pain",
		Vitals:         triage.Vitals{HeartRate: f(80), SystolicBP: f(120), SpO2: f(98), TemperatureC: f(37)},
	})
	assert.Empty(t, out.MissingCriticalFields)
}

func TestNormalizedSummary(t *testing.T) {
	in := &triage.Intake{
		ChiefComplaint: "Chest pain",
		History:        "Diabetic, on insulin",
		Vitals:         triage.Vitals{HeartRate: f(128), SystolicBP: f(82), DiastolicBP: f(58), TemperatureC: f(37), SpO2: f(94), RespiratoryRate: f(22)},
	}
	out := newAgent().Run(in)
	assert.Equal(t,
		"CC: Chest pain | Hx: Diabetic, on insulin | Vitals: HR=128, BP=82/58, Temp=37.0C, SpO2=94%, RR=22 | Symptoms: chest_pain | RiskFactors: diabetes",
		out.NormalizedSummary)
}

func TestRunIsDeterministicAndDoesNotMutateInput(t *testing.T) {
	in := &triage.Intake{
		ChiefComplaint: "chest pain",
		History:        "denies fever",
		PriorNotes:     []string{"prior episode last week"},
	}
	agent := newAgent()
	first := agent.Run(in)
	second := agent.Run(in)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("structuring not deterministic (-first +second):\n%s", diff)
	}
	assert.Equal(t, "chest pain", in.ChiefComplaint)
	assert.Equal(t, []string{"prior episode last week"}, in.PriorNotes)
}
