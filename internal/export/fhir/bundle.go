// Package fhir exports a triage result as a minimal FHIR R4 Bundle for
// interoperability with downstream EHR tooling. No definitive diagnoses are
// asserted; the ClinicalImpression carries the decision-support summary.
package fhir

import (
	"fmt"

	"github.com/clinicaflow/go-triage/internal/domain/triage"
)

// Bundle is a FHIR collection bundle.
type Bundle struct {
	ResourceType string     `json:"resourceType"`
	Type         string     `json:"type"`
	Timestamp    string     `json:"timestamp"`
	Identifier   Identifier `json:"identifier"`
	Entry        []Entry    `json:"entry"`
}

// Entry wraps one resource.
type Entry struct {
	Resource interface{} `json:"resource"`
}

// Identifier is a FHIR identifier.
type Identifier struct {
	System string `json:"system"`
	Value  string `json:"value"`
}

// Narrative is generated display text.
type Narrative struct {
	Status string `json:"status"`
	Div    string `json:"div"`
}

// Patient is the minimal patient resource.
type Patient struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id"`
	Text         Narrative    `json:"text"`
	Identifier   []Identifier `json:"identifier"`
	Gender       string       `json:"gender,omitempty"`
}

// Quantity is a FHIR quantity value.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// CodeableConcept is a coded value with display text.
type CodeableConcept struct {
	Text string `json:"text"`
}

// Observation carries one vital sign.
type Observation struct {
	ResourceType  string          `json:"resourceType"`
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	Code          CodeableConcept `json:"code"`
	Subject       Reference       `json:"subject"`
	ValueQuantity Quantity        `json:"valueQuantity"`
}

// Reference points at another bundle resource.
type Reference struct {
	Reference string `json:"reference"`
}

// ClinicalImpression summarizes the triage assessment.
type ClinicalImpression struct {
	ResourceType string          `json:"resourceType"`
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Subject      Reference       `json:"subject"`
	Summary      string          `json:"summary"`
	Finding      []Finding       `json:"finding,omitempty"`
	Note         []Annotation    `json:"note,omitempty"`
	Code         CodeableConcept `json:"code"`
}

// Finding is one differential consideration.
type Finding struct {
	ItemCodeableConcept CodeableConcept `json:"itemCodeableConcept"`
}

// Annotation is a free-text note.
type Annotation struct {
	Text string `json:"text"`
}

// Communication carries the patient-facing summary.
type Communication struct {
	ResourceType string    `json:"resourceType"`
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	Subject      Reference `json:"subject"`
	Payload      []Payload `json:"payload"`
}

// Payload is one communication content item.
type Payload struct {
	ContentString string `json:"contentString"`
}

// Task is one recommended next action.
type Task struct {
	ResourceType string          `json:"resourceType"`
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Intent       string          `json:"intent"`
	Code         CodeableConcept `json:"code"`
	For          Reference       `json:"for"`
}

const requestIDSystem = "urn:triage:request_id"

// BuildBundle assembles the bundle. With redact=true demographics and
// free-text narrative are omitted.
func BuildBundle(in *triage.Intake, result *triage.TriageResult, redact bool) Bundle {
	patientRef := Reference{Reference: "Patient/patient"}

	entries := []Entry{{Resource: patientResource(in, result.RequestID, redact)}}
	for _, obs := range vitalsObservations(in.Vitals, patientRef) {
		entries = append(entries, Entry{Resource: obs})
	}
	entries = append(entries,
		Entry{Resource: impression(result, patientRef)},
		Entry{Resource: patientCommunication(result, patientRef)},
	)
	for i, action := range result.RecommendedNextActions {
		entries = append(entries, Entry{Resource: Task{
			ResourceType: "Task",
			ID:           fmt.Sprintf("action-%d", i+1),
			Status:       "requested",
			Intent:       "proposal",
			Code:         CodeableConcept{Text: action},
			For:          patientRef,
		}})
	}

	return Bundle{
		ResourceType: "Bundle",
		Type:         "collection",
		Timestamp:    result.CreatedAt,
		Identifier:   Identifier{System: requestIDSystem, Value: result.RequestID},
		Entry:        entries,
	}
}

func patientResource(in *triage.Intake, requestID string, redact bool) Patient {
	narrative := "Synthetic/demo patient"
	gender := ""
	if !redact {
		sex := in.Demographics.Sex
		switch sex {
		case "male", "female", "other", "unknown":
			gender = sex
		}
		var bits []string
		if in.Demographics.Age != nil {
			bits = append(bits, fmt.Sprintf("Age %d", *in.Demographics.Age))
		}
		if sex != "" {
			bits = append(bits, "Sex "+sex)
		}
		if len(bits) > 0 {
			narrative = bits[0]
			for _, b := range bits[1:] {
				narrative += ", " + b
			}
		}
	}
	return Patient{
		ResourceType: "Patient",
		ID:           "patient",
		Text: Narrative{
			Status: "generated",
			Div:    fmt.Sprintf("<div xmlns=\"http://www.w3.org/1999/xhtml\">%s</div>", narrative),
		},
		Identifier: []Identifier{{System: requestIDSystem, Value: requestID}},
		Gender:     gender,
	}
}

func vitalsObservations(v triage.Vitals, subject Reference) []Observation {
	type vital struct {
		id    string
		label string
		unit  string
		value *float64
	}
	vitals := []vital{
		{"heart-rate", "Heart rate", "beats/min", v.HeartRate},
		{"systolic-bp", "Systolic blood pressure", "mmHg", v.SystolicBP},
		{"diastolic-bp", "Diastolic blood pressure", "mmHg", v.DiastolicBP},
		{"body-temperature", "Body temperature", "Cel", v.TemperatureC},
		{"oxygen-saturation", "Oxygen saturation", "%", v.SpO2},
		{"respiratory-rate", "Respiratory rate", "breaths/min", v.RespiratoryRate},
	}

	var out []Observation
	for _, vt := range vitals {
		if vt.value == nil {
			continue
		}
		out = append(out, Observation{
			ResourceType:  "Observation",
			ID:            vt.id,
			Status:        "final",
			Code:          CodeableConcept{Text: vt.label},
			Subject:       subject,
			ValueQuantity: Quantity{Value: *vt.value, Unit: vt.unit},
		})
	}
	return out
}

func impression(result *triage.TriageResult, subject Reference) ClinicalImpression {
	var findings []Finding
	for _, d := range result.DifferentialConsiderations {
		findings = append(findings, Finding{ItemCodeableConcept: CodeableConcept{Text: d}})
	}
	var notes []Annotation
	for _, f := range result.RedFlags {
		notes = append(notes, Annotation{Text: "Red flag: " + f})
	}
	return ClinicalImpression{
		ResourceType: "ClinicalImpression",
		ID:           "triage-impression",
		Status:       "completed",
		Subject:      subject,
		Summary: fmt.Sprintf("Risk tier %s (decision support only, not a diagnosis). %s",
			result.RiskTier, result.ClinicianHandoff),
		Finding: findings,
		Note:    notes,
		Code:    CodeableConcept{Text: "Triage decision support"},
	}
}

func patientCommunication(result *triage.TriageResult, subject Reference) Communication {
	return Communication{
		ResourceType: "Communication",
		ID:           "patient-summary",
		Status:       "completed",
		Subject:      subject,
		Payload:      []Payload{{ContentString: result.PatientSummary}},
	}
}
