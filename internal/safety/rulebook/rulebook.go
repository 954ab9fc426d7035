// Package rulebook implements the versioned, deterministic safety rulebook:
// trigger catalog, vitals thresholds, red-flag keyword mappings, and risk
// scores. Given identical inputs and rulebook version the evaluation is
// bit-identical.
package rulebook

import (
	"github.com/clinicaflow/go-triage/internal/domain/triage"
)

// Version identifies the rule catalog shipped with this build.
const Version = "safety-rules/2026.02.1"

// Category groups triggers for the multi-category escalation rule.
type Category string

const (
	CategoryCardiac     Category = "cardiac"
	CategoryRespiratory Category = "respiratory"
	CategoryNeuro       Category = "neuro"
	CategoryHemodynamic Category = "hemodynamic"
	CategoryInfectious  Category = "infectious"
	CategoryGI          Category = "gi"
	CategoryObstetric   Category = "obstetric"
)

// Thresholds holds the vitals cut-offs referenced by triggers and scores.
type Thresholds struct {
	SpO2Urgent        float64 `json:"spo2_urgent"`
	SpO2Critical      float64 `json:"spo2_critical"`
	SBPHypotension    float64 `json:"sbp_hypotension"`
	HRSevere          float64 `json:"hr_severe"`
	TempSepsis        float64 `json:"temp_sepsis"`
	ShockIndexHigh    float64 `json:"shock_index_high"`
	QSOFARespRate     float64 `json:"qsofa_resp_rate"`
	QSOFASystolicBP   float64 `json:"qsofa_systolic_bp"`
	QSOFAHighRiskMin  int     `json:"qsofa_high_risk_min"`
}

// Trigger is one deterministic rule. The predicate is resolved by ID at
// evaluation time; the declarative fields are what the read-only JSON view
// exposes.
type Trigger struct {
	ID             string          `json:"id"`
	Label          string          `json:"label"`
	Severity       triage.Severity `json:"severity"`
	Detail         string          `json:"detail"`
	Category       Category        `json:"category"`
	MandatedActions []string       `json:"mandated_actions"`
}

// Rulebook is the immutable rule catalog. Safe for concurrent reads.
type Rulebook struct {
	Version string `json:"version"`
	// NegationWindow is the word-span checked for negation cues ahead of a
	// matched keyword during intake structuring.
	NegationWindow int        `json:"negation_window"`
	Thresholds     Thresholds `json:"thresholds"`
	Triggers       []Trigger  `json:"triggers"`
	// RedFlagKeywords maps symptom tokens to human-readable red-flag phrases.
	RedFlagKeywords map[string]string `json:"red_flag_keywords"`
	// VitalsRequired lists symptom tokens whose presence makes HR, SBP, SpO2
	// and temperature critical intake fields.
	VitalsRequired []string `json:"vitals_required"`
	// AlteredMentationSymptoms contribute the mentation point of qSOFA.
	AlteredMentationSymptoms []string `json:"altered_mentation_symptoms"`
	// StrokeSymptoms are the focal-deficit tokens counted by the stroke rule.
	StrokeSymptoms []string `json:"stroke_symptoms"`
	// BleedingSymptoms are the tokens counted as bleeding for the obstetric rule.
	BleedingSymptoms []string `json:"bleeding_symptoms"`
}

// Default returns the built-in rulebook.
func Default() *Rulebook {
	return &Rulebook{
		Version:        Version,
		NegationWindow: 4,
		Thresholds: Thresholds{
			SpO2Urgent:       92,
			SpO2Critical:     88,
			SBPHypotension:   90,
			HRSevere:         130,
			TempSepsis:       39.5,
			ShockIndexHigh:   0.9,
			QSOFARespRate:    22,
			QSOFASystolicBP:  100,
			QSOFAHighRiskMin: 2,
		},
		Triggers: []Trigger{
			{
				ID:       "cardiopulmonary_red_flag",
				Label:    "Chest pain red flag",
				Severity: triage.SeverityUrgent,
				Detail:   "Chest pain reported; acute coronary syndrome must be excluded",
				Category: CategoryCardiac,
				MandatedActions: []string{
					"Obtain 12-lead ECG within 10 minutes",
					"Establish IV access and continuous cardiac monitoring",
				},
			},
			{
				ID:       "stroke_red_flag",
				Label:    "Acute focal neurological deficit",
				Severity: triage.SeverityUrgent,
				Detail:   "Focal deficit suggestive of stroke",
				Category: CategoryNeuro,
				MandatedActions: []string{
					"Document time of symptom onset (last known well)",
					"Emergent neurological evaluation and stroke pathway activation",
				},
			},
			{
				ID:       "hypoxemia",
				Label:    "Hypoxemia",
				Severity: triage.SeverityUrgent,
				Detail:   "Oxygen saturation below urgent threshold",
				Category: CategoryRespiratory,
				MandatedActions: []string{
					"Apply supplemental oxygen and reassess saturation",
				},
			},
			{
				ID:       "hypotension",
				Label:    "Hypotension",
				Severity: triage.SeverityCritical,
				Detail:   "Systolic blood pressure below shock threshold",
				Category: CategoryHemodynamic,
				MandatedActions: []string{
					"Establish IV access and begin fluid resuscitation per protocol",
					"Immediate clinician assessment at bedside",
				},
			},
			{
				ID:       "tachycardia_severe",
				Label:    "Severe tachycardia",
				Severity: triage.SeverityUrgent,
				Detail:   "Heart rate at or above severe threshold",
				Category: CategoryCardiac,
				MandatedActions: []string{
					"Continuous cardiac monitoring and 12-lead ECG",
				},
			},
			{
				ID:       "fever_sepsis",
				Label:    "High fever",
				Severity: triage.SeverityUrgent,
				Detail:   "Temperature at or above sepsis-concern threshold",
				Category: CategoryInfectious,
				MandatedActions: []string{
					"Obtain blood cultures and serum lactate",
				},
			},
			{
				ID:       "hemodynamic_combo",
				Label:    "Chest pain with hypoxemia",
				Severity: triage.SeverityCritical,
				Detail:   "Concurrent chest pain and hypoxemia",
				Category: CategoryHemodynamic,
				MandatedActions: []string{
					"Immediate clinician assessment at bedside",
				},
			},
			{
				ID:       "pregnancy_bleeding",
				Label:    "Bleeding in pregnancy",
				Severity: triage.SeverityUrgent,
				Detail:   "Bleeding with known pregnancy",
				Category: CategoryObstetric,
				MandatedActions: []string{
					"Urgent obstetric consultation",
				},
			},
			{
				ID:       "gi_bleed",
				Label:    "Gastrointestinal bleeding",
				Severity: triage.SeverityUrgent,
				Detail:   "Hematemesis or melena reported",
				Category: CategoryGI,
				MandatedActions: []string{
					"Establish two large-bore IV lines",
					"Type and crossmatch",
				},
			},
			{
				ID:       "syncope",
				Label:    "Syncope",
				Severity: triage.SeverityUrgent,
				Detail:   "Transient loss of consciousness reported",
				Category: CategoryCardiac,
				MandatedActions: []string{
					"Obtain 12-lead ECG and orthostatic vital signs",
				},
			},
		},
		RedFlagKeywords: map[string]string{
			"chest_pain":          "Potential acute coronary syndrome",
			"dyspnea":             "Respiratory compromise risk",
			"confusion":           "Possible neurological or metabolic emergency",
			"syncope":             "Syncope requiring urgent evaluation",
			"severe_headache":     "Possible intracranial pathology",
			"slurred_speech":      "Possible stroke",
			"facial_droop":        "Possible stroke",
			"unilateral_weakness": "Possible stroke",
			"aphasia":             "Possible stroke",
			"hematemesis":         "Possible upper GI bleed",
			"melena":              "Possible gastrointestinal bleed",
			"vaginal_bleeding":    "Possible obstetric emergency",
		},
		VitalsRequired: []string{
			"chest_pain", "dyspnea", "syncope", "fever", "confusion", "palpitations",
		},
		AlteredMentationSymptoms: []string{"confusion"},
		StrokeSymptoms: []string{
			"slurred_speech", "facial_droop", "unilateral_weakness", "aphasia",
		},
		BleedingSymptoms: []string{
			"vaginal_bleeding", "bleeding", "hematemesis", "melena",
		},
	}
}
