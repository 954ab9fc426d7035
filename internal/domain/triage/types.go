// Package triage defines the data model shared by all pipeline stages.
package triage

import "time"

// RiskTier is the triage disposition tier.
type RiskTier string

const (
	TierRoutine  RiskTier = "routine"
	TierUrgent   RiskTier = "urgent"
	TierCritical RiskTier = "critical"
)

// Severity grades a safety trigger.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityUrgent   Severity = "urgent"
	SeverityInfo     Severity = "info"
)

// Backend identifies which implementation produced a stage output.
type Backend string

const (
	BackendDeterministic Backend = "deterministic"
	BackendExternal      Backend = "external"
)

// Vitals holds the structured vital signs of an intake. Unknown values are
// nil, never sentinel numbers.
type Vitals struct {
	HeartRate       *float64 `json:"heart_rate,omitempty"`
	SystolicBP      *float64 `json:"systolic_bp,omitempty"`
	DiastolicBP     *float64 `json:"diastolic_bp,omitempty"`
	TemperatureC    *float64 `json:"temperature_c,omitempty"`
	SpO2            *float64 `json:"spo2,omitempty"`
	RespiratoryRate *float64 `json:"respiratory_rate,omitempty"`
}

// Demographics carries the minimal patient demographics used by triage.
type Demographics struct {
	Age *int   `json:"age,omitempty"`
	Sex string `json:"sex,omitempty"`
}

// Intake is the raw patient intake submitted by a caller.
type Intake struct {
	ChiefComplaint    string       `json:"chief_complaint"`
	History           string       `json:"history,omitempty"`
	Demographics      Demographics `json:"demographics,omitempty"`
	Vitals            Vitals       `json:"vitals,omitempty"`
	ImageDescriptions []string     `json:"image_descriptions,omitempty"`
	ImageDataURLs     []string     `json:"image_data_urls,omitempty"`
	PriorNotes        []string     `json:"prior_notes,omitempty"`
}

// StructuredIntake is the normalized view produced by the structuring stage.
type StructuredIntake struct {
	NormalizedSummary    string   `json:"normalized_summary"`
	Symptoms             []string `json:"symptoms"`
	RiskFactors          []string `json:"risk_factors"`
	MissingCriticalFields []string `json:"missing_critical_fields"`
	DataQualityWarnings  []string `json:"data_quality_warnings"`
	// PHIHits lists "field:pattern_name" pairs only; raw matches are never
	// recorded anywhere.
	PHIHits []string `json:"phi_hits"`
}

// ReasoningOutput is the differential + rationale produced by the reasoning
// stage, either deterministically or by an external backend.
type ReasoningOutput struct {
	DifferentialConsiderations []string `json:"differential_considerations"`
	ReasoningRationale         string   `json:"reasoning_rationale"`
	ReasoningBackend           Backend  `json:"reasoning_backend"`
	ReasoningBackendModel      string   `json:"reasoning_backend_model,omitempty"`
	ReasoningPromptVersion     string   `json:"reasoning_prompt_version"`
	ImagesPresent              int      `json:"images_present"`
	ImagesSent                 int      `json:"images_sent"`
	ReasoningBackendError      string   `json:"reasoning_backend_error,omitempty"`
	ReasoningBackendSkipped    string   `json:"reasoning_backend_skipped_reason,omitempty"`
}

// ProtocolCitation references a matched policy and its recommendations.
type ProtocolCitation struct {
	PolicyID           string   `json:"policy_id"`
	Title              string   `json:"title"`
	Citation           string   `json:"citation"`
	RecommendedActions []string `json:"recommended_actions"`
}

// EvidenceOutput grounds recommendations in the loaded policy pack.
type EvidenceOutput struct {
	RecommendedActionsFromPolicy []string           `json:"recommended_actions_from_policy"`
	ProtocolCitations            []ProtocolCitation `json:"protocol_citations"`
	PolicyPackSHA256             string             `json:"policy_pack_sha256"`
	PolicyPackSource             string             `json:"policy_pack_source"`
}

// SafetyTrigger is one fired deterministic rule.
type SafetyTrigger struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`
}

// RiskScores holds the interpretable bedside scores.
type RiskScores struct {
	ShockIndex     *float64 `json:"shock_index,omitempty"`
	ShockIndexHigh bool     `json:"shock_index_high"`
	QSOFA          int      `json:"qsofa"`
	QSOFAHighRisk  bool     `json:"qsofa_high_risk"`
}

// SafetyOutput is the deterministic escalation decision.
type SafetyOutput struct {
	RiskTier             RiskTier        `json:"risk_tier"`
	EscalationRequired   bool            `json:"escalation_required"`
	RedFlags             []string        `json:"red_flags"`
	SafetyTriggers       []SafetyTrigger `json:"safety_triggers"`
	ActionsAddedBySafety []string        `json:"actions_added_by_safety"`
	RiskTierRationale    string          `json:"risk_tier_rationale"`
	RiskScores           RiskScores      `json:"risk_scores"`
	UncertaintyReasons   []string        `json:"uncertainty_reasons"`
	SafetyRulesVersion   string          `json:"safety_rules_version"`
}

// CommunicationOutput holds the clinician handoff and patient instructions.
type CommunicationOutput struct {
	ClinicianHandoff            string  `json:"clinician_handoff"`
	PatientSummary              string  `json:"patient_summary"`
	CommunicationBackend        Backend `json:"communication_backend"`
	CommunicationBackendModel   string  `json:"communication_backend_model,omitempty"`
	CommunicationPromptVersion  string  `json:"communication_prompt_version"`
	CommunicationBackendError   string  `json:"communication_backend_error,omitempty"`
	CommunicationBackendSkipped string  `json:"communication_backend_skipped_reason,omitempty"`
}

// TraceEntry records one stage execution for the audit trail.
type TraceEntry struct {
	Agent     string      `json:"agent"`
	LatencyMS int64       `json:"latency_ms"`
	Output    interface{} `json:"output"`
	Error     string      `json:"error,omitempty"`
}

// TriageResult aggregates all stage outputs into the caller-facing record.
type TriageResult struct {
	RequestID                  string       `json:"request_id"`
	CreatedAt                  string       `json:"created_at"`
	PipelineVersion            string       `json:"pipeline_version"`
	TotalLatencyMS             int64        `json:"total_latency_ms"`
	RiskTier                   RiskTier     `json:"risk_tier"`
	EscalationRequired         bool         `json:"escalation_required"`
	Confidence                 float64      `json:"confidence"`
	DifferentialConsiderations []string     `json:"differential_considerations"`
	RedFlags                   []string     `json:"red_flags"`
	RecommendedNextActions     []string     `json:"recommended_next_actions"`
	ClinicianHandoff           string       `json:"clinician_handoff"`
	PatientSummary             string       `json:"patient_summary"`
	UncertaintyReasons         []string     `json:"uncertainty_reasons"`
	Structured                 *StructuredIntake    `json:"structured_intake,omitempty"`
	Reasoning                  *ReasoningOutput     `json:"reasoning,omitempty"`
	Evidence                   *EvidenceOutput      `json:"evidence,omitempty"`
	Safety                     *SafetyOutput        `json:"safety,omitempty"`
	Communication              *CommunicationOutput `json:"communication,omitempty"`
	Trace                      []TraceEntry `json:"trace"`
}

// UTCNowISO returns the current time formatted the way results record it.
func UTCNowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
