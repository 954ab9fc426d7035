// Package audit builds downloadable audit bundles: the intake, the full
// result, a clinician note, and a manifest with per-file digests, optionally
// zipped for transport.
package audit

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clinicaflow/go-triage/internal/domain/triage"
)

// Manifest records bundle provenance and file integrity.
type Manifest struct {
	CreatedAt          string            `json:"created_at"`
	RequestID          string            `json:"request_id"`
	PipelineVersion    string            `json:"pipeline_version"`
	Redacted           bool              `json:"redacted"`
	PolicyPackSHA256   string            `json:"policy_pack_sha256,omitempty"`
	PolicyPackSource   string            `json:"policy_pack_source,omitempty"`
	SafetyRulesVersion string            `json:"safety_rules_version,omitempty"`
	FileHashesSHA256   map[string]string `json:"file_hashes_sha256"`
}

// BuildFiles assembles the bundle as in-memory files keyed by name. With
// redact=true demographics and free-text notes are dropped from the intake
// copy.
func BuildFiles(in *triage.Intake, result *triage.TriageResult, redact bool) (map[string][]byte, error) {
	intakeCopy := in.Clone()
	if redact {
		intakeCopy.Demographics = triage.Demographics{}
		intakeCopy.History = ""
		intakeCopy.PriorNotes = nil
		intakeCopy.ImageDescriptions = nil
		intakeCopy.ImageDataURLs = nil
	}

	intakeBytes, err := jsonBytes(intakeCopy)
	if err != nil {
		return nil, err
	}
	resultBytes, err := jsonBytes(result)
	if err != nil {
		return nil, err
	}

	files := map[string][]byte{
		"intake.json":        intakeBytes,
		"triage_result.json": resultBytes,
		"note.md":            noteMarkdown(result),
	}

	hashes := make(map[string]string, len(files))
	for name, data := range files {
		sum := sha256.Sum256(data)
		hashes[name] = hex.EncodeToString(sum[:])
	}

	manifest := Manifest{
		CreatedAt:        result.CreatedAt,
		RequestID:        result.RequestID,
		PipelineVersion:  result.PipelineVersion,
		Redacted:         redact,
		FileHashesSHA256: hashes,
	}
	if result.Evidence != nil {
		manifest.PolicyPackSHA256 = result.Evidence.PolicyPackSHA256
		manifest.PolicyPackSource = result.Evidence.PolicyPackSource
	}
	if result.Safety != nil {
		manifest.SafetyRulesVersion = result.Safety.SafetyRulesVersion
	}
	manifestBytes, err := jsonBytes(manifest)
	if err != nil {
		return nil, err
	}
	files["manifest.json"] = manifestBytes
	return files, nil
}

// WriteZip builds the bundle and writes it as a zip archive.
func WriteZip(in *triage.Intake, result *triage.TriageResult, redact bool) ([]byte, error) {
	files, err := BuildFiles(in, result, redact)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	// Stable member order: manifest first, then intake, result and note.
	names := []string{"manifest.json", "intake.json", "triage_result.json", "note.md"}
	for _, name := range names {
		data, ok := files[name]
		if !ok {
			continue
		}
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("zip create %s: %w", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("zip write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// noteMarkdown renders a clinician-facing markdown note.
func noteMarkdown(result *triage.TriageResult) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# Triage note %s\n\n", result.RequestID)
	fmt.Fprintf(&b, "- Created: %s\n", result.CreatedAt)
	fmt.Fprintf(&b, "- Risk tier: **%s**\n", result.RiskTier)
	fmt.Fprintf(&b, "- Escalation required: %t\n", result.EscalationRequired)
	fmt.Fprintf(&b, "- Confidence: %.2f\n\n", result.Confidence)

	if len(result.RedFlags) > 0 {
		b.WriteString("## Red flags\n\n")
		for _, f := range result.RedFlags {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}
	if len(result.RecommendedNextActions) > 0 {
		b.WriteString("## Recommended next actions\n\n")
		for i, a := range result.RecommendedNextActions {
			fmt.Fprintf(&b, "%d. %s\n", i+1, a)
		}
		b.WriteString("\n")
	}
	b.WriteString("## Clinician handoff\n\n")
	b.WriteString(result.ClinicianHandoff)
	b.WriteString("\n\n## Patient summary\n\n")
	b.WriteString(result.PatientSummary)
	b.WriteString("\n")
	return []byte(b.String())
}

func jsonBytes(v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal audit file: %w", err)
	}
	return data, nil
}
