package structuring

import (
	"regexp"

	"github.com/clinicaflow/go-triage/internal/domain/triage"
)

// PHI detection is heuristic: category labels only are recorded, never the
// matched substring.

type phiPattern struct {
	name    string
	pattern *regexp.Regexp
}

var phiPatterns = []phiPattern{
	{"email", regexp.MustCompile(`(?i)\b[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}\b`)},
	{"phone", regexp.MustCompile(`(\+?1[\s.-]?)?(\(\d{3}\)|\d{3})[\s.-]?\d{3}[\s.-]?\d{4}\b`)},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"mrn", regexp.MustCompile(`(?i)\b(mrn|medical\s*record\s*(number|no\.?))\b\s*[:#-]?\s*\d{5,}\b`)},
	{"dob", regexp.MustCompile(`(?i)\b(dob|date\s*of\s*birth)\b\s*[:#-]?\s*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}[/-]\d{1,2}[/-]\d{1,2})\b`)},
}

// detectPHI scans the free-text fields of the intake and returns ordered,
// deduplicated "field:pattern_name" pairs.
func detectPHI(in *triage.Intake) []string {
	fields := []struct {
		name string
		text []string
	}{
		{"chief_complaint", []string{in.ChiefComplaint}},
		{"history", []string{in.History}},
		{"prior_notes", in.PriorNotes},
		{"image_descriptions", in.ImageDescriptions},
	}

	var hits []string
	for _, f := range fields {
		for _, p := range phiPatterns {
			for _, text := range f.text {
				if text != "" && p.pattern.MatchString(text) {
					hits = append(hits, f.name+":"+p.name)
					break
				}
			}
		}
	}
	return triage.Dedupe(hits)
}
