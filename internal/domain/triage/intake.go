package triage

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError reports a rejected intake with a machine-readable reason.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("intake_invalid (%s): %s", e.Reason, e.Message)
}

var imageDataURLPattern = regexp.MustCompile(`^data:image/[a-zA-Z+.\-]+;base64,`)

// Validate checks the structural constraints the pipeline requires before the
// first stage runs. Unknown JSON fields are ignored at decode time; only the
// documented constraints reject a request.
func (in *Intake) Validate() error {
	if strings.TrimSpace(in.ChiefComplaint) == "" {
		return &ValidationError{
			Reason:  "missing_chief_complaint",
			Message: "chief_complaint must be non-empty after trimming",
		}
	}
	for i, u := range in.ImageDataURLs {
		if !imageDataURLPattern.MatchString(u) {
			return &ValidationError{
				Reason:  "invalid_image_data_url",
				Message: fmt.Sprintf("image_data_urls[%d] is not a base64 image data URI", i),
			}
		}
	}
	return nil
}

// CombinedText concatenates the free-text sections in a stable order for
// keyword matching. Empty sections are skipped.
func (in *Intake) CombinedText() string {
	parts := make([]string, 0, 2+len(in.PriorNotes)+len(in.ImageDescriptions))
	parts = append(parts, in.ChiefComplaint, in.History)
	parts = append(parts, in.PriorNotes...)
	parts = append(parts, in.ImageDescriptions...)

	sections := parts[:0:0]
	for _, part := range parts {
		if t := strings.TrimSpace(part); t != "" {
			sections = append(sections, t)
		}
	}
	return strings.Join(sections, "\n")
}

// Clone returns a deep copy so stages can never mutate a caller's intake.
func (in *Intake) Clone() *Intake {
	out := *in
	out.Vitals = in.Vitals.Clone()
	out.ImageDescriptions = append([]string(nil), in.ImageDescriptions...)
	out.ImageDataURLs = append([]string(nil), in.ImageDataURLs...)
	out.PriorNotes = append([]string(nil), in.PriorNotes...)
	if in.Demographics.Age != nil {
		age := *in.Demographics.Age
		out.Demographics.Age = &age
	}
	return &out
}

// Clone returns a deep copy of the vitals.
func (v Vitals) Clone() Vitals {
	cp := func(p *float64) *float64 {
		if p == nil {
			return nil
		}
		val := *p
		return &val
	}
	return Vitals{
		HeartRate:       cp(v.HeartRate),
		SystolicBP:      cp(v.SystolicBP),
		DiastolicBP:     cp(v.DiastolicBP),
		TemperatureC:    cp(v.TemperatureC),
		SpO2:            cp(v.SpO2),
		RespiratoryRate: cp(v.RespiratoryRate),
	}
}

// Dedupe returns items with duplicates removed, first occurrence wins.
func Dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
