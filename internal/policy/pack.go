// Package policy loads, validates, canonicalizes, and matches the versioned
// policy pack that grounds evidence recommendations.
package policy

import (
	"fmt"
	"strings"
)

// VitalPredicate compares a named vital against a constant.
type VitalPredicate struct {
	Field string  `json:"field"`
	Op    string  `json:"op"`
	Value float64 `json:"value"`
}

// Matchers is the predicate block of a policy. A policy matches when every
// present matcher succeeds.
type Matchers struct {
	SymptomsAllOf     []string         `json:"symptoms_all_of,omitempty"`
	SymptomsAnyOf     []string         `json:"symptoms_any_of,omitempty"`
	RiskFactorsAnyOf  []string         `json:"risk_factors_any_of,omitempty"`
	Vitals            []VitalPredicate `json:"vitals,omitempty"`
}

// Policy is one protocol snippet of the pack.
type Policy struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Citation           string   `json:"citation"`
	Matchers           Matchers `json:"matchers"`
	RecommendedActions []string `json:"recommended_actions"`
}

// Pack is the ordered, versioned policy collection.
type Pack struct {
	Version  string   `json:"version"`
	Policies []Policy `json:"policies"`
}

var validOps = map[string]struct{}{"<": {}, "<=": {}, ">": {}, ">=": {}, "==": {}}

var knownVitalFields = map[string]struct{}{
	"heart_rate":       {},
	"systolic_bp":      {},
	"diastolic_bp":     {},
	"temperature_c":    {},
	"spo2":             {},
	"respiratory_rate": {},
}

// Validate rejects malformed packs. Called once at load time; a failure here
// is fatal at startup.
func (p *Pack) Validate() error {
	if strings.TrimSpace(p.Version) == "" {
		return fmt.Errorf("policy pack: version is required")
	}
	if len(p.Policies) == 0 {
		return fmt.Errorf("policy pack: at least one policy is required")
	}
	seen := make(map[string]struct{}, len(p.Policies))
	for i, pol := range p.Policies {
		id := strings.TrimSpace(pol.ID)
		if id == "" {
			return fmt.Errorf("policy pack: policies[%d] has empty id", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("policy pack: duplicate policy id %q", id)
		}
		seen[id] = struct{}{}
		if len(pol.RecommendedActions) == 0 {
			return fmt.Errorf("policy %q: recommended_actions must be non-empty", id)
		}
		for _, a := range pol.RecommendedActions {
			if strings.TrimSpace(a) == "" {
				return fmt.Errorf("policy %q: blank recommended action", id)
			}
		}
		for _, vp := range pol.Matchers.Vitals {
			if _, ok := validOps[vp.Op]; !ok {
				return fmt.Errorf("policy %q: unknown vital op %q", id, vp.Op)
			}
			if _, ok := knownVitalFields[vp.Field]; !ok {
				return fmt.Errorf("policy %q: unknown vital field %q", id, vp.Field)
			}
		}
	}
	return nil
}
