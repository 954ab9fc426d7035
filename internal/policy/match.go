package policy

import (
	"github.com/clinicaflow/go-triage/internal/domain/triage"
)

// Match evaluates all policies in pack order against the structured intake
// and vitals, returning up to topK matches in pack order. A policy matches
// when every present matcher block succeeds; a vital predicate over an absent
// vital fails.
func (s *Snapshot) Match(structured *triage.StructuredIntake, vitals triage.Vitals, topK int) []Policy {
	if topK <= 0 {
		topK = 2
	}
	symptoms := toSet(structured.Symptoms)
	risks := toSet(structured.RiskFactors)

	var matched []Policy
	for _, pol := range s.pack.Policies {
		if !evalMatchers(pol.Matchers, symptoms, risks, vitals) {
			continue
		}
		matched = append(matched, pol)
		if len(matched) == topK {
			break
		}
	}
	return matched
}

func evalMatchers(m Matchers, symptoms, risks map[string]struct{}, vitals triage.Vitals) bool {
	for _, want := range m.SymptomsAllOf {
		if _, ok := symptoms[want]; !ok {
			return false
		}
	}
	if len(m.SymptomsAnyOf) > 0 && !anyIn(m.SymptomsAnyOf, symptoms) {
		return false
	}
	if len(m.RiskFactorsAnyOf) > 0 && !anyIn(m.RiskFactorsAnyOf, risks) {
		return false
	}
	for _, vp := range m.Vitals {
		val := vitalValue(vitals, vp.Field)
		if val == nil || !compare(*val, vp.Op, vp.Value) {
			return false
		}
	}
	return true
}

func vitalValue(v triage.Vitals, field string) *float64 {
	switch field {
	case "heart_rate":
		return v.HeartRate
	case "systolic_bp":
		return v.SystolicBP
	case "diastolic_bp":
		return v.DiastolicBP
	case "temperature_c":
		return v.TemperatureC
	case "spo2":
		return v.SpO2
	case "respiratory_rate":
		return v.RespiratoryRate
	}
	return nil
}

func compare(val float64, op string, ref float64) bool {
	switch op {
	case "<":
		return val < ref
	case "<=":
		return val <= ref
	case ">":
		return val > ref
	case ">=":
		return val >= ref
	case "==":
		return val == ref
	}
	return false
}

func anyIn(wanted []string, set map[string]struct{}) bool {
	for _, w := range wanted {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
