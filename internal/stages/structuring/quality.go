package structuring

import (
	"fmt"

	"github.com/clinicaflow/go-triage/internal/domain/triage"
)

// qualityWarnings flags vitals outside plausible physiological ranges and
// demographic input errors. These never reject a request.
func qualityWarnings(in *triage.Intake) []string {
	var w []string

	if in.Demographics.Age == nil {
		w = append(w, "Age not provided")
	} else if *in.Demographics.Age < 0 {
		w = append(w, "Age < 0 (input error)")
	} else if *in.Demographics.Age > 120 {
		w = append(w, "Age > 120 (check units/input)")
	}

	v := in.Vitals
	if v.HeartRate != nil && (*v.HeartRate < 20 || *v.HeartRate > 250) {
		w = append(w, fmt.Sprintf("Heart rate %.0f out of plausible range (20-250)", *v.HeartRate))
	}
	if v.SystolicBP != nil && (*v.SystolicBP < 40 || *v.SystolicBP > 260) {
		w = append(w, fmt.Sprintf("Systolic BP %.0f out of plausible range (40-260)", *v.SystolicBP))
	}
	if v.SystolicBP != nil && v.DiastolicBP != nil && *v.DiastolicBP >= *v.SystolicBP {
		w = append(w, "Diastolic BP >= systolic BP (input error)")
	}
	if v.TemperatureC != nil && (*v.TemperatureC < 30 || *v.TemperatureC > 44) {
		w = append(w, fmt.Sprintf("Temperature %.1f°C out of plausible range (30-44)", *v.TemperatureC))
	}
	if v.SpO2 != nil && (*v.SpO2 < 0 || *v.SpO2 > 100) {
		w = append(w, fmt.Sprintf("SpO2 %.0f outside 0-100 (input error)", *v.SpO2))
	}
	if v.RespiratoryRate != nil && (*v.RespiratoryRate < 4 || *v.RespiratoryRate > 70) {
		w = append(w, fmt.Sprintf("Respiratory rate %.0f out of plausible range (4-70)", *v.RespiratoryRate))
	}

	return triage.Dedupe(w)
}
