// Package structuring implements the intake structuring stage: canonical
// symptom and risk-factor extraction with negation handling, data-quality
// warnings, PHI heuristics, and the normalized summary.
package structuring

// CatalogEntry maps one canonical token to the keyword set that detects it.
// Catalog declaration order fixes the output ordering of extracted tokens.
type CatalogEntry struct {
	Token    string
	Keywords []string
}

// SymptomCatalog is the fixed symptom lexicon.
var SymptomCatalog = []CatalogEntry{
	{Token: "chest_pain", Keywords: []string{"chest pain", "chest tightness", "tightness in chest", "chest pressure", "crushing chest"}},
	{Token: "dyspnea", Keywords: []string{"shortness of breath", "short of breath", "dyspnea", "cannot catch breath", "can't catch breath", "difficulty breathing", "trouble breathing"}},
	{Token: "cough", Keywords: []string{"cough"}},
	{Token: "fever", Keywords: []string{"fever", "febrile", "chills"}},
	{Token: "sore_throat", Keywords: []string{"sore throat", "throat pain", "pharyngitis"}},
	{Token: "severe_headache", Keywords: []string{"worst headache", "thunderclap headache", "severe headache"}},
	{Token: "headache", Keywords: []string{"headache"}},
	{Token: "dizziness", Keywords: []string{"dizzy", "dizziness", "lightheaded", "vertigo"}},
	{Token: "syncope", Keywords: []string{"syncope", "fainted", "fainting", "passed out", "blacked out", "loss of consciousness"}},
	{Token: "palpitations", Keywords: []string{"palpitations", "heart racing", "racing heart"}},
	{Token: "nausea", Keywords: []string{"nausea", "nauseous", "nauseated"}},
	{Token: "vomiting", Keywords: []string{"vomiting", "vomited", "throwing up"}},
	{Token: "hematemesis", Keywords: []string{"vomiting blood", "vomited blood", "hematemesis", "coffee-ground emesis"}},
	{Token: "melena", Keywords: []string{"melena", "black stool", "black tarry stool", "bloody stool"}},
	{Token: "abdominal_pain", Keywords: []string{"abdominal pain", "stomach pain", "belly pain"}},
	{Token: "vaginal_bleeding", Keywords: []string{"vaginal bleeding", "vaginal spotting"}},
	{Token: "bleeding", Keywords: []string{"bleeding", "blood loss"}},
	{Token: "rash", Keywords: []string{"rash", "hives"}},
	{Token: "blurred_vision", Keywords: []string{"blurred vision", "blurry vision", "vision loss", "double vision"}},
	{Token: "slurred_speech", Keywords: []string{"slurred speech", "slurring", "garbled speech"}},
	{Token: "facial_droop", Keywords: []string{"facial droop", "face drooping", "drooping face"}},
	{Token: "unilateral_weakness", Keywords: []string{"arm weakness", "leg weakness", "weakness on one side", "one-sided weakness", "weakness one side", "hemiparesis"}},
	{Token: "aphasia", Keywords: []string{"aphasia", "word-finding difficulty", "cannot find words", "unable to speak"}},
	{Token: "confusion", Keywords: []string{"confusion", "confused", "altered mental status", "disoriented", "not making sense"}},
	{Token: "leg_swelling", Keywords: []string{"leg swelling", "swollen leg", "calf swelling"}},
}

// RiskFactorCatalog is the fixed risk-factor lexicon.
var RiskFactorCatalog = []CatalogEntry{
	{Token: "diabetes", Keywords: []string{"diabetes", "diabetic", "t2dm"}},
	{Token: "hypertension", Keywords: []string{"hypertension", "htn", "high blood pressure"}},
	{Token: "hyperlipidemia", Keywords: []string{"hyperlipidemia", "high cholesterol"}},
	{Token: "pregnancy", Keywords: []string{"pregnant", "pregnancy", "weeks gestation"}},
	{Token: "anticoagulation", Keywords: []string{"anticoagulant", "anticoagulation", "blood thinner", "warfarin", "apixaban", "rivaroxaban", "eliquis", "xarelto"}},
	{Token: "immunocompromised", Keywords: []string{"immunocompromised", "immunosuppressed", "chemotherapy", "transplant recipient"}},
	{Token: "prior_mi", Keywords: []string{"prior mi", "previous heart attack", "history of mi", "known cad", "coronary artery disease"}},
	{Token: "prior_stroke", Keywords: []string{"prior stroke", "previous stroke", "history of stroke", "prior tia"}},
	{Token: "copd", Keywords: []string{"copd", "emphysema", "chronic bronchitis"}},
	{Token: "asthma", Keywords: []string{"asthma", "asthmatic"}},
	{Token: "ckd", Keywords: []string{"ckd", "chronic kidney disease", "dialysis"}},
	{Token: "cancer", Keywords: []string{"cancer", "malignancy"}},
	{Token: "smoker", Keywords: []string{"smoker", "smoking"}},
}

// negationCues suppress a keyword matched within the negation window. The
// window size itself is a rulebook parameter.
var negationCues = []string{"no", "denies", "without", "not", "negative for"}
