// Package evidence implements the evidence & policy stage: it grounds
// recommendations in the loaded policy pack.
package evidence

import (
	"github.com/clinicaflow/go-triage/internal/domain/triage"
	"github.com/clinicaflow/go-triage/internal/policy"
)

// AgentName is the trace label of this stage.
const AgentName = "evidence_policy"

// Agent matches policies against the structured intake. Never errors at
// request time; an empty match yields no citations and no actions.
type Agent struct {
	snapshot *policy.Snapshot
	topK     int
}

// New builds the evidence agent over an immutable pack snapshot.
func New(snapshot *policy.Snapshot, topK int) *Agent {
	if topK <= 0 {
		topK = 2
	}
	return &Agent{snapshot: snapshot, topK: topK}
}

// Run selects up to topK matching policies in pack order and returns their
// deduplicated actions with citations.
func (a *Agent) Run(structured *triage.StructuredIntake, vitals triage.Vitals) *triage.EvidenceOutput {
	matched := a.snapshot.Match(structured, vitals, a.topK)

	var actions []string
	citations := make([]triage.ProtocolCitation, 0, len(matched))
	for _, pol := range matched {
		actions = append(actions, pol.RecommendedActions...)
		citations = append(citations, triage.ProtocolCitation{
			PolicyID:           pol.ID,
			Title:              pol.Title,
			Citation:           pol.Citation,
			RecommendedActions: append([]string(nil), pol.RecommendedActions...),
		})
	}

	return &triage.EvidenceOutput{
		RecommendedActionsFromPolicy: triage.Dedupe(actions),
		ProtocolCitations:            citations,
		PolicyPackSHA256:             a.snapshot.SHA256(),
		PolicyPackSource:             a.snapshot.Source(),
	}
}
