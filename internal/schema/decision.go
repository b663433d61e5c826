package schema

import (
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/record"
)

// DisputeDecisionSource is the acceptance rule for a dispute verdict.
const DisputeDecisionSource = `
winner:    "plaintiff" | "defendant"
reasoning: string & =~"\\S"
`

// DisputeDecision checks raw verdicts. Safe for concurrent use.
var DisputeDecision = MustCompile("dispute_decision.cue", DisputeDecisionSource)

// ParseDecision validates raw against DisputeDecision and returns the typed
// verdict. Any violation is a *SchemaError.
func ParseDecision(raw string) (record.Decision, error) {
	return DecisionFrom(DisputeDecision, raw)
}

// DecisionFrom validates raw against s, which must constrain winner and
// reasoning at least as tightly as DisputeDecision.
func DecisionFrom(s *Schema, raw string) (record.Decision, error) {
	obj, err := s.Validate(raw)
	if err != nil {
		return record.Decision{}, err
	}

	winnerText, _ := obj["winner"].(string)
	winner, ok := record.ParseParty(winnerText)
	if !ok {
		return record.Decision{}, &SchemaError{Raw: raw, Reason: "winner must be plaintiff or defendant"}
	}
	reasoning, ok := obj["reasoning"].(string)
	if !ok {
		return record.Decision{}, &SchemaError{Raw: raw, Reason: "reasoning must be text"}
	}
	return record.Decision{Winner: winner, Reasoning: reasoning}, nil
}
