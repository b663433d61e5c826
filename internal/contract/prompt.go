package contract

import (
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/consensus"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/oracle"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/record"
)

const (
	ResolutionTask     = "Analyze dispute evidence and determine the winner"
	ResolutionCriteria = "Must return valid JSON with 'winner' (plaintiff/defendant) and 'reasoning' fields"
)

const judgePromptText = `You are an impartial AI judge analyzing a dispute between two parties.

CASE DETAILS:
Plaintiff: {{.Plaintiff}}
Plaintiff's Evidence: {{.PlaintiffEvidence}}

Defendant: {{.Defendant}}
Defendant's Evidence: {{.DefendantEvidence}}

TASK:
Analyze both sides objectively. Consider:
1. Strength and credibility of evidence
2. Logical consistency of arguments
3. Fairness and reasonableness of claims
4. Patterns of good faith or bad faith

Determine who has the stronger case.

RESPONSE FORMAT (must be valid JSON):
{
    "winner": "plaintiff" or "defendant",
    "reasoning": "Your brief explanation (2-3 sentences)"
}

Return ONLY the JSON object. No markdown formatting, no additional text.`

var judgePrompt = oracle.MustTemplate("dispute", judgePromptText)

// frozen is the part of a case the oracle sees. It is copied out of the
// store before any oracle call.
type frozen struct {
	CaseID            uint64
	Plaintiff         string
	Defendant         string
	PlaintiffEvidence string
	DefendantEvidence string
}

func freeze(dc record.DisputeCase) frozen {
	return frozen{
		CaseID:            dc.ID,
		Plaintiff:         dc.Plaintiff,
		Defendant:         dc.Defendant,
		PlaintiffEvidence: dc.PlaintiffEvidence,
		DefendantEvidence: dc.DefendantEvidence,
	}
}

func (f frozen) matches(dc record.DisputeCase) bool {
	return f == freeze(dc)
}

func (f frozen) fields() []consensus.Field {
	return []consensus.Field{
		{Key: "plaintiff", Value: f.Plaintiff},
		{Key: "plaintiff_evidence", Value: f.PlaintiffEvidence},
		{Key: "defendant", Value: f.Defendant},
		{Key: "defendant_evidence", Value: f.DefendantEvidence},
	}
}
