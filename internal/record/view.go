package record

// CaseView is the get_case response. The zero value is returned for unknown
// ids.
type CaseView struct {
	CaseID            uint64 `json:"case_id"`
	Plaintiff         string `json:"plaintiff"`
	Defendant         string `json:"defendant"`
	PlaintiffEvidence string `json:"plaintiff_evidence"`
	DefendantEvidence string `json:"defendant_evidence"`
	Status            string `json:"status"`
	Winner            string `json:"winner"`
	Reasoning         string `json:"reasoning"`
}

// IsEmpty reports whether v is the default view for an unknown id.
func (v CaseView) IsEmpty() bool {
	return v == CaseView{}
}

func (c DisputeCase) View() CaseView {
	return CaseView{
		CaseID:            c.ID,
		Plaintiff:         c.Plaintiff,
		Defendant:         c.Defendant,
		PlaintiffEvidence: c.PlaintiffEvidence,
		DefendantEvidence: c.DefendantEvidence,
		Status:            c.Status.String(),
		Winner:            string(c.Winner),
		Reasoning:         c.Reasoning,
	}
}

type CaseSummary struct {
	CaseID    uint64 `json:"case_id"`
	Plaintiff string `json:"plaintiff"`
	Defendant string `json:"defendant"`
	Status    string `json:"status"`
	Winner    string `json:"winner"`
}

func (c DisputeCase) Summary() CaseSummary {
	return CaseSummary{
		CaseID:    c.ID,
		Plaintiff: c.Plaintiff,
		Defendant: c.Defendant,
		Status:    c.Status.String(),
		Winner:    string(c.Winner),
	}
}

// CaseList is the get_all_cases response, ordered by id.
type CaseList struct {
	Total int           `json:"total"`
	Cases []CaseSummary `json:"cases"`
}
