package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/greyw0rks/genlayer-dispute-resolution/internal/record"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/store"
)

type snapshotDump struct {
	NextID uint64            `json:"next_id"`
	Cases  []record.CaseView `json:"cases"`
}

// Dump renders a snapshot as indented JSON, one field per line.
func Dump(s store.Snapshot) (string, error) {
	d := snapshotDump{NextID: s.NextID, Cases: make([]record.CaseView, 0, len(s.Cases))}
	for _, dc := range s.Cases {
		d.Cases = append(d.Cases, dc.View())
	}
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("dump snapshot: %w", err)
	}
	return string(b) + "\n", nil
}

// Diff returns a unified diff between two replicas' state, or "" when they
// have converged.
func Diff(a, b store.Snapshot) (string, error) {
	aDump, err := Dump(a)
	if err != nil {
		return "", err
	}
	bDump, err := Dump(b)
	if err != nil {
		return "", err
	}

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(aDump),
		B:        difflib.SplitLines(bDump),
		FromFile: "A",
		FromDate: "",
		ToFile:   "B",
		ToDate:   "",
		Context:  1,
	})
}
