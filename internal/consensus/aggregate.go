package consensus

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/greyw0rks/genlayer-dispute-resolution/internal/record"
)

// DefaultQuorum requires a simple majority of all validators.
const DefaultQuorum = 0.5

var ErrNoQuorum = errors.New("no quorum")

// ConsensusError reports a tally where no group reached quorum.
type ConsensusError struct {
	CaseID uint64
	Valid  int
	Total  int
	Tally  map[record.Party]int
}

func (e *ConsensusError) Error() string {
	parties := make([]string, 0, len(e.Tally))
	for p := range e.Tally {
		parties = append(parties, string(p))
	}
	sort.Strings(parties)
	tally := make([]string, 0, len(parties))
	for _, p := range parties {
		tally = append(tally, fmt.Sprintf("%s=%d", p, e.Tally[record.Party(p)]))
	}
	return fmt.Sprintf("%s for case %d: %d valid of %d validators [%s]",
		ErrNoQuorum, e.CaseID, e.Valid, e.Total, strings.Join(tally, " "))
}

func (e *ConsensusError) Unwrap() error {
	return ErrNoQuorum
}

type group struct {
	winner record.Party
	ids    []uint16
	byID   map[uint16]record.Decision
}

// Aggregate deterministically selects the canonical decision. The output
// depends only on the set of proposals, never on their order.
//
// Invalid proposals are dropped, as are all proposals from a validator id
// that appears more than once. The rest are grouped by winner. The largest
// group wins if its size is strictly greater than quorum*total; equal sizes
// go to the group holding the lowest validator id. Reasoning comes from the
// lowest id in the winning group.
func Aggregate(caseID uint64, proposals []Proposal, total int, quorum float64) (Result, error) {
	seen := make(map[uint16]int, len(proposals))
	for _, p := range proposals {
		seen[p.ValidatorID]++
	}
	if len(seen) > total {
		total = len(seen)
	}

	groups := make(map[record.Party]*group)
	valid := 0
	for _, p := range proposals {
		if seen[p.ValidatorID] > 1 || !p.Valid || p.Decision == nil {
			continue
		}
		if _, ok := record.ParseParty(string(p.Decision.Winner)); !ok {
			continue
		}
		valid++
		g, ok := groups[p.Decision.Winner]
		if !ok {
			g = &group{winner: p.Decision.Winner, byID: make(map[uint16]record.Decision)}
			groups[p.Decision.Winner] = g
		}
		g.ids = append(g.ids, p.ValidatorID)
		g.byID[p.ValidatorID] = *p.Decision
	}

	var best *group
	for _, g := range groups {
		sort.Slice(g.ids, func(i, j int) bool { return g.ids[i] < g.ids[j] })
		if best == nil ||
			len(g.ids) > len(best.ids) ||
			(len(g.ids) == len(best.ids) && g.ids[0] < best.ids[0]) {
			best = g
		}
	}

	if best == nil || float64(len(best.ids)) <= quorum*float64(total) {
		tally := make(map[record.Party]int, len(groups))
		for w, g := range groups {
			tally[w] = len(g.ids)
		}
		return Result{CaseID: caseID}, &ConsensusError{CaseID: caseID, Valid: valid, Total: total, Tally: tally}
	}

	return Result{
		CaseID:       caseID,
		Winner:       best.winner,
		Reasoning:    best.byID[best.ids[0]].Reasoning,
		Contributors: best.ids,
		Finalized:    true,
	}, nil
}
