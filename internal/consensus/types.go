// Package consensus reconciles independent oracle results into one canonical
// decision. Gathering is parallel and side-effect free; aggregation is a pure
// function of the gathered proposals.
package consensus

import (
	"github.com/google/uuid"

	"github.com/greyw0rks/genlayer-dispute-resolution/internal/record"
)

// Field is one frozen context value. Order is significant.
type Field struct {
	Key   string
	Value string
}

// Request is everything a validator needs for one resolution attempt. It is
// built from frozen case state before any oracle call is issued.
type Request struct {
	Attempt  uuid.UUID
	CaseID   uint64 `jam:"encoding=compact"`
	Prompt   string
	Task     string
	Criteria string
	Context  []Field
}

// Proposal is one validator's vote. Invalid proposals carry the reason they
// were rejected and never contribute to a result.
type Proposal struct {
	ValidatorID uint16
	Raw         string
	Decision    *record.Decision
	Valid       bool
	Reason      string
}

// Invalid builds a rejected proposal.
func Invalid(id uint16, raw, reason string) Proposal {
	return Proposal{ValidatorID: id, Raw: raw, Reason: reason}
}

// Accepted builds a valid proposal.
func Accepted(id uint16, raw string, d record.Decision) Proposal {
	return Proposal{ValidatorID: id, Raw: raw, Decision: &d, Valid: true}
}

// Result is the canonical outcome. It only lives until it is folded into the
// case record.
type Result struct {
	CaseID       uint64
	Winner       record.Party
	Reasoning    string
	Contributors []uint16
	Finalized    bool
}
