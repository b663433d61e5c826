// Package record holds the replicated dispute case and its read views.
package record

import (
	"fmt"
)

// Status is the lifecycle position of a case. Values only move forward.
type Status uint8

const (
	StatusAwaitingEvidence Status = iota
	StatusReadyForResolution
	StatusResolved
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusAwaitingEvidence:
		return "awaiting_evidence"
	case StatusReadyForResolution:
		return "ready_for_resolution"
	case StatusResolved:
		return "resolved"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusError
}

// Party is one side of a dispute. The empty party is used for an unset winner.
type Party string

const (
	PartyNone      Party = ""
	PartyPlaintiff Party = "plaintiff"
	PartyDefendant Party = "defendant"
)

// ParseParty accepts exactly "plaintiff" or "defendant".
func ParseParty(s string) (Party, bool) {
	switch Party(s) {
	case PartyPlaintiff, PartyDefendant:
		return Party(s), true
	default:
		return PartyNone, false
	}
}

// DisputeCase is the persisted record. Field order is the canonical encoding
// order and must not change.
type DisputeCase struct {
	ID                uint64 `jam:"encoding=compact"`
	Plaintiff         string
	Defendant         string
	PlaintiffEvidence string
	DefendantEvidence string
	Status            Status
	Winner            Party
	Reasoning         string
}

// New returns a case awaiting evidence from both parties.
func New(id uint64, plaintiff, defendant string) DisputeCase {
	return DisputeCase{
		ID:        id,
		Plaintiff: plaintiff,
		Defendant: defendant,
		Status:    StatusAwaitingEvidence,
	}
}

// HasAllEvidence reports whether both parties have submitted non-empty text.
func (c DisputeCase) HasAllEvidence() bool {
	return c.PlaintiffEvidence != "" && c.DefendantEvidence != ""
}

// Evidence returns the evidence field for p.
func (c DisputeCase) Evidence(p Party) string {
	switch p {
	case PartyPlaintiff:
		return c.PlaintiffEvidence
	case PartyDefendant:
		return c.DefendantEvidence
	default:
		return ""
	}
}

// SetEvidence stores text for p and advances to ready_for_resolution once
// both sides are present. It never moves a case backwards.
func (c *DisputeCase) SetEvidence(p Party, text string) {
	switch p {
	case PartyPlaintiff:
		c.PlaintiffEvidence = text
	case PartyDefendant:
		c.DefendantEvidence = text
	default:
		return
	}
	if c.Status == StatusAwaitingEvidence && c.HasAllEvidence() {
		c.Status = StatusReadyForResolution
	}
}

// Decision is the decision-bearing output of one oracle call once it has
// passed the schema check.
type Decision struct {
	Winner    Party
	Reasoning string
}
