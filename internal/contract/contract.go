// Package contract is the dispute resolution case state machine and its
// public operations. Writes run through the ledger so every replica applying
// the same operations reaches the same state.
package contract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/greyw0rks/genlayer-dispute-resolution/internal/consensus"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/ledger"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/record"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/store"
	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/log"
)

const failurePrefix = "Failed to reach consensus on AI decision"

// Resolver runs the oracle pipeline for one request. *consensus.Engine
// implements it.
type Resolver interface {
	Resolve(ctx context.Context, req consensus.Request) (consensus.Result, []consensus.Proposal, error)
}

type Option func(*DisputeResolution)

func WithPolicy(p Policy) Option {
	return func(d *DisputeResolution) {
		d.policy = p
	}
}

// WithAttemptIDs replaces the attempt id source. Used by tests.
func WithAttemptIDs(next func() uuid.UUID) Option {
	return func(d *DisputeResolution) {
		d.newAttempt = next
	}
}

type DisputeResolution struct {
	ledger     *ledger.Ledger
	resolver   Resolver
	policy     Policy
	locks      *caseLocks
	newAttempt func() uuid.UUID
}

func New(l *ledger.Ledger, r Resolver, opts ...Option) *DisputeResolution {
	d := &DisputeResolution{
		ledger:     l,
		resolver:   r,
		policy:     Lenient,
		locks:      newCaseLocks(),
		newAttempt: uuid.New,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *DisputeResolution) Policy() Policy {
	return d.policy
}

// CreateCase appends a case awaiting evidence and returns its id.
func (d *DisputeResolution) CreateCase(plaintiff, defendant string) (uint64, error) {
	receipt, err := d.ledger.Execute("create_case", func(tx *store.Tx) (uint64, error) {
		dc, err := tx.Create(plaintiff, defendant)
		return dc.ID, err
	})
	if err != nil {
		return 0, fmt.Errorf("create case: %w", err)
	}
	log.Contract.Info().
		Uint64("case_id", receipt.CaseID).
		Str("plaintiff", plaintiff).
		Str("defendant", defendant).
		Msg("case created")
	return receipt.CaseID, nil
}

// SubmitEvidence stores evidence for one party, replacing earlier text. The
// case becomes ready for resolution once both parties have submitted.
func (d *DisputeResolution) SubmitEvidence(caseID uint64, party, evidence string) error {
	unlock := d.locks.lock(caseID)
	defer unlock()

	_, err := d.ledger.Execute("submit_evidence", func(tx *store.Tx) (uint64, error) {
		dc, err := getForWrite(tx, caseID)
		if err != nil {
			return caseID, err
		}
		if dc.Status.Terminal() {
			return caseID, ErrAlreadyResolved
		}
		p, ok := record.ParseParty(party)
		if !ok {
			return caseID, fmt.Errorf("%w: %q", ErrInvalidParty, party)
		}
		if strings.TrimSpace(evidence) == "" {
			return caseID, ErrEmptyEvidence
		}
		dc.SetEvidence(p, evidence)
		return caseID, tx.Put(dc)
	})
	if err != nil {
		return fmt.Errorf("submit evidence for case %d: %w", caseID, err)
	}
	log.Contract.Info().Uint64("case_id", caseID).Str("party", party).Msg("evidence submitted")
	return nil
}

// ResolveCase runs the oracle pipeline for a case that has both evidence
// fields and commits the canonical outcome.
//
// Under Lenient a pipeline failure is recorded as status error and nil is
// returned. Under Strict the failure is returned and nothing is written. If
// ctx ends before the outcome is committed nothing is written under either
// policy.
func (d *DisputeResolution) ResolveCase(ctx context.Context, caseID uint64) error {
	unlock := d.locks.lock(caseID)
	defer unlock()

	var snap frozen
	err := d.ledger.View(func(cases *store.Cases) error {
		dc, err := cases.Get(caseID)
		if err != nil {
			if errors.Is(err, store.ErrCaseNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := checkResolvable(dc); err != nil {
			return err
		}
		snap = freeze(dc)
		return nil
	})
	if err != nil {
		return fmt.Errorf("resolve case %d: %w", caseID, err)
	}

	prompt, err := judgePrompt.Render(snap)
	if err != nil {
		return fmt.Errorf("resolve case %d: %w", caseID, err)
	}
	req := consensus.Request{
		Attempt:  d.newAttempt(),
		CaseID:   caseID,
		Prompt:   prompt,
		Task:     ResolutionTask,
		Criteria: ResolutionCriteria,
		Context:  snap.fields(),
	}
	log.Contract.Info().
		Uint64("case_id", caseID).
		Str("attempt", req.Attempt.String()).
		Str("policy", d.policy.String()).
		Msg("resolution started")

	res, _, pipelineErr := d.resolver.Resolve(ctx, req)
	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Contract.Warn().Err(ctxErr).Uint64("case_id", caseID).Msg("resolution cancelled")
		return fmt.Errorf("resolve case %d: %w", caseID, ctxErr)
	}
	if pipelineErr != nil && d.policy == Strict {
		return fmt.Errorf("resolve case %d: %w", caseID, pipelineErr)
	}

	_, err = d.ledger.Execute("resolve_case", func(tx *store.Tx) (uint64, error) {
		dc, err := getForWrite(tx, caseID)
		if err != nil {
			return caseID, err
		}
		if err := checkResolvable(dc); err != nil {
			return caseID, err
		}
		if !snap.matches(dc) {
			return caseID, fmt.Errorf("case %d changed during resolution", caseID)
		}
		// The context may have ended while waiting for the ledger.
		if err := ctx.Err(); err != nil {
			return caseID, err
		}

		if pipelineErr != nil {
			dc.Status = record.StatusError
			dc.Reasoning = failurePrefix + ": " + pipelineErr.Error()
		} else {
			dc.Status = record.StatusResolved
			dc.Winner = res.Winner
			dc.Reasoning = res.Reasoning
		}
		return caseID, tx.Put(dc)
	})
	if err != nil {
		return fmt.Errorf("resolve case %d: %w", caseID, err)
	}

	if pipelineErr != nil {
		log.Contract.Warn().Err(pipelineErr).Uint64("case_id", caseID).Msg("resolution failed, case marked error")
		return nil
	}
	log.Contract.Info().
		Uint64("case_id", caseID).
		Str("winner", string(res.Winner)).
		Uints16("contributors", res.Contributors).
		Msg("case resolved")
	return nil
}

// GetCase returns the case view, or the empty view for an unknown id.
func (d *DisputeResolution) GetCase(caseID uint64) (record.CaseView, error) {
	var view record.CaseView
	err := d.ledger.View(func(cases *store.Cases) error {
		dc, err := cases.Get(caseID)
		if errors.Is(err, store.ErrCaseNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		view = dc.View()
		return nil
	})
	return view, err
}

// GetAllCases lists every case in id order.
func (d *DisputeResolution) GetAllCases() (record.CaseList, error) {
	list := record.CaseList{Cases: []record.CaseSummary{}}
	err := d.ledger.View(func(cases *store.Cases) error {
		all, err := cases.List()
		if err != nil {
			return err
		}
		for _, dc := range all {
			list.Cases = append(list.Cases, dc.Summary())
		}
		list.Total = len(list.Cases)
		return nil
	})
	return list, err
}

func (d *DisputeResolution) GetCaseCount() (uint64, error) {
	var n uint64
	err := d.ledger.View(func(cases *store.Cases) error {
		var err error
		n, err = cases.Count()
		return err
	})
	return n, err
}

func getForWrite(tx *store.Tx, caseID uint64) (record.DisputeCase, error) {
	dc, err := tx.Get(caseID)
	if errors.Is(err, store.ErrCaseNotFound) {
		return dc, ErrNotFound
	}
	return dc, err
}

func checkResolvable(dc record.DisputeCase) error {
	if dc.Status.Terminal() {
		return ErrAlreadyResolved
	}
	if dc.Status != record.StatusReadyForResolution {
		return ErrMissingEvidence
	}
	return nil
}
