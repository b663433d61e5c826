package consensus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/greyw0rks/genlayer-dispute-resolution/pkg/log"
)

var (
	ErrNoValidators   = errors.New("no validators configured")
	ErrDuplicateID    = errors.New("duplicate validator id")
	ErrInvalidQuorum  = errors.New("quorum fraction must be in (0, 1)")
	ErrInvalidTimeout = errors.New("validator timeout must be positive")
)

const (
	reasonTimeout       = "timeout"
	reasonMissingResult = "no decision in valid proposal"
)

// Validator produces one proposal per request. Propose must not mutate shared
// state; failures are reported as invalid proposals, not errors.
type Validator interface {
	ID() uint16
	Propose(ctx context.Context, req Request) Proposal
}

type Config struct {
	Quorum  float64
	Timeout time.Duration
}

// Engine fans a request out to every validator and aggregates the replies.
type Engine struct {
	validators []Validator
	quorum     float64
	timeout    time.Duration
}

func NewEngine(validators []Validator, cfg Config) (*Engine, error) {
	if len(validators) == 0 {
		return nil, ErrNoValidators
	}
	if cfg.Quorum <= 0 || cfg.Quorum >= 1 {
		return nil, ErrInvalidQuorum
	}
	if cfg.Timeout <= 0 {
		return nil, ErrInvalidTimeout
	}
	ids := make(map[uint16]struct{}, len(validators))
	for _, v := range validators {
		if _, ok := ids[v.ID()]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateID, v.ID())
		}
		ids[v.ID()] = struct{}{}
	}
	return &Engine{
		validators: append([]Validator(nil), validators...),
		quorum:     cfg.Quorum,
		timeout:    cfg.Timeout,
	}, nil
}

// Size is the number of validators votes are counted against.
func (e *Engine) Size() int {
	return len(e.validators)
}

// Gather asks every validator in parallel. A validator that misses its
// timeout yields an invalid proposal. If ctx ends first, Gather returns its
// error and no proposals.
func (e *Engine) Gather(ctx context.Context, req Request) ([]Proposal, error) {
	proposals := make([]Proposal, len(e.validators))

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range e.validators {
		g.Go(func() error {
			p, err := e.propose(gctx, v, req)
			if err != nil {
				return err
			}
			proposals[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(proposals, func(i, j int) bool {
		return proposals[i].ValidatorID < proposals[j].ValidatorID
	})
	return proposals, nil
}

func (e *Engine) propose(ctx context.Context, v Validator, req Request) (Proposal, error) {
	vctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ch := make(chan Proposal, 1)
	go func() {
		ch <- v.Propose(vctx, req)
	}()

	var p Proposal
	select {
	case p = <-ch:
	case <-vctx.Done():
		if ctx.Err() != nil {
			return Proposal{}, ctx.Err()
		}
		p = Invalid(v.ID(), "", reasonTimeout)
	}
	if ctx.Err() != nil {
		return Proposal{}, ctx.Err()
	}
	if p.ValidatorID != v.ID() {
		// A proposal always counts for the validator that was asked.
		p.ValidatorID = v.ID()
	}
	if p.Valid && p.Decision == nil {
		p = Invalid(v.ID(), p.Raw, reasonMissingResult)
	}

	ev := log.Consensus.Debug()
	if !p.Valid {
		ev = log.Consensus.Info().Str("reason", p.Reason)
	}
	ev.Str("attempt", req.Attempt.String()).
		Uint64("case_id", req.CaseID).
		Uint16("validator", p.ValidatorID).
		Bool("valid", p.Valid).
		Msg("proposal")
	return p, nil
}

// Resolve gathers proposals and aggregates them. The proposals are returned
// alongside the result for diagnostics, including on *ConsensusError.
func (e *Engine) Resolve(ctx context.Context, req Request) (Result, []Proposal, error) {
	proposals, err := e.Gather(ctx, req)
	if err != nil {
		return Result{}, nil, err
	}

	res, err := Aggregate(req.CaseID, proposals, len(e.validators), e.quorum)
	if err != nil {
		log.Consensus.Warn().Err(err).Str("attempt", req.Attempt.String()).Msg("consensus failed")
		return res, proposals, err
	}
	log.Consensus.Info().
		Str("attempt", req.Attempt.String()).
		Uint64("case_id", req.CaseID).
		Str("winner", string(res.Winner)).
		Int("agreeing", len(res.Contributors)).
		Int("validators", len(e.validators)).
		Msg("consensus reached")
	return res, proposals, nil
}
