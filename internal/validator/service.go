// Package validator runs the per-validator half of a resolution: one oracle
// call followed by the equivalence check, with no shared mutable state.
package validator

import (
	"context"

	"github.com/greyw0rks/genlayer-dispute-resolution/internal/consensus"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/equivalence"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/oracle"
)

// Service is a validator that calls its own oracle.
type Service struct {
	id      uint16
	invoker oracle.Invoker
	equiv   equivalence.Validator
}

var _ consensus.Validator = (*Service)(nil)

func NewService(id uint16, invoker oracle.Invoker, equiv equivalence.Validator) *Service {
	if equiv == nil {
		equiv = equivalence.SchemaCheck{}
	}
	return &Service{id: id, invoker: invoker, equiv: equiv}
}

// NewServices builds count validators with ids 0..count-1. newInvoker is
// called once per validator.
func NewServices(count int, newInvoker func(id uint16) oracle.Invoker, equiv equivalence.Validator) []consensus.Validator {
	out := make([]consensus.Validator, 0, count)
	for i := 0; i < count; i++ {
		id := uint16(i)
		out = append(out, NewService(id, newInvoker(id), equiv))
	}
	return out
}

func (s *Service) ID() uint16 {
	return s.id
}

// Propose never fails: oracle and schema errors become invalid proposals.
func (s *Service) Propose(ctx context.Context, req consensus.Request) consensus.Proposal {
	raw, err := s.invoker.Invoke(ctx, req.Prompt)
	if err != nil {
		return consensus.Invalid(s.id, "", oracle.Classify(ctx, err).Error())
	}

	d, err := s.equiv.Accept(ctx, raw, equivalence.Task{Description: req.Task, Criteria: req.Criteria})
	if err != nil {
		return consensus.Invalid(s.id, raw, err.Error())
	}
	return consensus.Accepted(s.id, raw, d)
}
