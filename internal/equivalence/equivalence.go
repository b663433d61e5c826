// Package equivalence decides whether one validator's oracle output is
// acceptable. Each output is judged on its own against a task and criteria,
// never by comparison with another validator's output.
package equivalence

import (
	"context"
	"errors"
	"fmt"

	"github.com/greyw0rks/genlayer-dispute-resolution/internal/oracle"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/record"
	"github.com/greyw0rks/genlayer-dispute-resolution/internal/schema"
)

var ErrRejected = errors.New("rejected by equivalence judge")

// Task is what the output was supposed to achieve.
type Task struct {
	Description string
	Criteria    string
}

// Validator accepts or rejects a raw output. A nil error means accepted.
type Validator interface {
	Accept(ctx context.Context, raw string, task Task) (record.Decision, error)
}

// SchemaCheck is the mandatory deterministic baseline: the output is
// accepted iff it parses and satisfies the decision schema.
type SchemaCheck struct {
	Schema *schema.Schema
}

func (s SchemaCheck) Accept(_ context.Context, raw string, _ Task) (record.Decision, error) {
	sch := s.Schema
	if sch == nil {
		sch = schema.DisputeDecision
	}
	return schema.DecisionFrom(sch, raw)
}

const judgePromptText = `You are checking whether an AI output satisfies a task.

TASK:
{{.Task}}

CRITERIA:
{{.Criteria}}

OUTPUT:
{{.Output}}

Does the output satisfy the criteria? Respond with ONLY the JSON object {"accept": true} or {"accept": false}.`

var (
	judgePrompt  = oracle.MustTemplate("judge", judgePromptText)
	acceptSchema = schema.MustCompile("judge_verdict.cue", `accept: bool`)
)

// Judged runs the schema baseline and then asks an independent oracle call
// whether the output meets the criteria. Any failure of the second call
// rejects the output.
type Judged struct {
	Base  Validator
	Judge oracle.Invoker
}

func (j Judged) Accept(ctx context.Context, raw string, task Task) (record.Decision, error) {
	base := j.Base
	if base == nil {
		base = SchemaCheck{}
	}
	d, err := base.Accept(ctx, raw, task)
	if err != nil {
		return record.Decision{}, err
	}

	prompt, err := judgePrompt.Render(struct {
		Task, Criteria, Output string
	}{task.Description, task.Criteria, schema.StripFences(raw)})
	if err != nil {
		return record.Decision{}, err
	}

	verdict, err := j.Judge.Invoke(ctx, prompt)
	if err != nil {
		return record.Decision{}, fmt.Errorf("%w: judge call: %w", ErrRejected, err)
	}
	obj, err := acceptSchema.Validate(verdict)
	if err != nil {
		return record.Decision{}, fmt.Errorf("%w: %w", ErrRejected, err)
	}
	if accept, _ := obj["accept"].(bool); !accept {
		return record.Decision{}, ErrRejected
	}
	return d, nil
}
