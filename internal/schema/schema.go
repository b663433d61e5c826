// Package schema turns raw oracle output into a typed value or rejects it.
// Acceptance rules are written in CUE and checked against the decoded JSON
// object.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

var ErrSchema = errors.New("schema violation")

// SchemaError explains why one raw result was rejected. It only invalidates
// that result, never the resolution as a whole.
type SchemaError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrSchema, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrSchema, e.Reason)
}

func (e *SchemaError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSchema}
	}
	return []error{ErrSchema, e.Err}
}

// Schema is a compiled CUE constraint. A cue.Context is not safe for
// concurrent use, so every check holds mu.
type Schema struct {
	mu    sync.Mutex
	name  string
	ctx   *cue.Context
	value cue.Value
}

// Compile builds a Schema from CUE source.
func Compile(name, src string) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(name))
	if v.Err() != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, v.Err())
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &Schema{name: name, ctx: ctx, value: v}, nil
}

func MustCompile(name, src string) *Schema {
	s, err := Compile(name, src)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string {
	return s.name
}

// Validate strips formatting wrappers from raw, decodes it as a single JSON
// object and checks it against the schema. Every field the schema names must
// be present and concrete; fields it does not name are allowed.
func (s *Schema) Validate(raw string) (map[string]any, error) {
	obj, err := DecodeObject(raw)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.ctx.Encode(obj)
	if v.Err() != nil {
		return nil, &SchemaError{Raw: raw, Reason: "unencodable value", Err: v.Err()}
	}
	if err := s.value.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return nil, &SchemaError{Raw: raw, Reason: "does not satisfy " + s.name, Err: err}
	}
	return obj, nil
}

// StripFences removes markdown code fence markers and surrounding space.
func StripFences(raw string) string {
	out := strings.ReplaceAll(raw, "```json", "")
	out = strings.ReplaceAll(out, "```", "")
	return strings.TrimSpace(out)
}

// DecodeObject requires raw, after StripFences, to be exactly one JSON object
// with no repeated top-level key.
func DecodeObject(raw string) (map[string]any, error) {
	cleaned := StripFences(raw)
	if cleaned == "" {
		return nil, &SchemaError{Raw: raw, Reason: "empty result"}
	}

	dec := json.NewDecoder(strings.NewReader(cleaned))
	tok, err := dec.Token()
	if err != nil {
		return nil, &SchemaError{Raw: raw, Reason: "not a JSON object", Err: err}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, &SchemaError{Raw: raw, Reason: "not a JSON object"}
	}

	obj := make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, &SchemaError{Raw: raw, Reason: "not a JSON object", Err: err}
		}
		key, ok := tok.(string)
		if !ok {
			return nil, &SchemaError{Raw: raw, Reason: "not a JSON object"}
		}
		if _, dup := obj[key]; dup {
			return nil, &SchemaError{Raw: raw, Reason: fmt.Sprintf("duplicate key %q", key)}
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, &SchemaError{Raw: raw, Reason: "not a JSON object", Err: err}
		}
		obj[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return nil, &SchemaError{Raw: raw, Reason: "not a JSON object", Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &SchemaError{Raw: raw, Reason: "trailing data after object"}
	}
	return obj, nil
}
