package contract

import "errors"

// Every error here aborts the triggering write with no state mutation.
var (
	ErrNotFound        = errors.New("case not found")
	ErrInvalidParty    = errors.New("party must be plaintiff or defendant")
	ErrAlreadyResolved = errors.New("case already resolved")
	ErrMissingEvidence = errors.New("evidence from both parties is required")
	ErrEmptyEvidence   = errors.New("evidence text is empty")
)
