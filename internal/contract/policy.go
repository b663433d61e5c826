package contract

import (
	"fmt"
	"strings"
)

// Policy decides what a failed resolution does to the case.
type Policy uint8

const (
	// Lenient records the failure: status error with a diagnostic reasoning.
	Lenient Policy = iota
	// Strict returns the failure and leaves the case untouched, so the
	// resolution can be attempted again.
	Strict
)

func (p Policy) String() string {
	switch p {
	case Lenient:
		return "lenient"
	case Strict:
		return "strict"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lenient":
		return Lenient, nil
	case "strict":
		return Strict, nil
	default:
		return 0, fmt.Errorf("unknown resolution policy %q", s)
	}
}
