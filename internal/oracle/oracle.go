// Package oracle issues the nondeterministic call each validator makes on its
// own. Results are opaque text and must be parsed before use.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout means no response arrived within the bounded interval.
	ErrTimeout = errors.New("oracle timeout")
	// ErrUnavailable means the computation source could not be reached.
	ErrUnavailable = errors.New("oracle unavailable")
)

// Invoker performs one oracle call. Implementations keep no state between
// calls that could influence the result and never retry internally.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, prompt string) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// WithTimeout bounds every call to d and maps failures onto ErrTimeout or
// ErrUnavailable.
func WithTimeout(inv Invoker, d time.Duration) Invoker {
	return InvokerFunc(func(ctx context.Context, prompt string) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		raw, err := inv.Invoke(callCtx, prompt)
		if err != nil {
			return "", Classify(callCtx, err)
		}
		return raw, nil
	})
}

// Classify maps err onto ErrTimeout or ErrUnavailable unless it already wraps
// one of them. Cancellation by the caller is passed through untouched.
func Classify(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}
