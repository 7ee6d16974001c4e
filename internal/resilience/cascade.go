package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrExhausted is returned when every entry in a [Cascade] failed or had an
// open breaker.
var ErrExhausted = errors.New("resilience: all cascade entries failed")

// Cascade tries a sequence of same-typed targets in order until one
// succeeds. Each target gets its own [Breaker], so an entry that has been
// failing is skipped without burning a request on it. The translation
// pipeline builds one entry per region-and-model pair; synthesis builds one
// per provider.
//
// Cascade is safe for concurrent use after all Add calls complete.
type Cascade[T any] struct {
	cfg     BreakerConfig
	entries []cascadeEntry[T]
}

type cascadeEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// NewCascade creates an empty cascade whose entries each get a breaker
// configured with cfg.
func NewCascade[T any](cfg BreakerConfig) *Cascade[T] {
	return &Cascade[T]{cfg: cfg}
}

// Add appends a target. Targets are tried in insertion order.
func (c *Cascade[T]) Add(name string, value T) *Cascade[T] {
	c.entries = append(c.entries, cascadeEntry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(c.cfg),
	})
	return c
}

// Len returns the number of registered targets.
func (c *Cascade[T]) Len() int { return len(c.entries) }

// Names returns the registered target names in try order.
func (c *Cascade[T]) Names() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.name
	}
	return out
}

// Run tries fn against each target in order until one succeeds. Entries
// with open breakers are skipped. Between attempts the context is checked,
// so a cancelled job stops cascading instead of walking the whole grid.
// If every entry fails, the returned error wraps ErrExhausted and joins
// the per-entry failures.
func (c *Cascade[T]) Run(ctx context.Context, fn func(context.Context, T) error) error {
	_, err := RunResult(ctx, c, func(ctx context.Context, v T) (struct{}, error) {
		return struct{}{}, fn(ctx, v)
	})
	return err
}

// RunResult is [Cascade.Run] for functions that produce a value. It is a
// package-level function because Go does not support method-level type
// parameters.
func RunResult[T any, R any](ctx context.Context, c *Cascade[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero     R
		attempts []error
	)
	for i := range c.entries {
		e := &c.entries[i]

		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if err := e.breaker.Allow(); err != nil {
			slog.Debug("cascade: skipping entry, breaker open", "entry", e.name)
			continue
		}

		result, err := fn(ctx, e.value)
		e.breaker.Record(err)
		if err == nil {
			return result, nil
		}

		attempts = append(attempts, fmt.Errorf("%s: %w", e.name, err))
		slog.Warn("cascade: entry failed, trying next", "entry", e.name, "error", err)
	}
	if len(attempts) == 0 {
		return zero, fmt.Errorf("%w: every breaker open", ErrExhausted)
	}
	return zero, fmt.Errorf("%w: %w", ErrExhausted, errors.Join(attempts...))
}
