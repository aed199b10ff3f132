// Package retry provides the single "retry until predicate or deadline" loop
// used by every wait phase of a run: server readiness, project creation and
// compute task polling.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
)

// DefaultInterval is used when Options.Interval is nil.
const DefaultInterval = 5 * time.Second

var (
	// ErrDeadline is returned when the phase deadline passes before op reports done.
	ErrDeadline = errors.New("deadline exceeded")
	// ErrBudgetExhausted is returned when the interval policy yields backoff.Stop.
	ErrBudgetExhausted = errors.New("retry budget exhausted")
)

// Clock abstracts wall-clock access so wait phases can be tested deterministically.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Options parameterize Until.
type Options struct {
	// Interval yields the pause before each attempt. backoff.Stop ends the loop.
	Interval backoff.BackOff
	// Deadline is the absolute end of the phase. Zero means no deadline.
	Deadline time.Time
	// Immediate runs the first attempt without sleeping.
	Immediate bool
	Clock     Clock
}

// Op is one attempt. done ends the loop successfully; an error wrapped with
// Permanent aborts it; any other error is recorded and the loop continues.
type Op func(ctx context.Context) (done bool, err error)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Constant returns a fixed interval policy, optionally capped to maxRetries
// attempts (0 means unlimited).
func Constant(interval time.Duration, maxRetries uint64) backoff.BackOff {
	var b backoff.BackOff = backoff.NewConstantBackOff(interval)
	if maxRetries > 0 {
		b = backoff.WithMaxRetries(b, maxRetries)
	}
	return b
}

// Until runs op until it reports done, returns a permanent error, the
// interval policy stops, the deadline passes or ctx is cancelled.
// The last transient error is wrapped into deadline and budget errors.
func Until(ctx context.Context, opts Options, op Op) error {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	interval := opts.Interval
	if interval == nil {
		interval = backoff.NewConstantBackOff(DefaultInterval)
	}
	interval.Reset()

	var (
		lastErr  error
		attempts int
	)
	for {
		if attempts > 0 || !opts.Immediate {
			if expired(clock, opts.Deadline) {
				return wrapLast(ErrDeadline, attempts, lastErr)
			}
			next := interval.NextBackOff()
			if next == backoff.Stop {
				return wrapLast(ErrBudgetExhausted, attempts, lastErr)
			}
			if err := clock.Sleep(ctx, next); err != nil {
				return err
			}
		}

		attempts++
		done, err := op(ctx)
		if err != nil {
			var perm *permanentError
			if errors.As(err, &perm) {
				return perm.err
			}
			lastErr = err
			continue
		}
		if done {
			return nil
		}
		lastErr = nil
	}
}

func expired(clock Clock, deadline time.Time) bool {
	return !deadline.IsZero() && !clock.Now().Before(deadline)
}

func wrapLast(sentinel error, attempts int, last error) error {
	if last == nil {
		return fmt.Errorf("%w after %d attempts", sentinel, attempts)
	}
	return fmt.Errorf("%w after %d attempts: %w", sentinel, attempts, last)
}
