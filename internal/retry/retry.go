// Package retry runs network calls with a per-attempt timeout and a fixed
// number of attempts separated by linearly growing pauses.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"deliverycart/internal/logging"
	"deliverycart/internal/metrics"
)

// ErrExhausted marks a transient failure that survived every attempt.
var ErrExhausted = errors.New("retries exhausted")

type Policy struct {
	Attempts int
	Timeout  time.Duration
	// Step is the pause before the second attempt; the n-th pause is n*Step.
	Step time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Timeout: 30 * time.Second, Step: time.Second}
}

// Permanent stops retrying and returns err unchanged.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// linear implements backoff.BackOff with pauses of step, 2*step, ...
type linear struct {
	step time.Duration
	n    int
}

func (l *linear) NextBackOff() time.Duration {
	l.n++
	return time.Duration(l.n) * l.step
}

func (l *linear) Reset() { l.n = 0 }

// Do calls fn until it succeeds, returns a Permanent error, the context is
// done, or the policy runs out of attempts. Exhaustion wraps ErrExhausted.
func Do[T any](ctx context.Context, p Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	var stopped bool
	attempt := func() (T, error) {
		actx := ctx
		if p.Timeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, p.Timeout)
			defer cancel()
		}
		res, err := fn(actx)
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			stopped = true
		}
		return res, err
	}

	var b backoff.BackOff = &linear{step: p.Step}
	b = backoff.WithMaxRetries(b, uint64(p.Attempts-1))
	b = backoff.WithContext(b, ctx)

	notify := func(err error, wait time.Duration) {
		metrics.RetryAttempts.WithLabelValues(op).Inc()
		logging.Warn().Err(err).Str("operation", op).Dur("wait", wait).Msg("retrying")
	}

	res, err := backoff.RetryNotifyWithData(attempt, b, notify)
	if err == nil {
		return res, nil
	}
	if stopped || ctx.Err() != nil {
		return res, err
	}
	return res, fmt.Errorf("%s: %w: %w", op, ErrExhausted, err)
}
