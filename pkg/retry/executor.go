package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Executor runs operations under a retry policy
type Executor struct {
	policy *Policy
}

// NewExecutor creates a new retry executor
func NewExecutor(policy *Policy) *Executor {
	if policy == nil {
		policy = NewPolicy()
	}
	return &Executor{policy: policy}
}

// Policy returns the executor's policy
func (e *Executor) Policy() *Policy {
	return e.policy
}

// Permanent marks an error as non-retryable; Execute returns it unwrapped
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Execute runs operation until it succeeds, returns a permanent error, the
// policy is exhausted or ctx is done. On exhaustion the last operation error
// is returned; on cancellation the context error is returned.
func (e *Executor) Execute(ctx context.Context, operation func() error) error {
	return e.ExecuteNotify(ctx, operation, nil)
}

// ExecuteNotify is Execute with a callback invoked before every wait
func (e *Executor) ExecuteNotify(ctx context.Context, operation func() error, notify func(err error, wait time.Duration)) error {
	return backoff.RetryNotify(operation, e.backOff(ctx), notify)
}

func (e *Executor) backOff(ctx context.Context) backoff.BackOff {
	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = e.policy.InitialInterval
	exponential.Multiplier = e.policy.BackoffCoefficient
	exponential.MaxInterval = e.policy.MaximumInterval
	exponential.MaxElapsedTime = e.policy.MaximumElapsed
	exponential.RandomizationFactor = 0

	var b backoff.BackOff = exponential
	if e.policy.MaximumAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(e.policy.MaximumAttempts-1))
	}

	return backoff.WithContext(b, ctx)
}
