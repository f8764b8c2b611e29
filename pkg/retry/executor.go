package retry

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// Executor runs operations under a Policy with exponential backoff
type Executor struct {
	policy *Policy
}

// NewExecutor creates an executor for policy. A nil policy uses NewPolicy().
func NewExecutor(policy *Policy) *Executor {
	if policy == nil {
		policy = NewPolicy()
	}
	return &Executor{policy: policy}
}

// Execute calls operation until it succeeds, the attempts run out, ctx is
// done or the operation returns a Permanent error. The last error is
// returned.
func (e *Executor) Execute(ctx context.Context, operation func() error) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = e.policy.InitialInterval
	exponentialBackoff.Multiplier = e.policy.BackoffCoefficient
	exponentialBackoff.MaxInterval = e.policy.MaximumInterval
	exponentialBackoff.RandomizationFactor = e.policy.Jitter
	exponentialBackoff.MaxElapsedTime = 0

	var b backoff.BackOff = exponentialBackoff
	if e.policy.MaximumAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(e.policy.MaximumAttempts-1))
	}

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	return backoff.Permanent(err)
}
