package retry

import "time"

// Policy bounds how a failed model call is retried
type Policy struct {
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaximumInterval    time.Duration
	MaximumAttempts    int32

	// Jitter randomizes each wait by up to this fraction, 0 to 1
	Jitter float64
}

// Option represents a retry policy option
type Option func(*Policy)

// WithInitialInterval sets the wait before the first retry
func WithInitialInterval(interval time.Duration) Option {
	return func(p *Policy) {
		p.InitialInterval = interval
	}
}

// WithBackoffCoefficient sets the growth factor between waits
func WithBackoffCoefficient(coefficient float64) Option {
	return func(p *Policy) {
		p.BackoffCoefficient = coefficient
	}
}

// WithMaximumInterval caps a single wait
func WithMaximumInterval(interval time.Duration) Option {
	return func(p *Policy) {
		p.MaximumInterval = interval
	}
}

// WithMaxAttempts sets the total number of attempts, the first included.
// Zero or less retries until the context is done.
func WithMaxAttempts(attempts int32) Option {
	return func(p *Policy) {
		p.MaximumAttempts = attempts
	}
}

// WithJitter sets the randomization fraction
func WithJitter(jitter float64) Option {
	return func(p *Policy) {
		p.Jitter = jitter
	}
}

// NewPolicy returns a policy sized for rate-limited chat completions: a
// short first wait, doubling up to 30s, three attempts
func NewPolicy(opts ...Option) *Policy {
	policy := &Policy{
		InitialInterval:    500 * time.Millisecond,
		BackoffCoefficient: 2.0,
		MaximumInterval:    30 * time.Second,
		MaximumAttempts:    3,
		Jitter:             0.2,
	}

	for _, opt := range opts {
		opt(policy)
	}

	return policy
}
