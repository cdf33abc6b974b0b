// Package retrypolicy provides policies describing how an operation should be retried.
package retrypolicy

import (
	"errors"
	"math"
	"math/rand"
	"time"
)

// Done is returned by CalculateNextDelay when no further retries should be attempted
const Done time.Duration = -1

// jitter keeps delays within [80%, 100%] of the computed interval
const backoffJitterFraction = 0.2

var (
	// DefaultRetry is a reasonable policy for most operations
	DefaultRetry = mustNew(
		WithInitialInterval(50*time.Millisecond),
		WithBackoffCoefficient(2),
		WithMaximumInterval(10*time.Second),
		WithExpirationInterval(time.Minute),
		WithMaximumAttempts(10),
	)

	// NoRetry is a policy which never allows a retry
	NoRetry Retry = &policy{}
)

// Retry calculates the delay before the next attempt of an operation
type Retry interface {
	// CalculateNextDelay returns the delay before the next attempt, or Done
	CalculateNextDelay() time.Duration
}

// Option applies a setting to a policy
type Option func(p *policy) error

type policy struct {
	initialInterval    time.Duration
	backoffCoefficient float64
	maximumInterval    time.Duration
	expirationInterval time.Duration
	maximumAttempt     int
	currentAttempt     int
	startTime          time.Time
}

// New creates a retry policy from the given options
func New(options ...Option) (Retry, error) {
	p := &policy{
		backoffCoefficient: 1,
		startTime:          time.Now(),
	}
	for _, option := range options {
		if err := option(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// WithInitialInterval sets the delay before the first retry
func WithInitialInterval(interval time.Duration) Option {
	return func(p *policy) error {
		if interval < 0 {
			return errors.New("retrypolicy: initial interval cannot be negative")
		}
		p.initialInterval = interval
		return nil
	}
}

// WithBackoffCoefficient sets the multiplier applied to the interval after each attempt
func WithBackoffCoefficient(coefficient float64) Option {
	return func(p *policy) error {
		if coefficient < 1 {
			return errors.New("retrypolicy: backoff coefficient cannot be less than 1")
		}
		p.backoffCoefficient = coefficient
		return nil
	}
}

// WithMaximumInterval caps the delay between attempts
func WithMaximumInterval(interval time.Duration) Option {
	return func(p *policy) error {
		if interval < 0 {
			return errors.New("retrypolicy: maximum interval cannot be negative")
		}
		p.maximumInterval = interval
		return nil
	}
}

// WithExpirationInterval limits the total elapsed time across attempts
func WithExpirationInterval(interval time.Duration) Option {
	return func(p *policy) error {
		if interval < 0 {
			return errors.New("retrypolicy: expiration interval cannot be negative")
		}
		p.expirationInterval = interval
		return nil
	}
}

// WithMaximumAttempts limits the number of attempts, zero meaning unlimited
func WithMaximumAttempts(attempts int) Option {
	return func(p *policy) error {
		if attempts < 0 {
			return errors.New("retrypolicy: maximum attempts cannot be negative")
		}
		p.maximumAttempt = attempts
		return nil
	}
}

// CalculateNextDelay returns the delay before the next attempt, or Done
func (p *policy) CalculateNextDelay() time.Duration {
	if p.maximumAttempt != 0 && p.currentAttempt >= p.maximumAttempt {
		return Done
	}

	if p.expirationInterval != 0 && !p.startTime.IsZero() &&
		time.Since(p.startTime) > p.expirationInterval {
		return Done
	}

	nextInterval := float64(p.initialInterval) * math.Pow(p.backoffCoefficient, float64(p.currentAttempt))
	if nextInterval <= 0 {
		return Done
	}

	if p.maximumInterval != 0 {
		nextInterval = math.Min(nextInterval, float64(p.maximumInterval))
	}

	p.currentAttempt++

	// subtract jitter so we never exceed the computed interval
	jitter := nextInterval * backoffJitterFraction * rand.Float64()

	return time.Duration(nextInterval - jitter)
}

func mustNew(options ...Option) Retry {
	r, err := New(options...)
	if err != nil {
		panic(err)
	}
	return r
}
