package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrServiceFailure is matched by every error returned once all attempts to
// reach the generation service have failed.
var ErrServiceFailure = errors.New("generation service failed")

// ErrInvalidReply marks a reply that arrived but carried no message content.
var ErrInvalidReply = errors.New("invalid reply from generation service")

// ServiceFailureError reports that the retry budget was exhausted.
type ServiceFailureError struct {
	Attempts int
	Last     error
}

func (e *ServiceFailureError) Error() string {
	return fmt.Sprintf("generation service failed after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the error from the final attempt.
func (e *ServiceFailureError) Unwrap() error { return e.Last }

// Is makes errors.Is(err, ErrServiceFailure) true.
func (e *ServiceFailureError) Is(target error) bool { return target == ErrServiceFailure }

// RetryPolicy controls how often and how patiently the service is retried.
type RetryPolicy struct {
	MaxAttempts int
	// Backoff returns the wait after the given failed attempt (1-based).
	Backoff func(attempt int) time.Duration
	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultMaxAttempts is the retry ceiling used when none is configured.
const DefaultMaxAttempts = 3

// DefaultRetryPolicy makes up to three attempts, waiting 2s after the first
// and 4s after the second. ExponentialBackoff(3) is 8s, but no wait follows
// the last attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     ExponentialBackoff,
		Sleep:       SleepContext,
	}
}

// ExponentialBackoff returns 2^attempt seconds.
func ExponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return time.Duration(1<<attempt) * time.Second
}

// SleepContext blocks for d, returning early with ctx.Err() on cancellation.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Backoff == nil {
		p.Backoff = ExponentialBackoff
	}
	if p.Sleep == nil {
		p.Sleep = SleepContext
	}
	return p
}
