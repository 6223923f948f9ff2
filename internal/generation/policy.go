package generation

import (
	"context"
	"time"
)

const (
	// MaxAttempts is the total number of backend calls made for one request, including the first.
	MaxAttempts = 3
	// BaseDelay is the wait before the first retry.
	BaseDelay = 2 * time.Second
)

// Policy configures exponential backoff for rate-limited calls.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy returns the production policy: 3 attempts, waiting 2s then 4s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: MaxAttempts, BaseDelay: BaseDelay}
}

// Delay returns the wait after the given failed attempt (1-indexed): BaseDelay * 2^(attempt-1).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay << (attempt - 1)
}

// ShouldRetry reports whether another attempt is allowed after the given one.
func (p Policy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
