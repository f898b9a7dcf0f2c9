package task

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds how often a failed job is retried and how long it waits
// between attempts.
type RetryPolicy struct {
	// MaxRetries is the number of attempts allowed beyond the first.
	MaxRetries int

	// BaseDelay is the wait before the first retry. Each further retry
	// doubles it.
	BaseDelay time.Duration

	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration

	// JitterPercent randomizes each wait by +/- this percentage.
	JitterPercent uint64
}

// DefaultRetryPolicy returns a policy of 3 retries starting at 5 seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		BaseDelay:     5 * time.Second,
		MaxDelay:      10 * time.Minute,
		JitterPercent: 20,
	}
}

// MaxAttempts is the total number of executions a job may get.
func (p RetryPolicy) MaxAttempts() int {
	return p.MaxRetries + 1
}

// Delay returns the wait before retry number n (1-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}

	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}

	b := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	if p.JitterPercent > 0 {
		b = retry.WithJitterPercent(p.JitterPercent, b)
	}

	var d time.Duration
	for i := 0; i < n; i++ {
		d, _ = b.Next()
	}
	return d
}
