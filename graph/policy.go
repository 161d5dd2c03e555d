package graph

import (
	"math/rand"
	"time"
)

// NodePolicy configures how the engine executes one node.
//
// Policies are attached with Engine.AddWithPolicy. Nodes added with Add run
// once, under the engine's default timeout.
type NodePolicy struct {
	// Timeout bounds a single attempt. Zero falls back to the engine default
	// set by WithDefaultNodeTimeout; if that is zero too, attempts are
	// unbounded.
	Timeout time.Duration

	// RetryPolicy re-runs the node when it returns a retryable error. Nil
	// means a single attempt.
	RetryPolicy *RetryPolicy
}

// RetryPolicy describes retries with exponential backoff and jitter.
type RetryPolicy struct {
	// MaxAttempts counts the first attempt, so 1 disables retries.
	MaxAttempts int

	// BaseDelay is the delay before the second attempt. Each further
	// attempt doubles it.
	BaseDelay time.Duration

	// MaxDelay caps the doubled delay. Zero means no cap.
	MaxDelay time.Duration

	// Retryable decides whether an error is worth another attempt. A nil
	// Retryable treats every error as permanent.
	Retryable func(error) bool
}

// Validate checks the policy for impossible values.
//
//   - MaxAttempts must be at least 1
//   - MaxDelay, when set, must not be below BaseDelay
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// shouldRetry reports whether another attempt is allowed after attempt
// (zero-based) failed with err.
func (rp *RetryPolicy) shouldRetry(attempt int, err error) bool {
	if rp == nil || err == nil || rp.Retryable == nil {
		return false
	}
	if attempt+1 >= rp.MaxAttempts {
		return false
	}
	return rp.Retryable(err)
}

// computeBackoff returns the wait before attempt+1.
//
// The delay is base*2^attempt capped at maxDelay, plus up to one base of
// jitter so that concurrent runs hitting the same rate limit spread out.
//
// With base=1s and maxDelay=8s:
//   - attempt 0: 1-2s
//   - attempt 1: 2-3s
//   - attempt 3: 8-9s
//   - attempt 6: 8-9s (capped)
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}

	delay := base * (1 << attempt)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- retry jitter only
	}
	return delay + jitter
}
