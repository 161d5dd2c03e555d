package model

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrSafetyBlocked is returned when a provider refused to produce output for
// safety reasons. The image workflow retries on it.
var ErrSafetyBlocked = errors.New("response blocked by provider safety filter")

// ErrNoChoices is returned when a provider answered without any candidate.
var ErrNoChoices = errors.New("provider returned no choices")

// ProviderError is an HTTP-level failure reported by a provider SDK.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return e.Provider + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the status code indicates a transient failure.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 408 || e.StatusCode == 429 || e.StatusCode >= 500
}

// IsTransient reports whether err is worth retrying: rate limits, server
// errors, network timeouts and per-attempt deadlines. Cancellation is never
// transient.
//
// It is meant for graph.RetryPolicy.Retryable.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
