package errclass

import (
	"time"

	"github.com/ShayCichocki/backrun/pkg/models"
)

// Defaults for retry policy. Overridable through configuration.
const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3
	// DefaultBackoffBase is the delay before the first retry.
	DefaultBackoffBase = time.Second
	// DefaultBackoffCap bounds the exponential backoff delay.
	DefaultBackoffCap = 30 * time.Second
)

// ShouldRetry reports whether a failed attempt warrants another try.
// Only transient categories are retried, and only while the retry
// count is below maxRetries.
func ShouldRetry(category models.ErrorCategory, retryCount, maxRetries int) bool {
	return category.Transient() && retryCount < maxRetries
}

// Backoff returns the delay before retry number retryCount+1, growing
// as base * 2^retryCount and capped at max. Non-positive base or max
// fall back to the package defaults.
func Backoff(base, max time.Duration, retryCount int) time.Duration {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if max <= 0 {
		max = DefaultBackoffCap
	}

	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
