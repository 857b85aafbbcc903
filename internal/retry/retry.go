// Package retry implements the bounded fixed-delay retry used for per-item
// transmit failures.
package retry

import (
	"context"
	"time"

	apperrors "github.com/channel-mirror/internal/errors"
	"github.com/channel-mirror/internal/logging"
)

// Config holds retry behavior.
type Config struct {
	// MaxAttempts is the total number of attempts, first try included.
	MaxAttempts int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
}

// DefaultConfig matches the engine's default retry budget.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, Delay: 2 * time.Second}
}

// RetryFunc is the operation under retry.
type RetryFunc func(ctx context.Context) error

// Result records the outcome of a retried operation.
type Result struct {
	Attempts  int
	Success   bool
	LastError error
}

// Do runs fn up to cfg.MaxAttempts times with a fixed delay between attempts.
// Non-retryable errors stop the loop immediately. The rate-limit condition
// never reaches this layer; callers resolve it with the governor before the
// attempt counts.
func Do(ctx context.Context, cfg Config, operation string, fn RetryFunc) *Result {
	log := logging.FromContext(ctx).WithField("operation", operation)
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	result := &Result{}
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt
		err := fn(ctx)
		if err == nil {
			result.Success = true
			return result
		}
		result.LastError = err

		if !apperrors.IsRetryable(err) {
			log.WithError(err).WithField("attempt", attempt).Debug("non-retryable error, giving up")
			return result
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		log.WithError(err).WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   cfg.Delay.String(),
		}).Warn("attempt failed, retrying")

		select {
		case <-time.After(cfg.Delay):
		case <-ctx.Done():
			result.LastError = ctx.Err()
			return result
		}
	}

	log.WithError(result.LastError).WithField("attempts", result.Attempts).Error("retry budget exhausted")
	return result
}
