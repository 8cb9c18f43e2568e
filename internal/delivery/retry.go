package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/relaydesk/relaydesk/pkg/logging"
)

// RetryingSender wraps a Sender with bounded retries and exponential
// backoff. Permanent failures short-circuit: re-sending to a blocked
// recipient or with bad credentials only burns quota.
type RetryingSender struct {
	next        Sender
	maxAttempts int
	baseDelay   time.Duration
	logger      *logging.Logger
	sleep       func(time.Duration)
}

// NewRetryingSender wraps next with the default 3-attempt policy.
func NewRetryingSender(next Sender, logger *logging.Logger) *RetryingSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &RetryingSender{
		next:        next,
		maxAttempts: 3,
		baseDelay:   500 * time.Millisecond,
		logger:      logger,
		sleep:       time.Sleep,
	}
}

func (r *RetryingSender) WithMaxAttempts(n int) *RetryingSender {
	if n > 0 {
		r.maxAttempts = n
	}
	return r
}

func (r *RetryingSender) WithBaseDelay(d time.Duration) *RetryingSender {
	if d > 0 {
		r.baseDelay = d
	}
	return r
}

// Send delivers text, retrying transient failures up to maxAttempts.
func (r *RetryingSender) Send(ctx context.Context, identifier, text string) (Result, error) {
	var lastErr error
	var lastResult Result

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if attempt > 1 {
			r.sleep(r.baseDelay * time.Duration(1<<(attempt-1)))
		}

		result, err := r.next.Send(ctx, identifier, text)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("delivery succeeded after retry", "attempt", attempt, "to", identifier)
			}
			return result, nil
		}

		lastErr = err
		lastResult = result
		if IsPermanent(err) || nonRetryableStatus(result.StatusCode) {
			r.logger.Warn("delivery failed permanently, not retrying",
				"status", result.StatusCode, "error", err, "to", identifier)
			return result, err
		}
		r.logger.Warn("delivery attempt failed",
			"attempt", attempt, "status", result.StatusCode, "error", err, "to", identifier)
	}

	return lastResult, fmt.Errorf("delivery: %d attempts failed: %w", r.maxAttempts, lastErr)
}
