// Package retry wraps fallible operations with exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/courtside-labs/crm-sync/pkg/common/logger"
)

type Policy struct {
	Attempts  int
	BaseDelay time.Duration

	// sleep is swapped out by tests; nil means the context-aware default.
	sleep func(ctx context.Context, d time.Duration) error
}

func DefaultPolicy() Policy {
	return Policy{Attempts: 3, BaseDelay: time.Second}
}

// Do runs op up to p.Attempts times, waiting BaseDelay * 2^(attempt-1)
// between attempts. The last failure's error is returned unchanged.
func Do(ctx context.Context, label string, p Policy, op func() error) error {
	_, err := DoValue(ctx, label, p, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, label string, p Policy, op func() (T, error)) (T, error) {
	var zero T
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		value, err := op()
		if err == nil {
			return value, nil
		}
		lastErr = err

		if attempt < p.Attempts {
			delay := p.BaseDelay << (attempt - 1)
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"operation": label,
				"attempt":   attempt,
				"attempts":  p.Attempts,
				"backoff":   delay.String(),
			}).Error("Attempt failed, retrying")

			if sleepErr := sleep(ctx, delay); sleepErr != nil {
				return zero, lastErr
			}
		} else {
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"operation": label,
				"attempts":  p.Attempts,
			}).Error("All attempts failed")
		}
	}
	return zero, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
