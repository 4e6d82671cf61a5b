package netquality

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// IsTimeout reports whether an error is timeout-class: a context deadline or
// anything implementing net.Error-style Timeout(). Only these are worth
// retrying; a 4xx from the provider will not get better on a second try.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// RetryWithBackoff runs fn up to attempts times, retrying only timeout-class
// failures. Delay doubles each attempt, capped at MaxDelay, and doubles again
// when the probe says we are disconnected, giving the link time to recover.
func (m *Monitor) RetryWithBackoff(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := m.backoffDelay(ctx, attempt)
			m.logger.Debug("retrying after timeout", "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			m.RecordSuccess()
			return nil
		}
		m.RecordFailure(lastErr)
		if !IsTimeout(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("all %d attempts timed out: %w", attempts, lastErr)
}

func (m *Monitor) backoffDelay(ctx context.Context, attempt int) time.Duration {
	delay := m.cfg.BaseDelay << (attempt - 1)
	if delay > m.cfg.MaxDelay || delay <= 0 {
		delay = m.cfg.MaxDelay
	}
	if !m.Connected(ctx) {
		delay *= 2
		if delay > 2*m.cfg.MaxDelay {
			delay = 2 * m.cfg.MaxDelay
		}
	}
	return delay
}
