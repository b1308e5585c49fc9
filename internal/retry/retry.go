// Package retry is the single retry-with-backoff utility shared by the
// pipeline and the challenge handler. Attempt delays grow linearly with
// the attempt number and carry a randomized jitter component so the
// process never retries on a fixed cadence.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// Config parameterizes a retry loop.
type Config struct {
	Attempts  int
	BaseDelay time.Duration
	// Jitter is the fraction of the computed delay added at random,
	// e.g. 0.5 turns a 4s delay into 4s..6s.
	Jitter float64
	// Permanent, when set, reports errors that must not be retried.
	Permanent func(error) bool
}

// Do runs fn up to cfg.Attempts times, sleeping between attempts. It
// returns nil on the first success, the last error on exhaustion, and
// stops early on context cancellation or a permanent error.
func Do(ctx context.Context, cfg Config, log *logrus.Entry, fn func(ctx context.Context) error) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if cfg.Permanent != nil && cfg.Permanent(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		delay := Backoff(cfg.BaseDelay, attempt, cfg.Jitter)
		if log != nil {
			log.WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay.String(),
				"error":   lastErr.Error(),
			}).Warn("Attempt failed, backing off")
		}
		if !Sleep(ctx, delay) {
			return ctx.Err()
		}
	}
	return lastErr
}

// Backoff computes the delay before the next attempt: base * attempt
// plus a random jitter fraction.
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base * time.Duration(attempt)
	if jitter > 0 {
		d += time.Duration(rand.Float64() * jitter * float64(d))
	}
	return d
}

// Sleep waits for d or until ctx is cancelled. It reports whether the
// full duration elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
