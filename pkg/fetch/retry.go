package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"tululu-scraper/pkg/config"
	"tululu-scraper/pkg/utils"
)

// RetryPolicy bounds how often a unit of work is re-run after a connection failure.
// Only errors wrapping utils.ErrConnection are retried; everything else is returned at once.
type RetryPolicy struct {
	MaxAttempts int           // Total attempts, including the first
	Backoff     time.Duration // Pause before the first retry
	MaxBackoff  time.Duration // Upper bound for any pause; zero means no bound
	Multiplier  float64       // Growth factor between pauses; values <= 1 keep the pause fixed

	// OnPause, when set, is called before each pause
	OnPause func(attempt int, delay time.Duration, err error)
}

// NewRetryPolicy builds a RetryPolicy from validated configuration
func NewRetryPolicy(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.Backoff,
		MaxBackoff:  cfg.MaxBackoff,
		Multiplier:  cfg.Multiplier,
	}
}

// Delay returns the pause before retry number n (1-based)
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 || p.Backoff <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := time.Duration(float64(p.Backoff) * math.Pow(mult, float64(n-1)))
	if delay <= 0 || (p.MaxBackoff > 0 && delay > p.MaxBackoff) {
		delay = p.MaxBackoff
	}
	return delay
}

// Do runs fn until it succeeds, fails with a non-connection error, the attempt
// budget is spent, or ctx is done. An exhausted budget returns an error wrapping
// both utils.ErrRetryFailed and the last connection error.
func (p RetryPolicy) Do(ctx context.Context, log *logrus.Entry, fn func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil || !errors.Is(lastErr, utils.ErrConnection) {
			return lastErr
		}
		if attempt == maxAttempts {
			break
		}

		delay := p.Delay(attempt)
		log.WithFields(logrus.Fields{
			"attempt":      attempt,
			"max_attempts": maxAttempts,
			"pause":        delay,
			"error_type":   utils.CategorizeError(lastErr),
		}).Warnf("Connection lost, pausing before retrying the same unit: %v", lastErr)
		if p.OnPause != nil {
			p.OnPause(attempt, delay, lastErr)
		}

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("%w: %d attempts: %w", utils.ErrRetryFailed, maxAttempts, lastErr)
}
