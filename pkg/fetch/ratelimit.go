package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter paces requests per host with a fixed minimum interval
type RateLimiter struct {
	limiters   map[string]*rate.Limiter // host -> limiter
	limitersMu sync.Mutex
	delay      time.Duration
	log        *logrus.Entry
}

// NewRateLimiter creates a RateLimiter allowing one request per delay for each host.
// A zero delay disables pacing.
func NewRateLimiter(delay time.Duration, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		delay:    delay,
		log:      log,
	}
}

// Wait blocks until a request to host is allowed or ctx is done.
// The first request to a host is never delayed.
func (rl *RateLimiter) Wait(ctx context.Context, host string) error {
	if rl.delay <= 0 {
		return nil
	}

	limiter := rl.limiterFor(host)
	if r := limiter.Reserve(); r.OK() {
		wait := r.Delay()
		if wait == 0 {
			return nil
		}
		rl.log.WithFields(logrus.Fields{"host": host, "sleep": wait}).Debug("Rate limit applying sleep")

		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			r.Cancel()
			return ctx.Err()
		}
	}
	return limiter.Wait(ctx)
}

func (rl *RateLimiter) limiterFor(host string) *rate.Limiter {
	rl.limitersMu.Lock()
	defer rl.limitersMu.Unlock()
	limiter, ok := rl.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(rl.delay), 1)
		rl.limiters[host] = limiter
	}
	return limiter
}
