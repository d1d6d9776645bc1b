package session

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// rateLimiter caps inbound messages per interval. The counter is reset on
// every tick of start; messages over the limit are refused until then.
type rateLimiter struct {
	count    atomic.Int64
	dropped  atomic.Int64
	limit    int64
	interval time.Duration
	logger   zerolog.Logger
}

func newRateLimiter(limit int64, interval time.Duration, logger zerolog.Logger) *rateLimiter {
	if limit <= 0 {
		return nil
	}
	return &rateLimiter{
		limit:    limit,
		interval: interval,
		logger:   logger,
	}
}

func (r *rateLimiter) start(ctx context.Context) {
	if r == nil {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reset()
		}
	}
}

func (r *rateLimiter) reset() {
	count := r.count.Swap(0)
	dropped := r.dropped.Swap(0)
	if dropped > 0 {
		r.logger.Warn().
			Int64("received", count).
			Int64("dropped", dropped).
			Dur("interval", r.interval).
			Int64("limit", r.limit).
			Msg("mqtt messages dropped due to rate limit")
	}
}

// allow reports whether one more message fits in the current interval. A nil
// limiter allows everything.
func (r *rateLimiter) allow() bool {
	if r == nil {
		return true
	}
	n := r.count.Add(1)
	if n > r.limit {
		r.dropped.Add(1)
		return false
	}
	return true
}
