package airbrake

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultRateLimitDelay = 60 * time.Second

// RateLimiter remembers how long the server asked us to stay quiet after a
// 429 response.
type RateLimiter struct {
	mu            sync.RWMutex
	disabledUntil time.Time
	logger        *zap.Logger
	now           func() time.Time
}

// NewRateLimiter creates a new rate limiter instance
func NewRateLimiter(logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		logger: logger,
		now:    time.Now,
	}
}

// IsRateLimited checks whether deliveries are currently suspended
func (rl *RateLimiter) IsRateLimited() bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return rl.disabledUntil.After(rl.now())
}

// DisabledUntil returns the end of the current suspension, zero if none
func (rl *RateLimiter) DisabledUntil() time.Time {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	if rl.disabledUntil.After(rl.now()) {
		return rl.disabledUntil
	}
	return time.Time{}
}

// HandleResponse suspends deliveries after a 429. X-RateLimit-Delay (seconds)
// wins over Retry-After (seconds or HTTP date); without either the delay is
// one minute.
func (rl *RateLimiter) HandleResponse(statusCode int, headers http.Header) {
	if statusCode != http.StatusTooManyRequests {
		return
	}

	now := rl.now()
	until := now.Add(rl.delay(headers, now))

	rl.mu.Lock()
	if until.After(rl.disabledUntil) {
		rl.disabledUntil = until
	}
	rl.mu.Unlock()

	rl.logger.Warn("Rate limit applied", zap.Time("disabled_until", until))
}

func (rl *RateLimiter) delay(headers http.Header, now time.Time) time.Duration {
	if v := strings.TrimSpace(headers.Get("X-RateLimit-Delay")); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
		rl.logger.Warn("Failed to parse X-RateLimit-Delay header", zap.String("value", v))
	}

	if v := strings.TrimSpace(headers.Get("Retry-After")); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
		if at, err := http.ParseTime(v); err == nil && at.After(now) {
			return at.Sub(now)
		}
		rl.logger.Warn("Failed to parse Retry-After header, using default", zap.String("value", v))
	}

	return defaultRateLimitDelay
}
