package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/media-auth-service/internal/persistence"
)

// LoginLimiter throttles repeated failed logins per email+address using
// Redis counters. It fails open: if Redis is unreachable the login path keeps
// working, since bcrypt cost is the last line of defense anyway.
type LoginLimiter struct {
	redis  *persistence.Redis
	limit  int
	window time.Duration
	logger *zap.Logger
}

// NewLoginLimiter builds a limiter. A nil redis wrapper disables throttling.
func NewLoginLimiter(r *persistence.Redis, limit int, window time.Duration, logger *zap.Logger) *LoginLimiter {
	if limit <= 0 {
		limit = 10
	}
	return &LoginLimiter{redis: r, limit: limit, window: window, logger: logger}
}

// Allow reports whether another login attempt is permitted.
func (l *LoginLimiter) Allow(ctx context.Context, email, addr string) bool {
	if l == nil || l.redis == nil || l.redis.Client == nil {
		return true
	}
	count, err := l.redis.Client.Get(ctx, l.key(email, addr)).Int()
	if err != nil {
		return true
	}
	return count < l.limit
}

// RecordFailure counts a failed attempt and starts the window on the first one.
func (l *LoginLimiter) RecordFailure(ctx context.Context, email, addr string) {
	if l == nil || l.redis == nil || l.redis.Client == nil {
		return
	}
	key := l.key(email, addr)
	count, err := l.redis.Client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn("login limiter incr failed", zap.Error(err))
		return
	}
	if count == 1 {
		if err := l.redis.Client.Expire(ctx, key, l.window).Err(); err != nil {
			l.logger.Warn("login limiter expire failed", zap.Error(err))
		}
	}
}

// Reset clears the counter after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, email, addr string) {
	if l == nil || l.redis == nil || l.redis.Client == nil {
		return
	}
	if err := l.redis.Client.Del(ctx, l.key(email, addr)).Err(); err != nil {
		l.logger.Warn("login limiter reset failed", zap.Error(err))
	}
}

func (l *LoginLimiter) key(email, addr string) string {
	return fmt.Sprintf("login_attempts:%s:%s", strings.ToLower(email), addr)
}
