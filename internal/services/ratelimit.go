package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lernia/lernia/internal/config"
)

// RateLimitService enforces a fixed-window per-caller request budget backed
// by the hot redis tier. When redis is unreachable the limiter fails open:
// availability beats strict accounting here.
type RateLimitService struct {
	cfg    *config.RateLimitConfig
	client *redis.Client
	logger *logrus.Logger
}

func NewRateLimitService(cfg *config.RateLimitConfig, client *redis.Client, logger *logrus.Logger) *RateLimitService {
	return &RateLimitService{cfg: cfg, client: client, logger: logger}
}

// Allow reports whether the caller identified by key has budget left in the
// current window, along with the remaining budget.
func (s *RateLimitService) Allow(ctx context.Context, key string) (bool, int) {
	if s.client == nil {
		return true, s.cfg.Default
	}

	window := time.Now().Unix() / int64(s.cfg.Window.Seconds())
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, window)

	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, s.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.WithError(err).Warn("Rate limit check failed, allowing request")
		return true, s.cfg.Default
	}

	count := int(incr.Val())
	remaining := s.cfg.Default - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= s.cfg.Default, remaining
}
