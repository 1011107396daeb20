package services

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lernia/lernia/pkg/models"
)

// RecommendationCache keeps computed result lists in the warm redis tier.
// Every operation degrades gracefully: a cache outage means recomputing, not
// failing the request.
type RecommendationCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRecommendationCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RecommendationCache {
	return &RecommendationCache{client: client, ttl: ttl, logger: logger}
}

// RequestFingerprint hashes the request parameters that change the result,
// so differently-shaped requests for the same user never collide.
func RequestFingerprint(k int, step *models.StepContext) string {
	h := sha256.New()
	fmt.Fprintf(h, "k=%d", k)
	if step != nil {
		fmt.Fprintf(h, ";tags=%s;prereq=%s;diff=%s;completed=%t",
			strings.Join(step.Tags, ","), strings.Join(step.Prerequisites, ","),
			step.Difficulty, step.IncludeCompleted)
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

func cacheKey(userID uuid.UUID, fingerprint, modelVersion string) string {
	return fmt.Sprintf("rec:%s:%s:%s", userID, fingerprint, modelVersion)
}

// Get returns the cached result for the exact (user, request shape, model
// version) triple, or nil on miss or cache trouble.
func (c *RecommendationCache) Get(ctx context.Context, userID uuid.UUID, fingerprint, modelVersion string) *models.RecommendationResult {
	if c.client == nil {
		return nil
	}

	data, err := c.client.Get(ctx, cacheKey(userID, fingerprint, modelVersion)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WithError(err).Warn("Recommendation cache read failed, recomputing")
		}
		return nil
	}

	var result models.RecommendationResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.WithError(err).Warn("Dropping undecodable cache entry")
		return nil
	}
	result.CacheHit = true
	return &result
}

// Set stores the result under its triple with the configured TTL.
func (c *RecommendationCache) Set(ctx context.Context, result *models.RecommendationResult, fingerprint string) {
	if c.client == nil {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		c.logger.WithError(err).Error("Failed to encode recommendation result for cache")
		return
	}

	key := cacheKey(result.UserID, fingerprint, result.ModelVersion)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Warn("Recommendation cache write failed")
	}
}

// InvalidateUser removes every cached list for one user, leaving all other
// users' entries untouched. Called on the write path after each interaction
// or preference change.
func (c *RecommendationCache) InvalidateUser(ctx context.Context, userID uuid.UUID) {
	c.deletePattern(ctx, fmt.Sprintf("rec:%s:*", userID))
}

// Flush removes every cached list. Called when a retrain publishes a new
// model snapshot.
func (c *RecommendationCache) Flush(ctx context.Context) {
	c.deletePattern(ctx, "rec:*")
}

func (c *RecommendationCache) deletePattern(ctx context.Context, pattern string) {
	if c.client == nil {
		return
	}

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 500 {
			c.client.Del(ctx, keys...)
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.WithError(err).WithField("pattern", pattern).Warn("Cache invalidation scan failed")
		return
	}
	if len(keys) > 0 {
		c.client.Del(ctx, keys...)
	}
}
