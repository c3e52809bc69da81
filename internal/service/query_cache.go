package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/payout-engine/internal/model"
	"github.com/d60-Lab/payout-engine/pkg/logger"
)

// QueryCache 终态分发的 cache-aside 缓存。终态分发不再变化，因此无需失效。
// client 为 nil 时所有操作都是未命中。
type QueryCache struct {
	client *redis.Client
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

func NewQueryCache(client *redis.Client, ttl time.Duration) *QueryCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &QueryCache{client: client, ttl: ttl}
}

func distributionCacheKey(id string) string { return fmt.Sprintf("distribution:%s", id) }
func summaryCacheKey(id string) string      { return fmt.Sprintf("distribution:summary:%s", id) }

// GetDistribution 命中时返回缓存的分发
func (c *QueryCache) GetDistribution(ctx context.Context, id string) (*model.Distribution, bool) {
	var d model.Distribution
	if !c.get(ctx, distributionCacheKey(id), &d) {
		return nil, false
	}
	return &d, true
}

// SetDistribution 仅缓存终态分发
func (c *QueryCache) SetDistribution(ctx context.Context, d *model.Distribution) {
	if d == nil || !d.Status.IsTerminal() {
		return
	}
	c.set(ctx, distributionCacheKey(d.ID), d)
}

func (c *QueryCache) GetSummary(ctx context.Context, id string) (*DistributionSummary, bool) {
	var s DistributionSummary
	if !c.get(ctx, summaryCacheKey(id), &s) {
		return nil, false
	}
	return &s, true
}

func (c *QueryCache) SetSummary(ctx context.Context, s *DistributionSummary) {
	if s == nil || !s.Status.IsTerminal() {
		return
	}
	c.set(ctx, summaryCacheKey(s.DistributionID), s)
}

// Stats 返回命中与未命中次数
func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) get(ctx context.Context, key string, dst any) bool {
	if c == nil || c.client == nil {
		return false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("query cache get failed", zap.String("key", key), zap.Error(err))
		}
		c.misses.Add(1)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		c.misses.Add(1)
		return false
	}
	c.hits.Add(1)
	return true
}

func (c *QueryCache) set(ctx context.Context, key string, v any) {
	if c == nil || c.client == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		logger.Warn("query cache set failed", zap.String("key", key), zap.Error(err))
	}
}
