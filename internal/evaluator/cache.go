package evaluator

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// signatureCache caches fitness by structural signature. The in-memory
// layer is always present; an optional Redis layer backs it for
// cross-process reuse.
type signatureCache struct {
	mu       sync.Mutex
	values   map[string]float64
	order    []string
	capacity int

	redis *redis.Client
	ttl   time.Duration
}

func newSignatureCache(cfg Config) *signatureCache {
	c := &signatureCache{
		values:   make(map[string]float64),
		capacity: cfg.CacheCapacity,
		ttl:      cfg.RedisTTL,
	}
	if cfg.RedisAddr != "" {
		c.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	return c
}

func (c *signatureCache) get(ctx context.Context, signature string) (float64, bool) {
	c.mu.Lock()
	if fit, ok := c.values[signature]; ok {
		c.mu.Unlock()
		return fit, true
	}
	c.mu.Unlock()

	if c.redis == nil {
		return 0, false
	}
	val, err := c.redis.Get(ctx, signature).Result()
	if err != nil {
		return 0, false
	}
	fit, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false
	}
	c.put(ctx, signature, fit)
	return fit, true
}

func (c *signatureCache) put(ctx context.Context, signature string, fit float64) {
	c.mu.Lock()
	if _, exists := c.values[signature]; !exists {
		if c.capacity > 0 && len(c.order) >= c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.values, oldest)
		}
		c.order = append(c.order, signature)
	}
	c.values[signature] = fit
	c.mu.Unlock()

	if c.redis != nil {
		_ = c.redis.Set(ctx, signature, strconv.FormatFloat(fit, 'f', -1, 64), c.ttl).Err()
	}
}
