package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joescharf/btcmap-triage/internal/models"
	"github.com/joescharf/btcmap-triage/internal/triage"
)

// Cache stores encoded evidence.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache is a Cache backed by Redis.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache connects using a redis:// URL.
func NewRedisCache(rawURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisCache{rdb: redis.NewClient(opt)}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the client.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	value   []byte
	expires time.Time
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memoryItem), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	if !it.expires.IsZero() && c.now().After(it.expires) {
		delete(c.items, key)
		return nil, false, nil
	}
	return it.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := memoryItem{value: value}
	if ttl > 0 {
		it.expires = c.now().Add(ttl)
	}
	c.items[key] = it
	return nil
}

// Cached wraps a provider so successful results are reused for ttl. Cache
// failures are logged and otherwise ignored.
type Cached struct {
	next   triage.EvidenceProvider
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached decorates next with cache.
func NewCached(next triage.EvidenceProvider, cache Cache, ttl time.Duration, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (c *Cached) Category() models.Category { return c.next.Category() }

// CacheKey identifies a category result for a submission's current content.
func CacheKey(c models.Category, sub models.Submission) string {
	data, _ := json.Marshal(sub)
	sum := sha256.Sum256(data)
	return fmt.Sprintf("btctriage:evidence:%s:%s:%s", c, sub.ID, hex.EncodeToString(sum[:8]))
}

func (c *Cached) Check(ctx context.Context, sub models.Submission) (models.Evidence, error) {
	key := CacheKey(c.next.Category(), sub)

	if data, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("evidence cache read failed", "key", key, "error", err)
	} else if ok {
		var ev models.Evidence
		if err := json.Unmarshal(data, &ev); err == nil {
			return ev, nil
		}
	}

	ev, err := c.next.Check(ctx, sub)
	if err != nil || ev.Status != models.EvidenceOK {
		return ev, err
	}
	if data, err := json.Marshal(ev); err == nil {
		if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn("evidence cache write failed", "key", key, "error", err)
		}
	}
	return ev, nil
}

var _ triage.EvidenceProvider = (*Cached)(nil)
