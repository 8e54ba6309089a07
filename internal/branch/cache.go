package branch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taller-erp/taller-erp/internal/shared"
)

// CachedStore keeps branch metadata in Redis in front of another Store.
// Redis failures fall through to the wrapped store.
type CachedStore struct {
	next   Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedStore constructs CachedStore.
func NewCachedStore(next Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{next: next, client: client, ttl: ttl, logger: logger}
}

// Get returns a branch, reading through the cache.
func (c *CachedStore) Get(ctx context.Context, id int64) (Branch, error) {
	var b Branch
	key := shared.BranchCacheKey(id)
	if c.load(ctx, key, &b) {
		return b, nil
	}
	b, err := c.next.Get(ctx, id)
	if err != nil {
		return Branch{}, err
	}
	c.store(ctx, key, b)
	return b, nil
}

// List returns branches, reading through the cache.
func (c *CachedStore) List(ctx context.Context, tenantID int64) ([]Branch, error) {
	var branches []Branch
	key := shared.BranchListCacheKey(tenantID)
	if c.load(ctx, key, &branches) {
		return branches, nil
	}
	branches, err := c.next.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, branches)
	return branches, nil
}

func (c *CachedStore) load(ctx context.Context, key string, target any) bool {
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("branch cache read", slog.String("key", key), slog.Any("error", err))
		}
		return false
	}
	if err := json.Unmarshal(payload, target); err != nil {
		c.logger.Warn("branch cache decode", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return true
}

func (c *CachedStore) store(ctx context.Context, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("branch cache write", slog.String("key", key), slog.Any("error", err))
	}
}

var _ Store = (*CachedStore)(nil)
