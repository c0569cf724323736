package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// StockCache memoises on-hand lookups in Redis. Writes bump a per-tenant
// version key instead of scanning for product keys, so a stock reset
// invalidates every cached value for the tenant with one INCR.
type StockCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewStockCache constructs StockCache. A zero ttl falls back to 30 seconds.
func NewStockCache(client *redis.Client, ttl time.Duration) *StockCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StockCache{client: client, ttl: ttl}
}

// OnHand returns the cached aggregate stock, loading through on a miss.
// Concurrent misses for the same product collapse into one loader call.
func (c *StockCache) OnHand(ctx context.Context, tenantID, productID int64, load func(context.Context) (decimal.Decimal, error)) (decimal.Decimal, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}
	key, err := c.key(ctx, tenantID, productID)
	if err != nil {
		return load(ctx)
	}
	if raw, err := c.client.Get(ctx, key).Result(); err == nil {
		if v, err := decimal.NewFromString(raw); err == nil {
			return v, nil
		}
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		stock, err := load(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		c.client.Set(ctx, key, stock.String(), c.ttl)
		return stock, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

// Invalidate drops the cached value for one product.
func (c *StockCache) Invalidate(ctx context.Context, tenantID, productID int64) {
	if c == nil || c.client == nil {
		return
	}
	key, err := c.key(ctx, tenantID, productID)
	if err != nil {
		return
	}
	c.client.Del(ctx, key)
}

// InvalidateTenant bumps the tenant version, orphaning every cached product
// value for the tenant. Orphans expire via TTL.
func (c *StockCache) InvalidateTenant(ctx context.Context, tenantID int64) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Incr(ctx, fmt.Sprintf("stock:ver:%d", tenantID))
}

func (c *StockCache) key(ctx context.Context, tenantID, productID int64) (string, error) {
	ver, err := c.client.Get(ctx, fmt.Sprintf("stock:ver:%d", tenantID)).Result()
	if err != nil {
		if err != redis.Nil {
			return "", err
		}
		ver = "0"
	}
	return fmt.Sprintf("stock:%d:%s:%d", tenantID, ver, productID), nil
}
