package gateway

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wholesale-shop/backoffice/internal/schema"
)

// Cache is the small surface Cached needs; redisx provides the Redis
// implementation, tests use an in-process map.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, val string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
}

// Cached wraps a Gateway with versioned read caching. Every successful
// mutation bumps the entity's version, orphaning all cached reads for it:
// read-after-write within a session without tracking individual keys.
// Cache failures degrade to the inner gateway, never to an error.
type Cached struct {
	inner Gateway
	reg   *schema.Registry
	cache Cache
	ttl   time.Duration
}

func NewCached(inner Gateway, reg *schema.Registry, cache Cache, ttl time.Duration) *Cached {
	return &Cached{inner: inner, reg: reg, cache: cache, ttl: ttl}
}

func (c *Cached) version(ctx context.Context, table string) int64 {
	s, ok, err := c.cache.Get(ctx, "cachever:"+table)
	if err != nil || !ok {
		return 0
	}
	var v int64
	fmt.Sscanf(s, "%d", &v)
	return v
}

func (c *Cached) bump(ctx context.Context, table string) {
	_, _ = c.cache.Incr(ctx, "cachever:"+table)
}

func (c *Cached) Query(ctx context.Context, table string, q Query) ([]Record, error) {
	t, ok := c.reg.Table(table)
	if !ok {
		return c.inner.Query(ctx, table, q)
	}
	raw, _ := json.Marshal(q)
	key := fmt.Sprintf("q:%s:v%d:%x", table, c.version(ctx, table), sha1.Sum(raw))
	if body, hit, err := c.cache.Get(ctx, key); err == nil && hit {
		if rows, err := decodeRecords(t, body); err == nil {
			return rows, nil
		}
	}
	rows, err := c.inner.Query(ctx, table, q)
	if err != nil {
		return nil, err
	}
	if body, err := json.Marshal(rows); err == nil {
		_ = c.cache.Set(ctx, key, string(body), c.ttl)
	}
	return rows, nil
}

func (c *Cached) Get(ctx context.Context, table string, id int64) (Record, error) {
	t, ok := c.reg.Table(table)
	if !ok {
		return c.inner.Get(ctx, table, id)
	}
	key := fmt.Sprintf("row:%s:v%d:%d", table, c.version(ctx, table), id)
	if body, hit, err := c.cache.Get(ctx, key); err == nil && hit {
		if rows, err := decodeRecords(t, body); err == nil && len(rows) == 1 {
			return rows[0], nil
		}
	}
	row, err := c.inner.Get(ctx, table, id)
	if err != nil {
		return nil, err
	}
	if body, err := json.Marshal([]Record{row}); err == nil {
		_ = c.cache.Set(ctx, key, string(body), c.ttl)
	}
	return row, nil
}

func (c *Cached) Insert(ctx context.Context, table string, vals Record) (Record, error) {
	row, err := c.inner.Insert(ctx, table, vals)
	if err != nil {
		return nil, err
	}
	c.bump(ctx, table)
	return row, nil
}

func (c *Cached) Update(ctx context.Context, table string, id int64, vals Record) (Record, error) {
	row, err := c.inner.Update(ctx, table, id, vals)
	if err != nil {
		return nil, err
	}
	c.bump(ctx, table)
	return row, nil
}

func (c *Cached) Delete(ctx context.Context, table string, id int64) error {
	if err := c.inner.Delete(ctx, table, id); err != nil {
		return err
	}
	c.bump(ctx, table)
	// cascades may have touched child tables too
	for _, edge := range c.reg.Referencing(table) {
		if edge.OnDelete == schema.Cascade {
			c.bump(ctx, edge.From)
		}
	}
	return nil
}

func (c *Cached) Count(ctx context.Context, table string, filters ...Filter) (int, error) {
	return c.inner.Count(ctx, table, filters...)
}

func (c *Cached) SumDecimal(ctx context.Context, table, column string, filters ...Filter) (decimal.Decimal, error) {
	return c.inner.SumDecimal(ctx, table, column, filters...)
}

// AdjustStock requires the inner gateway to be a StockAdjuster; the product
// cache is invalidated like any other write.
func (c *Cached) AdjustStock(ctx context.Context, productID int64, delta int64) (int64, error) {
	adj, ok := c.inner.(StockAdjuster)
	if !ok {
		return 0, storeErr("adjust_stock", schema.TableProducts, fmt.Errorf("inner gateway cannot adjust stock"))
	}
	next, err := adj.AdjustStock(ctx, productID, delta)
	if err == nil {
		c.bump(ctx, schema.TableProducts)
	}
	return next, err
}

// decodeRecords rebuilds typed values from a cached JSON body.
func decodeRecords(t schema.Table, body string) ([]Record, error) {
	var raw []map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(raw))
	for _, m := range raw {
		rec := make(Record, len(m))
		for k, v := range m {
			if k == t.ID {
				id, err := toInt64(v)
				if err != nil {
					return nil, err
				}
				rec[k] = id
				continue
			}
			col, ok := t.Column(k)
			if !ok {
				continue
			}
			cv, err := coerce(t.Name, col, v)
			if err != nil {
				return nil, err
			}
			rec[k] = cv
		}
		out = append(out, rec)
	}
	return out, nil
}
