// Package cache keeps the author snapshot in Redis so walk-mode traversals can
// skip the bulk read while the hierarchy is unchanged.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"orgchart/internal/domain"
)

type backend interface {
	ListAuthors(ctx context.Context) ([]domain.Author, error)
}

// Authors wraps the author store. Entries are keyed by a generation counter;
// Invalidate bumps the counter so older snapshots are never read again and
// simply expire.
type Authors struct {
	base   backend
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	log    log.FieldLogger
}

func NewAuthors(base backend, client *redis.Client, ttl time.Duration, prefix string, logger log.FieldLogger) *Authors {
	if base == nil {
		panic("cache.NewAuthors: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Authors{base: base, redis: client, ttl: ttl, prefix: prefix, log: logger}
}

// ListAuthors returns the cached snapshot or reads and stores a fresh one.
// Redis failures fall back to the store.
func (c *Authors) ListAuthors(ctx context.Context) ([]domain.Author, error) {
	gen, ok := c.generation(ctx)
	if ok {
		if authors, hit := c.load(ctx, gen); hit {
			return authors, nil
		}
	}
	authors, err := c.base.ListAuthors(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		c.store(ctx, gen, authors)
	}
	return authors, nil
}

// Invalidate moves to a new generation. Call it after any author mutation.
func (c *Authors) Invalidate(ctx context.Context) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Incr(ctx, c.generationKey()).Err(); err != nil {
		c.log.WithError(err).Warn("author cache invalidation failed")
	}
}

func (c *Authors) generation(ctx context.Context) (int64, bool) {
	if c.redis == nil {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, c.generationKey()).Int64()
	if err == redis.Nil {
		return 0, true
	}
	if err != nil {
		c.log.WithError(err).Warn("author cache unavailable, reading from store")
		return 0, false
	}
	return gen, true
}

func (c *Authors) load(ctx context.Context, gen int64) ([]domain.Author, bool) {
	key := c.snapshotKey(gen)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, key).Err()
		}
		return nil, false
	}
	var authors []domain.Author
	if err := json.Unmarshal(data, &authors); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return authors, true
}

func (c *Authors) store(ctx context.Context, gen int64, authors []domain.Author) {
	if c.ttl == 0 {
		return
	}
	data, err := json.Marshal(authors)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.snapshotKey(gen), data, c.ttl).Err(); err != nil {
		c.log.WithError(err).Debug("author cache store failed")
	}
}

func (c *Authors) generationKey() string {
	return c.prefix + ":authors:gen"
}

func (c *Authors) snapshotKey(gen int64) string {
	return c.prefix + ":authors:" + strconv.FormatInt(gen, 10)
}
