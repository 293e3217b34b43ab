package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/camden-git/fleetinspectbackend/logger"
	"github.com/camden-git/fleetinspectbackend/vision"
)

// RedisCache shares analysis payloads between instances. The Redis key TTL
// matches the entry expiry, and the stored expiry is still checked on read.
type RedisCache struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisCache(log *logger.Logger, addr, prefix string, ttl time.Duration) (*RedisCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisCache{
		log:    log.With("service", "RedisAnalysisCache"),
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

func (c *RedisCache) key(sourceURI string) string {
	return c.prefix + sourceURI
}

func (c *RedisCache) Get(ctx context.Context, sourceURI string) (*Entry, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(sourceURI)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", sourceURI, err)
	}
	entry, err := decodeEntry(raw)
	if err != nil {
		c.log.Warn("dropping undecodable cache entry", "source_uri", sourceURI, "error", err)
		_ = c.rdb.Del(ctx, c.key(sourceURI)).Err()
		return nil, false, nil
	}
	if !entry.Valid(c.now()) {
		return nil, false, nil
	}
	return entry, true, nil
}

func (c *RedisCache) Set(ctx context.Context, sourceURI string, analysis *vision.Analysis) (*Entry, error) {
	if analysis == nil {
		return nil, fmt.Errorf("cache: nil analysis for %s", sourceURI)
	}
	now := c.now()
	entry := &Entry{
		SourceURI: sourceURI,
		Analysis:  *analysis,
		StoredAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(sourceURI), raw, c.ttl).Err(); err != nil {
		return nil, fmt.Errorf("redis set %s: %w", sourceURI, err)
	}
	return entry, nil
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

func decodeEntry(raw []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}
	if entry.ExpiresAt.IsZero() {
		return nil, fmt.Errorf("entry has no expiry")
	}
	return &entry, nil
}
