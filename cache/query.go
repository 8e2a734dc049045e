package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultQueryTTL is the default expiry for memoized query results.
// L3 entries are deliberately short-lived: they cache derived
// computations, and staleness beyond a few seconds defeats their
// purpose.
const DefaultQueryTTL = 30 * time.Second

// QueryCacheOptions configures the Redis connection backing the L3
// query cache.
type QueryCacheOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379").
	URL string

	// TLS configuration for secure connections.
	TLS *tls.Config

	// KeyPrefix namespaces this cache's keys within the Redis
	// instance. Default: "goap:query:".
	KeyPrefix string

	// TTL is the expiry applied to every entry. Default:
	// DefaultQueryTTL.
	TTL time.Duration

	// ConnectTimeout is the maximum time to wait for connection
	// establishment.
	ConnectTimeout time.Duration
}

// QueryCache is the L3 tier: a Redis-backed, short-TTL cache for
// opaque query results such as repeated similarity rankings. It caches
// bytes, not typed entities; callers own serialization.
type QueryCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	stats  counters
}

// NewQueryCache connects to Redis and returns a QueryCache.
func NewQueryCache(opts QueryCacheOptions) (*QueryCache, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "goap:query:"
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultQueryTTL
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("cache: failed to parse Redis URL: %w", err)
	}
	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: failed to connect to Redis: %w", err)
	}

	return &QueryCache{
		client: client,
		prefix: opts.KeyPrefix,
		ttl:    opts.TTL,
	}, nil
}

// Get returns the cached bytes for key, with found=false on a miss or
// expired entry. Redis errors are returned as errors, not misses, so
// callers can distinguish an unavailable cache from absent data.
func (q *QueryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := q.client.Get(ctx, q.prefix+key).Bytes()
	if err == redis.Nil {
		q.stats.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: query get %q: %w", key, err)
	}
	q.stats.hits.Add(1)
	return data, true, nil
}

// Set stores bytes under key with the cache's TTL.
func (q *QueryCache) Set(ctx context.Context, key string, value []byte) error {
	if err := q.client.Set(ctx, q.prefix+key, value, q.ttl).Err(); err != nil {
		return fmt.Errorf("cache: query set %q: %w", key, err)
	}
	return nil
}

// Invalidate removes a key, typically after the underlying data
// changed.
func (q *QueryCache) Invalidate(ctx context.Context, key string) error {
	if err := q.client.Del(ctx, q.prefix+key).Err(); err != nil {
		return fmt.Errorf("cache: query invalidate %q: %w", key, err)
	}
	return nil
}

// Stats returns a snapshot of the hit/miss counters.
func (q *QueryCache) Stats() TierStats {
	return TierStats{
		Hits:   q.stats.hits.Load(),
		Misses: q.stats.misses.Load(),
	}
}

// Close closes the Redis connection.
func (q *QueryCache) Close() error {
	return q.client.Close()
}
