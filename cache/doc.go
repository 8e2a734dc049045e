// Package cache implements the multi-level cache in front of pattern
// persistence.
//
// Three tiers cooperate:
//
//   - L1: small, hot, in-process; bounded by entry count and estimated
//     bytes; eviction policy configurable (lru, lfu, adaptive).
//   - L2: larger, warm, in-process; TTL plus LRU only.
//   - L3: Redis-backed short-TTL cache for opaque query results, used
//     to memoize derived computations rather than primary entities.
//
// MultiLevel wires L1 and L2 into a cascading lookup: an L2 hit is
// promoted into L1, a miss falls through to the supplied loader, and a
// non-nil loader result populates both tiers. Absence is never cached,
// so a later fill of the backing store becomes visible immediately.
//
// Example usage:
//
//	ml := cache.NewMultiLevel(cache.DefaultL1Config(), cache.DefaultL2Config())
//
//	v, err := ml.Get(ctx, "pattern:"+id, func(ctx context.Context, key string) (any, error) {
//		return store.GetPattern(ctx, id)
//	})
//
// All tiers are safe for concurrent use. Coherency is process-local
// only; nothing synchronizes tiers across processes.
package cache
