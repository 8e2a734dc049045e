package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// Loader fetches a value from the origin (the persistence layer) on a
// cache miss. Returning (nil, nil) means the value does not exist;
// absence is never cached.
type Loader func(ctx context.Context, key string) (any, error)

// WarmLoader bulk-fetches entries for warm-start population, keyed by
// cache key.
type WarmLoader func(ctx context.Context) (map[string]any, error)

// Stats aggregates the per-tier counters with the overall hit rate
// across every tier that saw traffic.
type Stats struct {
	L1 TierStats `json:"l1"`
	L2 TierStats `json:"l2"`
	L3 TierStats `json:"l3"`

	// OverallHitRate is total hits across tiers divided by total
	// requests across tiers.
	OverallHitRate float64 `json:"overall_hit_rate"`
}

// MultiLevelOption configures a MultiLevel cache.
type MultiLevelOption func(*MultiLevel)

// WithLogger sets the logger. Nil selects slog.Default().
func WithLogger(logger *slog.Logger) MultiLevelOption {
	return func(m *MultiLevel) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithQueryCache attaches an L3 query cache so its counters appear in
// the aggregate stats. The query cache keeps its own API; MultiLevel
// does not route entity lookups through it.
func WithQueryCache(qc *QueryCache) MultiLevelOption {
	return func(m *MultiLevel) {
		m.query = qc
	}
}

// MultiLevel is the cascading entity cache: L1 backed by L2 backed by
// an origin loader. See the package documentation for the promotion
// and fill rules.
type MultiLevel struct {
	l1     *Tier
	l2     *Tier
	query  *QueryCache
	logger *slog.Logger
}

// NewMultiLevel builds a MultiLevel cache from per-tier configs.
func NewMultiLevel(l1cfg, l2cfg TierConfig, opts ...MultiLevelOption) (*MultiLevel, error) {
	l1, err := NewTier(l1cfg)
	if err != nil {
		return nil, fmt.Errorf("cache: l1: %w", err)
	}
	l2, err := NewTier(l2cfg)
	if err != nil {
		return nil, fmt.Errorf("cache: l2: %w", err)
	}

	m := &MultiLevel{
		l1:     l1,
		l2:     l2,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Get performs the cascading lookup: L1, then L2 (with promotion into
// L1), then the loader. A non-nil loader result populates both L1 and
// L2. A nil loader result returns (nil, nil) without caching the
// absence. A nil loader turns a full miss into (nil, nil).
func (m *MultiLevel) Get(ctx context.Context, key string, loader Loader) (any, error) {
	if v, ok := m.l1.Get(key); ok {
		return v, nil
	}

	if v, ok := m.l2.Get(key); ok {
		// Promote; an oversized value just stays L2-only.
		if err := m.l1.Set(key, v); err != nil {
			m.logger.Debug("l1 promotion skipped", "key", key, "error", err)
		}
		return v, nil
	}

	if loader == nil {
		return nil, nil
	}

	v, err := loader(ctx, key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}

	m.fill(key, v)
	return v, nil
}

// Set writes through to both L1 and L2 synchronously. Only the backing
// store write is batched elsewhere; the cache tiers always reflect the
// latest value immediately.
func (m *MultiLevel) Set(key string, value any) {
	m.fill(key, value)
}

// Delete drops the key from both in-process tiers.
func (m *MultiLevel) Delete(key string) {
	m.l1.Delete(key)
	m.l2.Delete(key)
}

// Warm bulk-populates both tiers from the supplied loader. Intended to
// run once at process start, before serving traffic.
func (m *MultiLevel) Warm(ctx context.Context, loader WarmLoader) error {
	entries, err := loader(ctx)
	if err != nil {
		return fmt.Errorf("cache: warm: %w", err)
	}
	for key, value := range entries {
		if value == nil {
			continue
		}
		m.fill(key, value)
	}
	m.logger.Info("cache warmed", "entries", len(entries))
	return nil
}

// Stats returns a snapshot of the per-tier counters plus the overall
// hit rate across tiers.
func (m *MultiLevel) Stats() Stats {
	s := Stats{
		L1: m.l1.Stats(),
		L2: m.l2.Stats(),
	}
	if m.query != nil {
		s.L3 = m.query.Stats()
	}

	hits := s.L1.Hits + s.L2.Hits + s.L3.Hits
	total := hits + s.L1.Misses + s.L2.Misses + s.L3.Misses
	if total > 0 {
		s.OverallHitRate = float64(hits) / float64(total)
	}
	return s
}

func (m *MultiLevel) fill(key string, value any) {
	size := EstimateSize(value)
	if err := m.l1.SetWithSize(key, value, size); err != nil {
		m.logger.Debug("l1 fill skipped", "key", key, "error", err)
	}
	if err := m.l2.SetWithSize(key, value, size); err != nil {
		m.logger.Debug("l2 fill skipped", "key", key, "error", err)
	}
}
