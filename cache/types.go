package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Common errors returned by cache operations.
var (
	// ErrInvalidPolicy is returned when an eviction policy is not one
	// of the defined constants.
	ErrInvalidPolicy = errors.New("cache: invalid eviction policy")

	// ErrTooLarge is returned when a single value exceeds a tier's
	// byte capacity and can never be admitted.
	ErrTooLarge = errors.New("cache: value exceeds tier capacity")
)

// EvictionPolicy selects how a tier frees space when full.
type EvictionPolicy string

const (
	// PolicyLRU evicts the least recently accessed entries first.
	PolicyLRU EvictionPolicy = "lru"

	// PolicyLFU evicts the least frequently accessed entries first.
	PolicyLFU EvictionPolicy = "lfu"

	// PolicyAdaptive scores entries by a weighted blend of recency,
	// frequency, and freshness, and evicts the lowest-scored entries
	// first.
	PolicyAdaptive EvictionPolicy = "adaptive"
)

// IsValid returns true if the policy is one of the defined constants.
func (p EvictionPolicy) IsValid() bool {
	switch p {
	case PolicyLRU, PolicyLFU, PolicyAdaptive:
		return true
	default:
		return false
	}
}

// Validate returns an error if the policy is not valid.
func (p EvictionPolicy) Validate() error {
	if !p.IsValid() {
		return fmt.Errorf("%w: %q (must be one of: lru, lfu, adaptive)", ErrInvalidPolicy, p)
	}
	return nil
}

// String implements fmt.Stringer.
func (p EvictionPolicy) String() string {
	return string(p)
}

// AdaptiveWeights are the scoring weights used by PolicyAdaptive. The
// observed starting point is 0.4 recency, 0.4 frequency, 0.2 freshness;
// they are configuration, not constants.
type AdaptiveWeights struct {
	Recency   float64 `yaml:"recency" json:"recency"`
	Frequency float64 `yaml:"frequency" json:"frequency"`
	Freshness float64 `yaml:"freshness" json:"freshness"`
}

// DefaultAdaptiveWeights returns the baseline adaptive scoring weights.
func DefaultAdaptiveWeights() AdaptiveWeights {
	return AdaptiveWeights{Recency: 0.4, Frequency: 0.4, Freshness: 0.2}
}

// TierConfig bounds and tunes one in-process tier.
type TierConfig struct {
	// MaxEntries bounds the entry count. Zero means unbounded.
	MaxEntries int

	// MaxBytes bounds the summed estimated value sizes. Zero means
	// unbounded.
	MaxBytes int64

	// TTL expires entries after the given duration since insertion.
	// Zero disables expiry.
	TTL time.Duration

	// Policy selects the eviction policy. Empty selects PolicyLRU.
	Policy EvictionPolicy

	// Weights tunes PolicyAdaptive. The zero value selects
	// DefaultAdaptiveWeights.
	Weights AdaptiveWeights
}

// DefaultL1Config returns the baseline hot-tier configuration.
func DefaultL1Config() TierConfig {
	return TierConfig{
		MaxEntries: 1000,
		MaxBytes:   64 << 20,
		TTL:        5 * time.Minute,
		Policy:     PolicyAdaptive,
	}
}

// DefaultL2Config returns the baseline warm-tier configuration.
func DefaultL2Config() TierConfig {
	return TierConfig{
		MaxEntries: 10000,
		MaxBytes:   256 << 20,
		TTL:        30 * time.Minute,
		Policy:     PolicyLRU,
	}
}

// entry is a cached value with its access bookkeeping.
type entry struct {
	key        string
	value      any
	size       int64
	insertedAt time.Time
	lastAccess time.Time
	hits       int64
}

// TierStats is a snapshot of one tier's counters.
type TierStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Entries   int    `json:"entries"`
	Bytes     int64  `json:"bytes"`
}

// HitRate returns Hits / (Hits + Misses), or 0 with no traffic.
func (s TierStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// counters are the lock-free portion of tier statistics.
type counters struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// EstimateSize approximates the in-memory footprint of a cached value.
// Strings and byte slices report their length; other values fall back
// to the length of their JSON encoding. The estimate feeds byte-bound
// eviction and does not need to be exact.
func EstimateSize(v any) int64 {
	switch t := v.(type) {
	case nil:
		return 0
	case string:
		return int64(len(t))
	case []byte:
		return int64(len(t))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			// Unknown shape; charge a nominal size so the entry is
			// still accounted for.
			return 64
		}
		return int64(len(data))
	}
}
