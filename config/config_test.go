package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/goap/cache"
	"github.com/zero-day-ai/goap/plan"
)

const sampleYAML = `
planner:
  enable_pattern_learning: true
  pattern_match_threshold: 0.8
  max_search_depth: 500
  timeout_ms: 2000
  risk_factors:
    low: 1.0
    medium: 2.0
    critical: 4.0
  heuristic_weights:
    deployed: 3.0
  pattern_boost_scale: 0.4
  enable_replanning: false
  replan_threshold: 0.3
cache:
  l1:
    max_size: 50
    max_memory_bytes: 1048576
    ttl_ms: 60000
    eviction_policy: adaptive
    adaptive_weights:
      recency: 0.5
      frequency: 0.3
      freshness: 0.2
  l2:
    max_size: 500
    eviction_policy: lru
  l3:
    redis_url: redis://localhost:6379/0
    ttl_ms: 15000
batch:
  min_batch_size: 2
  max_batch_size: 20
  flush_interval_ms: 250
  max_queue_size: 5000
  decay_factor: 0.9
storage:
  pattern_db: /var/lib/goap/patterns.db
  outcome_dir: /var/lib/goap/outcomes
`

func TestParseFull(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.True(t, cfg.Planner.PatternLearningEnabled())
	assert.InDelta(t, 0.8, cfg.Planner.MatchThreshold(), 1e-9)
	assert.Equal(t, 500, cfg.Planner.SearchDepth())
	assert.Equal(t, 2*time.Second, cfg.Planner.Timeout())
	assert.False(t, cfg.Planner.ReplanningEnabled())
	assert.InDelta(t, 0.3, cfg.Planner.ReplanLimit(), 1e-9)
	assert.InDelta(t, 0.4, cfg.Planner.BoostScale(), 1e-9)
	assert.InDelta(t, 3.0, cfg.Planner.HeuristicWeights["deployed"], 1e-9)

	factors := cfg.Planner.Factors()
	assert.InDelta(t, 2.0, factors[plan.RiskMedium], 1e-9)
	assert.InDelta(t, 4.0, factors[plan.RiskCritical], 1e-9)
	// Unlisted tiers keep their defaults.
	assert.InDelta(t, 2.0, factors[plan.RiskHigh], 1e-9)

	l1 := cfg.Cache.L1Config()
	assert.Equal(t, 50, l1.MaxEntries)
	assert.Equal(t, int64(1048576), l1.MaxBytes)
	assert.Equal(t, time.Minute, l1.TTL)
	assert.Equal(t, cache.PolicyAdaptive, l1.Policy)
	assert.InDelta(t, 0.5, l1.Weights.Recency, 1e-9)

	l2 := cfg.Cache.L2Config()
	assert.Equal(t, 500, l2.MaxEntries)
	assert.Equal(t, cache.PolicyLRU, l2.Policy)

	assert.Equal(t, "redis://localhost:6379/0", cfg.Cache.L3.RedisURL)
	assert.Equal(t, 15*time.Second, cfg.Cache.QueryTTL())

	bc := cfg.Batch.CoordinatorConfig()
	assert.Equal(t, 2, bc.MinBatchSize)
	assert.Equal(t, 20, bc.MaxBatchSize)
	assert.Equal(t, 250*time.Millisecond, bc.FlushInterval)
	assert.Equal(t, 5000, bc.MaxQueueSize)
	assert.InDelta(t, 0.9, cfg.Batch.Decay().Factor, 1e-9)

	assert.Equal(t, "/var/lib/goap/patterns.db", cfg.Storage.PatternDBPath())
	assert.Equal(t, "/var/lib/goap/outcomes", cfg.Storage.OutcomeDir)
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.True(t, cfg.Planner.PatternLearningEnabled())
	assert.InDelta(t, 0.7, cfg.Planner.MatchThreshold(), 1e-9)
	assert.Equal(t, 1000, cfg.Planner.SearchDepth())
	assert.Equal(t, 5*time.Second, cfg.Planner.Timeout())
	assert.True(t, cfg.Planner.ReplanningEnabled())
	assert.InDelta(t, 0.5, cfg.Planner.ReplanLimit(), 1e-9)
	assert.InDelta(t, 0.5, cfg.Planner.BoostScale(), 1e-9)
	assert.Equal(t, cache.DefaultL1Config(), cfg.Cache.L1Config())
	assert.Equal(t, cache.DefaultQueryTTL, cfg.Cache.QueryTTL())
	assert.InDelta(t, 0.95, cfg.Batch.Decay().Factor, 1e-9)
	assert.Equal(t, "goap-patterns.db", cfg.Storage.PatternDBPath())
}

func TestParseValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"threshold above one", "planner:\n  pattern_match_threshold: 1.5\n"},
		{"negative replan threshold", "planner:\n  replan_threshold: -0.1\n"},
		{"unknown risk tier", "planner:\n  risk_factors:\n    catastrophic: 5.0\n"},
		{"non-positive risk factor", "planner:\n  risk_factors:\n    low: 0\n"},
		{"unknown eviction policy", "cache:\n  l1:\n    eviction_policy: random\n"},
		{"decay factor above one", "batch:\n  decay_factor: 1.5\n"},
		{"malformed yaml", "planner: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "goap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	t.Run("from file", func(t *testing.T) {
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 500, cfg.Planner.SearchDepth())
	})

	t.Run("from directory", func(t *testing.T) {
		cfg, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, 500, cfg.Planner.SearchDepth())
	})

	t.Run("missing", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("directory without config", func(t *testing.T) {
		_, err := Load(t.TempDir())
		assert.Error(t, err)
	})
}
