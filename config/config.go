// Package config provides loading and parsing of planner configuration
// files. A single YAML document covers the planner knobs, per-tier
// cache settings, batch coordinator settings, and storage locations.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zero-day-ai/goap/batch"
	"github.com/zero-day-ai/goap/cache"
	"github.com/zero-day-ai/goap/plan"
)

// Config is the root of a planner configuration file.
type Config struct {
	Planner PlannerConfig `yaml:"planner"`
	Cache   CacheConfig   `yaml:"cache,omitempty"`
	Batch   BatchConfig   `yaml:"batch,omitempty"`
	Storage StorageConfig `yaml:"storage,omitempty"`
}

// PlannerConfig tunes planning behavior.
type PlannerConfig struct {
	// EnablePatternLearning toggles pattern reuse and recording.
	// Default: true.
	EnablePatternLearning *bool `yaml:"enable_pattern_learning,omitempty"`

	// PatternMatchThreshold is the minimum similarity for pattern
	// reuse, in [0,1]. Default: 0.7.
	PatternMatchThreshold *float64 `yaml:"pattern_match_threshold,omitempty"`

	// MaxSearchDepth bounds A* iterations. Default: 1000.
	MaxSearchDepth int `yaml:"max_search_depth,omitempty"`

	// TimeoutMS is the wall-clock planning budget in milliseconds.
	// Default: 5000.
	TimeoutMS int `yaml:"timeout_ms,omitempty"`

	// RiskFactors maps risk tiers to cost multipliers.
	RiskFactors map[string]float64 `yaml:"risk_factors,omitempty"`

	// HeuristicWeights weights individual goal keys in the search
	// heuristic. Unlisted keys weigh 1.
	HeuristicWeights map[string]float64 `yaml:"heuristic_weights,omitempty"`

	// PatternBoostScale scales how strongly high-confidence similar
	// patterns pull the heuristic toward states they apply to.
	// Default: 0.5.
	PatternBoostScale *float64 `yaml:"pattern_boost_scale,omitempty"`

	// EnableReplanning toggles replanning recommendations from
	// execution outcomes. Default: true.
	EnableReplanning *bool `yaml:"enable_replanning,omitempty"`

	// ReplanThreshold is the relative cost variance above which a
	// completed execution still recommends replanning. Default: 0.5.
	ReplanThreshold *float64 `yaml:"replan_threshold,omitempty"`
}

// CacheConfig configures the cache tiers.
type CacheConfig struct {
	L1 TierConfig  `yaml:"l1,omitempty"`
	L2 TierConfig  `yaml:"l2,omitempty"`
	L3 QueryConfig `yaml:"l3,omitempty"`
}

// TierConfig configures one in-process cache tier.
type TierConfig struct {
	MaxSize        int     `yaml:"max_size,omitempty"`
	MaxMemoryBytes int64   `yaml:"max_memory_bytes,omitempty"`
	TTLMS          int     `yaml:"ttl_ms,omitempty"`
	EvictionPolicy string  `yaml:"eviction_policy,omitempty"`
	Weights        Weights `yaml:"adaptive_weights,omitempty"`
}

// Weights are the adaptive eviction score components. They are
// starting points, not proven-optimal values; deployments tune them.
type Weights struct {
	Recency   float64 `yaml:"recency,omitempty"`
	Frequency float64 `yaml:"frequency,omitempty"`
	Freshness float64 `yaml:"freshness,omitempty"`
}

// QueryConfig configures the Redis query cache.
type QueryConfig struct {
	// RedisURL is a redis:// connection string. Empty disables the
	// query cache tier.
	RedisURL string `yaml:"redis_url,omitempty"`
	TTLMS    int    `yaml:"ttl_ms,omitempty"`
}

// BatchConfig configures both write coordinators.
type BatchConfig struct {
	MinBatchSize    int `yaml:"min_batch_size,omitempty"`
	MaxBatchSize    int `yaml:"max_batch_size,omitempty"`
	FlushIntervalMS int `yaml:"flush_interval_ms,omitempty"`
	MaxQueueSize    int `yaml:"max_queue_size,omitempty"`

	// DecayFactor is the monthly confidence decay applied to stale
	// patterns, in (0,1]. Default: 0.95.
	DecayFactor *float64 `yaml:"decay_factor,omitempty"`
}

// StorageConfig locates the persistence backends.
type StorageConfig struct {
	// PatternDB is the SQLite database path. Default:
	// "goap-patterns.db".
	PatternDB string `yaml:"pattern_db,omitempty"`

	// OutcomeDir is the outcome sink directory. Empty keeps outcomes
	// in memory.
	OutcomeDir string `yaml:"outcome_dir,omitempty"`
}

// Load reads and parses a configuration file. If the path is a
// directory, it looks for goap.yaml or goap.yml in that directory.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	configPath := path
	if info.IsDir() {
		yamlPath := filepath.Join(path, "goap.yaml")
		if _, err := os.Stat(yamlPath); err == nil {
			configPath = yamlPath
		} else {
			ymlPath := filepath.Join(path, "goap.yml")
			if _, err := os.Stat(ymlPath); err != nil {
				return nil, fmt.Errorf("no goap.yaml or goap.yml found in %s", path)
			}
			configPath = ymlPath
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses a configuration document and validates it.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges without filling defaults.
func (c *Config) Validate() error {
	if t := c.Planner.PatternMatchThreshold; t != nil && (*t < 0 || *t > 1) {
		return fmt.Errorf("pattern_match_threshold %.3f outside [0,1]", *t)
	}
	if r := c.Planner.ReplanThreshold; r != nil && *r < 0 {
		return fmt.Errorf("replan_threshold must be non-negative, got %.3f", *r)
	}
	if c.Planner.MaxSearchDepth < 0 {
		return fmt.Errorf("max_search_depth must be non-negative, got %d", c.Planner.MaxSearchDepth)
	}
	for tier, risk := range c.Planner.RiskFactors {
		if !plan.Risk(tier).IsValid() {
			return fmt.Errorf("unknown risk tier %q", tier)
		}
		if risk <= 0 {
			return fmt.Errorf("risk factor for %q must be positive, got %.3f", tier, risk)
		}
	}
	for _, tc := range []TierConfig{c.Cache.L1, c.Cache.L2} {
		if tc.EvictionPolicy != "" && !cache.EvictionPolicy(tc.EvictionPolicy).IsValid() {
			return fmt.Errorf("unknown eviction policy %q", tc.EvictionPolicy)
		}
	}
	if d := c.Batch.DecayFactor; d != nil && (*d <= 0 || *d > 1) {
		return fmt.Errorf("decay_factor %.3f outside (0,1]", *d)
	}
	return nil
}

// PatternLearningEnabled returns the configured flag or its default.
func (p *PlannerConfig) PatternLearningEnabled() bool {
	if p.EnablePatternLearning == nil {
		return true
	}
	return *p.EnablePatternLearning
}

// MatchThreshold returns the configured threshold or its default.
func (p *PlannerConfig) MatchThreshold() float64 {
	if p.PatternMatchThreshold == nil {
		return 0.7
	}
	return *p.PatternMatchThreshold
}

// SearchDepth returns the configured depth or its default.
func (p *PlannerConfig) SearchDepth() int {
	if p.MaxSearchDepth <= 0 {
		return 1000
	}
	return p.MaxSearchDepth
}

// Timeout returns the planning budget as a duration.
func (p *PlannerConfig) Timeout() time.Duration {
	if p.TimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(p.TimeoutMS) * time.Millisecond
}

// Factors returns the configured risk factors merged over the
// defaults.
func (p *PlannerConfig) Factors() plan.RiskFactors {
	factors := plan.DefaultRiskFactors()
	for tier, f := range p.RiskFactors {
		factors[plan.Risk(tier)] = f
	}
	return factors
}

// BoostScale returns the pattern heuristic boost or its default.
func (p *PlannerConfig) BoostScale() float64 {
	if p.PatternBoostScale == nil {
		return 0.5
	}
	return *p.PatternBoostScale
}

// ReplanningEnabled returns the configured flag or its default.
func (p *PlannerConfig) ReplanningEnabled() bool {
	if p.EnableReplanning == nil {
		return true
	}
	return *p.EnableReplanning
}

// ReplanLimit returns the replan cost-variance threshold or its
// default.
func (p *PlannerConfig) ReplanLimit() float64 {
	if p.ReplanThreshold == nil {
		return 0.5
	}
	return *p.ReplanThreshold
}

// TierConfigFor converts a tier section to cache settings, filling
// unset fields from the given baseline.
func (t TierConfig) TierConfigFor(base cache.TierConfig) cache.TierConfig {
	if t.MaxSize > 0 {
		base.MaxEntries = t.MaxSize
	}
	if t.MaxMemoryBytes > 0 {
		base.MaxBytes = t.MaxMemoryBytes
	}
	if t.TTLMS > 0 {
		base.TTL = time.Duration(t.TTLMS) * time.Millisecond
	}
	if t.EvictionPolicy != "" {
		base.Policy = cache.EvictionPolicy(t.EvictionPolicy)
	}
	if t.Weights != (Weights{}) {
		base.Weights = cache.AdaptiveWeights{
			Recency:   t.Weights.Recency,
			Frequency: t.Weights.Frequency,
			Freshness: t.Weights.Freshness,
		}
	}
	return base
}

// L1Config returns the effective L1 tier settings.
func (c *CacheConfig) L1Config() cache.TierConfig {
	return c.L1.TierConfigFor(cache.DefaultL1Config())
}

// L2Config returns the effective L2 tier settings.
func (c *CacheConfig) L2Config() cache.TierConfig {
	return c.L2.TierConfigFor(cache.DefaultL2Config())
}

// QueryTTL returns the L3 TTL or its default.
func (c *CacheConfig) QueryTTL() time.Duration {
	if c.L3.TTLMS <= 0 {
		return cache.DefaultQueryTTL
	}
	return time.Duration(c.L3.TTLMS) * time.Millisecond
}

// CoordinatorConfig returns the effective batch settings.
func (b *BatchConfig) CoordinatorConfig() batch.Config {
	cfg := batch.DefaultConfig()
	if b.MinBatchSize > 0 {
		cfg.MinBatchSize = b.MinBatchSize
	}
	if b.MaxBatchSize > 0 {
		cfg.MaxBatchSize = b.MaxBatchSize
	}
	if b.FlushIntervalMS > 0 {
		cfg.FlushInterval = time.Duration(b.FlushIntervalMS) * time.Millisecond
	}
	if b.MaxQueueSize > 0 {
		cfg.MaxQueueSize = b.MaxQueueSize
	}
	return cfg
}

// Decay returns the effective decay policy.
func (b *BatchConfig) Decay() batch.DecayPolicy {
	if b.DecayFactor == nil {
		return batch.DefaultDecayPolicy()
	}
	return batch.DecayPolicy{Factor: *b.DecayFactor}
}

// PatternDBPath returns the SQLite path or its default.
func (s *StorageConfig) PatternDBPath() string {
	if s.PatternDB == "" {
		return "goap-patterns.db"
	}
	return s.PatternDB
}
