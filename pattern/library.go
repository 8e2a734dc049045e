package pattern

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zero-day-ai/goap/batch"
	"github.com/zero-day-ai/goap/cache"
	"github.com/zero-day-ai/goap/plan"
	"github.com/zero-day-ai/goap/state"
)

// Library is the reuse surface over stored patterns. Reads cascade
// through the multi-level cache before reaching the store; writes to
// learning metrics go through batched coordinators so bursts of
// outcome tracking collapse into few transactions.
type Library struct {
	store   Store
	cache   *cache.MultiLevel
	queries *cache.QueryCache
	logger  *slog.Logger

	updates    *batch.PatternProcessor
	confidence *batch.ConfidenceUpdater
}

// LibraryOption configures a Library.
type LibraryOption func(*libraryConfig)

type libraryConfig struct {
	cache    *cache.MultiLevel
	queries  *cache.QueryCache
	logger   *slog.Logger
	batchCfg batch.Config
	decay    batch.DecayPolicy
}

// WithCache supplies the entity cache. Without it the library builds
// one from the default tier configurations.
func WithCache(c *cache.MultiLevel) LibraryOption {
	return func(cfg *libraryConfig) {
		if c != nil {
			cfg.cache = c
		}
	}
}

// WithQueryCache enables Redis-backed memoization of similarity
// queries.
func WithQueryCache(qc *cache.QueryCache) LibraryOption {
	return func(cfg *libraryConfig) { cfg.queries = qc }
}

// WithLogger sets the library's logger. Nil selects slog.Default().
func WithLogger(logger *slog.Logger) LibraryOption {
	return func(cfg *libraryConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithBatchConfig tunes both write coordinators.
func WithBatchConfig(bc batch.Config) LibraryOption {
	return func(cfg *libraryConfig) { cfg.batchCfg = bc }
}

// WithDecay sets the staleness decay applied during confidence
// updates.
func WithDecay(d batch.DecayPolicy) LibraryOption {
	return func(cfg *libraryConfig) { cfg.decay = d }
}

// NewLibrary builds a Library over the given store.
func NewLibrary(store Store, opts ...LibraryOption) (*Library, error) {
	if store == nil {
		return nil, errors.New("pattern: nil store")
	}
	cfg := &libraryConfig{
		logger:   slog.Default(),
		batchCfg: batch.DefaultConfig(),
		decay:    batch.DefaultDecayPolicy(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.cache == nil {
		ml, err := cache.NewMultiLevel(cache.DefaultL1Config(), cache.DefaultL2Config(), cache.WithLogger(cfg.logger))
		if err != nil {
			return nil, fmt.Errorf("pattern: build cache: %w", err)
		}
		cfg.cache = ml
	}

	lib := &Library{
		store:   store,
		cache:   cfg.cache,
		queries: cfg.queries,
		logger:  cfg.logger,
	}
	lib.updates = batch.NewPatternProcessor(cfg.batchCfg, store, batch.WithLogger(cfg.logger))
	lib.confidence = batch.NewConfidenceUpdater(cfg.batchCfg, store, cfg.decay, batch.WithLogger(cfg.logger))
	return lib, nil
}

// cacheKey namespaces pattern ids within the shared entity cache.
func cacheKey(id string) string { return "pattern:" + id }

// Get fetches one pattern by id, filling the cache on a store hit.
// Missing ids return ErrNotFound.
func (l *Library) Get(ctx context.Context, id string) (*Pattern, error) {
	v, err := l.cache.Get(ctx, cacheKey(id), func(ctx context.Context, _ string) (any, error) {
		p, err := l.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	p, ok := v.(*Pattern)
	if !ok {
		return nil, fmt.Errorf("pattern: unexpected cache value %T for %s", v, id)
	}
	return p.Clone(), nil
}

// FindMatching returns stored patterns whose context resembles the
// query, ranked by similarity then confidence. Patterns scoring below
// threshold are dropped. Repeated identical queries within the query
// cache TTL are served from Redis without recomputing similarity.
func (l *Library) FindMatching(ctx context.Context, current, goal state.State, threshold float64) ([]Match, error) {
	qkey := matchQueryKey(current, goal, threshold)
	if l.queries != nil {
		if raw, ok, err := l.queries.Get(ctx, qkey); err != nil {
			l.logger.Warn("query cache get failed", "error", err)
		} else if ok {
			var matches []Match
			if err := json.Unmarshal(raw, &matches); err == nil {
				return matches, nil
			}
			// Corrupt entry: fall through and recompute.
		}
	}

	patterns, err := l.store.Query(ctx, Filter{Type: TypeActionSequence})
	if err != nil {
		return nil, fmt.Errorf("pattern: query: %w", err)
	}
	matches := Rank(patterns, current, goal, threshold)

	if l.queries != nil {
		if raw, err := json.Marshal(matches); err == nil {
			if err := l.queries.Set(ctx, qkey, raw); err != nil {
				l.logger.Warn("query cache set failed", "error", err)
			}
		}
	}
	return matches, nil
}

// ReconstructPlan maps a pattern's recorded action ids back to live
// actions and verifies the sequence still reaches the goal from the
// current state. A nil return (with nil error) means the pattern is
// stale: an action disappeared, a precondition no longer holds, or the
// goal is no longer reached. Storage never participates here, so there
// is no error path.
func (l *Library) ReconstructPlan(p *Pattern, current, goal state.State, available map[string]*plan.Action) []*plan.Action {
	actions := make([]*plan.Action, 0, len(p.Sequence.ActionIDs))
	for _, id := range p.Sequence.ActionIDs {
		a, ok := available[id]
		if !ok {
			l.logger.Debug("pattern references unavailable action",
				"pattern_id", p.ID, "action_id", id)
			return nil
		}
		actions = append(actions, a)
	}

	final, err := plan.Replay(actions, current)
	if err != nil {
		l.logger.Debug("pattern replay failed", "pattern_id", p.ID, "error", err)
		return nil
	}
	if !final.Satisfies(goal) {
		l.logger.Debug("pattern no longer reaches goal", "pattern_id", p.ID)
		return nil
	}
	return actions
}

// StorePattern validates and persists a new pattern, write-through to
// the entity cache.
func (l *Library) StorePattern(ctx context.Context, p *Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := l.store.Insert(ctx, p); err != nil {
		return fmt.Errorf("pattern: insert %s: %w", p.ID, err)
	}
	l.cache.Set(cacheKey(p.ID), p.Clone())
	return nil
}

// UpdateFromOutcome queues a confidence update for the pattern that
// produced an executed plan. An execution counts as a success only
// when the actions completed and the goal actually held afterwards;
// a run that finished without reaching the goal lowers confidence.
//
// The returned channel resolves once the update's batch commits. The
// cached copy is invalidated again at that point, so reads issued
// after the channel resolves observe post-commit metrics. Reads that
// race the in-flight batch may still see the pre-commit row.
func (l *Library) UpdateFromOutcome(ctx context.Context, patternID string, outcome *plan.ExecutionOutcome) (<-chan error, error) {
	if patternID == "" {
		return nil, fmt.Errorf("%w: empty pattern id", ErrInvalidPattern)
	}
	l.cache.Delete(cacheKey(patternID))
	done, err := l.confidence.Observe(ctx, batch.Observation{
		PatternID:  patternID,
		Success:    outcome.Success && outcome.AchievedGoal,
		ActualCost: outcome.ActualCost,
		ObservedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	committed := make(chan error, 1)
	go func() {
		res := <-done
		l.cache.Delete(cacheKey(patternID))
		committed <- res
	}()
	return committed, nil
}

// UpdateFields queues a partial field update for one pattern.
func (l *Library) UpdateFields(ctx context.Context, patternID string, fields map[string]any, priority batch.Priority) (<-chan error, error) {
	if patternID == "" {
		return nil, fmt.Errorf("%w: empty pattern id", ErrInvalidPattern)
	}
	l.cache.Delete(cacheKey(patternID))
	return l.updates.Update(ctx, batch.FieldUpdate{PatternID: patternID, Fields: fields}, priority)
}

// Patterns returns stored patterns matching the filter, straight from
// the store.
func (l *Library) Patterns(ctx context.Context, f Filter) ([]*Pattern, error) {
	return l.store.Query(ctx, f)
}

// Stats returns aggregate statistics over the stored population.
func (l *Library) Stats(ctx context.Context) (Stats, error) {
	return l.store.Stats(ctx)
}

// CacheStats exposes the entity cache tier counters.
func (l *Library) CacheStats() cache.Stats {
	return l.cache.Stats()
}

// Warm bulk-loads the top n patterns by confidence into the cache
// tiers. Intended to run once at startup before serving traffic.
func (l *Library) Warm(ctx context.Context, n int) error {
	return l.cache.Warm(ctx, func(ctx context.Context) (map[string]any, error) {
		patterns, err := l.store.Query(ctx, Filter{
			Type:    TypeActionSequence,
			OrderBy: OrderByConfidence,
			Limit:   n,
		})
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(patterns))
		for _, p := range patterns {
			out[cacheKey(p.ID)] = p
		}
		return out, nil
	})
}

// Flush drains both write coordinators. Callers needing read-your-
// writes semantics across coordinators await this before reading.
func (l *Library) Flush(ctx context.Context) error {
	if err := l.updates.Flush(ctx); err != nil {
		return err
	}
	return l.confidence.Flush(ctx)
}

// Close drains the coordinators and releases the store and query
// cache.
func (l *Library) Close() error {
	var firstErr error
	if err := l.updates.Close(); err != nil {
		firstErr = err
	}
	if err := l.confidence.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if l.queries != nil {
		if err := l.queries.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := l.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// matchQueryKey derives a stable cache key from the canonical forms of
// both states plus the threshold.
func matchQueryKey(current, goal state.State, threshold float64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%.6f", current.Key(), goal.Key(), threshold)
	return "match:" + hex.EncodeToString(h.Sum(nil)[:16])
}
