package pattern

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/goap/batch"
	"github.com/zero-day-ai/goap/plan"
	"github.com/zero-day-ai/goap/state"
)

// memStore is an in-memory Store for library tests.
type memStore struct {
	mu       sync.Mutex
	patterns map[string]*Pattern
	gets     int
	queries  int
	failAll  error
}

func newMemStore() *memStore {
	return &memStore{patterns: make(map[string]*Pattern)}
}

func (s *memStore) Get(ctx context.Context, id string) (*Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.failAll != nil {
		return nil, s.failAll
	}
	p, ok := s.patterns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *memStore) Insert(ctx context.Context, p *Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	s.patterns[p.ID] = p.Clone()
	return nil
}

func (s *memStore) Query(ctx context.Context, f Filter) ([]*Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.failAll != nil {
		return nil, s.failAll
	}
	var out []*Pattern
	for _, p := range s.patterns {
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		if p.Metrics.Confidence < f.MinConfidence {
			continue
		}
		out = append(out, p.Clone())
	}
	switch f.OrderBy {
	case OrderByConfidence:
		sort.Slice(out, func(i, j int) bool {
			return out[i].Metrics.Confidence > out[j].Metrics.Confidence
		})
	case OrderByUsage:
		sort.Slice(out, func(i, j int) bool {
			return out[i].Metrics.TimesUsed > out[j].Metrics.TimesUsed
		})
	default:
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{TotalPatterns: len(s.patterns)}
	var conf float64
	for _, p := range s.patterns {
		conf += p.Metrics.Confidence
		st.TotalUses += p.Metrics.TimesUsed
		st.TotalSuccesses += p.Metrics.SuccessCount
	}
	if st.TotalPatterns > 0 {
		st.AverageConfidence = conf / float64(st.TotalPatterns)
	}
	return st, nil
}

func (s *memStore) ExecuteUpdates(ctx context.Context, updates []batch.FieldUpdate) ([]error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := make([]error, len(updates))
	for i, u := range updates {
		p, ok := s.patterns[u.PatternID]
		if !ok {
			errs[i] = ErrNotFound
			continue
		}
		if c, ok := u.Fields["confidence"].(float64); ok {
			p.Metrics.Confidence = c
		}
		p.UpdatedAt = time.Now().UTC()
	}
	return errs, nil
}

func (s *memStore) ApplyConfidence(ctx context.Context, updates []batch.CombinedUpdate) ([]error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := make([]error, len(updates))
	now := time.Now().UTC()
	for i, u := range updates {
		p, ok := s.patterns[u.PatternID]
		if !ok {
			errs[i] = ErrNotFound
			continue
		}
		p.Metrics.Decay(u.Decay.Factor, p.LastUsed, now)
		for _, obs := range u.Observations {
			p.Metrics.Observe(obs.Success, obs.ActualCost)
		}
		p.LastUsed = now
		p.UpdatedAt = now
	}
	return errs, nil
}

func (s *memStore) Close() error { return nil }

func newTestLibrary(t *testing.T, store Store) *Library {
	t.Helper()
	lib, err := NewLibrary(store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })
	return lib
}

func TestLibraryGetCaches(t *testing.T) {
	store := newMemStore()
	p := New(state.State{"c": state.Number(1)}, state.State{"g": state.Number(1)}, []string{"a"}, 1)
	require.NoError(t, store.Insert(context.Background(), p))

	lib := newTestLibrary(t, store)
	ctx := context.Background()

	got, err := lib.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = lib.Get(ctx, p.ID)
	require.NoError(t, err)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.gets, "second read served from cache")
}

func TestLibraryGetNotFound(t *testing.T) {
	lib := newTestLibrary(t, newMemStore())
	_, err := lib.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLibraryGetStorageFailurePropagates(t *testing.T) {
	store := newMemStore()
	store.failAll = errors.New("disk on fire")
	lib := newTestLibrary(t, store)
	_, err := lib.Get(context.Background(), "any")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestLibraryStoreAndFind(t *testing.T) {
	store := newMemStore()
	lib := newTestLibrary(t, store)
	ctx := context.Background()

	goal := state.State{"deployed": state.Bool(true)}
	current := state.State{"built": state.Bool(true)}
	p := New(current, goal, []string{"deploy"}, 2)
	require.NoError(t, lib.StorePattern(ctx, p))

	matches, err := lib.FindMatching(ctx, current, goal, 0.5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, p.ID, matches[0].Pattern.ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
}

func TestLibraryStoreRejectsInvalid(t *testing.T) {
	lib := newTestLibrary(t, newMemStore())
	p := New(state.State{}, state.State{"g": state.Number(1)}, nil, 0)
	assert.ErrorIs(t, lib.StorePattern(context.Background(), p), ErrInvalidPattern)
}

func TestLibraryReconstructPlan(t *testing.T) {
	build := &plan.Action{
		ID:            "build",
		Name:          "Build",
		Preconditions: state.State{"src": state.Bool(true)},
		Effects:       state.State{"built": state.Bool(true)},
		Cost:          plan.Cost{DevelopmentHours: 1, Risk: plan.RiskLow},
	}
	deploy := &plan.Action{
		ID:            "deploy",
		Name:          "Deploy",
		Preconditions: state.State{"built": state.Bool(true)},
		Effects:       state.State{"deployed": state.Bool(true)},
		Cost:          plan.Cost{DevelopmentHours: 1, Risk: plan.RiskLow},
	}
	require.NoError(t, plan.ValidateActions([]*plan.Action{build, deploy}))
	available := plan.Index([]*plan.Action{build, deploy})

	current := state.State{"src": state.Bool(true)}
	goal := state.State{"deployed": state.Bool(true)}
	p := New(current, goal, []string{"build", "deploy"}, 2)

	lib := newTestLibrary(t, newMemStore())

	t.Run("valid sequence reconstructs", func(t *testing.T) {
		actions := lib.ReconstructPlan(p, current, goal, available)
		require.Len(t, actions, 2)
		assert.Equal(t, "build", actions[0].ID)
		assert.Equal(t, "deploy", actions[1].ID)
	})

	t.Run("missing action returns nil", func(t *testing.T) {
		stale := New(current, goal, []string{"build", "removed"}, 2)
		assert.Nil(t, lib.ReconstructPlan(stale, current, goal, available))
	})

	t.Run("broken precondition chain returns nil", func(t *testing.T) {
		assert.Nil(t, lib.ReconstructPlan(p, state.State{"src": state.Bool(false)}, goal, available))
	})

	t.Run("goal not reached returns nil", func(t *testing.T) {
		other := state.State{"audited": state.Bool(true)}
		assert.Nil(t, lib.ReconstructPlan(p, current, other, available))
	})
}

func TestLibraryUpdateFromOutcome(t *testing.T) {
	store := newMemStore()
	lib := newTestLibrary(t, store)
	ctx := context.Background()

	current := state.State{"c": state.Number(1)}
	goal := state.State{"g": state.Number(1)}
	p := New(current, goal, []string{"a"}, 4)
	require.NoError(t, lib.StorePattern(ctx, p))

	done, err := lib.UpdateFromOutcome(ctx, p.ID, &plan.ExecutionOutcome{
		Success:       true,
		ActualCost:    4,
		EstimatedCost: 4,
		AchievedGoal:  true,
	})
	require.NoError(t, err)
	require.NoError(t, lib.Flush(ctx))
	require.NoError(t, <-done)

	got, err := lib.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Metrics.TimesUsed)
	assert.Equal(t, 1, got.Metrics.SuccessCount)
	assert.InDelta(t, 4, got.Metrics.AverageCost, 1e-9)
}

func TestLibraryOutcomeWithoutGoalIsNotASuccess(t *testing.T) {
	store := newMemStore()
	lib := newTestLibrary(t, store)
	ctx := context.Background()

	current := state.State{"c": state.Number(1)}
	goal := state.State{"g": state.Number(1)}
	p := New(current, goal, []string{"a"}, 4)
	seeded := p.Metrics.Confidence
	require.NoError(t, lib.StorePattern(ctx, p))

	done, err := lib.UpdateFromOutcome(ctx, p.ID, &plan.ExecutionOutcome{
		Success:       true,
		ActualCost:    4,
		EstimatedCost: 4,
		AchievedGoal:  false,
	})
	require.NoError(t, err)
	require.NoError(t, lib.Flush(ctx))
	require.NoError(t, <-done)

	got, err := lib.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Metrics.TimesUsed)
	assert.Zero(t, got.Metrics.SuccessCount, "run that missed the goal must not count as success")
	assert.Less(t, got.Metrics.Confidence, seeded)
}

func TestLibraryCacheRefreshedAfterCommit(t *testing.T) {
	store := newMemStore()
	lib := newTestLibrary(t, store)
	ctx := context.Background()

	p := New(state.State{"c": state.Number(1)}, state.State{"g": state.Number(1)}, []string{"a"}, 4)
	require.NoError(t, lib.StorePattern(ctx, p))

	done, err := lib.UpdateFromOutcome(ctx, p.ID, &plan.ExecutionOutcome{
		Success: true, ActualCost: 4, EstimatedCost: 4, AchievedGoal: true,
	})
	require.NoError(t, err)

	// A read racing the pending batch re-caches the pre-commit row.
	stale, err := lib.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, stale.Metrics.TimesUsed)

	require.NoError(t, lib.Flush(ctx))
	require.NoError(t, <-done)

	got, err := lib.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Metrics.TimesUsed, "post-commit read reloads from the store")
}

func TestLibraryCombinesOutcomesInOneFlush(t *testing.T) {
	store := newMemStore()
	lib := newTestLibrary(t, store)
	ctx := context.Background()

	p := New(state.State{"c": state.Number(1)}, state.State{"g": state.Number(1)}, []string{"a"}, 4)
	require.NoError(t, lib.StorePattern(ctx, p))

	var dones []<-chan error
	for i := 0; i < 3; i++ {
		done, err := lib.UpdateFromOutcome(ctx, p.ID, &plan.ExecutionOutcome{
			Success: true, ActualCost: 4, EstimatedCost: 4, AchievedGoal: true,
		})
		require.NoError(t, err)
		dones = append(dones, done)
	}
	require.NoError(t, lib.Flush(ctx))
	for _, done := range dones {
		require.NoError(t, <-done)
	}

	got, err := lib.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Metrics.TimesUsed)
	assert.Equal(t, 3, got.Metrics.SuccessCount)
}

func TestLibraryWarm(t *testing.T) {
	store := newMemStore()
	lib := newTestLibrary(t, store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		p := New(state.State{"c": state.Number(float64(i))}, state.State{"g": state.Number(1)}, []string{"a"}, 1)
		p.Metrics.Confidence = float64(i) / 10
		require.NoError(t, store.Insert(ctx, p))
	}

	require.NoError(t, lib.Warm(ctx, 3))

	// Warmed patterns are served from cache.
	patterns, err := lib.Patterns(ctx, Filter{OrderBy: OrderByConfidence, Limit: 3})
	require.NoError(t, err)
	for _, p := range patterns {
		_, err := lib.Get(ctx, p.ID)
		require.NoError(t, err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Zero(t, store.gets, "warmed entries never hit the store")
	assert.Greater(t, store.queries, 0)
}

func TestLibraryStats(t *testing.T) {
	store := newMemStore()
	lib := newTestLibrary(t, store)
	ctx := context.Background()

	p1 := New(state.State{"a": state.Number(1)}, state.State{"g": state.Number(1)}, []string{"x"}, 1)
	p1.Metrics.Confidence = 0.4
	p2 := New(state.State{"b": state.Number(1)}, state.State{"g": state.Number(1)}, []string{"y"}, 1)
	p2.Metrics.Confidence = 0.8
	require.NoError(t, store.Insert(ctx, p1))
	require.NoError(t, store.Insert(ctx, p2))

	st, err := lib.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalPatterns)
	assert.InDelta(t, 0.6, st.AverageConfidence, 1e-9)
}
