package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu      sync.Mutex
	batches [][]FieldUpdate
	missing map[string]error
}

func (f *fakeExecutor) ExecuteUpdates(ctx context.Context, updates []FieldUpdate) ([]error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]FieldUpdate, len(updates))
	copy(batch, updates)
	f.batches = append(f.batches, batch)
	errs := make([]error, len(updates))
	for i, u := range updates {
		if err, ok := f.missing[u.PatternID]; ok {
			errs[i] = err
		}
	}
	return errs, nil
}

func TestPatternProcessorForwardsUpdates(t *testing.T) {
	exec := &fakeExecutor{}
	cfg := DefaultConfig()
	cfg.FlushInterval = time.Hour
	p := NewPatternProcessor(cfg, exec)
	t.Cleanup(func() { _ = p.Close() })

	ctx := context.Background()
	d1, err := p.Update(ctx, FieldUpdate{
		PatternID: "pat-1",
		Fields:    map[string]any{"times_used": 4, "confidence": 0.8},
	}, PriorityHigh)
	require.NoError(t, err)
	d2, err := p.Update(ctx, FieldUpdate{
		PatternID: "pat-2",
		Fields:    map[string]any{"last_used": time.Now().UTC()},
	}, PriorityMedium)
	require.NoError(t, err)

	require.NoError(t, p.Flush(ctx))
	assert.NoError(t, <-d1)
	assert.NoError(t, <-d2)

	exec.mu.Lock()
	defer exec.mu.Unlock()
	require.Len(t, exec.batches, 1)
	require.Len(t, exec.batches[0], 2)
	assert.Equal(t, "pat-1", exec.batches[0][0].PatternID)
	assert.Equal(t, "pat-2", exec.batches[0][1].PatternID)
}

func TestPatternProcessorPerUpdateError(t *testing.T) {
	notFound := errors.New("pattern not found")
	exec := &fakeExecutor{missing: map[string]error{"gone": notFound}}
	cfg := DefaultConfig()
	cfg.FlushInterval = time.Hour
	p := NewPatternProcessor(cfg, exec)
	t.Cleanup(func() { _ = p.Close() })

	ctx := context.Background()
	dOK, err := p.Update(ctx, FieldUpdate{PatternID: "here", Fields: map[string]any{"confidence": 0.5}}, PriorityMedium)
	require.NoError(t, err)
	dBad, err := p.Update(ctx, FieldUpdate{PatternID: "gone", Fields: map[string]any{"confidence": 0.5}}, PriorityMedium)
	require.NoError(t, err)

	require.NoError(t, p.Flush(ctx))
	assert.NoError(t, <-dOK)
	assert.ErrorIs(t, <-dBad, notFound)
}

type fakeApplier struct {
	mu      sync.Mutex
	batches [][]CombinedUpdate
	failFor map[string]error
}

func (f *fakeApplier) ApplyConfidence(ctx context.Context, updates []CombinedUpdate) ([]error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]CombinedUpdate, len(updates))
	copy(batch, updates)
	f.batches = append(f.batches, batch)
	errs := make([]error, len(updates))
	for i, u := range updates {
		if err, ok := f.failFor[u.PatternID]; ok {
			errs[i] = err
		}
	}
	return errs, nil
}

func TestConfidenceUpdaterGroupsByPattern(t *testing.T) {
	app := &fakeApplier{}
	cfg := DefaultConfig()
	cfg.FlushInterval = time.Hour
	u := NewConfidenceUpdater(cfg, app, DefaultDecayPolicy())
	t.Cleanup(func() { _ = u.Close() })

	ctx := context.Background()
	now := time.Now().UTC()
	var dones []<-chan error
	for _, obs := range []Observation{
		{PatternID: "pat-a", Success: true, ActualCost: 4, ObservedAt: now},
		{PatternID: "pat-b", Success: true, ActualCost: 2, ObservedAt: now},
		{PatternID: "pat-a", Success: true, ActualCost: 5, ObservedAt: now},
		{PatternID: "pat-a", Success: true, ActualCost: 6, ObservedAt: now},
	} {
		done, err := u.Observe(ctx, obs)
		require.NoError(t, err)
		dones = append(dones, done)
	}

	require.NoError(t, u.Flush(ctx))
	for _, done := range dones {
		assert.NoError(t, <-done)
	}

	app.mu.Lock()
	defer app.mu.Unlock()
	require.Len(t, app.batches, 1)
	batch := app.batches[0]
	require.Len(t, batch, 2, "three pat-a observations collapse into one update")

	byID := map[string]CombinedUpdate{}
	for _, g := range batch {
		byID[g.PatternID] = g
	}
	assert.Len(t, byID["pat-a"].Observations, 3)
	assert.Len(t, byID["pat-b"].Observations, 1)
	assert.InDelta(t, 0.95, byID["pat-a"].Decay.Factor, 1e-9)
}

func TestConfidenceUpdaterFailurePriority(t *testing.T) {
	app := &fakeApplier{}
	cfg := DefaultConfig()
	cfg.FlushInterval = time.Hour
	u := NewConfidenceUpdater(cfg, app, DefaultDecayPolicy())
	t.Cleanup(func() { _ = u.Close() })

	ctx := context.Background()
	_, err := u.Observe(ctx, Observation{PatternID: "slow", Success: true, ActualCost: 1})
	require.NoError(t, err)
	_, err = u.Observe(ctx, Observation{PatternID: "broken", Success: false, ActualCost: 9})
	require.NoError(t, err)

	require.NoError(t, u.Flush(ctx))

	app.mu.Lock()
	defer app.mu.Unlock()
	require.Len(t, app.batches, 1)
	// The failed observation was queued at higher priority and flushes
	// ahead of the earlier success.
	assert.Equal(t, "broken", app.batches[0][0].PatternID)
	assert.Equal(t, "slow", app.batches[0][1].PatternID)
}

func TestConfidenceUpdaterGroupErrorFansOut(t *testing.T) {
	gone := errors.New("pattern deleted")
	app := &fakeApplier{failFor: map[string]error{"pat-x": gone}}
	cfg := DefaultConfig()
	cfg.FlushInterval = time.Hour
	u := NewConfidenceUpdater(cfg, app, DefaultDecayPolicy())
	t.Cleanup(func() { _ = u.Close() })

	ctx := context.Background()
	d1, err := u.Observe(ctx, Observation{PatternID: "pat-x", Success: true, ActualCost: 1})
	require.NoError(t, err)
	d2, err := u.Observe(ctx, Observation{PatternID: "pat-x", Success: true, ActualCost: 2})
	require.NoError(t, err)
	d3, err := u.Observe(ctx, Observation{PatternID: "pat-y", Success: true, ActualCost: 3})
	require.NoError(t, err)

	require.NoError(t, u.Flush(ctx))
	assert.ErrorIs(t, <-d1, gone)
	assert.ErrorIs(t, <-d2, gone)
	assert.NoError(t, <-d3)
}

func TestConfidenceUpdaterDefaultsDecay(t *testing.T) {
	app := &fakeApplier{}
	u := NewConfidenceUpdater(DefaultConfig(), app, DecayPolicy{Factor: -1})
	t.Cleanup(func() { _ = u.Close() })
	assert.InDelta(t, 0.95, u.decay.Factor, 1e-9)
}

func TestObserveStampsTime(t *testing.T) {
	app := &fakeApplier{}
	cfg := DefaultConfig()
	cfg.FlushInterval = time.Hour
	u := NewConfidenceUpdater(cfg, app, DefaultDecayPolicy())
	t.Cleanup(func() { _ = u.Close() })

	ctx := context.Background()
	done, err := u.Observe(ctx, Observation{PatternID: "pat-t", Success: true, ActualCost: 1})
	require.NoError(t, err)
	require.NoError(t, u.Flush(ctx))
	require.NoError(t, <-done)

	app.mu.Lock()
	defer app.mu.Unlock()
	require.Len(t, app.batches, 1)
	assert.False(t, app.batches[0][0].Observations[0].ObservedAt.IsZero())
}