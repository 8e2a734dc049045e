package batch

import (
	"context"
	"fmt"
	"time"
)

// FieldUpdate is a partial update to one stored pattern: only the
// named fields change.
type FieldUpdate struct {
	PatternID string         `json:"pattern_id"`
	Fields    map[string]any `json:"fields"`
}

// UpdateExecutor applies a batch of field updates in one transaction.
// Implementations return per-update errors plus an overall error with
// Handler semantics.
type UpdateExecutor interface {
	ExecuteUpdates(ctx context.Context, updates []FieldUpdate) ([]error, error)
}

// PatternProcessor is a Coordinator specialized for pattern field
// updates.
type PatternProcessor struct {
	*Coordinator
}

// NewPatternProcessor builds a coordinator whose handler forwards
// batched FieldUpdate operations to exec.
func NewPatternProcessor(cfg Config, exec UpdateExecutor, opts ...Option) *PatternProcessor {
	handler := func(ctx context.Context, ops []any) ([]error, error) {
		updates := make([]FieldUpdate, 0, len(ops))
		idx := make([]int, 0, len(ops))
		errs := make([]error, len(ops))
		for i, op := range ops {
			u, ok := op.(FieldUpdate)
			if !ok {
				errs[i] = fmt.Errorf("batch: unexpected operation type %T", op)
				continue
			}
			updates = append(updates, u)
			idx = append(idx, i)
		}
		upErrs, err := exec.ExecuteUpdates(ctx, updates)
		if err != nil {
			return nil, err
		}
		for j, e := range upErrs {
			if j < len(idx) {
				errs[idx[j]] = e
			}
		}
		return errs, nil
	}
	return &PatternProcessor{Coordinator: New(cfg, handler, opts...)}
}

// Update enqueues a field update. Priority defaults sensibly to
// PriorityMedium for routine metadata writes; callers tracking
// execution outcomes typically use PriorityHigh.
func (p *PatternProcessor) Update(ctx context.Context, u FieldUpdate, priority Priority) (<-chan error, error) {
	return p.Add(ctx, u, priority)
}

// Observation reports one execution of a stored pattern.
type Observation struct {
	PatternID  string    `json:"pattern_id"`
	Success    bool      `json:"success"`
	ActualCost float64   `json:"actual_cost"`
	ObservedAt time.Time `json:"observed_at"`
}

// DecayPolicy controls staleness decay applied before merging fresh
// observations. Factor is raised to (days since last use / 30); a
// Factor of 1 disables decay.
type DecayPolicy struct {
	Factor float64 `yaml:"factor" json:"factor"`
}

// DefaultDecayPolicy returns the baseline decay configuration.
func DefaultDecayPolicy() DecayPolicy {
	return DecayPolicy{Factor: 0.95}
}

// CombinedUpdate carries every observation for one pattern in a batch,
// so the store performs a single read-modify-write per pattern.
type CombinedUpdate struct {
	PatternID    string        `json:"pattern_id"`
	Observations []Observation `json:"observations"`
	Decay        DecayPolicy   `json:"decay"`
}

// ConfidenceApplier merges combined confidence updates in one
// transaction. The returned errors slice is indexed like updates.
type ConfidenceApplier interface {
	ApplyConfidence(ctx context.Context, updates []CombinedUpdate) ([]error, error)
}

// ConfidenceUpdater is a Coordinator specialized for pattern
// confidence maintenance. Observations queued between flushes are
// grouped by pattern id, so the write cost of a flush scales with the
// number of distinct patterns rather than the number of observations.
type ConfidenceUpdater struct {
	*Coordinator
	decay DecayPolicy
}

// NewConfidenceUpdater builds a coordinator whose handler groups
// batched Observations per pattern and forwards them to applier.
func NewConfidenceUpdater(cfg Config, applier ConfidenceApplier, decay DecayPolicy, opts ...Option) *ConfidenceUpdater {
	if decay.Factor <= 0 || decay.Factor > 1 {
		decay = DefaultDecayPolicy()
	}
	u := &ConfidenceUpdater{decay: decay}
	handler := func(ctx context.Context, ops []any) ([]error, error) {
		errs := make([]error, len(ops))

		// Group observations per pattern, keeping first-seen order so
		// flush output is deterministic.
		groups := make(map[string]*CombinedUpdate)
		var order []string
		indices := make(map[string][]int)
		for i, op := range ops {
			obs, ok := op.(Observation)
			if !ok {
				errs[i] = fmt.Errorf("batch: unexpected operation type %T", op)
				continue
			}
			g, seen := groups[obs.PatternID]
			if !seen {
				g = &CombinedUpdate{PatternID: obs.PatternID, Decay: u.decay}
				groups[obs.PatternID] = g
				order = append(order, obs.PatternID)
			}
			g.Observations = append(g.Observations, obs)
			indices[obs.PatternID] = append(indices[obs.PatternID], i)
		}

		updates := make([]CombinedUpdate, 0, len(order))
		for _, id := range order {
			updates = append(updates, *groups[id])
		}

		upErrs, err := applier.ApplyConfidence(ctx, updates)
		if err != nil {
			return nil, err
		}
		// A group's error fans back out to every observation in it.
		for j, id := range order {
			var groupErr error
			if j < len(upErrs) {
				groupErr = upErrs[j]
			}
			if groupErr == nil {
				continue
			}
			for _, i := range indices[id] {
				errs[i] = groupErr
			}
		}
		return errs, nil
	}
	u.Coordinator = New(cfg, handler, opts...)
	return u
}

// Observe enqueues one execution observation. Failed executions are
// queued at PriorityHigh so confidence drops promptly; successes use
// PriorityMedium.
func (u *ConfidenceUpdater) Observe(ctx context.Context, obs Observation) (<-chan error, error) {
	if obs.ObservedAt.IsZero() {
		obs.ObservedAt = time.Now().UTC()
	}
	priority := PriorityMedium
	if !obs.Success {
		priority = PriorityHigh
	}
	return u.Add(ctx, obs, priority)
}
