package goap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/zero-day-ai/goap/config"
	"github.com/zero-day-ai/goap/pattern"
	"github.com/zero-day-ai/goap/plan"
	"github.com/zero-day-ai/goap/search"
	"github.com/zero-day-ai/goap/state"
)

// OutcomeSink receives every tracked execution outcome. It is
// append-only from the planner's perspective; nothing in the planning
// path reads it back.
type OutcomeSink interface {
	Append(ctx context.Context, outcome *plan.ExecutionOutcome) error
}

// statsAlpha is the EMA smoothing factor for running planner averages.
const statsAlpha = 0.1

// patternBoostThreshold is the minimum similarity before a stored
// pattern is allowed to pull the search heuristic toward states it
// applies to.
const patternBoostThreshold = 0.7

// Stats is a snapshot of planner-level statistics. Averages are
// exponential moving averages with smoothing factor 0.1.
type Stats struct {
	TotalPlans       uint64        `json:"total_plans"`
	PatternBased     uint64        `json:"pattern_based_plans"`
	SearchBased      uint64        `json:"search_based_plans"`
	FailedPlans      uint64        `json:"failed_plans"`
	AvgPlanningTime  time.Duration `json:"avg_planning_time"`
	AvgPlanQuality   float64       `json:"avg_plan_quality"`
	PatternReuseRate float64       `json:"pattern_reuse_rate"`
	ReplanningRate   float64       `json:"replanning_rate"`
}

// TrackResult reports the planner's reaction to an execution outcome.
type TrackResult struct {
	// ReplanRecommended signals the caller should request a fresh plan
	// before retrying.
	ReplanRecommended bool

	// Reason explains a replan recommendation.
	Reason string

	// ConfidenceApplied resolves once the pattern confidence update
	// has committed, when the executed plan came from or seeded a
	// pattern. Nil otherwise.
	ConfidenceApplied <-chan error
}

// Planner plans action sequences toward goal states, reusing learned
// patterns before falling back to A* search, and folds execution
// outcomes back into pattern confidence.
type Planner struct {
	cfg     config.PlannerConfig
	logger  *slog.Logger
	tracer  trace.Tracer
	library *pattern.Library
	sink    OutcomeSink
	engine  *search.Engine

	planCounter  metric.Int64Counter
	planLatency  metric.Float64Histogram
	replanSignal metric.Int64Counter

	mu             sync.Mutex
	stats          Stats
	trackedTotal   uint64
	trackedReplans uint64
}

// NewPlanner creates a Planner with the given configuration.
func NewPlanner(cfg config.PlannerConfig, opts ...PlannerOption) (*Planner, error) {
	pc := &plannerConfig{}
	for _, opt := range opts {
		opt(pc)
	}
	if pc.logger == nil {
		pc.logger = slog.Default()
	}

	p := &Planner{
		cfg:     cfg,
		logger:  pc.logger,
		tracer:  pc.tracer,
		library: pc.library,
		sink:    pc.sink,
		engine: search.NewEngine(&search.Config{
			MaxIterations: cfg.SearchDepth(),
			RiskFactors:   cfg.Factors(),
		}),
	}

	if pc.meter != nil {
		var err error
		if p.planCounter, err = pc.meter.Int64Counter("goap.plans",
			metric.WithDescription("Planning requests by origin and result")); err != nil {
			return nil, NewInternalError("NewPlanner", err)
		}
		if p.planLatency, err = pc.meter.Float64Histogram("goap.planning_duration_ms",
			metric.WithDescription("Planning latency in milliseconds")); err != nil {
			return nil, NewInternalError("NewPlanner", err)
		}
		if p.replanSignal, err = pc.meter.Int64Counter("goap.replans_recommended",
			metric.WithDescription("Replanning recommendations issued")); err != nil {
			return nil, NewInternalError("NewPlanner", err)
		}
	}
	return p, nil
}

// learningEnabled reports whether pattern reuse is both configured on
// and backed by a library.
func (p *Planner) learningEnabled() bool {
	return p.library != nil && p.cfg.PatternLearningEnabled()
}

// Plan produces an action sequence from current to goal. Pattern reuse
// is attempted first; otherwise A* searches over the action table with
// a pattern-informed heuristic. A fresh search result is stored as a
// new pattern for future reuse.
//
// Exhausted search returns ErrNoPlan (kind "no_plan"), which callers
// treat as an expected negative outcome. Pattern persistence failures
// surface as storage errors and are never converted to "no plan".
func (p *Planner) Plan(ctx context.Context, current, goal state.State, actions []*plan.Action) (*plan.Plan, error) {
	const op = "Planner.Plan"

	if len(goal) == 0 {
		return nil, NewValidationError(op, ErrInvalidGoal)
	}
	if err := plan.ValidateActions(actions); err != nil {
		return nil, NewValidationError(op, fmt.Errorf("%w: %v", ErrInvalidActions, err))
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout())
	defer cancel()

	if p.tracer != nil {
		var span trace.Span
		ctx, span = p.tracer.Start(ctx, "goap.plan")
		defer span.End()
	}

	start := time.Now()

	var matches []pattern.Match
	if p.learningEnabled() {
		var err error
		matches, err = p.library.FindMatching(ctx, current, goal, p.cfg.MatchThreshold())
		if err != nil {
			p.recordFailure(ctx, "storage")
			return nil, NewStorageError(op, fmt.Errorf("%w: %v", ErrStorage, err))
		}

		if best := pattern.SelectBest(matches); best != nil && pattern.Applicable(best.Pattern, current) {
			if reused := p.library.ReconstructPlan(best.Pattern, current, goal, plan.Index(actions)); reused != nil {
				result := plan.New(reused, current, goal, p.cfg.Factors())
				result.Confidence = best.Pattern.Metrics.Confidence
				result.SuccessRate = patternSuccessRate(best.Pattern)
				result.SetMetadata(plan.MetadataPatternID, best.Pattern.ID)

				p.recordPlan(ctx, "pattern", time.Since(start), result.SuccessRate)
				p.logger.Debug("plan reused from pattern",
					"pattern_id", best.Pattern.ID,
					"similarity", best.Similarity,
					"confidence", result.Confidence)
				return result, nil
			}
		}
	}

	found := p.engine.Search(ctx, current, goal, actions, p.heuristic(matches))
	if len(found) == 0 {
		if err := ctx.Err(); err != nil {
			p.recordFailure(ctx, "timeout")
			return nil, NewTimeoutError(op, fmt.Errorf("%w: %v", ErrNoPlan, err))
		}
		p.recordFailure(ctx, "exhausted")
		return nil, &PlanError{Op: op, Kind: KindNoPlan, Err: ErrNoPlan}
	}

	result := plan.New(found, current, goal, p.cfg.Factors())

	if p.learningEnabled() {
		learned := pattern.New(current, goal, result.ActionIDs(), result.TotalCost)
		if err := p.library.StorePattern(ctx, learned); err != nil {
			p.recordFailure(ctx, "storage")
			return nil, NewStorageError(op, fmt.Errorf("%w: %v", ErrStorage, err))
		}
		// Tag the plan so tracked outcomes feed the new pattern.
		result.SetMetadata(plan.MetadataPatternID, learned.ID)
	}

	p.recordPlan(ctx, "search", time.Since(start), 0)
	p.logger.Debug("plan searched",
		"actions", len(result.Actions),
		"total_cost", result.TotalCost)
	return result, nil
}

// TrackExecution records an execution outcome: it appends to the
// outcome sink, queues a confidence update for the source pattern, and
// decides whether replanning is advisable.
func (p *Planner) TrackExecution(ctx context.Context, executed *plan.Plan, outcome *plan.ExecutionOutcome) (*TrackResult, error) {
	const op = "Planner.TrackExecution"

	if executed == nil || outcome == nil {
		return nil, NewValidationError(op, fmt.Errorf("nil plan or outcome"))
	}

	rec := *outcome
	if rec.PlanID == "" {
		rec.PlanID = executed.ID
	}
	if rec.EstimatedCost == 0 {
		rec.EstimatedCost = executed.TotalCost
	}

	res := &TrackResult{}

	if id := executed.PatternID(); id != "" && p.learningEnabled() {
		done, err := p.library.UpdateFromOutcome(ctx, id, &rec)
		if err != nil {
			return nil, NewBatchError(op, err)
		}
		res.ConfidenceApplied = done
	}

	if p.sink != nil {
		if err := p.sink.Append(ctx, &rec); err != nil {
			return nil, NewStorageError(op, fmt.Errorf("%w: %v", ErrStorage, err))
		}
	}

	if p.cfg.ReplanningEnabled() {
		switch {
		case !rec.AchievedGoal:
			res.ReplanRecommended = true
			res.Reason = "goal not achieved"
		case rec.CostVariance() > p.cfg.ReplanLimit():
			res.ReplanRecommended = true
			res.Reason = fmt.Sprintf("cost variance %.2f exceeds %.2f", rec.CostVariance(), p.cfg.ReplanLimit())
		}
	}
	p.recordTracked(ctx, res.ReplanRecommended)

	if res.ReplanRecommended {
		p.logger.Info("replanning recommended",
			"plan_id", rec.PlanID,
			"reason", res.Reason)
	}
	return res, nil
}

// WarmPatterns preloads the n highest-confidence patterns into the
// library's cache tiers. Intended to run once at startup before
// serving planning requests. Returns ErrLearningDisabled when pattern
// learning is off or no library is attached.
func (p *Planner) WarmPatterns(ctx context.Context, n int) error {
	const op = "Planner.WarmPatterns"
	if !p.learningEnabled() {
		return NewValidationError(op, ErrLearningDisabled)
	}
	if err := p.library.Warm(ctx, n); err != nil {
		return NewStorageError(op, fmt.Errorf("%w: %v", ErrStorage, err))
	}
	return nil
}

// Stats returns a snapshot of planner statistics.
func (p *Planner) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// heuristic builds the search heuristic: weighted goal distance,
// discounted near states where confident similar patterns apply, so
// search gravitates toward territory learning already trusts. The
// estimate stays non-negative and never overshoots below zero cost.
func (p *Planner) heuristic(matches []pattern.Match) search.Heuristic {
	base := search.GoalDistance(p.cfg.HeuristicWeights)
	scale := p.cfg.BoostScale()
	if len(matches) == 0 || scale <= 0 {
		return base
	}
	return func(current, goal state.State) float64 {
		h := base(current, goal)
		if h == 0 {
			return 0
		}
		var boost float64
		for _, m := range matches {
			s := pattern.Score(m.Pattern, current, goal)
			if s <= patternBoostThreshold {
				continue
			}
			boost += m.Pattern.Metrics.Confidence * s * scale
		}
		if boost >= h {
			return 0
		}
		return h - boost
	}
}

// patternSuccessRate prefers observed history over the recorded
// sequence estimate.
func patternSuccessRate(pat *pattern.Pattern) float64 {
	if pat.Metrics.TimesUsed > 0 {
		return pat.Metrics.SuccessRate()
	}
	return pat.Sequence.SuccessRate
}

func ema(current, sample float64) float64 {
	if current == 0 {
		return sample
	}
	return (1-statsAlpha)*current + statsAlpha*sample
}

func (p *Planner) recordPlan(ctx context.Context, origin string, elapsed time.Duration, quality float64) {
	p.mu.Lock()
	p.stats.TotalPlans++
	if origin == "pattern" {
		p.stats.PatternBased++
	} else {
		p.stats.SearchBased++
	}
	p.stats.AvgPlanningTime = time.Duration(ema(float64(p.stats.AvgPlanningTime), float64(elapsed)))
	if quality > 0 {
		p.stats.AvgPlanQuality = ema(p.stats.AvgPlanQuality, quality)
	}
	p.stats.PatternReuseRate = float64(p.stats.PatternBased) / float64(p.stats.TotalPlans)
	p.mu.Unlock()

	if p.planCounter != nil {
		p.planCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("origin", origin),
			attribute.String("result", "ok")))
	}
	if p.planLatency != nil {
		p.planLatency.Record(ctx, float64(elapsed)/float64(time.Millisecond),
			metric.WithAttributes(attribute.String("origin", origin)))
	}
}

func (p *Planner) recordFailure(ctx context.Context, reason string) {
	p.mu.Lock()
	p.stats.TotalPlans++
	p.stats.FailedPlans++
	if p.stats.TotalPlans > 0 {
		p.stats.PatternReuseRate = float64(p.stats.PatternBased) / float64(p.stats.TotalPlans)
	}
	p.mu.Unlock()

	if p.planCounter != nil {
		p.planCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("origin", "search"),
			attribute.String("result", reason)))
	}
}

func (p *Planner) recordTracked(ctx context.Context, replan bool) {
	p.mu.Lock()
	p.trackedTotal++
	if replan {
		p.trackedReplans++
	}
	p.stats.ReplanningRate = float64(p.trackedReplans) / float64(p.trackedTotal)
	p.mu.Unlock()

	if replan && p.replanSignal != nil {
		p.replanSignal.Add(ctx, 1)
	}
}
