package plan

import (
	"math"
	"time"
)

// ExecutionOutcome reports what actually happened when a plan was run
// by an external executor. The planner consumes outcomes to update
// pattern confidence and to decide whether replanning is advisable; it
// never executes actions itself.
type ExecutionOutcome struct {
	// PlanID identifies the executed plan.
	PlanID string `json:"plan_id"`

	// Success indicates the executor completed the plan without
	// aborting.
	Success bool `json:"success"`

	// AchievedGoal indicates the goal state actually held after
	// execution. A plan can complete without achieving its goal when
	// the world shifted underneath it.
	AchievedGoal bool `json:"achieved_goal"`

	// ActualCost is the observed cost of execution.
	ActualCost float64 `json:"actual_cost"`

	// EstimatedCost is the plan's predicted cost, carried over for
	// variance computation.
	EstimatedCost float64 `json:"estimated_cost"`

	// ExecutionTime is the wall-clock duration of the run.
	ExecutionTime time.Duration `json:"execution_time"`

	// Errors lists executor-reported failures, if any.
	Errors []string `json:"errors,omitempty"`

	// Lessons lists free-text observations the executor wants recorded
	// with the outcome.
	Lessons []string `json:"lessons,omitempty"`

	// CompletedAt is when the execution finished.
	CompletedAt time.Time `json:"completed_at"`
}

// CostVariance returns the relative deviation of actual from estimated
// cost: |actual − estimated| / estimated. Zero when no estimate was
// recorded.
func (o *ExecutionOutcome) CostVariance() float64 {
	if o.EstimatedCost == 0 {
		return 0
	}
	return math.Abs(o.ActualCost-o.EstimatedCost) / o.EstimatedCost
}
