package plan

import (
	"time"

	"github.com/google/uuid"

	"github.com/zero-day-ai/goap/state"
)

// MetadataPatternID is the Context metadata key holding the id of the
// pattern a plan was reconstructed from. Absent on freshly searched
// plans.
const MetadataPatternID = "pattern_id"

// Context records the planning request a plan answers, plus free-form
// metadata attached by the planner.
type Context struct {
	// CurrentState is the world state the plan starts from.
	CurrentState state.State `json:"current_state"`

	// GoalState is the partial state the plan must reach.
	GoalState state.State `json:"goal_state"`

	// Metadata holds auxiliary planner annotations, such as the source
	// pattern id for pattern-based plans.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Plan is an ordered sequence of actions reaching a goal state, plus
// aggregate estimates and the originating context.
type Plan struct {
	// ID uniquely identifies the plan.
	ID string `json:"id"`

	// Actions is the ordered action sequence. An empty sequence means
	// no plan was found; this is a reportable outcome, not an error.
	Actions []*Action `json:"actions"`

	// TotalCost is the summed risk-adjusted cost of the actions.
	TotalCost float64 `json:"total_cost"`

	// EstimatedTime is the summed development hours, unscaled by risk.
	EstimatedTime float64 `json:"estimated_time"`

	// SuccessRate is the historical success rate of the source
	// pattern. Zero for freshly searched plans.
	SuccessRate float64 `json:"success_rate,omitempty"`

	// Confidence is the source pattern's confidence. Zero for freshly
	// searched plans.
	Confidence float64 `json:"confidence,omitempty"`

	// CreatedAt is when the plan was produced.
	CreatedAt time.Time `json:"created_at"`

	// Context is the originating request.
	Context Context `json:"context"`
}

// New assembles a Plan over the given action sequence, computing the
// aggregate cost fields with the supplied risk factors.
func New(actions []*Action, current, goal state.State, factors RiskFactors) *Plan {
	p := &Plan{
		ID:        uuid.New().String(),
		Actions:   actions,
		CreatedAt: time.Now(),
		Context: Context{
			CurrentState: current.Clone(),
			GoalState:    goal.Clone(),
		},
	}
	for _, a := range actions {
		p.TotalCost += a.Cost.Total(factors)
		p.EstimatedTime += a.Cost.DevelopmentHours
	}
	return p
}

// Empty reports whether the plan carries no actions.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Actions) == 0
}

// PatternID returns the source pattern id for pattern-based plans, or
// an empty string for searched plans.
func (p *Plan) PatternID() string {
	if p == nil || p.Context.Metadata == nil {
		return ""
	}
	id, _ := p.Context.Metadata[MetadataPatternID].(string)
	return id
}

// SetMetadata attaches a metadata entry, initializing the map if
// needed.
func (p *Plan) SetMetadata(key string, value any) {
	if p.Context.Metadata == nil {
		p.Context.Metadata = make(map[string]any)
	}
	p.Context.Metadata[key] = value
}

// ActionIDs returns the ordered ids of the plan's actions.
func (p *Plan) ActionIDs() []string {
	ids := make([]string, len(p.Actions))
	for i, a := range p.Actions {
		ids[i] = a.ID
	}
	return ids
}
