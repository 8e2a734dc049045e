package pattern

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zero-day-ai/goap/state"
)

// Common errors returned by the pattern library.
var (
	// ErrNotFound indicates the requested pattern does not exist.
	ErrNotFound = errors.New("pattern: not found")

	// ErrInvalidPattern indicates a pattern failed validation before
	// storage.
	ErrInvalidPattern = errors.New("pattern: invalid pattern")
)

// Type classifies what a pattern captures.
type Type string

const (
	// TypeActionSequence is a learned ordered list of action ids that
	// previously achieved a goal.
	TypeActionSequence Type = "action_sequence"
)

// IsValid returns true if the type is a recognized pattern type.
func (t Type) IsValid() bool {
	return t == TypeActionSequence
}

// GeneralizationLevel describes how broadly a pattern is expected to
// transfer. It is descriptive only; matching never branches on it.
type GeneralizationLevel string

const (
	GeneralizationSpecific GeneralizationLevel = "specific"
	GeneralizationModerate GeneralizationLevel = "moderate"
	GeneralizationGeneral  GeneralizationLevel = "general"
)

// IsValid returns true if the level is one of the defined values.
func (g GeneralizationLevel) IsValid() bool {
	switch g {
	case GeneralizationSpecific, GeneralizationModerate, GeneralizationGeneral:
		return true
	}
	return false
}

// Context records the states a pattern was learned under.
type Context struct {
	GoalState    state.State `json:"goal_state"`
	CurrentState state.State `json:"current_state"`
}

// ActionSequence is the recorded plan body of a pattern.
type ActionSequence struct {
	ActionIDs   []string `json:"action_ids"`
	TotalCost   float64  `json:"total_cost"`
	SuccessRate float64  `json:"success_rate"`
	Condition   string   `json:"condition,omitempty"`
}

// LearningMetrics accumulates execution history for one pattern.
// Confidence blends success rate with cost predictability and is
// always clamped to [0, 1].
type LearningMetrics struct {
	TimesUsed    int     `json:"times_used"`
	SuccessCount int     `json:"success_count"`
	AverageCost  float64 `json:"average_cost"`
	CostVariance float64 `json:"cost_variance"`
	Confidence   float64 `json:"confidence"`
}

// SuccessRate returns success_count / times_used, or zero before any
// use.
func (m LearningMetrics) SuccessRate() float64 {
	if m.TimesUsed == 0 {
		return 0
	}
	return float64(m.SuccessCount) / float64(m.TimesUsed)
}

// Pattern is a learned, reusable planning fact.
type Pattern struct {
	ID             string              `json:"id"`
	Type           Type                `json:"type"`
	Context        Context             `json:"context"`
	Sequence       ActionSequence      `json:"action_sequence"`
	Metrics        LearningMetrics     `json:"learning_metrics"`
	Generalization GeneralizationLevel `json:"generalization_level"`
	Payload        []byte              `json:"payload,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	LastUsed       time.Time           `json:"last_used"`
}

// New creates an action-sequence pattern from a freshly planned
// result. Confidence starts at 0.5 and the success rate at 1.0; both
// converge toward observed behavior as outcomes arrive.
func New(current, goal state.State, actionIDs []string, totalCost float64) *Pattern {
	now := time.Now().UTC()
	ids := make([]string, len(actionIDs))
	copy(ids, actionIDs)
	return &Pattern{
		ID:   uuid.New().String(),
		Type: TypeActionSequence,
		Context: Context{
			GoalState:    goal.Clone(),
			CurrentState: current.Clone(),
		},
		Sequence: ActionSequence{
			ActionIDs:   ids,
			TotalCost:   totalCost,
			SuccessRate: 1.0,
		},
		Metrics: LearningMetrics{
			Confidence: 0.5,
		},
		Generalization: GeneralizationSpecific,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate checks structural correctness before storage.
func (p *Pattern) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidPattern)
	}
	if !p.Type.IsValid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidPattern, p.Type)
	}
	if len(p.Sequence.ActionIDs) == 0 {
		return fmt.Errorf("%w: empty action sequence", ErrInvalidPattern)
	}
	if p.Generalization != "" && !p.Generalization.IsValid() {
		return fmt.Errorf("%w: unknown generalization level %q", ErrInvalidPattern, p.Generalization)
	}
	if p.Metrics.Confidence < 0 || p.Metrics.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.3f outside [0,1]", ErrInvalidPattern, p.Metrics.Confidence)
	}
	return nil
}

// Clone returns a deep copy, so cached patterns can be handed out
// without aliasing the library's copy.
func (p *Pattern) Clone() *Pattern {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Context.GoalState = p.Context.GoalState.Clone()
	cp.Context.CurrentState = p.Context.CurrentState.Clone()
	cp.Sequence.ActionIDs = append([]string(nil), p.Sequence.ActionIDs...)
	if p.Payload != nil {
		cp.Payload = append([]byte(nil), p.Payload...)
	}
	return &cp
}

// Match pairs a pattern with its similarity to a query context.
type Match struct {
	Pattern    *Pattern `json:"pattern"`
	Similarity float64  `json:"similarity"`
}

// Stats summarizes the stored pattern population.
type Stats struct {
	TotalPatterns     int     `json:"total_patterns"`
	AverageConfidence float64 `json:"average_confidence"`
	TotalUses         int     `json:"total_uses"`
	TotalSuccesses    int     `json:"total_successes"`
}
