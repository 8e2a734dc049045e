package plan

import (
	"errors"
	"fmt"

	"github.com/zero-day-ai/goap/state"
)

// Common errors returned by action-table validation.
var (
	// ErrDuplicateAction is returned when an action table contains the
	// same action id more than once.
	ErrDuplicateAction = errors.New("plan: duplicate action id")

	// ErrEmptyActionID is returned when an action has no id.
	ErrEmptyActionID = errors.New("plan: action id is empty")

	// ErrInvalidGuard is returned when an action guard expression does
	// not compile.
	ErrInvalidGuard = errors.New("plan: invalid guard expression")
)

// Risk classifies the delivery risk of an action. The risk tier scales
// the action's effective search cost through a RiskFactors table.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// IsValid returns true if the Risk is one of the defined tiers.
func (r Risk) IsValid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (r Risk) String() string {
	return string(r)
}

// RiskFactors maps a risk tier to a cost multiplier. The table is a
// configuration knob; DefaultRiskFactors provides the baseline values.
type RiskFactors map[Risk]float64

// DefaultRiskFactors returns the baseline risk multiplier table.
func DefaultRiskFactors() RiskFactors {
	return RiskFactors{
		RiskLow:      1.0,
		RiskMedium:   1.5,
		RiskHigh:     2.0,
		RiskCritical: 3.0,
	}
}

// Cost describes the estimated expense of performing an action.
type Cost struct {
	// DevelopmentHours is the estimated effort in hours.
	DevelopmentHours float64 `json:"development_hours"`

	// Risk is the delivery risk tier. An empty or unknown tier is
	// treated as low risk.
	Risk Risk `json:"risk,omitempty"`
}

// Total returns the effective cost: development hours scaled by the
// risk multiplier looked up in factors. A nil factors table falls back
// to DefaultRiskFactors; an unknown tier multiplies by 1.0.
func (c Cost) Total(factors RiskFactors) float64 {
	if factors == nil {
		factors = DefaultRiskFactors()
	}
	mult, ok := factors[c.Risk]
	if !ok {
		mult = 1.0
	}
	return c.DevelopmentHours * mult
}

// ValueInfo carries informational scoring metadata about an action:
// which work items it blocks or unblocks and whether it is foundational.
// This metadata never affects search correctness.
type ValueInfo struct {
	Blocks     []string `json:"blocks,omitempty"`
	Unblocks   []string `json:"unblocks,omitempty"`
	Foundation bool     `json:"foundation,omitempty"`
}

// Action is a world-state transition available to the planner.
type Action struct {
	// ID uniquely identifies the action within an action table.
	ID string `json:"id"`

	// Name is a human-readable label.
	Name string `json:"name"`

	// Category groups related actions (informational only).
	Category string `json:"category,omitempty"`

	// Preconditions must all hold in the current state for the action
	// to be applicable.
	Preconditions state.State `json:"preconditions,omitempty"`

	// Effects are merged over the current state when the action is
	// applied.
	Effects state.State `json:"effects,omitempty"`

	// Cost is the estimated expense of the action.
	Cost Cost `json:"cost"`

	// Value is informational scoring metadata.
	Value ValueInfo `json:"value,omitempty"`

	// Guard is an optional CEL expression evaluated against the live
	// world state. When set, the action is applicable only if the
	// guard evaluates to true. Compile guards with ValidateActions
	// before planning.
	Guard string `json:"guard,omitempty"`

	guard *guardProgram
}

// Applicable reports whether the action can run in the given state:
// all preconditions hold and the guard, when present, evaluates true.
// A guard that fails to evaluate (wrong result type, missing key
// arithmetic, uncompiled expression) renders the action inapplicable.
func (a *Action) Applicable(s state.State) bool {
	if !s.Satisfies(a.Preconditions) {
		return false
	}
	if a.Guard == "" {
		return true
	}
	if a.guard == nil {
		// ValidateActions was not run; an unevaluated guard cannot
		// be assumed true.
		return false
	}
	ok, err := a.guard.eval(s)
	return err == nil && ok
}

// Apply returns the state produced by running the action in s.
func (a *Action) Apply(s state.State) state.State {
	return s.Apply(a.Effects)
}

// ValidateActions checks an action table for use by the planner: ids
// must be non-empty and unique, risk tiers valid, and guard expressions
// compilable. Guards are compiled in place, so the table passed here is
// the one that must be handed to planning calls.
func ValidateActions(actions []*Action) error {
	seen := make(map[string]struct{}, len(actions))
	for _, a := range actions {
		if a.ID == "" {
			return fmt.Errorf("%w: action %q", ErrEmptyActionID, a.Name)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateAction, a.ID)
		}
		seen[a.ID] = struct{}{}

		if a.Cost.Risk != "" && !a.Cost.Risk.IsValid() {
			return fmt.Errorf("plan: action %q has unknown risk tier %q", a.ID, a.Cost.Risk)
		}

		if a.Guard != "" {
			prog, err := compileGuard(a.Guard)
			if err != nil {
				return fmt.Errorf("%w: action %q: %v", ErrInvalidGuard, a.ID, err)
			}
			a.guard = prog
		}
	}
	return nil
}

// Index builds an id -> action lookup over a validated action table.
func Index(actions []*Action) map[string]*Action {
	out := make(map[string]*Action, len(actions))
	for _, a := range actions {
		out[a.ID] = a
	}
	return out
}
