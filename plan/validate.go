package plan

import (
	"errors"
	"fmt"

	"github.com/zero-day-ai/goap/state"
)

// ErrInvalidPlan is the base error for plan validation failures. Wrap
// checks with errors.Is(err, ErrInvalidPlan).
var ErrInvalidPlan = errors.New("plan: invalid plan")

// Replay simulates an action sequence from the given starting state,
// checking each action's applicability in order, and returns the final
// state. It fails on the first inapplicable action.
func Replay(actions []*Action, current state.State) (state.State, error) {
	s := current
	for i, a := range actions {
		if !a.Applicable(s) {
			return nil, fmt.Errorf("%w: action %d (%s) preconditions not met", ErrInvalidPlan, i, a.ID)
		}
		s = a.Apply(s)
	}
	return s, nil
}

// Validate checks the plan invariant: replaying the plan's actions from
// its recorded current state must satisfy every action's preconditions
// in order, and the final state must satisfy the recorded goal. A nil
// return means the plan is internally consistent.
func (p *Plan) Validate() error {
	final, err := Replay(p.Actions, p.Context.CurrentState)
	if err != nil {
		return err
	}
	if !final.Satisfies(p.Context.GoalState) {
		return fmt.Errorf("%w: final state does not satisfy goal", ErrInvalidPlan)
	}
	return nil
}
