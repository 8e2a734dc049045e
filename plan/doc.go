// Package plan defines the action and plan model shared by the search
// engine and the planner.
//
// An Action transitions the world state: it is applicable when its
// preconditions (and optional guard expression) hold, and applying it
// merges its effects over the current state. A Plan is an ordered
// sequence of actions together with aggregate cost and the planning
// context it was produced under.
//
// # Guards
//
// Beyond exact-match preconditions, an action may carry a guard: a CEL
// expression evaluated against the live world state, exposed as the
// `state` map variable. Guards express conditions preconditions cannot,
// such as numeric thresholds:
//
//	action := plan.Action{
//		ID:    "ship",
//		Name:  "Ship release",
//		Guard: `state["coverage"] >= 0.8`,
//	}
//
// Guards are compiled once, at action-table validation time, via
// ValidateActions.
//
// # Validation
//
// Validate replays a plan's actions from its recorded current state,
// checking every action's applicability in order and goal satisfaction
// at the end. Both planning paths run this check before returning a
// plan to the caller.
package plan
