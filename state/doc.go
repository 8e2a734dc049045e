// Package state provides the world-state model used throughout the planner.
//
// A State is a flat mapping from string keys to scalar values (string,
// number, or boolean). States are immutable by convention: transitions
// produce a new State by merging an action's effects over the previous
// one, leaving the original untouched.
//
// Goal states share the same shape but are partial: only the keys present
// in a goal are checked, via State.Satisfies.
//
// # Canonical keys
//
// Search deduplication and cache keys require a stable identity for a
// state regardless of map iteration order. State.Key returns a canonical
// serialization with sorted keys and type-tagged values, so two states
// with equal content always produce the same key.
//
// Example usage:
//
//	current := state.State{
//		"api_designed": state.Bool(true),
//		"coverage":     state.Number(0.8),
//	}
//
//	goal := state.State{"api_designed": state.Bool(true)}
//
//	if current.Satisfies(goal) {
//		// goal reached
//	}
package state
