// Package search implements the A* engine the planner falls back to
// when no learned pattern applies.
//
// The engine searches an implicit graph whose nodes are world states
// and whose edges are applicable actions. Nodes live in an arena and
// reference their parents by index, forming a spanning tree of the
// search; path reconstruction walks parent indices from the goal node
// back to the root.
//
// Search is stateless per call and safe to invoke concurrently from
// independent planning requests.
//
// # Determinism
//
// For identical inputs the engine returns an identical action
// sequence. Actions are expanded in table order and the open set
// breaks f-cost ties by insertion order, so no map-iteration order
// leaks into the result.
//
// # Termination
//
// "No plan found" is an expected outcome, reported as an empty action
// sequence rather than an error. The engine stops when the iteration
// budget is exhausted or the context is done, checking both at each
// iteration boundary.
package search
