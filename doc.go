// Package goap provides a learning goal-oriented action planner.
//
// A Planner answers planning requests — reach this goal state from
// this current state, using this action table — and improves with use.
// Successful plans are recorded as patterns; later requests with a
// similar context reuse a pattern's action sequence instead of
// searching, and execution outcomes reported back through
// TrackExecution adjust each pattern's confidence.
//
// # Core Concepts
//
// The module is organized around several key concepts:
//
//   - WorldState: a flat map of scalar facts describing the world
//   - Actions: state transitions with preconditions, effects, and a
//     risk-scaled cost
//   - Patterns: previously successful plans, scored by similarity and
//     learned confidence
//   - Outcomes: execution reports that feed confidence updates and
//     replanning decisions
//
// # Architecture
//
// Planning tries pattern reuse first and falls back to A* search with
// a pattern-informed heuristic. Supporting layers live in their own
// packages:
//
//   - search: the A* engine over world-state transitions
//   - pattern: the pattern library, similarity, and confidence math
//   - store: SQLite pattern persistence and the Badger outcome sink
//   - cache: the L1/L2 in-process tiers and the Redis query cache
//   - batch: priority-batched transactional writes
//
// # Getting Started
//
//	st, err := store.OpenSQLite("patterns.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	lib, err := pattern.NewLibrary(st)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer lib.Close()
//
//	planner, err := goap.NewPlanner(cfg.Planner, goap.WithLibrary(lib))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	result, err := planner.Plan(ctx, current, goal, actions)
//	if errors.Is(err, goap.ErrNoPlan) {
//		// expected negative outcome: no sequence reaches the goal
//	}
package goap
