// Package pattern provides a learning library of previously successful
// plans. Each stored pattern pairs a goal/current state context with
// the action sequence that achieved it and the learning metrics
// accumulated over repeated use.
//
// The Library sits in front of a Store and a multi-level cache: lookups
// probe the cache tiers before the store, successful plans are recorded
// as new patterns, and execution outcomes flow back through batched
// confidence updates. Similarity between a query context and stored
// patterns weights goal-state overlap at 0.7 and current-state overlap
// at 0.3, so patterns transfer across different starting conditions as
// long as they pursue the same goal.
//
// Example usage:
//
//	lib, err := pattern.NewLibrary(store,
//		pattern.WithCache(cache),
//		pattern.WithLogger(logger),
//	)
//	if err != nil {
//		return err
//	}
//	defer lib.Close()
//
//	matches, err := lib.FindMatching(ctx, current, goal, 5)
//	if err != nil {
//		return err
//	}
//	if best := pattern.SelectBest(matches); best != nil {
//		actions, err := lib.ReconstructPlan(ctx, best.Pattern, current, index)
//		...
//	}
package pattern
