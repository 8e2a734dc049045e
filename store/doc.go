// Package store provides the persistence collaborators for learned
// patterns: a SQLite-backed pattern store and an append-only Badger
// sink for execution outcomes.
//
// SQLite implements the pattern.Store contract, including transactional
// batch writes for field updates and combined confidence updates.
// Pattern payloads are compressed before hitting disk and carry their
// algorithm tag so the codec can reconstruct them.
//
// OutcomeLog is write-only from the core's perspective: the planner
// appends every execution outcome for external audit and monitoring,
// and nothing in the planning path ever reads it back.
package store
