// Package batch amortizes many small persistence writes into fewer
// transactional commits.
//
// A Coordinator accumulates operations into a priority-ordered queue
// and hands them to its handler in batches, triggered by queue size, a
// recurring timer, or an explicit Flush. Each enqueued operation gets a
// completion channel that resolves only once the batch containing it
// has committed — callers await durability, not enqueue.
//
// Only one flush runs at a time. A trigger firing while a flush is in
// progress is deferred: the queued items simply wait for the next
// trigger, guaranteeing at most one concurrent transaction against the
// backing store from any one coordinator.
//
// Two specializations wrap the generic coordinator:
//
//   - PatternProcessor batches arbitrary per-pattern field updates,
//     one dynamic UPDATE per item inside a shared transaction.
//   - ConfidenceUpdater batches outcome observations and groups all
//     observations for the same pattern within a batch into a single
//     combined update — O(distinct patterns) writes per batch instead
//     of O(observations).
package batch
