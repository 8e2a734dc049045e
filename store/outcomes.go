package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/zero-day-ai/goap/plan"
)

// OutcomeLog is an append-only sink for execution outcomes, kept for
// external audit and monitoring. The planning path only ever writes
// to it.
type OutcomeLog struct {
	db     *badger.DB
	logger *slog.Logger
	seq    atomic.Uint64
}

// OutcomeLogOption configures an OutcomeLog.
type OutcomeLogOption func(*OutcomeLog)

// WithOutcomeLogger sets the log's logger. Nil selects slog.Default().
func WithOutcomeLogger(logger *slog.Logger) OutcomeLogOption {
	return func(l *OutcomeLog) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// OpenOutcomeLog opens the outcome sink at dir. An empty dir selects
// an in-memory store, useful in tests.
func OpenOutcomeLog(dir string, opts ...OutcomeLogOption) (*OutcomeLog, error) {
	l := &OutcomeLog{logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}

	var bopts badger.Options
	if dir == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(dir)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("store: open outcome log: %w", err)
	}
	l.db = db
	return l, nil
}

// Append records one execution outcome. Keys are ordered by plan id
// then append sequence, so per-plan trajectories read back contiguous
// for external consumers.
func (l *OutcomeLog) Append(ctx context.Context, outcome *plan.ExecutionOutcome) error {
	if outcome == nil {
		return fmt.Errorf("store: nil outcome")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rec := *outcome
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now().UTC()
	}
	val, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("store: marshal outcome: %w", err)
	}

	key := fmt.Sprintf("outcome/%s/%020d", rec.PlanID, l.seq.Add(1))
	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
	if err != nil {
		return fmt.Errorf("store: append outcome: %w", err)
	}
	return nil
}

// Close releases the underlying store.
func (l *OutcomeLog) Close() error {
	return l.db.Close()
}
