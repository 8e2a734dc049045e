package goap

import (
	"errors"
	"fmt"
	"log/slog"
)

// Sentinel errors for common planning error conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrNoPlan indicates no action sequence could reach the goal
	// within the configured search budget. Callers usually treat this
	// as an expected negative outcome rather than a fault.
	ErrNoPlan = errors.New("no plan found")

	// ErrInvalidGoal indicates the planning request itself is
	// malformed, for example an empty goal state.
	ErrInvalidGoal = errors.New("invalid goal")

	// ErrInvalidActions indicates the supplied action table failed
	// validation.
	ErrInvalidActions = errors.New("invalid actions")

	// ErrStorage indicates the pattern persistence layer failed.
	// Learning data loss is a correctness concern, so this is never
	// silently converted to a "no plan" result.
	ErrStorage = errors.New("storage failure")

	// ErrLearningDisabled indicates a pattern operation was requested
	// while pattern learning is switched off in configuration.
	ErrLearningDisabled = errors.New("pattern learning disabled")
)

// Error kinds categorize errors by their type.
const (
	// KindNoPlan represents search exhaustion without a result.
	KindNoPlan = "no_plan"

	// KindValidation represents errors related to input validation.
	KindValidation = "validation"

	// KindStorage represents pattern persistence failures.
	KindStorage = "storage"

	// KindBatch represents batched write failures.
	KindBatch = "batch"

	// KindTimeout represents errors related to planning timeouts.
	KindTimeout = "timeout"

	// KindInternal represents internal planner errors.
	KindInternal = "internal"
)

// PlanError is a structured error type that wraps underlying errors
// with additional context about the operation that failed and the
// category of error.
//
// PlanError implements the error interface and supports error
// unwrapping, making it compatible with errors.Is() and errors.As().
//
// Example usage:
//
//	err := &PlanError{
//		Op:   "Planner.Plan",
//		Kind: KindStorage,
//		Err:  ErrStorage,
//	}
type PlanError struct {
	// Op is the operation that failed (e.g., "Planner.Plan",
	// "Planner.TrackExecution").
	Op string

	// Kind categorizes the error (e.g., KindNoPlan, KindStorage).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional context about the error (optional).
	// This can include goal keys, pattern ids, or other debugging
	// information.
	Context map[string]any
}

// Error implements the error interface, returning a formatted error
// message that includes the operation, kind, and underlying error.
func (e *PlanError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("goap: %s: %s", e.Op, e.Kind)
	}
	if len(e.Context) > 0 {
		return fmt.Sprintf("goap: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}
	return fmt.Sprintf("goap: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error, allowing errors.Is() and
// errors.As() to work correctly with wrapped errors.
func (e *PlanError) Unwrap() error {
	return e.Err
}

// Is implements error matching for PlanError, allowing comparison
// based on the underlying error or the PlanError itself.
func (e *PlanError) Is(target error) bool {
	if target == nil {
		return false
	}
	if t, ok := target.(*PlanError); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}
	return errors.Is(e.Err, target)
}

// WithContext returns a new PlanError with the provided context added.
// This is useful for adding debugging information to errors.
func (e *PlanError) WithContext(ctx map[string]any) *PlanError {
	newErr := *e
	if newErr.Context == nil {
		newErr.Context = make(map[string]any)
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// NewValidationError creates a new PlanError with KindValidation.
func NewValidationError(op string, err error) *PlanError {
	return &PlanError{
		Op:   op,
		Kind: KindValidation,
		Err:  err,
	}
}

// NewStorageError creates a new PlanError with KindStorage.
func NewStorageError(op string, err error) *PlanError {
	return &PlanError{
		Op:   op,
		Kind: KindStorage,
		Err:  err,
	}
}

// NewBatchError creates a new PlanError with KindBatch.
func NewBatchError(op string, err error) *PlanError {
	return &PlanError{
		Op:   op,
		Kind: KindBatch,
		Err:  err,
	}
}

// NewTimeoutError creates a new PlanError with KindTimeout.
func NewTimeoutError(op string, err error) *PlanError {
	return &PlanError{
		Op:   op,
		Kind: KindTimeout,
		Err:  err,
	}
}

// NewInternalError creates a new PlanError with KindInternal.
func NewInternalError(op string, err error) *PlanError {
	return &PlanError{
		Op:   op,
		Kind: KindInternal,
		Err:  err,
	}
}

// LogError logs a PlanError with structured fields. Non-PlanError
// values are logged with the message alone.
func LogError(logger *slog.Logger, msg string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var pe *PlanError
	if errors.As(err, &pe) {
		attrs := []any{"op", pe.Op, "kind", pe.Kind, "error", pe.Err}
		for k, v := range pe.Context {
			attrs = append(attrs, k, v)
		}
		logger.Error(msg, attrs...)
		return
	}
	logger.Error(msg, "error", err)
}
