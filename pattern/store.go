package pattern

import (
	"context"

	"github.com/zero-day-ai/goap/batch"
)

// OrderBy selects the sort column for Query results.
type OrderBy string

const (
	OrderByConfidence OrderBy = "confidence"
	OrderByUsage      OrderBy = "usage"
)

// IsValid returns true if the ordering is recognized.
func (o OrderBy) IsValid() bool {
	return o == OrderByConfidence || o == OrderByUsage
}

// Filter narrows a Query. Zero values mean "no constraint".
type Filter struct {
	Type          Type    `json:"type,omitempty"`
	MinConfidence float64 `json:"min_confidence,omitempty"`
	OrderBy       OrderBy `json:"order_by,omitempty"`
	Limit         int     `json:"limit,omitempty"`
}

// Store is the persistence collaborator backing a Library. Besides
// keyed reads and inserts it executes the library's batched writes:
// field updates and combined confidence updates, each as one atomic
// transaction.
//
// Get returns ErrNotFound (possibly wrapped) for missing ids.
type Store interface {
	batch.UpdateExecutor
	batch.ConfidenceApplier

	Get(ctx context.Context, id string) (*Pattern, error)
	Insert(ctx context.Context, p *Pattern) error
	Query(ctx context.Context, f Filter) ([]*Pattern, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
