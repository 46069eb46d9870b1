// Package selection persists SelectionRecords and mediates viewer access to
// them. Two implementations exist: a Postgres store for real deployments and
// an in-memory store for tests and database-less runs.
package selection

import (
	"context"
	"errors"

	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/model"
)

// ErrNotFound is returned when no record exists for the given id.
var ErrNotFound = errors.New("selection not found")

// Store is the durable record store for page selections. Create must succeed
// or fail independently of email delivery; records are immutable after
// creation except for the access counter.
type Store interface {
	Create(ctx context.Context, rec *model.SelectionRecord) error
	Get(ctx context.Context, id string) (*model.SelectionRecord, error)
	IncrementAccess(ctx context.Context, id string) error
}
