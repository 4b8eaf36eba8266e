package orchestration

import (
	"context"
	"time"
)

// Store is the durable home of orchestration instances. Implementations
// must give first-writer-wins create semantics and version-guarded
// updates so two workers can never both advance the same batch.
type Store interface {
	// Create persists a new instance. Returns a conflict error when an
	// instance with the same batch id already exists.
	Create(ctx context.Context, inst *Instance) error

	// Get returns the instance for a batch id, or a not-found error.
	Get(ctx context.Context, batchID string) (*Instance, error)

	// Update commits the instance if its stored version still matches
	// inst.Version, then bumps the version. A version mismatch returns a
	// conflict error and leaves the stored instance untouched.
	Update(ctx context.Context, inst *Instance) error

	// ListByPhase returns every instance currently in the given phase.
	ListByPhase(ctx context.Context, phase Phase) ([]*Instance, error)

	// ListStale returns instances in the given phase whose last update
	// is older than the cutoff.
	ListStale(ctx context.Context, phase Phase, olderThan time.Time) ([]*Instance, error)
}
