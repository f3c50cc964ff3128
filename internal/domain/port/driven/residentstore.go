// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
)

// ResidentStore defines the driven port for resident persistence. The adapter
// encrypts the protected fields before write and decrypts them after read;
// this interface operates on plaintext at the domain boundary.
type ResidentStore interface {
	// Create inserts one resident and returns its assigned identifier.
	Create(ctx context.Context, resident model.Resident) (int64, error)

	// CreateBatch inserts all residents in one transaction. On any failure no
	// resident is persisted.
	CreateBatch(ctx context.Context, residents []model.Resident) ([]int64, error)

	// Update replaces every field of the resident identified by resident.ID.
	// Returns an error wrapping model.ErrNotFound if no row matched.
	Update(ctx context.Context, resident model.Resident) error

	// UpdateBatch applies all updates in one transaction. A missing identifier
	// or any write failure rolls back every update in the batch.
	UpdateBatch(ctx context.Context, residents []model.Resident) error

	// Get returns the resident with the given identifier, or nil, nil if absent.
	Get(ctx context.Context, id int64) (*model.Resident, error)

	// Exists reports whether a resident row with the identifier exists without
	// decrypting it.
	Exists(ctx context.Context, id int64) (bool, error)

	// ListAll returns every resident ordered by identifier. Rows that fail to
	// decrypt are reported in the second return value instead of aborting.
	ListAll(ctx context.Context) ([]model.Resident, []model.RowError, error)

	// Delete removes a resident. Returns an error wrapping model.ErrNotFound if
	// no row matched.
	Delete(ctx context.Context, id int64) error

	// Rotate re-encrypts every protected field not sealed under the primary
	// key and returns the number of rows rewritten.
	Rotate(ctx context.Context) (int, error)
}
