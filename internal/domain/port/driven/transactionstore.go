package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
)

// StatusUpdate describes an in-place status write on a live transaction.
// ExpectedVersion of zero skips the optimistic concurrency check.
type StatusUpdate struct {
	ID              int64
	Status          model.TransactionStatus
	DateIssued      *time.Time
	ExpectedVersion int64
}

// TransactionStore defines the driven port for the live certificate
// transaction table and its append-only history table.
type TransactionStore interface {
	// Create inserts a live transaction and returns its identifier.
	Create(ctx context.Context, tx model.CertificateTransaction) (int64, error)

	// Get returns the live transaction with id, or nil, nil if absent.
	Get(ctx context.Context, id int64) (*model.CertificateTransaction, error)

	// GetArchived returns the history row with id, or nil, nil if absent.
	GetArchived(ctx context.Context, id int64) (*model.CertificateTransaction, error)

	// UpdateStatus overwrites status (and date issued when set) and returns
	// the new row version. Returns an error wrapping model.ErrNotFound when no
	// live row matched, or model.ErrConflict when ExpectedVersion is stale.
	UpdateStatus(ctx context.Context, update StatusUpdate) (int64, error)

	// Archive copies the live row into history without re-encrypting it and
	// deletes the live row, both inside one database transaction.
	Archive(ctx context.Context, id int64) error

	// ListLive returns every live transaction ordered by identifier.
	ListLive(ctx context.Context) (model.TransactionPage, error)

	// ListByResident returns a resident's live and archived transactions
	// ordered by identifier. Both tables are read in one statement, so a
	// transaction archived concurrently appears exactly once.
	ListByResident(ctx context.Context, residentID int64) (model.TransactionPage, error)

	// ListHistory returns every archived transaction ordered by identifier.
	ListHistory(ctx context.Context) (model.TransactionPage, error)

	// ListHistoryByResident returns a resident's archived transactions.
	ListHistoryByResident(ctx context.Context, residentID int64) (model.TransactionPage, error)

	// PurgeHistory deletes every history row and returns how many were removed.
	PurgeHistory(ctx context.Context) (int64, error)

	// Rotate re-encrypts live rows not sealed under the primary key. History
	// rows are immutable and keep their original tokens.
	Rotate(ctx context.Context) (int, error)
}
