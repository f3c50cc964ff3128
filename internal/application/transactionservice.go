package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
	"github.com/ericfisherdev/civicrecords/internal/domain/port/driven"
)

// TransactionService runs the certificate request lifecycle: creation,
// status transitions, archiving and the listings built on top of the live
// and history tables.
type TransactionService struct {
	transactions driven.TransactionStore
	residents    driven.ResidentStore
	credentials  driven.CredentialStore
	queue        driven.NotificationQueue
	now          func() time.Time
}

// NewTransactionService creates a new TransactionService.
func NewTransactionService(
	transactions driven.TransactionStore,
	residents driven.ResidentStore,
	credentials driven.CredentialStore,
	queue driven.NotificationQueue,
) *TransactionService {
	return &TransactionService{
		transactions: transactions,
		residents:    residents,
		credentials:  credentials,
		queue:        queue,
		now:          time.Now,
	}
}

// Create records a new certificate request in the Requested state. The
// resident must exist.
func (s *TransactionService) Create(ctx context.Context, residentID int64, certificateType, purpose string, details json.RawMessage) (int64, error) {
	const op = "create transaction"

	if residentID <= 0 {
		return 0, model.Invalid(op, "resident_id is required")
	}

	exists, err := s.residents.Exists(ctx, residentID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, &model.Error{Kind: model.ErrReferential, Op: op, Msg: fmt.Sprintf("resident %d does not exist", residentID)}
	}

	return s.transactions.Create(ctx, model.CertificateTransaction{
		ResidentID:      residentID,
		CertificateType: certificateType,
		Purpose:         purpose,
		Status:          model.StatusRequested,
		Details:         details,
	})
}

// Get returns a transaction from the live table, falling back to history.
func (s *TransactionService) Get(ctx context.Context, id int64) (*model.CertificateTransaction, error) {
	t, err := s.transactions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t != nil {
		return t, nil
	}

	t, err = s.transactions.GetArchived(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, model.NotFound("get transaction", "transaction %d not found", id)
	}
	return t, nil
}

// UpdateStatus moves a live transaction to status. Entering Released stamps
// the issue date with dateIssued, or now when nil. A non-zero
// expectedVersion must match the stored row version.
//
// The resident is notified after the write commits; delivery problems are
// logged and never reported to the caller.
func (s *TransactionService) UpdateStatus(
	ctx context.Context,
	id int64,
	status model.TransactionStatus,
	dateIssued *time.Time,
	expectedVersion int64,
) (*model.CertificateTransaction, error) {
	const op = "update status"

	if !status.Valid() {
		return nil, model.Invalid(op, "status %q is not a known status", string(status))
	}
	if dateIssued != nil && status != model.StatusReleased {
		return nil, model.Invalid(op, "date_issued may only be set when releasing")
	}

	cur, err := s.transactions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, model.NotFound(op, "transaction %d not found", id)
	}
	if expectedVersion != 0 && expectedVersion != cur.Version {
		return nil, &model.Error{Kind: model.ErrConflict, Op: op, Msg: fmt.Sprintf("transaction %d was modified concurrently", id)}
	}
	if !model.CanTransition(cur.Status, status) {
		return nil, model.Invalid(op, "cannot move transaction %d from %s to %s", id, cur.Status, status)
	}

	var issued *time.Time
	if status == model.StatusReleased {
		t := s.now()
		if dateIssued != nil {
			t = *dateIssued
		}
		issued = &t
	}

	version, err := s.transactions.UpdateStatus(ctx, driven.StatusUpdate{
		ID:              id,
		Status:          status,
		DateIssued:      issued,
		ExpectedVersion: cur.Version,
	})
	if err != nil {
		return nil, err
	}

	cur.Status = status
	cur.Version = version
	if issued != nil {
		cur.DateIssued = issued
	}

	s.notifyStatus(ctx, *cur)
	return cur, nil
}

// Archive moves a transaction in a terminal state into history.
func (s *TransactionService) Archive(ctx context.Context, id int64) error {
	const op = "archive transaction"

	cur, err := s.transactions.Get(ctx, id)
	if err != nil {
		return err
	}
	if cur == nil {
		return model.NotFound(op, "transaction %d not found", id)
	}
	if !cur.Status.Terminal() {
		return model.Invalid(op, "transaction %d is %s; only released, rejected or cancelled requests can be archived", id, cur.Status)
	}

	if err := s.transactions.Archive(ctx, id); err != nil {
		return err
	}

	slog.Info("transaction archived", "transaction_id", id, "status", cur.Status)
	return nil
}

// ListByResident returns a resident's live and archived transactions ordered
// by identifier.
func (s *TransactionService) ListByResident(ctx context.Context, residentID int64) (model.TransactionPage, error) {
	return s.transactions.ListByResident(ctx, residentID)
}

// ListHistoryByResident returns a resident's archived transactions.
func (s *TransactionService) ListHistoryByResident(ctx context.Context, residentID int64) (model.TransactionPage, error) {
	return s.transactions.ListHistoryByResident(ctx, residentID)
}

// BulkList returns every live transaction with the owning resident's email
// attached.
func (s *TransactionService) BulkList(ctx context.Context) (model.TransactionPage, error) {
	page, err := s.transactions.ListLive(ctx)
	if err != nil {
		return model.TransactionPage{}, err
	}
	return s.attachEmails(ctx, page)
}

// BulkHistory returns every archived transaction with the owning resident's
// email attached.
func (s *TransactionService) BulkHistory(ctx context.Context) (model.TransactionPage, error) {
	page, err := s.transactions.ListHistory(ctx)
	if err != nil {
		return model.TransactionPage{}, err
	}
	return s.attachEmails(ctx, page)
}

// PurgeHistory irreversibly deletes every archived transaction.
func (s *TransactionService) PurgeHistory(ctx context.Context) (int64, error) {
	n, err := s.transactions.PurgeHistory(ctx)
	if err != nil {
		return 0, err
	}
	slog.Warn("transaction history purged", "rows", n)
	return n, nil
}

// attachEmails resolves the emails of every resident in page with a single
// store call. Residents without a credential keep a nil email.
func (s *TransactionService) attachEmails(ctx context.Context, page model.TransactionPage) (model.TransactionPage, error) {
	if len(page.Transactions) == 0 {
		return page, nil
	}

	seen := make(map[int64]bool, len(page.Transactions))
	ids := make([]int64, 0, len(page.Transactions))
	for _, t := range page.Transactions {
		if !seen[t.ResidentID] {
			seen[t.ResidentID] = true
			ids = append(ids, t.ResidentID)
		}
	}

	emails, err := s.credentials.EmailsByResident(ctx, ids)
	if err != nil {
		return model.TransactionPage{}, fmt.Errorf("resolve resident emails: %w", err)
	}

	for i := range page.Transactions {
		if email, ok := emails[page.Transactions[i].ResidentID]; ok {
			page.Transactions[i].ResidentEmail = &email
		}
	}
	return page, nil
}

func (s *TransactionService) notifyStatus(ctx context.Context, t model.CertificateTransaction) {
	emails, err := s.credentials.EmailsByResident(ctx, []int64{t.ResidentID})
	if err != nil {
		slog.Error("resolve notification recipient failed", "transaction_id", t.ID, "error", err)
		return
	}

	email, ok := emails[t.ResidentID]
	if !ok {
		slog.Debug("resident has no account, status notification skipped", "transaction_id", t.ID)
		return
	}

	if err := s.queue.Enqueue(ctx, statusNotification(email, t)); err != nil {
		slog.Error("enqueue status notification failed", "transaction_id", t.ID, "error", err)
	}
}
