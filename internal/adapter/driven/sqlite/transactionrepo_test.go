package sqlite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
	"github.com/ericfisherdev/civicrecords/internal/domain/port/driven"
)

func makeTransaction(residentID int64, details string) model.CertificateTransaction {
	return model.CertificateTransaction{
		ResidentID:      residentID,
		CertificateType: "Barangay Clearance",
		Purpose:         "Employment",
		Status:          model.StatusRequested,
		Details:         json.RawMessage(details),
		DateRequested:   time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestTransactionRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionRepo(db, testMapper(t))
	ctx := context.Background()
	rid := seedResident(t, db, "Ana")

	id, err := repo.Create(ctx, makeTransaction(rid, `{"status":"ok","items":[1,2,3]}`))
	require.NoError(t, err)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, rid, got.ResidentID)
	assert.Equal(t, "Barangay Clearance", got.CertificateType)
	assert.Equal(t, "Employment", got.Purpose)
	assert.Equal(t, model.StatusRequested, got.Status)
	assert.Equal(t, int64(1), got.Version)
	assert.Nil(t, got.DateIssued)
	assert.False(t, got.Archived)
	assert.True(t, got.DateRequested.Equal(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)))

	var want, have any
	require.NoError(t, json.Unmarshal([]byte(`{"status":"ok","items":[1,2,3]}`), &want))
	require.NoError(t, json.Unmarshal(got.Details, &have))
	assert.Equal(t, want, have)

	var stored string
	require.NoError(t, db.Reader.QueryRowContext(ctx,
		`SELECT certificate_details FROM certificate_transaction WHERE transaction_id = ?`, id).Scan(&stored))
	assert.NotContains(t, stored, "items")
}

func TestTransactionRepo_UpdateStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionRepo(db, testMapper(t))
	ctx := context.Background()
	rid := seedResident(t, db, "Ana")

	id, err := repo.Create(ctx, makeTransaction(rid, `{}`))
	require.NoError(t, err)

	v, err := repo.UpdateStatus(ctx, driven.StatusUpdate{ID: id, Status: model.StatusApproved, ExpectedVersion: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	issued := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	v, err = repo.UpdateStatus(ctx, driven.StatusUpdate{ID: id, Status: model.StatusReleased, DateIssued: &issued})
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReleased, got.Status)
	require.NotNil(t, got.DateIssued)
	assert.True(t, issued.Equal(*got.DateIssued))
	assert.Equal(t, int64(3), got.Version)
}

func TestTransactionRepo_UpdateStatus_StaleVersion(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionRepo(db, testMapper(t))
	ctx := context.Background()
	rid := seedResident(t, db, "Ana")

	id, err := repo.Create(ctx, makeTransaction(rid, `{}`))
	require.NoError(t, err)

	_, err = repo.UpdateStatus(ctx, driven.StatusUpdate{ID: id, Status: model.StatusProcessing, ExpectedVersion: 1})
	require.NoError(t, err)

	_, err = repo.UpdateStatus(ctx, driven.StatusUpdate{ID: id, Status: model.StatusRejected, ExpectedVersion: 1})
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = repo.UpdateStatus(ctx, driven.StatusUpdate{ID: 999, Status: model.StatusRejected})
	assert.ErrorIs(t, err, model.ErrNotFound)

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, got.Status)
}

func TestTransactionRepo_Archive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionRepo(db, testMapper(t))
	ctx := context.Background()
	rid := seedResident(t, db, "Ana")

	id, err := repo.Create(ctx, makeTransaction(rid, `{"or_number":"A-1"}`))
	require.NoError(t, err)

	var liveDetails string
	require.NoError(t, db.Reader.QueryRowContext(ctx,
		`SELECT certificate_details FROM certificate_transaction WHERE transaction_id = ?`, id).Scan(&liveDetails))

	require.NoError(t, repo.Archive(ctx, id))

	live, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, live)

	archived, err := repo.GetArchived(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, archived)
	assert.True(t, archived.Archived)
	assert.JSONEq(t, `{"or_number":"A-1"}`, string(archived.Details))

	var historyDetails string
	require.NoError(t, db.Reader.QueryRowContext(ctx,
		`SELECT certificate_details FROM certificate_transaction_history WHERE transaction_id = ?`, id).Scan(&historyDetails))
	assert.Equal(t, liveDetails, historyDetails, "tokens are copied, not re-encrypted")

	page, err := repo.ListHistoryByResident(ctx, rid)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, id, page.Transactions[0].ID)

	livePage, err := repo.ListLive(ctx)
	require.NoError(t, err)
	assert.Empty(t, livePage.Transactions)

	assert.ErrorIs(t, repo.Archive(ctx, id), model.ErrNotFound)
}

func TestTransactionRepo_ListByResident(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionRepo(db, testMapper(t))
	ctx := context.Background()
	ana := seedResident(t, db, "Ana")
	ben := seedResident(t, db, "Ben")

	first, err := repo.Create(ctx, makeTransaction(ana, `{"n":1}`))
	require.NoError(t, err)
	second, err := repo.Create(ctx, makeTransaction(ana, `{"n":2}`))
	require.NoError(t, err)
	third, err := repo.Create(ctx, makeTransaction(ana, `{"n":3}`))
	require.NoError(t, err)
	_, err = repo.Create(ctx, makeTransaction(ben, `{}`))
	require.NoError(t, err)

	require.NoError(t, repo.Archive(ctx, second))

	_, err = db.Writer.ExecContext(ctx,
		`UPDATE certificate_transaction SET purpose = 'tampered' WHERE transaction_id = ?`, third)
	require.NoError(t, err)

	page, err := repo.ListByResident(ctx, ana)
	require.NoError(t, err)

	var ids []int64
	var archived []bool
	for _, tx := range page.Transactions {
		ids = append(ids, tx.ID)
		archived = append(archived, tx.Archived)
	}
	assert.Equal(t, []int64{first, second}, ids)
	assert.Equal(t, []bool{false, true}, archived)
	assert.JSONEq(t, `{"n":2}`, string(page.Transactions[1].Details))
	require.Len(t, page.Failed, 1)
	assert.Equal(t, third, page.Failed[0].ID)

	empty, err := repo.ListByResident(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, empty.Transactions)
	assert.Empty(t, empty.Failed)
}

func TestTransactionRepo_Archive_RemoveFailureRollsBack(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionRepo(db, testMapper(t))
	ctx := context.Background()
	rid := seedResident(t, db, "Ana")

	id, err := repo.Create(ctx, makeTransaction(rid, `{}`))
	require.NoError(t, err)

	_, err = db.Writer.ExecContext(ctx, `CREATE TRIGGER block_live_delete BEFORE DELETE ON certificate_transaction
		BEGIN SELECT RAISE(ABORT, 'live delete blocked'); END`)
	require.NoError(t, err)

	err = repo.Archive(ctx, id)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrTransaction)

	live, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, live, "row stays live")

	archived, err := repo.GetArchived(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, archived, "no ghost copy in history")
}

func TestTransactionRepo_HistoryIsImmutable(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionRepo(db, testMapper(t))
	ctx := context.Background()
	rid := seedResident(t, db, "Ana")

	id, err := repo.Create(ctx, makeTransaction(rid, `{}`))
	require.NoError(t, err)
	require.NoError(t, repo.Archive(ctx, id))

	_, err = db.Writer.ExecContext(ctx, `UPDATE certificate_transaction_history SET status = 'Requested' WHERE transaction_id = ?`, id)
	assert.Error(t, err)
}

func TestTransactionRepo_ListLive_SkipsAndReports(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionRepo(db, testMapper(t))
	ctx := context.Background()
	rid := seedResident(t, db, "Ana")

	first, err := repo.Create(ctx, makeTransaction(rid, `{"n":1}`))
	require.NoError(t, err)
	corrupt, err := repo.Create(ctx, makeTransaction(rid, `{"n":2}`))
	require.NoError(t, err)
	third, err := repo.Create(ctx, makeTransaction(rid, `{"n":3}`))
	require.NoError(t, err)

	_, err = db.Writer.ExecContext(ctx,
		`UPDATE certificate_transaction SET purpose = 'k1$00:00' WHERE transaction_id = ?`, corrupt)
	require.NoError(t, err)

	page, err := repo.ListLive(ctx)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	assert.Equal(t, first, page.Transactions[0].ID)
	assert.Equal(t, third, page.Transactions[1].ID)
	require.Len(t, page.Failed, 1)
	assert.Equal(t, corrupt, page.Failed[0].ID)
	assert.Equal(t, "field purpose could not be decrypted", page.Failed[0].Reason)
}

func TestTransactionRepo_MalformedDetailsStillListed(t *testing.T) {
	db := setupTestDB(t)
	mapper := testMapper(t)
	repo := NewTransactionRepo(db, mapper)
	ctx := context.Background()
	rid := seedResident(t, db, "Ana")

	id, err := repo.Create(ctx, makeTransaction(rid, `{}`))
	require.NoError(t, err)

	row, err := mapper.TransactionToRow(makeTransaction(rid, `{}`))
	require.NoError(t, err)
	// Reuse a valid token for a non-JSON plaintext: purpose "Employment".
	_, err = db.Writer.ExecContext(ctx,
		`UPDATE certificate_transaction SET certificate_details = ? WHERE transaction_id = ?`, row.Purpose, id)
	require.NoError(t, err)

	page, err := repo.ListLive(ctx)
	require.NoError(t, err)
	assert.Empty(t, page.Failed)
	require.Len(t, page.Transactions, 1)
	assert.Nil(t, page.Transactions[0].Details)
	assert.True(t, page.Transactions[0].DetailsMalformed)
}

func TestTransactionRepo_PurgeHistory(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionRepo(db, testMapper(t))
	ctx := context.Background()
	rid := seedResident(t, db, "Ana")

	for i := 0; i < 3; i++ {
		id, err := repo.Create(ctx, makeTransaction(rid, `{}`))
		require.NoError(t, err)
		require.NoError(t, repo.Archive(ctx, id))
	}

	n, err := repo.PurgeHistory(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	page, err := repo.ListHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, page.Transactions)
}

func TestTransactionRepo_RotateSkipsHistory(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	rid := seedResident(t, db, "Ana")

	oldRepo := NewTransactionRepo(db, testMapper(t))
	liveID, err := oldRepo.Create(ctx, makeTransaction(rid, `{"a":1}`))
	require.NoError(t, err)
	archivedID, err := oldRepo.Create(ctx, makeTransaction(rid, `{"b":2}`))
	require.NoError(t, err)
	require.NoError(t, oldRepo.Archive(ctx, archivedID))

	newRepo := NewTransactionRepo(db, rotatedMapper(t))
	n, err := newRepo.Rotate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := newRepo.Get(ctx, liveID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got.Details))

	archived, err := newRepo.GetArchived(ctx, archivedID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2}`, string(archived.Details), "history stays readable under the retired key")
}
