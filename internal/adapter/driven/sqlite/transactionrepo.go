package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/recordmap"
	"github.com/ericfisherdev/civicrecords/internal/domain/model"
	"github.com/ericfisherdev/civicrecords/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TransactionStore = (*TransactionRepo)(nil)

const (
	liveTable    = "certificate_transaction"
	historyTable = "certificate_transaction_history"

	transactionColumns = `transaction_id, resident_id, certificate_type, purpose, status,
	certificate_details, date_requested, date_issued, version`
)

// TransactionRepo is the SQLite implementation of the TransactionStore port
// interface over the live and history tables.
type TransactionRepo struct {
	db     *DB
	mapper *recordmap.Mapper
}

// NewTransactionRepo creates a new TransactionRepo backed by the given DB.
func NewTransactionRepo(db *DB, mapper *recordmap.Mapper) *TransactionRepo {
	return &TransactionRepo{db: db, mapper: mapper}
}

// Create inserts a live transaction. DateRequested defaults to now and the
// row starts at version 1.
func (r *TransactionRepo) Create(ctx context.Context, t model.CertificateTransaction) (int64, error) {
	if t.DateRequested.IsZero() {
		t.DateRequested = time.Now().UTC()
	}
	t.Version = 1

	row, err := r.mapper.TransactionToRow(t)
	if err != nil {
		return 0, err
	}

	const query = `INSERT INTO certificate_transaction
		(resident_id, certificate_type, purpose, status, certificate_details, date_requested, date_issued, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.Writer.ExecContext(ctx, query,
		row.ResidentID, row.CertificateType, row.Purpose, row.Status, row.Details,
		formatTime(row.DateRequested), nullTime(row.DateIssued), row.Version,
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint") {
			return 0, &model.Error{Kind: model.ErrReferential, Op: "create transaction", Msg: fmt.Sprintf("resident %d does not exist", t.ResidentID), Err: err}
		}
		return 0, fmt.Errorf("create transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create transaction: last insert id: %w", err)
	}
	return id, nil
}

// Get retrieves a live transaction. Returns nil, nil if it does not exist.
func (r *TransactionRepo) Get(ctx context.Context, id int64) (*model.CertificateTransaction, error) {
	return r.getFrom(ctx, liveTable, id, false)
}

// GetArchived retrieves a history row. Returns nil, nil if it does not exist.
func (r *TransactionRepo) GetArchived(ctx context.Context, id int64) (*model.CertificateTransaction, error) {
	return r.getFrom(ctx, historyTable, id, true)
}

func (r *TransactionRepo) getFrom(ctx context.Context, table string, id int64, archived bool) (*model.CertificateTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM ` + table + ` WHERE transaction_id = ?`

	row, err := scanTransactionRow(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %d: %w", id, err)
	}

	t, err := r.mapper.TransactionFromRow(row, archived)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateStatus writes a new status in place and bumps the row version.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, u driven.StatusUpdate) (int64, error) {
	const query = `UPDATE certificate_transaction
		SET status = ?, date_issued = COALESCE(?, date_issued), version = version + 1
		WHERE transaction_id = ? AND (? = 0 OR version = ?)
		RETURNING version`

	var issued any
	if u.DateIssued != nil {
		issued = formatTime(*u.DateIssued)
	}

	var version int64
	err := r.db.Writer.QueryRowContext(ctx, query,
		string(u.Status), issued, u.ID, u.ExpectedVersion, u.ExpectedVersion,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, r.staleOrMissing(ctx, u.ID)
	}
	if err != nil {
		return 0, fmt.Errorf("update transaction %d status: %w", u.ID, err)
	}
	return version, nil
}

func (r *TransactionRepo) staleOrMissing(ctx context.Context, id int64) error {
	const query = `SELECT EXISTS(SELECT 1 FROM certificate_transaction WHERE transaction_id = ?)`

	var exists bool
	if err := r.db.Writer.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return fmt.Errorf("check transaction %d: %w", id, err)
	}
	if !exists {
		return model.NotFound("update status", "transaction %d not found", id)
	}
	return &model.Error{Kind: model.ErrConflict, Op: "update status", Msg: fmt.Sprintf("transaction %d was modified concurrently", id)}
}

// Archive moves a live row into history inside one transaction. The stored
// tokens are copied byte for byte.
func (r *TransactionRepo) Archive(ctx context.Context, id int64) error {
	const copyQuery = `INSERT INTO certificate_transaction_history
		(` + transactionColumns + `, archived_at)
		SELECT ` + transactionColumns + `, ? FROM certificate_transaction WHERE transaction_id = ?`
	const deleteQuery = `DELETE FROM certificate_transaction WHERE transaction_id = ?`

	return r.db.withTx(ctx, "archive transaction", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, copyQuery, formatTime(time.Now()), id)
		if err != nil {
			return fmt.Errorf("copy to history: %w", err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return model.NotFound("archive transaction", "transaction %d not found", id)
		}

		res, err = tx.ExecContext(ctx, deleteQuery, id)
		if err != nil {
			return fmt.Errorf("remove live row: %w", err)
		}
		if n, err = affected(res); err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("remove live row: %d rows affected", n)
		}
		return nil
	})
}

// ListLive returns every live transaction ordered by identifier.
func (r *TransactionRepo) ListLive(ctx context.Context) (model.TransactionPage, error) {
	return r.list(ctx, liveTable, false)
}

// ListHistory returns every archived transaction ordered by identifier.
func (r *TransactionRepo) ListHistory(ctx context.Context) (model.TransactionPage, error) {
	return r.list(ctx, historyTable, true)
}

// ListByResident returns a resident's live and archived transactions from a
// single UNION ALL statement, so an archive committing mid-listing cannot
// surface the same row from both tables.
func (r *TransactionRepo) ListByResident(ctx context.Context, residentID int64) (model.TransactionPage, error) {
	const query = `SELECT ` + transactionColumns + `, 0 AS archived FROM certificate_transaction WHERE resident_id = ?
		UNION ALL
		SELECT ` + transactionColumns + `, 1 AS archived FROM certificate_transaction_history WHERE resident_id = ?
		ORDER BY transaction_id`

	return r.collect(ctx, "resident transactions", query, []any{residentID, residentID}, func(rows *sql.Rows) (recordmap.TransactionRow, bool, error) {
		var archived bool
		row, err := scanTransactionRow(rows, &archived)
		return row, archived, err
	})
}

// ListHistoryByResident returns a resident's archived transactions.
func (r *TransactionRepo) ListHistoryByResident(ctx context.Context, residentID int64) (model.TransactionPage, error) {
	query := `SELECT ` + transactionColumns + ` FROM ` + historyTable + ` WHERE resident_id = ? ORDER BY transaction_id`
	return r.collect(ctx, historyTable, query, []any{residentID}, fixedArchived(true))
}

func (r *TransactionRepo) list(ctx context.Context, table string, archived bool) (model.TransactionPage, error) {
	query := `SELECT ` + transactionColumns + ` FROM ` + table + ` ORDER BY transaction_id`
	return r.collect(ctx, table, query, nil, fixedArchived(archived))
}

type rowScanFunc func(*sql.Rows) (recordmap.TransactionRow, bool, error)

func fixedArchived(archived bool) rowScanFunc {
	return func(rows *sql.Rows) (recordmap.TransactionRow, bool, error) {
		row, err := scanTransactionRow(rows)
		return row, archived, err
	}
}

// collect decodes every row of query, moving rows the mapper rejects into
// the page's Failed list.
func (r *TransactionRepo) collect(ctx context.Context, label, query string, args []any, scan rowScanFunc) (model.TransactionPage, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return model.TransactionPage{}, fmt.Errorf("list %s: %w", label, err)
	}
	defer rows.Close()

	var page model.TransactionPage
	for rows.Next() {
		row, archived, err := scan(rows)
		if err != nil {
			return model.TransactionPage{}, fmt.Errorf("scan transaction: %w", err)
		}
		t, err := r.mapper.TransactionFromRow(row, archived)
		if err != nil {
			page.Failed = append(page.Failed, model.RowError{ID: row.ID, Reason: recordmap.RowReason(err)})
			continue
		}
		page.Transactions = append(page.Transactions, t)
	}

	if err := rows.Err(); err != nil {
		return model.TransactionPage{}, fmt.Errorf("iterate %s: %w", label, err)
	}
	return page, nil
}

// PurgeHistory deletes every history row.
func (r *TransactionRepo) PurgeHistory(ctx context.Context) (int64, error) {
	res, err := r.db.Writer.ExecContext(ctx, `DELETE FROM certificate_transaction_history`)
	if err != nil {
		return 0, fmt.Errorf("purge history: %w", err)
	}
	return affected(res)
}

// Rotate re-encrypts live rows whose tokens are not under the primary key.
func (r *TransactionRepo) Rotate(ctx context.Context) (int, error) {
	const selectQuery = `SELECT ` + transactionColumns + ` FROM certificate_transaction ORDER BY transaction_id`
	const updateQuery = `UPDATE certificate_transaction
		SET certificate_type = ?, purpose = ?, certificate_details = ? WHERE transaction_id = ?`

	var rotated int
	err := r.db.withTx(ctx, "rotate transactions", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, selectQuery)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}

		var stale []recordmap.TransactionRow
		for rows.Next() {
			row, err := scanTransactionRow(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan transaction: %w", err)
			}
			resealed, changed, err := r.mapper.ResealTransaction(row)
			if err != nil {
				rows.Close()
				return fmt.Errorf("reseal transaction %d: %w", row.ID, err)
			}
			if changed {
				stale = append(stale, resealed)
			}
		}
		if err := rows.Close(); err != nil {
			return err
		}

		for _, row := range stale {
			if _, err := tx.ExecContext(ctx, updateQuery, row.CertificateType, row.Purpose, row.Details, row.ID); err != nil {
				return fmt.Errorf("rewrite transaction %d: %w", row.ID, err)
			}
		}
		rotated = len(stale)
		return nil
	})
	return rotated, err
}

// scanTransactionRow scans transactionColumns followed by any extra columns.
func scanTransactionRow(s scanner, extra ...any) (recordmap.TransactionRow, error) {
	var row recordmap.TransactionRow
	var requested string
	var issued sql.NullString

	dest := append([]any{
		&row.ID, &row.ResidentID, &row.CertificateType, &row.Purpose, &row.Status,
		&row.Details, &requested, &issued, &row.Version,
	}, extra...)
	err := s.Scan(dest...)
	if err != nil {
		return row, err
	}

	if row.DateRequested, err = parseTime(requested); err != nil {
		return row, fmt.Errorf("parse date_requested: %w", err)
	}
	if issued.Valid {
		t, err := parseTime(issued.String)
		if err != nil {
			return row, fmt.Errorf("parse date_issued: %w", err)
		}
		row.DateIssued = sql.NullTime{Time: t, Valid: true}
	}
	return row, nil
}
