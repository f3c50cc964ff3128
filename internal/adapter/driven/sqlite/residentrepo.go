package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/recordmap"
	"github.com/ericfisherdev/civicrecords/internal/domain/model"
	"github.com/ericfisherdev/civicrecords/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ResidentStore = (*ResidentRepo)(nil)

const residentColumns = `resident_id, first_name, middle_name, last_name, extension_name,
	age, sex, status, address, birthplace, birthday, date_added`

// ResidentRepo is the SQLite implementation of the ResidentStore port interface.
// Protected columns are sealed by the record mapper before write and opened
// after read.
type ResidentRepo struct {
	db     *DB
	mapper *recordmap.Mapper
}

// NewResidentRepo creates a new ResidentRepo backed by the given DB.
func NewResidentRepo(db *DB, mapper *recordmap.Mapper) *ResidentRepo {
	return &ResidentRepo{db: db, mapper: mapper}
}

// Create inserts one resident and returns its identifier.
func (r *ResidentRepo) Create(ctx context.Context, resident model.Resident) (int64, error) {
	row, err := r.mapper.ResidentToRow(resident)
	if err != nil {
		return 0, err
	}

	id, err := insertResident(ctx, r.db.Writer, row)
	if err != nil {
		return 0, fmt.Errorf("create resident: %w", err)
	}
	return id, nil
}

// CreateBatch inserts all residents in one transaction. Every resident is
// validated and encrypted before the transaction begins.
func (r *ResidentRepo) CreateBatch(ctx context.Context, residents []model.Resident) ([]int64, error) {
	rows, err := r.mapAll(residents)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(rows))
	err = r.db.withTx(ctx, "create residents", func(tx *sql.Tx) error {
		for i, row := range rows {
			id, err := insertResident(ctx, tx, row)
			if err != nil {
				return fmt.Errorf("insert resident %d: %w", i+1, err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Update replaces every field of an existing resident except date_added.
func (r *ResidentRepo) Update(ctx context.Context, resident model.Resident) error {
	row, err := r.mapper.ResidentToRow(resident)
	if err != nil {
		return err
	}
	return updateResident(ctx, r.db.Writer, row)
}

// UpdateBatch applies all updates in one transaction. Every resident is
// validated before the transaction begins; a missing identifier rolls back
// the whole batch.
func (r *ResidentRepo) UpdateBatch(ctx context.Context, residents []model.Resident) error {
	rows, err := r.mapAll(residents)
	if err != nil {
		return err
	}

	return r.db.withTx(ctx, "update residents", func(tx *sql.Tx) error {
		for _, row := range rows {
			if err := updateResident(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get retrieves a resident by identifier. Returns nil, nil if it does not exist.
func (r *ResidentRepo) Get(ctx context.Context, id int64) (*model.Resident, error) {
	const query = `SELECT ` + residentColumns + ` FROM resident_information WHERE resident_id = ?`

	row, err := scanResidentRow(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get resident %d: %w", id, err)
	}

	resident, err := r.mapper.ResidentFromRow(row)
	if err != nil {
		return nil, err
	}
	return &resident, nil
}

// Exists reports whether a resident row exists.
func (r *ResidentRepo) Exists(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM resident_information WHERE resident_id = ?)`

	var exists bool
	if err := r.db.Reader.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check resident %d: %w", id, err)
	}
	return exists, nil
}

// ListAll returns every resident ordered by identifier. Rows that fail to
// decrypt are skipped and reported.
func (r *ResidentRepo) ListAll(ctx context.Context) ([]model.Resident, []model.RowError, error) {
	const query = `SELECT ` + residentColumns + ` FROM resident_information ORDER BY resident_id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("list residents: %w", err)
	}
	defer rows.Close()

	var (
		residents []model.Resident
		failed    []model.RowError
	)
	for rows.Next() {
		row, err := scanResidentRow(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("scan resident: %w", err)
		}
		resident, err := r.mapper.ResidentFromRow(row)
		if err != nil {
			failed = append(failed, model.RowError{ID: row.ID, Reason: recordmap.RowReason(err)})
			continue
		}
		residents = append(residents, resident)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate residents: %w", err)
	}

	return residents, failed, nil
}

// Delete removes a resident by identifier.
func (r *ResidentRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM resident_information WHERE resident_id = ?`

	res, err := r.db.Writer.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete resident %d: %w", id, err)
	}

	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NotFound("delete resident", "resident %d not found", id)
	}
	return nil
}

// Rotate re-encrypts every resident row holding a token not sealed under the
// primary key.
func (r *ResidentRepo) Rotate(ctx context.Context) (int, error) {
	const query = `SELECT ` + residentColumns + ` FROM resident_information ORDER BY resident_id`

	var rotated int
	err := r.db.withTx(ctx, "rotate residents", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("list residents: %w", err)
		}

		var stale []recordmap.ResidentRow
		for rows.Next() {
			row, err := scanResidentRow(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan resident: %w", err)
			}
			resealed, changed, err := r.mapper.ResealResident(row)
			if err != nil {
				rows.Close()
				return fmt.Errorf("reseal resident %d: %w", row.ID, err)
			}
			if changed {
				stale = append(stale, resealed)
			}
		}
		if err := rows.Close(); err != nil {
			return err
		}

		for _, row := range stale {
			if err := updateResidentTokens(ctx, tx, row); err != nil {
				return err
			}
		}
		rotated = len(stale)
		return nil
	})
	return rotated, err
}

func (r *ResidentRepo) mapAll(residents []model.Resident) ([]recordmap.ResidentRow, error) {
	rows := make([]recordmap.ResidentRow, 0, len(residents))
	for i, resident := range residents {
		row, err := r.mapper.ResidentToRow(resident)
		if err != nil {
			var domainErr *model.Error
			if errors.As(err, &domainErr) && errors.Is(err, model.ErrValidation) {
				return nil, model.Invalid("validate residents", "item %d: %s", i+1, domainErr.Msg)
			}
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func insertResident(ctx context.Context, ex execer, row recordmap.ResidentRow) (int64, error) {
	const query = `INSERT INTO resident_information
		(first_name, middle_name, last_name, extension_name, age, sex, status, address, birthplace, birthday, date_added)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	added := row.DateAdded
	if added.IsZero() {
		added = time.Now().UTC()
	}

	res, err := ex.ExecContext(ctx, query,
		row.FirstName, row.MiddleName, row.LastName, row.ExtensionName,
		row.Age, row.Sex, row.CivilStatus, row.Address, row.Birthplace,
		row.Birthday, formatTime(added),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func updateResident(ctx context.Context, ex execer, row recordmap.ResidentRow) error {
	const query = `UPDATE resident_information SET
		first_name = ?, middle_name = ?, last_name = ?, extension_name = ?, age = ?, sex = ?,
		status = ?, address = ?, birthplace = ?, birthday = ?
		WHERE resident_id = ?`

	res, err := ex.ExecContext(ctx, query,
		row.FirstName, row.MiddleName, row.LastName, row.ExtensionName,
		row.Age, row.Sex, row.CivilStatus, row.Address, row.Birthplace,
		row.Birthday, row.ID,
	)
	if err != nil {
		return fmt.Errorf("update resident %d: %w", row.ID, err)
	}

	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NotFound("update resident", "resident %d not found", row.ID)
	}
	return nil
}

func updateResidentTokens(ctx context.Context, ex execer, row recordmap.ResidentRow) error {
	const query = `UPDATE resident_information SET
		first_name = ?, middle_name = ?, last_name = ?, status = ?, address = ?, birthplace = ?
		WHERE resident_id = ?`

	_, err := ex.ExecContext(ctx, query,
		row.FirstName, row.MiddleName, row.LastName, row.CivilStatus, row.Address, row.Birthplace, row.ID)
	if err != nil {
		return fmt.Errorf("rewrite resident %d: %w", row.ID, err)
	}
	return nil
}

func scanResidentRow(s scanner) (recordmap.ResidentRow, error) {
	var row recordmap.ResidentRow
	var dateAdded string

	err := s.Scan(
		&row.ID, &row.FirstName, &row.MiddleName, &row.LastName, &row.ExtensionName,
		&row.Age, &row.Sex, &row.CivilStatus, &row.Address, &row.Birthplace,
		&row.Birthday, &dateAdded,
	)
	if err != nil {
		return row, err
	}

	row.DateAdded, err = parseTime(dateAdded)
	if err != nil {
		return row, fmt.Errorf("parse date_added: %w", err)
	}
	return row, nil
}
