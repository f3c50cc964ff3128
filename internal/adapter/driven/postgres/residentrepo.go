package postgres

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

var _ driven.ResidentStore = (*ResidentRepo)(nil)

const residentColumns = `resident_id, first_name, middle_name, last_name, extension_name,
	age, sex, status, address, birthplace, birthday, date_added`

// ResidentRepo is the PostgreSQL implementation of the ResidentStore port.
type ResidentRepo struct {
	db     *sql.DB
	mapper *recordmap.Mapper
}

// NewResidentRepo creates a ResidentRepo.
func NewResidentRepo(db *sql.DB, mapper *recordmap.Mapper) *ResidentRepo {
	return &ResidentRepo{db: db, mapper: mapper}
}

// Create encrypts and inserts a resident, returning its identifier.
func (r *ResidentRepo) Create(ctx context.Context, resident model.Resident) (int64, error) {
	row, err := r.mapper.ResidentToRow(resident)
	if err != nil {
		return 0, err
	}
	id, err := insertResident(ctx, r.db, row)
	if err != nil {
		return 0, fmt.Errorf("create resident: %w", err)
	}
	return id, nil
}

// CreateBatch inserts every resident in one transaction. Any failure
// rolls the whole batch back.
func (r *ResidentRepo) CreateBatch(ctx context.Context, residents []model.Resident) ([]int64, error) {
	rows, err := r.mapAll(residents)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(rows))
	err = withTx(ctx, r.db, "create residents", func(tx *sql.Tx) error {
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

// Update overwrites every field of an existing resident.
func (r *ResidentRepo) Update(ctx context.Context, resident model.Resident) error {
	row, err := r.mapper.ResidentToRow(resident)
	if err != nil {
		return err
	}
	return updateResident(ctx, r.db, row)
}

// UpdateBatch applies every update in one transaction, or none of them.
func (r *ResidentRepo) UpdateBatch(ctx context.Context, residents []model.Resident) error {
	rows, err := r.mapAll(residents)
	if err != nil {
		return err
	}
	return withTx(ctx, r.db, "update residents", func(tx *sql.Tx) error {
		for _, row := range rows {
			if err := updateResident(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get retrieves a resident. Returns nil, nil if it does not exist.
func (r *ResidentRepo) Get(ctx context.Context, id int64) (*model.Resident, error) {
	const query = `SELECT ` + residentColumns + ` FROM resident_information WHERE resident_id = $1`

	row, err := scanResidentRow(r.db.QueryRowContext(ctx, query, id))
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

// Exists reports whether a resident row is present.
func (r *ResidentRepo) Exists(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM resident_information WHERE resident_id = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check resident %d: %w", id, err)
	}
	return exists, nil
}

// ListAll returns every decodable resident by identifier and reports the
// rows that failed to decode.
func (r *ResidentRepo) ListAll(ctx context.Context) ([]model.Resident, []model.RowError, error) {
	const query = `SELECT ` + residentColumns + ` FROM resident_information ORDER BY resident_id`

	rows, err := r.db.QueryContext(ctx, query)
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

// Delete removes a resident.
func (r *ResidentRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM resident_information WHERE resident_id = $1`, id)
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

// Rotate locks every resident row for the duration of the rewrite.
func (r *ResidentRepo) Rotate(ctx context.Context) (int, error) {
	const selectQuery = `SELECT ` + residentColumns + ` FROM resident_information ORDER BY resident_id FOR UPDATE`
	const updateQuery = `UPDATE resident_information SET
		first_name = $1, middle_name = $2, last_name = $3, status = $4, address = $5, birthplace = $6
		WHERE resident_id = $7`

	var rotated int
	err := withTx(ctx, r.db, "rotate residents", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, selectQuery)
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
			_, err := tx.ExecContext(ctx, updateQuery,
				row.FirstName, row.MiddleName, row.LastName, row.CivilStatus, row.Address, row.Birthplace, row.ID)
			if err != nil {
				return fmt.Errorf("rewrite resident %d: %w", row.ID, err)
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

func insertResident(ctx context.Context, q querier, row recordmap.ResidentRow) (int64, error) {
	const query = `INSERT INTO resident_information
		(first_name, middle_name, last_name, extension_name, age, sex, status, address, birthplace, birthday, date_added)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING resident_id`

	added := row.DateAdded
	if added.IsZero() {
		added = time.Now().UTC()
	}

	var id int64
	err := q.QueryRowContext(ctx, query,
		row.FirstName, row.MiddleName, row.LastName, row.ExtensionName,
		row.Age, row.Sex, row.CivilStatus, row.Address, row.Birthplace,
		row.Birthday, added,
	).Scan(&id)
	return id, err
}

func updateResident(ctx context.Context, ex execer, row recordmap.ResidentRow) error {
	const query = `UPDATE resident_information SET
		first_name = $1, middle_name = $2, last_name = $3, extension_name = $4, age = $5, sex = $6,
		status = $7, address = $8, birthplace = $9, birthday = $10
		WHERE resident_id = $11`

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

func scanResidentRow(s scanner) (recordmap.ResidentRow, error) {
	var row recordmap.ResidentRow
	err := s.Scan(
		&row.ID, &row.FirstName, &row.MiddleName, &row.LastName, &row.ExtensionName,
		&row.Age, &row.Sex, &row.CivilStatus, &row.Address, &row.Birthplace,
		&row.Birthday, &row.DateAdded,
	)
	return row, err
}
