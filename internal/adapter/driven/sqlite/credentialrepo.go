package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
	"github.com/ericfisherdev/civicrecords/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port
// interface. Password hashes are stored as given; nothing here is encrypted
// with the field codec.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Create inserts a credential.
func (r *CredentialRepo) Create(ctx context.Context, cred model.Credential) error {
	const query = `INSERT INTO user_info (user_id, email, password, code, is_verified) VALUES (?, ?, ?, ?, ?)`

	_, err := r.db.Writer.ExecContext(ctx, query, cred.ResidentID, cred.Email, cred.PasswordHash, cred.Code, cred.Verified)
	if err != nil {
		switch {
		case strings.Contains(err.Error(), "UNIQUE constraint"):
			return &model.Error{Kind: model.ErrConflict, Op: "create credential", Msg: "email or resident already has a credential", Err: err}
		case strings.Contains(err.Error(), "FOREIGN KEY constraint"):
			return &model.Error{Kind: model.ErrReferential, Op: "create credential", Msg: fmt.Sprintf("resident %d does not exist", cred.ResidentID), Err: err}
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

// GetByEmail retrieves a credential. Returns nil, nil if none exists.
func (r *CredentialRepo) GetByEmail(ctx context.Context, email string) (*model.Credential, error) {
	const query = `SELECT user_id, email, password, code, is_verified FROM user_info WHERE email = ?`

	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return cred, nil
}

// UpdateCode replaces the verification code for email.
func (r *CredentialRepo) UpdateCode(ctx context.Context, email string, code int) error {
	const query = `UPDATE user_info SET code = ? WHERE email = ?`
	return r.exec(ctx, "update code", query, code, email)
}

// UpdatePassword replaces the password hash for email.
func (r *CredentialRepo) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	const query = `UPDATE user_info SET password = ? WHERE email = ?`
	return r.exec(ctx, "update password", query, passwordHash, email)
}

// MarkVerified sets the verified flag for email.
func (r *CredentialRepo) MarkVerified(ctx context.Context, email string) error {
	const query = `UPDATE user_info SET is_verified = 1 WHERE email = ?`
	return r.exec(ctx, "mark verified", query, email)
}

// ListAll returns every credential ordered by resident identifier.
func (r *CredentialRepo) ListAll(ctx context.Context) ([]model.Credential, error) {
	const query = `SELECT user_id, email, password, code, is_verified FROM user_info ORDER BY user_id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, *cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return creds, nil
}

// EmailsByResident resolves emails for the given residents in one query
// with a single bound parameter.
func (r *CredentialRepo) EmailsByResident(ctx context.Context, residentIDs []int64) (map[int64]string, error) {
	emails := make(map[int64]string, len(residentIDs))
	if len(residentIDs) == 0 {
		return emails, nil
	}

	// The ids travel as one JSON array so the lookup never hits the
	// host parameter limit.
	const query = `SELECT user_id, email FROM user_info
		WHERE user_id IN (SELECT value FROM json_each(?))`

	ids, err := json.Marshal(residentIDs)
	if err != nil {
		return nil, fmt.Errorf("encode resident ids: %w", err)
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, string(ids))
	if err != nil {
		return nil, fmt.Errorf("lookup emails: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		emails[id] = email
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emails: %w", err)
	}
	return emails, nil
}

func (r *CredentialRepo) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.Writer.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return model.NotFound(op, "no credential for that email")
	}
	return nil
}

func scanCredential(s scanner) (*model.Credential, error) {
	var cred model.Credential
	if err := s.Scan(&cred.ResidentID, &cred.Email, &cred.PasswordHash, &cred.Code, &cred.Verified); err != nil {
		return nil, err
	}
	return &cred, nil
}
