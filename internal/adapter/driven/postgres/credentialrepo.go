package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
	"github.com/ericfisherdev/civicrecords/internal/domain/port/driven"
)

var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the PostgreSQL implementation of the CredentialStore port.
type CredentialRepo struct {
	db *sql.DB
}

// NewCredentialRepo creates a CredentialRepo.
func NewCredentialRepo(db *sql.DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Create inserts a credential.
func (r *CredentialRepo) Create(ctx context.Context, cred model.Credential) error {
	const query = `INSERT INTO user_info (user_id, email, password, code, is_verified) VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query, cred.ResidentID, cred.Email, cred.PasswordHash, cred.Code, cred.Verified)
	switch pqCode(err) {
	case "":
	case codeUniqueViolation:
		return &model.Error{Kind: model.ErrConflict, Op: "create credential", Msg: "email or resident already has a credential", Err: err}
	case codeForeignKeyViolation:
		return &model.Error{Kind: model.ErrReferential, Op: "create credential", Msg: fmt.Sprintf("resident %d does not exist", cred.ResidentID), Err: err}
	}
	if err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

// GetByEmail retrieves a credential. Returns nil, nil if none matches.
func (r *CredentialRepo) GetByEmail(ctx context.Context, email string) (*model.Credential, error) {
	const query = `SELECT user_id, email, password, code, is_verified FROM user_info WHERE email = $1`

	var cred model.Credential
	err := r.db.QueryRowContext(ctx, query, email).
		Scan(&cred.ResidentID, &cred.Email, &cred.PasswordHash, &cred.Code, &cred.Verified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return &cred, nil
}

// UpdateCode replaces the verification code.
func (r *CredentialRepo) UpdateCode(ctx context.Context, email string, code int) error {
	return r.exec(ctx, "update code", `UPDATE user_info SET code = $1 WHERE email = $2`, code, email)
}

// UpdatePassword replaces the stored password hash.
func (r *CredentialRepo) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	return r.exec(ctx, "update password", `UPDATE user_info SET password = $1 WHERE email = $2`, passwordHash, email)
}

// MarkVerified flags the account as verified.
func (r *CredentialRepo) MarkVerified(ctx context.Context, email string) error {
	return r.exec(ctx, "mark verified", `UPDATE user_info SET is_verified = TRUE WHERE email = $1`, email)
}

// ListAll returns every credential ordered by resident.
func (r *CredentialRepo) ListAll(ctx context.Context) ([]model.Credential, error) {
	const query = `SELECT user_id, email, password, code, is_verified FROM user_info ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		var cred model.Credential
		if err := rows.Scan(&cred.ResidentID, &cred.Email, &cred.PasswordHash, &cred.Code, &cred.Verified); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return creds, nil
}

// EmailsByResident resolves emails with a single ANY($1) lookup.
func (r *CredentialRepo) EmailsByResident(ctx context.Context, residentIDs []int64) (map[int64]string, error) {
	emails := make(map[int64]string, len(residentIDs))
	if len(residentIDs) == 0 {
		return emails, nil
	}

	const query = `SELECT user_id, email FROM user_info WHERE user_id = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(residentIDs))
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
	res, err := r.db.ExecContext(ctx, query, args...)
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
