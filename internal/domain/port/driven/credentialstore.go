package driven

import (
	"context"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
)

// CredentialStore defines the driven port for user credential persistence.
type CredentialStore interface {
	// Create inserts a credential. Returns an error wrapping model.ErrConflict
	// when the email or resident already has a credential.
	Create(ctx context.Context, cred model.Credential) error

	// GetByEmail returns the credential for email, or nil, nil if absent.
	GetByEmail(ctx context.Context, email string) (*model.Credential, error)

	// UpdateCode replaces the verification code. Returns an error wrapping
	// model.ErrNotFound when the email is unknown.
	UpdateCode(ctx context.Context, email string, code int) error

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, email, passwordHash string) error

	// MarkVerified sets the verified flag. It never clears it.
	MarkVerified(ctx context.Context, email string) error

	// ListAll returns every credential ordered by resident identifier.
	ListAll(ctx context.Context) ([]model.Credential, error)

	// EmailsByResident resolves the email of each resident identifier that has
	// a credential, using a single query. Identifiers without a credential are
	// absent from the returned map.
	EmailsByResident(ctx context.Context, residentIDs []int64) (map[int64]string, error)
}
