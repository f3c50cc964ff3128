package application

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"golang.org/x/crypto/bcrypt"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
	"github.com/ericfisherdev/civicrecords/internal/domain/port/driven"
)

// PasswordHashCost is the bcrypt cost used for stored passwords.
const PasswordHashCost = 10

// CredentialService manages user accounts bound to resident records.
type CredentialService struct {
	credentials driven.CredentialStore
	residents   driven.ResidentStore
	queue       driven.NotificationQueue
	newCode     func() (int, error)
}

// NewCredentialService creates a new CredentialService.
func NewCredentialService(
	credentials driven.CredentialStore,
	residents driven.ResidentStore,
	queue driven.NotificationQueue,
) *CredentialService {
	return &CredentialService{
		credentials: credentials,
		residents:   residents,
		queue:       queue,
		newCode:     generateCode,
	}
}

// CreateCredential registers email for an existing resident, stores a bcrypt
// hash of password and sends a fresh verification code.
func (s *CredentialService) CreateCredential(ctx context.Context, residentID int64, email, password string) (*model.Credential, error) {
	const op = "create credential"

	email, err := model.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if residentID <= 0 {
		return nil, model.Invalid(op, "resident id is required")
	}
	if password == "" {
		return nil, model.Invalid(op, "password is required")
	}

	exists, err := s.residents.Exists(ctx, residentID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &model.Error{Kind: model.ErrReferential, Op: op, Msg: fmt.Sprintf("resident %d does not exist", residentID)}
	}

	existing, err := s.credentials.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &model.Error{Kind: model.ErrConflict, Op: op, Msg: "email already registered"}
	}

	hash, err := hashPassword(op, password)
	if err != nil {
		return nil, err
	}
	code, err := s.newCode()
	if err != nil {
		return nil, fmt.Errorf("%s: generate code: %w", op, err)
	}

	cred := model.Credential{
		ResidentID:   residentID,
		Email:        email,
		PasswordHash: hash,
		Code:         code,
	}
	if err := s.credentials.Create(ctx, cred); err != nil {
		return nil, err
	}

	s.enqueue(ctx, verificationNotification(email, code))
	return &cred, nil
}

// UpdateCode stores a new verification code and mails it to the owner.
func (s *CredentialService) UpdateCode(ctx context.Context, email string, code int) error {
	email, err := model.NormalizeEmail(email)
	if err != nil {
		return err
	}
	if !model.ValidCode(code) {
		return model.Invalid("update code", "code must be a six digit number")
	}

	if err := s.credentials.UpdateCode(ctx, email, code); err != nil {
		return err
	}

	s.enqueue(ctx, verificationNotification(email, code))
	return nil
}

// MarkVerified flags the credential as verified.
func (s *CredentialService) MarkVerified(ctx context.Context, email string) error {
	email, err := model.NormalizeEmail(email)
	if err != nil {
		return err
	}
	return s.credentials.MarkVerified(ctx, email)
}

// ChangePassword re-hashes and stores a new password.
func (s *CredentialService) ChangePassword(ctx context.Context, email, password string) error {
	const op = "change password"

	email, err := model.NormalizeEmail(email)
	if err != nil {
		return err
	}
	if password == "" {
		return model.Invalid(op, "password is required")
	}

	hash, err := hashPassword(op, password)
	if err != nil {
		return err
	}
	return s.credentials.UpdatePassword(ctx, email, hash)
}

// Lookup returns the credential for email together with its decrypted
// resident record.
func (s *CredentialService) Lookup(ctx context.Context, email string) (*model.CredentialLookup, error) {
	const op = "lookup credential"

	email, err := model.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	cred, err := s.credentials.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, model.NotFound(op, "no account for %s", email)
	}

	resident, err := s.residents.Get(ctx, cred.ResidentID)
	if err != nil {
		return nil, err
	}
	if resident == nil {
		return nil, &model.Error{Kind: model.ErrReferential, Op: op, Msg: fmt.Sprintf("resident %d does not exist", cred.ResidentID)}
	}

	return &model.CredentialLookup{Credential: *cred, Resident: *resident}, nil
}

// ListCredentials returns every credential ordered by resident identifier.
func (s *CredentialService) ListCredentials(ctx context.Context) ([]model.Credential, error) {
	return s.credentials.ListAll(ctx)
}

func (s *CredentialService) enqueue(ctx context.Context, n model.Notification) {
	if err := s.queue.Enqueue(ctx, n); err != nil {
		slog.Error("enqueue verification notification failed", "error", err)
	}
}

func hashPassword(op, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordHashCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", model.Invalid(op, "password must be at most 72 bytes")
	}
	if err != nil {
		return "", fmt.Errorf("%s: hash password: %w", op, err)
	}
	return string(hash), nil
}

// generateCode returns a uniformly random six digit code.
func generateCode() (int, error) {
	span := big.NewInt(model.MaxVerificationCode - model.MinVerificationCode + 1)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return 0, err
	}
	return model.MinVerificationCode + int(n.Int64()), nil
}
