package application_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ericfisherdev/civicrecords/internal/application"
	"github.com/ericfisherdev/civicrecords/internal/domain/model"
)

func setupCredentialService(t *testing.T) (*application.CredentialService, *mockCredentialStore, *mockQueue) {
	t.Helper()

	resident := validResident("Ana", "Reyes")
	resident.ID = 1
	creds := newMockCredentialStore()
	queue := &mockQueue{}
	return application.NewCredentialService(creds, newMockResidentStore(resident), queue), creds, queue
}

func TestCredentialService_CreateCredential(t *testing.T) {
	svc, creds, queue := setupCredentialService(t)

	cred, err := svc.CreateCredential(context.Background(), 1, " Ana@Example.com ", "s3cret-pass")
	require.NoError(t, err)

	assert.Equal(t, "ana@example.com", cred.Email)
	assert.True(t, model.ValidCode(cred.Code))
	assert.False(t, cred.Verified)

	stored := creds.byEmail["ana@example.com"]
	assert.NotEqual(t, "s3cret-pass", stored.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("s3cret-pass")))
	cost, err := bcrypt.Cost([]byte(stored.PasswordHash))
	require.NoError(t, err)
	assert.Equal(t, application.PasswordHashCost, cost)

	sent := queue.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ana@example.com", sent[0].To)
	assert.Contains(t, sent[0].Body, fmt.Sprintf("**%06d**", cred.Code))
}

func TestCredentialService_CreateCredentialErrors(t *testing.T) {
	tests := []struct {
		name       string
		residentID int64
		email      string
		password   string
		wantKind   error
	}{
		{name: "unknown resident", residentID: 42, email: "a@example.com", password: "pw", wantKind: model.ErrReferential},
		{name: "bad email", residentID: 1, email: "nope", password: "pw", wantKind: model.ErrValidation},
		{name: "empty password", residentID: 1, email: "a@example.com", password: "", wantKind: model.ErrValidation},
		{name: "missing resident id", residentID: 0, email: "a@example.com", password: "pw", wantKind: model.ErrValidation},
		{name: "password too long", residentID: 1, email: "a@example.com", password: strings.Repeat("x", 73), wantKind: model.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, creds, queue := setupCredentialService(t)

			_, err := svc.CreateCredential(context.Background(), tt.residentID, tt.email, tt.password)
			assert.ErrorIs(t, err, tt.wantKind)
			assert.Empty(t, creds.byEmail, "nothing written")
			assert.Empty(t, queue.sent(), "nothing sent")
		})
	}
}

func TestCredentialService_DuplicateEmail(t *testing.T) {
	svc, _, _ := setupCredentialService(t)
	ctx := context.Background()

	_, err := svc.CreateCredential(ctx, 1, "ana@example.com", "pw")
	require.NoError(t, err)

	_, err = svc.CreateCredential(ctx, 1, "ANA@example.com", "other")
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.Equal(t, "email already registered", model.PublicMessage(err))
}

func TestCredentialService_EnqueueFailureIsNotFatal(t *testing.T) {
	svc, creds, queue := setupCredentialService(t)
	queue.err = errors.New("queue full")

	_, err := svc.CreateCredential(context.Background(), 1, "ana@example.com", "pw")
	require.NoError(t, err)
	assert.Contains(t, creds.byEmail, "ana@example.com")
}

func TestCredentialService_UpdateCode(t *testing.T) {
	svc, creds, queue := setupCredentialService(t)
	ctx := context.Background()
	_, err := svc.CreateCredential(ctx, 1, "ana@example.com", "pw")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateCode(ctx, "ana@example.com", 123456))
	assert.Equal(t, 123456, creds.byEmail["ana@example.com"].Code)

	sent := queue.sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].Body, "**123456**")

	assert.ErrorIs(t, svc.UpdateCode(ctx, "ana@example.com", 12345), model.ErrValidation)
	assert.ErrorIs(t, svc.UpdateCode(ctx, "ana@example.com", 1000000), model.ErrValidation)
	assert.ErrorIs(t, svc.UpdateCode(ctx, "bob@example.com", 123456), model.ErrNotFound)
}

func TestCredentialService_VerifyAndPassword(t *testing.T) {
	svc, creds, _ := setupCredentialService(t)
	ctx := context.Background()
	_, err := svc.CreateCredential(ctx, 1, "ana@example.com", "pw")
	require.NoError(t, err)

	require.NoError(t, svc.MarkVerified(ctx, "ana@example.com"))
	require.NoError(t, svc.MarkVerified(ctx, "ana@example.com"))
	assert.True(t, creds.byEmail["ana@example.com"].Verified)

	require.NoError(t, svc.ChangePassword(ctx, "ana@example.com", "new-pass"))
	hash := creds.byEmail["ana@example.com"].PasswordHash
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("new-pass")))

	assert.ErrorIs(t, svc.ChangePassword(ctx, "ana@example.com", ""), model.ErrValidation)
}

func TestCredentialService_Lookup(t *testing.T) {
	svc, creds, _ := setupCredentialService(t)
	ctx := context.Background()
	_, err := svc.CreateCredential(ctx, 1, "ana@example.com", "pw")
	require.NoError(t, err)

	got, err := svc.Lookup(ctx, "Ana@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "Reyes", got.Resident.LastName)
	assert.Equal(t, int64(1), got.Credential.ResidentID)

	_, err = svc.Lookup(ctx, "bob@example.com")
	assert.ErrorIs(t, err, model.ErrNotFound)

	creds.byEmail["orphan@example.com"] = model.Credential{ResidentID: 77, Email: "orphan@example.com"}
	_, err = svc.Lookup(ctx, "orphan@example.com")
	assert.ErrorIs(t, err, model.ErrReferential)

	list, err := svc.ListCredentials(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
