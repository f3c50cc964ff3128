package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
)

func seedResident(t *testing.T, db *DB, first string) int64 {
	t.Helper()
	id, err := NewResidentRepo(db, testMapper(t)).Create(context.Background(), makeResident(first, "Cruz"))
	require.NoError(t, err)
	return id
}

func TestCredentialRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()
	rid := seedResident(t, db, "Ana")

	err := repo.Create(ctx, model.Credential{ResidentID: rid, Email: "ana@example.com", PasswordHash: "$2a$10$hash", Code: 123456})
	require.NoError(t, err)

	got, err := repo.GetByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rid, got.ResidentID)
	assert.Equal(t, "$2a$10$hash", got.PasswordHash)
	assert.Equal(t, 123456, got.Code)
	assert.False(t, got.Verified)

	missing, err := repo.GetByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCredentialRepo_Create_Conflicts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()
	a := seedResident(t, db, "Ana")
	b := seedResident(t, db, "Ben")

	require.NoError(t, repo.Create(ctx, model.Credential{ResidentID: a, Email: "ana@example.com", PasswordHash: "h", Code: 111111}))

	err := repo.Create(ctx, model.Credential{ResidentID: b, Email: "ana@example.com", PasswordHash: "h", Code: 111111})
	assert.ErrorIs(t, err, model.ErrConflict, "email reused")

	err = repo.Create(ctx, model.Credential{ResidentID: a, Email: "other@example.com", PasswordHash: "h", Code: 111111})
	assert.ErrorIs(t, err, model.ErrConflict, "resident already has a credential")

	err = repo.Create(ctx, model.Credential{ResidentID: 404, Email: "ghost@example.com", PasswordHash: "h", Code: 111111})
	assert.ErrorIs(t, err, model.ErrReferential)
}

func TestCredentialRepo_Updates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()
	rid := seedResident(t, db, "Ana")
	require.NoError(t, repo.Create(ctx, model.Credential{ResidentID: rid, Email: "ana@example.com", PasswordHash: "old", Code: 111111}))

	require.NoError(t, repo.UpdateCode(ctx, "ana@example.com", 654321))
	require.NoError(t, repo.UpdatePassword(ctx, "ana@example.com", "new"))
	require.NoError(t, repo.MarkVerified(ctx, "ana@example.com"))
	require.NoError(t, repo.MarkVerified(ctx, "ana@example.com"), "marking twice is harmless")

	got, err := repo.GetByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, 654321, got.Code)
	assert.Equal(t, "new", got.PasswordHash)
	assert.True(t, got.Verified)

	assert.ErrorIs(t, repo.UpdateCode(ctx, "nobody@example.com", 222222), model.ErrNotFound)
	assert.ErrorIs(t, repo.MarkVerified(ctx, "nobody@example.com"), model.ErrNotFound)
}

func TestCredentialRepo_EmailsByResident(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()
	a := seedResident(t, db, "Ana")
	b := seedResident(t, db, "Ben")
	require.NoError(t, repo.Create(ctx, model.Credential{ResidentID: a, Email: "a@x.com", PasswordHash: "h", Code: 111111}))

	emails, err := repo.EmailsByResident(ctx, []int64{a, b, a})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{a: "a@x.com"}, emails)

	empty, err := repo.EmailsByResident(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, a, all[0].ResidentID)
}

func TestCredentialRepo_EmailsByResident_ManyIDs(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()
	a := seedResident(t, db, "Ana")
	b := seedResident(t, db, "Ben")
	require.NoError(t, repo.Create(ctx, model.Credential{ResidentID: a, Email: "a@x.com", PasswordHash: "h", Code: 111111}))
	require.NoError(t, repo.Create(ctx, model.Credential{ResidentID: b, Email: "b@x.com", PasswordHash: "h", Code: 222222}))

	// Well past SQLite's limit of 32766 bound parameters per statement.
	ids := make([]int64, 0, 40000)
	for id := int64(1_000_000); len(ids) < 39998; id++ {
		ids = append(ids, id)
	}
	ids = append(ids, a, b)

	emails, err := repo.EmailsByResident(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{a: "a@x.com", b: "b@x.com"}, emails)
}
