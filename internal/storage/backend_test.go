package storage_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/fieldcrypt"
	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/recordmap"
	"github.com/ericfisherdev/civicrecords/internal/config"
	"github.com/ericfisherdev/civicrecords/internal/domain/model"
	"github.com/ericfisherdev/civicrecords/internal/storage"
)

func TestOpenSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{DBDriver: config.DriverSQLite, DBPath: filepath.Join(t.TempDir(), "records.db")}

	backend, err := storage.Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	assert.Equal(t, config.DriverSQLite, backend.Driver())
	require.NoError(t, backend.Ping(ctx))

	version, _, err := backend.Version()
	require.NoError(t, err)
	assert.Zero(t, version)

	require.NoError(t, backend.Migrate())
	require.NoError(t, backend.Migrate(), "migrating twice is a no-op")

	version, dirty, err := backend.Version()
	require.NoError(t, err)
	assert.Positive(t, version)
	assert.False(t, dirty)

	ring, err := fieldcrypt.NewKeyring("k1", map[string][]byte{"k1": bytes.Repeat([]byte{7}, fieldcrypt.KeySize)}, nil)
	require.NoError(t, err)
	stores := backend.Stores(recordmap.New(fieldcrypt.New(ring)))

	id, err := stores.Residents.Create(ctx, model.Resident{
		FirstName:   "Juan",
		LastName:    "Dela Cruz",
		Age:         30,
		Sex:         model.SexMale,
		CivilStatus: model.CivilStatusSingle,
		Address:     "Purok 1",
		Birthplace:  "Cebu",
		Birthday:    time.Date(1994, time.May, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	got, err := stores.Residents.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Juan", got.FirstName)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := storage.Open(context.Background(), &config.Config{DBDriver: "mysql"})
	assert.ErrorContains(t, err, "unsupported database driver")
}
