package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/civicrecords/internal/application"
	"github.com/ericfisherdev/civicrecords/internal/domain/model"
)

func validResident(first, last string) model.Resident {
	return model.Resident{
		FirstName:   first,
		LastName:    last,
		Age:         30,
		Sex:         "m",
		CivilStatus: model.CivilStatusSingle,
		Address:     "Purok 3, Poblacion",
		Birthplace:  "Iloilo City",
		Birthday:    time.Date(1995, 6, 12, 0, 0, 0, 0, time.UTC),
	}
}

func TestResidentService_CreateResident(t *testing.T) {
	store := newMockResidentStore()
	svc := application.NewResidentService(store)

	id, err := svc.CreateResident(context.Background(), validResident("Juan", "Dela Cruz"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, model.SexMale, store.residents[1].Sex, "sex is normalized before write")

	bad := validResident("", "Dela Cruz")
	_, err = svc.CreateResident(context.Background(), bad)
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Len(t, store.residents, 1)
}

func TestResidentService_CreateResidents(t *testing.T) {
	t.Run("all valid inserts in one batch", func(t *testing.T) {
		store := newMockResidentStore()
		svc := application.NewResidentService(store)

		ids, err := svc.CreateResidents(context.Background(), []model.Resident{
			validResident("Ana", "Reyes"), validResident("Ben", "Santos"),
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2}, ids)
		assert.Equal(t, 1, store.batches)
	})

	t.Run("one invalid item writes nothing", func(t *testing.T) {
		store := newMockResidentStore()
		svc := application.NewResidentService(store)

		bad := validResident("Ben", "Santos")
		bad.Sex = "x"

		_, err := svc.CreateResidents(context.Background(), []model.Resident{validResident("Ana", "Reyes"), bad})
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrValidation)
		assert.Equal(t, "item 2: sex must be M or F", model.PublicMessage(err))
		assert.Zero(t, store.batches)
		assert.Empty(t, store.residents)
	})

	t.Run("empty batch rejected", func(t *testing.T) {
		svc := application.NewResidentService(newMockResidentStore())
		_, err := svc.CreateResidents(context.Background(), nil)
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}

func TestResidentService_UpdateResidents(t *testing.T) {
	existing := validResident("Ana", "Reyes")
	existing.ID = 1
	store := newMockResidentStore(existing)
	svc := application.NewResidentService(store)

	noID := validResident("Ben", "Santos")
	err := svc.UpdateResidents(context.Background(), []model.Resident{existing, noID})
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, "item 2: resident id is required", model.PublicMessage(err))
	assert.Zero(t, store.batches)

	missing := validResident("Ben", "Santos")
	missing.ID = 99
	updated := existing
	updated.Address = "Purok 7"
	err = svc.UpdateResidents(context.Background(), []model.Resident{updated, missing})
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, "Purok 3, Poblacion", store.residents[1].Address)

	require.NoError(t, svc.UpdateResidents(context.Background(), []model.Resident{updated}))
	assert.Equal(t, "Purok 7", store.residents[1].Address)
}

func TestResidentService_GetAndDelete(t *testing.T) {
	r := validResident("Ana", "Reyes")
	r.ID = 4
	svc := application.NewResidentService(newMockResidentStore(r))
	ctx := context.Background()

	got, err := svc.GetResident(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.FirstName)

	_, err = svc.GetResident(ctx, 5)
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, svc.DeleteResident(ctx, 4))
	assert.ErrorIs(t, svc.DeleteResident(ctx, 4), model.ErrNotFound)

	err = svc.UpdateResident(ctx, validResident("No", "Id"))
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestRotateFieldKeys(t *testing.T) {
	residents := newMockResidentStore()
	residents.rotated = 3
	transactions := newMockTransactionStore()
	transactions.rotated = 5

	res, err := application.RotateFieldKeys(context.Background(), residents, transactions)
	require.NoError(t, err)
	assert.Equal(t, application.RotationResult{Residents: 3, Transactions: 5}, res)

	residents.rotateErr = errors.New("disk full")
	_, err = application.RotateFieldKeys(context.Background(), residents, transactions)
	assert.ErrorContains(t, err, "rotate residents")
}
