package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to TransactionStatus
		want     bool
	}{
		{StatusRequested, StatusProcessing, true},
		{StatusRequested, StatusApproved, true},
		{StatusRequested, StatusReleased, false},
		{StatusProcessing, StatusRequested, false},
		{StatusApproved, StatusReadyForPickup, true},
		{StatusApproved, StatusReleased, true},
		{StatusReadyForPickup, StatusReleased, true},
		{StatusReadyForPickup, StatusRejected, false},
		{StatusReleased, StatusCancelled, false},
		{StatusRejected, StatusRequested, false},
		{StatusCancelled, StatusProcessing, false},
		{StatusRequested, StatusRequested, false},
		{"Pending", StatusApproved, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTransactionStatus_Terminal(t *testing.T) {
	for s := range transitions {
		assert.False(t, s.Terminal(), "%s has outgoing transitions", s)
		assert.True(t, s.Valid())
	}
	for _, s := range []TransactionStatus{StatusReleased, StatusRejected, StatusCancelled} {
		assert.True(t, s.Terminal())
		assert.Empty(t, transitions[s])
	}
	assert.False(t, TransactionStatus("Archived").Valid())
}

func TestResident_Validate(t *testing.T) {
	r := Resident{
		FirstName:   "Ana",
		LastName:    "Reyes",
		Sex:         " female",
		CivilStatus: CivilStatusSingle,
		Birthday:    time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, r.Validate())
	assert.Equal(t, SexFemale, r.Sex)

	r.Sex = ""
	err := r.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "sex must be M or F", PublicMessage(err))
}

func TestResident_FullName(t *testing.T) {
	r := Resident{FirstName: "Jose", MiddleName: " ", LastName: "Rizal", ExtensionName: "III"}
	assert.Equal(t, "Jose Rizal III", r.FullName())
}

func TestValidCode(t *testing.T) {
	assert.True(t, ValidCode(100000))
	assert.True(t, ValidCode(999999))
	assert.False(t, ValidCode(99999))
	assert.False(t, ValidCode(1000000))
}

func TestNormalizeEmail(t *testing.T) {
	got, err := NormalizeEmail("  Ana@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", got)

	for _, bad := range []string{"", "not-an-email", "Ana <ana@example.com>"} {
		_, err := NormalizeEmail(bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
}

func TestError_KindsAndMessages(t *testing.T) {
	cause := errors.New("pq: duplicate key value violates unique constraint")
	err := fmt.Errorf("create credential: %w", &Error{Kind: ErrConflict, Op: "create credential", Msg: "email already registered", Err: cause})

	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "email already registered", PublicMessage(err))
	assert.Equal(t, "internal server error", PublicMessage(cause))
	assert.Equal(t, "not found", PublicMessage(Wrap(ErrNotFound, "get", cause)))
	assert.Nil(t, Wrap(ErrGateway, "x", nil))
}

func TestTemplateSpec_Missing(t *testing.T) {
	spec := TemplateSpec{RequiredFields: []string{"full_name", "purpose", "date_issued"}}
	assert.Equal(t, []string{"date_issued"}, spec.Missing(map[string]string{"full_name": "A", "purpose": "B"}))
	assert.Empty(t, spec.Missing(map[string]string{"full_name": "A", "purpose": "B", "date_issued": "C"}))
}
