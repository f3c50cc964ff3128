// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
	"github.com/ericfisherdev/civicrecords/internal/domain/port/driven"
)

// ResidentService manages resident records. Field encryption happens in the
// store adapter; this service only sees plaintext.
type ResidentService struct {
	residents driven.ResidentStore
}

// NewResidentService creates a new ResidentService.
func NewResidentService(residents driven.ResidentStore) *ResidentService {
	return &ResidentService{residents: residents}
}

// CreateResident validates and inserts one resident.
func (s *ResidentService) CreateResident(ctx context.Context, r model.Resident) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	return s.residents.Create(ctx, r)
}

// CreateResidents inserts every resident in one transaction. Validation of all
// items happens before anything is written.
func (s *ResidentService) CreateResidents(ctx context.Context, residents []model.Resident) ([]int64, error) {
	if len(residents) == 0 {
		return nil, model.Invalid("create residents", "at least one resident is required")
	}
	if err := validateAll(residents, false); err != nil {
		return nil, err
	}
	return s.residents.CreateBatch(ctx, residents)
}

// UpdateResident replaces every field of an existing resident.
func (s *ResidentService) UpdateResident(ctx context.Context, r model.Resident) error {
	if r.ID <= 0 {
		return model.Invalid("update resident", "resident id is required")
	}
	if err := r.Validate(); err != nil {
		return err
	}
	return s.residents.Update(ctx, r)
}

// UpdateResidents applies a batch of full-record updates atomically.
func (s *ResidentService) UpdateResidents(ctx context.Context, residents []model.Resident) error {
	if len(residents) == 0 {
		return model.Invalid("update residents", "at least one resident is required")
	}
	if err := validateAll(residents, true); err != nil {
		return err
	}
	return s.residents.UpdateBatch(ctx, residents)
}

// GetResident returns one resident or a not-found error.
func (s *ResidentService) GetResident(ctx context.Context, id int64) (*model.Resident, error) {
	r, err := s.residents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, model.NotFound("get resident", "resident %d not found", id)
	}
	return r, nil
}

// ListResidents returns every readable resident and the rows that could not
// be decrypted.
func (s *ResidentService) ListResidents(ctx context.Context) ([]model.Resident, []model.RowError, error) {
	return s.residents.ListAll(ctx)
}

// DeleteResident removes a resident by identifier.
func (s *ResidentService) DeleteResident(ctx context.Context, id int64) error {
	return s.residents.Delete(ctx, id)
}

func validateAll(residents []model.Resident, needID bool) error {
	for i := range residents {
		if needID && residents[i].ID <= 0 {
			return model.Invalid("validate residents", "item %d: resident id is required", i+1)
		}
		if err := residents[i].Validate(); err != nil {
			return model.Invalid("validate residents", "item %d: %s", i+1, model.PublicMessage(err))
		}
	}
	return nil
}

// RotationResult counts the rows re-encrypted under the primary key.
type RotationResult struct {
	Residents    int
	Transactions int
}

// RotateFieldKeys re-encrypts resident and live transaction rows still sealed
// under a non-primary key. Archived transactions keep their tokens.
func RotateFieldKeys(ctx context.Context, residents driven.ResidentStore, transactions driven.TransactionStore) (RotationResult, error) {
	var res RotationResult

	n, err := residents.Rotate(ctx)
	if err != nil {
		return res, fmt.Errorf("rotate residents: %w", err)
	}
	res.Residents = n

	n, err = transactions.Rotate(ctx)
	if err != nil {
		return res, fmt.Errorf("rotate transactions: %w", err)
	}
	res.Transactions = n

	return res, nil
}
