package httphandler

import (
	"net/http"

	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/recordmap"
	"github.com/ericfisherdev/civicrecords/internal/domain/model"
)

// ListResidents returns every readable resident and the rows that could not
// be decrypted.
func (h *Handler) ListResidents(w http.ResponseWriter, r *http.Request) {
	residents, failed, err := h.residents.ListResidents(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "failed to list residents", err)
		return
	}

	views := make([]recordmap.ResidentView, 0, len(residents))
	for _, res := range residents {
		views = append(views, h.present.Resident(res))
	}

	writeJSON(w, http.StatusOK, ResidentListResponse{Residents: views, Failed: toFailedRows(failed)})
}

// GetResident returns one resident.
func (h *Handler) GetResident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	res, err := h.residents.GetResident(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "failed to get resident", err)
		return
	}

	writeJSON(w, http.StatusOK, h.present.Resident(*res))
}

// CreateResident inserts one resident.
func (h *Handler) CreateResident(w http.ResponseWriter, r *http.Request) {
	var req ResidentRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	res, err := req.toResident()
	if err != nil {
		h.writeDomainError(w, r, "failed to decode resident", err)
		return
	}
	res.ID = 0

	id, err := h.residents.CreateResident(r.Context(), res)
	if err != nil {
		h.writeDomainError(w, r, "failed to create resident", err)
		return
	}

	writeJSON(w, http.StatusCreated, CreatedResponse{ID: id})
}

// CreateResidents inserts a batch of residents atomically.
func (h *Handler) CreateResidents(w http.ResponseWriter, r *http.Request) {
	residents, ok := h.decodeResidents(w, r)
	if !ok {
		return
	}
	for i := range residents {
		residents[i].ID = 0
	}

	ids, err := h.residents.CreateResidents(r.Context(), residents)
	if err != nil {
		h.writeDomainError(w, r, "failed to create residents", err)
		return
	}

	writeJSON(w, http.StatusCreated, BatchCreatedResponse{IDs: ids})
}

// UpdateResident replaces every field of the resident in the path.
func (h *Handler) UpdateResident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req ResidentRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	res, err := req.toResident()
	if err != nil {
		h.writeDomainError(w, r, "failed to decode resident", err)
		return
	}
	res.ID = id

	if err := h.residents.UpdateResident(r.Context(), res); err != nil {
		h.writeDomainError(w, r, "failed to update resident", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateResidents applies a batch of updates atomically. Every item must
// carry its id.
func (h *Handler) UpdateResidents(w http.ResponseWriter, r *http.Request) {
	residents, ok := h.decodeResidents(w, r)
	if !ok {
		return
	}

	if err := h.residents.UpdateResidents(r.Context(), residents); err != nil {
		h.writeDomainError(w, r, "failed to update residents", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteResident removes a resident.
func (h *Handler) DeleteResident(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.residents.DeleteResident(r.Context(), id); err != nil {
		h.writeDomainError(w, r, "failed to delete resident", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeResidents(w http.ResponseWriter, r *http.Request) ([]model.Resident, bool) {
	var reqs []ResidentRequest
	if !h.decodeJSON(w, r, &reqs) {
		return nil, false
	}

	residents := make([]model.Resident, 0, len(reqs))
	for i, req := range reqs {
		res, err := req.toResident()
		if err != nil {
			h.writeDomainError(w, r, "failed to decode residents",
				model.Invalid("decode residents", "item %d: %s", i+1, model.PublicMessage(err)))
			return nil, false
		}
		residents = append(residents, res)
	}
	return residents, true
}
