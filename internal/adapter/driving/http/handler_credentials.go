package httphandler

import (
	"net/http"
)

// ListCredentials returns every account without secrets.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.credentials.ListCredentials(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "failed to list credentials", err)
		return
	}

	resp := make([]CredentialResponse, 0, len(creds))
	for _, c := range creds {
		resp = append(resp, toCredentialResponse(c))
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateCredential registers an account for an existing resident.
func (h *Handler) CreateCredential(w http.ResponseWriter, r *http.Request) {
	var req CreateCredentialRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	cred, err := h.credentials.CreateCredential(r.Context(), req.ResidentID, req.Email, req.Password)
	if err != nil {
		h.writeDomainError(w, r, "failed to create credential", err)
		return
	}

	writeJSON(w, http.StatusCreated, toCredentialResponse(*cred))
}

// LookupCredential returns an account with its resident record.
func (h *Handler) LookupCredential(w http.ResponseWriter, r *http.Request) {
	found, err := h.credentials.Lookup(r.Context(), r.PathValue("email"))
	if err != nil {
		h.writeDomainError(w, r, "failed to look up credential", err)
		return
	}

	writeJSON(w, http.StatusOK, LookupResponse{
		CredentialResponse: toCredentialResponse(found.Credential),
		Resident:           h.present.Resident(found.Resident),
	})
}

// UpdateCode stores and mails a new verification code.
func (h *Handler) UpdateCode(w http.ResponseWriter, r *http.Request) {
	var req CodeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if err := h.credentials.UpdateCode(r.Context(), r.PathValue("email"), req.Code); err != nil {
		h.writeDomainError(w, r, "failed to update code", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkVerified flags an account as verified.
func (h *Handler) MarkVerified(w http.ResponseWriter, r *http.Request) {
	if err := h.credentials.MarkVerified(r.Context(), r.PathValue("email")); err != nil {
		h.writeDomainError(w, r, "failed to mark verified", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword replaces an account password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req PasswordRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	if err := h.credentials.ChangePassword(r.Context(), r.PathValue("email"), req.Password); err != nil {
		h.writeDomainError(w, r, "failed to change password", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
