package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/recordmap"
	"github.com/ericfisherdev/civicrecords/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps a domain error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrReferential):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError writes err with the status for its kind. Only the public
// message reaches the client; the full chain is logged for server errors.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), msg,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
	}
	writeError(w, status, model.PublicMessage(err))
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status     string `json:"status"`
	Time       string `json:"time"`
	Components any    `json:"components"`
}

// ResidentRequest is the JSON body for resident create and update endpoints.
// Status carries the civil status.
type ResidentRequest struct {
	ID            int64  `json:"id,omitempty"`
	FirstName     string `json:"first_name"`
	MiddleName    string `json:"middle_name"`
	LastName      string `json:"last_name"`
	ExtensionName string `json:"extension_name"`
	Age           int    `json:"age"`
	Sex           string `json:"sex"`
	Status        string `json:"status"`
	Address       string `json:"address"`
	Birthplace    string `json:"birthplace"`
	Birthday      string `json:"birthday"`
}

// toResident converts a request body into a domain resident. An unparseable
// birthday is a validation error.
func (req ResidentRequest) toResident() (model.Resident, error) {
	r := model.Resident{
		ID:            req.ID,
		FirstName:     req.FirstName,
		MiddleName:    req.MiddleName,
		LastName:      req.LastName,
		ExtensionName: req.ExtensionName,
		Age:           req.Age,
		Sex:           req.Sex,
		CivilStatus:   model.CivilStatus(req.Status),
		Address:       req.Address,
		Birthplace:    req.Birthplace,
	}
	if strings.TrimSpace(req.Birthday) != "" {
		b, err := recordmap.ParseDate(req.Birthday)
		if err != nil {
			return r, model.Invalid("decode resident", "birthday must be YYYY-MM-DD")
		}
		r.Birthday = b
	}
	return r, nil
}

// ResidentListResponse is the resident listing. Failed names rows that could
// not be decrypted.
type ResidentListResponse struct {
	Residents []recordmap.ResidentView `json:"residents"`
	Failed    []FailedRowResponse      `json:"failed"`
}

// FailedRowResponse identifies a stored row that could not be read.
type FailedRowResponse struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// TransactionListResponse is a transaction listing. Rows that could not be
// decrypted are listed in Failed instead of Transactions.
type TransactionListResponse struct {
	Transactions []recordmap.TransactionView `json:"transactions"`
	Failed       []FailedRowResponse         `json:"failed"`
}

// CreatedResponse reports the identifier of a created record.
type CreatedResponse struct {
	ID int64 `json:"id"`
}

// BatchCreatedResponse reports the identifiers of a created batch, in input order.
type BatchCreatedResponse struct {
	IDs []int64 `json:"ids"`
}

// CreateCredentialRequest is the JSON body for account registration.
type CreateCredentialRequest struct {
	ResidentID int64  `json:"user_id"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// CodeRequest is the JSON body for the update code endpoint.
type CodeRequest struct {
	Code int `json:"code"`
}

// PasswordRequest is the JSON body for the change password endpoint.
type PasswordRequest struct {
	Password string `json:"password"`
}

// CredentialResponse is the JSON representation of a credential. The
// password hash and verification code are never included.
type CredentialResponse struct {
	ResidentID int64  `json:"user_id"`
	Email      string `json:"email"`
	Verified   bool   `json:"is_verified"`
}

// LookupResponse is a credential with its resident record.
type LookupResponse struct {
	CredentialResponse
	Resident recordmap.ResidentView `json:"resident"`
}

// CreateTransactionRequest is the JSON body for a new certificate request.
type CreateTransactionRequest struct {
	ResidentID         int64           `json:"resident_id"`
	CertificateType    string          `json:"certificate_type"`
	Purpose            string          `json:"purpose"`
	CertificateDetails json.RawMessage `json:"certificate_details"`
}

// StatusRequest is the JSON body for a status transition. DateIssued accepts
// YYYY-MM-DD or RFC 3339.
type StatusRequest struct {
	Status          string `json:"status"`
	DateIssued      string `json:"date_issued"`
	ExpectedVersion int64  `json:"expected_version"`
}

func (req StatusRequest) dateIssued() (*time.Time, error) {
	if req.DateIssued == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, req.DateIssued); err == nil {
		return &t, nil
	}
	t, err := time.Parse(recordmap.DateLayout, req.DateIssued)
	if err != nil {
		return nil, model.Invalid("decode status", "date_issued must be YYYY-MM-DD or RFC 3339")
	}
	return &t, nil
}

// PurgeResponse reports how many history rows were deleted.
type PurgeResponse struct {
	Deleted int64 `json:"deleted"`
}

func toFailedRows(rows []model.RowError) []FailedRowResponse {
	out := make([]FailedRowResponse, 0, len(rows))
	for _, f := range rows {
		out = append(out, FailedRowResponse{ID: f.ID, Reason: f.Reason})
	}
	return out
}

func toCredentialResponse(c model.Credential) CredentialResponse {
	return CredentialResponse{ResidentID: c.ResidentID, Email: c.Email, Verified: c.Verified}
}

// logDecodeError keeps malformed request bodies visible at debug level.
func logDecodeError(logger *slog.Logger, r *http.Request, err error) {
	logger.DebugContext(r.Context(), "invalid request body",
		"request_id", RequestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"error", err,
	)
}
