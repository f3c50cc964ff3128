// Package httphandler is the thin REST driving adapter. Handlers decode
// requests, call the application services and format their results.
package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/recordmap"
	"github.com/ericfisherdev/civicrecords/internal/application"
	"github.com/ericfisherdev/civicrecords/internal/domain/model"
)

// maxBodyBytes bounds JSON request bodies, including batch endpoints.
const maxBodyBytes = 4 << 20

// ResidentService is the resident use-case surface the handlers need.
type ResidentService interface {
	CreateResident(ctx context.Context, r model.Resident) (int64, error)
	CreateResidents(ctx context.Context, rs []model.Resident) ([]int64, error)
	UpdateResident(ctx context.Context, r model.Resident) error
	UpdateResidents(ctx context.Context, rs []model.Resident) error
	GetResident(ctx context.Context, id int64) (*model.Resident, error)
	ListResidents(ctx context.Context) ([]model.Resident, []model.RowError, error)
	DeleteResident(ctx context.Context, id int64) error
}

// CredentialService is the account use-case surface the handlers need.
type CredentialService interface {
	CreateCredential(ctx context.Context, residentID int64, email, password string) (*model.Credential, error)
	UpdateCode(ctx context.Context, email string, code int) error
	MarkVerified(ctx context.Context, email string) error
	ChangePassword(ctx context.Context, email, password string) error
	Lookup(ctx context.Context, email string) (*model.CredentialLookup, error)
	ListCredentials(ctx context.Context) ([]model.Credential, error)
}

// TransactionService is the certificate lifecycle surface the handlers need.
type TransactionService interface {
	Create(ctx context.Context, residentID int64, certificateType, purpose string, details json.RawMessage) (int64, error)
	Get(ctx context.Context, id int64) (*model.CertificateTransaction, error)
	UpdateStatus(ctx context.Context, id int64, status model.TransactionStatus, dateIssued *time.Time, expectedVersion int64) (*model.CertificateTransaction, error)
	Archive(ctx context.Context, id int64) error
	ListByResident(ctx context.Context, residentID int64) (model.TransactionPage, error)
	ListHistoryByResident(ctx context.Context, residentID int64) (model.TransactionPage, error)
	BulkList(ctx context.Context) (model.TransactionPage, error)
	BulkHistory(ctx context.Context) (model.TransactionPage, error)
	PurgeHistory(ctx context.Context) (int64, error)
}

// DocumentService renders certificates.
type DocumentService interface {
	Render(ctx context.Context, templateName string, transactionID int64) (*model.Document, error)
}

// HealthChecker reports dependency health.
type HealthChecker interface {
	Check(ctx context.Context) application.HealthReport
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	residents    ResidentService
	credentials  CredentialService
	transactions TransactionService
	documents    DocumentService
	health       HealthChecker
	present      *recordmap.Presenter
	logger       *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. documents
// may be nil when no templates are configured.
func NewHandler(
	residents ResidentService,
	credentials CredentialService,
	transactions TransactionService,
	documents DocumentService,
	health HealthChecker,
	present *recordmap.Presenter,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		residents:    residents,
		credentials:  credentials,
		transactions: transactions,
		documents:    documents,
		health:       health,
		present:      present,
		logger:       logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request ID, logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)

	mux.HandleFunc("GET /api/v1/residents", h.ListResidents)
	mux.HandleFunc("POST /api/v1/residents", h.CreateResident)
	mux.HandleFunc("POST /api/v1/residents/batch", h.CreateResidents)
	mux.HandleFunc("PUT /api/v1/residents/batch", h.UpdateResidents)
	mux.HandleFunc("GET /api/v1/residents/{id}", h.GetResident)
	mux.HandleFunc("PUT /api/v1/residents/{id}", h.UpdateResident)
	mux.HandleFunc("DELETE /api/v1/residents/{id}", h.DeleteResident)
	mux.HandleFunc("GET /api/v1/residents/{id}/transactions", h.ListResidentTransactions)
	mux.HandleFunc("GET /api/v1/residents/{id}/history", h.ListResidentHistory)

	mux.HandleFunc("GET /api/v1/credentials", h.ListCredentials)
	mux.HandleFunc("POST /api/v1/credentials", h.CreateCredential)
	mux.HandleFunc("GET /api/v1/credentials/{email}", h.LookupCredential)
	mux.HandleFunc("PUT /api/v1/credentials/{email}/code", h.UpdateCode)
	mux.HandleFunc("PUT /api/v1/credentials/{email}/verified", h.MarkVerified)
	mux.HandleFunc("PUT /api/v1/credentials/{email}/password", h.ChangePassword)

	mux.HandleFunc("GET /api/v1/transactions", h.ListTransactions)
	mux.HandleFunc("POST /api/v1/transactions", h.CreateTransaction)
	mux.HandleFunc("GET /api/v1/transactions/{id}", h.GetTransaction)
	mux.HandleFunc("PATCH /api/v1/transactions/{id}/status", h.UpdateStatus)
	mux.HandleFunc("POST /api/v1/transactions/{id}/archive", h.ArchiveTransaction)
	mux.HandleFunc("POST /api/v1/transactions/{id}/documents/{template}", h.RenderDocument)

	mux.HandleFunc("GET /api/v1/history", h.ListHistory)
	mux.HandleFunc("DELETE /api/v1/history", h.PurgeHistory)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// Health reports dependency status. It answers 503 only when a critical
// dependency is down.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == application.HealthDown {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, HealthResponse{
		Status:     report.Status,
		Time:       time.Now().UTC().Format(time.RFC3339),
		Components: report.Components,
	})
}

// decodeJSON reads a bounded JSON body into dst. Unknown fields are rejected
// so that misspelled attributes do not silently blank encrypted columns.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		logDecodeError(h.logger, r, err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if dec.Decode(&struct{}{}) != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// pathID parses a positive integer path value.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *Handler) writePage(w http.ResponseWriter, page model.TransactionPage) {
	writeJSON(w, http.StatusOK, TransactionListResponse{
		Transactions: h.present.Transactions(page.Transactions),
		Failed:       toFailedRows(page.Failed),
	})
}
