package httphandler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
)

// DocumentURLHeader carries the download link of a stored document.
const DocumentURLHeader = "X-Document-URL"

// ListTransactions returns every live transaction with the owner's email.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	page, err := h.transactions.BulkList(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "failed to list transactions", err)
		return
	}
	h.writePage(w, page)
}

// ListHistory returns every archived transaction with the owner's email.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	page, err := h.transactions.BulkHistory(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "failed to list history", err)
		return
	}
	h.writePage(w, page)
}

// ListResidentTransactions returns a resident's live and archived requests.
func (h *Handler) ListResidentTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	page, err := h.transactions.ListByResident(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "failed to list resident transactions", err)
		return
	}
	h.writePage(w, page)
}

// ListResidentHistory returns a resident's archived requests.
func (h *Handler) ListResidentHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	page, err := h.transactions.ListHistoryByResident(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "failed to list resident history", err)
		return
	}
	h.writePage(w, page)
}

// GetTransaction returns one live or archived transaction.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	t, err := h.transactions.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "failed to get transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, h.present.Transaction(*t))
}

// CreateTransaction records a new certificate request.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	id, err := h.transactions.Create(r.Context(), req.ResidentID, req.CertificateType, req.Purpose, req.CertificateDetails)
	if err != nil {
		h.writeDomainError(w, r, "failed to create transaction", err)
		return
	}

	writeJSON(w, http.StatusCreated, CreatedResponse{ID: id})
}

// UpdateStatus moves a transaction to a new status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req StatusRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	issued, err := req.dateIssued()
	if err != nil {
		h.writeDomainError(w, r, "failed to decode status", err)
		return
	}

	t, err := h.transactions.UpdateStatus(r.Context(), id, model.TransactionStatus(req.Status), issued, req.ExpectedVersion)
	if err != nil {
		h.writeDomainError(w, r, "failed to update status", err)
		return
	}

	writeJSON(w, http.StatusOK, h.present.Transaction(*t))
}

// ArchiveTransaction moves a finished transaction into history.
func (h *Handler) ArchiveTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.transactions.Archive(r.Context(), id); err != nil {
		h.writeDomainError(w, r, "failed to archive transaction", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PurgeHistory irreversibly clears the history table.
func (h *Handler) PurgeHistory(w http.ResponseWriter, r *http.Request) {
	n, err := h.transactions.PurgeHistory(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "failed to purge history", err)
		return
	}

	writeJSON(w, http.StatusOK, PurgeResponse{Deleted: n})
}

// RenderDocument renders a certificate template for a transaction and
// returns the document bytes.
func (h *Handler) RenderDocument(w http.ResponseWriter, r *http.Request) {
	if h.documents == nil {
		writeError(w, http.StatusNotImplemented, "document rendering is not configured")
		return
	}

	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	doc, err := h.documents.Render(r.Context(), r.PathValue("template"), id)
	if err != nil {
		h.writeDomainError(w, r, "failed to render document", err)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Content)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s-%d.xlsx", doc.Name, id)))
	if doc.URL != "" {
		w.Header().Set(DocumentURLHeader, doc.URL)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Content)
}
