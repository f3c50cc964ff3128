package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
	"github.com/ericfisherdev/civicrecords/internal/domain/port/driven"
)

// DefaultDownloadTTL is how long presigned document links stay valid.
const DefaultDownloadTTL = 15 * time.Minute

// Formatter renders dates and timestamps for printed documents.
type Formatter interface {
	Date(t time.Time) string
	Timestamp(t time.Time) string
}

// DocumentService renders printable certificates for transactions.
type DocumentService struct {
	transactions *TransactionService
	residents    driven.ResidentStore
	renderer     driven.TemplateRenderer
	store        driven.DocumentStore
	format       Formatter
	downloadTTL  time.Duration
}

// NewDocumentService creates a DocumentService. store may be nil, in which
// case rendered documents are returned without a download link.
func NewDocumentService(
	transactions *TransactionService,
	residents driven.ResidentStore,
	renderer driven.TemplateRenderer,
	store driven.DocumentStore,
	format Formatter,
) *DocumentService {
	return &DocumentService{
		transactions: transactions,
		residents:    residents,
		renderer:     renderer,
		store:        store,
		format:       format,
		downloadTTL:  DefaultDownloadTTL,
	}
}

// Render fills templateName with the data of a live or archived transaction
// and its resident. Required template fields are checked before the renderer
// runs; a renderer failure is reported as a gateway error.
func (s *DocumentService) Render(ctx context.Context, templateName string, transactionID int64) (*model.Document, error) {
	const op = "render document"

	spec, err := s.renderer.Template(templateName)
	if errors.Is(err, driven.ErrTemplateNotFound) {
		return nil, &model.Error{Kind: model.ErrNotFound, Op: op, Msg: fmt.Sprintf("template %q not found", templateName), Err: err}
	}
	if err != nil {
		return nil, err
	}

	t, err := s.transactions.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	resident, err := s.residents.Get(ctx, t.ResidentID)
	if err != nil {
		return nil, err
	}
	if resident == nil {
		return nil, &model.Error{Kind: model.ErrReferential, Op: op, Msg: fmt.Sprintf("resident %d does not exist", t.ResidentID)}
	}

	fields := s.documentFields(*t, *resident)
	if missing := spec.Missing(fields); len(missing) > 0 {
		return nil, model.Invalid(op, "missing required fields: %s", strings.Join(missing, ", "))
	}

	content, contentType, err := s.renderer.Render(ctx, spec.Name, fields)
	if err != nil {
		return nil, &model.Error{Kind: model.ErrGateway, Op: op, Msg: "document could not be rendered", Err: err}
	}

	doc := &model.Document{Name: spec.Name, ContentType: contentType, Content: content}
	if s.store != nil {
		doc.URL = s.publish(ctx, spec, transactionID, doc)
	}
	return doc, nil
}

// publish stores the document and returns its download link, or "" when
// either step fails.
func (s *DocumentService) publish(ctx context.Context, spec model.TemplateSpec, transactionID int64, doc *model.Document) string {
	ext := path.Ext(spec.File)
	if ext == "" {
		ext = ".xlsx"
	}
	key := fmt.Sprintf("transactions/%d/%s-%s%s", transactionID, spec.Name, uuid.NewString(), ext)

	if err := s.store.Put(ctx, key, doc.Content, doc.ContentType); err != nil {
		slog.Error("store rendered document failed", "transaction_id", transactionID, "error", err)
		return ""
	}

	url, err := s.store.URL(ctx, key, s.downloadTTL)
	if err != nil {
		slog.Error("presign document url failed", "transaction_id", transactionID, "error", err)
		return ""
	}
	return url
}

// documentFields builds the placeholder values for a certificate. Top-level
// scalar keys of the certificate details are included; record fields take
// precedence over detail keys with the same name.
func (s *DocumentService) documentFields(t model.CertificateTransaction, r model.Resident) map[string]string {
	fields := detailFields(t.Details)

	fields["transaction_id"] = strconv.FormatInt(t.ID, 10)
	fields["certificate_type"] = t.CertificateType
	fields["purpose"] = t.Purpose
	fields["status"] = statusLabel(t.Status)
	fields["date_requested"] = s.format.Timestamp(t.DateRequested)
	if t.DateIssued != nil {
		fields["date_issued"] = s.format.Date(*t.DateIssued)
	}

	fields["first_name"] = r.FirstName
	fields["middle_name"] = r.MiddleName
	fields["last_name"] = r.LastName
	fields["extension_name"] = r.ExtensionName
	fields["full_name"] = r.FullName()
	fields["age"] = strconv.Itoa(r.Age)
	fields["sex"] = r.Sex
	fields["civil_status"] = string(r.CivilStatus)
	fields["address"] = r.Address
	fields["birthplace"] = r.Birthplace
	fields["birthday"] = s.format.Date(r.Birthday)

	return fields
}

func detailFields(details json.RawMessage) map[string]string {
	fields := make(map[string]string)
	if len(details) == 0 {
		return fields
	}

	dec := json.NewDecoder(bytes.NewReader(details))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return fields
	}

	for k, v := range obj {
		switch v := v.(type) {
		case string:
			fields[k] = v
		case json.Number:
			fields[k] = v.String()
		case bool:
			fields[k] = strconv.FormatBool(v)
		}
	}
	return fields
}
