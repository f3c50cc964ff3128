// Package recordmap converts between plaintext domain records and the
// partially encrypted rows the store adapters persist. It owns the field
// classification: which columns go through the field codec and which are
// stored as-is.
package recordmap

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
)

// DateLayout is the storage and display form of calendar dates.
const DateLayout = "2006-01-02"

// Cipher is the field codec the mapper seals protected columns with.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(token string) (string, error)
	Reseal(token string) (string, bool, error)
}

// ResidentRow is the stored form of a resident. Token fields hold codec
// output; the remaining fields are plaintext.
type ResidentRow struct {
	ID            int64
	FirstName     string // token
	MiddleName    string // token
	LastName      string // token
	ExtensionName string
	Age           int
	Sex           string
	CivilStatus   string // token
	Address       string // token
	Birthplace    string // token
	Birthday      string
	DateAdded     time.Time
}

// TransactionRow is the stored form of a certificate transaction, live or
// archived.
type TransactionRow struct {
	ID              int64
	ResidentID      int64
	CertificateType string // token
	Purpose         string // token
	Status          string
	Details         string // token over canonical JSON
	DateRequested   time.Time
	DateIssued      sql.NullTime
	Version         int64
}

// Mapper applies the field classification using a Cipher.
type Mapper struct {
	codec Cipher
}

// New creates a Mapper.
func New(codec Cipher) *Mapper {
	return &Mapper{codec: codec}
}

// ResidentToRow validates r and seals its protected fields. Validation runs
// before any field is encrypted.
func (m *Mapper) ResidentToRow(r model.Resident) (ResidentRow, error) {
	if err := r.Validate(); err != nil {
		return ResidentRow{}, err
	}

	row := ResidentRow{
		ID:            r.ID,
		ExtensionName: strings.TrimSpace(r.ExtensionName),
		Age:           r.Age,
		Sex:           r.Sex,
		Birthday:      r.Birthday.Format(DateLayout),
		DateAdded:     r.DateAdded,
	}

	sealed := []struct {
		dst *string
		val string
	}{
		{&row.FirstName, r.FirstName},
		{&row.MiddleName, r.MiddleName},
		{&row.LastName, r.LastName},
		{&row.CivilStatus, string(r.CivilStatus)},
		{&row.Address, r.Address},
		{&row.Birthplace, r.Birthplace},
	}
	for _, f := range sealed {
		token, err := m.codec.Encrypt(f.val)
		if err != nil {
			return ResidentRow{}, fmt.Errorf("encrypt resident field: %w", err)
		}
		*f.dst = token
	}

	return row, nil
}

// ResidentFromRow decrypts a stored resident.
func (m *Mapper) ResidentFromRow(row ResidentRow) (model.Resident, error) {
	r := model.Resident{
		ID:            row.ID,
		ExtensionName: row.ExtensionName,
		Age:           row.Age,
		Sex:           row.Sex,
		DateAdded:     row.DateAdded,
	}

	var civil string
	opened := []struct {
		name string
		dst  *string
		tok  string
	}{
		{"first_name", &r.FirstName, row.FirstName},
		{"middle_name", &r.MiddleName, row.MiddleName},
		{"last_name", &r.LastName, row.LastName},
		{"status", &civil, row.CivilStatus},
		{"address", &r.Address, row.Address},
		{"birthplace", &r.Birthplace, row.Birthplace},
	}
	for _, f := range opened {
		plain, err := m.codec.Decrypt(f.tok)
		if err != nil {
			return model.Resident{}, fieldErr("decode resident", f.name, err)
		}
		*f.dst = plain
	}
	r.CivilStatus = model.CivilStatus(civil)

	birthday, err := parseStoredDate(row.Birthday)
	if err != nil {
		return model.Resident{}, &model.Error{Kind: model.ErrMalformedPayload, Op: "decode resident", Msg: "birthday is not a date"}
	}
	r.Birthday = birthday

	return r, nil
}

// ResealResident re-encrypts every token of row that is not under the
// primary key. It reports whether anything changed.
func (m *Mapper) ResealResident(row ResidentRow) (ResidentRow, bool, error) {
	changed, err := m.reseal(
		&row.FirstName, &row.MiddleName, &row.LastName,
		&row.CivilStatus, &row.Address, &row.Birthplace,
	)
	return row, changed, err
}

// TransactionToRow seals a new or updated transaction. Details must be valid
// JSON; they are compacted to their canonical text before encryption. Empty
// details are stored as an empty object.
func (m *Mapper) TransactionToRow(t model.CertificateTransaction) (TransactionRow, error) {
	const op = "encode transaction"

	if t.ResidentID <= 0 {
		return TransactionRow{}, model.Invalid(op, "resident_id must be positive")
	}
	if strings.TrimSpace(t.CertificateType) == "" {
		return TransactionRow{}, model.Invalid(op, "certificate_type is required")
	}
	if !t.Status.Valid() {
		return TransactionRow{}, model.Invalid(op, "status %q is not a known status", string(t.Status))
	}

	details, err := CanonicalDetails(t.Details)
	if err != nil {
		return TransactionRow{}, err
	}

	row := TransactionRow{
		ID:            t.ID,
		ResidentID:    t.ResidentID,
		Status:        string(t.Status),
		DateRequested: t.DateRequested,
		Version:       t.Version,
	}
	if t.DateIssued != nil {
		row.DateIssued = sql.NullTime{Time: *t.DateIssued, Valid: true}
	}

	for _, f := range []struct {
		dst *string
		val string
	}{
		{&row.CertificateType, t.CertificateType},
		{&row.Purpose, t.Purpose},
		{&row.Details, string(details)},
	} {
		token, err := m.codec.Encrypt(f.val)
		if err != nil {
			return TransactionRow{}, fmt.Errorf("encrypt transaction field: %w", err)
		}
		*f.dst = token
	}

	return row, nil
}

// TransactionFromRow decrypts a stored transaction. A details payload that
// decrypts but does not parse yields nil Details with DetailsMalformed set;
// a token that fails to decrypt fails the whole row.
func (m *Mapper) TransactionFromRow(row TransactionRow, archived bool) (model.CertificateTransaction, error) {
	const op = "decode transaction"

	t := model.CertificateTransaction{
		ID:            row.ID,
		ResidentID:    row.ResidentID,
		Status:        model.TransactionStatus(row.Status),
		DateRequested: row.DateRequested,
		Version:       row.Version,
		Archived:      archived,
	}
	if row.DateIssued.Valid {
		issued := row.DateIssued.Time
		t.DateIssued = &issued
	}

	var details string
	for _, f := range []struct {
		name string
		dst  *string
		tok  string
	}{
		{"certificate_type", &t.CertificateType, row.CertificateType},
		{"purpose", &t.Purpose, row.Purpose},
		{"certificate_details", &details, row.Details},
	} {
		plain, err := m.codec.Decrypt(f.tok)
		if err != nil {
			return model.CertificateTransaction{}, fieldErr(op, f.name, err)
		}
		*f.dst = plain
	}

	if json.Valid([]byte(details)) {
		t.Details = json.RawMessage(details)
	} else {
		t.DetailsMalformed = true
	}

	return t, nil
}

// ResealTransaction re-encrypts every token of row not under the primary key.
func (m *Mapper) ResealTransaction(row TransactionRow) (TransactionRow, bool, error) {
	changed, err := m.reseal(&row.CertificateType, &row.Purpose, &row.Details)
	return row, changed, err
}

func (m *Mapper) reseal(tokens ...*string) (bool, error) {
	changed := false
	for _, tok := range tokens {
		next, ok, err := m.codec.Reseal(*tok)
		if err != nil {
			return false, err
		}
		if ok {
			*tok = next
			changed = true
		}
	}
	return changed, nil
}

// CanonicalDetails returns the compact JSON text of raw, or "{}" when raw is
// empty. Invalid JSON is a validation error.
func CanonicalDetails(raw json.RawMessage) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, model.Invalid("encode transaction", "certificate_details is not valid JSON")
	}
	return buf.Bytes(), nil
}

// ParseDate parses a YYYY-MM-DD calendar date and nothing else.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// parseStoredDate also accepts the time part some drivers append to DATE
// columns, dropping it.
func parseStoredDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) && (s[len(DateLayout)] == 'T' || s[len(DateLayout)] == ' ') {
		s = s[:len(DateLayout)]
	}
	return time.Parse(DateLayout, s)
}

// RowReason is the caller-safe reason recorded for a row that failed to
// decode in a listing.
func RowReason(err error) string {
	return model.PublicMessage(err)
}

func fieldErr(op, field string, err error) error {
	return &model.Error{
		Kind: model.ErrDecrypt,
		Op:   op,
		Msg:  fmt.Sprintf("field %s could not be decrypted", field),
		Err:  err,
	}
}
