package recordmap

import (
	"encoding/json"
	"fmt"
	"time"
	_ "time/tzdata" // display zone must resolve on hosts without zoneinfo

	"github.com/ericfisherdev/civicrecords/internal/domain/model"
)

// TimestampLayout renders timestamps as 12-hour local time with no comma
// between the date and the time.
const TimestampLayout = "01/02/2006 03:04:05 PM"

// DefaultZone is the display time zone used when none is configured.
const DefaultZone = "Asia/Manila"

// Presenter formats plaintext records for callers. It never changes what is
// persisted.
type Presenter struct {
	zone *time.Location
}

// NewPresenter loads the named display zone.
func NewPresenter(zone string) (*Presenter, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load display zone %q: %w", zone, err)
	}
	return &Presenter{zone: loc}, nil
}

// Date renders a calendar date as YYYY-MM-DD.
func (p *Presenter) Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// Timestamp renders t in the display zone.
func (p *Presenter) Timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(p.zone).Format(TimestampLayout)
}

// ResidentView is the outbound form of a resident.
type ResidentView struct {
	ID            int64  `json:"id"`
	FirstName     string `json:"first_name"`
	MiddleName    string `json:"middle_name"`
	LastName      string `json:"last_name"`
	ExtensionName string `json:"extension_name,omitempty"`
	Age           int    `json:"age"`
	Sex           string `json:"sex"`
	Status        string `json:"status"`
	Address       string `json:"address"`
	Birthplace    string `json:"birthplace"`
	Birthday      string `json:"birthday"`
	DateAdded     string `json:"date_added"`
}

// Resident formats r.
func (p *Presenter) Resident(r model.Resident) ResidentView {
	return ResidentView{
		ID:            r.ID,
		FirstName:     r.FirstName,
		MiddleName:    r.MiddleName,
		LastName:      r.LastName,
		ExtensionName: r.ExtensionName,
		Age:           r.Age,
		Sex:           r.Sex,
		Status:        string(r.CivilStatus),
		Address:       r.Address,
		Birthplace:    r.Birthplace,
		Birthday:      p.Date(r.Birthday),
		DateAdded:     p.Timestamp(r.DateAdded),
	}
}

// TransactionView is the outbound form of a certificate transaction.
// CertificateDetails is null when the stored payload was malformed.
type TransactionView struct {
	TransactionID      int64           `json:"transaction_id"`
	ResidentID         int64           `json:"resident_id"`
	CertificateType    string          `json:"certificate_type"`
	Purpose            string          `json:"purpose"`
	Status             string          `json:"status"`
	CertificateDetails json.RawMessage `json:"certificate_details"`
	DetailsMalformed   bool            `json:"details_malformed,omitempty"`
	DateRequested      string          `json:"date_requested"`
	DateIssued         *string         `json:"date_issued"`
	Version            int64           `json:"version,omitempty"`
	Archived           bool            `json:"archived"`
	ResidentEmail      *string         `json:"resident_email"`
}

// Transaction formats t.
func (p *Presenter) Transaction(t model.CertificateTransaction) TransactionView {
	v := TransactionView{
		TransactionID:      t.ID,
		ResidentID:         t.ResidentID,
		CertificateType:    t.CertificateType,
		Purpose:            t.Purpose,
		Status:             string(t.Status),
		CertificateDetails: t.Details,
		DetailsMalformed:   t.DetailsMalformed,
		DateRequested:      p.Timestamp(t.DateRequested),
		Version:            t.Version,
		Archived:           t.Archived,
		ResidentEmail:      t.ResidentEmail,
	}
	if v.CertificateDetails == nil {
		v.CertificateDetails = json.RawMessage("null")
	}
	if t.DateIssued != nil {
		issued := p.Timestamp(*t.DateIssued)
		v.DateIssued = &issued
	}
	return v
}

// Transactions formats a slice of transactions, never returning nil.
func (p *Presenter) Transactions(ts []model.CertificateTransaction) []TransactionView {
	out := make([]TransactionView, 0, len(ts))
	for _, t := range ts {
		out = append(out, p.Transaction(t))
	}
	return out
}
