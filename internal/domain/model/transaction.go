package model

import (
	"encoding/json"
	"time"
)

// TransactionStatus is the processing state of a certificate request.
type TransactionStatus string

const (
	StatusRequested      TransactionStatus = "Requested"
	StatusProcessing     TransactionStatus = "Processing"
	StatusApproved       TransactionStatus = "Approved"
	StatusReadyForPickup TransactionStatus = "ReadyForPickup"
	StatusReleased       TransactionStatus = "Released"
	StatusRejected       TransactionStatus = "Rejected"
	StatusCancelled      TransactionStatus = "Cancelled"
)

// transitions lists, for every non-terminal status, the statuses an
// administrator may move a request to. Terminal statuses have no entry.
var transitions = map[TransactionStatus][]TransactionStatus{
	StatusRequested:      {StatusProcessing, StatusApproved, StatusRejected, StatusCancelled},
	StatusProcessing:     {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:       {StatusReadyForPickup, StatusReleased, StatusCancelled},
	StatusReadyForPickup: {StatusReleased, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusRequested, StatusProcessing, StatusApproved, StatusReadyForPickup,
		StatusReleased, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further processing is expected after s.
func (s TransactionStatus) Terminal() bool {
	return s == StatusReleased || s == StatusRejected || s == StatusCancelled
}

// CanTransition reports whether the transition table allows from -> to.
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CertificateTransaction is a request for a certificate, either live or
// archived. Details holds the canonical JSON text that was encrypted on
// creation; it is nil when the stored payload could not be parsed, in which
// case DetailsMalformed is set.
type CertificateTransaction struct {
	ID               int64
	ResidentID       int64
	CertificateType  string
	Purpose          string
	Status           TransactionStatus
	Details          json.RawMessage
	DetailsMalformed bool
	DateRequested    time.Time
	DateIssued       *time.Time
	Version          int64 // Bumped on every status write; kept as-is on archive.
	Archived         bool

	// Populated only by bulk listings; nil when the resident has no credential.
	ResidentEmail *string
}

// RowError reports a stored row that could not be decoded. Reason is safe to
// show to callers; it never contains ciphertext.
type RowError struct {
	ID     int64
	Reason string
}

// TransactionPage is the result of a listing. Rows that failed to decrypt
// are left out of Transactions and reported in Failed instead.
type TransactionPage struct {
	Transactions []CertificateTransaction
	Failed       []RowError
}
