package model

import (
	"strings"
	"time"
)

// Sex codes stored in plaintext on the resident row.
const (
	SexMale   = "M"
	SexFemale = "F"
)

// CivilStatus is the marital/residency status of a resident. It is stored
// encrypted, so the closed set is enforced here rather than by the database.
type CivilStatus string

const (
	CivilStatusSingle    CivilStatus = "Single"
	CivilStatusMarried   CivilStatus = "Married"
	CivilStatusWidowed   CivilStatus = "Widowed"
	CivilStatusSeparated CivilStatus = "Separated"
	CivilStatusDivorced  CivilStatus = "Divorced"
	CivilStatusAnnulled  CivilStatus = "Annulled"
)

// Valid reports whether s is one of the known civil statuses.
func (s CivilStatus) Valid() bool {
	switch s {
	case CivilStatusSingle, CivilStatusMarried, CivilStatusWidowed,
		CivilStatusSeparated, CivilStatusDivorced, CivilStatusAnnulled:
		return true
	}
	return false
}

// Resident is the plaintext identity record of a person living in the
// municipality. Name parts, civil status, address and birthplace are encrypted
// at rest; the other attributes are stored as-is.
type Resident struct {
	ID            int64
	FirstName     string
	MiddleName    string
	LastName      string
	ExtensionName string // Suffix such as "Jr."; empty when absent.
	Age           int
	Sex           string
	CivilStatus   CivilStatus
	Address       string
	Birthplace    string
	Birthday      time.Time // Calendar date; the time part is ignored.
	DateAdded     time.Time // Assigned by the store on insert.
}

// FullName joins the name parts the way printed certificates show them.
func (r Resident) FullName() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{r.FirstName, r.MiddleName, r.LastName, r.ExtensionName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// NormalizeSex upper-cases the first letter of the supplied sex value.
func NormalizeSex(sex string) string {
	sex = strings.TrimSpace(sex)
	if sex == "" {
		return ""
	}
	return strings.ToUpper(sex[:1])
}

// Validate checks the fields required before a resident may be written.
// It normalizes Sex in place.
func (r *Resident) Validate() error {
	const op = "validate resident"

	if strings.TrimSpace(r.FirstName) == "" {
		return Invalid(op, "first_name is required")
	}
	if strings.TrimSpace(r.LastName) == "" {
		return Invalid(op, "last_name is required")
	}
	if r.Age < 0 {
		return Invalid(op, "age must not be negative")
	}

	r.Sex = NormalizeSex(r.Sex)
	if r.Sex != SexMale && r.Sex != SexFemale {
		return Invalid(op, "sex must be M or F")
	}

	if !r.CivilStatus.Valid() {
		return Invalid(op, "status %q is not a known civil status", string(r.CivilStatus))
	}
	if r.Birthday.IsZero() {
		return Invalid(op, "birthday is required")
	}

	return nil
}
