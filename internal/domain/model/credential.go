package model

import (
	"net/mail"
	"strings"
)

// Verification code bounds: codes are always six decimal digits.
const (
	MinVerificationCode = 100000
	MaxVerificationCode = 999999
)

// Credential links a login email to an existing resident. PasswordHash is a
// one-way bcrypt hash and is never passed through the reversible field codec.
type Credential struct {
	ResidentID   int64
	Email        string
	PasswordHash string
	Code         int
	Verified     bool
}

// CredentialLookup is a credential together with the resident it belongs to.
type CredentialLookup struct {
	Credential Credential
	Resident   Resident
}

// ValidCode reports whether code is a six digit verification code.
func ValidCode(code int) bool {
	return code >= MinVerificationCode && code <= MaxVerificationCode
}

// NormalizeEmail trims and lower-cases an address and checks its syntax.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", Invalid("normalize email", "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", Invalid("normalize email", "email %q is not a valid address", email)
	}
	return email, nil
}
