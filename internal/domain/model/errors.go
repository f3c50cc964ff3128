package model

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced by the domain, the application services and
// the driven adapters wraps exactly one of these so callers can branch with
// errors.Is without inspecting messages.
var (
	ErrValidation       = errors.New("validation failed")
	ErrDecrypt          = errors.New("decrypt failed")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrNotFound         = errors.New("not found")
	ErrReferential      = errors.New("referenced record does not exist")
	ErrTransaction      = errors.New("transaction failed")
	ErrGateway          = errors.New("collaborator failed")
	ErrConflict         = errors.New("conflict")
)

// Error carries an error kind, the operation that failed and a message that is
// safe to show to the caller. Err holds the underlying cause, if any, and is
// never rendered to end users by the HTTP adapter.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Invalid returns a validation error for op.
func Invalid(op, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NotFound returns a not-found error for op.
func NotFound(op, format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind and op to err. A nil err yields nil.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// PublicMessage returns the caller-facing part of err: the message of the
// outermost *Error, or the kind text. Causes are dropped so that driver
// messages and ciphertext never leave the process.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Msg != "" {
			return e.Msg
		}
		return e.Kind.Error()
	}
	return "internal server error"
}
