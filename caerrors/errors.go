// Package caerrors defines the typed error taxonomy returned by the CA core.
// Callers outside the core (HTTP layer, CLI) translate these into their own
// presentation; the core itself never knows about status codes.
package caerrors

import (
	"errors"
	"fmt"
)

// Type names one of the error kinds a core operation can fail with.
type Type string

const (
	AddressInvalid    Type = "AddressInvalid"
	NotFound          Type = "NotFound"
	NoKey             Type = "NoKey"
	CsrInvalid        Type = "CsrInvalid"
	CaUnavailable     Type = "CaUnavailable"
	SigningFailed     Type = "SigningFailed"
	ChainBroken       Type = "ChainBroken"
	ConfigMismatch    Type = "ConfigMismatch"
	StorageUnavailable Type = "StorageUnavailable"
	Conflict          Type = "Conflict"
	Unauthorized      Type = "Unauthorized"
	BadRequest        Type = "BadRequest"
)

// Error is the concrete error type returned by every exported core
// operation. It wraps an optional underlying cause without hiding it from
// errors.Is/errors.As/errors.Unwrap.
type Error struct {
	Type   Type
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, caerrors.New(T, "", nil)) match on Type alone, the same
// way boulder code matches on its own berrors sentinel values.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type
	}
	return false
}

// New builds an *Error of the given type wrapping cause (which may be nil).
func New(t Type, detail string, cause error) *Error {
	return &Error{Type: t, Detail: detail, Cause: cause}
}

// Is reports whether err (or something it wraps) is a *Error of type t.
func Is(err error, t Type) bool {
	return errors.Is(err, &Error{Type: t})
}

func Wrap(t Type, detail string, cause error) *Error {
	return New(t, detail, cause)
}

func Errorf(t Type, format string, args ...interface{}) *Error {
	return New(t, fmt.Sprintf(format, args...), nil)
}
