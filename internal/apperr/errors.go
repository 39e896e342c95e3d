// Package apperr defines the error kinds surfaced by the registry.
//
// Every guard failure is an *Error carrying a Kind. Callers match kinds with
// errors.Is against the sentinel values below; infrastructure failures that
// are not *Error values are reported as KindInternal.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a machine-readable error code.
type Kind string

const (
	KindInternal          Kind = "INTERNAL"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindAlreadyExists     Kind = "ALREADY_EXISTS"
	KindAlreadyRegistered Kind = "ALREADY_REGISTERED"
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidState      Kind = "INVALID_STATE"
	KindAlreadyInactive   Kind = "ALREADY_INACTIVE"
	KindInvalidTier       Kind = "INVALID_TIER"
	KindInvalidQuota      Kind = "INVALID_QUOTA"
	KindInvalidWindow     Kind = "INVALID_WINDOW"
	KindInvalidRole       Kind = "INVALID_ROLE"
	KindInvalidAmount     Kind = "INVALID_AMOUNT"
	KindInvalidName       Kind = "INVALID_NAME"
	KindInvalidIdentity   Kind = "INVALID_IDENTITY"
	KindInvalidRequest    Kind = "INVALID_REQUEST"
	KindIncorrectPayment  Kind = "INCORRECT_PAYMENT"
	KindEventFull         Kind = "EVENT_FULL"
	KindEventNotActive    Kind = "EVENT_NOT_ACTIVE"
	KindTransferFailed    Kind = "TRANSFER_FAILED"
)

// Sentinels for errors.Is matching. Only the Kind is compared.
var (
	ErrInternal          = New(KindInternal, "internal error")
	ErrUnauthorized      = New(KindUnauthorized, "caller is not authorized")
	ErrAlreadyExists     = New(KindAlreadyExists, "already exists")
	ErrAlreadyRegistered = New(KindAlreadyRegistered, "already registered")
	ErrNotFound          = New(KindNotFound, "not found")
	ErrInvalidState      = New(KindInvalidState, "invalid state")
	ErrAlreadyInactive   = New(KindAlreadyInactive, "already inactive")
	ErrInvalidTier       = New(KindInvalidTier, "invalid tier")
	ErrInvalidQuota      = New(KindInvalidQuota, "invalid quota")
	ErrInvalidWindow     = New(KindInvalidWindow, "invalid early access window")
	ErrInvalidRole       = New(KindInvalidRole, "invalid role")
	ErrInvalidAmount     = New(KindInvalidAmount, "invalid amount")
	ErrInvalidName       = New(KindInvalidName, "invalid name")
	ErrInvalidIdentity   = New(KindInvalidIdentity, "invalid identity")
	ErrInvalidRequest    = New(KindInvalidRequest, "invalid request")
	ErrIncorrectPayment  = New(KindIncorrectPayment, "incorrect payment")
	ErrEventFull         = New(KindEventFull, "event is full")
	ErrEventNotActive    = New(KindEventNotActive, "event is not active")
	ErrTransferFailed    = New(KindTransferFailed, "transfer failed")
)

// Error is the domain error type with structured metadata.
type Error struct {
	Kind     Kind
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind. An
// ALREADY_REGISTERED error also matches ALREADY_EXISTS.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind == t.Kind {
		return true
	}
	return e.Kind == KindAlreadyRegistered && t.Kind == KindAlreadyExists
}

// New creates a domain error with a kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithMetadata creates a domain error carrying metadata for clients.
func WithMetadata(kind Kind, message string, metadata map[string]string) *Error {
	return &Error{Kind: kind, Message: message, Metadata: metadata}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
