// Package errs defines the failure taxonomy shared by the session manager,
// the action gateway and the transports. Every failure that reaches a caller
// carries a Kind that can be checked without parsing text.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure.
type Kind string

const (
	KindValidation            Kind = "validation_error"
	KindNotLoggedIn           Kind = "not_logged_in"
	KindInitialization        Kind = "initialization_error"
	KindUnregisteredRecipient Kind = "unregistered_recipient"
	KindInvalidAttachment     Kind = "invalid_attachment"
	KindAttachmentNotFound    Kind = "attachment_not_found"
	KindInvalidPhoneNumber    Kind = "invalid_phone_number"
	KindNotConnected          Kind = "not_connected"
	KindInfoUnavailable       Kind = "info_unavailable"
	KindCleanup               Kind = "cleanup_error"
	KindInternal              Kind = "internal"
)

// Error is a classified failure. Detail is safe to show to callers; Err is
// the underlying cause and is only meant for logs.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error of the given kind without a cause.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Newf is New with fmt formatting of the detail.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap returns an Error of the given kind caused by err.
func Wrap(kind Kind, err error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf reports the kind of the first *Error in err's chain, or KindInternal
// when err is unclassified. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// DetailOf returns the caller-facing detail of err. Unclassified errors get a
// generic message so raw diagnostics never leak.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return "internal error"
}
