// Package apperr defines the error taxonomy shared by the authorization core
// and the domain services, and maps it onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the caller should react to it.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthenticated
	KindProfileMissing
	KindForbidden
	KindNotFound
	KindValidation
	KindConflict
	KindDoctorNotEligible
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindProfileMissing:
		return "profile_missing"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindDoctorNotEligible:
		return "doctor_not_eligible"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// Retryable reports whether a caller may retry the same request unchanged.
func (k Kind) Retryable() bool {
	return k == KindInfrastructure || k == KindUnknown
}

// UnauthenticatedMessage is the only message ever shown for a failed
// credential, whatever the underlying reason.
const UnauthenticatedMessage = "please sign in again"

// Error is a classified error. Message is safe to show to the requester;
// Err carries the internal cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind with no message, so the
// package-level sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is checks by kind.
var (
	ErrUnauthenticated   = &Error{Kind: KindUnauthenticated}
	ErrProfileMissing    = &Error{Kind: KindProfileMissing}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrDoctorNotEligible = &Error{Kind: KindDoctorNotEligible}
	ErrInfrastructure    = &Error{Kind: KindInfrastructure}
)

func Unauthenticated(cause error) *Error {
	return &Error{Kind: KindUnauthenticated, Message: UnauthenticatedMessage, Err: cause}
}

func ProfileMissing() *Error {
	return &Error{Kind: KindProfileMissing, Message: "profile not found, finish registration"}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func DoctorNotEligible(msg string) *Error {
	return &Error{Kind: KindDoctorNotEligible, Message: msg}
}

// Infrastructure wraps a storage or provider failure. op names the failed
// step for the server log.
func Infrastructure(op string, cause error) *Error {
	return &Error{Kind: KindInfrastructure, Message: op, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
