// Package apperror defines the error taxonomy shared by every platform
// component and its mapping onto HTTP status codes.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping and audit.
type Kind string

const (
	KindAuthentication       Kind = "authentication"
	KindAuthorization        Kind = "authorization"
	KindScopeViolation       Kind = "scope_violation"
	KindValidation           Kind = "validation"
	KindQuotaExceeded        Kind = "quota_exceeded"
	KindUpstreamVerification Kind = "upstream_verification"
	KindNotFound             Kind = "not_found"
	KindConflict             Kind = "conflict"
	KindInternal             Kind = "internal"
)

const internalMessage = "Internal server error"

// Error is a classified error. Err, when set, is kept for logs and errors.Is
// but never shown to callers.
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

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func Authentication(msg string) *Error { return newError(KindAuthentication, msg, nil) }
func Authorization(msg string) *Error  { return newError(KindAuthorization, msg, nil) }
func ScopeViolation(msg string) *Error { return newError(KindScopeViolation, msg, nil) }
func Validation(msg string) *Error     { return newError(KindValidation, msg, nil) }
func QuotaExceeded(msg string) *Error  { return newError(KindQuotaExceeded, msg, nil) }
func NotFound(msg string) *Error       { return newError(KindNotFound, msg, nil) }
func Conflict(msg string) *Error       { return newError(KindConflict, msg, nil) }

// UpstreamVerification reports that the payment gateway refused a credential pair.
func UpstreamVerification(msg string, cause error) *Error {
	return newError(KindUpstreamVerification, msg, cause)
}

// Internal wraps an unexpected failure.
func Internal(cause error) *Error {
	return newError(KindInternal, internalMessage, cause)
}

// Wrap attaches a cause to a classified error, keeping its kind and message.
func Wrap(kind Kind, msg string, cause error) *Error {
	return newError(kind, msg, cause)
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to the status code of its kind.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization, KindScopeViolation:
		return http.StatusForbidden
	case KindValidation, KindQuotaExceeded, KindUpstreamVerification:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message safe to return to callers.
func PublicMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != KindInternal {
		return ae.Message
	}
	return internalMessage
}
