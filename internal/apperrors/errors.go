// Package apperrors defines the error kinds surfaced by the swap and payment
// services and their HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindConflict          Kind = "conflict"
	KindInvalidSignature  Kind = "invalid_signature"
	KindMalformedCallback Kind = "malformed_callback"
	KindTransientStore    Kind = "transient_store"
	KindRateLimited       Kind = "rate_limited"
	KindInternal          Kind = "internal"
)

var statusByKind = map[Kind]int{
	KindValidation:        http.StatusBadRequest,
	KindNotFound:          http.StatusNotFound,
	KindForbidden:         http.StatusForbidden,
	KindConflict:          http.StatusConflict,
	KindInvalidSignature:  http.StatusUnauthorized,
	KindMalformedCallback: http.StatusBadRequest,
	KindTransientStore:    http.StatusInternalServerError,
	KindRateLimited:       http.StatusTooManyRequests,
	KindInternal:          http.StatusInternalServerError,
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newf(KindValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newf(KindForbidden, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newf(KindConflict, format, args...)
}

func InvalidSignature(format string, args ...any) *Error {
	return newf(KindInvalidSignature, format, args...)
}

func MalformedCallback(format string, args ...any) *Error {
	return newf(KindMalformedCallback, format, args...)
}

func RateLimited(format string, args ...any) *Error {
	return newf(KindRateLimited, format, args...)
}

// TransientStore wraps a storage failure the caller may retry.
func TransientStore(err error, msg string) *Error {
	return &Error{Kind: KindTransientStore, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return statusByKind[KindOf(err)]
}

// PublicMessage hides wrapped store details from clients.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	switch e.Kind {
	case KindTransientStore, KindInternal:
		return "internal error"
	}
	return e.Message
}
