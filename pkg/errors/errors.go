package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code is the stable, machine-readable error kind sent to API callers.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimited   Code = "RATE_LIMITED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata drives how a code is rendered to API callers. ExposeMessage lets the
// error's own message replace PublicMessage.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	ExposeMessage  bool
	DetailsAllowed bool
}

// ClientFault reports whether the caller can fix the request.
func (m Metadata) ClientFault() bool {
	return m.HTTPStatus < http.StatusInternalServerError
}

type renderOpt func(*Metadata)

var (
	withDetails = func(m *Metadata) { m.DetailsAllowed = true }
	retryable   = func(m *Metadata) { m.Retryable = true }
)

// client codes expose their message; server codes only expose PublicMessage.
func client(status int, public string, opts ...renderOpt) Metadata {
	m := Metadata{HTTPStatus: status, PublicMessage: public, ExposeMessage: true}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func server(status int, public string, opts ...renderOpt) Metadata {
	m := Metadata{HTTPStatus: status, PublicMessage: public, Retryable: true}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Conflicts carry details (available stock, available balance) so callers can adjust.
var metadataByCode = map[Code]Metadata{
	CodeValidation:    client(http.StatusBadRequest, "validation failed", withDetails),
	CodeUnauthorized:  client(http.StatusUnauthorized, "authentication required"),
	CodeForbidden:     client(http.StatusForbidden, "access denied"),
	CodeNotFound:      client(http.StatusNotFound, "resource not found"),
	CodeConflict:      client(http.StatusConflict, "conflict detected", withDetails),
	CodeStateConflict: client(http.StatusUnprocessableEntity, "state transition disallowed", withDetails),
	CodeIdempotency:   client(http.StatusConflict, "idempotency key reused", withDetails),
	CodeRateLimited:   client(http.StatusTooManyRequests, "too many requests", retryable),
	CodeInternal:      server(http.StatusInternalServerError, "internal server error"),
	CodeDependency:    server(http.StatusServiceUnavailable, "dependency unavailable", withDetails),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error. The message is what callers see for client codes;
// the cause only reaches logs.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails attaches caller-visible context. It mutates and returns e.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return string(e.code) + ": " + e.message
	default:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost *Error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// Ensure wraps untyped errors with fallback while passing typed errors through untouched.
func Ensure(err error, fallback Code, message string) error {
	if err == nil || As(err) != nil {
		return err
	}
	return Wrap(fallback, err, message)
}
