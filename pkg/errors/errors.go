// Package errors carries typed error codes from the services to the HTTP
// layer. Each code has a fixed status and public message.
package errors

import (
	stdErrors "errors"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeDiscountInvalid   Code = "DISCOUNT_INVALID"
	CodeAmountMismatch    Code = "AMOUNT_MISMATCH"
)

// Metadata is how a code is presented to API clients.
type Metadata struct {
	HTTPStatus     int
	PublicMessage  string
	Retryable      bool
	DetailsAllowed bool
	// ClientMessage lets the error's own message replace PublicMessage.
	ClientMessage bool
}

type trait uint8

const (
	retryable trait = 1 << iota
	details
	ownMessage
)

func entry(status int, public string, traits trait) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      traits&retryable != 0,
		DetailsAllowed: traits&details != 0,
		ClientMessage:  traits&ownMessage != 0,
	}
}

var catalog = map[Code]Metadata{
	CodeValidation:    entry(http.StatusBadRequest, "validation failed", details|ownMessage),
	CodeUnauthorized:  entry(http.StatusUnauthorized, "authentication required", ownMessage),
	CodeForbidden:     entry(http.StatusForbidden, "access denied", ownMessage),
	CodeNotFound:      entry(http.StatusNotFound, "resource not found", ownMessage),
	CodeConflict:      entry(http.StatusConflict, "conflict detected", ownMessage),
	CodeStateConflict: entry(http.StatusUnprocessableEntity, "state transition disallowed", details|ownMessage),
	CodeIdempotency:   entry(http.StatusConflict, "idempotency key reused", details|ownMessage),
	CodeRateLimit:     entry(http.StatusTooManyRequests, "rate limit exceeded", ownMessage),
	CodeInternal:      entry(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    entry(http.StatusServiceUnavailable, "dependency unavailable", retryable|details),

	CodeInsufficientStock: entry(http.StatusConflict, "insufficient stock", details|ownMessage),
	CodeDiscountInvalid:   entry(http.StatusUnprocessableEntity, "discount cannot be applied", details|ownMessage),
	CodeAmountMismatch:    entry(http.StatusUnprocessableEntity, "payment amount does not match order total", ownMessage),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := catalog[code]; ok {
		return m
	}
	return catalog[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err. A nil err behaves like New.
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

// WithDetails sets the client-visible details and returns e.
func (e *Error) WithDetails(d any) *Error {
	if e != nil {
		e.details = d
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
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
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
