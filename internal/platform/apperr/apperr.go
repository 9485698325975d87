// Package apperr defines the closed failure taxonomy of the API. Every
// expected failure is an *Error whose code and HTTP status are fixed by its
// Kind, so clients can branch on the code alone.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a failure category.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindAuthorization
	KindValidation
	KindBadRequest
	KindNotFound
	KindConflict
	KindBusiness
	KindRateLimited
	KindUnavailable

	// Storage kinds, produced only by the data-layer adapter.
	KindDuplicate
	KindForeignKey
	KindRelation
	KindDatabase
)

type kindSpec struct {
	name   string
	status int
	code   string
}

var kinds = map[Kind]kindSpec{
	KindInternal:       {"internal", http.StatusInternalServerError, CodeInternal},
	KindAuthentication: {"authentication", http.StatusUnauthorized, CodeUnauthorized},
	KindAuthorization:  {"authorization", http.StatusForbidden, CodeForbidden},
	KindValidation:     {"validation", http.StatusBadRequest, CodeValidation},
	KindBadRequest:     {"bad_request", http.StatusBadRequest, CodeBadRequest},
	KindNotFound:       {"not_found", http.StatusNotFound, CodeNotFound},
	KindConflict:       {"conflict", http.StatusConflict, CodeConflict},
	KindBusiness:       {"business", http.StatusUnprocessableEntity, CodeUnprocessable},
	KindRateLimited:    {"rate_limited", http.StatusTooManyRequests, CodeRateLimited},
	KindUnavailable:    {"unavailable", http.StatusServiceUnavailable, CodeServiceUnavailable},
	KindDuplicate:      {"duplicate", http.StatusConflict, CodeDuplicateEntry},
	KindForeignKey:     {"foreign_key", http.StatusBadRequest, CodeForeignKeyViolation},
	KindRelation:       {"relation", http.StatusBadRequest, CodeRelationViolation},
	KindDatabase:       {"database", http.StatusInternalServerError, CodeDatabase},
}

func (k Kind) String() string {
	if s, ok := kinds[k]; ok {
		return s.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Status returns the default HTTP status of the kind.
func (k Kind) Status() int {
	if s, ok := kinds[k]; ok {
		return s.status
	}
	return http.StatusInternalServerError
}

// Code returns the stable code of the kind.
func (k Kind) Code() string {
	if s, ok := kinds[k]; ok {
		return s.code
	}
	return CodeInternal
}

// Detail is one entry of an error's detail list.
type Detail struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Code    string
	Status  int
	Message string
	Details []Detail
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the response status of the failure.
func (e *Error) HTTPStatus() int { return e.Status }

// Is matches another *Error of the same kind, so sentinel values work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// New builds an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Code: kind.Code(), Status: kind.Status(), Message: msg}
}

// Wrap builds an error of the given kind that keeps cause for logging.
func Wrap(kind Kind, msg string, cause error) *Error {
	e := New(kind, msg)
	e.Cause = cause
	return e
}

// WithDetails returns a copy of e with extra detail entries.
func (e *Error) WithDetails(details ...Detail) *Error {
	cp := *e
	cp.Details = append(append([]Detail(nil), e.Details...), details...)
	return &cp
}

func Unauthenticated(msg string) *Error { return New(KindAuthentication, msg) }

func Forbidden(msg string) *Error { return New(KindAuthorization, msg) }

func NotFound(msg string) *Error { return New(KindNotFound, msg) }

func Conflict(msg string) *Error { return New(KindConflict, msg) }

func BadRequest(msg string) *Error { return New(KindBadRequest, msg) }

func Unavailable(msg string) *Error { return New(KindUnavailable, msg) }

func RateLimited(msg string) *Error { return New(KindRateLimited, msg) }

// Invalid is a field-validation failure with one detail per violation.
func Invalid(details ...Detail) *Error {
	return New(KindValidation, MessageValidation).WithDetails(details...)
}

// Business is a rule violation in the domain (422).
func Business(msg string) *Error { return New(KindBusiness, msg) }

// BusinessStatus is a business failure with a caller-chosen status. Its code
// comes from the status fallback table.
func BusinessStatus(status int, msg string) *Error {
	return &Error{Kind: KindBusiness, Code: CodeForStatus(status), Status: status, Message: msg}
}

// Internal hides cause behind the generic internal message.
func Internal(cause error) *Error { return Wrap(KindInternal, MessageInternal, cause) }

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
