// Package apperror defines the error type returned by the service layer.
// Every AppError carries a Kind from the booking error taxonomy and the
// HTTP status handlers should answer with.  The wrapped cause stays
// reachable through errors.Is / errors.As.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for clients and for retry decisions.
type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindConflict     Kind = "CONFLICT"
	KindValidation   Kind = "VALIDATION_ERROR"
	KindInvalidInput Kind = "INVALID_INPUT"
	KindUpstream     Kind = "UPSTREAM_FAILURE"
	KindStorage      Kind = "STORAGE_FAILURE"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindInternal     Kind = "INTERNAL_ERROR"
)

type AppError struct {
	Kind       Kind           `json:"code"`
	Message    string         `json:"error"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Retryable reports whether the same request may succeed if repeated
// later without changes.
func (e *AppError) Retryable() bool {
	return e.Kind == KindUpstream || e.Kind == KindStorage
}

// WithDetails attaches structured details rendered to the client.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithCause records the underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

func newErr(kind Kind, status int, msg string) *AppError {
	return &AppError{Kind: kind, Message: msg, HTTPStatus: status}
}

func NotFound(resource string) *AppError {
	return newErr(KindNotFound, http.StatusNotFound, resource+" not found")
}

func Conflict(msg string) *AppError {
	return newErr(KindConflict, http.StatusConflict, msg)
}

func Validation(msg string, details map[string]any) *AppError {
	return newErr(KindValidation, http.StatusUnprocessableEntity, msg).WithDetails(details)
}

func InvalidInput(msg string) *AppError {
	return newErr(KindInvalidInput, http.StatusBadRequest, msg)
}

// Upstream marks a failed call to an external collaborator such as the
// payment gateway.
func Upstream(msg string, err error) *AppError {
	return newErr(KindUpstream, http.StatusBadGateway, msg).WithCause(err)
}

// Storage marks a failed read or a transaction that could not commit.
func Storage(msg string, err error) *AppError {
	return newErr(KindStorage, http.StatusServiceUnavailable, msg).WithCause(err)
}

func Unauthorized(msg string) *AppError {
	return newErr(KindUnauthorized, http.StatusUnauthorized, msg)
}

func Internal(msg string, err error) *AppError {
	return newErr(KindInternal, http.StatusInternalServerError, msg).WithCause(err)
}

// As extracts the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or KindInternal when err is not an
// AppError.  A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err is an AppError of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
