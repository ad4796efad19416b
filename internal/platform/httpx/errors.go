// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// ProductScoped is implemented by errors that concern a single product.
type ProductScoped interface {
	OffendingProduct() int64
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Unmapped errors become a 500 without detail; callers log them first.
func RespondError(w http.ResponseWriter, err error) {
	var status int
	var title string
	switch {
	case errors.Is(err, ErrNotFound):
		status, title = http.StatusNotFound, "Not Found"
	case errors.Is(err, ErrConflict):
		status, title = http.StatusConflict, "Conflict"
	case errors.Is(err, ErrValidation):
		status, title = http.StatusBadRequest, "Validation Failed"
	case errors.Is(err, ErrForbidden):
		status, title = http.StatusForbidden, "Forbidden"
	case errors.Is(err, ErrUnauthorized):
		status, title = http.StatusUnauthorized, "Unauthorized"
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "internal server error")
		return
	}

	problem := ProblemDetail{Title: title, Status: status, Detail: err.Error()}
	var scoped ProductScoped
	if errors.As(err, &scoped) {
		id := scoped.OffendingProduct()
		problem.ProductID = &id
	}
	var fields InvalidFields
	if errors.As(err, &fields) {
		problem.Detail = "request has invalid fields"
		problem.Errors = fields
	}
	writeProblem(w, problem)
}

// IsClientError reports whether RespondError would answer err with a 4xx.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrUnauthorized)
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// NewError returns an error that reads as msg and matches kind under errors.Is.
func NewError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}
