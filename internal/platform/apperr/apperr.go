// Package apperr defines the error kinds surfaced by the record service and
// the echo error handler that turns them into HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Error kinds. Test with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrStore        = errors.New("store error")
)

// Error is an application error with a stable code and an HTTP status.
type Error struct {
	Kind       error             `json:"-"`
	Err        error             `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"detail"`
	HTTPStatus int               `json:"-"`
	Fields     map[string]string `json:"fields,omitempty"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Is reports kind membership so errors.Is(err, ErrNotFound) works on *Error.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode is the HTTP status the error maps to.
func (e *Error) StatusCode() int {
	return e.HTTPStatus
}

// Validation builds a ValidationError from field -> problem pairs.
func Validation(fields map[string]string) *Error {
	return &Error{
		Kind:       ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    validationMessage(fields),
		HTTPStatus: http.StatusUnprocessableEntity,
		Fields:     fields,
	}
}

// Invalid is shorthand for a single-field ValidationError.
func Invalid(field, problem string) *Error {
	return Validation(map[string]string{field: problem})
}

// NotFound reports that the referenced resource does not exist.
func NotFound(resource string, id any) *Error {
	return &Error{
		Kind:       ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s %v not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// DuplicateKey reports a natural-key collision.
func DuplicateKey(field, value string) *Error {
	return &Error{
		Kind:       ErrDuplicateKey,
		Code:       "DUPLICATE_KEY",
		Message:    fmt.Sprintf("a record with %s %q already exists", field, value),
		HTTPStatus: http.StatusBadRequest,
		Fields:     map[string]string{field: "already exists"},
	}
}

// Store wraps a persistence failure. Errors that already carry a kind are
// returned unchanged.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return &Error{
		Kind:       ErrStore,
		Err:        err,
		Code:       "STORE_ERROR",
		Message:    op,
		HTTPStatus: http.StatusInternalServerError,
	}
}

func validationMessage(fields map[string]string) string {
	if len(fields) == 0 {
		return "invalid input"
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}
