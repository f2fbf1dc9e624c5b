// Package apperr defines the error kinds surfaced by the repository layer.
// None of them are transient: they describe caller-side data problems and
// are never retried.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// FieldError describes one failed field rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when input violates a constraint before it
// reaches storage: missing required field, negative amount, bad enum value.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ReferentialIntegrityError is returned when a foreign key target is absent,
// or when a delete would orphan rows that still reference the target.
type ReferentialIntegrityError struct {
	Entity string
	Key    string
	// ReferencedBy is set when the row exists but is still in use.
	ReferencedBy string
}

func (e *ReferentialIntegrityError) Error() string {
	if e.ReferencedBy != "" {
		return fmt.Sprintf("%s %q is still referenced by %s", e.Entity, e.Key, e.ReferencedBy)
	}
	return fmt.Sprintf("referenced %s %q does not exist", e.Entity, e.Key)
}

// ConflictError is returned on a uniqueness violation.
type ConflictError struct {
	Entity string
	Key    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.Key)
}

// NotFoundError is returned when a read by key misses.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// Invalid builds a single-field ValidationError.
func Invalid(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: fmt.Sprintf(format, args...)}}}
}

func MissingRef(entity, key string) *ReferentialIntegrityError {
	return &ReferentialIntegrityError{Entity: entity, Key: key}
}

// StillReferenced reports that entity key cannot be removed while by rows point at it.
func StillReferenced(entity, key, by string) *ReferentialIntegrityError {
	return &ReferentialIntegrityError{Entity: entity, Key: key, ReferencedBy: by}
}

func Conflict(entity, key string) *ConflictError {
	return &ConflictError{Entity: entity, Key: key}
}

func NotFound(entity, key string) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: key}
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsReferentialIntegrity(err error) bool {
	var e *ReferentialIntegrityError
	return errors.As(err, &e)
}

func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// HTTPStatus maps an error kind to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case IsReferentialIntegrity(err):
		return http.StatusUnprocessableEntity
	case IsConflict(err):
		return http.StatusConflict
	case IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
