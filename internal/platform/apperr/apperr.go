// Package apperr holds the error taxonomy shared by the domain packages and
// the HTTP error handler. Domain code wraps one of the sentinels with
// fmt.Errorf("...: %w", ...) and the boundary maps it with errors.Is.
package apperr

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("already exists")
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("not authorized")
	ErrUnauthenticated = errors.New("authentication required")
)

// FieldErrors maps a form field name to the messages collected for it.
type FieldErrors map[string][]string

// Add records a message against field.
func (fe FieldErrors) Add(field, msg string) {
	fe[field] = append(fe[field], msg)
}

// Has reports whether field has at least one message.
func (fe FieldErrors) Has(field string) bool {
	return len(fe[field]) > 0
}

// Get returns the messages for field joined for display.
func (fe FieldErrors) Get(field string) string {
	return strings.Join(fe[field], "; ")
}

// Empty reports whether no field carries an error.
func (fe FieldErrors) Empty() bool {
	return len(fe) == 0
}

// Error implements error so a FieldErrors value can travel as an ErrValidation.
func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+fe.Get(f))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Is lets errors.Is(fe, ErrValidation) succeed.
func (fe FieldErrors) Is(target error) bool {
	return target == ErrValidation
}
