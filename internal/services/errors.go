package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDuplicateUsername is returned when the requested username is taken.
var ErrDuplicateUsername = errors.New("username already exists")

// ErrInvalidCredentials is returned on login failure. A missing user and a
// wrong password both map to this error so the two cases cannot be told
// apart by the caller.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrForbidden is returned when the acting user does not own the record.
var ErrForbidden = errors.New("forbidden")

// ValidationError carries per-field validation messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}
