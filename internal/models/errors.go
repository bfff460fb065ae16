package models

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by task operations. Test with errors.Is.
var (
	ErrFetch      = errors.New("fetch failed")
	ErrMutation   = errors.New("mutation failed")
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("task not found")
)

// OpError describes a failed task operation.
type OpError struct {
	Op   string // fetch, create, update, delete, batch
	ID   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	msg := e.Op
	if e.ID != "" {
		msg += " " + e.ID
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewOpError wraps err as a failure of kind for op.
func NewOpError(op, id string, kind, err error) *OpError {
	return &OpError{Op: op, ID: id, Kind: kind, Err: err}
}

// FieldError is a validation failure on a single field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string { return fmt.Sprintf("%s %s", e.Field, e.Reason) }

func (e *FieldError) Unwrap() error { return ErrValidation }

func validationErr(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}
