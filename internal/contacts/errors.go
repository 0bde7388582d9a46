package contacts

import (
	"errors"
	"fmt"
)

// Construction errors. They are returned at the point a value, contact or
// book is built, never deferred to first use.
var (
	ErrInvalidDefault        = errors.New("default must be a boolean")
	ErrInvalidLabels         = errors.New("labels must be a list of strings")
	ErrInvalidAttribute      = errors.New("invalid attribute")
	ErrInvalidFieldName      = errors.New("invalid field name")
	ErrInvalidIndexPolicy    = errors.New("invalid index policy")
	ErrInvalidConflictPolicy = errors.New("invalid conflict policy")
	ErrInvalidRecord         = errors.New("invalid contact record")
)

// Errors returned by list mutations.
var (
	ErrScalarField      = errors.New("field holds a scalar value")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrUnsupportedInput = errors.New("unsupported field value input")
)

// ValidationError reports a construction error together with the offending
// field or metadata key.
type ValidationError struct {
	// Field is the field name or metadata key that failed validation.
	Field string

	// Value is the rejected input.
	Value any

	// Err is one of the sentinel construction errors.
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v (got %#v)", e.Err, e.Value)
	}
	return fmt.Sprintf("%s: %v (got %#v)", e.Field, e.Err, e.Value)
}

// Unwrap returns the sentinel error so errors.Is works.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(field string, v any, err error) *ValidationError {
	return &ValidationError{Field: field, Value: v, Err: err}
}
