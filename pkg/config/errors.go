package config

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRequiredField indicates a required environment variable was not set.
	ErrMissingRequiredField = errors.New("missing required configuration field")

	// ErrInvalidValue indicates a field has a value that fails validation.
	ErrInvalidValue = errors.New("invalid configuration value")
)

// LoadError wraps configuration loading failures with the source they came from.
type LoadError struct {
	Source string // ".env file", "environment", etc.
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load configuration from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func NewLoadError(source string, err error) *LoadError {
	return &LoadError{Source: source, Err: err}
}

// ValidationError wraps a struct-validation failure with the offending field.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config field %q: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}
