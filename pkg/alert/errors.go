package alert

import "errors"

var (
	// ErrMissingField indicates a required alert field was empty.
	ErrMissingField = errors.New("alert: missing required field")

	// ErrInvalidSeverity indicates severity was outside the closed enum.
	ErrInvalidSeverity = errors.New("alert: severity is not a member of the closed enum")
)
