package investigation

import "errors"

var (
	// ErrInvalidTransition indicates a disallowed state-graph edge was
	// attempted (§4.A state table).
	ErrInvalidTransition = errors.New("investigation: invalid state transition")
)
