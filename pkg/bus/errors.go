package bus

import "errors"

// ErrBusClosed indicates an operation was attempted on a closed Bus.
var ErrBusClosed = errors.New("bus: closed")
