package dualmat

import "errors"

var (
	// ErrClosed is returned when a closed Runtime is used.
	ErrClosed = errors.New("dualmat: runtime closed")

	// ErrInvalidConfig is returned for negative limits or alignments.
	ErrInvalidConfig = errors.New("dualmat: invalid configuration")
)
