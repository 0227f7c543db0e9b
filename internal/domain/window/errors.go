package window

import "errors"

var (
	// ErrInvalidDefinition is returned for a window outside one UTC day or
	// with a non-positive length.
	ErrInvalidDefinition = errors.New("invalid window definition")
	// ErrOverlap is returned when two definitions share any instant.
	ErrOverlap = errors.New("windows overlap")
)
