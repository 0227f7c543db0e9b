package eventlog

import "errors"

var (
	// ErrCorrupt marks an events file that is not a JSON array.
	ErrCorrupt = errors.New("event log corrupt")
	// ErrInvalidEvent rejects an event whose payload does not match its type.
	ErrInvalidEvent = errors.New("invalid event")
)
