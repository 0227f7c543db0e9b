package store

import "errors"

// ErrCorruptFile is returned when a persisted JSON document cannot be decoded.
var ErrCorruptFile = errors.New("corrupt store file")
