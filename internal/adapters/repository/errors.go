package repository

import "errors"

// Sentinel kinds for roster ranking errors.
var (
	ErrNotFound     = errors.New("member not found")
	ErrInvalidLimit = errors.New("invalid roster limit")
)
