package source

import "errors"

var (
	// ErrEntityNotFound means the listing was exhausted or the page cap hit
	// without a match.
	ErrEntityNotFound = errors.New("entity not found in listing")
	// ErrUnexpectedStatus is returned for non-200 upstream responses.
	ErrUnexpectedStatus = errors.New("unexpected upstream status")
	// ErrBadPayload is returned when a listing page cannot be decoded.
	ErrBadPayload = errors.New("malformed upstream payload")
	// ErrScoreNotFound means the detail page had no usable score.
	ErrScoreNotFound = errors.New("score not found in detail page")
)
