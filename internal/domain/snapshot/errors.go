package snapshot

import "errors"

// ErrEmptySnapshot rejects a capture with no roster and no total score.
var ErrEmptySnapshot = errors.New("empty snapshot")
