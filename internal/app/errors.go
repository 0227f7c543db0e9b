package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted = errors.New("service not started")
	ErrNoFetcher  = errors.New("no score fetcher configured")
	ErrNoEntity   = errors.New("no entity configured")
)
