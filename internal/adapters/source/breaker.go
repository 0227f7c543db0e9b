package source

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/okian/squadwatch/pkg/metrics"
)

// Breaker defaults.
const (
	defaultBreakerFailures = 5
	defaultBreakerOpen     = 2 * time.Minute
)

// newBreaker trips after failures consecutive errors and stays open for
// openFor before letting one probe through.
func newBreaker(name string, failures int, openFor time.Duration) *gobreaker.CircuitBreaker {
	if failures <= 0 {
		failures = defaultBreakerFailures
	}
	if openFor <= 0 {
		openFor = defaultBreakerOpen
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(failures) //nolint:gosec // failures is positive
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			metrics.UpdateBreakerState(name, int(to))
		},
	}
	metrics.UpdateBreakerState(name, int(gobreaker.StateClosed))
	return gobreaker.NewCircuitBreaker(st)
}
