package api

const (
	defaultMaxRosterLimit = 128
	defaultMaxEventsLimit = 1000
)

type settings struct {
	maxRosterLimit int
	maxEventsLimit int
}

// Option configures a Server.
type Option func(*settings)

// WithMaxRosterLimit caps /roster?limit.
func WithMaxRosterLimit(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxRosterLimit = n
		}
	}
}

// WithMaxEventsLimit caps /events?limit.
func WithMaxEventsLimit(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxEventsLimit = n
		}
	}
}
