package eventlog

import (
	"time"

	"github.com/okian/squadwatch/pkg/logger"
)

// Option configures a Log.
type Option func(*Log)

// WithClock replaces time.Now for default timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// WithDedupeSize bounds the remembered event ids.
func WithDedupeSize(n int) Option {
	return func(l *Log) { l.dedupeSize = n }
}

// WithLogger sets the logger.
func WithLogger(lg logger.Logger) Option {
	return func(l *Log) {
		if lg != nil {
			l.log = lg
		}
	}
}
