package service

import (
	"time"

	"github.com/okian/squadwatch/internal/adapters/publisher"
	"github.com/okian/squadwatch/internal/adapters/timer"
	"github.com/okian/squadwatch/internal/domain/scoring"
	"github.com/okian/squadwatch/internal/domain/window"
	"github.com/okian/squadwatch/pkg/logger"
)

// Default service configuration constants.
const (
	defaultPollInterval   = time.Minute
	defaultPollJitter     = 0.15
	defaultGracePeriod    = 15 * time.Minute
	defaultDataDir        = "data"
	defaultQueueSize      = 256
	defaultWorkerCount    = 1
	defaultDedupeSize     = 50_000
	defaultFinalizeBuffer = 8
)

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithSchedule sets the window schedule.
func WithSchedule(s *window.Schedule) MachineOption {
	return func(m *Machine) {
		if s != nil {
			m.schedule = s
		}
	}
}

// WithScheduler sets the keyed timer used for grace-period finalization.
func WithScheduler(s timer.Scheduler) MachineOption {
	return func(m *Machine) {
		if s != nil {
			m.scheduler = s
		}
	}
}

// WithClassifier replaces the win/loss classifier.
func WithClassifier(c scoring.Classifier) MachineOption {
	return func(m *Machine) {
		if c != nil {
			m.classifier = c
		}
	}
}

// WithGracePeriod sets how long a closed window stays mutable.
func WithGracePeriod(d time.Duration) MachineOption {
	return func(m *Machine) {
		if d >= 0 {
			m.grace = d
		}
	}
}

// WithMachineClock sets the clock used by timer callbacks.
func WithMachineClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithDueHandler routes grace timer expiry to fn instead of finalizing
// directly from the timer goroutine.
func WithDueHandler(fn func(key string)) MachineOption {
	return func(m *Machine) {
		if fn != nil {
			m.onDue = fn
		}
	}
}

// WithMachineLogger sets the machine logger.
func WithMachineLogger(l logger.Logger) MachineOption {
	return func(m *Machine) {
		if l != nil {
			m.log = l
		}
	}
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithEntity sets the tracked squadron name or tag.
func WithEntity(entity string) Option {
	return func(s *Service) {
		s.entity = entity
	}
}

// WithDataDir sets where snapshot and event files live.
func WithDataDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.dataDir = dir
		}
	}
}

// WithFetcher sets the dual-source fetcher.
func WithFetcher(f ScoreFetcher) Option {
	return func(s *Service) {
		s.fetcher = f
	}
}

// WithPublisher sets the reporting channel.
func WithPublisher(p publisher.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithPollInterval sets the nominal poll period and the +/- jitter fraction.
func WithPollInterval(interval time.Duration, jitter float64) Option {
	return func(s *Service) {
		if interval > 0 {
			s.pollInterval = interval
		}
		if jitter >= 0 && jitter < 1 {
			s.pollJitter = jitter
		}
	}
}

// WithServiceGracePeriod sets the finalization delay.
func WithServiceGracePeriod(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.grace = d
		}
	}
}

// WithServiceSchedule sets the window schedule.
func WithServiceSchedule(sch *window.Schedule) Option {
	return func(s *Service) {
		if sch != nil {
			s.schedule = sch
		}
	}
}

// WithServiceScheduler sets the keyed timer for finalization and archival.
func WithServiceScheduler(sch timer.Scheduler) Option {
	return func(s *Service) {
		if sch != nil {
			s.scheduler = sch
		}
	}
}

// WithClock sets the service clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithQueueSize sets the summary notice queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of summary delivery workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithDedupeSize bounds the event-id memory of the log.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
