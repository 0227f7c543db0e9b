// Package service runs the tracker: the poll loop, the session machine and
// the read-side dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/squadwatch/internal/adapters/eventlog"
	"github.com/okian/squadwatch/internal/adapters/http/api"
	"github.com/okian/squadwatch/internal/adapters/mq/queue"
	"github.com/okian/squadwatch/internal/adapters/mq/worker"
	"github.com/okian/squadwatch/internal/adapters/publisher"
	"github.com/okian/squadwatch/internal/adapters/repository"
	"github.com/okian/squadwatch/internal/adapters/source"
	"github.com/okian/squadwatch/internal/adapters/store"
	"github.com/okian/squadwatch/internal/adapters/timer"
	"github.com/okian/squadwatch/internal/domain/model"
	"github.com/okian/squadwatch/internal/domain/reconcile"
	"github.com/okian/squadwatch/internal/domain/snapshot"
	"github.com/okian/squadwatch/internal/domain/types"
	"github.com/okian/squadwatch/internal/domain/window"
	"github.com/okian/squadwatch/pkg/logger"
	"github.com/okian/squadwatch/pkg/metrics"
)

const archiveTimerKey = "archive:midnight"

// ScoreFetcher reads both upstream sources for one entity.
type ScoreFetcher interface {
	FetchScore(ctx context.Context, entity string) source.Reading
}

// Service owns every session mutation. In loop mode a single goroutine
// serializes poll cycles, finalizations and midnight archival.
type Service struct {
	mu sync.RWMutex

	// Configuration
	entity       string
	dataDir      string
	pollInterval time.Duration
	pollJitter   float64
	grace        time.Duration
	queueSize    int
	workerCount  int
	dedupeSize   int
	manual       bool
	schedule     *window.Schedule
	scheduler    timer.Scheduler
	now          func() time.Time

	// Core components
	fetcher    ScoreFetcher
	publisher  publisher.Publisher
	snapshots  *store.SnapshotStore
	events     *eventlog.Log
	lastStore  *store.LastSessionStore
	roster     repository.Store
	reconciler *reconcile.Reconciler
	notices    *queue.InMemoryQueue
	workerPool *worker.Pool
	machine    *Machine

	// Loop plumbing
	finalizeCh chan string
	archiveCh  chan struct{}
	cancel     context.CancelFunc
	done       chan struct{}

	// State
	started    bool
	cycles     int64
	skipped    int64
	lastCycle  time.Time
	lastChosen string

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dataDir:      defaultDataDir,
		pollInterval: defaultPollInterval,
		pollJitter:   defaultPollJitter,
		grace:        defaultGracePeriod,
		queueSize:    defaultQueueSize,
		workerCount:  defaultWorkerCount,
		dedupeSize:   defaultDedupeSize,
		schedule:     window.Default(),
		now:          time.Now,
		finalizeCh:   make(chan string, defaultFinalizeBuffer),
		archiveCh:    make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithManualCycles makes Start open the stores without running the loop.
// Callers drive RunCycle, Archive and timer expiry themselves.
func WithManualCycles() Option {
	return func(s *Service) { s.manual = true }
}

// Start opens storage, recovers the session and starts the loop.
// Snapshot archival runs before anything else touches the live file.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.entity == "" {
		return ErrNoEntity
	}
	if s.fetcher == nil && !s.manual {
		return ErrNoFetcher
	}
	if s.scheduler == nil {
		s.scheduler = timer.NewReal()
	}
	if s.publisher == nil {
		s.publisher = publisher.NewLog(s.logger.Named("summary"))
	}

	s.logger.Info(ctx, "starting tracker",
		logger.String("entity", s.entity),
		logger.String("data_dir", s.dataDir),
	)

	snapshots, err := store.NewSnapshotStore(ctx, s.dataDir)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	if _, err := snapshots.ArchiveIfStale(ctx, s.now()); err != nil {
		s.logger.Error(ctx, "startup archival failed", logger.Error(err))
	}
	events, err := eventlog.Open(ctx, s.dataDir, eventlog.WithDedupeSize(s.dedupeSize), eventlog.WithClock(s.now))
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}

	s.snapshots = snapshots
	s.events = events
	s.lastStore = store.NewLastSessionStore(s.dataDir)
	s.roster = repository.NewTreapStore()
	s.reconciler = reconcile.New()

	if latest, ok := snapshots.Latest(); ok {
		_ = s.roster.Replace(ctx, latest.Roster)
		seedReconciler(s.reconciler, latest)
		metrics.UpdateTotalScore(latest.TotalScore)
	}

	s.notices = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.workerPool = worker.NewPool(s.workerCount, s.notices, s.publisher)
	s.workerPool.Start(ctx)

	s.machine = NewMachine(s.entity, events, s.lastStore, s.notices,
		WithSchedule(s.schedule),
		WithScheduler(s.scheduler),
		WithGracePeriod(s.grace),
		WithMachineClock(s.now),
		WithDueHandler(s.due),
		WithMachineLogger(s.logger.Named("session")),
	)
	if err := s.machine.Recover(ctx, s.now()); err != nil {
		s.logger.Error(ctx, "session recovery failed", logger.Error(err))
	}
	s.scheduleMidnight()

	s.started = true
	if !s.manual {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.run(runCtx)
	}

	s.logger.Info(ctx, "tracker started",
		logger.String("phase", s.machine.Phase().String()),
		logger.Int("events", events.Len()),
	)
	return nil
}

// Stop ends the loop, cancels timers and drains pending summaries.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping tracker...")

	if cancel != nil {
		cancel()
		<-done
	}
	s.scheduler.Stop()
	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}

	s.logger.Info(ctx, "tracker stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	poll := time.NewTimer(0)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			if err := s.RunCycle(ctx); err != nil {
				s.logger.Error(ctx, "poll cycle failed", logger.Error(err))
			}
			poll.Reset(s.nextPoll())
		case key := <-s.finalizeCh:
			if err := s.machine.Finalize(ctx, key, s.now()); err != nil {
				s.logger.Error(ctx, "finalization failed", logger.String("window", key), logger.Error(err))
			}
		case <-s.archiveCh:
			if _, err := s.Archive(ctx); err != nil {
				s.logger.Error(ctx, "midnight archival failed", logger.Error(err))
			}
			s.scheduleMidnight()
		}
	}
}

// due is called from timer goroutines. In loop mode it hands the key to the
// loop; in manual mode it finalizes in place.
func (s *Service) due(key string) {
	if s.manual {
		if err := s.machine.Finalize(context.Background(), key, s.now()); err != nil {
			s.logger.Error(context.Background(), "finalization failed", logger.String("window", key), logger.Error(err))
		}
		return
	}
	select {
	case s.finalizeCh <- key:
	case <-s.done:
	}
}

func (s *Service) scheduleMidnight() {
	now := s.now()
	s.scheduler.Schedule(archiveTimerKey, window.NextMidnight(now).Sub(now), func() {
		if s.manual {
			_, _ = s.Archive(context.Background())
			s.scheduleMidnight()
			return
		}
		select {
		case s.archiveCh <- struct{}{}:
		default:
		}
	})
}

// nextPoll returns the nominal interval shifted by a uniform +/- jitter.
func (s *Service) nextPoll() time.Duration {
	if s.pollJitter == 0 {
		return s.pollInterval
	}
	f := 1 + s.pollJitter*(2*rand.Float64()-1) //nolint:gosec // scheduling jitter
	return time.Duration(float64(s.pollInterval) * f)
}

// RunCycle performs one poll: fetch, reconcile, window transitions, persist
// and events. Both sources failing skips the capture and emits no score
// events, but a closed window still moves its session to pending.
func (s *Service) RunCycle(ctx context.Context) error {
	if s.machine == nil {
		return ErrNotStarted
	}
	if s.fetcher == nil {
		return ErrNoFetcher
	}
	start := time.Now()
	defer func() {
		metrics.RecordPollCycleDuration(float64(time.Since(start).Milliseconds()))
	}()

	now := s.now()
	reading := s.fetcher.FetchScore(ctx, s.entity)
	if reading.Failed() {
		s.countCycle(now, true, "")
		metrics.RecordPollCycle("skipped")
		s.logger.Warn(ctx, "both sources failed, skipping cycle",
			logger.Any("api_error", errString(reading.APIErr)),
			logger.Any("web_error", errString(reading.WebErr)),
		)
		// No score is known, so this can close a session but never open one.
		if err := s.machine.Tick(ctx, now, nil, nil); err != nil {
			s.logger.Error(ctx, "window transition failed", logger.Error(err))
		}
		return nil
	}

	dec, _ := s.reconciler.Reconcile(reconcile.Observation{API: reading.API, Web: reading.Web, At: now})
	metrics.RecordReconciledSource(dec.Chosen)
	s.countCycle(now, false, dec.Chosen)

	var prior *model.Snapshot
	if latest, ok := s.snapshots.Latest(); ok {
		prior = &latest
	}
	candidate := store.Capture(captureInput(now, reading, dec, prior))

	if err := s.machine.Tick(ctx, now, prior, &candidate); err != nil {
		s.logger.Error(ctx, "window transition failed", logger.Error(err))
	}

	res, err := s.snapshots.PersistIfChanged(ctx, candidate)
	switch {
	case errors.Is(err, snapshot.ErrEmptySnapshot):
		metrics.RecordPollCycle("rejected")
		s.logger.Warn(ctx, "empty snapshot rejected", logger.Int64("total", candidate.TotalScore))
		return nil
	case err != nil:
		metrics.RecordPollCycle("error")
		return fmt.Errorf("persist snapshot: %w", err)
	}

	if res.Changed {
		if err := s.roster.Replace(ctx, res.Current.Roster); err != nil {
			s.logger.Warn(ctx, "roster ranking update failed", logger.Error(err))
		}
	}

	var errs []error
	if err := s.machine.ApplyChange(ctx, now, res, dec); err != nil {
		errs = append(errs, err)
	}
	if err := s.machine.NoteSources(ctx, now, dec); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		metrics.RecordPollCycle("error")
		return err
	}

	metrics.RecordPollCycle("ok")
	return nil
}

// Archive copies a snapshot from a previous UTC day into the archive.
func (s *Service) Archive(ctx context.Context) (bool, error) {
	if s.snapshots == nil {
		return false, ErrNotStarted
	}
	return s.snapshots.ArchiveIfStale(ctx, s.now())
}

func (s *Service) countCycle(now time.Time, skipped bool, chosen string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	if skipped {
		s.skipped++
	} else {
		s.lastChosen = chosen
	}
	s.lastCycle = now
}

// captureInput builds the candidate. A failed listing keeps the prior rank
// and neighbors; a failed or roster-less detail page keeps the prior roster.
func captureInput(now time.Time, r source.Reading, dec reconcile.Decision, prior *model.Snapshot) store.CaptureInput {
	in := store.CaptureInput{At: now, Total: dec.Value, Roster: r.Roster}

	in.Sources = append(in.Sources, dec.Chosen)
	switch {
	case dec.Chosen == model.SourceAPI && r.Web != nil:
		in.Sources = append(in.Sources, model.SourceWeb)
	case dec.Chosen == model.SourceWeb && r.API != nil:
		in.Sources = append(in.Sources, model.SourceAPI)
	}

	if r.Standing != nil {
		in.Rank, in.Above, in.Below = r.Standing.Rank, r.Standing.Above, r.Standing.Below
	} else if prior != nil {
		in.Rank, in.Above, in.Below = prior.Rank, prior.NeighborScoreAbove, prior.NeighborScoreBelow
	}
	if len(in.Roster) == 0 && prior != nil {
		in.Roster = prior.Roster
	}
	return in
}

// seedReconciler trusts the persisted total for every source that was used
// for it, so a restart does not read as a change.
func seedReconciler(r *reconcile.Reconciler, snap model.Snapshot) {
	var api, web reconcile.SourceState
	seed := reconcile.SourceState{LastValue: snap.TotalScore, LastChangedAt: snap.Timestamp, Seen: true}
	for _, src := range snap.SourcesUsed {
		switch src {
		case model.SourceAPI:
			api = seed
		case model.SourceWeb:
			web = seed
		}
	}
	chosen := ""
	if len(snap.SourcesUsed) > 0 {
		chosen = snap.SourcesUsed[0]
	}
	r.Restore(api, web, chosen)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Snapshot returns the latest persisted snapshot.
func (s *Service) Snapshot(_ context.Context) (model.Snapshot, bool) {
	if s.snapshots == nil {
		return model.Snapshot{}, false
	}
	return s.snapshots.Latest()
}

// Session returns the machine view.
func (s *Service) Session(_ context.Context) api.SessionView {
	if s.machine == nil {
		return api.SessionView{Phase: PhaseNoSession.String()}
	}
	return s.machine.View()
}

// Machine exposes the session machine.
func (s *Service) Machine() *Machine { return s.machine }

// TopN returns the top N roster entries.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	if s.roster == nil {
		return nil, ErrNotStarted
	}
	return s.roster.TopN(ctx, n)
}

// Rank returns the rank and score of a roster member.
func (s *Service) Rank(ctx context.Context, name string) (types.Entry, error) {
	if s.roster == nil {
		return types.Entry{}, ErrNotStarted
	}
	return s.roster.Rank(ctx, name)
}

// Events reads the event log, optionally filtered to one window key.
func (s *Service) Events(ctx context.Context, windowKey string) ([]model.Event, error) {
	if s.events == nil {
		return nil, ErrNotStarted
	}
	if windowKey != "" {
		return s.events.ForWindow(ctx, windowKey)
	}
	return s.events.ReadAll(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":       s.started,
		"entity":        s.entity,
		"poll_interval": s.pollInterval.String(),
		"grace_period":  s.grace.String(),
		"cycles":        s.cycles,
		"skipped":       s.skipped,
	}
	if !s.lastCycle.IsZero() {
		stats["last_cycle"] = s.lastCycle.UTC().Format(time.RFC3339)
		stats["chosen_source"] = s.lastChosen
	}
	if s.machine != nil {
		stats["phase"] = s.machine.Phase().String()
	}
	if s.snapshots != nil {
		stats["snapshot_writes"] = s.snapshots.Writes()
	}
	if s.events != nil {
		stats["events"] = s.events.Len()
	}
	if s.notices != nil {
		stats["queue_length"] = s.notices.Len(ctx)
	}
	if s.roster != nil {
		stats["roster_members"] = s.roster.Count(ctx)
	}
	return stats
}
