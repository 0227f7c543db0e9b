package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/squadwatch/internal/adapters/http/api"
	"github.com/okian/squadwatch/internal/adapters/store"
	"github.com/okian/squadwatch/internal/adapters/timer"
	"github.com/okian/squadwatch/internal/domain/model"
	"github.com/okian/squadwatch/internal/domain/reconcile"
	"github.com/okian/squadwatch/internal/domain/scoring"
	"github.com/okian/squadwatch/internal/domain/session"
	"github.com/okian/squadwatch/internal/domain/window"
	"github.com/okian/squadwatch/pkg/logger"
	"github.com/okian/squadwatch/pkg/metrics"
)

// Phase is the session lifecycle position. Finalized is transient and
// lands back in PhaseNoSession.
type Phase int

// Session phases.
const (
	PhaseNoSession Phase = iota
	PhaseActive
	PhasePending
)

func (p Phase) String() string {
	switch p {
	case PhaseActive:
		return "active"
	case PhasePending:
		return "pending_finalization"
	default:
		return "no_session"
	}
}

// EventLog is the durable ledger the machine writes to and recovers from.
type EventLog interface {
	Append(ctx context.Context, e model.Event) (model.Event, error)
	ReadAll(ctx context.Context) ([]model.Event, error)
	ForWindow(ctx context.Context, key string) ([]model.Event, error)
}

// LastSessionStore keeps the most recent finalized session.
type LastSessionStore interface {
	Save(ctx context.Context, rec model.LastSession) error
	Load(ctx context.Context) (model.LastSession, bool, error)
}

// NoticeQueue receives summary notices for asynchronous delivery.
type NoticeQueue interface {
	Enqueue(ctx context.Context, n model.Notice) bool
}

// Machine drives sessions through NoSession, Active and PendingFinalization.
// Every method re-checks the window key it acts on, so a stale timer or a
// late call is a no-op rather than a corruption.
type Machine struct {
	mu sync.RWMutex

	entity     string
	events     EventLog
	last       LastSessionStore
	notices    NoticeQueue
	schedule   *window.Schedule
	scheduler  timer.Scheduler
	classifier scoring.Classifier
	grace      time.Duration
	now        func() time.Time
	onDue      func(key string)
	log        logger.Logger

	phase      Phase
	state      session.State
	win        window.Window
	finalizeAt time.Time
	closedKey  string
	lastRec    *model.LastSession
	lastDiff   *model.SourceDiff
}

// NewMachine builds a machine in PhaseNoSession. Call Recover before the
// first Tick to pick up an open session from the log.
func NewMachine(entity string, events EventLog, last LastSessionStore, notices NoticeQueue, opts ...MachineOption) *Machine {
	m := &Machine{
		entity:     entity,
		events:     events,
		last:       last,
		notices:    notices,
		schedule:   window.Default(),
		classifier: scoring.DeltaSign,
		grace:      defaultGracePeriod,
		now:        time.Now,
		log:        logger.Get().Named("session"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.scheduler == nil {
		m.scheduler = timer.NewReal()
	}
	if m.onDue == nil {
		m.onDue = func(key string) {
			_ = m.Finalize(context.Background(), key, m.now())
		}
	}
	return m
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// State returns a copy of the live projection.
func (m *Machine) State() session.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// View renders the machine for the read API.
func (m *Machine) View() api.SessionView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v := api.SessionView{Phase: m.phase.String(), Last: m.lastRec}
	if m.phase != PhaseNoSession {
		st := m.state
		v.Window = st.WindowKey
		v.State = &st
		v.Summary = session.Summary(m.entity, st)
	}
	if m.phase == PhasePending {
		at := m.finalizeAt
		v.FinalizeAt = &at
	}
	return v
}

// Tick evaluates window transitions at now. prior is the last persisted
// snapshot and candidate the one about to be persisted; either may be nil.
func (m *Machine) Tick(ctx context.Context, now time.Time, prior, candidate *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, inWindow := m.schedule.At(now)

	if m.phase == PhaseActive && (!inWindow || w.Key != m.state.WindowKey) {
		m.beginPendingLocked(ctx, now, now.Add(m.grace))
	}

	if m.phase == PhasePending && inWindow && w.Key != m.state.WindowKey {
		m.scheduler.Cancel(m.state.WindowKey)
		m.log.Info(ctx, "pending session superseded by a new window",
			logger.String("window", m.state.WindowKey),
			logger.String("next", w.Key),
		)
		metrics.RecordFinalization("superseded")
		m.resetLocked()
	}

	if m.phase != PhaseNoSession || !inWindow || m.closedKey == w.Key {
		return nil
	}

	var base *model.Snapshot
	switch {
	case prior != nil:
		base = prior
	case candidate != nil:
		base = candidate
	default:
		m.log.Debug(ctx, "session start deferred until a score is known", logger.String("window", w.Key))
		return nil
	}
	return m.openLocked(ctx, now, w, base)
}

func (m *Machine) openLocked(ctx context.Context, now time.Time, w window.Window, base *model.Snapshot) error {
	ev, err := m.appendLocked(ctx, model.Event{
		Type:      model.EventSessionStart,
		TS:        now,
		WindowKey: w.Key,
		SessionStart: &model.SessionStart{
			BaselineScore: base.TotalScore,
			BaselinePos:   base.Rank,
		},
	})
	if err != nil {
		return err
	}

	m.state = session.Apply(session.State{}, ev)
	m.win = w
	m.setPhaseLocked(PhaseActive)
	m.log.Info(ctx, "session started",
		logger.String("window", w.Key),
		logger.Int64("baseline_score", base.TotalScore),
		logger.Int("baseline_pos", base.Rank),
	)
	m.notifyLocked(ctx, now, model.NoticeUpdate)
	return nil
}

// beginPendingLocked arms the grace timer to fire at finalizeAt.
func (m *Machine) beginPendingLocked(ctx context.Context, now, finalizeAt time.Time) {
	m.finalizeAt = finalizeAt
	delay := max(finalizeAt.Sub(now), 0)
	key := m.state.WindowKey
	m.scheduler.Schedule(key, delay, func() { m.onDue(key) })
	m.setPhaseLocked(PhasePending)
	m.log.Info(ctx, "session pending finalization",
		logger.String("window", key),
		logger.Time("finalize_at", m.finalizeAt),
	)
}

// ApplyChange turns a persisted snapshot change into events. Roster changes
// are always logged; score changes count only while a session is open.
func (m *Machine) ApplyChange(ctx context.Context, now time.Time, res store.Result, dec reconcile.Decision) error {
	if !res.Changed || res.Diff.First {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.eventKeyLocked(now)
	for _, mem := range res.Diff.Added {
		if _, err := m.appendLocked(ctx, memberEvent(model.EventMemberJoin, now, key, mem)); err != nil {
			return err
		}
	}
	for _, mem := range res.Diff.Removed {
		if _, err := m.appendLocked(ctx, memberEvent(model.EventMemberLeave, now, key, mem)); err != nil {
			return err
		}
	}

	delta := res.Diff.ScoreDelta
	if m.phase == PhaseNoSession || delta == 0 {
		return nil
	}

	out := m.classifier.Classify(delta)
	ev, err := m.appendLocked(ctx, model.Event{
		Type:      model.EventPointsChange,
		TS:        now,
		WindowKey: m.state.WindowKey,
		PointsChange: &model.PointsChange{
			Delta:        delta,
			From:         res.Diff.From,
			To:           res.Diff.To,
			WonCount:     out.Won,
			LostCount:    out.Lost,
			ChosenSource: dec.Chosen,
			MemberDelta:  res.Diff.MemberDelta,
		},
	})
	if err != nil {
		return err
	}
	m.state = session.Apply(m.state, ev)
	metrics.UpdateSessionTally(m.state.Wins, m.state.Losses)
	m.notifyLocked(ctx, now, model.NoticeUpdate)
	return nil
}

// NoteSources records a source_diff when both sources answered with
// different values. A pair identical to the last recorded one is skipped.
func (m *Machine) NoteSources(ctx context.Context, now time.Time, dec reconcile.Decision) error {
	diff := dec.Diff()

	m.mu.Lock()
	defer m.mu.Unlock()

	if diff == nil {
		m.lastDiff = nil
		return nil
	}
	if m.lastDiff != nil && *m.lastDiff == *diff {
		return nil
	}
	if _, err := m.appendLocked(ctx, model.Event{
		Type:       model.EventSourceDiff,
		TS:         now,
		WindowKey:  m.eventKeyLocked(now),
		SourceDiff: diff,
	}); err != nil {
		return err
	}
	m.lastDiff = diff
	metrics.RecordSourceDiff()
	return nil
}

// Finalize closes the pending session for key. It is a no-op unless the
// machine is pending on exactly that key.
func (m *Machine) Finalize(ctx context.Context, key string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhasePending || m.state.WindowKey != key {
		m.log.Debug(ctx, "stale finalization ignored", logger.String("window", key))
		metrics.RecordFinalization("stale")
		return nil
	}
	return m.finalizeLocked(ctx, now)
}

func (m *Machine) finalizeLocked(ctx context.Context, now time.Time) error {
	st := m.state
	closed := st
	closed.Active, closed.Closed = false, true

	rec := session.Record(closed, now)
	if err := m.last.Save(ctx, rec); err != nil {
		metrics.RecordFinalization("error")
		return fmt.Errorf("finalize %s: %w", st.WindowKey, err)
	}

	if _, err := m.appendLocked(ctx, model.Event{
		Type:      model.EventSessionReset,
		TS:        now,
		WindowKey: st.WindowKey,
		SessionReset: &model.SessionReset{
			FinalScore:    st.LastScore,
			BaselineScore: st.BaselineScore,
			Wins:          st.Wins,
			Losses:        st.Losses,
			Delta:         st.Delta(),
		},
	}); err != nil {
		metrics.RecordFinalization("error")
		return fmt.Errorf("finalize %s: %w", st.WindowKey, err)
	}

	m.state = closed
	m.notifyLocked(ctx, now, model.NoticePublish)
	m.log.Info(ctx, "session finalized",
		logger.String("window", st.WindowKey),
		logger.Int64("delta", st.Delta()),
		logger.Int("wins", st.Wins),
		logger.Int("losses", st.Losses),
	)
	metrics.RecordFinalization("ok")

	m.scheduler.Cancel(st.WindowKey)
	m.lastRec = &rec
	m.closedKey = st.WindowKey
	m.resetLocked()
	return nil
}

// Recover rebuilds the machine from the event log. An open session in the
// current window becomes Active again. An open session of the window that
// just ended becomes Pending with the remaining grace, or is finalized on
// the spot when the grace period already elapsed.
func (m *Machine) Recover(ctx context.Context, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok, err := m.last.Load(ctx); err != nil {
		m.log.Warn(ctx, "last session unreadable", logger.Error(err))
	} else if ok {
		m.lastRec = &rec
		m.closedKey = rec.WindowKey
	}

	events, err := m.events.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	if w, ok := m.schedule.At(now); ok {
		st := session.Replay(events, w.Key)
		switch {
		case st.Active:
			m.state, m.win = st, w
			m.setPhaseLocked(PhaseActive)
			metrics.UpdateSessionTally(st.Wins, st.Losses)
			m.log.Info(ctx, "session recovered",
				logger.String("window", w.Key),
				logger.Int("wins", st.Wins),
				logger.Int("losses", st.Losses),
			)
		case st.Closed:
			m.closedKey = w.Key
		}
		return nil
	}

	prev, ok := m.schedule.Previous(now)
	if !ok {
		return nil
	}
	st := session.Replay(events, prev.Key)
	if !st.Active {
		return nil
	}
	// The moment the window was seen closing is lost with the process, so
	// the grace period is counted from the window end.
	m.state, m.win = st, prev
	if deadline := prev.End.Add(m.grace); now.Before(deadline) {
		m.beginPendingLocked(ctx, now, deadline)
		return nil
	}
	m.setPhaseLocked(PhasePending)
	m.log.Info(ctx, "grace period elapsed while down, finalizing", logger.String("window", prev.Key))
	return m.finalizeLocked(ctx, now)
}

// eventKeyLocked is the open session's key, else the current window's.
func (m *Machine) eventKeyLocked(now time.Time) string {
	if m.phase != PhaseNoSession {
		return m.state.WindowKey
	}
	if w, ok := m.schedule.At(now); ok {
		return w.Key
	}
	return ""
}

func (m *Machine) appendLocked(ctx context.Context, e model.Event) (model.Event, error) {
	ev, err := m.events.Append(ctx, e)
	if err != nil {
		return model.Event{}, fmt.Errorf("append %s: %w", e.Type, err)
	}
	return ev, nil
}

func (m *Machine) notifyLocked(ctx context.Context, now time.Time, kind model.NoticeKind) {
	n := model.Notice{
		Kind:      kind,
		Key:       m.state.WindowKey,
		Text:      session.Summary(m.entity, m.state),
		CreatedAt: now,
	}
	if !m.notices.Enqueue(ctx, n) {
		m.log.Warn(ctx, "summary notice dropped",
			logger.String("kind", string(kind)),
			logger.String("window", n.Key),
		)
	}
}

func (m *Machine) resetLocked() {
	m.state = session.State{}
	m.win = window.Window{}
	m.finalizeAt = time.Time{}
	m.setPhaseLocked(PhaseNoSession)
	metrics.UpdateSessionTally(0, 0)
}

func (m *Machine) setPhaseLocked(p Phase) {
	m.phase = p
	metrics.UpdateSessionPhase(int(p))
}

func memberEvent(t model.EventType, now time.Time, key string, mem model.Member) model.Event {
	return model.Event{
		Type:      t,
		TS:        now,
		WindowKey: key,
		Member:    &model.MemberChange{Name: mem.Name, Score: mem.Score, Role: mem.Role},
	}
}
