// Package session rebuilds session aggregates from the event log.
//
// A session is never stored. It is the fold of the events carrying one
// window key, so replaying the log after a restart yields exactly the state
// that existed before it.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/squadwatch/internal/domain/model"
)

// State is the projection of one window's events.
type State struct {
	WindowKey     string    `json:"window_key"`
	StartedAt     time.Time `json:"started_at"`
	BaselineScore int64     `json:"baseline_score"`
	BaselinePos   int       `json:"baseline_pos"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	LastScore     int64     `json:"last_score"`
	// Active is true between session_start and session_reset.
	Active bool `json:"active"`
	// Closed is true once a session_reset for the key was seen.
	Closed bool `json:"closed"`
}

// Delta is the score movement since the baseline.
func (s State) Delta() int64 { return s.LastScore - s.BaselineScore }

// Started reports whether a session_start was applied.
func (s State) Started() bool { return s.Active || s.Closed }

// Apply folds one event into s. Events for other windows are ignored once
// s is bound to a key.
func Apply(s State, e model.Event) State {
	if s.WindowKey != "" && e.WindowKey != s.WindowKey {
		return s
	}
	switch e.Type {
	case model.EventSessionStart:
		if e.SessionStart == nil {
			return s
		}
		return State{
			WindowKey:     e.WindowKey,
			StartedAt:     e.TS,
			BaselineScore: e.SessionStart.BaselineScore,
			BaselinePos:   e.SessionStart.BaselinePos,
			LastScore:     e.SessionStart.BaselineScore,
			Active:        true,
		}
	case model.EventPointsChange:
		if !s.Active || e.PointsChange == nil {
			return s
		}
		s.Wins += e.PointsChange.WonCount
		s.Losses += e.PointsChange.LostCount
		s.LastScore = e.PointsChange.To
	case model.EventSessionReset:
		if !s.Active {
			return s
		}
		s.Active = false
		s.Closed = true
	}
	return s
}

// Replay folds the events whose window key is key, in order.
func Replay(events []model.Event, key string) State {
	s := State{WindowKey: key}
	for _, e := range events {
		if e.WindowKey != key {
			continue
		}
		s = Apply(s, e)
	}
	return s
}

// Summary renders the plain-text report for s.
func Summary(entity string, s State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s session %s\n", entity, s.WindowKey)
	fmt.Fprintf(&b, "score: %d -> %d (%+d)\n", s.BaselineScore, s.LastScore, s.Delta())
	if s.BaselinePos > 0 {
		fmt.Fprintf(&b, "start position: %d\n", s.BaselinePos)
	}
	fmt.Fprintf(&b, "wins: %d losses: %d", s.Wins, s.Losses)
	if s.Closed {
		b.WriteString("\nfinal")
	}
	return b.String()
}

// Record converts a finished state into the persisted last-session summary.
func Record(s State, finalizedAt time.Time) model.LastSession {
	return model.LastSession{
		WindowKey:     s.WindowKey,
		StartedAt:     s.StartedAt,
		FinalizedAt:   finalizedAt,
		BaselineScore: s.BaselineScore,
		BaselinePos:   s.BaselinePos,
		FinalScore:    s.LastScore,
		Wins:          s.Wins,
		Losses:        s.Losses,
		Delta:         s.Delta(),
	}
}
