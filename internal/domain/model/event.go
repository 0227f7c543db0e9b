// Package model contains domain models passed between layers.
package model

import "time"

// EventType tags the payload carried by an Event.
type EventType string

// Event types written to the event log.
const (
	EventSessionStart EventType = "session_start"
	EventSessionReset EventType = "session_reset"
	EventPointsChange EventType = "points_change"
	EventMemberJoin   EventType = "member_join"
	EventMemberLeave  EventType = "member_leave"
	EventSourceDiff   EventType = "source_diff"
)

// Source names used in events and snapshots.
const (
	SourceAPI = "api" // ranked listing
	SourceWeb = "web" // detail page
)

// Event is one append-only ledger record. Exactly one payload pointer is set,
// matching Type.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TS        time.Time `json:"ts"`
	WindowKey string    `json:"window_key,omitempty"`

	SessionStart *SessionStart `json:"session_start,omitempty"`
	SessionReset *SessionReset `json:"session_reset,omitempty"`
	PointsChange *PointsChange `json:"points_change,omitempty"`
	Member       *MemberChange `json:"member,omitempty"`
	SourceDiff   *SourceDiff   `json:"source_diff,omitempty"`
}

// SessionStart records the baseline a session is measured against.
type SessionStart struct {
	BaselineScore int64 `json:"baseline_score"`
	BaselinePos   int   `json:"baseline_pos"`
}

// SessionReset records a finalized session's totals.
type SessionReset struct {
	FinalScore    int64 `json:"final_score"`
	BaselineScore int64 `json:"baseline_score"`
	Wins          int   `json:"wins"`
	Losses        int   `json:"losses"`
	Delta         int64 `json:"delta"`
}

// PointsChange records one classified change of the total score.
type PointsChange struct {
	Delta        int64  `json:"delta"`
	From         int64  `json:"from"`
	To           int64  `json:"to"`
	WonCount     int    `json:"won_count"`
	LostCount    int    `json:"lost_count"`
	ChosenSource string `json:"chosen_source"`
	MemberDelta  int64  `json:"member_delta"`
}

// MemberChange is the payload of member_join and member_leave.
type MemberChange struct {
	Name  string `json:"name"`
	Score int64  `json:"score"`
	Role  string `json:"role,omitempty"`
}

// SourceDiff records a disagreement between the two sources.
type SourceDiff struct {
	API    int64  `json:"api"`
	Web    int64  `json:"web"`
	Chosen string `json:"chosen"`
}

// Valid reports whether the payload matching Type is present.
func (e Event) Valid() bool {
	switch e.Type {
	case EventSessionStart:
		return e.SessionStart != nil
	case EventSessionReset:
		return e.SessionReset != nil
	case EventPointsChange:
		return e.PointsChange != nil
	case EventMemberJoin, EventMemberLeave:
		return e.Member != nil
	case EventSourceDiff:
		return e.SourceDiff != nil
	default:
		return false
	}
}
