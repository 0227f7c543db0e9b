package model

import "time"

// Member is one roster row.
type Member struct {
	Name     string `json:"name"`
	Score    int64  `json:"score"`
	Role     string `json:"role,omitempty"`
	JoinDate string `json:"join_date,omitempty"`
	// Activity is a row counter that moves on its own; it is ignored for
	// change detection.
	Activity int64 `json:"activity,omitempty"`
}

// Snapshot is a point-in-time capture of roster and totals. Persisted
// snapshots are superseded, never mutated.
type Snapshot struct {
	Timestamp          time.Time `json:"timestamp"`
	Roster             []Member  `json:"roster"`
	TotalScore         int64     `json:"total_score"`
	Rank               int       `json:"rank,omitempty"`
	NeighborScoreAbove *int64    `json:"neighbor_score_above,omitempty"`
	NeighborScoreBelow *int64    `json:"neighbor_score_below,omitempty"`
	SourcesUsed        []string  `json:"sources_used,omitempty"`
}

// Date returns the UTC calendar date the snapshot was taken on.
func (s Snapshot) Date() string {
	return s.Timestamp.UTC().Format(time.DateOnly)
}

// LastSession is the immutable summary written when a session is finalized.
type LastSession struct {
	WindowKey     string    `json:"window_key"`
	StartedAt     time.Time `json:"started_at"`
	FinalizedAt   time.Time `json:"finalized_at"`
	BaselineScore int64     `json:"baseline_score"`
	BaselinePos   int       `json:"baseline_pos"`
	FinalScore    int64     `json:"final_score"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	Delta         int64     `json:"delta"`
}
