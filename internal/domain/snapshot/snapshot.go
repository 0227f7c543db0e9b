// Package snapshot canonicalizes and diffs roster snapshots.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/okian/squadwatch/internal/domain/model"
)

// canonical is the subset of a snapshot that takes part in change detection.
type canonical struct {
	Roster     []canonicalMember `json:"roster"`
	TotalScore int64             `json:"total_score"`
	Rank       int               `json:"rank"`
	Above      *int64            `json:"above"`
	Below      *int64            `json:"below"`
}

type canonicalMember struct {
	Name     string `json:"name"`
	Score    int64  `json:"score"`
	Role     string `json:"role"`
	JoinDate string `json:"join_date"`
}

// Signature returns a stable hash of s with volatile fields stripped:
// timestamp, sources used and member activity. Roster order does not matter.
func Signature(s model.Snapshot) string {
	c := canonical{
		Roster:     make([]canonicalMember, 0, len(s.Roster)),
		TotalScore: s.TotalScore,
		Rank:       s.Rank,
		Above:      s.NeighborScoreAbove,
		Below:      s.NeighborScoreBelow,
	}
	for _, m := range s.Roster {
		c.Roster = append(c.Roster, canonicalMember{Name: m.Name, Score: m.Score, Role: m.Role, JoinDate: m.JoinDate})
	}
	sort.Slice(c.Roster, func(i, j int) bool { return c.Roster[i].Name < c.Roster[j].Name })

	// Marshal of this fixed struct cannot fail.
	raw, _ := json.Marshal(c)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Validate rejects a candidate that carries no signal at all.
func Validate(s model.Snapshot) error {
	if len(s.Roster) == 0 && s.TotalScore == 0 {
		return ErrEmptySnapshot
	}
	return nil
}

// MemberDelta is a score change of a member present in both snapshots.
type MemberDelta struct {
	Name  string `json:"name"`
	From  int64  `json:"from"`
	To    int64  `json:"to"`
	Delta int64  `json:"delta"`
}

// Diff compares two snapshots.
type Diff struct {
	// First is set when there was no previous snapshot.
	First       bool           `json:"first"`
	Added       []model.Member `json:"added,omitempty"`
	Removed     []model.Member `json:"removed,omitempty"`
	Changed     []MemberDelta  `json:"changed,omitempty"`
	MemberDelta int64          `json:"member_delta"`
	From        int64          `json:"from"`
	To          int64          `json:"to"`
	ScoreDelta  int64          `json:"score_delta"`
}

// RosterChanged reports whether members joined or left.
func (d Diff) RosterChanged() bool { return len(d.Added) > 0 || len(d.Removed) > 0 }

// Compute diffs curr against prev. Members are keyed by name.
func Compute(prev *model.Snapshot, curr model.Snapshot) Diff {
	d := Diff{To: curr.TotalScore}
	if prev == nil {
		d.First = true
		d.From = curr.TotalScore
		return d
	}
	d.From = prev.TotalScore
	d.ScoreDelta = curr.TotalScore - prev.TotalScore

	before := make(map[string]model.Member, len(prev.Roster))
	for _, m := range prev.Roster {
		before[m.Name] = m
	}
	after := make(map[string]model.Member, len(curr.Roster))
	for _, m := range curr.Roster {
		after[m.Name] = m
	}

	for name, m := range after {
		old, ok := before[name]
		if !ok {
			d.Added = append(d.Added, m)
			continue
		}
		if m.Score != old.Score {
			d.Changed = append(d.Changed, MemberDelta{Name: name, From: old.Score, To: m.Score, Delta: m.Score - old.Score})
			d.MemberDelta += m.Score - old.Score
		}
	}
	for name, m := range before {
		if _, ok := after[name]; !ok {
			d.Removed = append(d.Removed, m)
		}
	}

	sort.Slice(d.Added, func(i, j int) bool { return d.Added[i].Name < d.Added[j].Name })
	sort.Slice(d.Removed, func(i, j int) bool { return d.Removed[i].Name < d.Removed[j].Name })
	sort.Slice(d.Changed, func(i, j int) bool { return d.Changed[i].Name < d.Changed[j].Name })
	return d
}
