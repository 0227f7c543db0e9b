// Package window maps instants to the recurring daily scoring windows.
//
// Windows are half-open UTC ranges [start, end) repeated every day. At most
// one window is active at any instant; outside all of them there is none.
// Everything here is pure: identical instants give identical answers.
package window

import (
	"fmt"
	"sort"
	"time"
)

// Default window labels.
const (
	LabelEarly = "early"
	LabelLate  = "late"
)

const keySep = "|"

// Definition describes one recurring daily window.
type Definition struct {
	Label  string
	Start  time.Duration // offset from UTC midnight
	Length time.Duration
}

// Window is one concrete occurrence of a Definition.
type Window struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Key   string    `json:"key"`
}

// Contains reports whether t lies in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Key builds the session key for a label on the UTC date of day.
func Key(day time.Time, label string) string {
	return day.UTC().Format(time.DateOnly) + keySep + label
}

// Schedule is a validated set of non-overlapping daily windows.
type Schedule struct {
	defs []Definition
}

// NewSchedule validates defs and sorts them by start offset.
func NewSchedule(defs ...Definition) (*Schedule, error) {
	sorted := make([]Definition, len(defs))
	copy(sorted, defs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	for i, d := range sorted {
		if d.Label == "" || d.Length <= 0 || d.Start < 0 || d.Start+d.Length > 24*time.Hour {
			return nil, fmt.Errorf("%w: %q start=%s length=%s", ErrInvalidDefinition, d.Label, d.Start, d.Length)
		}
		if i > 0 {
			prev := sorted[i-1]
			if prev.Start+prev.Length > d.Start {
				return nil, fmt.Errorf("%w: %q and %q", ErrOverlap, prev.Label, d.Label)
			}
			if prev.Label == d.Label {
				return nil, fmt.Errorf("%w: duplicate label %q", ErrInvalidDefinition, d.Label)
			}
		}
	}
	return &Schedule{defs: sorted}, nil
}

// Daily builds the two-window schedule from UTC start hours and a length.
func Daily(earlyStartHour, lateStartHour, lengthHours int) (*Schedule, error) {
	length := time.Duration(lengthHours) * time.Hour
	return NewSchedule(
		Definition{Label: LabelEarly, Start: time.Duration(earlyStartHour) * time.Hour, Length: length},
		Definition{Label: LabelLate, Start: time.Duration(lateStartHour) * time.Hour, Length: length},
	)
}

var defaultSchedule = mustDaily(1, 14, 8)

func mustDaily(early, late, length int) *Schedule {
	s, err := Daily(early, late, length)
	if err != nil {
		panic(err)
	}
	return s
}

// Default returns the standard schedule: early 01:00-09:00, late 14:00-22:00 UTC.
func Default() *Schedule { return defaultSchedule }

// At returns the window active at t under the default schedule.
func At(t time.Time) (Window, bool) { return defaultSchedule.At(t) }

// At returns the window containing t, if any.
func (s *Schedule) At(t time.Time) (Window, bool) {
	t = t.UTC()
	day := midnight(t)
	for _, d := range s.defs {
		w := d.on(day)
		if w.Contains(t) {
			return w, true
		}
	}
	return Window{}, false
}

// Next returns the first window starting strictly after t.
func (s *Schedule) Next(t time.Time) Window {
	t = t.UTC()
	day := midnight(t)
	for i := 0; i < 2; i++ {
		for _, d := range s.defs {
			w := d.on(day)
			if w.Start.After(t) {
				return w
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	// Unreachable for a non-empty schedule.
	return Window{}
}

// Previous returns the most recent window that ended at or before t.
func (s *Schedule) Previous(t time.Time) (Window, bool) {
	t = t.UTC()
	day := midnight(t)
	for i := 0; i < 2; i++ {
		for j := len(s.defs) - 1; j >= 0; j-- {
			w := s.defs[j].on(day)
			if !w.End.After(t) {
				return w, true
			}
		}
		day = day.AddDate(0, 0, -1)
	}
	return Window{}, false
}

// ByKey resolves a key produced by Key back to its window.
func (s *Schedule) ByKey(key string) (Window, bool) {
	if len(key) <= len(time.DateOnly)+len(keySep) {
		return Window{}, false
	}
	day, err := time.Parse(time.DateOnly, key[:len(time.DateOnly)])
	if err != nil || key[len(time.DateOnly):len(time.DateOnly)+len(keySep)] != keySep {
		return Window{}, false
	}
	label := key[len(time.DateOnly)+len(keySep):]
	for _, d := range s.defs {
		if d.Label == label {
			return d.on(day), true
		}
	}
	return Window{}, false
}

// NextMidnight returns the first UTC midnight strictly after t.
func NextMidnight(t time.Time) time.Time {
	return midnight(t.UTC()).AddDate(0, 0, 1)
}

func (d Definition) on(day time.Time) Window {
	start := day.Add(d.Start)
	return Window{
		Label: d.Label,
		Start: start,
		End:   start.Add(d.Length),
		Key:   Key(day, d.Label),
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
