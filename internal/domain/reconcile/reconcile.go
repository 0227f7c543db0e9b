// Package reconcile picks the authoritative total score between the two
// upstream sources.
//
// Each source keeps the last distinct value it reported and when that value
// was first seen. The source that changed most recently wins; ties keep the
// previous choice. Disagreement is a diagnostic, never an error.
package reconcile

import (
	"sync"
	"time"

	"github.com/okian/squadwatch/internal/domain/model"
)

// SourceState is the trust state kept for one source.
type SourceState struct {
	LastValue     int64     `json:"last_value"`
	LastChangedAt time.Time `json:"last_changed_at"`
	Seen          bool      `json:"seen"`
}

// observe records v at now and reports whether it changed.
func (s *SourceState) observe(v int64, now time.Time) bool {
	if s.Seen && s.LastValue == v {
		return false
	}
	s.LastValue = v
	s.LastChangedAt = now
	s.Seen = true
	return true
}

// Observation is one cycle's raw reading. A nil value means the source failed.
type Observation struct {
	API *int64
	Web *int64
	At  time.Time
}

// Decision is the outcome of one reconciliation.
type Decision struct {
	Value      int64
	Chosen     string
	APIChanged bool
	WebChanged bool
	// Carried is set when the chosen source failed this cycle and its last
	// observed value stands in for it.
	Carried bool
	// Disagree is set when both sources answered with different values.
	Disagree bool
	API      *int64
	Web      *int64
}

// Diff returns the source_diff payload for a disagreeing decision.
func (d Decision) Diff() *model.SourceDiff {
	if !d.Disagree {
		return nil
	}
	return &model.SourceDiff{API: *d.API, Web: *d.Web, Chosen: d.Chosen}
}

// Reconciler holds per-source state across cycles.
type Reconciler struct {
	mu     sync.Mutex
	api    SourceState
	web    SourceState
	chosen string
}

// New returns a Reconciler that prefers the API until told otherwise.
func New() *Reconciler {
	return &Reconciler{chosen: model.SourceAPI}
}

// Reconcile folds obs into the per-source state. ok is false when neither
// source answered; state is left untouched in that case.
func (r *Reconciler) Reconcile(obs Observation) (Decision, bool) {
	if obs.API == nil && obs.Web == nil {
		return Decision{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d := Decision{API: obs.API, Web: obs.Web}
	if obs.API != nil {
		d.APIChanged = r.api.observe(*obs.API, obs.At)
	}
	if obs.Web != nil {
		d.WebChanged = r.web.observe(*obs.Web, obs.At)
	}

	// A failed source competes with its stored state; one never seen cannot.
	switch {
	case !r.api.Seen:
		d.Chosen = model.SourceWeb
	case !r.web.Seen:
		d.Chosen = model.SourceAPI
	case r.web.LastChangedAt.After(r.api.LastChangedAt):
		d.Chosen = model.SourceWeb
	case r.api.LastChangedAt.After(r.web.LastChangedAt):
		d.Chosen = model.SourceAPI
	default:
		d.Chosen = r.chosen
	}

	if d.Chosen == model.SourceWeb {
		d.Value = r.web.LastValue
		d.Carried = obs.Web == nil
	} else {
		d.Value = r.api.LastValue
		d.Carried = obs.API == nil
	}
	d.Disagree = obs.API != nil && obs.Web != nil && *obs.API != *obs.Web
	r.chosen = d.Chosen
	return d, true
}

// States returns copies of the per-source state and the sticky choice.
func (r *Reconciler) States() (api, web SourceState, chosen string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.api, r.web, r.chosen
}

// Restore seeds the API and web states, e.g. from the last persisted
// snapshot, so the first cycle after a restart is not a spurious change.
func (r *Reconciler) Restore(api, web SourceState, chosen string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.api, r.web = api, web
	if chosen == model.SourceAPI || chosen == model.SourceWeb {
		r.chosen = chosen
	}
}
