// Package timer provides cancellable one-shot tasks keyed by a token.
//
// Scheduling a key that is already pending replaces the earlier task;
// cancelling a key guarantees its function will not run afterwards.
package timer

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs fn once after delay unless the key is cancelled first.
type Scheduler interface {
	Schedule(key string, delay time.Duration, fn func())
	Cancel(key string) bool
	Pending(key string) bool
	Stop()
}

type task struct {
	t   *time.Timer
	gen uint64
}

// Real is a Scheduler backed by time.AfterFunc.
type Real struct {
	mu    sync.Mutex
	tasks map[string]task
	gen   uint64
}

// NewReal creates a Scheduler on the wall clock.
func NewReal() *Real {
	return &Real{tasks: make(map[string]task)}
}

// Schedule implements Scheduler.
func (r *Real) Schedule(key string, delay time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.tasks[key]; ok {
		old.t.Stop()
	}
	r.gen++
	gen := r.gen
	t := time.AfterFunc(delay, func() {
		r.mu.Lock()
		cur, ok := r.tasks[key]
		// A replaced or cancelled task must not run.
		if !ok || cur.gen != gen {
			r.mu.Unlock()
			return
		}
		delete(r.tasks, key)
		r.mu.Unlock()
		fn()
	})
	r.tasks[key] = task{t: t, gen: gen}
}

// Cancel implements Scheduler.
func (r *Real) Cancel(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.tasks[key]
	if !ok {
		return false
	}
	cur.t.Stop()
	delete(r.tasks, key)
	return true
}

// Pending implements Scheduler.
func (r *Real) Pending(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[key]
	return ok
}

// Stop cancels every task.
func (r *Real) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, t := range r.tasks {
		t.t.Stop()
		delete(r.tasks, k)
	}
}

// Manual is a Scheduler driven by Advance, for tests.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	tasks map[string]manualTask
}

type manualTask struct {
	at time.Time
	fn func()
}

// NewManual starts a manual clock at now.
func NewManual(now time.Time) *Manual {
	return &Manual{now: now, tasks: make(map[string]manualTask)}
}

// Now returns the manual clock.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Schedule implements Scheduler.
func (m *Manual) Schedule(key string, delay time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[key] = manualTask{at: m.now.Add(delay), fn: fn}
}

// Cancel implements Scheduler.
func (m *Manual) Cancel(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[key]
	delete(m.tasks, key)
	return ok
}

// Pending implements Scheduler.
func (m *Manual) Pending(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[key]
	return ok
}

// Due returns when key fires.
func (m *Manual) Due(key string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[key]
	return t.at, ok
}

// Stop implements Scheduler.
func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = make(map[string]manualTask)
}

// Advance moves the clock forward by d and runs due tasks in due order.
// Task functions run without the lock held and may schedule again.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	type due struct {
		key string
		manualTask
	}
	var ready []due
	for k, t := range m.tasks {
		if !t.at.After(now) {
			ready = append(ready, due{key: k, manualTask: t})
			delete(m.tasks, k)
		}
	}
	m.mu.Unlock()

	sort.Slice(ready, func(i, j int) bool { return ready[i].at.Before(ready[j].at) })
	for _, t := range ready {
		t.fn()
	}
}
