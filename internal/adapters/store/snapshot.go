// Package store persists the live snapshot, its dated archive copies and
// the last completed session.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/squadwatch/internal/domain/model"
	"github.com/okian/squadwatch/internal/domain/snapshot"
	"github.com/okian/squadwatch/pkg/logger"
	"github.com/okian/squadwatch/pkg/metrics"
)

// File names inside the data directory.
const (
	SnapshotFile    = "snapshot.json"
	LastSessionFile = "last_session.json"
	ArchiveDir      = "archive"
)

// CaptureInput is everything a snapshot is built from.
type CaptureInput struct {
	At      time.Time
	Total   int64
	Rank    int
	Above   *int64
	Below   *int64
	Roster  []model.Member
	Sources []string
}

// Capture builds a snapshot. The roster is copied and ordered by score,
// highest first.
func Capture(in CaptureInput) model.Snapshot {
	roster := make([]model.Member, len(in.Roster))
	copy(roster, in.Roster)
	sort.SliceStable(roster, func(i, j int) bool {
		if roster[i].Score != roster[j].Score {
			return roster[i].Score > roster[j].Score
		}
		return roster[i].Name < roster[j].Name
	})
	sources := make([]string, len(in.Sources))
	copy(sources, in.Sources)
	return model.Snapshot{
		Timestamp:          in.At.UTC(),
		Roster:             roster,
		TotalScore:         in.Total,
		Rank:               in.Rank,
		NeighborScoreAbove: in.Above,
		NeighborScoreBelow: in.Below,
		SourcesUsed:        sources,
	}
}

// Result reports what PersistIfChanged did.
type Result struct {
	Changed  bool
	Diff     snapshot.Diff
	Previous *model.Snapshot
	Current  model.Snapshot
}

// SnapshotStore owns snapshot.json and archive/.
type SnapshotStore struct {
	mu        sync.RWMutex
	dir       string
	latest    *model.Snapshot
	signature string
	writes    atomic.Int64
	log       logger.Logger
}

// NewSnapshotStore opens dir, loading the live snapshot if one exists. A
// corrupt live file is logged and treated as absent; it is overwritten by
// the next successful capture.
func NewSnapshotStore(ctx context.Context, dir string, opts ...SnapshotOption) (*SnapshotStore, error) {
	s := &SnapshotStore{
		dir: dir,
		log: logger.Get().Named("snapshot-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	var snap model.Snapshot
	found, err := ReadJSON(s.path(), &snap)
	switch {
	case errors.Is(err, ErrCorruptFile):
		s.log.Warn(ctx, "live snapshot unreadable, starting empty", logger.Error(err))
	case err != nil:
		return nil, err
	case found:
		s.latest = &snap
		s.signature = snapshot.Signature(snap)
		metrics.UpdateRosterMembers(len(snap.Roster))
		metrics.UpdateTotalScore(snap.TotalScore)
	}
	return s, nil
}

func (s *SnapshotStore) path() string { return filepath.Join(s.dir, SnapshotFile) }

// Latest returns the last persisted snapshot.
func (s *SnapshotStore) Latest() (model.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return model.Snapshot{}, false
	}
	return *s.latest, true
}

// Writes returns how many times the live file was written by this process.
func (s *SnapshotStore) Writes() int64 { return s.writes.Load() }

// PersistIfChanged writes snap unless its signature equals the last
// persisted one. Empty snapshots are rejected with snapshot.ErrEmptySnapshot.
func (s *SnapshotStore) PersistIfChanged(ctx context.Context, snap model.Snapshot) (Result, error) {
	if err := snapshot.Validate(snap); err != nil {
		metrics.RecordSnapshotRejected()
		return Result{}, err
	}

	sig := snapshot.Signature(snap)

	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *model.Snapshot
	if s.latest != nil {
		p := *s.latest
		prev = &p
	}
	if prev != nil && sig == s.signature {
		metrics.RecordSnapshotUnchanged()
		return Result{Previous: prev, Current: *prev}, nil
	}

	// Keep yesterday's file before today's capture replaces it.
	if prev != nil && prev.Date() < snap.Date() {
		if _, err := s.archiveLocked(ctx, snap.Timestamp); err != nil {
			return Result{}, err
		}
	}

	if err := WriteJSON(s.path(), snap); err != nil {
		return Result{}, fmt.Errorf("persist snapshot: %w", err)
	}
	s.writes.Add(1)
	s.latest = &snap
	s.signature = sig

	metrics.RecordSnapshotWrite()
	metrics.UpdateRosterMembers(len(snap.Roster))
	metrics.UpdateTotalScore(snap.TotalScore)

	return Result{
		Changed:  true,
		Diff:     snapshot.Compute(prev, snap),
		Previous: prev,
		Current:  snap,
	}, nil
}

// ArchiveIfStale copies the live file to archive/snapshot-<date>.json when
// its embedded date precedes now's UTC date. Copy, not move: the live file
// stays readable. Repeated calls for the same date do nothing.
func (s *SnapshotStore) ArchiveIfStale(ctx context.Context, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archiveLocked(ctx, now)
}

func (s *SnapshotStore) archiveLocked(ctx context.Context, now time.Time) (bool, error) {
	if s.latest == nil {
		return false, nil
	}
	date := s.latest.Date()
	if date >= now.UTC().Format(time.DateOnly) {
		return false, nil
	}
	dst := s.ArchivePath(date)
	if exists(dst) {
		return false, nil
	}
	data, err := os.ReadFile(s.path())
	if err != nil {
		return false, fmt.Errorf("read live snapshot: %w", err)
	}
	if err := WriteFileAtomic(dst, data); err != nil {
		return false, fmt.Errorf("archive snapshot: %w", err)
	}
	metrics.RecordArchive()
	s.log.Info(ctx, "archived snapshot", logger.String("date", date), logger.String("path", dst))
	return true, nil
}

// ArchivePath returns the archive file for a UTC date.
func (s *SnapshotStore) ArchivePath(date string) string {
	return filepath.Join(s.dir, ArchiveDir, "snapshot-"+date+".json")
}

// LastSessionStore persists the most recent finalized session.
type LastSessionStore struct {
	path string
}

// NewLastSessionStore stores last_session.json in dir.
func NewLastSessionStore(dir string) *LastSessionStore {
	return &LastSessionStore{path: filepath.Join(dir, LastSessionFile)}
}

// Save replaces the record.
func (l *LastSessionStore) Save(_ context.Context, rec model.LastSession) error {
	if err := WriteJSON(l.path, rec); err != nil {
		return fmt.Errorf("persist last session: %w", err)
	}
	return nil
}

// Load returns the record, if any.
func (l *LastSessionStore) Load(_ context.Context) (model.LastSession, bool, error) {
	var rec model.LastSession
	found, err := ReadJSON(l.path, &rec)
	if err != nil || !found {
		return model.LastSession{}, false, err
	}
	return rec, true, nil
}
