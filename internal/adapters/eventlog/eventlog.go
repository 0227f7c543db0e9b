// Package eventlog is the append-only ledger of domain events and the
// durable source of truth for session state.
//
// The file is a single JSON array. Each append rewrites it atomically. A
// file that cannot be parsed is treated as an empty log; its bytes are kept
// aside as events.json.corrupt-<unix> before anything overwrites them.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/squadwatch/internal/adapters/store"
	"github.com/okian/squadwatch/internal/domain/dedupe"
	"github.com/okian/squadwatch/internal/domain/model"
	"github.com/okian/squadwatch/pkg/logger"
	"github.com/okian/squadwatch/pkg/metrics"
)

// FileName is the ledger file inside the data directory.
const FileName = "events.json"

// Log is a file-backed event ledger. Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	path    string
	events  []model.Event
	corrupt bool
	seen    dedupe.Deduper
	now     func() time.Time
	log     logger.Logger

	dedupeSize int
}

// Open loads the ledger in dir. It never fails on a corrupt file.
func Open(ctx context.Context, dir string, opts ...Option) (*Log, error) {
	l := &Log{
		path:       filepath.Join(dir, FileName),
		now:        time.Now,
		log:        logger.Get().Named("eventlog"),
		dedupeSize: 50000,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.seen = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(l.dedupeSize))

	events, err := l.read()
	switch {
	case errors.Is(err, ErrCorrupt):
		l.corrupt = true
		metrics.RecordEventLogCorrupt()
		l.log.Error(ctx, "event log unreadable, continuing with an empty log", logger.Error(err))
	case err != nil:
		return nil, err
	}
	l.events = events
	for _, e := range events {
		l.seen.SeenAndRecord(ctx, e.ID)
	}
	metrics.UpdateEventLogSize(len(l.events))
	return l, nil
}

// Append stores e, assigning a timestamp and a content-derived id when
// absent. An event whose id is already in the log is ignored, so retrying
// or replaying the same append is harmless.
func (l *Log) Append(ctx context.Context, e model.Event) (model.Event, error) {
	if !e.Valid() {
		return e, fmt.Errorf("%w: type %q", ErrInvalidEvent, e.Type)
	}
	if e.TS.IsZero() {
		e.TS = l.now()
	}
	e.TS = e.TS.UTC()
	if e.ID == "" {
		id, err := ContentID(e)
		if err != nil {
			return e, err
		}
		e.ID = id
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seen.SeenAndRecord(ctx, e.ID) {
		metrics.RecordDuplicateEventID()
		l.log.Debug(ctx, "duplicate event ignored", logger.String("id", e.ID), logger.String("type", string(e.Type)))
		return e, nil
	}

	if l.corrupt {
		if err := l.preserveCorrupt(ctx); err != nil {
			l.seen.Unrecord(ctx, e.ID)
			return e, err
		}
	}

	next := append(l.events[:len(l.events):len(l.events)], e)
	if err := store.WriteJSON(l.path, next); err != nil {
		l.seen.Unrecord(ctx, e.ID)
		return e, fmt.Errorf("append event: %w", err)
	}
	l.events = next

	metrics.RecordEventAppended(string(e.Type))
	metrics.UpdateEventLogSize(len(l.events))
	return e, nil
}

// ContentID derives a name-based UUID from everything in e except its id.
// Equal events get equal ids.
func ContentID(e model.Event) (string, error) {
	e.ID = ""
	e.TS = e.TS.UTC()
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, data).String(), nil
}

// ReadAll re-reads the file and returns events ordered by timestamp. A
// corrupt file yields an empty log and a nil error.
func (l *Log) ReadAll(ctx context.Context) ([]model.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.read()
	if errors.Is(err, ErrCorrupt) {
		metrics.RecordEventLogCorrupt()
		l.log.Error(ctx, "event log unreadable on read", logger.Error(err))
		return []model.Event{}, nil
	}
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ForWindow returns the events carrying key, in order.
func (l *Log) ForWindow(ctx context.Context, key string) ([]model.Event, error) {
	all, err := l.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Event, 0, len(all))
	for _, e := range all {
		if e.WindowKey == key {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len returns the number of events appended or loaded.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func (l *Log) read() ([]model.Event, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.Event{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	if len(data) == 0 {
		return []model.Event{}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	events := make([]model.Event, 0, len(raw))
	for _, r := range raw {
		var e model.Event
		// Skip records that do not decode or carry the wrong payload.
		if err := json.Unmarshal(r, &e); err != nil || !e.Valid() {
			continue
		}
		events = append(events, e)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].TS.Before(events[j].TS) })
	return events, nil
}

func (l *Log) preserveCorrupt(ctx context.Context) error {
	dst := l.path + ".corrupt-" + strconv.FormatInt(l.now().Unix(), 10)
	if err := os.Rename(l.path, dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("preserve corrupt event log: %w", err)
	}
	l.corrupt = false
	l.log.Warn(ctx, "corrupt event log preserved", logger.String("path", dst))
	return nil
}
