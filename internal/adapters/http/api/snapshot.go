package api

import (
	"context"
	"net/http"

	"github.com/okian/squadwatch/internal/domain/model"
)

// SnapshotDependencies exposes the latest persisted snapshot.
type SnapshotDependencies interface {
	Snapshot(ctx context.Context) (model.Snapshot, bool)
}

// SessionDependencies exposes the session machine view.
type SessionDependencies interface {
	Session(ctx context.Context) SessionView
}

// SnapshotHandler handles GET /snapshot.
type SnapshotHandler struct {
	deps SnapshotDependencies
}

// NewSnapshotHandler creates a new snapshot handler.
func NewSnapshotHandler(deps SnapshotDependencies) *SnapshotHandler {
	return &SnapshotHandler{deps: deps}
}

// HandleGetSnapshot returns the latest snapshot or 404 before the first capture.
func (h *SnapshotHandler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_snapshot"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	snap, ok := h.deps.Snapshot(r.Context())
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", wrapKind(op, ErrNotFound, nil))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SessionHandler handles GET /session.
type SessionHandler struct {
	deps SessionDependencies
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(deps SessionDependencies) *SessionHandler {
	return &SessionHandler{deps: deps}
}

// HandleGetSession returns the current session view.
func (h *SessionHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Session(r.Context()))
}
