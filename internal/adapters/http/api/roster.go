package api

import (
	"context"
	"net/http"
	"strconv"
)

// RosterDependencies defines the interface for roster ranking reads.
type RosterDependencies interface {
	TopN(ctx context.Context, n int) ([]Entry, error)
}

// RosterHandler handles roster requests.
type RosterHandler struct {
	deps     RosterDependencies
	maxLimit int
}

// NewRosterHandler creates a new roster handler.
func NewRosterHandler(deps RosterDependencies, maxLimit int) *RosterHandler {
	return &RosterHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetRoster handles GET /roster?limit=N. A missing limit means maxLimit.
func (h *RosterHandler) HandleGetRoster(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_roster"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	n := h.maxLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		v, err := strconv.Atoi(limitStr)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
			return
		}
		if v > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", wrapKind(op, ErrBadRequest, nil))
			return
		}
		n = v
	}
	entries, err := h.deps.TopN(r.Context(), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
