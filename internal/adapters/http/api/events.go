package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/squadwatch/internal/domain/model"
)

// EventsDependencies reads the event log.
type EventsDependencies interface {
	// Events returns events in time order, filtered to window when set.
	Events(ctx context.Context, window string) ([]model.Event, error)
}

// EventsHandler handles event log requests.
type EventsHandler struct {
	deps     EventsDependencies
	maxLimit int
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventsDependencies, maxLimit int) *EventsHandler {
	return &EventsHandler{deps: deps, maxLimit: maxLimit}
}

// HandleGetEvents handles GET /events?window=KEY&limit=N and returns the
// most recent limit events, oldest first.
func (h *EventsHandler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_events"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	q := r.URL.Query()
	limit := h.maxLimit
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
			return
		}
		limit = min(v, h.maxLimit)
	}
	events, err := h.deps.Events(r.Context(), q.Get("window"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
