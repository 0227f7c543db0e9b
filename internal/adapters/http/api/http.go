// Package api serves the read-only HTTP surface over the tracker state.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/squadwatch/internal/domain/model"
	"github.com/okian/squadwatch/internal/domain/session"
	"github.com/okian/squadwatch/internal/domain/types"
)

// Entry mirrors the read shape returned by roster queries.
type Entry = types.Entry

// SessionView is the /session response.
type SessionView struct {
	Phase      string             `json:"phase"`
	Window     string             `json:"window,omitempty"`
	FinalizeAt *time.Time         `json:"finalize_at,omitempty"`
	State      *session.State     `json:"state,omitempty"`
	Summary    string             `json:"summary,omitempty"`
	Last       *model.LastSession `json:"last,omitempty"`
}

// Dependencies required by HTTP handlers.
type Dependencies interface {
	RosterDependencies
	RankDependencies
	SnapshotDependencies
	SessionDependencies
	EventsDependencies
}

// Server wires HTTP routes for the read API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	snapshotHandler *SnapshotHandler
	sessionHandler  *SessionHandler
	rosterHandler   *RosterHandler
	rankHandler     *RankHandler
	eventsHandler   *EventsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	cfg := settings{maxRosterLimit: defaultMaxRosterLimit, maxEventsLimit: defaultMaxEventsLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		snapshotHandler: NewSnapshotHandler(deps),
		sessionHandler:  NewSessionHandler(deps),
		rosterHandler:   NewRosterHandler(deps, cfg.maxRosterLimit),
		rankHandler:     NewRankHandler(deps),
		eventsHandler:   NewEventsHandler(deps, cfg.maxEventsLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/snapshot", MetricsMiddleware(s.snapshotHandler.HandleGetSnapshot, "snapshot"))
	mux.HandleFunc("/session", MetricsMiddleware(s.sessionHandler.HandleGetSession, "session"))
	mux.HandleFunc("/roster", MetricsMiddleware(s.rosterHandler.HandleGetRoster, "roster"))
	mux.HandleFunc("/rank/", MetricsMiddleware(s.rankHandler.HandleGetRank, "rank"))
	mux.HandleFunc("/events", MetricsMiddleware(s.eventsHandler.HandleGetEvents, "events"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
