package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/squadwatch/internal/adapters/eventlog"
	"github.com/okian/squadwatch/internal/adapters/publisher"
	"github.com/okian/squadwatch/internal/adapters/store"
	"github.com/okian/squadwatch/internal/config"
	"github.com/okian/squadwatch/internal/domain/model"
	"github.com/okian/squadwatch/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func run(args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		root := newRootCmd()

		convey.Convey("Then it exposes serve, replay and archive", func() {
			names := map[string]bool{}
			for _, c := range root.Commands() {
				names[c.Name()] = true
			}
			convey.So(names["serve"], convey.ShouldBeTrue)
			convey.So(names["replay"], convey.ShouldBeTrue)
			convey.So(names["archive"], convey.ShouldBeTrue)
			convey.So(root.RunE, convey.ShouldNotBeNil)
		})

		convey.Convey("Then replay requires a window flag", func() {
			_, err := run("replay")
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "window")
		})
	})
}

func TestNewPublisher(t *testing.T) {
	convey.Convey("Given a config", t, func() {
		cfg := config.New()
		cfg.Entity = "ABC"
		lg := logger.Nop()

		convey.Convey("When the log publisher is selected", func() {
			p, err := newPublisher(cfg, lg)
			convey.So(err, convey.ShouldBeNil)
			_, ok := p.(*publisher.Log)
			convey.So(ok, convey.ShouldBeTrue)
		})

		convey.Convey("When the redis publisher is selected", func() {
			cfg.Publisher = "redis"
			cfg.RedisAddr = "localhost:6379"
			p, err := newPublisher(cfg, lg)
			convey.So(err, convey.ShouldBeNil)
			_, ok := p.(*publisher.Redis)
			convey.So(ok, convey.ShouldBeTrue)
		})

		convey.Convey("When the webhook publisher is selected", func() {
			cfg.Publisher = "webhook"
			cfg.WebhookURL = "http://hooks.local/summary"
			p, err := newPublisher(cfg, lg)
			convey.So(err, convey.ShouldBeNil)
			_, ok := p.(*publisher.Webhook)
			convey.So(ok, convey.ShouldBeTrue)
		})

		convey.Convey("When the publisher is unknown", func() {
			cfg.Publisher = "fax"
			_, err := newPublisher(cfg, lg)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestReplayCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SQUADWATCH_ENTITY", "ABC")
	t.Setenv("SQUADWATCH_DATA_DIR", dir)

	const key = "2026-10-18|early"
	ctx := context.Background()
	start := time.Date(2026, 10, 18, 1, 5, 0, 0, time.UTC)

	l, err := eventlog.Open(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range []model.Event{
		{Type: model.EventSessionStart, TS: start, WindowKey: key, SessionStart: &model.SessionStart{BaselineScore: 1000, BaselinePos: 12}},
		{Type: model.EventPointsChange, TS: start.Add(time.Minute), WindowKey: key, PointsChange: &model.PointsChange{Delta: 20, From: 1000, To: 1020, WonCount: 1}},
		{Type: model.EventPointsChange, TS: start.Add(2 * time.Minute), WindowKey: key, PointsChange: &model.PointsChange{Delta: -5, From: 1020, To: 1015, LostCount: 1}},
	} {
		if _, err := l.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	convey.Convey("Given an event log with one session", t, func() {
		convey.Convey("When replaying its window", func() {
			out, err := run("replay", "--window", key)

			convey.Convey("Then the summary is printed", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "ABC session "+key)
				convey.So(out, convey.ShouldContainSubstring, "score: 1000 -> 1015 (+15)")
				convey.So(out, convey.ShouldContainSubstring, "wins: 1 losses: 1")
			})
		})

		convey.Convey("When replaying a window with no session", func() {
			_, err := run("replay", "--window", "2026-10-18|late")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestArchiveCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SQUADWATCH_ENTITY", "ABC")
	t.Setenv("SQUADWATCH_DATA_DIR", dir)

	convey.Convey("Given a data directory", t, func() {
		convey.Convey("When there is no snapshot", func() {
			out, err := run("archive")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, "no snapshot to archive")
		})

		convey.Convey("When the live snapshot is from an earlier day", func() {
			taken := time.Now().UTC().AddDate(0, 0, -1)
			snap := model.Snapshot{
				Timestamp:  taken,
				Roster:     []model.Member{{Name: "A", Score: 100}},
				TotalScore: 100,
			}
			convey.So(store.WriteJSON(filepath.Join(dir, store.SnapshotFile), snap), convey.ShouldBeNil)

			out, err := run("archive")

			convey.Convey("Then it is copied into the archive", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "archived")
				_, statErr := os.Stat(filepath.Join(dir, store.ArchiveDir, "snapshot-"+snap.Date()+".json"))
				convey.So(statErr, convey.ShouldBeNil)

				again, err := run("archive")
				convey.So(err, convey.ShouldBeNil)
				convey.So(again, convey.ShouldContainSubstring, "already archived")
			})
		})
	})
}

func TestAPIServerWiring(t *testing.T) {
	convey.Convey("Given a configured but unstarted service", t, func() {
		cfg := config.New()
		cfg.Entity = "ABC"
		cfg.DataDir = t.TempDir()

		svc, err := newService(cfg, logger.Nop())
		convey.So(err, convey.ShouldBeNil)

		mux := http.NewServeMux()
		newAPIServer(cfg, svc).Register(context.Background(), mux)

		convey.Convey("Then health and stats are served", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)

			rec = httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
			convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			convey.So(rec.Body.String(), convey.ShouldContainSubstring, "ABC")
		})

		convey.Convey("Then the snapshot is absent before the first capture", func() {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))
			convey.So(rec.Code, convey.ShouldEqual, http.StatusNotFound)
		})
	})

	convey.Convey("Given an invalid window layout", t, func() {
		cfg := config.New()
		cfg.Entity = "ABC"
		cfg.LateStartHour = cfg.EarlyStartHour

		_, err := newService(cfg, logger.Nop())
		convey.So(err, convey.ShouldNotBeNil)
	})
}
