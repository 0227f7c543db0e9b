package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/okian/squadwatch/internal/adapters/eventlog"
	"github.com/okian/squadwatch/internal/adapters/http/api"
	"github.com/okian/squadwatch/internal/adapters/http/swagger"
	"github.com/okian/squadwatch/internal/adapters/store"
	app "github.com/okian/squadwatch/internal/app"
	"github.com/okian/squadwatch/internal/config"
	"github.com/okian/squadwatch/internal/domain/session"
	"github.com/okian/squadwatch/pkg/logger"
	"github.com/okian/squadwatch/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	_ = godotenv.Load(".env")

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serveCommand := serveCmd()
	root := &cobra.Command{
		Use:           "squadwatch",
		Short:         "Track a squadron's score, roster and play sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveCommand.RunE,
	}
	root.AddCommand(serveCommand, replayCmd(), archiveCmd())
	return root
}

// setup initializes logging and loads configuration, applying the
// configured level and format.
func setup(ctx context.Context) (*config.Config, error) {
	if err := logger.Init(); err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	lg := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		lg.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	if err := logger.SetFormat(cfg.LogFormat); err != nil {
		lg.Warn(ctx, "invalid log_format; keeping text", logger.String("log_format", cfg.LogFormat), logger.Error(err))
	}
	return cfg, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tracker and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Our own system gauges replace the default Go collectors.
			prometheus.Unregister(collectors.NewGoCollector())
			prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := setup(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	lg := logger.Get()

	svc, err := newService(cfg, lg)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	newAPIServer(cfg, svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		lg.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("entity", cfg.Entity))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	}
	lg.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	lg.Info(ctx, "server stopped")
	return nil
}

func newAPIServer(cfg *config.Config, svc *app.Service) *api.Server {
	return api.NewServer(svc, svc,
		api.WithMaxRosterLimit(cfg.MaxRosterLimit),
		api.WithMaxEventsLimit(cfg.MaxEventsLimit),
	)
}

func replayCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild a session from the event log and print its summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := setup(ctx)
			if err != nil {
				return err
			}
			log, err := eventlog.Open(ctx, cfg.DataDir)
			if err != nil {
				return fmt.Errorf("open event log: %w", err)
			}
			events, err := log.ForWindow(ctx, key)
			if err != nil {
				return fmt.Errorf("read window %s: %w", key, err)
			}
			st := session.Replay(events, key)
			if !st.Started() {
				return fmt.Errorf("no session recorded for window %s", key)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), session.Summary(cfg.Entity, st))
			return err
		},
	}
	cmd.Flags().StringVar(&key, "window", "", "window key, e.g. 2026-10-18|early")
	_ = cmd.MarkFlagRequired("window")
	return cmd
}

func archiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Archive the live snapshot if it was taken on an earlier day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := setup(ctx)
			if err != nil {
				return err
			}
			snapshots, err := store.NewSnapshotStore(ctx, cfg.DataDir)
			if err != nil {
				return err
			}
			latest, found := snapshots.Latest()
			archived, err := snapshots.ArchiveIfStale(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case archived:
				_, err = fmt.Fprintf(out, "archived %s\n", snapshots.ArchivePath(latest.Date()))
			case !found:
				_, err = fmt.Fprintln(out, "no snapshot to archive")
			default:
				_, err = fmt.Fprintf(out, "snapshot from %s is current or already archived\n", latest.Date())
			}
			return err
		},
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
