package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/squadwatch/internal/adapters/publisher"
	"github.com/okian/squadwatch/internal/adapters/source"
	app "github.com/okian/squadwatch/internal/app"
	"github.com/okian/squadwatch/internal/config"
	"github.com/okian/squadwatch/internal/domain/window"
	"github.com/okian/squadwatch/pkg/logger"
)

func millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// newFetcher builds both upstream clients from cfg.
func newFetcher(cfg *config.Config, lg logger.Logger) *source.Fetcher {
	openFor := time.Duration(cfg.BreakerOpenSec) * time.Second

	listing := source.NewListingClient(cfg.ListingURL,
		source.WithListingHTTPClient(&http.Client{Timeout: millis(cfg.ListingTimeoutMS)}),
		source.WithPageCap(cfg.ListingPageCap),
		source.WithPageSize(cfg.ListingPageSize),
		source.WithRateLimit(cfg.ListingRPS),
		source.WithPageCacheTTL(time.Duration(cfg.ListingCacheTTLSec)*time.Second),
		source.WithListingBreaker(cfg.BreakerFailures, openFor),
		source.WithListingLogger(lg.Named("listing")),
	)
	detail := source.NewDetailClient(cfg.DetailURL,
		source.WithDetailHTTPClient(&http.Client{Timeout: millis(cfg.DetailTimeoutMS)}),
		source.WithScoreAnchor(cfg.DetailScoreAnchor),
		source.WithMinPlausibleScore(cfg.MinPlausibleScore),
		source.WithDetailBreaker(cfg.BreakerFailures, openFor),
		source.WithDetailLogger(lg.Named("detail")),
	)
	return source.NewFetcher(listing, detail,
		source.WithTimeouts(millis(cfg.ListingTimeoutMS), millis(cfg.DetailTimeoutMS)),
		source.WithFetcherLogger(lg.Named("fetcher")),
	)
}

// newPublisher selects the summary channel named by cfg.Publisher.
func newPublisher(cfg *config.Config, lg logger.Logger) (publisher.Publisher, error) {
	switch cfg.Publisher {
	case "", "log":
		return publisher.NewLog(lg.Named("summary")), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		return publisher.NewRedis(client, cfg.RedisChannel, cfg.RedisSummaryKey), nil
	case "webhook":
		return publisher.NewWebhook(cfg.WebhookURL, millis(cfg.WebhookTimeoutMS)), nil
	default:
		return nil, fmt.Errorf("%w: unknown publisher %q", config.ErrInvalidConfig, cfg.Publisher)
	}
}

// newService wires a tracker for cfg. It is not started.
func newService(cfg *config.Config, lg logger.Logger, extra ...app.Option) (*app.Service, error) {
	sched, err := window.Daily(cfg.EarlyStartHour, cfg.LateStartHour, cfg.WindowHours)
	if err != nil {
		return nil, fmt.Errorf("build window schedule: %w", err)
	}
	pub, err := newPublisher(cfg, lg)
	if err != nil {
		return nil, err
	}
	opts := []app.Option{
		app.WithLogger(lg),
		app.WithEntity(cfg.Entity),
		app.WithDataDir(cfg.DataDir),
		app.WithFetcher(newFetcher(cfg, lg)),
		app.WithPublisher(pub),
		app.WithServiceSchedule(sched),
		app.WithPollInterval(cfg.PollInterval(), cfg.PollJitter),
		app.WithServiceGracePeriod(cfg.GracePeriod()),
		app.WithQueueSize(cfg.NoticeQueueSize),
		app.WithWorkerCount(cfg.NoticeWorkers),
		app.WithDedupeSize(cfg.DedupeSize),
	}
	return app.New(append(opts, extra...)...), nil
}
