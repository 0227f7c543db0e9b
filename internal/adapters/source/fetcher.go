// Package source reads the entity's score from the two upstreams: a
// paginated ranked listing (JSON) and a detail page (HTML).
package source

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/squadwatch/internal/domain/model"
	"github.com/okian/squadwatch/pkg/logger"
	"github.com/okian/squadwatch/pkg/metrics"
)

// Fetch defaults.
const (
	defaultListingTimeout = 10 * time.Second
	defaultDetailTimeout  = 10 * time.Second
)

// Reading is one cycle's result from both sources. A nil value means the
// source failed; its error is kept alongside.
type Reading struct {
	API      *int64
	APITime  time.Time
	Web      *int64
	WebTime  time.Time
	Standing *Standing
	Roster   []model.Member
	APIErr   error
	WebErr   error
}

// Failed reports whether neither source produced a value.
func (r Reading) Failed() bool { return r.API == nil && r.Web == nil }

// Fetcher runs both sources concurrently, each under its own timeout.
type Fetcher struct {
	listing        *ListingClient
	detail         *DetailClient
	listingTimeout time.Duration
	detailTimeout  time.Duration
	now            func() time.Time
	log            logger.Logger
}

// NewFetcher combines a listing and a detail client.
func NewFetcher(listing *ListingClient, detail *DetailClient, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		listing:        listing,
		detail:         detail,
		listingTimeout: defaultListingTimeout,
		detailTimeout:  defaultDetailTimeout,
		now:            time.Now,
		log:            logger.Get().Named("fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchScore reads both sources. Failure of one never cancels or fails the
// other; callers check Reading.Failed.
func (f *Fetcher) FetchScore(ctx context.Context, entity string) Reading {
	var (
		r Reading
		g errgroup.Group
	)

	g.Go(func() error {
		cctx, cancel := context.WithTimeout(ctx, f.listingTimeout)
		defer cancel()
		start := time.Now()
		st, err := f.listing.Lookup(cctx, entity)
		observe(model.SourceAPI, start, err)
		if err != nil {
			r.APIErr = err
			return nil
		}
		r.API, r.APITime, r.Standing = ptr(st.Score), f.now(), &st
		return nil
	})

	g.Go(func() error {
		cctx, cancel := context.WithTimeout(ctx, f.detailTimeout)
		defer cancel()
		start := time.Now()
		d, err := f.detail.Fetch(cctx, entity)
		observe(model.SourceWeb, start, err)
		if err != nil {
			r.WebErr = err
			return nil
		}
		r.Web, r.WebTime, r.Roster = ptr(d.Score), f.now(), d.Roster
		return nil
	})

	// Both goroutines always return nil.
	_ = g.Wait()

	if r.APIErr != nil {
		f.log.Warn(ctx, "listing fetch failed", logger.String("entity", entity), logger.Error(r.APIErr))
	}
	if r.WebErr != nil {
		f.log.Warn(ctx, "detail fetch failed", logger.String("entity", entity), logger.Error(r.WebErr))
	}
	return r
}

func observe(source string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.RecordSourceFetch(source, result)
	metrics.RecordSourceFetchLatency(source, float64(time.Since(start).Milliseconds()))
}
