package source

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/squadwatch/internal/adapters/cache"
	"github.com/okian/squadwatch/pkg/logger"
)

// ListingOption configures a ListingClient.
type ListingOption func(*ListingClient)

// WithListingHTTPClient replaces the HTTP client.
func WithListingHTTPClient(hc *http.Client) ListingOption {
	return func(c *ListingClient) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithPageCap bounds how many pages Lookup scans.
func WithPageCap(n int) ListingOption {
	return func(c *ListingClient) {
		if n > 0 {
			c.pageCap = n
		}
	}
}

// WithPageSize is used to derive ranks when rows carry no position.
func WithPageSize(n int) ListingOption {
	return func(c *ListingClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRateLimit sets requests per second; zero or less disables limiting.
func WithRateLimit(rps float64) ListingOption {
	return func(c *ListingClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithPageCacheTTL sets the page cache TTL.
func WithPageCacheTTL(ttl time.Duration) ListingOption {
	return func(c *ListingClient) {
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithPageCache injects a page cache, e.g. one with a fake clock.
func WithPageCache(pages *cache.Cache[int, []Row]) ListingOption {
	return func(c *ListingClient) { c.pages = pages }
}

// WithListingBreaker configures the circuit breaker.
func WithListingBreaker(failures int, openFor time.Duration) ListingOption {
	return func(c *ListingClient) {
		c.breakerFailures, c.breakerOpen = failures, openFor
	}
}

// WithListingLogger sets the logger.
func WithListingLogger(l logger.Logger) ListingOption {
	return func(c *ListingClient) {
		if l != nil {
			c.log = l
		}
	}
}

// DetailOption configures a DetailClient.
type DetailOption func(*DetailClient)

// WithDetailHTTPClient replaces the HTTP client.
func WithDetailHTTPClient(hc *http.Client) DetailOption {
	return func(c *DetailClient) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithScoreAnchor sets the label the score follows.
func WithScoreAnchor(anchor string) DetailOption {
	return func(c *DetailClient) { c.anchor = anchor }
}

// WithMinPlausibleScore sets the floor used by the fallback heuristic.
func WithMinPlausibleScore(n int64) DetailOption {
	return func(c *DetailClient) {
		if n > 0 {
			c.minPlausible = n
		}
	}
}

// WithDetailBreaker configures the circuit breaker.
func WithDetailBreaker(failures int, openFor time.Duration) DetailOption {
	return func(c *DetailClient) {
		c.breakerFailures, c.breakerOpen = failures, openFor
	}
}

// WithDetailLogger sets the logger.
func WithDetailLogger(l logger.Logger) DetailOption {
	return func(c *DetailClient) {
		if l != nil {
			c.log = l
		}
	}
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithTimeouts sets the per-source timeouts.
func WithTimeouts(listing, detail time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if listing > 0 {
			f.listingTimeout = listing
		}
		if detail > 0 {
			f.detailTimeout = detail
		}
	}
}

// WithFetcherClock replaces time.Now for reading timestamps.
func WithFetcherClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) {
		if now != nil {
			f.now = now
		}
	}
}

// WithFetcherLogger sets the logger.
func WithFetcherLogger(l logger.Logger) FetcherOption {
	return func(f *Fetcher) {
		if l != nil {
			f.log = l
		}
	}
}
