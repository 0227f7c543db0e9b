package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/okian/squadwatch/internal/adapters/cache"
	"github.com/okian/squadwatch/internal/domain/model"
	"github.com/okian/squadwatch/pkg/logger"
	"github.com/okian/squadwatch/pkg/metrics"
)

// Listing defaults.
const (
	defaultPageCap  = 50
	defaultPageSize = 20
	defaultRPS      = 2
	pagePlaceholder = "{page}"
)

// Row is one entry of a ranked listing page.
type Row struct {
	Name   string `json:"name"`
	Tag    string `json:"tag"`
	Pos    *int   `json:"pos"` // zero-based position when present
	Points int64  `json:"points"`
}

type listingPage struct {
	Status string `json:"status"`
	Data   []Row  `json:"data"`
}

// Standing is where the entity sits in the ranked listing.
type Standing struct {
	Score int64
	Rank  int
	Page  int
	Above *int64
	Below *int64
}

// ListingClient walks the paginated ranked listing.
type ListingClient struct {
	hc       *http.Client
	url      string
	pageCap  int
	pageSize int
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	pages    *cache.Cache[int, []Row]
	log      logger.Logger

	cacheTTL        time.Duration
	breakerFailures int
	breakerOpen     time.Duration
}

// NewListingClient creates a client for a URL template containing {page}.
func NewListingClient(urlTemplate string, opts ...ListingOption) *ListingClient {
	c := &ListingClient{
		hc:       &http.Client{Timeout: 30 * time.Second},
		url:      urlTemplate,
		pageCap:  defaultPageCap,
		pageSize: defaultPageSize,
		limiter:  rate.NewLimiter(rate.Limit(defaultRPS), 1),
		log:      logger.Get().Named("listing"),
		cacheTTL: cache.DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = newBreaker(model.SourceAPI, c.breakerFailures, c.breakerOpen)
	if c.pages == nil {
		c.pages = cache.New[int, []Row](cache.WithTTL(c.cacheTTL))
	}
	return c
}

// Lookup locates entity by name or tag, case-insensitively, scanning pages
// from the first until found or the page cap is reached.
func (c *ListingClient) Lookup(ctx context.Context, entity string) (Standing, error) {
	c.pages.Evict()
	for p := 1; p <= c.pageCap; p++ {
		rows, err := c.Page(ctx, p)
		if err != nil {
			return Standing{}, err
		}
		if len(rows) == 0 {
			break
		}
		for i, r := range rows {
			if !matches(r, entity) {
				continue
			}
			st := Standing{Score: r.Points, Page: p, Rank: c.rank(r, p, i)}
			st.Above = c.above(ctx, rows, p, i)
			st.Below = c.below(ctx, rows, p, i)
			return st, nil
		}
	}
	return Standing{}, fmt.Errorf("%w: %q within %d pages", ErrEntityNotFound, entity, c.pageCap)
}

// Page returns one listing page through the TTL cache.
func (c *ListingClient) Page(ctx context.Context, page int) ([]Row, error) {
	return c.pages.GetOrLoad(ctx, page, c.fetchPage)
}

func (c *ListingClient) fetchPage(ctx context.Context, page int) ([]Row, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		body, err := get(ctx, c.hc, c.limiter, strings.ReplaceAll(c.url, pagePlaceholder, strconv.Itoa(page)))
		if err != nil {
			return nil, err
		}
		metrics.RecordListingPageRead()
		var lp listingPage
		if err := json.Unmarshal(body, &lp); err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", ErrBadPayload, page, err)
		}
		if lp.Status != "" && lp.Status != "ok" {
			return nil, fmt.Errorf("%w: page %d: status %q", ErrBadPayload, page, lp.Status)
		}
		return lp.Data, nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing page %d: %w", page, err)
	}
	return out.([]Row), nil
}

func (c *ListingClient) rank(r Row, page, i int) int {
	if r.Pos != nil {
		return *r.Pos + 1
	}
	return (page-1)*c.pageSize + i + 1
}

func (c *ListingClient) above(ctx context.Context, rows []Row, page, i int) *int64 {
	if i > 0 {
		return ptr(rows[i-1].Points)
	}
	if page == 1 {
		return nil
	}
	prev, err := c.Page(ctx, page-1)
	if err != nil || len(prev) == 0 {
		if err != nil && !errors.Is(err, context.Canceled) {
			c.log.Debug(ctx, "neighbor above unavailable", logger.Int("page", page-1), logger.Error(err))
		}
		return nil
	}
	return ptr(prev[len(prev)-1].Points)
}

func (c *ListingClient) below(ctx context.Context, rows []Row, page, i int) *int64 {
	if i < len(rows)-1 {
		return ptr(rows[i+1].Points)
	}
	if page >= c.pageCap {
		return nil
	}
	next, err := c.Page(ctx, page+1)
	if err != nil || len(next) == 0 {
		if err != nil && !errors.Is(err, context.Canceled) {
			c.log.Debug(ctx, "neighbor below unavailable", logger.Int("page", page+1), logger.Error(err))
		}
		return nil
	}
	return ptr(next[0].Points)
}

func matches(r Row, entity string) bool {
	entity = strings.TrimSpace(entity)
	return strings.EqualFold(r.Name, entity) || strings.EqualFold(strings.Trim(r.Tag, "[]=^ "), strings.Trim(entity, "[]=^ "))
}

func ptr(v int64) *int64 { return &v }
