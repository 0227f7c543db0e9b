package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/net/html"

	"github.com/okian/squadwatch/internal/domain/model"
	"github.com/okian/squadwatch/pkg/logger"
)

// Detail defaults.
const (
	defaultAnchor       = "Squadron rating"
	defaultMinPlausible = 100
	entityPlaceholder   = "{entity}"
	rosterCells         = 6
)

// Grouped thousands ("12 345", "12,345") or a plain run of digits.
var numberRe = regexp.MustCompile(`\d{1,3}(?:[ ,.\x{00a0}]\d{3})+|\d+`)

// Detail is what the detail page yields.
type Detail struct {
	Score int64
	// Anchored is false when the score came from the fallback heuristic.
	Anchored bool
	Roster   []model.Member
}

// DetailClient reads the entity's detail page.
type DetailClient struct {
	hc           *http.Client
	url          string
	anchor       string
	minPlausible int64
	breaker      *gobreaker.CircuitBreaker
	log          logger.Logger

	breakerFailures int
	breakerOpen     time.Duration
}

// NewDetailClient creates a client for a URL template containing {entity}.
func NewDetailClient(urlTemplate string, opts ...DetailOption) *DetailClient {
	c := &DetailClient{
		hc:           &http.Client{Timeout: 30 * time.Second},
		url:          urlTemplate,
		anchor:       defaultAnchor,
		minPlausible: defaultMinPlausible,
		log:          logger.Get().Named("detail"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = newBreaker(model.SourceWeb, c.breakerFailures, c.breakerOpen)
	return c
}

// Fetch downloads and parses the detail page for entity.
func (c *DetailClient) Fetch(ctx context.Context, entity string) (Detail, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		u := strings.ReplaceAll(c.url, entityPlaceholder, url.PathEscape(strings.TrimSpace(entity)))
		body, err := get(ctx, c.hc, nil, u)
		if err != nil {
			return nil, err
		}
		return c.Parse(bytes.NewReader(body))
	})
	if err != nil {
		return Detail{}, fmt.Errorf("detail page: %w", err)
	}
	d := out.(Detail)
	if !d.Anchored {
		c.log.Debug(ctx, "score anchor missing, used heuristic", logger.String("anchor", c.anchor), logger.Int64("score", d.Score))
	}
	return d, nil
}

// Parse extracts the score and roster from an HTML document.
func (c *DetailClient) Parse(r io.Reader) (Detail, error) {
	var (
		d        Detail
		pre      strings.Builder // text before the first roster row
		inRoster bool
		row      []string
		cell     *strings.Builder
		skip     int // depth inside script/style
	)

	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if z.Err() != io.EOF {
				return Detail{}, fmt.Errorf("%w: %w", ErrBadPayload, z.Err())
			}
			return c.finish(d, pre.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "tr":
				row = row[:0]
			case "td", "th":
				cell = &strings.Builder{}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "td", "th":
				if cell != nil {
					row = append(row, strings.TrimSpace(cell.String()))
					cell = nil
				}
			case "tr":
				if m, ok := parseMember(row); ok {
					inRoster = true
					d.Roster = append(d.Roster, m)
				} else if !inRoster {
					pre.WriteString(strings.Join(row, " "))
					pre.WriteByte(' ')
				}
				row = row[:0]
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			text := string(z.Text())
			switch {
			case cell != nil:
				cell.WriteString(text)
			case !inRoster:
				pre.WriteString(text)
				pre.WriteByte(' ')
			}
		}
	}
}

func (c *DetailClient) finish(d Detail, text string) (Detail, error) {
	text = strings.Join(strings.Fields(text), " ")
	if i := strings.Index(strings.ToLower(text), strings.ToLower(c.anchor)); i >= 0 && c.anchor != "" {
		if n, ok := firstNumber(text[i+len(c.anchor):]); ok {
			d.Score, d.Anchored = n, true
			return d, nil
		}
	}
	best, found := int64(0), false
	for _, m := range numberRe.FindAllString(text, -1) {
		n, ok := parseNumber(m)
		if !ok || n < c.minPlausible || isYear(m, n) {
			continue
		}
		if n > best {
			best, found = n, true
		}
	}
	if !found {
		return Detail{}, ErrScoreNotFound
	}
	d.Score = best
	return d, nil
}

// parseMember accepts rows shaped "#, name, score, activity, role, join date".
func parseMember(cells []string) (model.Member, bool) {
	if len(cells) != rosterCells {
		return model.Member{}, false
	}
	if _, err := strconv.Atoi(strings.TrimSuffix(cells[0], ".")); err != nil {
		return model.Member{}, false
	}
	score, ok := parseNumber(cells[2])
	if !ok || cells[1] == "" {
		return model.Member{}, false
	}
	activity, _ := parseNumber(cells[3])
	return model.Member{
		Name:     cells[1],
		Score:    score,
		Activity: activity,
		Role:     cells[4],
		JoinDate: cells[5],
	}, true
}

func firstNumber(s string) (int64, bool) {
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	return parseNumber(m)
}

func parseNumber(s string) (int64, bool) {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(b.String(), 10, 64)
	return n, err == nil
}

func isYear(raw string, n int64) bool {
	return len(raw) == 4 && n >= 1900 && n <= 2100
}
