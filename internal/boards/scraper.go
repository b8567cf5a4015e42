package boards

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"jobbot/internal/postings"
	"jobbot/internal/retry"
	"jobbot/internal/shared/telemetry"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// statusThrottled is what LinkedIn answers instead of 429.
const statusThrottled = 999

// listing describes how one board's search result pages are fetched and read.
type listing struct {
	deps     Deps
	board    postings.Board
	pageSize int
	card     string
	pageURL  func(c Criteria, offset int) string
	parse    func(e *colly.HTMLElement) (postings.JobPosting, bool)
}

// search pages through results until the limit, an empty page, or the consumer stops.
func (l listing) search(ctx context.Context, c Criteria) iter.Seq2[postings.JobPosting, error] {
	return func(yield func(postings.JobPosting, error) bool) {
		limit := c.limit()
		emitted := 0
		for offset := 0; emitted < limit; offset += l.pageSize {
			pageURL := l.pageURL(c, offset)
			items, err := l.fetch(ctx, pageURL)
			if err != nil {
				yield(postings.JobPosting{}, err)
				return
			}
			telemetry.Info("search.page", map[string]any{
				"board":  string(l.board),
				"url":    pageURL,
				"offset": offset,
				"found":  len(items),
			})
			if len(items) == 0 {
				return
			}
			for _, p := range items {
				if !yield(p, nil) {
					return
				}
				emitted++
				if emitted >= limit {
					return
				}
			}
			if len(items) < l.pageSize {
				return
			}
		}
	}
}

// fetch downloads and parses one result page. Every attempt takes a limiter permit.
func (l listing) fetch(ctx context.Context, pageURL string) ([]postings.JobPosting, error) {
	deps := l.deps
	var items []postings.JobPosting
	err := deps.Retry.Do(ctx, func(ctx context.Context) error {
		items = items[:0]
		if err := deps.acquire(ctx); err != nil {
			return retry.Permanent(err)
		}

		reqCtx, cancel := context.WithTimeout(ctx, deps.timeout())
		defer cancel()

		ua := deps.UserAgent
		if ua == "" {
			ua = defaultUserAgent
		}
		c := colly.NewCollector(
			colly.UserAgent(ua),
			colly.AllowURLRevisit(),
		)
		c.WithTransport(ctxTransport{ctx: reqCtx, base: http.DefaultTransport})
		c.SetRequestTimeout(deps.timeout())
		c.OnRequest(func(r *colly.Request) {
			r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
			r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		})
		c.OnHTML(l.card, func(e *colly.HTMLElement) {
			p, ok := l.parse(e)
			if !ok {
				return
			}
			p.Board = l.board
			p.JobID = postings.JobID(p.Title, p.Company, p.URL)
			p.Status = postings.StatusNotApplied
			p.ScrapedDate = deps.now().UTC()
			items = append(items, p)
		})

		var (
			status     int
			retryAfter string
		)
		c.OnError(func(r *colly.Response, _ error) {
			if r == nil {
				return
			}
			status = r.StatusCode
			if r.Headers != nil {
				retryAfter = r.Headers.Get("Retry-After")
			}
		})

		err := c.Visit(pageURL)
		if err == nil {
			return nil
		}
		switch {
		case status == http.StatusTooManyRequests || status == statusThrottled:
			return &RateLimitError{Board: l.board, Status: status, RetryAfter: parseRetryAfter(retryAfter, deps.now())}
		case status >= 400 && status < 500:
			return retry.Permanent(fmt.Errorf("%s search %s: http %d", l.board, pageURL, status))
		case status >= 500:
			return fmt.Errorf("%s search %s: http %d", l.board, pageURL, status)
		}
		if ctxErr := reqCtx.Err(); ctxErr != nil && ctx.Err() == nil {
			return fmt.Errorf("%s search %s: %w", l.board, pageURL, ctxErr)
		}
		return fmt.Errorf("%s search %s: %w", l.board, pageURL, err)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ctxTransport binds every request a collector sends to ctx.
type ctxTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(raw string, now time.Time) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

func text(e *colly.HTMLElement, selector string) string {
	return strings.Join(strings.Fields(e.ChildText(selector)), " ")
}
