package boards

import (
	"context"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"jobbot/internal/documents"
	"jobbot/internal/postings"
	"jobbot/internal/shared/telemetry"
)

const (
	linkedInBaseURL  = "https://www.linkedin.com"
	linkedInPageSize = 25
	loginSettle      = 5 * time.Second
	pageSettle       = 3 * time.Second
)

var (
	linkedInUsername    = "#username"
	linkedInPassword    = "#password"
	linkedInLoginSubmit = CSS(`button[type="submit"]`)
	linkedInEasyApply   = CSS(`button[aria-label*="Easy Apply"]`)
	linkedInApplied     = WithText("button, span.artdeco-inline-feedback__message", "Applied")
	linkedInForm        = form{
		board:      postings.BoardLinkedIn,
		coverLimit: 500,
		submit:     CSS(`button[aria-label*="Submit application"]`),
		advance: []Locator{
			CSS(`button[aria-label*="Continue to next step"], button[aria-label*="Next"]`),
			CSS(`button[aria-label*="Review"]`),
		},
		success: WithText("h2, h3", "Application sent"),
	}
	throttleBanner = WithText("h1, h2, main", "Too Many Requests", "too many requests", "unusual activity")
)

type LinkedInOptions struct {
	// BaseURL overrides the site root, for tests.
	BaseURL  string
	Email    string
	Password string
}

type LinkedIn struct {
	deps    Deps
	browser Browser
	opts    LinkedInOptions
	listing listing

	mu       sync.Mutex
	loggedIn bool
}

func NewLinkedIn(deps Deps, browser Browser, opts LinkedInOptions) *LinkedIn {
	if opts.BaseURL == "" {
		opts.BaseURL = linkedInBaseURL
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	l := &LinkedIn{deps: deps, browser: browser, opts: opts}
	l.listing = listing{
		deps:     deps,
		board:    postings.BoardLinkedIn,
		pageSize: linkedInPageSize,
		card:     ".job-search-card",
		pageURL: func(c Criteria, offset int) string {
			q := url.Values{}
			q.Set("keywords", c.Keyword)
			q.Set("location", c.Location)
			if tpr := linkedInPostedWithin(c.DatePosted); tpr != "" {
				q.Set("f_TPR", tpr)
			}
			q.Set("start", strconv.Itoa(offset))
			return base + "/jobs/search?" + q.Encode()
		},
		parse: parseLinkedInCard,
	}
	return l
}

func (l *LinkedIn) Board() postings.Board { return postings.BoardLinkedIn }

func (l *LinkedIn) Search(ctx context.Context, c Criteria) iter.Seq2[postings.JobPosting, error] {
	return l.listing.search(ctx, c)
}

func (l *LinkedIn) Apply(ctx context.Context, p postings.JobPosting, docs documents.Bundle) (postings.ApplicationResult, error) {
	if err := l.login(ctx); err != nil {
		return l.deps.failed(p, err)
	}
	if err := l.deps.acquire(ctx); err != nil {
		return l.deps.failed(p, err)
	}
	if err := l.browser.Navigate(ctx, p.URL); err != nil {
		return l.deps.failed(p, err)
	}
	if err := l.deps.pause(ctx, pageSettle); err != nil {
		return l.deps.failed(p, err)
	}
	if err := checkThrottled(ctx, l.browser, postings.BoardLinkedIn); err != nil {
		return l.deps.failed(p, err)
	}

	opened, err := l.browser.Click(ctx, linkedInEasyApply)
	if err != nil {
		return l.deps.failed(p, err)
	}
	if !opened {
		applied, err := l.browser.Exists(ctx, linkedInApplied)
		if err != nil {
			return l.deps.failed(p, err)
		}
		if applied {
			return l.deps.newResult(p, postings.OutcomeAlreadyApplied, "Already applied to this job"), nil
		}
		return l.deps.failed(p, &FormError{Board: postings.BoardLinkedIn, Missing: "Easy Apply button"})
	}
	return linkedInForm.run(ctx, l.deps, l.browser, p, docs)
}

// login signs in once per process. A failed login is retried on the next Apply.
func (l *LinkedIn) login(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loggedIn {
		return nil
	}
	if l.opts.Email == "" || l.opts.Password == "" {
		return &AuthenticationError{Board: postings.BoardLinkedIn, Reason: "credentials not configured"}
	}
	if err := l.deps.acquire(ctx); err != nil {
		return err
	}
	if err := l.browser.Navigate(ctx, strings.TrimRight(l.opts.BaseURL, "/")+"/login"); err != nil {
		return err
	}
	n, err := l.browser.Fill(ctx, linkedInUsername, l.opts.Email)
	if err != nil {
		return err
	}
	if n == 0 {
		return &AuthenticationError{Board: postings.BoardLinkedIn, Reason: "login form not found"}
	}
	if _, err := l.browser.Fill(ctx, linkedInPassword, l.opts.Password); err != nil {
		return err
	}
	if _, err := l.browser.Click(ctx, linkedInLoginSubmit); err != nil {
		return err
	}
	if err := l.deps.pause(ctx, loginSettle); err != nil {
		return err
	}
	current, err := l.browser.CurrentURL(ctx)
	if err != nil {
		return err
	}
	if !strings.Contains(current, "feed") && !strings.Contains(current, "/in/") {
		telemetry.Warn("linkedin.login_failed", map[string]any{"url": current})
		return &AuthenticationError{Board: postings.BoardLinkedIn, Reason: "login did not reach the feed"}
	}
	l.loggedIn = true
	telemetry.Info("linkedin.logged_in", nil)
	return nil
}

func parseLinkedInCard(e *colly.HTMLElement) (postings.JobPosting, bool) {
	href := e.ChildAttr(".base-search-card__title a", "href")
	if href == "" {
		href = e.ChildAttr("a.base-card__full-link", "href")
	}
	title := text(e, ".base-search-card__title")
	if title == "" || href == "" {
		return postings.JobPosting{}, false
	}
	posted := e.ChildAttr(".job-search-card__listdate", "datetime")
	if posted == "" {
		posted = text(e, ".job-search-card__listdate")
	}
	return postings.JobPosting{
		Title:       title,
		Company:     text(e, ".base-search-card__subtitle"),
		Location:    text(e, ".job-search-card__location"),
		PostingDate: posted,
		URL:         e.Request.AbsoluteURL(href),
	}, true
}

func linkedInPostedWithin(datePosted string) string {
	switch datePosted {
	case "today":
		return "r86400"
	case "week":
		return "r604800"
	case "month":
		return "r2592000"
	default:
		return ""
	}
}

// checkThrottled turns a challenge page or throttle banner into a RateLimitError.
func checkThrottled(ctx context.Context, b Browser, board postings.Board) error {
	current, err := b.CurrentURL(ctx)
	if err != nil {
		return err
	}
	if strings.Contains(current, "/checkpoint/challenge") || strings.Contains(current, "captcha") {
		return &RateLimitError{Board: board}
	}
	banner, err := b.Exists(ctx, throttleBanner)
	if err != nil {
		return err
	}
	if banner {
		return &RateLimitError{Board: board}
	}
	return nil
}
