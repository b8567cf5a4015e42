package boards

import (
	"context"
	"errors"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/oauth2/google"

	"jobbot/internal/documents"
	"jobbot/internal/postings"
	"jobbot/internal/shared/telemetry"
)

const (
	indeedBaseURL    = "https://www.indeed.com"
	indeedLoginURL   = "https://secure.indeed.com/account/login"
	indeedPageSize   = 10
	defaultOAuthWait = 60 * time.Second
	defaultOAuthPoll = 2 * time.Second
)

// AuthState is where the Indeed Google sign-in stands.
type AuthState string

const (
	AuthLoggedOut    AuthState = "logged_out"
	AuthOAuthPending AuthState = "oauth_pending"
	AuthLoggedIn     AuthState = "logged_in"
	// AuthFailed is terminal for the process.
	AuthFailed AuthState = "failed"
)

var (
	indeedAccount     = CSS(`button[aria-label*="Account"], [data-testid*="account"]`)
	indeedGoogle      = WithText("button, a", "Continue with Google", "Sign in with Google")
	indeedGoogleLink  = CSS(`a[href*="google"], button[data-tn-element*="google" i]`)
	indeedApplyNow    = WithText("button", "Apply now", "Apply Now")
	indeedApplyButton = CSS(`button[aria-label*="Apply now"], #indeedApplyButton`)
	indeedApplied     = WithText("button, span, h1, h2, h3", "Applied", "Application sent", "You applied")
	indeedForm        = form{
		board:        postings.BoardIndeed,
		coverLimit:   1000,
		fillLinkedIn: true,
		submit:       WithText("button", "Submit application", "Submit your application", "Submit Application"),
		advance: []Locator{
			WithText("button", "Continue", "Next"),
			WithText("button", "Review your application", "Review"),
		},
		success: WithText("h1, h2, h3, div", "Application submitted", "Application sent", "Your application has been submitted"),
	}
	// googleAuthHost is where the OAuth consent screen is served.
	googleAuthHost = hostOf(google.Endpoint.AuthURL)
)

type IndeedOptions struct {
	BaseURL  string
	LoginURL string
	// OAuthWait bounds how long a Google sign-in may take to finish.
	OAuthWait time.Duration
	PollEvery time.Duration
}

type Indeed struct {
	deps    Deps
	browser Browser
	opts    IndeedOptions
	listing listing

	mu    sync.Mutex
	state AuthState
}

func NewIndeed(deps Deps, browser Browser, opts IndeedOptions) *Indeed {
	if opts.BaseURL == "" {
		opts.BaseURL = indeedBaseURL
	}
	if opts.LoginURL == "" {
		opts.LoginURL = indeedLoginURL
	}
	if opts.OAuthWait <= 0 {
		opts.OAuthWait = defaultOAuthWait
	}
	if opts.PollEvery <= 0 {
		opts.PollEvery = defaultOAuthPoll
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	in := &Indeed{deps: deps, browser: browser, opts: opts, state: AuthLoggedOut}
	in.listing = listing{
		deps:     deps,
		board:    postings.BoardIndeed,
		pageSize: indeedPageSize,
		card:     "div.job_seen_beacon",
		pageURL: func(c Criteria, offset int) string {
			q := url.Values{}
			q.Set("q", c.Keyword)
			q.Set("l", c.Location)
			if days := indeedPostedWithin(c.DatePosted); days != "" {
				q.Set("fromage", days)
			}
			q.Set("sort", "date")
			q.Set("start", strconv.Itoa(offset))
			return base + "/jobs?" + q.Encode()
		},
		parse: parseIndeedCard,
	}
	return in
}

func (in *Indeed) Board() postings.Board { return postings.BoardIndeed }

// State reports the current sign-in state.
func (in *Indeed) State() AuthState {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

func (in *Indeed) Search(ctx context.Context, c Criteria) iter.Seq2[postings.JobPosting, error] {
	return in.listing.search(ctx, c)
}

func (in *Indeed) Apply(ctx context.Context, p postings.JobPosting, docs documents.Bundle) (postings.ApplicationResult, error) {
	if err := in.ensureLogin(ctx); err != nil {
		return in.deps.failed(p, err)
	}
	if err := in.deps.acquire(ctx); err != nil {
		return in.deps.failed(p, err)
	}
	if err := in.browser.Navigate(ctx, p.URL); err != nil {
		return in.deps.failed(p, err)
	}
	if err := in.deps.pause(ctx, pageSettle); err != nil {
		return in.deps.failed(p, err)
	}
	if err := checkThrottled(ctx, in.browser, postings.BoardIndeed); err != nil {
		return in.deps.failed(p, err)
	}

	opened := false
	for _, loc := range []Locator{indeedApplyNow, indeedApplyButton} {
		clicked, err := in.browser.Click(ctx, loc)
		if err != nil {
			return in.deps.failed(p, err)
		}
		if clicked {
			opened = true
			break
		}
	}
	if !opened {
		applied, err := in.browser.Exists(ctx, indeedApplied)
		if err != nil {
			return in.deps.failed(p, err)
		}
		if applied {
			return in.deps.newResult(p, postings.OutcomeAlreadyApplied, "Already applied to this job"), nil
		}
		return in.deps.failed(p, &FormError{Board: postings.BoardIndeed, Missing: "Apply button, may be an external application"})
	}
	return indeedForm.run(ctx, in.deps, in.browser, p, docs)
}

// ensureLogin drives logged_out -> oauth_pending -> logged_in | failed.
func (in *Indeed) ensureLogin(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	switch in.state {
	case AuthLoggedIn:
		return nil
	case AuthFailed:
		return &AuthenticationError{Board: postings.BoardIndeed, Reason: "google sign-in failed earlier in this process"}
	}

	err := in.signIn(ctx)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) && ctx.Err() != nil {
		in.setState(AuthLoggedOut)
	}
	return err
}

func (in *Indeed) signIn(ctx context.Context) error {
	if err := in.deps.acquire(ctx); err != nil {
		return err
	}
	if err := in.browser.Navigate(ctx, in.opts.LoginURL); err != nil {
		return err
	}
	if err := in.deps.pause(ctx, pageSettle); err != nil {
		return err
	}
	active, err := in.sessionActive(ctx)
	if err != nil {
		return err
	}
	if active {
		in.setState(AuthLoggedIn)
		return nil
	}

	clicked := false
	for _, loc := range []Locator{indeedGoogle, indeedGoogleLink} {
		ok, err := in.browser.Click(ctx, loc)
		if err != nil {
			return err
		}
		if ok {
			clicked = true
			break
		}
	}
	if !clicked {
		in.setState(AuthFailed)
		return &AuthenticationError{Board: postings.BoardIndeed, Reason: "google sign-in button not found"}
	}
	in.setState(AuthOAuthPending)

	// The OAuth flow is never restarted: anything short of caller cancellation is terminal.
	err = in.awaitOAuth(ctx)
	switch {
	case err == nil:
		in.setState(AuthLoggedIn)
		return nil
	case ctx.Err() != nil:
		return err
	}
	in.setState(AuthFailed)
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return err
	}
	return &AuthenticationError{Board: postings.BoardIndeed, Reason: "google sign-in interrupted", Err: err}
}

// awaitOAuth polls until the session is active or OAuthWait elapses.
func (in *Indeed) awaitOAuth(ctx context.Context) error {
	deadline := in.deps.now().Add(in.opts.OAuthWait)
	for {
		active, err := in.sessionActive(ctx)
		if err != nil {
			return err
		}
		if active {
			return nil
		}
		if !in.deps.now().Before(deadline) {
			return &AuthenticationError{
				Board:  postings.BoardIndeed,
				Reason: "google sign-in not completed within " + in.opts.OAuthWait.String(),
			}
		}
		if err := in.deps.pause(ctx, in.opts.PollEvery); err != nil {
			return err
		}
	}
}

// sessionActive reports whether the tab shows a signed-in Indeed page.
func (in *Indeed) sessionActive(ctx context.Context) (bool, error) {
	current, err := in.browser.CurrentURL(ctx)
	if err != nil {
		return false, err
	}
	host := hostOf(current)
	if host == googleAuthHost || !strings.HasSuffix(host, postings.BoardIndeed.Domain()) {
		return false, nil
	}
	if strings.Contains(current, "login") {
		return false, nil
	}
	return in.browser.Exists(ctx, indeedAccount)
}

func (in *Indeed) setState(s AuthState) {
	if in.state == s {
		return
	}
	telemetry.Info("indeed.auth_state", map[string]any{"from": string(in.state), "to": string(s)})
	in.state = s
}

func parseIndeedCard(e *colly.HTMLElement) (postings.JobPosting, bool) {
	href := e.ChildAttr("h2.jobTitle a", "href")
	title := e.ChildAttr("h2.jobTitle a span", "title")
	if title == "" {
		title = text(e, "h2.jobTitle")
	}
	if title == "" || href == "" {
		return postings.JobPosting{}, false
	}
	company := text(e, "span.companyName")
	if company == "" {
		company = text(e, `[data-testid="company-name"]`)
	}
	loc := text(e, "div.companyLocation")
	if loc == "" {
		loc = text(e, `[data-testid="text-location"]`)
	}
	return postings.JobPosting{
		Title:       title,
		Company:     company,
		Location:    loc,
		PostingDate: text(e, "span.date"),
		SalaryRange: text(e, "div.salary-snippet-container, span.salary-snippet"),
		URL:         e.Request.AbsoluteURL(href),
	}, true
}

func indeedPostedWithin(datePosted string) string {
	switch datePosted {
	case "today":
		return "1"
	case "week":
		return "7"
	case "month":
		return "30"
	default:
		return ""
	}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
