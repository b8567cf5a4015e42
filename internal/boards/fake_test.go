package boards

import (
	"context"
	"sync"
	"time"

	"jobbot/internal/retry"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

type countingAcquirer struct {
	mu    sync.Mutex
	calls int
}

func (a *countingAcquirer) Acquire(ctx context.Context) error {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return ctx.Err()
}

func (a *countingAcquirer) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func testDeps(clock *fakeClock, limiter Acquirer) Deps {
	return Deps{
		Limiter: limiter,
		Retry:   retry.Policy{Attempts: 3, Base: time.Millisecond, Sleep: clock.Sleep},
		Timeout: 5 * time.Second,
		Pause:   clock.Sleep,
		Now:     clock.Now,
		NewID:   func() string { return "result-1" },
	}
}

// fakeBrowser is a scripted page. Elements are keyed by Locator.String(), which for a plain
// selector is the selector itself.
type fakeBrowser struct {
	url        string
	visible    map[string]bool
	onClick    map[string]func(*fakeBrowser)
	onNavigate func(f *fakeBrowser, url string)

	navigated []string
	clicked   []string
	filled    map[string]string
	uploads   []string
	// urlErrs are returned by CurrentURL, one per call, before it reports f.url again.
	urlErrs []error
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		visible: map[string]bool{},
		onClick: map[string]func(*fakeBrowser){},
		filled:  map[string]string{},
	}
}

func (f *fakeBrowser) show(locs ...Locator) {
	for _, l := range locs {
		f.visible[l.String()] = true
	}
}

func (f *fakeBrowser) hide(locs ...Locator) {
	for _, l := range locs {
		delete(f.visible, l.String())
	}
}

func (f *fakeBrowser) on(loc Locator, fn func(*fakeBrowser)) {
	f.onClick[loc.String()] = fn
}

func (f *fakeBrowser) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.navigated = append(f.navigated, url)
	f.url = url
	if f.onNavigate != nil {
		f.onNavigate(f, url)
	}
	return nil
}

func (f *fakeBrowser) CurrentURL(ctx context.Context) (string, error) {
	if len(f.urlErrs) > 0 {
		err := f.urlErrs[0]
		f.urlErrs = f.urlErrs[1:]
		return "", err
	}
	return f.url, ctx.Err()
}

func (f *fakeBrowser) Exists(ctx context.Context, loc Locator) (bool, error) {
	return f.visible[loc.String()], ctx.Err()
}

func (f *fakeBrowser) Click(ctx context.Context, loc Locator) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key := loc.String()
	if !f.visible[key] {
		return false, nil
	}
	f.clicked = append(f.clicked, key)
	if fn := f.onClick[key]; fn != nil {
		fn(f)
	}
	return true, nil
}

func (f *fakeBrowser) Fill(ctx context.Context, selector, value string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !f.visible[selector] || f.filled[selector] != "" {
		return 0, nil
	}
	f.filled[selector] = value
	return 1, nil
}

func (f *fakeBrowser) ChooseFirstOption(ctx context.Context, selector string) (int, error) {
	if f.visible[selector] {
		return 1, ctx.Err()
	}
	return 0, ctx.Err()
}

func (f *fakeBrowser) Upload(ctx context.Context, selector, path string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !f.visible[selector] {
		return 0, nil
	}
	f.uploads = append(f.uploads, path)
	return 1, nil
}

var _ Browser = (*fakeBrowser)(nil)
