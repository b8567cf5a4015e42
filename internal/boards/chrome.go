package boards

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"jobbot/internal/shared/telemetry"
)

type ChromeOptions struct {
	Headless  bool
	ExecPath  string
	UserAgent string
	// Timeout bounds each browser action.
	Timeout time.Duration
}

// Chrome drives a single Chrome tab through chromedp. The browser is started on first use
// and shared by every automator until Close.
type Chrome struct {
	opts ChromeOptions

	mu     sync.Mutex
	tab    context.Context
	cancel context.CancelFunc
}

func NewChrome(opts ChromeOptions) *Chrome {
	return &Chrome{opts: opts}
}

func (c *Chrome) session() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tab != nil {
		return c.tab, nil
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.opts.Headless),
		chromedp.WindowSize(1366, 900),
	)
	if c.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(c.opts.ExecPath))
	}
	if c.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(c.opts.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tab, tabCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(tab); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	telemetry.Info("browser.started", map[string]any{"headless": c.opts.Headless})

	c.tab = tab
	c.cancel = func() {
		tabCancel()
		allocCancel()
	}
	return tab, nil
}

// run executes actions on the shared tab, bounded by the action timeout and by ctx.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tab, err := c.session()
	if err != nil {
		return err
	}
	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	actx, cancel := context.WithTimeout(tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(actx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, chromedp.Navigate(url))
}

func (c *Chrome) CurrentURL(ctx context.Context) (string, error) {
	var u string
	err := c.run(ctx, chromedp.Location(&u))
	return u, err
}

func (c *Chrome) Exists(ctx context.Context, loc Locator) (bool, error) {
	var found bool
	err := c.run(ctx, chromedp.Evaluate(fmt.Sprintf(`(%s) !== null`, findExpr(loc)), &found))
	return found, err
}

func (c *Chrome) Click(ctx context.Context, loc Locator) (bool, error) {
	script := fmt.Sprintf(`(() => {
  const el = %s;
  if (!el) return false;
  el.scrollIntoView({block: "center"});
  el.click();
  return true;
})()`, findExpr(loc))
	var clicked bool
	err := c.run(ctx, chromedp.Evaluate(script, &clicked))
	return clicked, err
}

func (c *Chrome) Fill(ctx context.Context, selector, value string) (int, error) {
	script := fmt.Sprintf(`(() => {
  let n = 0;
  document.querySelectorAll(%s).forEach(el => {
    if (el.value) return;
    el.focus();
    el.value = %s;
    el.dispatchEvent(new Event("input", {bubbles: true}));
    el.dispatchEvent(new Event("change", {bubbles: true}));
    n++;
  });
  return n;
})()`, jsString(selector), jsString(value))
	var n int
	err := c.run(ctx, chromedp.Evaluate(script, &n))
	return n, err
}

func (c *Chrome) ChooseFirstOption(ctx context.Context, selector string) (int, error) {
	script := fmt.Sprintf(`(() => {
  let n = 0;
  document.querySelectorAll(%s).forEach(el => {
    if (el.options.length < 2 || el.selectedIndex > 0) return;
    el.selectedIndex = 1;
    el.dispatchEvent(new Event("change", {bubbles: true}));
    n++;
  });
  return n;
})()`, jsString(selector))
	var n int
	err := c.run(ctx, chromedp.Evaluate(script, &n))
	return n, err
}

func (c *Chrome) Upload(ctx context.Context, selector, path string) (int, error) {
	var n int
	if err := c.run(ctx, chromedp.Evaluate(fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector)), &n)); err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := c.run(ctx, chromedp.SetUploadFiles(selector, []string{path}, chromedp.ByQueryAll)); err != nil {
		return 0, err
	}
	return n, nil
}

// Close shuts the browser down. It is safe to call when the browser never started.
func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
		c.tab = nil
	}
	return nil
}

// findExpr is a JS expression yielding the first element loc matches, or null.
func findExpr(loc Locator) string {
	texts := loc.Text
	if texts == nil {
		texts = []string{}
	}
	rawTexts, _ := json.Marshal(texts)
	return fmt.Sprintf(`(() => {
  const texts = %s;
  const label = el => (el.innerText || el.textContent || "") + " " + (el.getAttribute("aria-label") || "");
  return Array.from(document.querySelectorAll(%s)).find(el => texts.length === 0 || texts.some(t => label(el).includes(t))) || null;
})()`, rawTexts, jsString(loc.CSS))
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

var _ Browser = (*Chrome)(nil)
