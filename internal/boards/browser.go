package boards

import (
	"context"
	"fmt"
	"strings"
)

// Locator finds an element by CSS selector, optionally narrowed to elements whose text
// contains one of Text.
type Locator struct {
	CSS  string
	Text []string
}

// CSS is a Locator for a plain selector.
func CSS(selector string) Locator { return Locator{CSS: selector} }

// WithText is a Locator for elements matching selector whose text contains any of texts.
func WithText(selector string, texts ...string) Locator {
	return Locator{CSS: selector, Text: texts}
}

func (l Locator) String() string {
	if len(l.Text) == 0 {
		return l.CSS
	}
	return fmt.Sprintf("%s[text~%s]", l.CSS, strings.Join(l.Text, "|"))
}

// Browser is the page-level surface the apply flows drive.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Exists(ctx context.Context, loc Locator) (bool, error)
	// Click reports false when nothing matched.
	Click(ctx context.Context, loc Locator) (bool, error)
	// Fill sets value on every empty element matching selector and returns how many it set.
	Fill(ctx context.Context, selector, value string) (int, error)
	// ChooseFirstOption picks the first non-placeholder option of every unset select.
	ChooseFirstOption(ctx context.Context, selector string) (int, error)
	// Upload attaches path to every file input matching selector.
	Upload(ctx context.Context, selector, path string) (int, error)
}
