// Package browser owns the automated browser: launching it with
// anti-detection settings, the single live Session, and its teardown.
package browser

import (
	"context"

	"github.com/sells-group/feedscrape/internal/selector"
)

// Driver is the page-level control surface of one browser instance. All
// methods are bounded by ctx.
type Driver interface {
	// Navigate loads url in the current tab.
	Navigate(ctx context.Context, url string) error
	// HTML returns the rendered document's outer HTML.
	HTML(ctx context.Context) (string, error)
	// Present reports whether m matches at least one element right now.
	Present(ctx context.Context, m selector.Matcher) (bool, error)
	// Fill types text into the element matched by m.
	Fill(ctx context.Context, m selector.Matcher, text string) error
	// Click clicks the element matched by m.
	Click(ctx context.Context, m selector.Matcher) error
	// Submit presses Enter in the element matched by m.
	Submit(ctx context.Context, m selector.Matcher) error
	// Eval evaluates a JavaScript expression into out.
	Eval(ctx context.Context, expr string, out any) error
	// ScrollToBottom scrolls the page and returns the new document height.
	ScrollToBottom(ctx context.Context) (int64, error)
	// Version returns the browser product string, e.g. "HeadlessChrome/124.0".
	Version(ctx context.Context) (string, error)
	// PID returns the browser process ID, or 0 if unknown.
	PID() int
	// Close shuts the browser down.
	Close(ctx context.Context) error
}

// Viewport is a window size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// LaunchOptions configure one browser launch.
type LaunchOptions struct {
	ProfileDir string
	UserAgent  string
	Viewport   Viewport
	Headless   bool
	ExecPath   string
	// Scripts run on every new document before page scripts.
	Scripts []string
}

// Launcher starts browsers.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Driver, error)
}

// FindFirst returns the first matcher of chain present on the page, or -1.
func FindFirst(ctx context.Context, d Driver, chain selector.Chain) (int, error) {
	for i, m := range chain {
		ok, err := d.Present(ctx, m)
		if err != nil {
			return -1, err
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}
