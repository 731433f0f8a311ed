// Package browsertest provides scripted in-memory browsers for tests.
package browsertest

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/feedscrape/internal/browser"
	"github.com/sells-group/feedscrape/internal/selector"
)

// Screen is one state of the scripted page.
type Screen struct {
	// Markers are matcher expressions that are present on this screen.
	Markers []string
	// Snapshots are successive renderings; each scroll advances one,
	// stopping at the last.
	Snapshots []string
	// Transitions map the expression of a clicked or submitted element
	// to the next screen.
	Transitions map[string]string
}

// Route sends navigations whose URL contains Contains to Screen.
type Route struct {
	Contains string
	Screen   string
}

// Driver is a scripted browser.Driver.
type Driver struct {
	Screens map[string]*Screen
	Routes  []Route

	// NavigateErrs are returned by successive Navigate calls.
	NavigateErrs []error
	// Unhealthy makes the health probe fail.
	Unhealthy bool
	// Blocking makes Navigate and HTML wait for ctx to end.
	Blocking bool
	Product  string
	Pid      int
	CloseErr error

	mu       sync.Mutex
	screen   string
	snapshot map[string]int
	filled   map[string][]string
	log      []string
	closed   bool
}

// Start places the driver on a screen without navigating.
func (d *Driver) Start(screen string) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.screen = screen
	return d
}

func (d *Driver) record(entry string) {
	d.log = append(d.log, entry)
}

// Log returns the actions performed, e.g. "navigate:https://x.com/a".
func (d *Driver) Log() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.log)
}

// Filled returns the values typed into the element matched by expr.
func (d *Driver) Filled(expr string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.filled[expr])
}

// Screen returns the current screen name.
func (d *Driver) Screen() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.screen
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Driver) current() *Screen {
	if s, ok := d.Screens[d.screen]; ok {
		return s
	}
	return &Screen{}
}

func (d *Driver) html() string {
	s := d.current()
	if len(s.Snapshots) == 0 {
		return "<html><body></body></html>"
	}
	idx := min(d.snapshot[d.screen], len(s.Snapshots)-1)
	return s.Snapshots[idx]
}

func (d *Driver) present(m selector.Matcher) bool {
	s := d.current()
	if slices.Contains(s.Markers, m.Expr) {
		return true
	}
	if len(s.Snapshots) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(d.html()))
	if err != nil {
		return false
	}
	return m.Find(doc.Selection).Length() > 0
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if d.Blocking {
		<-ctx.Done()
		return ctx.Err()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return eris.New("browsertest: driver closed")
	}
	d.record("navigate:" + url)
	if len(d.NavigateErrs) > 0 {
		err := d.NavigateErrs[0]
		d.NavigateErrs = d.NavigateErrs[1:]
		if err != nil {
			return err
		}
	}
	for _, r := range d.Routes {
		if strings.Contains(url, r.Contains) {
			d.screen = r.Screen
			if d.snapshot == nil {
				d.snapshot = make(map[string]int)
			}
			d.snapshot[r.Screen] = 0
			return nil
		}
	}
	d.screen = ""
	return nil
}

func (d *Driver) HTML(ctx context.Context) (string, error) {
	if d.Blocking {
		<-ctx.Done()
		return "", ctx.Err()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.html(), ctx.Err()
}

func (d *Driver) Present(ctx context.Context, m selector.Matcher) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return d.present(m), nil
}

func (d *Driver) Fill(_ context.Context, m selector.Matcher, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.present(m) {
		return eris.Errorf("browsertest: %s not on screen %q", m, d.screen)
	}
	if d.filled == nil {
		d.filled = make(map[string][]string)
	}
	d.filled[m.Expr] = append(d.filled[m.Expr], text)
	d.record("fill:" + m.Expr)
	return nil
}

func (d *Driver) activate(kind string, m selector.Matcher) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.present(m) {
		return eris.Errorf("browsertest: %s not on screen %q", m, d.screen)
	}
	d.record(kind + ":" + m.Expr)
	if next, ok := d.current().Transitions[m.Expr]; ok {
		d.screen = next
	}
	return nil
}

func (d *Driver) Click(_ context.Context, m selector.Matcher) error {
	return d.activate("click", m)
}

func (d *Driver) Submit(_ context.Context, m selector.Matcher) error {
	return d.activate("submit", m)
}

func (d *Driver) Eval(ctx context.Context, expr string, out any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Unhealthy || d.closed {
		return eris.New("browsertest: target closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if expr == "1+1" {
		if n, ok := out.(*int); ok {
			*n = 2
		}
	}
	return nil
}

func (d *Driver) ScrollToBottom(_ context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("scroll")
	if d.snapshot == nil {
		d.snapshot = make(map[string]int)
	}
	d.snapshot[d.screen]++
	return int64(1000 * (d.snapshot[d.screen] + 1)), nil
}

func (d *Driver) Version(_ context.Context) (string, error) {
	if d.Product == "" {
		return "HeadlessChrome/131.0.0.0", nil
	}
	return d.Product, nil
}

func (d *Driver) PID() int {
	return d.Pid
}

func (d *Driver) Close(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return d.CloseErr
}

// Launcher hands out scripted drivers.
type Launcher struct {
	// New builds the driver for each launch. Nil yields an empty Driver.
	New func(opts browser.LaunchOptions) *Driver
	// Errs are returned by successive launches.
	Errs []error

	mu       sync.Mutex
	launches []browser.LaunchOptions
	drivers  []*Driver
}

func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Driver, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.launches = append(l.launches, opts)
	if len(l.Errs) > 0 {
		err := l.Errs[0]
		l.Errs = l.Errs[1:]
		if err != nil {
			return nil, err
		}
	}
	d := &Driver{}
	if l.New != nil {
		d = l.New(opts)
	}
	l.drivers = append(l.drivers, d)
	return d, nil
}

// Launches returns the options of every launch attempt.
func (l *Launcher) Launches() []browser.LaunchOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.launches)
}

// Drivers returns every driver handed out, oldest first.
func (l *Launcher) Drivers() []*Driver {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.drivers)
}

var (
	_ browser.Driver   = (*Driver)(nil)
	_ browser.Launcher = (*Launcher)(nil)
)
