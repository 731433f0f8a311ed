package browser

import (
	"context"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/feedscrape/internal/resilience"
	"github.com/sells-group/feedscrape/internal/selector"
)

// ChromeLauncher starts Chrome through the devtools protocol.
type ChromeLauncher struct{}

// NewChromeLauncher creates a ChromeLauncher.
func NewChromeLauncher() *ChromeLauncher {
	return &ChromeLauncher{}
}

func allocatorOptions(opts LaunchOptions) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	out = append(out,
		chromedp.UserDataDir(opts.ProfileDir),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("lang", "en-US"),
	)
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		out = append(out, chromedp.WindowSize(opts.Viewport.Width, opts.Viewport.Height))
	}
	if opts.UserAgent != "" {
		out = append(out, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}
	return out
}

// Launch starts a browser with its own profile directory. The browser
// outlives ctx; ctx only bounds the startup.
func (l *ChromeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Driver, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
	logger := zap.S().Named("chromedp")
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Debugf),
		chromedp.WithErrorf(logger.Debugf),
	)

	d := &chromeDriver{tabCtx: tabCtx, cancelTab: cancelTab, cancelAlloc: cancelAlloc}

	scripts := opts.Scripts
	startup := chromedp.ActionFunc(func(ctx context.Context) error {
		for _, src := range scripts {
			if _, err := page.AddScriptToEvaluateOnNewDocument(src).Do(ctx); err != nil {
				return eris.Wrap(err, "browser: inject script")
			}
		}
		return nil
	})

	// The first Run allocates the browser and must use the tab context
	// itself; a derived context would tear the browser down with it.
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(tabCtx, startup) }()

	select {
	case err := <-errc:
		if err != nil {
			d.shutdown()
			return nil, eris.Wrap(err, "browser: start chrome")
		}
	case <-ctx.Done():
		d.shutdown()
		return nil, eris.Wrap(ctx.Err(), "browser: start chrome")
	}

	if c := chromedp.FromContext(tabCtx); c != nil && c.Browser != nil {
		if p := c.Browser.Process(); p != nil {
			d.pid = p.Pid
		}
	}
	return d, nil
}

type chromeDriver struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	pid         int

	closeOnce sync.Once
	closeErr  error
}

// scoped derives an action context from the tab that also ends when the
// caller's ctx does.
func (d *chromeDriver) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithCancel(d.tabCtx)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		opCtx, cancelDeadline = context.WithDeadline(opCtx, deadline)
		parent := cancel
		cancel = func() {
			cancelDeadline()
			parent()
		}
	}
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (d *chromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := d.scoped(ctx)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

func query(m selector.Matcher) (string, []chromedp.QueryOption) {
	if expr, ok := m.XPathExpr(); ok {
		return expr, []chromedp.QueryOption{chromedp.BySearch}
	}
	return m.Expr, []chromedp.QueryOption{chromedp.ByQuery}
}

func (d *chromeDriver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, chromedp.Navigate(url)); err != nil {
		err = eris.Wrapf(err, "browser: navigate %s", url)
		if resilience.IsTransient(err) {
			return resilience.NewTransientError(err)
		}
		return err
	}
	return nil
}

func (d *chromeDriver) HTML(ctx context.Context) (string, error) {
	var html string
	if err := d.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", eris.Wrap(err, "browser: read html")
	}
	return html, nil
}

func (d *chromeDriver) Present(ctx context.Context, m selector.Matcher) (bool, error) {
	sel, opts := query(m)
	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(sel, &nodes, append(opts, chromedp.AtLeast(0))...)); err != nil {
		return false, eris.Wrapf(err, "browser: query %s", m)
	}
	return len(nodes) > 0, nil
}

func (d *chromeDriver) Fill(ctx context.Context, m selector.Matcher, text string) error {
	sel, opts := query(m)
	if err := d.run(ctx, chromedp.Clear(sel, opts...), chromedp.SendKeys(sel, text, opts...)); err != nil {
		return eris.Wrapf(err, "browser: fill %s", m)
	}
	return nil
}

func (d *chromeDriver) Click(ctx context.Context, m selector.Matcher) error {
	sel, opts := query(m)
	if err := d.run(ctx, chromedp.Click(sel, opts...)); err != nil {
		return eris.Wrapf(err, "browser: click %s", m)
	}
	return nil
}

func (d *chromeDriver) Submit(ctx context.Context, m selector.Matcher) error {
	sel, opts := query(m)
	if err := d.run(ctx, chromedp.SendKeys(sel, kb.Enter, opts...)); err != nil {
		return eris.Wrapf(err, "browser: submit %s", m)
	}
	return nil
}

func (d *chromeDriver) Eval(ctx context.Context, expr string, out any) error {
	if err := d.run(ctx, chromedp.Evaluate(expr, out)); err != nil {
		return eris.Wrap(err, "browser: evaluate")
	}
	return nil
}

func (d *chromeDriver) ScrollToBottom(ctx context.Context) (int64, error) {
	var height int64
	err := d.run(ctx, chromedp.Evaluate(
		`window.scrollTo(0, document.body.scrollHeight); document.body.scrollHeight`, &height))
	if err != nil {
		return 0, eris.Wrap(err, "browser: scroll")
	}
	return height, nil
}

func (d *chromeDriver) Version(ctx context.Context) (string, error) {
	var product string
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, p, _, _, _, err := cdpbrowser.GetVersion().Do(ctx)
		product = p
		return err
	}))
	if err != nil {
		return "", eris.Wrap(err, "browser: version")
	}
	return product, nil
}

func (d *chromeDriver) PID() int {
	return d.pid
}

func (d *chromeDriver) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(d.tabCtx) }()
		select {
		case err := <-done:
			if err != nil {
				d.closeErr = eris.Wrap(err, "browser: close")
			}
		case <-ctx.Done():
			d.closeErr = eris.Wrap(ctx.Err(), "browser: close")
		}
		d.shutdown()
	})
	return d.closeErr
}

func (d *chromeDriver) shutdown() {
	d.cancelTab()
	d.cancelAlloc()
}
