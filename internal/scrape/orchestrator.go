// Package scrape drives an authenticated browser session through channel
// timelines and searches, scrolling and extracting until enough records
// are collected.
package scrape

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/feedscrape/internal/browser"
	"github.com/sells-group/feedscrape/internal/extract"
	"github.com/sells-group/feedscrape/internal/metrics"
	"github.com/sells-group/feedscrape/internal/model"
	"github.com/sells-group/feedscrape/internal/resilience"
	"github.com/sells-group/feedscrape/internal/selector"
)

// Config controls scraping.
type Config struct {
	BaseURL string
	// TargetRecords stops scrolling once this many records are collected
	// for a term.
	TargetRecords   int
	MaxScrollCycles int
	// StallCycles stops scrolling after this many cycles add nothing.
	StallCycles    int
	ScrollDelayMin time.Duration
	ScrollDelayMax time.Duration
	// PageTimeout bounds the wait for a page to become recognizable.
	PageTimeout   time.Duration
	PollInterval  time.Duration
	NavigationRPS float64
	Retry         resilience.RetryConfig
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = extract.DefaultBaseURL
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.TargetRecords <= 0 {
		c.TargetRecords = 20
	}
	if c.MaxScrollCycles <= 0 {
		c.MaxScrollCycles = 8
	}
	if c.StallCycles <= 0 {
		c.StallCycles = 2
	}
	if c.ScrollDelayMin <= 0 {
		c.ScrollDelayMin = 1500 * time.Millisecond
	}
	if c.ScrollDelayMax < c.ScrollDelayMin {
		c.ScrollDelayMax = c.ScrollDelayMin * 2
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 20 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	return c
}

// Outcome is the result of one scrape.
type Outcome struct {
	Set model.ResultSet
	// Confirmed is set when every term either produced records or showed
	// the platform's explicit empty state. Only confirmed outcomes are
	// worth caching.
	Confirmed bool
	// Degraded is set when some container or field could not be read.
	Degraded bool
	// Skipped counts malformed containers.
	Skipped int
}

// Orchestrator runs scrapes on a session held by the caller.
type Orchestrator struct {
	cfg       Config
	selectors selector.Set
	extractor *extract.Extractor
	pacer     *Pacer
	log       *zap.Logger
	nowFunc   func() time.Time
}

// New creates an Orchestrator.
func New(cfg Config, sel selector.Set) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		cfg:       cfg,
		selectors: sel,
		extractor: extract.New(
			extract.WithBaseURL(cfg.BaseURL),
			extract.WithSelectors(sel.Post),
		),
		pacer:   NewPacer(cfg.NavigationRPS, 1),
		log:     zap.L().With(zap.String("component", "scrape")),
		nowFunc: time.Now,
	}
}

// URL returns the page to load for one term of q.
func (o *Orchestrator) URL(q model.ScrapeQuery, term string) string {
	switch {
	case q.Kind == model.KindChannel && term == "":
		return o.cfg.BaseURL + "/" + url.PathEscape(q.Target)
	case q.Kind == model.KindChannel:
		return o.searchURL("from:" + q.Target + " " + term)
	default:
		return o.searchURL(term)
	}
}

func (o *Orchestrator) searchURL(query string) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("src", "typed_query")
	v.Set("f", "live")
	return o.cfg.BaseURL + "/search?" + v.Encode()
}

// Scrape collects records for every term of q on s. q must be normalized.
// A page that shows the logged-out wall yields an authentication failure
// with reason session_expired; partial records are discarded.
func (o *Orchestrator) Scrape(ctx context.Context, s *browser.Session, q model.ScrapeQuery) (Outcome, error) {
	start := o.nowFunc()
	kind := string(q.Kind)

	if !s.Authenticated() {
		return Outcome{}, resilience.AuthError(resilience.ReasonSessionExpired, "session is not authenticated", nil)
	}

	out := Outcome{Confirmed: true}
	var records []model.Record
	seen := make(map[string]struct{})

	for _, term := range q.Terms() {
		tr, err := o.scrapeTerm(ctx, s.Driver(), q, term)
		if err != nil {
			metrics.ObserveScrape(kind, string(resilience.KindOf(err)), 0, o.nowFunc().Sub(start))
			return Outcome{}, err
		}
		out.Degraded = out.Degraded || tr.degraded
		out.Skipped += tr.skipped
		out.Confirmed = out.Confirmed && tr.confirmed
		for _, rec := range tr.records {
			if _, dup := seen[rec.ID]; dup {
				continue
			}
			seen[rec.ID] = struct{}{}
			rec.Query = term
			records = append(records, rec)
		}
	}

	out.Set = model.NewResultSet(q, records, o.nowFunc())
	if out.Degraded {
		metrics.ExtractionDegraded.Inc()
		o.log.Warn("extraction degraded",
			zap.String("kind", string(resilience.KindExtractionDegraded)),
			zap.Stringer("query", q),
			zap.Int("skipped", out.Skipped),
			zap.Int("records", len(records)),
		)
	}
	outcome := "ok"
	if !out.Confirmed {
		outcome = "unconfirmed"
	}
	metrics.ObserveScrape(kind, outcome, len(records), o.nowFunc().Sub(start))
	return out, nil
}

type termResult struct {
	records   []model.Record
	confirmed bool
	degraded  bool
	skipped   int
}

func (o *Orchestrator) scrapeTerm(ctx context.Context, d browser.Driver, q model.ScrapeQuery, term string) (termResult, error) {
	target := o.URL(q, term)
	log := o.log.With(zap.Stringer("query", q), zap.String("term", term))

	retry := o.cfg.Retry
	retry.ShouldRetry = func(err error) bool {
		return resilience.IsKind(err, resilience.KindNavigation) && resilience.IsRetryable(err)
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("scrape", "navigate")
	}
	state, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (PageState, error) {
		return o.load(ctx, d, target)
	})
	if err != nil {
		return termResult{}, o.contextErr(ctx, err)
	}
	if state == PageLoggedOut {
		return termResult{}, resilience.AuthError(resilience.ReasonSessionExpired, "platform shows the logged-out page", nil)
	}

	var res termResult
	seen := make(map[string]struct{})
	stalled := 0

	for cycle := 0; ; cycle++ {
		html, err := d.HTML(ctx)
		if err != nil {
			return termResult{}, o.contextErr(ctx, resilience.WrapError(err, resilience.KindNavigation, "could not read page"))
		}

		switch ClassifyPage(html, o.selectors.Page, o.selectors.Post.Container) {
		case PageLoggedOut:
			return termResult{}, resilience.AuthError(resilience.ReasonSessionExpired, "session logged out while scrolling", nil)
		case PageRateLimited:
			return termResult{}, blockedError("rate limited while scrolling")
		case PageInterstitial:
			return termResult{}, blockedError("blocked by an anti-bot interstitial")
		case PageEmpty:
			if len(res.records) == 0 {
				log.Debug("platform reports no results")
				res.confirmed = true
				return res, nil
			}
		}

		ext := o.extractor.Extract(html, q)
		res.degraded = res.degraded || ext.Degraded
		res.skipped += len(ext.Skipped)

		added := 0
		for _, rec := range ext.Records {
			if _, dup := seen[rec.ID]; dup {
				continue
			}
			seen[rec.ID] = struct{}{}
			res.records = append(res.records, rec)
			added++
		}
		log.Debug("scroll cycle",
			zap.Int("cycle", cycle),
			zap.Int("containers", ext.Containers),
			zap.Int("added", added),
			zap.Int("total", len(res.records)),
		)

		if len(res.records) >= o.cfg.TargetRecords {
			res.records = res.records[:o.cfg.TargetRecords]
			break
		}
		if added == 0 {
			stalled++
		} else {
			stalled = 0
		}
		if stalled >= o.cfg.StallCycles || cycle+1 >= o.cfg.MaxScrollCycles {
			break
		}

		if _, err := d.ScrollToBottom(ctx); err != nil {
			return termResult{}, o.contextErr(ctx, resilience.WrapError(err, resilience.KindNavigation, "scroll failed"))
		}
		if err := browser.Sleep(ctx, browser.Jitter(o.cfg.ScrollDelayMin, o.cfg.ScrollDelayMax)); err != nil {
			return termResult{}, err
		}
	}

	res.confirmed = len(res.records) > 0
	if !res.confirmed {
		log.Warn("page rendered but no records were found")
	}
	return res, nil
}

// load navigates to target and waits until the page is recognizable.
func (o *Orchestrator) load(ctx context.Context, d browser.Driver, target string) (PageState, error) {
	if err := o.pacer.Wait(ctx); err != nil {
		return PageLoading, err
	}
	if err := d.Navigate(ctx, target); err != nil {
		return PageLoading, resilience.WrapError(err, resilience.KindNavigation, "navigation failed")
	}

	state := PageLoading
	err := browser.Poll(ctx, o.cfg.PollInterval, o.cfg.PageTimeout, func(ctx context.Context) (bool, error) {
		html, err := d.HTML(ctx)
		if err != nil {
			return false, nil
		}
		state = ClassifyPage(html, o.selectors.Page, o.selectors.Post.Container)
		return state.Settled(), nil
	})
	switch {
	case errors.Is(err, browser.ErrPollTimeout):
		return PageLoading, resilience.WrapError(err, resilience.KindNavigation, "page never became recognizable")
	case err != nil:
		return PageLoading, err
	}

	switch state {
	case PageRateLimited:
		return state, blockedError("platform rate limit page")
	case PageInterstitial:
		return state, blockedError("blocked by an anti-bot interstitial")
	}
	return state, nil
}

// blockedError is a navigation failure that reloading will not fix.
func blockedError(msg string) error {
	e := resilience.NewError(resilience.KindNavigation, msg)
	e.Retryable = false
	return e
}

// contextErr prefers the context's error once it has ended so deadlines
// surface as such rather than as whatever the browser reported.
func (o *Orchestrator) contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return eris.Wrap(ctxErr, "scrape: aborted")
	}
	return err
}
