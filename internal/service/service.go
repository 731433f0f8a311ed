// Package service is the external surface of the scraping core: cached
// channel and search fetches, cache reset, health, and session upkeep.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/feedscrape/internal/auth"
	"github.com/sells-group/feedscrape/internal/browser"
	"github.com/sells-group/feedscrape/internal/cache"
	"github.com/sells-group/feedscrape/internal/model"
	"github.com/sells-group/feedscrape/internal/resilience"
	"github.com/sells-group/feedscrape/internal/scrape"
)

// Config controls request bounds and session upkeep.
type Config struct {
	// RequestTimeout bounds a whole fetch, including the wait for the gate.
	RequestTimeout time.Duration
	// IdleReap destroys a session unused for this long.
	IdleReap     time.Duration
	ReapInterval time.Duration
	// CleanupTimeout bounds session teardown after a failed request.
	CleanupTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 3 * time.Minute
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = time.Minute
	}
	if c.CleanupTimeout <= 0 {
		c.CleanupTimeout = 30 * time.Second
	}
	return c
}

// ResetResult reports a cache reset.
type ResetResult struct {
	ClearedCount int `json:"clearedCount"`
}

// Health describes the browser session and cache.
type Health struct {
	SessionAlive    bool        `json:"sessionAlive"`
	SessionStatus   string      `json:"sessionStatus"`
	BrowserVersion  string      `json:"browserVersion,omitempty"`
	BrowserRSSBytes uint64      `json:"browserRssBytes,omitempty"`
	Cache           cache.Stats `json:"cache"`
	// Probed is false when a scrape held the gate and the last known
	// session state was reported instead.
	Probed bool `json:"probed"`
}

// Service wires the session manager, authenticator, orchestrator and cache.
type Service struct {
	cfg      Config
	sessions *browser.Manager
	auth     *auth.Authenticator
	scraper  *scrape.Orchestrator
	cache    *cache.Cache
	log      *zap.Logger

	healthMu   sync.Mutex
	lastHealth Health
}

// New creates a Service from its components.
func New(cfg Config, sessions *browser.Manager, a *auth.Authenticator, o *scrape.Orchestrator, c *cache.Cache) *Service {
	return &Service{
		cfg:      cfg.withDefaults(),
		sessions: sessions,
		auth:     a,
		scraper:  o,
		cache:    c,
		log:      zap.L().With(zap.String("component", "service")),
	}
}

// FetchChannelResults returns posts from a channel timeline, optionally
// narrowed by query terms.
func (s *Service) FetchChannelResults(ctx context.Context, q model.ScrapeQuery) (model.ResultSet, error) {
	q.Kind = model.KindChannel
	return s.fetch(ctx, q)
}

// FetchSearchResults returns the latest posts matching each query term.
func (s *Service) FetchSearchResults(ctx context.Context, q model.ScrapeQuery) (model.ResultSet, error) {
	q.Kind = model.KindSearch
	return s.fetch(ctx, q)
}

func (s *Service) fetch(ctx context.Context, q model.ScrapeQuery) (model.ResultSet, error) {
	nq, err := q.Normalize()
	if err != nil {
		return model.ResultSet{}, resilience.WrapError(err, resilience.KindInvalidQuery, strings.TrimPrefix(err.Error(), "model: "))
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	rs, err := s.cache.GetOrCompute(ctx, nq, func(ctx context.Context) (model.ResultSet, bool, error) {
		return s.scrape(ctx, nq)
	})
	if err != nil {
		err = classify(ctx, err)
		s.log.Warn("fetch failed",
			zap.Stringer("query", nq),
			zap.String("kind", string(resilience.KindOf(err))),
			zap.String("reason", resilience.ReasonOf(err)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return model.ResultSet{}, err
	}

	s.log.Info("fetch complete",
		zap.Stringer("query", nq),
		zap.Int("records", rs.Len()),
		zap.Bool("from_cache", rs.FromCache),
		zap.Duration("elapsed", time.Since(start)),
	)
	return rs, nil
}

// scrape runs with the gate held. A session that turns out to be logged
// out is replaced and the scrape retried once.
func (s *Service) scrape(ctx context.Context, q model.ScrapeQuery) (model.ResultSet, bool, error) {
	for attempt := 0; ; attempt++ {
		sess, err := s.session(ctx)
		if err != nil {
			return model.ResultSet{}, false, err
		}

		out, err := s.scraper.Scrape(ctx, sess, q)
		if err == nil {
			s.sessions.Release(sess)
			return out.Set, out.Confirmed, nil
		}

		expired := resilience.ReasonOf(err) == resilience.ReasonSessionExpired
		s.afterFailure(ctx, sess, err)
		if attempt == 0 && expired && ctx.Err() == nil {
			s.log.Info("session logged out, retrying on a fresh session", zap.Stringer("query", q))
			continue
		}
		return model.ResultSet{}, false, err
	}
}

// session returns an authenticated session, destroying it if login fails.
func (s *Service) session(ctx context.Context) (*browser.Session, error) {
	sess, err := s.sessions.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.auth.Login(ctx, sess); err != nil {
		s.destroy(ctx, sess, "login failed")
		return nil, err
	}
	return sess, nil
}

// afterFailure decides whether a session survives a failed scrape. A plain
// navigation failure, or running out of time before the next navigation
// starts, leaves the browser in a known state.
func (s *Service) afterFailure(ctx context.Context, sess *browser.Session, err error) {
	kind := resilience.KindOf(err)
	if ctx.Err() == nil && (kind == resilience.KindNavigation || kind == resilience.KindGateTimeout) {
		s.sessions.Release(sess)
		return
	}
	if resilience.ReasonOf(err) == resilience.ReasonSessionExpired {
		sess.SetStatus(browser.StatusExpired)
	}
	s.destroy(ctx, sess, "scrape failed")
}

func (s *Service) destroy(ctx context.Context, sess *browser.Session, why string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CleanupTimeout)
	defer cancel()
	if err := s.sessions.Destroy(ctx, sess); err != nil {
		s.log.Warn("session teardown incomplete", zap.String("session_id", sess.ID), zap.String("why", why), zap.Error(err))
		return
	}
	s.log.Info("session destroyed", zap.String("session_id", sess.ID), zap.String("why", why))
}

// classify turns an unclassified error into the closest kind. Once the
// request deadline has passed the error is a gate timeout whatever step
// was interrupted.
func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !resilience.IsKind(err, resilience.KindGateTimeout) {
		return resilience.WrapError(err, resilience.KindGateTimeout, "request deadline exceeded")
	}
	if _, ok := resilience.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return resilience.WrapError(err, resilience.KindGateTimeout, "request deadline exceeded")
	}
	return resilience.WrapError(err, resilience.KindInternal, "internal error")
}

// ResetCache drops every cached result set.
func (s *Service) ResetCache() ResetResult {
	return ResetResult{ClearedCount: s.cache.Reset()}
}

// HealthCheck reports session liveness without waiting for a running
// scrape and without launching a browser.
func (s *Service) HealthCheck(ctx context.Context) Health {
	h := Health{Cache: s.cache.Stats()}

	probed := s.cache.TryGate(func() {
		h.Probed = true
		sess := s.sessions.Current()
		if sess == nil {
			h.SessionStatus = "none"
			return
		}
		h.SessionStatus = string(sess.Status())
		h.SessionAlive = s.sessions.IsHealthy(ctx, sess)
		h.BrowserVersion = sess.Version
		h.BrowserRSSBytes = s.sessions.MemoryRSS(ctx)
	})
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	if !probed {
		last := s.lastHealth
		last.Cache = h.Cache
		last.Probed = false
		if last.SessionStatus == "" {
			last.SessionStatus = "busy"
		}
		return last
	}
	if h.BrowserVersion == "" {
		h.BrowserVersion = s.sessions.BrowserVersion()
	}
	s.lastHealth = h
	return h
}

// ReapOnce destroys the session if it is expired or idle, unless a scrape
// holds the gate. It reports whether a session was destroyed.
func (s *Service) ReapOnce(ctx context.Context) bool {
	reaped := false
	s.cache.TryGate(func() {
		reaped = s.sessions.ReapIdle(ctx, s.cfg.IdleReap)
	})
	if reaped {
		s.log.Info("reaped idle browser session")
	}
	return reaped
}

// Reap runs ReapOnce every ReapInterval until ctx ends.
func (s *Service) Reap(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.ReapOnce(ctx)
		}
	}
}

// Close waits for any running scrape within ctx and destroys the session.
func (s *Service) Close(ctx context.Context) error {
	err := s.cache.WithGate(ctx, func(ctx context.Context) error {
		return s.sessions.Shutdown(ctx)
	})
	if resilience.IsKind(err, resilience.KindGateTimeout) {
		s.log.Warn("scrape still running at shutdown, destroying session anyway")
		cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CleanupTimeout)
		defer cancel()
		return s.sessions.Shutdown(cleanup)
	}
	return err
}
