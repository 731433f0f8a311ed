package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/feedscrape/internal/metrics"
	"github.com/sells-group/feedscrape/internal/resilience"
)

// ManagerConfig controls session launch and expiry.
type ManagerConfig struct {
	ProfileRoot    string
	Headless       bool
	ExecPath       string
	MaxAge         time.Duration
	MaxScrapes     int
	LaunchTimeout  time.Duration
	ProbeTimeout   time.Duration
	ViewportJitter int
	UserAgents     []string
}

// Manager owns the single live Session. Callers must hold the request gate
// while using it.
type Manager struct {
	cfg      ManagerConfig
	launcher Launcher
	agents   *UserAgentPool
	log      *zap.Logger

	mu          sync.Mutex
	current     *Session
	stale       []*Session
	lastVersion string

	nowFunc func() time.Time
	newID   func() string
}

// NewManager creates a Manager that launches browsers with launcher.
func NewManager(cfg ManagerConfig, launcher Launcher) *Manager {
	if cfg.ProfileRoot == "" {
		cfg.ProfileRoot = filepath.Join(os.TempDir(), "feedscrape-profiles")
	}
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = 45 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	return &Manager{
		cfg:      cfg,
		launcher: launcher,
		agents:   NewUserAgentPool(cfg.UserAgents),
		log:      zap.L().With(zap.String("component", "session_manager")),
		nowFunc:  time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// Acquire returns the live session if it is healthy and not expired, and
// otherwise tears it down and launches a fresh one.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.retryStaleLocked(ctx)

	if s := m.current; s != nil {
		switch {
		case s.Expired(m.nowFunc(), m.cfg.MaxAge, m.cfg.MaxScrapes):
			m.log.Info("session expired, replacing",
				zap.String("session_id", s.ID),
				zap.String("status", string(s.Status())),
				zap.Int("scrapes", s.Scrapes()),
			)
			_ = m.destroyLocked(ctx, s)
		case !m.IsHealthy(ctx, s):
			m.log.Warn("session failed health probe, replacing", zap.String("session_id", s.ID))
			_ = m.destroyLocked(ctx, s)
		default:
			return s, nil
		}
	}

	return m.launchLocked(ctx)
}

func (m *Manager) launchLocked(ctx context.Context) (*Session, error) {
	id := m.newID()
	dir := filepath.Join(m.cfg.ProfileRoot, "session-"+id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		metrics.SessionLaunches.WithLabelValues("error").Inc()
		return nil, resilience.WrapError(err, resilience.KindSessionLaunch, "browser: create profile dir")
	}

	opts := LaunchOptions{
		ProfileDir: dir,
		UserAgent:  m.agents.Random(),
		Viewport:   RandomViewport(m.cfg.ViewportJitter),
		Headless:   m.cfg.Headless,
		ExecPath:   m.cfg.ExecPath,
		Scripts:    StealthScripts(),
	}

	lctx, cancel := context.WithTimeout(ctx, m.cfg.LaunchTimeout)
	defer cancel()

	start := m.nowFunc()
	d, err := m.launcher.Launch(lctx, opts)
	if err != nil {
		metrics.SessionLaunches.WithLabelValues("error").Inc()
		if rmErr := m.removeProfile(dir); rmErr != nil {
			m.log.Warn("failed to remove profile after launch failure", zap.Error(rmErr))
		}
		return nil, resilience.WrapError(err, resilience.KindSessionLaunch, "browser: launch")
	}

	version, err := d.Version(lctx)
	if err != nil {
		m.log.Warn("could not read browser version", zap.Error(err))
	}

	s := newSession(id, dir, d, m.nowFunc())
	s.UserAgent = opts.UserAgent
	s.Viewport = opts.Viewport
	s.Version = version
	m.current = s
	if version != "" {
		m.lastVersion = version
	}

	metrics.SessionLaunches.WithLabelValues("ok").Inc()
	m.log.Info("browser session launched",
		zap.String("session_id", id),
		zap.String("version", version),
		zap.Int("pid", d.PID()),
		zap.Int("viewport_w", opts.Viewport.Width),
		zap.Int("viewport_h", opts.Viewport.Height),
		zap.Duration("elapsed", m.nowFunc().Sub(start)),
	)
	return s, nil
}

// Release marks the end of one scrape on s. The session stays live; it is
// replaced on a later Acquire once it has expired.
func (m *Manager) Release(s *Session) {
	if s == nil {
		return
	}
	s.recordUse(m.nowFunc())
	if s.Expired(m.nowFunc(), m.cfg.MaxAge, m.cfg.MaxScrapes) {
		m.log.Debug("session reached its limits", zap.String("session_id", s.ID), zap.Int("scrapes", s.Scrapes()))
	}
}

// IsHealthy runs a cheap script in the browser within the probe timeout.
func (m *Manager) IsHealthy(ctx context.Context, s *Session) bool {
	if s == nil || s.Destroyed() {
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	var n int
	if err := s.driver.Eval(pctx, "1+1", &n); err != nil || n != 2 {
		m.log.Debug("health probe failed", zap.String("session_id", s.ID), zap.Error(err))
		return false
	}
	return true
}

// Destroy tears s down: closes the browser, kills any surviving browser
// processes and removes the profile directory. It is idempotent. A cleanup
// failure is logged, returned as a warning, and retried on the next Acquire.
func (m *Manager) Destroy(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyLocked(ctx, s)
}

func (m *Manager) destroyLocked(ctx context.Context, s *Session) error {
	if s == nil || s.Destroyed() {
		return nil
	}
	if m.current == s {
		m.current = nil
	}
	if s.Status() != StatusFailed {
		s.SetStatus(StatusExpired)
	}

	if err := s.driver.Close(ctx); err != nil {
		m.log.Debug("browser close reported an error", zap.String("session_id", s.ID), zap.Error(err))
	}
	if err := m.reclaim(ctx, s); err != nil {
		m.stale = append(m.stale, s)
		m.log.Warn("session cleanup incomplete, will retry",
			zap.String("session_id", s.ID),
			zap.Error(err),
		)
		return eris.Wrap(err, "browser: destroy session")
	}

	s.markDestroyed()
	m.log.Info("browser session destroyed", zap.String("session_id", s.ID), zap.Int("scrapes", s.Scrapes()))
	return nil
}

func (m *Manager) reclaim(ctx context.Context, s *Session) error {
	return errors.Join(
		killProcessTree(ctx, s.driver.PID()),
		m.removeProfile(s.ProfileDir),
	)
}

func (m *Manager) retryStaleLocked(ctx context.Context) {
	if len(m.stale) == 0 {
		return
	}
	var still []*Session
	for _, s := range m.stale {
		if err := m.reclaim(ctx, s); err != nil {
			still = append(still, s)
			continue
		}
		s.markDestroyed()
	}
	m.stale = still
}

// removeProfile deletes a profile directory, refusing paths outside the
// profile root.
func (m *Manager) removeProfile(dir string) error {
	rel, err := filepath.Rel(m.cfg.ProfileRoot, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return eris.Errorf("browser: refusing to remove %s outside profile root", dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return eris.Wrapf(err, "browser: remove profile %s", dir)
	}
	return nil
}

// ReapIdle destroys the live session if it expired or has been idle for
// longer than idle. It reports whether a session was destroyed.
func (m *Manager) ReapIdle(ctx context.Context, idle time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.retryStaleLocked(ctx)

	s := m.current
	if s == nil {
		return false
	}
	now := m.nowFunc()
	if !s.Expired(now, m.cfg.MaxAge, m.cfg.MaxScrapes) && (idle <= 0 || now.Sub(s.LastUsed()) < idle) {
		return false
	}
	if err := m.destroyLocked(ctx, s); err != nil {
		m.log.Warn("reaper could not fully destroy session", zap.Error(err))
	}
	return true
}

// Shutdown destroys the live session and any sessions awaiting cleanup.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.destroyLocked(ctx, m.current)
	m.retryStaleLocked(ctx)
	if len(m.stale) > 0 {
		err = errors.Join(err, eris.Errorf("browser: %d sessions left uncleaned", len(m.stale)))
	}
	return err
}

// Current returns the live session, if any.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// BrowserVersion returns the version reported by the most recent launch.
func (m *Manager) BrowserVersion() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastVersion
}

// MemoryRSS returns the resident memory of the live browser process tree.
func (m *Manager) MemoryRSS(ctx context.Context) uint64 {
	s := m.Current()
	if s == nil {
		return 0
	}
	return processRSS(ctx, s.driver.PID())
}
