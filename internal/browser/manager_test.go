package browser_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/feedscrape/internal/browser"
	"github.com/sells-group/feedscrape/internal/browser/browsertest"
	"github.com/sells-group/feedscrape/internal/resilience"
)

func newManager(t *testing.T, cfg browser.ManagerConfig, l browser.Launcher) *browser.Manager {
	t.Helper()
	if cfg.ProfileRoot == "" {
		cfg.ProfileRoot = t.TempDir()
	}
	return browser.NewManager(cfg, l)
}

func TestManager_AcquireLaunchesWithStealth(t *testing.T) {
	t.Parallel()

	l := &browsertest.Launcher{}
	m := newManager(t, browser.ManagerConfig{Headless: true, ViewportJitter: 20}, l)

	s, err := m.Acquire(context.Background())
	require.NoError(t, err)

	require.Len(t, l.Launches(), 1)
	opts := l.Launches()[0]
	assert.Equal(t, s.ProfileDir, opts.ProfileDir)
	assert.DirExists(t, opts.ProfileDir)
	assert.True(t, opts.Headless)
	assert.Contains(t, opts.UserAgent, "Chrome/")
	assert.NotEmpty(t, opts.Scripts)
	assert.Greater(t, opts.Viewport.Width, 1000)
	assert.Equal(t, browser.StatusUnauthenticated, s.Status())
	assert.Equal(t, "HeadlessChrome/131.0.0.0", m.BrowserVersion())
}

func TestManager_ReusesHealthySession(t *testing.T) {
	t.Parallel()

	l := &browsertest.Launcher{}
	m := newManager(t, browser.ManagerConfig{}, l)

	s1, err := m.Acquire(context.Background())
	require.NoError(t, err)
	m.Release(s1)
	s2, err := m.Acquire(context.Background())
	require.NoError(t, err)

	assert.Same(t, s1, s2)
	assert.Len(t, l.Launches(), 1)
	assert.Equal(t, 1, s2.Scrapes())
}

func TestManager_UniqueProfilePerSession(t *testing.T) {
	t.Parallel()

	l := &browsertest.Launcher{}
	m := newManager(t, browser.ManagerConfig{MaxScrapes: 1}, l)

	s1, err := m.Acquire(context.Background())
	require.NoError(t, err)
	m.Release(s1)

	s2, err := m.Acquire(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, s1.ID, s2.ID)
	assert.NotEqual(t, s1.ProfileDir, s2.ProfileDir)
	assert.NoDirExists(t, s1.ProfileDir)
	assert.True(t, s1.Destroyed())
	assert.True(t, l.Drivers()[0].Closed())
}

func TestManager_ExpiresByAge(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l := &browsertest.Launcher{}
	m := newManager(t, browser.ManagerConfig{MaxAge: 30 * time.Minute}, l)
	m.SetClock(func() time.Time { return now })

	s1, err := m.Acquire(context.Background())
	require.NoError(t, err)

	now = now.Add(31 * time.Minute)
	s2, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
	assert.Len(t, l.Launches(), 2)
}

func TestManager_ReplacesUnhealthySession(t *testing.T) {
	t.Parallel()

	l := &browsertest.Launcher{}
	m := newManager(t, browser.ManagerConfig{}, l)

	s1, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, m.IsHealthy(context.Background(), s1))

	l.Drivers()[0].Unhealthy = true
	assert.False(t, m.IsHealthy(context.Background(), s1))

	s2, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
}

func TestManager_FailedSessionReplaced(t *testing.T) {
	t.Parallel()

	l := &browsertest.Launcher{}
	m := newManager(t, browser.ManagerConfig{}, l)

	s1, err := m.Acquire(context.Background())
	require.NoError(t, err)
	s1.SetStatus(browser.StatusFailed)

	s2, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
	assert.Equal(t, browser.StatusFailed, s1.Status())
}

func TestManager_LaunchFailure(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	l := &browsertest.Launcher{Errs: []error{errors.New("chrome not found")}}
	m := newManager(t, browser.ManagerConfig{ProfileRoot: root}, l)

	_, err := m.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, resilience.KindSessionLaunch, resilience.KindOf(err))
	assert.True(t, resilience.IsRetryable(err))
	assert.Nil(t, m.Current())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "profile dir of a failed launch is removed")
}

func TestManager_DestroyIdempotent(t *testing.T) {
	t.Parallel()

	l := &browsertest.Launcher{New: func(browser.LaunchOptions) *browsertest.Driver {
		return &browsertest.Driver{CloseErr: errors.New("already gone")}
	}}
	m := newManager(t, browser.ManagerConfig{}, l)

	s, err := m.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Destroy(context.Background(), s))
	require.NoError(t, m.Destroy(context.Background(), s))
	assert.Nil(t, m.Current())
	assert.True(t, s.Destroyed())
	assert.Equal(t, browser.StatusExpired, s.Status())
}

func TestManager_DestroyRefusesOutsideRoot(t *testing.T) {
	t.Parallel()

	l := &browsertest.Launcher{}
	m := newManager(t, browser.ManagerConfig{}, l)
	s, err := m.Acquire(context.Background())
	require.NoError(t, err)

	outside := filepath.Join(t.TempDir(), "keep")
	require.NoError(t, os.Mkdir(outside, 0o700))
	s.ProfileDir = outside

	err = m.Destroy(context.Background(), s)
	assert.Error(t, err)
	assert.DirExists(t, outside)
	assert.False(t, s.Destroyed())
}

func TestManager_ReapIdle(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l := &browsertest.Launcher{}
	m := newManager(t, browser.ManagerConfig{}, l)
	m.SetClock(func() time.Time { return now })

	s, err := m.Acquire(context.Background())
	require.NoError(t, err)
	m.Release(s)

	assert.False(t, m.ReapIdle(context.Background(), 10*time.Minute))
	now = now.Add(11 * time.Minute)
	assert.True(t, m.ReapIdle(context.Background(), 10*time.Minute))
	assert.Nil(t, m.Current())
	assert.False(t, m.ReapIdle(context.Background(), 10*time.Minute))
}

func TestManager_Shutdown(t *testing.T) {
	t.Parallel()

	l := &browsertest.Launcher{}
	m := newManager(t, browser.ManagerConfig{}, l)
	s, err := m.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.True(t, s.Destroyed())
	assert.NoDirExists(t, s.ProfileDir)
	assert.Zero(t, m.MemoryRSS(context.Background()))
}

func TestKillProcessTree_NoProcess(t *testing.T) {
	t.Parallel()
	assert.NoError(t, browser.KillProcessTree(context.Background(), 0))
}
