package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml or .env is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://x.com", cfg.Platform.BaseURL)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 2*time.Hour, cfg.Browser.MaxSessionAge())
	assert.Equal(t, 45*time.Second, cfg.Browser.LaunchTimeout())
	assert.Equal(t, 3*time.Second, cfg.Browser.ProbeTimeout())
	assert.Equal(t, "/i/flow/login", cfg.Auth.LoginPath)
	assert.Equal(t, 10*time.Second, cfg.Auth.StepTimeout())
	assert.Equal(t, 2, cfg.Auth.MaxPhoneChallenges)
	assert.Equal(t, 2, cfg.Auth.MaxPasswordAttempts)
	assert.Equal(t, 20, cfg.Scrape.TargetRecords)
	assert.Equal(t, 1500*time.Millisecond, cfg.Scrape.ScrollDelayMin())
	assert.Equal(t, 3500*time.Millisecond, cfg.Scrape.ScrollDelayMax())
	assert.InDelta(t, 0.5, cfg.Scrape.NavigationRPS, 0.001)
	assert.Equal(t, time.Hour, cfg.Cache.TTL())
	assert.Equal(t, 100, cfg.Cache.MaxEntries)
	assert.Equal(t, 3*time.Minute, cfg.Gate.RequestTimeout())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Selectors.Path)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
platform:
  username: newsdesk
log:
  level: debug
  format: console
server:
  port: 9090
cache:
  ttl_mins: 15
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "newsdesk", cfg.Platform.Username)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL())
	// Defaults still apply for unset values
	assert.Equal(t, 8, cfg.Scrape.MaxScrollCycles)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
platform:
  username: from-file
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))
	t.Setenv("FEEDSCRAPE_PLATFORM_USERNAME", "from-env")
	t.Setenv("FEEDSCRAPE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Platform.Username)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadLegacyEnvNames(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TWITTER_USERNAME", "legacy")
	t.Setenv("TWITTER_PASSWORD", "secret")
	t.Setenv("TWITTER_PHONE_NUMBER", "+15550100")
	t.Setenv("TWITTER_BASE_URL", "https://twitter.com")

	cfg, err := Load()
	require.NoError(t, err)

	creds := cfg.Platform.Credentials()
	assert.Equal(t, "legacy", creds.Username)
	assert.Equal(t, "secret", creds.Password)
	assert.Equal(t, "+15550100", creds.Phone)
	assert.Equal(t, "https://twitter.com", cfg.Platform.BaseURL)
}

func TestLoadPrefixedEnvBeatsLegacy(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TWITTER_USERNAME", "legacy")
	t.Setenv("FEEDSCRAPE_PLATFORM_USERNAME", "current")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "current", cfg.Platform.Username)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FEEDSCRAPE_SERVER_PORT=7070\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("FEEDSCRAPE_SERVER_PORT") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("FEEDSCRAPE_SERVER_PORT", "3000")
	t.Setenv("FEEDSCRAPE_BROWSER_HEADLESS", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.False(t, cfg.Browser.Headless)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}

func validDefaults() *Config {
	return &Config{
		Platform: PlatformConfig{BaseURL: "https://x.com", Username: "newsdesk", Password: "hunter2"},
		Auth:     AuthConfig{MaxPasswordAttempts: 2},
		Scrape:   ScrapeConfig{TargetRecords: 20, ScrollDelayMinMs: 1500, ScrollDelayMaxMs: 3500},
		Cache:    CacheConfig{TTLMins: 60},
		Gate:     GateConfig{RequestTimeoutSecs: 180},
		Server:   ServerConfig{Port: 8080},
	}
}

func TestValidateServe_Valid(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateScrape_IgnoresPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	assert.NoError(t, cfg.Validate("scrape"))
}

func TestValidate_MissingCredentials(t *testing.T) {
	cfg := validDefaults()
	cfg.Platform.Username = ""
	cfg.Platform.Password = ""

	err := cfg.Validate("scrape")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "platform.username is required")
	assert.Contains(t, err.Error(), "platform.password is required")
	assert.NotContains(t, err.Error(), "hunter2")
}

func TestValidate_Bounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Platform.BaseURL = "x.com"
	cfg.Scrape.ScrollDelayMaxMs = 100
	cfg.Cache.TTLMins = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "platform.base_url must be an absolute URL")
	assert.Contains(t, err.Error(), "scroll_delay_max_ms")
	assert.Contains(t, err.Error(), "cache.ttl_mins")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_PasswordAttempts(t *testing.T) {
	for _, tt := range []struct {
		attempts int
		ok       bool
	}{{0, false}, {1, true}, {2, true}, {3, false}} {
		cfg := validDefaults()
		cfg.Auth.MaxPasswordAttempts = tt.attempts

		err := cfg.Validate("scrape")
		if tt.ok {
			assert.NoError(t, err, "attempts=%d", tt.attempts)
			continue
		}
		require.Error(t, err, "attempts=%d", tt.attempts)
		assert.Contains(t, err.Error(), "auth.max_password_attempts must be between 1 and 2")
	}
}
