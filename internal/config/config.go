// Package config loads runtime settings from config.yaml, the environment
// and .env.
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/feedscrape/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Platform  PlatformConfig  `yaml:"platform" mapstructure:"platform"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Gate      GateConfig      `yaml:"gate" mapstructure:"gate"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Selectors SelectorsConfig `yaml:"selectors" mapstructure:"selectors"`
}

// PlatformConfig holds the target site and the account used to log in.
type PlatformConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Phone    string `yaml:"phone" mapstructure:"phone"`
}

// Credentials returns the login account.
func (p PlatformConfig) Credentials() model.Credentials {
	return model.Credentials{Username: p.Username, Password: p.Password, Phone: p.Phone}
}

// BrowserConfig configures browser launch and session lifetime.
type BrowserConfig struct {
	ProfileRoot          string   `yaml:"profile_root" mapstructure:"profile_root"`
	ExecPath             string   `yaml:"exec_path" mapstructure:"exec_path"`
	Headless             bool     `yaml:"headless" mapstructure:"headless"`
	MaxSessionAgeMins    int      `yaml:"max_session_age_mins" mapstructure:"max_session_age_mins"`
	MaxScrapesPerSession int      `yaml:"max_scrapes_per_session" mapstructure:"max_scrapes_per_session"`
	LaunchTimeoutSecs    int      `yaml:"launch_timeout_secs" mapstructure:"launch_timeout_secs"`
	ProbeTimeoutMs       int      `yaml:"probe_timeout_ms" mapstructure:"probe_timeout_ms"`
	IdleReapMins         int      `yaml:"idle_reap_mins" mapstructure:"idle_reap_mins"`
	ReapIntervalSecs     int      `yaml:"reap_interval_secs" mapstructure:"reap_interval_secs"`
	ViewportJitter       int      `yaml:"viewport_jitter" mapstructure:"viewport_jitter"`
	UserAgents           []string `yaml:"user_agents" mapstructure:"user_agents"`
}

func (b BrowserConfig) MaxSessionAge() time.Duration {
	return time.Duration(b.MaxSessionAgeMins) * time.Minute
}

func (b BrowserConfig) LaunchTimeout() time.Duration {
	return time.Duration(b.LaunchTimeoutSecs) * time.Second
}

func (b BrowserConfig) ProbeTimeout() time.Duration {
	return time.Duration(b.ProbeTimeoutMs) * time.Millisecond
}

func (b BrowserConfig) IdleReap() time.Duration {
	return time.Duration(b.IdleReapMins) * time.Minute
}

func (b BrowserConfig) ReapInterval() time.Duration {
	return time.Duration(b.ReapIntervalSecs) * time.Second
}

// AuthConfig configures the login flow.
type AuthConfig struct {
	LoginPath           string `yaml:"login_path" mapstructure:"login_path"`
	StepTimeoutMs       int    `yaml:"step_timeout_ms" mapstructure:"step_timeout_ms"`
	PollIntervalMs      int    `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	MaxSteps            int    `yaml:"max_steps" mapstructure:"max_steps"`
	MaxPhoneChallenges  int    `yaml:"max_phone_challenges" mapstructure:"max_phone_challenges"`
	MaxPasswordAttempts int    `yaml:"max_password_attempts" mapstructure:"max_password_attempts"`
	BreakerThreshold    int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetMins    int    `yaml:"breaker_reset_mins" mapstructure:"breaker_reset_mins"`
}

func (a AuthConfig) StepTimeout() time.Duration {
	return time.Duration(a.StepTimeoutMs) * time.Millisecond
}

func (a AuthConfig) PollInterval() time.Duration {
	return time.Duration(a.PollIntervalMs) * time.Millisecond
}

// ScrapeConfig configures navigation and scrolling.
type ScrapeConfig struct {
	TargetRecords     int     `yaml:"target_records" mapstructure:"target_records"`
	MaxScrollCycles   int     `yaml:"max_scroll_cycles" mapstructure:"max_scroll_cycles"`
	StallCycles       int     `yaml:"stall_cycles" mapstructure:"stall_cycles"`
	ScrollDelayMinMs  int     `yaml:"scroll_delay_min_ms" mapstructure:"scroll_delay_min_ms"`
	ScrollDelayMaxMs  int     `yaml:"scroll_delay_max_ms" mapstructure:"scroll_delay_max_ms"`
	PageTimeoutSecs   int     `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
	PollIntervalMs    int     `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	NavigationRPS     float64 `yaml:"navigation_rps" mapstructure:"navigation_rps"`
	NavigationRetries int     `yaml:"navigation_retries" mapstructure:"navigation_retries"`
	RetryBackoffMs    int     `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	RetryMaxBackoffMs int     `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
}

func (s ScrapeConfig) ScrollDelayMin() time.Duration {
	return time.Duration(s.ScrollDelayMinMs) * time.Millisecond
}

func (s ScrapeConfig) ScrollDelayMax() time.Duration {
	return time.Duration(s.ScrollDelayMaxMs) * time.Millisecond
}

func (s ScrapeConfig) PageTimeout() time.Duration {
	return time.Duration(s.PageTimeoutSecs) * time.Second
}

func (s ScrapeConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	TTLMins    int `yaml:"ttl_mins" mapstructure:"ttl_mins"`
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMins) * time.Minute
}

// GateConfig bounds each request, including its wait for the gate.
type GateConfig struct {
	RequestTimeoutSecs int `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

func (g GateConfig) RequestTimeout() time.Duration {
	return time.Duration(g.RequestTimeoutSecs) * time.Second
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSecs) * time.Second
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SelectorsConfig points at an optional selector override file.
type SelectorsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// legacyEnv maps config keys to the environment variable names older
// deployments used.
var legacyEnv = map[string]string{
	"platform.base_url": "TWITTER_BASE_URL",
	"platform.username": "TWITTER_USERNAME",
	"platform.password": "TWITTER_PASSWORD",
	"platform.phone":    "TWITTER_PHONE_NUMBER",
}

// Load reads configuration from .env, config.yaml and the environment.
// FEEDSCRAPE_* variables take precedence over the file.
func Load() (*Config, error) {
	// A missing .env is fine; variables already set are not overridden.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FEEDSCRAPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := "FEEDSCRAPE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("platform.base_url", "https://x.com")
	v.SetDefault("browser.profile_root", "")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.max_session_age_mins", 120)
	v.SetDefault("browser.max_scrapes_per_session", 200)
	v.SetDefault("browser.launch_timeout_secs", 45)
	v.SetDefault("browser.probe_timeout_ms", 3000)
	v.SetDefault("browser.idle_reap_mins", 30)
	v.SetDefault("browser.reap_interval_secs", 60)
	v.SetDefault("browser.viewport_jitter", 40)
	v.SetDefault("auth.login_path", "/i/flow/login")
	v.SetDefault("auth.step_timeout_ms", 10000)
	v.SetDefault("auth.poll_interval_ms", 250)
	v.SetDefault("auth.max_steps", 12)
	v.SetDefault("auth.max_phone_challenges", 2)
	v.SetDefault("auth.max_password_attempts", 2)
	v.SetDefault("auth.breaker_threshold", 3)
	v.SetDefault("auth.breaker_reset_mins", 15)
	v.SetDefault("scrape.target_records", 20)
	v.SetDefault("scrape.max_scroll_cycles", 8)
	v.SetDefault("scrape.stall_cycles", 2)
	v.SetDefault("scrape.scroll_delay_min_ms", 1500)
	v.SetDefault("scrape.scroll_delay_max_ms", 3500)
	v.SetDefault("scrape.page_timeout_secs", 20)
	v.SetDefault("scrape.poll_interval_ms", 500)
	v.SetDefault("scrape.navigation_rps", 0.5)
	v.SetDefault("scrape.navigation_retries", 3)
	v.SetDefault("scrape.retry_backoff_ms", 1000)
	v.SetDefault("scrape.retry_max_backoff_ms", 10000)
	v.SetDefault("cache.ttl_mins", 60)
	v.SetDefault("cache.max_entries", 100)
	v.SetDefault("gate.request_timeout_secs", 180)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout_secs", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("selectors.path", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is "serve" or
// "scrape".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	case "scrape":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Platform.Username == "" {
		errs = append(errs, "platform.username is required")
	}
	if c.Platform.Password == "" {
		errs = append(errs, "platform.password is required")
	}
	if u, err := url.Parse(c.Platform.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, "platform.base_url must be an absolute URL")
	}
	if c.Scrape.ScrollDelayMaxMs < c.Scrape.ScrollDelayMinMs {
		errs = append(errs, "scrape.scroll_delay_max_ms must be >= scroll_delay_min_ms")
	}
	if c.Scrape.TargetRecords < 1 {
		errs = append(errs, "scrape.target_records must be >= 1")
	}
	if c.Cache.TTLMins < 1 {
		errs = append(errs, "cache.ttl_mins must be >= 1")
	}
	if c.Gate.RequestTimeoutSecs < 1 {
		errs = append(errs, "gate.request_timeout_secs must be >= 1")
	}
	if c.Auth.MaxPasswordAttempts < 1 || c.Auth.MaxPasswordAttempts > 2 {
		errs = append(errs, "auth.max_password_attempts must be between 1 and 2")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
