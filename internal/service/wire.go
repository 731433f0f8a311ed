package service

import (
	"github.com/sells-group/feedscrape/internal/auth"
	"github.com/sells-group/feedscrape/internal/browser"
	"github.com/sells-group/feedscrape/internal/cache"
	"github.com/sells-group/feedscrape/internal/config"
	"github.com/sells-group/feedscrape/internal/resilience"
	"github.com/sells-group/feedscrape/internal/scrape"
	"github.com/sells-group/feedscrape/internal/selector"
)

// FromConfig builds a Service that drives a real Chrome.
func FromConfig(cfg *config.Config) (*Service, error) {
	return Build(cfg, browser.NewChromeLauncher())
}

// Build builds a Service from configuration with the given launcher.
func Build(cfg *config.Config, launcher browser.Launcher) (*Service, error) {
	sel, err := selector.Load(cfg.Selectors.Path)
	if err != nil {
		return nil, err
	}

	sessions := browser.NewManager(browser.ManagerConfig{
		ProfileRoot:    cfg.Browser.ProfileRoot,
		Headless:       cfg.Browser.Headless,
		ExecPath:       cfg.Browser.ExecPath,
		MaxAge:         cfg.Browser.MaxSessionAge(),
		MaxScrapes:     cfg.Browser.MaxScrapesPerSession,
		LaunchTimeout:  cfg.Browser.LaunchTimeout(),
		ProbeTimeout:   cfg.Browser.ProbeTimeout(),
		ViewportJitter: cfg.Browser.ViewportJitter,
		UserAgents:     cfg.Browser.UserAgents,
	}, launcher)

	authn := auth.New(auth.Config{
		BaseURL:             cfg.Platform.BaseURL,
		LoginPath:           cfg.Auth.LoginPath,
		StepTimeout:         cfg.Auth.StepTimeout(),
		PollInterval:        cfg.Auth.PollInterval(),
		MaxSteps:            cfg.Auth.MaxSteps,
		MaxPhoneChallenges:  cfg.Auth.MaxPhoneChallenges,
		MaxPasswordAttempts: cfg.Auth.MaxPasswordAttempts,
		Breaker:             resilience.NewCircuitConfig(cfg.Auth.BreakerThreshold, cfg.Auth.BreakerResetMins),
	}, cfg.Platform.Credentials(), sel.Login)

	retry := resilience.NewRetryConfig(cfg.Scrape.NavigationRetries, cfg.Scrape.RetryBackoffMs, cfg.Scrape.RetryMaxBackoffMs)
	orch := scrape.New(scrape.Config{
		BaseURL:         cfg.Platform.BaseURL,
		TargetRecords:   cfg.Scrape.TargetRecords,
		MaxScrollCycles: cfg.Scrape.MaxScrollCycles,
		StallCycles:     cfg.Scrape.StallCycles,
		ScrollDelayMin:  cfg.Scrape.ScrollDelayMin(),
		ScrollDelayMax:  cfg.Scrape.ScrollDelayMax(),
		PageTimeout:     cfg.Scrape.PageTimeout(),
		PollInterval:    cfg.Scrape.PollInterval(),
		NavigationRPS:   cfg.Scrape.NavigationRPS,
		Retry:           retry,
	}, sel)

	c := cache.New(cache.NewMemory(cfg.Cache.MaxEntries), cfg.Cache.TTL())

	return New(Config{
		RequestTimeout: cfg.Gate.RequestTimeout(),
		IdleReap:       cfg.Browser.IdleReap(),
		ReapInterval:   cfg.Browser.ReapInterval(),
	}, sessions, authn, orch, c), nil
}
