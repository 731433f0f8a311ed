// Package auth drives the platform's multi-step login flow as an explicit
// state machine.
package auth

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/feedscrape/internal/browser"
	"github.com/sells-group/feedscrape/internal/metrics"
	"github.com/sells-group/feedscrape/internal/model"
	"github.com/sells-group/feedscrape/internal/resilience"
	"github.com/sells-group/feedscrape/internal/selector"
)

// Config controls the login flow.
type Config struct {
	BaseURL   string
	LoginPath string
	// StepTimeout bounds the wait for the page to react to one step.
	StepTimeout  time.Duration
	PollInterval time.Duration
	// MaxSteps bounds the total number of transitions.
	MaxSteps int
	// MaxPhoneChallenges is how many phone prompts are answered before
	// another one is treated as an unknown challenge.
	MaxPhoneChallenges int
	// MaxPasswordAttempts is how many times the password is submitted.
	MaxPasswordAttempts int
	Breaker             resilience.CircuitBreakerConfig
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://x.com"
	}
	if c.LoginPath == "" {
		c.LoginPath = "/i/flow/login"
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = 12
	}
	if c.MaxPhoneChallenges <= 0 {
		c.MaxPhoneChallenges = 2
	}
	if c.MaxPasswordAttempts <= 0 {
		c.MaxPasswordAttempts = 2
	}
	return c
}

// Authenticator logs a Session in with one account.
type Authenticator struct {
	cfg     Config
	creds   model.Credentials
	sel     selector.LoginSelectors
	breaker *resilience.CircuitBreaker
	log     *zap.Logger
}

// New creates an Authenticator. The circuit breaker only counts failures
// the account itself caused: rejected credentials and unknown challenges.
func New(cfg Config, creds model.Credentials, sel selector.LoginSelectors) *Authenticator {
	cfg = cfg.withDefaults()
	bcfg := cfg.Breaker
	bcfg.ShouldTrip = func(err error) bool {
		switch resilience.ReasonOf(err) {
		case resilience.ReasonBadCredentials, resilience.ReasonUnexpectedChallenge:
			return true
		}
		return false
	}
	log := zap.L().With(zap.String("component", "auth"), zap.Object("account", creds))
	bcfg.OnStateChange = func(from, to resilience.CircuitState) {
		log.Warn("login circuit changed state", zap.Stringer("from", from), zap.Stringer("to", to))
	}
	return &Authenticator{
		cfg:     cfg,
		creds:   creds,
		sel:     sel,
		breaker: resilience.NewCircuitBreaker(bcfg),
		log:     log,
	}
}

// Login runs the flow on s unless it is already authenticated. On success
// s is Authenticated; on failure s is Failed and must be destroyed. The
// returned trace lists the states visited.
func (a *Authenticator) Login(ctx context.Context, s *browser.Session) ([]State, error) {
	if s.Authenticated() {
		return nil, nil
	}
	if !a.creds.Valid() {
		s.SetStatus(browser.StatusFailed)
		return nil, resilience.AuthError(resilience.ReasonBadCredentials, "no credentials configured", nil)
	}

	s.SetStatus(browser.StatusAuthenticating)
	m := &machine{a: a, d: s.Driver()}

	err := a.breaker.Execute(ctx, m.run)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		err = resilience.AuthError(resilience.ReasonCircuitOpen,
			"login suspended after repeated failures, retry in "+a.breaker.RetryAfter().Round(time.Second).String(), err)
	}

	if err != nil {
		s.SetStatus(browser.StatusFailed)
		metrics.AuthAttempts.WithLabelValues("failed", resilience.ReasonOf(err)).Inc()
		a.log.Warn("login failed",
			zap.String("session_id", s.ID),
			zap.Stringers("trace", m.trace),
			zap.String("reason", resilience.ReasonOf(err)),
			zap.Error(err),
		)
		return m.trace, err
	}

	s.SetStatus(browser.StatusAuthenticated)
	metrics.AuthAttempts.WithLabelValues("authenticated", "").Inc()
	a.log.Info("login succeeded", zap.String("session_id", s.ID), zap.Stringers("trace", m.trace))
	return m.trace, nil
}

// machine is one run of the login flow.
type machine struct {
	a     *Authenticator
	d     browser.Driver
	state State
	trace []State

	phoneChallenges  int
	passwordAttempts int
	reason           string
	cause            error
}

func (m *machine) run(ctx context.Context) error {
	m.enter(StateStart)

	for step := 0; !m.state.Terminal(); step++ {
		if step >= m.a.cfg.MaxSteps {
			m.fail(resilience.ReasonTimeout, eris.Errorf("auth: no progress after %d steps", step))
			break
		}
		if err := ctx.Err(); err != nil {
			m.fail(resilience.ReasonTimeout, err)
			break
		}
		m.step(ctx)
	}

	if m.state == StateAuthenticated {
		return nil
	}
	last := StateStart
	if len(m.trace) > 1 {
		last = m.trace[len(m.trace)-2]
	}
	return resilience.AuthError(m.reason, "login failed while "+strings.ReplaceAll(last.String(), "_", " "), m.cause)
}

func (m *machine) enter(s State) {
	m.state = s
	m.trace = append(m.trace, s)
}

func (m *machine) fail(reason string, cause error) {
	m.reason = reason
	m.cause = cause
	m.enter(StateFailed)
}

// step performs the action for the current state, observes the page and
// transitions.
func (m *machine) step(ctx context.Context) {
	sel := m.a.sel
	var current Trigger
	var stale []Trigger

	switch m.state {
	case StateStart:
		url := strings.TrimSuffix(m.a.cfg.BaseURL, "/") + m.a.cfg.LoginPath
		if err := m.d.Navigate(ctx, url); err != nil {
			m.fail(resilience.ReasonTimeout, err)
			return
		}

	case StateEnteringIdentifier:
		current = TriggerIdentifierPrompt
		if err := m.fillAndAdvance(ctx, sel.IdentifierInput, m.a.creds.Username, sel.NextButton); err != nil {
			m.fail(resilience.ReasonTimeout, err)
			return
		}

	case StateChallengePhone:
		current = TriggerPhonePrompt
		if m.phoneChallenges >= m.a.cfg.MaxPhoneChallenges {
			m.enter(StateChallengeUnknown)
			return
		}
		m.phoneChallenges++
		if err := m.fillAndAdvance(ctx, sel.PhoneInput, m.a.creds.ChallengeAnswer(), sel.NextButton); err != nil {
			m.fail(resilience.ReasonTimeout, err)
			return
		}

	case StateEnteringPassword:
		current = TriggerPasswordPrompt
		if m.passwordAttempts > 0 {
			stale = append(stale, TriggerLoginError)
		}
		m.passwordAttempts++
		if err := m.fillAndAdvance(ctx, sel.PasswordInput, m.a.creds.Password, sel.LoginButton); err != nil {
			m.fail(resilience.ReasonTimeout, err)
			return
		}

	case StateChallengeUnknown:
		m.fail(resilience.ReasonUnexpectedChallenge, eris.New("auth: unrecognized challenge"))
		return
	}

	trigger := m.observe(ctx, current, stale...)
	if trigger == TriggerNone {
		m.fail(resilience.ReasonTimeout, eris.Errorf("auth: page did not react within %s", m.a.cfg.StepTimeout))
		return
	}

	to, ok := next(m.state, trigger)
	if !ok {
		m.fail(resilience.ReasonUnexpectedChallenge, eris.Errorf("auth: unexpected %s while %s", trigger, m.state))
		return
	}

	switch {
	case m.state == StateEnteringIdentifier && trigger == TriggerLoginError:
		m.fail(resilience.ReasonBadCredentials, eris.New("auth: account not recognized"))
		return
	case m.state == StateChallengePhone && trigger == TriggerLoginError:
		m.fail(resilience.ReasonBadCredentials, eris.New("auth: challenge answer rejected"))
		return
	case to == StateEnteringPassword && m.state == StateEnteringPassword &&
		m.passwordAttempts >= m.a.cfg.MaxPasswordAttempts:
		m.fail(resilience.ReasonBadCredentials, eris.Errorf("auth: password rejected %d times", m.passwordAttempts))
		return
	}

	m.a.log.Debug("login transition",
		zap.Stringer("from", m.state),
		zap.Stringer("trigger", trigger),
		zap.Stringer("to", to),
	)
	m.enter(to)
}

// fillAndAdvance types value into the first present input of fields and
// presses the first present advance button, or Enter if none is shown.
func (m *machine) fillAndAdvance(ctx context.Context, fields selector.Chain, value string, advance selector.Chain) error {
	idx, err := browser.FindFirst(ctx, m.d, fields)
	if err != nil {
		return err
	}
	if idx < 0 {
		return eris.New("auth: input field not found")
	}
	field := fields[idx]
	if err := m.d.Fill(ctx, field, value); err != nil {
		return err
	}

	btn, err := browser.FindFirst(ctx, m.d, advance)
	if err != nil {
		return err
	}
	if btn >= 0 {
		return m.d.Click(ctx, advance[btn])
	}
	return m.d.Submit(ctx, field)
}

// observe waits for the page to show something other than current or a
// stale trigger left over from the previous step. If the step timeout
// passes with one of those still showing it is returned so the caller can
// treat it as a re-prompt; if nothing is recognizable it returns
// TriggerNone.
func (m *machine) observe(ctx context.Context, current Trigger, stale ...Trigger) Trigger {
	settled := func(t Trigger) bool {
		return t == current || slices.Contains(stale, t)
	}
	var seen Trigger
	err := browser.Poll(ctx, m.a.cfg.PollInterval, m.a.cfg.StepTimeout, func(ctx context.Context) (bool, error) {
		t, err := m.detect(ctx)
		if err != nil {
			return false, nil
		}
		seen = t
		return t != TriggerNone && !settled(t), nil
	})
	if err == nil {
		return seen
	}
	if seen != TriggerNone && settled(seen) {
		return seen
	}
	return TriggerNone
}

// detect returns the highest-priority trigger present on the page.
func (m *machine) detect(ctx context.Context) (Trigger, error) {
	sel := m.a.sel
	checks := []struct {
		chain   selector.Chain
		trigger Trigger
	}{
		{sel.HomeMarker, TriggerHome},
		{sel.UnknownChallenge, TriggerUnknownChallenge},
		{sel.LoginError, TriggerLoginError},
		{sel.PhonePrompt, TriggerPhonePrompt},
		{sel.PasswordInput, TriggerPasswordPrompt},
		{sel.IdentifierInput, TriggerIdentifierPrompt},
	}
	for _, c := range checks {
		idx, err := browser.FindFirst(ctx, m.d, c.chain)
		if err != nil {
			return TriggerNone, err
		}
		if idx >= 0 {
			return c.trigger, nil
		}
	}
	return TriggerNone, nil
}
