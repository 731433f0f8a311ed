package browser

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusAuthenticating  Status = "authenticating"
	StatusAuthenticated   Status = "authenticated"
	StatusFailed          Status = "failed"
	StatusExpired         Status = "expired"
)

// Session is one live automated browser and its profile directory. It is
// used only by the holder of the request gate.
type Session struct {
	ID         string
	ProfileDir string
	CreatedAt  time.Time
	UserAgent  string
	Viewport   Viewport
	Version    string

	driver Driver

	mu        sync.Mutex
	status    Status
	scrapes   int
	lastUsed  time.Time
	destroyed bool
}

func newSession(id, profileDir string, d Driver, now time.Time) *Session {
	return &Session{
		ID:         id,
		ProfileDir: profileDir,
		CreatedAt:  now,
		driver:     d,
		status:     StatusUnauthenticated,
		lastUsed:   now,
	}
}

// Driver returns the session's browser driver.
func (s *Session) Driver() Driver {
	return s.driver
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus records a status transition.
func (s *Session) SetStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

// Authenticated reports whether login completed on this session.
func (s *Session) Authenticated() bool {
	return s.Status() == StatusAuthenticated
}

// Scrapes returns how many scrapes the session has served.
func (s *Session) Scrapes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scrapes
}

// LastUsed returns when the session was last released.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Expired reports whether the session is past maxAge or has served
// maxScrapes. Zero limits are ignored.
func (s *Session) Expired(now time.Time, maxAge time.Duration, maxScrapes int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusExpired || s.status == StatusFailed {
		return true
	}
	if maxAge > 0 && now.Sub(s.CreatedAt) >= maxAge {
		return true
	}
	return maxScrapes > 0 && s.scrapes >= maxScrapes
}

// Destroyed reports whether teardown completed.
func (s *Session) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

func (s *Session) recordUse(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrapes++
	s.lastUsed = now
}

func (s *Session) markDestroyed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	if s.status != StatusFailed {
		s.status = StatusExpired
	}
}
