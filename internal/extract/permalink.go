package extract

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// defaultExcludePatterns match links inside a post that point at a
// sub-page of the post rather than the post itself.
var defaultExcludePatterns = []string{
	"/*/status/*/analytics",
	"/*/status/*/photo/*",
	"/*/status/*/video/*",
	"/*/status/*/quotes",
	"/*/status/*/retweets",
	"/*/status/*/likes",
	"/*/status/*/history",
}

var (
	permalinkRe = regexp.MustCompile(`^/([A-Za-z0-9_]{1,15})/status/(\d+)`)
	anonymousRe = regexp.MustCompile(`^/i/(?:web/)?status/(\d+)`)
)

// PermalinkFilter decides which post links identify a post, using
// glob-style path patterns.
type PermalinkFilter struct {
	patterns []string
}

// NewPermalinkFilter creates a filter from glob patterns such as
// "/*/status/*/analytics". Falls back to the default patterns if none are
// provided.
func NewPermalinkFilter(patterns []string) *PermalinkFilter {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	return &PermalinkFilter{patterns: patterns}
}

// IsExcluded reports whether href is a post sub-page link. Unparseable
// links are excluded.
func (f *PermalinkFilter) IsExcluded(href string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return true
	}
	p := strings.ToLower(strings.TrimSuffix(u.Path, "/"))
	for _, pattern := range f.patterns {
		if matchSegmented(strings.ToLower(pattern), p) {
			return true
		}
	}
	return false
}

// Parse returns the author handle and post ID of an accepted permalink.
func (f *PermalinkFilter) Parse(href string) (handle, id string, ok bool) {
	if f.IsExcluded(href) {
		return "", "", false
	}
	u, _ := url.Parse(href)
	if m := anonymousRe.FindStringSubmatch(u.Path); m != nil {
		return "", m[1], true
	}
	m := permalinkRe.FindStringSubmatch(u.Path)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// matchSegmented performs glob matching where a pattern ending in "/*"
// also matches deeper paths below it.
func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if ok, _ := path.Match(prefix, urlPath); ok {
			return true
		}
		depth := strings.Count(prefix, "/")
		parts := strings.SplitAfterN(urlPath, "/", depth+2)
		if len(parts) > depth+1 {
			head := strings.TrimSuffix(strings.Join(parts[:depth+1], ""), "/")
			if ok, _ := path.Match(prefix, head); ok {
				return true
			}
		}
	}
	return false
}
