package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sells-group/feedscrape/internal/selector"
)

// PageState describes what the browser is showing after navigation.
type PageState string

const (
	// PageLoading means nothing recognizable has rendered yet.
	PageLoading      PageState = "loading"
	PageReady        PageState = "ready"
	PageEmpty        PageState = "empty"
	PageLoggedOut    PageState = "logged_out"
	PageRateLimited  PageState = "rate_limited"
	PageInterstitial PageState = "interstitial"
)

// Settled reports whether polling can stop at this state.
func (s PageState) Settled() bool {
	return s != PageLoading
}

// ClassifyPage inspects rendered HTML. Blocking pages take precedence over
// content: an interstitial over a half-rendered timeline is still an
// interstitial, and a public timeline under a login bar is logged out.
// posts recognizes individual post containers.
func ClassifyPage(html string, page selector.PageSelectors, posts selector.Chain) PageState {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return PageLoading
	}
	root := doc.Selection

	switch {
	case page.Interstitial.Matches(root) || challengeText(root):
		return PageInterstitial
	case page.RateLimited.Matches(root):
		return PageRateLimited
	case page.LoggedOut.Matches(root):
		return PageLoggedOut
	case posts.Matches(root):
		return PageReady
	case page.EmptyState.Matches(root):
		return PageEmpty
	case page.Timeline.Matches(root):
		return PageReady
	}
	return PageLoading
}

// challengeText looks for anti-bot challenge wording in the visible body
// text. Script bodies are ignored since the app bundle mentions captchas.
func challengeText(root *goquery.Selection) bool {
	body := root.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	lower := strings.ToLower(body.Text())

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return true
	}
	return strings.Contains(lower, "recaptcha") || strings.Contains(lower, "hcaptcha")
}
