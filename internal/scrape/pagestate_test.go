package scrape

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/feedscrape/internal/selector"
)

func TestClassifyPage(t *testing.T) {
	set := selector.Default()

	tests := []struct {
		name string
		html string
		want PageState
	}{
		{
			name: "timeline with posts",
			html: `<div data-testid="ScrollSnap-List"><article data-testid="tweet">hi</article></div>`,
			want: PageReady,
		},
		{
			name: "timeline shell without posts yet",
			html: `<div data-testid="primaryColumn"><section></section></div>`,
			want: PageReady,
		},
		{
			name: "empty state",
			html: `<div data-testid="emptyState"><span>No results for "zzz"</span></div>`,
			want: PageEmpty,
		},
		{
			name: "logged out",
			html: `<a data-testid="loginButton" href="/login">Log in</a>`,
			want: PageLoggedOut,
		},
		{
			name: "public timeline under a login bar",
			html: `<div data-testid="ScrollSnap-List"><article data-testid="tweet">hi</article></div><a data-testid="loginButton" href="/login">Log in</a>`,
			want: PageLoggedOut,
		},
		{
			name: "rate limited",
			html: `<div><span>Something went wrong. Try reloading.</span></div>`,
			want: PageRateLimited,
		},
		{
			name: "arkose frame over timeline",
			html: `<div data-testid="ScrollSnap-List"></div><iframe src="https://client-api.arkoselabs.com/x"></iframe>`,
			want: PageInterstitial,
		},
		{
			name: "cloudflare wording",
			html: `<html><body><h1>Checking your browser before accessing x.com</h1></body></html>`,
			want: PageInterstitial,
		},
		{
			name: "captcha mentioned only in script",
			html: `<html><body><script>var hcaptcha = 1;</script><div></div></body></html>`,
			want: PageLoading,
		},
		{
			name: "blank",
			html: `<html><body></body></html>`,
			want: PageLoading,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyPage(tt.html, set.Page, set.Post.Container))
		})
	}
}

func TestPageState_Settled(t *testing.T) {
	assert.False(t, PageLoading.Settled())
	assert.True(t, PageEmpty.Settled())
	assert.True(t, PageInterstitial.Settled())
}
