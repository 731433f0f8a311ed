package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermalinkFilter_IsExcluded(t *testing.T) {
	t.Parallel()
	f := NewPermalinkFilter(nil)

	tests := []struct {
		name     string
		href     string
		excluded bool
	}{
		{"post", "/examplenews/status/123", false},
		{"absolute post", "https://x.com/examplenews/status/123", false},
		{"analytics", "/examplenews/status/123/analytics", true},
		{"photo", "/examplenews/status/123/photo/1", true},
		{"video", "/examplenews/status/123/video/1", true},
		{"quotes", "/examplenews/status/123/quotes", true},
		{"mixed case", "/ExampleNews/status/123/Analytics", true},
		{"profile", "/examplenews", false},
		{"bad url", "://nope", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.excluded, f.IsExcluded(tt.href))
		})
	}
}

func TestPermalinkFilter_Parse(t *testing.T) {
	t.Parallel()
	f := NewPermalinkFilter(nil)

	handle, id, ok := f.Parse("/examplenews/status/1790000000000000001")
	assert.True(t, ok)
	assert.Equal(t, "examplenews", handle)
	assert.Equal(t, "1790000000000000001", id)

	handle, id, ok = f.Parse("https://x.com/i/web/status/42")
	assert.True(t, ok)
	assert.Empty(t, handle)
	assert.Equal(t, "42", id)

	_, _, ok = f.Parse("/examplenews/status/1/analytics")
	assert.False(t, ok)

	_, _, ok = f.Parse("/hashtag/Artemis")
	assert.False(t, ok)
}

func TestPermalinkFilter_DefaultPatterns(t *testing.T) {
	t.Parallel()
	assert.Equal(t, defaultExcludePatterns, NewPermalinkFilter(nil).patterns)
	assert.Equal(t, []string{"/x"}, NewPermalinkFilter([]string{"/x"}).patterns)
}

func TestMatchSegmented_DeepPaths(t *testing.T) {
	t.Parallel()
	assert.True(t, matchSegmented("/*/status/*/photo/*", "/a/status/1/photo/1/extra"))
	assert.True(t, matchSegmented("/*/status/*/photo/*", "/a/status/1/photo"))
	assert.False(t, matchSegmented("/*/status/*/photo/*", "/a/status/1"))
}
