package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewResultSet(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("EST", -5*3600)
	rs := NewResultSet(ScrapeQuery{Kind: KindSearch, Queries: []string{"go"}}, nil, time.Date(2026, 1, 2, 3, 4, 5, 0, loc))
	assert.NotNil(t, rs.Records)
	assert.Equal(t, 0, rs.Len())
	assert.Equal(t, time.UTC, rs.FetchedAt.Location())
	assert.False(t, rs.FromCache)

	hit := rs.Cached()
	assert.True(t, hit.FromCache)
	assert.False(t, rs.FromCache)
	assert.Equal(t, rs.FetchedAt, hit.FetchedAt)
}

func TestResultSet_ByTerm(t *testing.T) {
	t.Parallel()

	t.Run("search terms", func(t *testing.T) {
		t.Parallel()
		q := ScrapeQuery{Kind: KindSearch, Queries: []string{"go", "rust"}}
		rs := NewResultSet(q, []Record{{ID: "1", Query: "go"}, {ID: "2", Query: "go"}}, time.Now())
		groups := rs.ByTerm()
		assert.Len(t, groups["go"], 2)
		assert.Empty(t, groups["rust"])
		assert.Contains(t, groups, "rust")
	})

	t.Run("channel timeline keyed by target", func(t *testing.T) {
		t.Parallel()
		q := ScrapeQuery{Kind: KindChannel, Target: "examplenews"}
		rs := NewResultSet(q, []Record{{ID: "1"}}, time.Now())
		assert.Len(t, rs.ByTerm()["examplenews"], 1)
	})
}
