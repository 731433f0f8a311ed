package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/feedscrape/internal/model"
	"github.com/sells-group/feedscrape/internal/resilience"
)

type fakeFetcher struct {
	kind   model.QueryKind
	err    error
	closed bool
}

func (f *fakeFetcher) fetch(q model.ScrapeQuery) (model.ResultSet, error) {
	f.kind = q.Kind
	if f.err != nil {
		return model.ResultSet{}, f.err
	}
	return model.NewResultSet(q, []model.Record{{ID: "42", Text: "hi"}}, time.Unix(100, 0)), nil
}

func (f *fakeFetcher) FetchChannelResults(_ context.Context, q model.ScrapeQuery) (model.ResultSet, error) {
	return f.fetch(q)
}

func (f *fakeFetcher) FetchSearchResults(_ context.Context, q model.ScrapeQuery) (model.ResultSet, error) {
	return f.fetch(q)
}

func (f *fakeFetcher) Close(context.Context) error {
	f.closed = true
	return nil
}

func TestRunScrape_WritesJSON(t *testing.T) {
	f := &fakeFetcher{}
	var out bytes.Buffer
	err := runScrape(context.Background(), f, model.ScrapeQuery{Kind: model.KindChannel, Target: "examplenews"}, &out)
	require.NoError(t, err)

	assert.Equal(t, model.KindChannel, f.kind)
	assert.True(t, f.closed)

	var rs model.ResultSet
	require.NoError(t, json.Unmarshal(out.Bytes(), &rs))
	require.Len(t, rs.Records, 1)
	assert.Equal(t, "42", rs.Records[0].ID)
}

func TestRunScrape_SearchDispatch(t *testing.T) {
	f := &fakeFetcher{}
	var out bytes.Buffer
	require.NoError(t, runScrape(context.Background(), f, model.ScrapeQuery{Kind: model.KindSearch, Queries: []string{"go"}}, &out))
	assert.Equal(t, model.KindSearch, f.kind)
}

func TestRunScrape_ErrorIsPublicMessage(t *testing.T) {
	f := &fakeFetcher{err: resilience.WrapError(assert.AnError, resilience.KindNavigation, "navigation failed")}
	var out bytes.Buffer
	err := runScrape(context.Background(), f, model.ScrapeQuery{Kind: model.KindSearch, Queries: []string{"go"}}, &out)

	require.Error(t, err)
	assert.Equal(t, "navigation failed", err.Error())
	assert.NotContains(t, err.Error(), assert.AnError.Error())
	assert.Empty(t, out.String())
	assert.True(t, f.closed)
}
