package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/feedscrape/internal/selector"
)

func TestDumpSelectors_Defaults(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, dumpSelectors("", &out))

	set, err := selector.Parse(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, selector.Default(), set)
}

func TestDumpSelectors_AppliesOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte("post:\n  text:\n    - css: \"div.body\"\n"), 0o600))

	var out bytes.Buffer
	require.NoError(t, dumpSelectors(path, &out))

	set, err := selector.Parse(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, selector.Chain{selector.ByCSS("div.body")}, set.Post.Text)
}

func TestDumpSelectors_MissingFile(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, dumpSelectors(filepath.Join(t.TempDir(), "nope.yaml"), &out))
}
