package selector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_AllChainsPopulated(t *testing.T) {
	t.Parallel()

	set := Default()
	assert.NotEmpty(t, set.Login.IdentifierInput)
	assert.NotEmpty(t, set.Login.PasswordInput)
	assert.NotEmpty(t, set.Login.HomeMarker)
	assert.NotEmpty(t, set.Post.Container)
	assert.NotEmpty(t, set.Post.Permalink)
	assert.NotEmpty(t, set.Page.EmptyState)
	assert.Equal(t, ByCSS(`input[name='text'][autocomplete='username']`), set.Login.IdentifierInput[0])
}

func TestLoad_OverridesOnlyGivenChains(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "selectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
post:
  container:
    - css: "div.post"
    - xpath: "//div[@class='post']"
`), 0o600))

	set, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Chain{ByCSS("div.post"), ByXPath("//div[@class='post']")}, set.Post.Container)
	assert.Equal(t, Default().Post.Permalink, set.Post.Permalink)
	assert.Equal(t, Default().Login, set.Login)
}

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	t.Parallel()

	set, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), set)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("post: [unterminated"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestDump_ParsesBack(t *testing.T) {
	t.Parallel()

	out, err := Default().Dump()
	require.NoError(t, err)

	back, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, Default(), back)
}
