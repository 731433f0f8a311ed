package model

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentials_NeverPrintSecrets(t *testing.T) {
	t.Parallel()

	c := Credentials{Username: "scraper_bot", Password: "hunter2", Phone: "+15550100"}

	for _, s := range []string{c.String(), fmt.Sprintf("%v", c), fmt.Sprintf("%+v", c), fmt.Sprintf("%#v", c)} {
		assert.NotContains(t, s, "hunter2")
		assert.NotContains(t, s, "+15550100")
		assert.NotContains(t, s, "scraper_bot")
	}

	b, err := json.Marshal(c)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "hunter2")
	assert.Contains(t, string(b), c.Identity())
}

func TestCredentials_Identity(t *testing.T) {
	t.Parallel()

	a := Credentials{Username: "Scraper_Bot"}
	b := Credentials{Username: " scraper_bot "}
	assert.Equal(t, a.Identity(), b.Identity())
	assert.Len(t, a.Identity(), 12)
}

func TestCredentials_ValidAndChallenge(t *testing.T) {
	t.Parallel()

	assert.False(t, Credentials{Username: "u"}.Valid())
	assert.True(t, Credentials{Username: "u", Password: "p"}.Valid())
	assert.Equal(t, "u", Credentials{Username: "u"}.ChallengeAnswer())
	assert.Equal(t, "+1", Credentials{Username: "u", Phone: "+1"}.ChallengeAnswer())
}
