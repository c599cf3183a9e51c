package api

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentials(t *testing.T) {
	token := base64.StdEncoding.EncodeToString([]byte("test:se:cret"))

	user, pass, err := credentials("Basic "+token, "")
	assert.NoError(t, err)
	assert.Equal(t, "test", user)
	assert.Equal(t, "se:cret", pass, "only the first colon separates user and password")

	user, _, err = credentials("", token)
	assert.NoError(t, err)
	assert.Equal(t, "test", user, "query token is used when the header is absent")

	_, _, err = credentials("Bearer abc", token)
	assert.ErrorIs(t, err, errAuthType, "a header always wins over the query token")

	_, _, err = credentials("", "")
	assert.ErrorIs(t, err, errNoCredentials)

	_, _, err = credentials("Basic !!!", "")
	assert.ErrorIs(t, err, errAuthFormat)

	_, _, err = credentials("", base64.StdEncoding.EncodeToString([]byte("nocolon")))
	assert.ErrorIs(t, err, errAuthFormat)
}
