package credentials

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runcommand/internal/ssh"
)

func TestPrompt_ReadsBoth(t *testing.T) {
	var out bytes.Buffer
	creds, err := Prompt(strings.NewReader("admin\nse cret \n"), &out, ssh.Credentials{})
	require.NoError(t, err)

	assert.Equal(t, "admin", creds.Username)
	assert.Equal(t, "se cret ", creds.Password)
	assert.Contains(t, out.String(), "username: ")
	assert.Contains(t, out.String(), "password: ")
	assert.NotContains(t, out.String(), "se cret")
}

func TestPrompt_PresetSkipsPrompts(t *testing.T) {
	var out bytes.Buffer
	creds, err := Prompt(strings.NewReader("secret"), &out, ssh.Credentials{Username: "ops"})
	require.NoError(t, err)

	assert.Equal(t, ssh.Credentials{Username: "ops", Password: "secret"}, creds)
	assert.NotContains(t, out.String(), "username")

	out.Reset()
	creds, err = Prompt(strings.NewReader(""), &out, ssh.Credentials{Username: "ops", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, "x", creds.Password)
	assert.Empty(t, out.String())
}

func TestPrompt_Errors(t *testing.T) {
	var out bytes.Buffer
	_, err := Prompt(strings.NewReader("\n"), &out, ssh.Credentials{})
	assert.ErrorIs(t, err, ErrNoUsername)

	_, err = Prompt(strings.NewReader("admin\n"), &out, ssh.Credentials{})
	assert.Error(t, err)
}
