package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := NewManager("").Load()
	require.NoError(t, err)

	assert.Equal(t, 22, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.ConnTimeout)
	assert.Equal(t, 60*time.Second, cfg.CmdTimeout)
	assert.Equal(t, "no paging", cfg.PagingCommand)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, ".", cfg.OutputDir)
	assert.False(t, cfg.Syn)
	assert.False(t, cfg.FailFast)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	content := "port: 2200\nprefix: fromfile\ncmd-timeout: 10s\ndecrypt: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "runcommand.yaml"), []byte(content), 0o644))

	t.Setenv("RUNCOMMAND_PREFIX", "fromenv")
	t.Setenv("RUNCOMMAND_CMD_TIMEOUT", "20s")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Duration("cmd-timeout", 60*time.Second, "")
	flags.String("cmdlist", "", "")
	require.NoError(t, flags.Parse([]string{"--cmd-timeout", "5s"}))

	m := NewManager("")
	require.NoError(t, m.BindFlags(flags))
	cfg, err := m.Load()
	require.NoError(t, err)

	assert.Equal(t, 2200, cfg.Port)
	assert.True(t, cfg.Decrypt)
	assert.Equal(t, "fromenv", cfg.Prefix)
	assert.Equal(t, 5*time.Second, cfg.CmdTimeout)
	assert.Equal(t, "runcommand.yaml", filepath.Base(m.ConfigFileUsed()))
}

func TestLoad_UnchangedFlagDoesNotOverrideEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("RUNCOMMAND_SYN", "true")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("syn", false, "")
	require.NoError(t, flags.Parse(nil))

	m := NewManager("")
	require.NoError(t, m.BindFlags(flags))
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.True(t, cfg.Syn)
}

func TestLoad_ExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"group": "campus", "syn": true}`), 0o644))

	m := NewManager(path)
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "campus", cfg.Group)
	assert.True(t, cfg.Syn)

	_, err = NewManager(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("RUNCOMMAND_LOGGING", "trace")

	_, err := NewManager("").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestValidate(t *testing.T) {
	m := NewManager("")
	base := Config{Port: 22, ConnTimeout: time.Second, CmdTimeout: time.Second, LogFormat: "text"}
	require.NoError(t, m.Validate(&base))

	bad := base
	bad.Port = 70000
	assert.Error(t, m.Validate(&bad))

	bad = base
	bad.LogFormat = "xml"
	assert.Error(t, m.Validate(&bad))

	bad = base
	bad.CmdTimeout = 0
	assert.Error(t, m.Validate(&bad))

	bad = base
	bad.StrictHostKey = true
	assert.Error(t, m.Validate(&bad))
}

func TestGetEnvVarNames(t *testing.T) {
	names := GetEnvVarNames()
	assert.Contains(t, names, "RUNCOMMAND_FAIL_FAST")
	assert.Contains(t, names, "RUNCOMMAND_OUTPUT_DIR")
	assert.Len(t, names, len(Keys()))
}

// chdir mirrors testing.T.Chdir (Go 1.24+), which the local toolchain lacks.
func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(orig) })
}
