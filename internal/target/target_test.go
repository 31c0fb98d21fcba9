package target

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsIPv4(t *testing.T) {
	valid := []string{"10.0.0.1", "192.168.1.254", "0.0.0.0", "255.255.255.255"}
	for _, s := range valid {
		assert.True(t, IsIPv4(s), s)
	}

	invalid := []string{"", "not-an-ip", "10.0.0", "10.0.0.256", "::1", "::ffff:10.0.0.1", "10.0.0.1/24", " 10.0.0.1", "wlc01.example.com"}
	for _, s := range invalid {
		assert.False(t, IsIPv4(s), s)
	}
}

func TestNew(t *testing.T) {
	tgt, err := New(" 10.0.0.1 ", 0)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", tgt.Host)
	assert.Equal(t, DefaultPort, tgt.Port)
	assert.Equal(t, "10.0.0.1:22", tgt.Address())

	_, err = New("10.0.0.1", 70000)
	assert.Error(t, err)

	_, err = New("controller", 22)
	assert.Error(t, err)
}

func TestParser_SkipsInvalidLines(t *testing.T) {
	input := "10.0.0.1\n\nnot-an-ip\n# comment\n  10.0.0.2  \n10.0.0.1\n"

	targets, skipped, err := NewParser(2222).Parse(strings.NewReader(input))
	require.NoError(t, err)

	require.Len(t, targets, 2)
	assert.Equal(t, "10.0.0.1", targets[0].Host)
	assert.Equal(t, 1, targets[0].Line)
	assert.Equal(t, 2222, targets[0].Port)
	assert.Equal(t, "10.0.0.2", targets[1].Host)
	assert.Equal(t, 5, targets[1].Line)

	assert.Equal(t, []Skipped{{Line: 3, Value: "not-an-ip"}}, skipped)
}

func TestParser_EmptyResultIsFatal(t *testing.T) {
	_, skipped, err := NewParser(0).Parse(strings.NewReader("bogus\n\nalso-bogus\n"))
	require.ErrorIs(t, err, ErrNoTargets)
	assert.Len(t, skipped, 2)
}

func TestParseHostFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iplist.txt")
	require.NoError(t, os.WriteFile(path, []byte("10.0.0.1\nnot-an-ip\n"), 0o644))

	targets, skipped, err := NewParser(0).ParseHostFile(path)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "10.0.0.1", targets[0].Host)
	assert.Len(t, skipped, 1)

	_, _, err = NewParser(0).ParseHostFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
