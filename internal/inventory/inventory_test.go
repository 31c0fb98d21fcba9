package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runcommand/internal/target"
)

const sampleInventory = `
all:
  hosts:
    10.0.0.9:
  children:
    campus:
      hosts:
        wlc-a:
          ansible_host: 10.0.0.1
        wlc-b:
          ansible_host: 10.0.0.2
          ansible_port: 2222
      children:
        lab:
          hosts:
            wlc-lab:
              ansible_host: lab.example.com
            10.0.0.1:
    branch:
      hosts:
        10.1.0.1:
`

func writeInventory(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func hosts(targets []target.Target) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.Host)
	}
	return out
}

func TestLoadTargets(t *testing.T) {
	inv, err := LoadInventoryFromFile(writeInventory(t, "hosts.yaml", sampleInventory), 0)
	require.NoError(t, err)

	targets, skipped, err := inv.LoadTargets()
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.9", "10.1.0.1", "10.0.0.1", "10.0.0.2"}, hosts(targets))
	assert.Equal(t, 2222, targets[3].Port)
	assert.Equal(t, target.DefaultPort, targets[0].Port)
	assert.Equal(t, "wlc-a", targets[2].Original)
	assert.Equal(t, []target.Skipped{{Value: "wlc-lab"}}, skipped)
}

func TestGetGroups(t *testing.T) {
	inv := NewAnsibleInventory(writeInventory(t, "hosts.yml", sampleInventory), 0)

	groups, err := inv.GetGroups()
	require.NoError(t, err)
	assert.Equal(t, []string{"branch", "campus", "lab"}, groups)
}

func TestGetTargetsByGroup(t *testing.T) {
	inv := NewAnsibleInventory(writeInventory(t, "hosts.yml", sampleInventory), 8022)

	targets, _, err := inv.GetTargetsByGroup("lab")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1"}, hosts(targets))
	assert.Equal(t, 8022, targets[0].Port)

	_, _, err = inv.GetTargetsByGroup("missing")
	assert.Error(t, err)
}

func TestLoadTargets_JSON(t *testing.T) {
	path := writeInventory(t, "hosts.json", `{"all":{"hosts":{"core":{"ansible_host":"10.2.0.1"}}}}`)

	targets, _, err := NewAnsibleInventory(path, 0).LoadTargets()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.2.0.1"}, hosts(targets))
}

func TestLoadTargets_NoIPv4(t *testing.T) {
	path := writeInventory(t, "hosts.yaml", "all:\n  hosts:\n    wlc.example.com:\n")

	_, skipped, err := NewAnsibleInventory(path, 0).LoadTargets()
	assert.ErrorIs(t, err, target.ErrNoTargets)
	assert.Len(t, skipped, 1)
}

func TestIsInventoryFile(t *testing.T) {
	assert.True(t, IsInventoryFile("hosts.YAML"))
	assert.True(t, IsInventoryFile("hosts.json"))
	assert.False(t, IsInventoryFile("iplist.txt"))

	_, err := LoadInventoryFromFile("iplist.txt", 0)
	assert.Error(t, err)
}
