// Package inventory reads controller addresses from Ansible-style inventory files.
package inventory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"runcommand/internal/target"

	"gopkg.in/yaml.v3"
)

// InventoryProvider defines the interface for inventory providers
type InventoryProvider interface {
	// LoadTargets loads every IPv4 target in the inventory
	LoadTargets() ([]target.Target, []target.Skipped, error)
	// GetGroups returns available groups in the inventory
	GetGroups() ([]string, error)
	// GetTargetsByGroup returns targets of a group and its children
	GetTargetsByGroup(group string) ([]target.Target, []target.Skipped, error)
}

// AnsibleInventory represents an Ansible inventory
type AnsibleInventory struct {
	path string
	port int
}

// NewAnsibleInventory creates a new Ansible inventory provider. port is used
// for hosts without ansible_port; 0 means target.DefaultPort.
func NewAnsibleInventory(path string, port int) *AnsibleInventory {
	return &AnsibleInventory{path: path, port: port}
}

// AnsibleInventoryData represents the structure of an Ansible inventory
type AnsibleInventoryData struct {
	All struct {
		Children map[string]*AnsibleGroup `yaml:"children" json:"children"`
		Hosts    map[string]*AnsibleHost  `yaml:"hosts" json:"hosts"`
	} `yaml:"all" json:"all"`
}

// AnsibleGroup represents an Ansible inventory group
type AnsibleGroup struct {
	Hosts    map[string]*AnsibleHost  `yaml:"hosts" json:"hosts"`
	Children map[string]*AnsibleGroup `yaml:"children" json:"children"`
}

// AnsibleHost represents an Ansible inventory host
type AnsibleHost struct {
	AnsibleHost string `yaml:"ansible_host" json:"ansible_host"`
	AnsiblePort int    `yaml:"ansible_port" json:"ansible_port"`
}

// LoadTargets loads targets from the whole inventory
func (ai *AnsibleInventory) LoadTargets() ([]target.Target, []target.Skipped, error) {
	data, err := ai.loadInventoryData()
	if err != nil {
		return nil, nil, err
	}

	c := newCollector(ai.port)
	c.addHosts(data.All.Hosts)
	for _, name := range sortedKeys(data.All.Children) {
		c.addGroup(data.All.Children[name])
	}
	return c.result()
}

// GetGroups returns every group name, nested groups included, sorted
func (ai *AnsibleInventory) GetGroups() ([]string, error) {
	data, err := ai.loadInventoryData()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var walk func(groups map[string]*AnsibleGroup)
	walk = func(groups map[string]*AnsibleGroup) {
		for name, g := range groups {
			seen[name] = true
			if g != nil {
				walk(g.Children)
			}
		}
	}
	walk(data.All.Children)

	groups := make([]string, 0, len(seen))
	for name := range seen {
		groups = append(groups, name)
	}
	sort.Strings(groups)
	return groups, nil
}

// GetTargetsByGroup returns targets of the named group and its children
func (ai *AnsibleInventory) GetTargetsByGroup(group string) ([]target.Target, []target.Skipped, error) {
	data, err := ai.loadInventoryData()
	if err != nil {
		return nil, nil, err
	}

	g := findGroup(data.All.Children, group)
	if g == nil {
		return nil, nil, fmt.Errorf("group '%s' not found in inventory", group)
	}

	c := newCollector(ai.port)
	c.addGroup(g)
	return c.result()
}

func (ai *AnsibleInventory) loadInventoryData() (*AnsibleInventoryData, error) {
	content, err := os.ReadFile(ai.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory file: %w", err)
	}

	var data AnsibleInventoryData
	if strings.ToLower(filepath.Ext(ai.path)) == ".json" {
		err = json.Unmarshal(content, &data)
	} else {
		err = yaml.Unmarshal(content, &data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse inventory file: %w", err)
	}

	return &data, nil
}

func findGroup(groups map[string]*AnsibleGroup, name string) *AnsibleGroup {
	for _, key := range sortedKeys(groups) {
		g := groups[key]
		if key == name {
			if g == nil {
				return &AnsibleGroup{}
			}
			return g
		}
		if g != nil {
			if found := findGroup(g.Children, name); found != nil {
				return found
			}
		}
	}
	return nil
}

// collector flattens hosts in deterministic order, skipping non-IPv4 entries
// and duplicates.
type collector struct {
	port    int
	seen    map[string]bool
	targets []target.Target
	skipped []target.Skipped
}

func newCollector(port int) *collector {
	return &collector{port: port, seen: make(map[string]bool)}
}

func (c *collector) addGroup(g *AnsibleGroup) {
	if g == nil {
		return
	}
	c.addHosts(g.Hosts)
	for _, name := range sortedKeys(g.Children) {
		c.addGroup(g.Children[name])
	}
}

func (c *collector) addHosts(hosts map[string]*AnsibleHost) {
	for _, name := range sortedKeys(hosts) {
		c.addHost(name, hosts[name])
	}
}

func (c *collector) addHost(name string, host *AnsibleHost) {
	address := name
	port := c.port
	if host != nil {
		if host.AnsibleHost != "" {
			address = host.AnsibleHost
		}
		if host.AnsiblePort > 0 {
			port = host.AnsiblePort
		}
	}

	t, err := target.New(address, port)
	if err != nil {
		c.skipped = append(c.skipped, target.Skipped{Value: name})
		return
	}
	if c.seen[t.Host] {
		return
	}
	c.seen[t.Host] = true
	t.Original = name
	c.targets = append(c.targets, t)
}

func (c *collector) result() ([]target.Target, []target.Skipped, error) {
	if len(c.targets) == 0 {
		return nil, c.skipped, target.ErrNoTargets
	}
	return c.targets, c.skipped, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsInventoryFile reports whether path should be read as an inventory rather
// than a plain address list.
func IsInventoryFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml", ".json":
		return true
	}
	return false
}

// LoadInventoryFromFile loads inventory from a file based on its extension
func LoadInventoryFromFile(path string, port int) (InventoryProvider, error) {
	if !IsInventoryFile(path) {
		return nil, fmt.Errorf("unsupported inventory file format: %s", filepath.Ext(path))
	}
	return NewAnsibleInventory(path, port), nil
}
