// Package config provides configuration management for runcommand.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. RUNCOMMAND_PORT.
const EnvPrefix = "RUNCOMMAND"

// Config represents the application configuration structure
type Config struct {
	Syn           bool          `mapstructure:"syn"`             // Run targets one at a time
	Decrypt       bool          `mapstructure:"decrypt"`         // Send "encrypt disable" first
	FailFast      bool          `mapstructure:"fail-fast"`       // Abort on auth/timeout failures
	DryRun        bool          `mapstructure:"dry-run"`         // Print the plan without connecting
	Logging       string        `mapstructure:"logging"`         // Log level (debug, warning); empty is info
	LogFormat     string        `mapstructure:"log-format"`      // Log format (json, text)
	Port          int           `mapstructure:"port"`            // SSH port for every controller
	ConnTimeout   time.Duration `mapstructure:"conn-timeout"`    // Connect and first-prompt timeout
	CmdTimeout    time.Duration `mapstructure:"cmd-timeout"`     // Per-command timeout
	StrictHostKey bool          `mapstructure:"strict-host-key"` // Verify host keys against KnownHosts
	KnownHosts    string        `mapstructure:"known-hosts"`     // known_hosts path
	PagingCommand string        `mapstructure:"paging-command"`  // Sent after login; empty disables
	Prefix        string        `mapstructure:"prefix"`          // Output file name prefix
	OutputDir     string        `mapstructure:"output-dir"`      // Directory for transcripts
	Group         string        `mapstructure:"group"`           // Inventory group to select
	Username      string        `mapstructure:"username"`        // Skips the username prompt
	Password      string        `mapstructure:"password"`        // Skips the password prompt
}

// Manager defines the interface for configuration management
type Manager interface {
	// Load reads configuration from all sources (files, env vars, CLI flags)
	Load() (*Config, error)

	// SetDefaults establishes default configuration values
	SetDefaults()

	// Validate ensures configuration values are valid and consistent
	Validate(config *Config) error
}

// ViperManager implements the Manager interface using Viper
type ViperManager struct {
	v          *viper.Viper
	configFile string
	usedFile   string
}

// NewManager creates a new configuration manager. A non-empty configFile is
// read instead of searching the default locations.
func NewManager(configFile string) *ViperManager {
	return &ViperManager{
		v:          viper.New(),
		configFile: configFile,
	}
}

// SetDefaults establishes default configuration values
func (m *ViperManager) SetDefaults() {
	m.v.SetDefault("syn", false)
	m.v.SetDefault("decrypt", false)
	m.v.SetDefault("fail-fast", false)
	m.v.SetDefault("dry-run", false)
	m.v.SetDefault("logging", "")
	m.v.SetDefault("log-format", "text")
	m.v.SetDefault("port", 22)
	m.v.SetDefault("conn-timeout", 30*time.Second)
	m.v.SetDefault("cmd-timeout", 60*time.Second)
	m.v.SetDefault("strict-host-key", false)
	m.v.SetDefault("known-hosts", defaultKnownHosts())
	m.v.SetDefault("paging-command", "no paging")
	m.v.SetDefault("prefix", "")
	m.v.SetDefault("output-dir", ".")
	m.v.SetDefault("group", "")
	m.v.SetDefault("username", "")
	m.v.SetDefault("password", "")
}

func defaultKnownHosts() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".ssh", "known_hosts")
	}
	return ""
}

// BindFlags makes explicitly set CLI flags override every other source.
// Flags that do not correspond to a configuration key are ignored.
func (m *ViperManager) BindFlags(flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil || !isKey(f.Name) {
			return
		}
		bindErr = m.v.BindPFlag(f.Name, f)
	})
	return bindErr
}

// Load reads configuration from all sources with proper precedence:
// defaults, config file, environment, then explicitly set flags.
func (m *ViperManager) Load() (*Config, error) {
	m.SetDefaults()

	m.v.SetEnvPrefix(EnvPrefix)
	m.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	m.v.AutomaticEnv()

	if err := m.readConfigFile(); err != nil {
		return nil, err
	}

	var config Config
	if err := m.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := m.Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func (m *ViperManager) readConfigFile() error {
	if m.configFile != "" {
		m.v.SetConfigFile(m.configFile)
		if err := m.v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", m.configFile, err)
		}
		m.usedFile = m.v.ConfigFileUsed()
		return nil
	}

	m.v.SetConfigName("runcommand")

	// Add config paths in precedence order (current dir highest, system lowest)
	m.v.AddConfigPath(".")
	if homeDir, err := os.UserHomeDir(); err == nil {
		m.v.AddConfigPath(filepath.Join(homeDir, ".config", "runcommand"))
	}
	m.v.AddConfigPath("/etc/runcommand/")

	if err := m.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	m.usedFile = m.v.ConfigFileUsed()
	return nil
}

// ConfigFileUsed returns the file Load read, or "" when none was found.
func (m *ViperManager) ConfigFileUsed() string {
	return m.usedFile
}

// Validate ensures configuration values are valid and consistent
func (m *ViperManager) Validate(config *Config) error {
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", config.Port)
	}

	if config.ConnTimeout <= 0 {
		return fmt.Errorf("conn-timeout must be positive, got %v", config.ConnTimeout)
	}
	if config.CmdTimeout <= 0 {
		return fmt.Errorf("cmd-timeout must be positive, got %v", config.CmdTimeout)
	}

	validLogLevels := map[string]bool{
		"":        true,
		"info":    true,
		"debug":   true,
		"warning": true,
	}
	if !validLogLevels[config.Logging] {
		return fmt.Errorf("invalid log level '%s': must be one of 'debug' or 'warning'", config.Logging)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[config.LogFormat] {
		return fmt.Errorf("invalid log format '%s': must be one of 'json' or 'text'", config.LogFormat)
	}

	if config.StrictHostKey && config.KnownHosts == "" {
		return fmt.Errorf("strict-host-key requires a known-hosts file")
	}

	return nil
}

// Keys lists every configuration key in declaration order.
func Keys() []string {
	return []string{
		"syn", "decrypt", "fail-fast", "dry-run", "logging", "log-format", "port",
		"conn-timeout", "cmd-timeout", "strict-host-key", "known-hosts",
		"paging-command", "prefix", "output-dir", "group", "username", "password",
	}
}

func isKey(name string) bool {
	for _, k := range Keys() {
		if k == name {
			return true
		}
	}
	return false
}

// GetEnvVarNames returns a list of all supported environment variable names
func GetEnvVarNames() []string {
	keys := Keys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
	}
	return names
}
