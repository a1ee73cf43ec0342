package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for snapback. It is read once at startup
// and passed around as an immutable value; nothing mutates it afterwards.
type Config struct {
	BaseDir  string        `toml:"base_dir"`
	LogDir   string        `toml:"log_dir"`
	Journal  JournalConfig `toml:"journal"`
	Profiles []Profile     `toml:"profiles"`
}

// JournalConfig configures the cycle journal database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type JournalConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// Profile describes one backup profile: where the data comes from, where its
// repository lives, and how its snapshots are retained.
type Profile struct {
	Name       string   `toml:"name"`
	Endpoint   string   `toml:"endpoint,omitempty"` // "user@host"; empty for local sources
	Sources    []string `toml:"sources"`
	Repository string   `toml:"repository"`
	Backend    string   `toml:"backend"` // "btrfs" or "plain"

	// TimestampFormat selects how snapshot names encode their timestamp:
	// "unix" or "iso8601". Fixed for the lifetime of a repository.
	TimestampFormat string `toml:"timestamp_format"`

	MaxLongCount int `toml:"max_long_count"` // long-lived snapshots kept; 0 disables the tier
	MaxAgeDays   int `toml:"max_age_days"`   // short-lived max age and long-lived spacing

	SSHKey   string   `toml:"ssh_key,omitempty"` // identity file for the endpoint
	Excludes []string `toml:"excludes,omitempty"`
}

// Validate checks the profile's fields. It is called once at startup, before
// any repository is touched.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile has no name")
	}
	if len(p.Sources) == 0 {
		return fmt.Errorf("profile %s has no sources", p.Name)
	}
	if p.Repository == "" {
		return fmt.Errorf("profile %s has no repository path", p.Name)
	}
	switch p.Backend {
	case "btrfs", "plain":
	default:
		return fmt.Errorf("profile %s: unknown backend %q", p.Name, p.Backend)
	}
	switch p.TimestampFormat {
	case "unix", "iso8601":
	default:
		return fmt.Errorf("profile %s: unknown timestamp format %q", p.Name, p.TimestampFormat)
	}
	if p.MaxLongCount < 0 {
		return fmt.Errorf("profile %s: max_long_count must be >= 0", p.Name)
	}
	if p.MaxAgeDays <= 0 {
		return fmt.Errorf("profile %s: max_age_days must be positive", p.Name)
	}
	return nil
}

// FindProfile returns the named profile, or false if no such profile exists.
func (c *Config) FindProfile(name string) (Profile, bool) {
	for _, p := range c.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// NewConfig creates a new Config with default paths under baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Journal: JournalConfig{
			Type:    "sqlite",
			DataDir: baseDir,
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
