// Package config provides configuration management for go-pugbin.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var AppVersion = "-unset-" // will be set at build time

const (
	// Default connection settings
	DefaultConnectTimeout = 30 * time.Second

	// Scan defaults
	DefaultMessageScanLimit = 20000
	DefaultBackfillDays     = 10
	DefaultNewGroupScanDays = 5

	// Environment overrides
	envConfigPath     = "PUGBIN_CONFIG"
	envDatabaseDriver = "PUGBIN_DATABASE_DRIVER"
	envDatabaseDSN    = "PUGBIN_DATABASE_DSN"
	envNNTPHost       = "PUGBIN_NNTP_HOST"
	envNNTPUsername   = "PUGBIN_NNTP_USERNAME"
	envNNTPPassword   = "PUGBIN_NNTP_PASSWORD"
	envScanLimit      = "PUGBIN_SCAN_LIMIT"
)

// MainConfig holds the main configuration for go-pugbin
type MainConfig struct {
	// Mutex for thread-safe access
	mux sync.Mutex `yaml:"-"`

	Scan ScanConfig `yaml:"scan"`

	// NNTP Provider configurations
	Providers []Provider `yaml:"providers"`

	Database DatabaseConfig `yaml:"database"`

	Web WebConfig `yaml:"web"`

	AppVersion string `yaml:"-"` // Application version, set at build time
}

// ScanConfig controls the batch windows used by update and backfill.
type ScanConfig struct {
	MessageScanLimit int64 `yaml:"message_scan_limit"`  // max articles per batch window
	BackfillDays     int   `yaml:"backfill_days"`       // default backfill depth
	NewGroupScanDays int   `yaml:"new_group_scan_days"` // bootstrap lookback for never-scanned groups
	Parallel         int   `yaml:"parallel"`            // groups processed concurrently
}

// Provider represents an NNTP server configuration
type Provider struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	SSL      bool   `yaml:"ssl"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_connections"`
	Enabled  bool   `yaml:"enabled"`
	Priority int    `yaml:"priority"` // Lower numbers = higher priority
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite3" or "postgres"
	DSN    string `yaml:"dsn"`    // file path for sqlite3, connection string for postgres
}

// WebConfig holds status API configuration
type WebConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	SSL        bool   `yaml:"ssl"`
	CertFile   string `yaml:"cert_file,omitempty"`
	KeyFile    string `yaml:"key_file,omitempty"`
	Debug      bool   `yaml:"debug"`
}

var DefaultProviders = []Provider{
	{
		Name:     "localhost",
		Host:     "localhost",
		Port:     119,
		SSL:      false,
		MaxConns: 4,
		Enabled:  true,
		Priority: 1,
	},
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *MainConfig {
	providers := make([]Provider, len(DefaultProviders))
	copy(providers, DefaultProviders)
	return &MainConfig{
		AppVersion: AppVersion,
		Scan: ScanConfig{
			MessageScanLimit: DefaultMessageScanLimit,
			BackfillDays:     DefaultBackfillDays,
			NewGroupScanDays: DefaultNewGroupScanDays,
			Parallel:         1,
		},
		Providers: providers,
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "data/pugbin.db",
		},
		Web: WebConfig{
			ListenAddr: "127.0.0.1:11981",
		},
	}
}

// Load reads the YAML file at path (if any) on top of the defaults,
// then applies environment overrides and validates the result.
// An empty path falls back to $PUGBIN_CONFIG.
func Load(path string) (*MainConfig, error) {
	cfg := NewDefaultConfig()

	if path == "" {
		path = os.Getenv(envConfigPath)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		log.Printf("[CONFIG] loaded %s with %d providers", path, len(cfg.Providers))
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *MainConfig) applyEnvOverrides() {
	if v := os.Getenv(envDatabaseDriver); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(envDatabaseDSN); v != "" {
		c.Database.DSN = v
	}
	c.Scan.MessageScanLimit = ParseEnvInt64(envScanLimit, c.Scan.MessageScanLimit)
	if len(c.Providers) == 0 {
		return
	}
	if v := os.Getenv(envNNTPHost); v != "" {
		c.Providers[0].Host = v
	}
	if v := os.Getenv(envNNTPUsername); v != "" {
		c.Providers[0].Username = v
	}
	if v := os.Getenv(envNNTPPassword); v != "" {
		c.Providers[0].Password = v
	}
}

// applyDefaults fills zero values a partial YAML file may leave behind.
func (c *MainConfig) applyDefaults() {
	if c.Scan.MessageScanLimit == 0 {
		c.Scan.MessageScanLimit = DefaultMessageScanLimit
	}
	if c.Scan.BackfillDays == 0 {
		c.Scan.BackfillDays = DefaultBackfillDays
	}
	if c.Scan.NewGroupScanDays == 0 {
		c.Scan.NewGroupScanDays = DefaultNewGroupScanDays
	}
	if c.Scan.Parallel == 0 {
		c.Scan.Parallel = 1
	}
	for i := range c.Providers {
		if c.Providers[i].Port == 0 {
			if c.Providers[i].SSL {
				c.Providers[i].Port = 563
			} else {
				c.Providers[i].Port = 119
			}
		}
		if c.Providers[i].MaxConns == 0 {
			c.Providers[i].MaxConns = 1
		}
	}
}

// Validate checks the configuration for values the scanner cannot work with.
func (c *MainConfig) Validate() error {
	if c.Scan.MessageScanLimit < 1 {
		return fmt.Errorf("scan.message_scan_limit must be positive, got %d", c.Scan.MessageScanLimit)
	}
	if c.Scan.BackfillDays < 0 || c.Scan.NewGroupScanDays < 0 {
		return fmt.Errorf("scan day settings must not be negative")
	}
	if c.Scan.Parallel < 1 {
		return fmt.Errorf("scan.parallel must be positive, got %d", c.Scan.Parallel)
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	for i, p := range c.Providers {
		if p.Host == "" {
			return fmt.Errorf("provider %d (%s): host is required", i, p.Name)
		}
	}
	return nil
}

// PrimaryProvider returns the enabled provider with the lowest priority value.
func (c *MainConfig) PrimaryProvider() (*Provider, error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	var best *Provider
	for i := range c.Providers {
		p := &c.Providers[i]
		if !p.Enabled {
			continue
		}
		if best == nil || p.Priority < best.Priority {
			best = p
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no enabled provider configured")
	}
	return best, nil
}

// SetProviderPassword replaces the password of the named provider.
func (c *MainConfig) SetProviderPassword(name, password string) {
	c.mux.Lock()
	defer c.mux.Unlock()
	for i := range c.Providers {
		if c.Providers[i].Name == name {
			c.Providers[i].Password = password
		}
	}
}

// ParseEnvInt64 returns the int64 in env key or def when unset or malformed.
func ParseEnvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("[CONFIG] ignoring malformed %s=%q: %v", key, v, err)
		return def
	}
	return n
}
