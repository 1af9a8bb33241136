// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     config
// Description: TOML application configuration with defaults and env overrides
// License:     MIT
// ============================================================================

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	verrors "github.com/villain-cms/villain/pkg/core/errors"
)

// EnvConfigPath names the environment variable that points at the config file.
const EnvConfigPath = "VILLAIN_CONFIG"

// Config holds the complete application configuration
type Config struct {
	General   GeneralConfig   `toml:"general"`
	Datastore DatastoreConfig `toml:"datastore"`
	Server    ServerConfig    `toml:"server"`
	Requests  RequestsConfig  `toml:"requests"`
	Bundles   BundlesConfig   `toml:"bundles"`
	Filters   FiltersConfig   `toml:"filters"`
	Auth      AuthConfig      `toml:"auth"`
	Telemetry TelemetryConfig `toml:"telemetry"`

	path string
}

// GeneralConfig holds general application settings
type GeneralConfig struct {
	Name        string `toml:"name"`
	Environment string `toml:"environment"`
	DataDir     string `toml:"data_dir"`
	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`
}

// DatastoreConfig selects the document store backend
type DatastoreConfig struct {
	// Driver is one of memory, sqlite, postgres
	Driver string `toml:"driver"`
	// Path is the SQLite database file
	Path string `toml:"path"`
	// URL is the Postgres connection string
	URL string `toml:"url"`
}

// ServerConfig holds the HTTP front controller and gRPC health settings
type ServerConfig struct {
	Host         string   `toml:"host"`
	Port         int      `toml:"port"`
	GRPCPort     int      `toml:"grpc_port"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
}

// RequestsConfig points at the request table
type RequestsConfig struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

// BundlesConfig lists the bundles to load
type BundlesConfig struct {
	Dir     string   `toml:"dir"`
	Enabled []string `toml:"enabled"`
	Force   bool     `toml:"force"`
}

// FiltersConfig holds the filter chain storage settings
type FiltersConfig struct {
	Collection string   `toml:"collection"`
	CacheTTL   Duration `toml:"cache_ttl"`
}

// AuthConfig holds token settings for user authentication
type AuthConfig struct {
	JWTSecret string   `toml:"jwt_secret"`
	TokenTTL  Duration `toml:"token_ttl"`
}

// TelemetryConfig toggles trace export
type TelemetryConfig struct {
	Traces bool `toml:"traces"`
}

// Duration wraps time.Duration for TOML parsing
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads configuration from a TOML file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, verrors.Newf("config file not found: %s", path).
			WithCode(verrors.CodeConfiguration).
			WithOperation("config.Load")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, verrors.Wrap(err, "failed to parse config").
			WithCode(verrors.CodeConfiguration).
			WithOperation("config.Load").
			WithDetail("path", path)
	}
	cfg.path = path

	cfg.expandEnvVars()
	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration from VILLAIN_CONFIG or the default
// locations. Without any file it returns the defaults.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		defaultPaths := []string{
			"./configs/villain.toml",
			"./villain.toml",
			filepath.Join(os.Getenv("HOME"), ".config/villain/villain.toml"),
		}
		for _, p := range defaultPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}

	if path == "" {
		cfg := &Config{}
		cfg.applyEnvOverrides()
		cfg.applyDefaults()
		return cfg, cfg.Validate()
	}

	return Load(path)
}

// Path returns the file the configuration was loaded from
func (c *Config) Path() string {
	return c.path
}

// ResolvePath makes p relative to the config file directory unless it is
// absolute.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.path), p)
}

// resolvePaths anchors the data directory and the sqlite file at the
// config file directory. The derived sqlite path follows data_dir.
func (c *Config) resolvePaths() {
	c.General.DataDir = c.ResolvePath(c.General.DataDir)
	if c.Datastore.Path != ":memory:" {
		c.Datastore.Path = c.ResolvePath(c.Datastore.Path)
	}
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.General.Name == "" {
		c.General.Name = "Villain"
	}
	if c.General.Environment == "" {
		c.General.Environment = "development"
	}
	if c.General.DataDir == "" {
		c.General.DataDir = "./data"
	}
	if c.General.LogLevel == "" {
		c.General.LogLevel = "info"
	}
	if c.General.LogFormat == "" {
		c.General.LogFormat = "json"
	}

	if c.Datastore.Driver == "" {
		c.Datastore.Driver = "memory"
	}
	if c.Datastore.Driver == "sqlite" && c.Datastore.Path == "" {
		c.Datastore.Path = filepath.Join(c.General.DataDir, "villain.db")
	}

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = 9090
	}
	if c.Server.ReadTimeout.Duration == 0 {
		c.Server.ReadTimeout.Duration = 30 * time.Second
	}
	if c.Server.WriteTimeout.Duration == 0 {
		c.Server.WriteTimeout.Duration = 60 * time.Second
	}

	if c.Requests.Path == "" {
		c.Requests.Path = "commands.yaml"
	}

	if c.Bundles.Dir == "" {
		c.Bundles.Dir = "bundles"
	}

	if c.Filters.Collection == "" {
		c.Filters.Collection = "filters"
	}
	if c.Filters.CacheTTL.Duration == 0 {
		c.Filters.CacheTTL.Duration = 5 * time.Minute
	}

	if c.Auth.TokenTTL.Duration == 0 {
		c.Auth.TokenTTL.Duration = 24 * time.Hour
	}
}

// expandEnvVars expands environment variables in configuration values
func (c *Config) expandEnvVars() {
	c.General.DataDir = os.ExpandEnv(c.General.DataDir)
	c.Datastore.Path = os.ExpandEnv(c.Datastore.Path)
	c.Datastore.URL = os.ExpandEnv(c.Datastore.URL)
	c.Auth.JWTSecret = os.ExpandEnv(c.Auth.JWTSecret)
}

// applyEnvOverrides lets the environment replace selected file values
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VILLAIN_DATA_DIR"); v != "" {
		c.General.DataDir = v
	}
	if v := os.Getenv("VILLAIN_LOG_LEVEL"); v != "" {
		c.General.LogLevel = v
	}
	if v := os.Getenv("VILLAIN_DATASTORE_DRIVER"); v != "" {
		c.Datastore.Driver = v
	}
	if v := os.Getenv("VILLAIN_DATASTORE_URL"); v != "" {
		c.Datastore.URL = v
	}
	if v := os.Getenv("VILLAIN_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("VILLAIN_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
}

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	switch c.Datastore.Driver {
	case "memory":
	case "sqlite":
		if c.Datastore.Path == "" {
			return configError("datastore.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Datastore.URL == "" {
			return configError("datastore.url is required for the postgres driver")
		}
	default:
		return configError(fmt.Sprintf("unknown datastore driver %q", c.Datastore.Driver))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return configError(fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.GRPCPort < 1 || c.Server.GRPCPort > 65535 {
		return configError(fmt.Sprintf("server.grpc_port %d out of range", c.Server.GRPCPort))
	}
	return nil
}

func configError(msg string) error {
	return verrors.Configuration(msg).WithOperation("config.Validate")
}

// HTTPAddress returns the front controller listen address
func (c *Config) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GRPCAddress returns the gRPC health listen address
func (c *Config) GRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}
