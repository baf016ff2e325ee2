package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Sync     SyncConfig     `toml:"sync"`
	Database DatabaseConfig `toml:"database"`
	API      APIConfig      `toml:"api"`
}

// ServerConfig describes how to reach the remote pipeline server.
type ServerConfig struct {
	BaseURL        string  `toml:"base_url"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	RateLimit      float64 `toml:"rate_limit"` // requests per second, 0 disables limiting
	PageLimit      int     `toml:"page_limit"` // page size used when walking the task list
}

// AuthConfig contains the QR login handshake timing.
type AuthConfig struct {
	PollIntervalMS  int    `toml:"poll_interval_ms"`
	MaxDurationMS   int    `toml:"max_duration_ms"`
	ScanURLTemplate string `toml:"scan_url_template"` // %s is replaced with the auth code
}

// SyncConfig contains the task refresh cadence and view settings.
type SyncConfig struct {
	RefreshIntervalSeconds int `toml:"refresh_interval_seconds"`
	PageSize               int `toml:"page_size"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// APIConfig contains settings for the local read API served by `upsync serve`.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Timeout returns the per-request HTTP timeout.
func (s ServerConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// APIBase returns the versioned API root of the remote server.
func (s ServerConfig) APIBase() string {
	return strings.TrimRight(s.BaseURL, "/") + "/api/v1"
}

// PollInterval returns the delay between two handshake poll ticks.
func (a AuthConfig) PollInterval() time.Duration {
	return time.Duration(a.PollIntervalMS) * time.Millisecond
}

// MaxDuration returns the absolute handshake lifetime.
func (a AuthConfig) MaxDuration() time.Duration {
	return time.Duration(a.MaxDurationMS) * time.Millisecond
}

// ScanURL renders the URL encoded in the QR code for authCode.
func (a AuthConfig) ScanURL(authCode string) string {
	if a.ScanURLTemplate == "" {
		return authCode
	}
	return fmt.Sprintf(a.ScanURLTemplate, authCode)
}

// RefreshInterval returns the task refresh cadence.
func (s SyncConfig) RefreshInterval() time.Duration {
	return time.Duration(s.RefreshIntervalSeconds) * time.Second
}

// Addr returns the listen address of the local read API.
func (a APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// Validate rejects configurations the engines cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Server.BaseURL == "":
		return fmt.Errorf("%w: server.base_url is required", ErrInvalidConfig)
	case c.Auth.PollIntervalMS <= 0:
		return fmt.Errorf("%w: auth.poll_interval_ms must be positive", ErrInvalidConfig)
	case c.Auth.MaxDurationMS <= 0:
		return fmt.Errorf("%w: auth.max_duration_ms must be positive", ErrInvalidConfig)
	case c.Sync.RefreshIntervalSeconds <= 0:
		return fmt.Errorf("%w: sync.refresh_interval_seconds must be positive", ErrInvalidConfig)
	case c.Sync.PageSize <= 0:
		return fmt.Errorf("%w: sync.page_size must be positive", ErrInvalidConfig)
	case c.Server.PageLimit <= 0:
		return fmt.Errorf("%w: server.page_limit must be positive", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// LoadConfigOrDefault loads path when it exists and falls back to [DefaultConfig] otherwise.
func LoadConfigOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return DefaultConfig(), nil
	}
	return LoadConfig(path)
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SaveConfig encodes config as TOML and writes it to path, replacing any existing file.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
