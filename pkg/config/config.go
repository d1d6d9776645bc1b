package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Transform TransformConfig `yaml:"transform"`
	Store     StoreConfig     `yaml:"store"`
	Web       WebConfig       `yaml:"web"`
	Logging   LoggingConfig   `yaml:"logging"`
	TUI       TUIConfig       `yaml:"tui"`
}

type MQTTConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
	AutoConnect    *bool         `yaml:"auto_connect"`
}

type DashboardConfig struct {
	LayoutFile      string        `yaml:"layout_file"`
	HistorySize     int           `yaml:"history_size"`
	LogSize         int           `yaml:"log_size"`
	TextLimit       int           `yaml:"text_limit"`
	QueueSize       int           `yaml:"queue_size"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	RateLimit       int           `yaml:"rate_limit"`
}

type TransformConfig struct {
	MaxExecutionTime time.Duration `yaml:"max_execution_time"`
}

type StoreConfig struct {
	Type       string `yaml:"type"`
	Connection string `yaml:"connection"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Bind    string `yaml:"bind"`
	// Browser origins allowed besides the server's own host; "*" allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type TUIConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// Load reads configPath. A missing file is not an error: the dashboard runs
// on defaults.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultPath
	}

	var config Config

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.setDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	config := &Config{}
	config.setDefaults()
	return config
}

func (c *Config) setDefaults() {
	// MQTT defaults
	if c.MQTT.Host == "" {
		c.MQTT.Host = "localhost"
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.ConnectTimeout == 0 {
		c.MQTT.ConnectTimeout = 10 * time.Second
	}
	if c.MQTT.PublishTimeout == 0 {
		c.MQTT.PublishTimeout = 5 * time.Second
	}
	if c.MQTT.AutoConnect == nil {
		c.MQTT.AutoConnect = boolPtr(true)
	}

	// Dashboard defaults
	if c.Dashboard.HistorySize == 0 {
		c.Dashboard.HistorySize = 50
	}
	if c.Dashboard.LogSize == 0 {
		c.Dashboard.LogSize = 10000
	}
	if c.Dashboard.TextLimit == 0 {
		c.Dashboard.TextLimit = 500
	}
	if c.Dashboard.QueueSize == 0 {
		c.Dashboard.QueueSize = 1024
	}
	if c.Dashboard.RefreshInterval == 0 {
		c.Dashboard.RefreshInterval = time.Second
	}

	// Transform defaults
	if c.Transform.MaxExecutionTime == 0 {
		c.Transform.MaxExecutionTime = 100 * time.Millisecond
	}

	// Store defaults
	if c.Store.Type == "" {
		c.Store.Type = "none"
	}
	if c.Store.Connection == "" && c.Store.Type == "sqlite" {
		// Use test database if running in test mode
		if isTestMode() {
			c.Store.Connection = "./test.db"
		} else {
			c.Store.Connection = "./dashboard.db"
		}
	}

	// Web defaults
	if c.Web.Port == 0 {
		c.Web.Port = 8080
	}
	if c.Web.Bind == "" {
		c.Web.Bind = "127.0.0.1"
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	if c.TUI.Enabled == nil {
		c.TUI.Enabled = boolPtr(true)
	}
}

// Validate checks values after defaults and flag overrides are applied.
func (c *Config) Validate() error {
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		return fmt.Errorf("invalid MQTT port: %d", c.MQTT.Port)
	}

	if c.Dashboard.HistorySize < 1 {
		return fmt.Errorf("invalid history size: %d", c.Dashboard.HistorySize)
	}
	if c.Dashboard.LogSize < 1 {
		return fmt.Errorf("invalid log size: %d", c.Dashboard.LogSize)
	}
	if c.Dashboard.QueueSize < 1 {
		return fmt.Errorf("invalid queue size: %d", c.Dashboard.QueueSize)
	}
	if c.Dashboard.RateLimit < 0 {
		return fmt.Errorf("invalid rate limit: %d", c.Dashboard.RateLimit)
	}

	switch c.Store.Type {
	case "none":
	case "sqlite", "postgres":
		if c.Store.Connection == "" {
			return fmt.Errorf("store connection is required for %s", c.Store.Type)
		}
	default:
		return fmt.Errorf("unsupported store type: %s", c.Store.Type)
	}

	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid web port: %d", c.Web.Port)
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	return nil
}

func (c *Config) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Web.Bind, c.Web.Port)
}

func (c *Config) AutoConnect() bool {
	return c.MQTT.AutoConnect == nil || *c.MQTT.AutoConnect
}

func (c *Config) TUIEnabled() bool {
	return c.TUI.Enabled == nil || *c.TUI.Enabled
}

func boolPtr(v bool) *bool {
	return &v
}

// isTestMode detects if we're running in test mode
func isTestMode() bool {
	// Check if the executable name contains ".test" (indicates test binary)
	if exe, err := os.Executable(); err == nil {
		return strings.Contains(exe, ".test")
	}

	// Check TEST environment variable
	return os.Getenv("TEST") == "1"
}
