// Package layout persists the dashboard's connection target and subscription
// list between runs.
package layout

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/live"
)

const (
	DefaultHost = "localhost"
	DefaultPort = 1883

	appDirName = "mqtt-dashboard"
	fileName   = "config.json"
	maxPort    = 65535
	dirPerm    = 0o755
	filePerm   = 0o644
)

var (
	ErrNotFound  = errors.New("layout file not found")
	ErrMalformed = errors.New("layout file malformed")
)

// Subscription is the persisted form of one subscription.
type Subscription struct {
	Topic     string    `json:"topic" yaml:"topic"`
	Type      live.Kind `json:"type" yaml:"type"`
	Transform string    `json:"transform,omitempty" yaml:"transform,omitempty"`
}

// Config is a point-in-time snapshot of the dashboard.
type Config struct {
	Host          string         `json:"host" yaml:"host"`
	Port          int            `json:"port" yaml:"port"`
	Subscriptions []Subscription `json:"subscriptions" yaml:"subscriptions"`
}

func Default() Config {
	return Config{
		Host:          DefaultHost,
		Port:          DefaultPort,
		Subscriptions: []Subscription{},
	}
}

// DefaultPath returns the per-user layout location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, appDirName, fileName)
}

// Normalize fills defaults and drops entries that cannot be subscribed: empty
// topics and repeated topics. Unknown types become text.
func (c Config) Normalize() Config {
	if strings.TrimSpace(c.Host) == "" {
		c.Host = DefaultHost
	}
	if c.Port < 1 || c.Port > maxPort {
		c.Port = DefaultPort
	}

	seen := make(map[string]bool, len(c.Subscriptions))
	subs := make([]Subscription, 0, len(c.Subscriptions))
	for _, sub := range c.Subscriptions {
		sub.Topic = strings.TrimSpace(sub.Topic)
		if sub.Topic == "" || seen[sub.Topic] {
			continue
		}
		seen[sub.Topic] = true
		sub.Type, _ = live.ParseKind(string(sub.Type))
		subs = append(subs, sub)
	}
	c.Subscriptions = subs
	return c
}

// Load reads the layout at path. It always returns a usable Config; a
// missing or unreadable file yields Default() together with ErrNotFound or
// ErrMalformed for the caller to log.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Default(), fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var cfg Config
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return Default(), fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}

	return cfg.Normalize(), nil
}

// Save writes cfg to path, creating the parent directory when needed. The
// file is replaced atomically.
func Save(path string, cfg Config) error {
	if cfg.Subscriptions == nil {
		cfg.Subscriptions = []Subscription{}
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to encode layout: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create layout directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".layout-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write layout: %w", err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set layout permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write layout: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace layout: %w", err)
	}

	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
