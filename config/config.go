// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	appName        = "thinkbox"
	configFileName = "config.json"
)

// Environment variables that override file values without being saved.
const (
	EnvBackendDir       = "THINKBOX_BACKEND_DIR"
	EnvBackendPython    = "THINKBOX_BACKEND_PYTHON"
	EnvBackendHealthURL = "THINKBOX_BACKEND_HEALTH_URL"
)

// Config represents the application configuration.
type Config struct {
	SessionID string        `json:"session_id"`
	Backend   BackendConfig `json:"backend"`
	Log       LogConfig     `json:"log"`

	// Hotkey overrides the backend's thinkbox_hotkey setting when set.
	Hotkey string `json:"hotkey,omitempty"`

	// RememberPin writes overlay pin changes back to the backend settings.
	RememberPin bool `json:"remember_pin,omitempty"`

	path string
}

// BackendConfig locates and reaches the local agent service.
type BackendConfig struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	BaseURL             string `json:"base_url,omitempty"`
	HealthURL           string `json:"health_url,omitempty"`
	Dir                 string `json:"dir,omitempty"`
	Python              string `json:"python,omitempty"`
	StartTimeoutSeconds int    `json:"start_timeout_seconds"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format,omitempty"` // "", "text" or "json"
}

// Load loads configuration from the default config file.
// Returns default config if file doesn't exist.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}
	return LoadFrom(path)
}

// LoadFrom loads configuration from path. A config without a session id
// gets a fresh one, which is saved immediately so it stays stable.
func LoadFrom(path string) (*Config, error) {
	cfg := defaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyDefaults()

	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
		if err := cfg.Save(); err != nil {
			slog.Warn("persist session id", "error", err)
		}
	}

	return cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path := c.path
	if path == "" {
		p, err := Path()
		if err != nil {
			return fmt.Errorf("get config path: %w", err)
		}
		path = p
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// File returns the path the config was loaded from.
func (c *Config) File() string {
	return c.path
}

// ─────────────────────────────────────────────────────────────────────────────
// Backend
// ─────────────────────────────────────────────────────────────────────────────

// APIBase returns the REST root, e.g. http://127.0.0.1:8000/api/v1.
func (b BackendConfig) APIBase() string {
	if b.BaseURL != "" {
		return strings.TrimRight(b.BaseURL, "/")
	}
	return "http://" + b.Addr() + "/api/v1"
}

// Addr returns host:port for the spawned server.
func (b BackendConfig) Addr() string {
	return b.Host + ":" + strconv.Itoa(b.Port)
}

// Health returns the health endpoint, honoring THINKBOX_BACKEND_HEALTH_URL.
func (b BackendConfig) Health() string {
	if v := os.Getenv(EnvBackendHealthURL); v != "" {
		return v
	}
	if b.HealthURL != "" {
		return b.HealthURL
	}
	return b.APIBase() + "/health"
}

// DirOverride returns the explicit backend directory, if any.
func (b BackendConfig) DirOverride() string {
	if v := os.Getenv(EnvBackendDir); v != "" {
		return v
	}
	return b.Dir
}

// PythonOverride returns the explicit interpreter, if any.
func (b BackendConfig) PythonOverride() string {
	if v := os.Getenv(EnvBackendPython); v != "" {
		return v
	}
	return b.Python
}

// StartTimeout returns how long startup may wait for health.
func (b BackendConfig) StartTimeout() time.Duration {
	return time.Duration(b.StartTimeoutSeconds) * time.Second
}

// ─────────────────────────────────────────────────────────────────────────────
// Paths
// ─────────────────────────────────────────────────────────────────────────────

// Dir returns the per-user application directory.
func Dir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName), nil
}

// Path returns the default config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// LogDir returns the directory holding process and backend logs.
func LogDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// Helper functions

func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Host:                "127.0.0.1",
			Port:                8000,
			StartTimeoutSeconds: 60,
		},
		Log: LogConfig{Level: "info"},
	}
}

func (c *Config) applyDefaults() {
	d := defaultConfig()
	if c.Backend.Host == "" {
		c.Backend.Host = d.Backend.Host
	}
	if c.Backend.Port == 0 {
		c.Backend.Port = d.Backend.Port
	}
	if c.Backend.StartTimeoutSeconds <= 0 {
		c.Backend.StartTimeoutSeconds = d.Backend.StartTimeoutSeconds
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}
