package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable that overrides the config file.
const EnvPrefix = "WACHAT_"

// Config represents ~/.wachat/config.toml. Environment variables
// (WACHAT_SERVER_URL, WACHAT_PROFILE, ...) take precedence over the file.
type Config struct {
	DefaultProfile  string        `toml:"default_profile" env:"PROFILE"`
	ServerURL       string        `toml:"server_url" env:"SERVER_URL"`
	PushPath        string        `toml:"push_path" env:"PUSH_PATH"`
	RequestTimeout  time.Duration `toml:"request_timeout" env:"REQUEST_TIMEOUT"`
	RequestRetries  int           `toml:"request_retries" env:"REQUEST_RETRIES"`
	TypingIdle      time.Duration `toml:"typing_idle" env:"TYPING_IDLE"`
	RemoteTypingTTL time.Duration `toml:"remote_typing_ttl" env:"REMOTE_TYPING_TTL"`
	ReconnectBase   time.Duration `toml:"reconnect_base" env:"RECONNECT_BASE"`
	ReconnectMax    time.Duration `toml:"reconnect_max" env:"RECONNECT_MAX"`
	LogLevel        string        `toml:"log_level" env:"LOG_LEVEL"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ServerURL:       "http://localhost:5000",
		PushPath:        "/ws",
		RequestTimeout:  10 * time.Second,
		RequestRetries:  2,
		TypingIdle:      time.Second,
		RemoteTypingTTL: 5 * time.Second,
		ReconnectBase:   time.Second,
		ReconnectMax:    30 * time.Second,
		LogLevel:        "warn",
	}
}

// ReadFile returns the defaults overlaid with the file at path.
// A missing file is not an error.
func ReadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &cfg, nil
}

// Load reads the file at path, applies the environment overlay and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the server URL and the timing settings.
func (c *Config) Validate() error {
	if err := ValidateServerURL(c.ServerURL); err != nil {
		return err
	}
	if c.RequestRetries < 0 {
		return fmt.Errorf("request_retries must not be negative, got %d", c.RequestRetries)
	}
	for name, d := range map[string]time.Duration{
		"request_timeout":   c.RequestTimeout,
		"typing_idle":       c.TypingIdle,
		"remote_typing_ttl": c.RemoteTypingTTL,
		"reconnect_base":    c.ReconnectBase,
		"reconnect_max":     c.ReconnectMax,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.ReconnectMax < c.ReconnectBase {
		return fmt.Errorf("reconnect_max %s is below reconnect_base %s", c.ReconnectMax, c.ReconnectBase)
	}
	return nil
}

// ValidateServerURL accepts absolute http and https URLs.
func ValidateServerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid server url %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server url %q: must be http(s)://host", raw)
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
