// Package config handles TOML-based configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"sourcerer/internal/httputil"
)

// Config holds all application configuration.
type Config struct {
	AutoembedBase    string   `toml:"autoembed_base"`
	AutoembedAPI     string   `toml:"autoembed_api"`
	VidmolyBase      string   `toml:"vidmoly_base"`
	VidmolyReferrers []string `toml:"vidmoly_referrers"`
	M3U8Proxy        string   `toml:"m3u8_proxy"`
	CORSProxy        string   `toml:"cors_proxy"`
	Timeout          string   `toml:"timeout"`
	TLSFingerprint   bool     `toml:"tls_fingerprint"`
	ProxyListen      string   `toml:"proxy_listen"`
	LogLevel         string   `toml:"log_level"`
	LogJSON          bool     `toml:"log_json"`
	Debug            bool     `toml:"debug"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		AutoembedBase:    "https://player.autoembed.cc/",
		AutoembedAPI:     "https://tom.autoembed.cc/api/getVideoSource",
		VidmolyBase:      "https://vidmoly.to",
		VidmolyReferrers: []string{"primewire"},
		M3U8Proxy:        "https://doesnmatterwhat.wafflehacker.io/m3u8",
		Timeout:          "30s",
		ProxyListen:      "127.0.0.1:8089",
		LogLevel:         "info",
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sourcerer"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "sourcerer"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file and merges with defaults.
// If the config file doesn't exist, defaults are returned.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	bases := []struct {
		key, value string
	}{
		{"autoembed_base", c.AutoembedBase},
		{"autoembed_api", c.AutoembedAPI},
		{"vidmoly_base", c.VidmolyBase},
	}
	for _, b := range bases {
		if err := httputil.ValidateURL(b.value); err != nil {
			return fmt.Errorf("%s: %w", b.key, err)
		}
	}

	// The proxies may run locally, so plain http is accepted.
	if err := httputil.ValidateFetchURL(c.M3U8Proxy); err != nil {
		return fmt.Errorf("m3u8_proxy: %w", err)
	}
	if c.CORSProxy != "" {
		if err := httputil.ValidateFetchURL(c.CORSProxy); err != nil {
			return fmt.Errorf("cors_proxy: %w", err)
		}
	}

	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("unsupported log_level %q (valid: trace, debug, info, warn, error)", c.LogLevel)
	}

	for _, host := range c.VidmolyReferrers {
		if strings.TrimSpace(host) == "" {
			return fmt.Errorf("vidmoly_referrers: empty host")
		}
	}

	if strings.TrimSpace(c.ProxyListen) == "" {
		return fmt.Errorf("proxy_listen cannot be empty")
	}

	return nil
}

// TimeoutDuration parses the timeout setting.
func (c *Config) TimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got %s", d)
	}
	return d, nil
}
