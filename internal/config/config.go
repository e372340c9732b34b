// Package config loads fstokend/fstoken runtime configuration from the
// environment, an optional .env file, and (broker only) an optional YAML
// override file — in the style of the gateway example this pack draws on
// for environment-driven configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default paths and limits, overridable via environment variables or the
// broker's YAML override file.
const (
	DefaultSocketPath    = "/run/fstokend/fstokend.sock"
	DefaultCatalogPath   = "/run/fstokend/keystore.db"
	defaultIdentityDir   = ".fskeys"
	DefaultMaxFrameBytes = 16 << 20 // 16 MiB
	DefaultIdleTimeout   = 5 * time.Minute
	DefaultLogLevel      = "warn"
)

// Config holds the settings shared by the broker and client. Both binaries
// load the same type so tests can construct an isolated instance rooted at
// a t.TempDir() instead of the real /run and $HOME paths.
type Config struct {
	SocketPath    string
	CatalogPath   string
	IdentityDir   string
	MaxFrameBytes uint32
	IdleTimeout   time.Duration
	LogLevel      string
}

// fileOverride mirrors the subset of Config that may be set via the
// broker's YAML file. Fields are pointers so "unset" is distinguishable
// from "set to the zero value".
type fileOverride struct {
	SocketPath    *string `yaml:"socket_path"`
	CatalogPath   *string `yaml:"catalog_path"`
	MaxFrameBytes *uint32 `yaml:"max_frame_bytes"`
	IdleTimeout   *string `yaml:"idle_timeout"`
	LogLevel      *string `yaml:"log_level"`
}

// Load builds a Config from defaults, then environment variables (after
// loading a .env file if one is present — a no-op otherwise), then the
// broker's YAML override file if forBroker is true and one is configured.
func Load(forBroker bool) (*Config, error) {
	_ = godotenv.Load() // dev convenience; production relies on real env vars

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}

	cfg := &Config{
		SocketPath:    getEnv("FSTOKEND_SOCKET", DefaultSocketPath),
		CatalogPath:   getEnv("FSTOKEND_CATALOG", DefaultCatalogPath),
		IdentityDir:   getEnv("FSTOKEN_IDENTITY_DIR", filepath.Join(home, defaultIdentityDir)),
		MaxFrameBytes: getEnvUint32("FSTOKEND_MAX_FRAME", DefaultMaxFrameBytes),
		IdleTimeout:   getEnvDuration("FSTOKEND_IDLE_TIMEOUT", DefaultIdleTimeout),
		LogLevel:      getEnv("FSTOKEND_LOG_LEVEL", DefaultLogLevel),
	}

	if !forBroker {
		return cfg, nil
	}

	yamlPath := getEnv("FSTOKEND_CONFIG_FILE", "/etc/fstokend/config.yaml")
	if err := applyYAMLOverride(cfg, yamlPath); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyYAMLOverride(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	var override fileOverride
	if err := yaml.Unmarshal(data, &override); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if override.SocketPath != nil {
		cfg.SocketPath = *override.SocketPath
	}
	if override.CatalogPath != nil {
		cfg.CatalogPath = *override.CatalogPath
	}
	if override.MaxFrameBytes != nil {
		cfg.MaxFrameBytes = *override.MaxFrameBytes
	}
	if override.LogLevel != nil {
		cfg.LogLevel = *override.LogLevel
	}
	if override.IdleTimeout != nil {
		d, err := time.ParseDuration(*override.IdleTimeout)
		if err != nil {
			return fmt.Errorf("config: invalid idle_timeout %q in %s: %w", *override.IdleTimeout, path, err)
		}
		cfg.IdleTimeout = d
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvUint32(key string, fallback uint32) uint32 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return fallback
	}
	return uint32(n)
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
