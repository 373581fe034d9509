package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Load loads configuration with priority: defaults < file < flags.
func Load() (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Try to load from file (explicit path takes priority)
	configPath := ConfigPath()
	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
	}

	// Apply CLI flags (highest priority)
	applyFlags(cfg)
	applyEnv(cfg)

	return cfg, nil
}

// applyEnv fills settings still unset from the environment.
func applyEnv(cfg *Config) {
	if cfg.Elevation.APIKey == "" {
		cfg.Elevation.APIKey = os.Getenv(EnvGoogleAPIKey)
	}
}

// LoadFile loads defaults overlaid with a single YAML file. Flags are not
// consulted.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := loadFromFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	return cfg, nil
}

// findConfigFile looks for config in standard locations.
func findConfigFile() string {
	candidates := []string{
		"./terraprint.yaml",
		"./config.yaml",
		filepath.Join(ConfigDir(), "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// ConfigDir returns the OS-appropriate config directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Terraprint")
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Terraprint")
	default: // Linux and others
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "terraprint")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "terraprint")
	}
}

// CacheDir returns the OS-appropriate elevation cache directory.
func CacheDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Caches", "Terraprint")
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "Terraprint", "cache")
	default:
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "terraprint")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".cache", "terraprint")
	}
}

// CachePath returns the configured cache directory or CacheDir().
func (c *Config) CachePath() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	return CacheDir()
}

// loadFromFile merges a YAML file into cfg. Keys that match no field are
// rejected so a typo does not silently fall back to a default.
func loadFromFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
