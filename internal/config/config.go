package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration, read from tuhi.yaml in the base
// directory. Every field has a working default so the file is
// optional.
type Config struct {
	// BaseDir holds the registrations file and the drawing cache.
	BaseDir string `yaml:"-"`

	// LogLevel is a zerolog level name.
	LogLevel string `yaml:"log_level"`
}

const configFile = "tuhi.yaml"

// DefaultDir is the per-user base directory.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config directory: %w", err)
	}
	return filepath.Join(base, "tuhi"), nil
}

// Load reads the configuration under dir. A missing file yields the
// defaults.
func Load(dir string) (Config, error) {
	cfg := Config{
		BaseDir:  dir,
		LogLevel: "info",
	}
	data, err := os.ReadFile(filepath.Join(dir, configFile))
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// RegistrationsPath locates the persisted device registrations.
func (c Config) RegistrationsPath() string {
	return filepath.Join(c.BaseDir, "registrations.yaml")
}

// DrawingsDir locates the on-disk drawing cache.
func (c Config) DrawingsDir() string {
	return filepath.Join(c.BaseDir, "drawings")
}
