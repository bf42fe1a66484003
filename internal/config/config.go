// internal/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// RepoDirName is the directory marking a repository root.
const RepoDirName = ".tally"

var ErrNoRepository = errors.New("not inside a tally repository")

type Config struct {
	// Root is the working tree root. It is never read from the file.
	Root string `json:"-"`

	Storage struct {
		Dir string `json:"dir"` // relative to Root
	} `json:"storage"`

	Database struct {
		Path string `json:"path"` // relative to the storage dir
	} `json:"database"`

	Compression struct {
		MinSize int `json:"min_size"`
		Level   int `json:"level"`
	} `json:"compression"`

	Cache struct {
		Size int `json:"size"`
	} `json:"cache"`

	Ignore []string `json:"ignore"`

	Environment string `json:"environment"` // development, production
	LogLevel    string `json:"log_level"`   // debug, info, warn, error
}

// Default returns the configuration used when no config file exists.
func Default(root string) *Config {
	cfg := &Config{Root: root}
	cfg.Storage.Dir = RepoDirName
	cfg.Database.Path = "db"
	cfg.Compression.MinSize = 1024
	cfg.Compression.Level = 2
	cfg.Cache.Size = 128
	cfg.Environment = "production"
	cfg.LogLevel = "warn"
	return cfg
}

// Load returns the configuration for the repository at root: the defaults,
// overlaid with the repository's config.json when present, then with
// TALLY_ENV and TALLY_LOG_LEVEL.
func Load(root string) (*Config, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	cfg := Default(abs)

	file, err := os.Open(cfg.ConfigPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("opening config: %w", err)
	default:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", cfg.ConfigPath(), err)
		}
		cfg.Root = abs
	}

	if env := os.Getenv("TALLY_ENV"); env != "" {
		cfg.Environment = env
		if env == "development" && os.Getenv("TALLY_LOG_LEVEL") == "" {
			cfg.LogLevel = "debug"
		}
	}
	if level := os.Getenv("TALLY_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Storage.Dir == "" || filepath.IsAbs(c.Storage.Dir) {
		return fmt.Errorf("storage dir must be a relative path, got %q", c.Storage.Dir)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Compression.Level < 1 || c.Compression.Level > 4 {
		return fmt.Errorf("compression level must be between 1 and 4, got %d", c.Compression.Level)
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("cache size must be positive, got %d", c.Cache.Size)
	}
	return nil
}

// Save writes the file-backed part of the configuration.
func (c *Config) Save() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(c.ConfigPath(), append(data, '\n'), 0o644)
}

func (c *Config) RepoDir() string {
	return filepath.Join(c.Root, c.Storage.Dir)
}

func (c *Config) DBPath() string {
	return filepath.Join(c.RepoDir(), c.Database.Path)
}

func (c *Config) CommitsDir() string {
	return filepath.Join(c.RepoDir(), "commits")
}

// PendingDir holds the staged copies of the pending commit.
func (c *Config) PendingDir() string {
	return filepath.Join(c.CommitsDir(), "pending")
}

// ConfigPath stays under the marker directory even when Storage.Dir moves
// the data elsewhere.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.Root, RepoDirName, "config.json")
}

// FindRoot walks up from start to the first directory containing a
// repository.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", start, err)
	}
	for {
		info, err := os.Stat(filepath.Join(dir, RepoDirName))
		if err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoRepository
		}
		dir = parent
	}
}
