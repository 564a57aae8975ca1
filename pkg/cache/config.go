package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/flatcache/flatcache/pkg/medium"
)

const (
	DefaultManifestFileName = "MANIFEST"
	CurrentManifestVersion  = 1

	DefaultFilePrefix = "store"
)

var (
	ErrInvalidConfig    = errors.New("invalid cache configuration")
	ErrManifestNotFound = errors.New("manifest not found")
	ErrInvalidManifest  = errors.New("invalid manifest")
)

type Config struct {
	Version int `json:"version"`

	// FilePrefix names the companion files inside the cache directory:
	// <prefix>.dat holds every store's blocks, <prefix>.idxN holds the
	// records of store N
	FilePrefix string `json:"file_prefix"`

	// MaxFileSize bounds the length of any file in any store
	MaxFileSize int `json:"max_file_size"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values
func NewDefaultConfig() *Config {
	return &Config{
		Version:     CurrentManifestVersion,
		FilePrefix:  DefaultFilePrefix,
		MaxFileSize: medium.Max,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validateLocked()
}

// DataFileName returns the name of the shared data file.
func (c *Config) DataFileName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.FilePrefix + ".dat"
}

// IndexFileName returns the name of the index file for the given store.
func (c *Config) IndexFileName(store int) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%s.idx%d", c.FilePrefix, store)
}

// LoadConfigFromManifest loads the configuration from the manifest file
// in the cache directory
func LoadConfigFromManifest(dir string) (*Config, error) {
	manifestPath := filepath.Join(dir, DefaultManifestFileName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrManifestNotFound
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SaveManifest saves the configuration to the manifest file
func (c *Config) SaveManifest(dir string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.validateLocked(); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	manifestPath := filepath.Join(dir, DefaultManifestFileName)
	tempPath := manifestPath + ".tmp"

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := os.Rename(tempPath, manifestPath); err != nil {
		return fmt.Errorf("failed to rename manifest: %w", err)
	}

	return nil
}

// Update applies the given function to modify the configuration
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}

func (c *Config) validateLocked() error {
	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}
	if c.FilePrefix == "" {
		return fmt.Errorf("%w: file prefix not specified", ErrInvalidConfig)
	}
	if filepath.Base(c.FilePrefix) != c.FilePrefix {
		return fmt.Errorf("%w: file prefix %q reaches outside the cache directory",
			ErrInvalidConfig, c.FilePrefix)
	}
	if c.MaxFileSize <= 0 || c.MaxFileSize > medium.Max {
		return fmt.Errorf("%w: max file size %d outside 1..%d",
			ErrInvalidConfig, c.MaxFileSize, medium.Max)
	}
	return nil
}
