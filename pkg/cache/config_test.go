package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/flatcache/flatcache/pkg/medium"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Version != CurrentManifestVersion {
		t.Errorf("expected version %d, got %d", CurrentManifestVersion, cfg.Version)
	}

	if cfg.FilePrefix != DefaultFilePrefix {
		t.Errorf("expected file prefix %q, got %q", DefaultFilePrefix, cfg.FilePrefix)
	}

	if cfg.MaxFileSize != medium.Max {
		t.Errorf("expected max file size %d, got %d", medium.Max, cfg.MaxFileSize)
	}
}

func TestConfigFileNames(t *testing.T) {
	cfg := NewDefaultConfig()

	if got := cfg.DataFileName(); got != "store.dat" {
		t.Errorf("expected data file store.dat, got %q", got)
	}

	if got := cfg.IndexFileName(0); got != "store.idx0" {
		t.Errorf("expected index file store.idx0, got %q", got)
	}

	if got := cfg.IndexFileName(255); got != "store.idx255" {
		t.Errorf("expected index file store.idx255, got %q", got)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := NewDefaultConfig()

	// Valid config
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}

	// Test invalid configs
	testCases := []struct {
		name     string
		mutate   func(*Config)
		expected string
	}{
		{
			name: "invalid version",
			mutate: func(c *Config) {
				c.Version = 0
			},
			expected: "invalid cache configuration: invalid version 0",
		},
		{
			name: "empty file prefix",
			mutate: func(c *Config) {
				c.FilePrefix = ""
			},
			expected: "invalid cache configuration: file prefix not specified",
		},
		{
			name: "file prefix with separator",
			mutate: func(c *Config) {
				c.FilePrefix = "nested/store"
			},
			expected: `invalid cache configuration: file prefix "nested/store" reaches outside the cache directory`,
		},
		{
			name: "zero max file size",
			mutate: func(c *Config) {
				c.MaxFileSize = 0
			},
			expected: "invalid cache configuration: max file size 0 outside 1..16777215",
		},
		{
			name: "max file size over 24 bits",
			mutate: func(c *Config) {
				c.MaxFileSize = medium.Max + 1
			},
			expected: "invalid cache configuration: max file size 16777216 outside 1..16777215",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			if err.Error() != tc.expected {
				t.Errorf("expected error %q, got %q", tc.expected, err.Error())
			}
		})
	}
}

func TestConfigManifestSaveLoad(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "cache_config_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	// Create a config and save it
	cfg := NewDefaultConfig()
	cfg.FilePrefix = "main"
	cfg.MaxFileSize = 1_000_000

	if err := cfg.SaveManifest(tempDir); err != nil {
		t.Fatalf("failed to save manifest: %v", err)
	}

	// Load the config
	loadedCfg, err := LoadConfigFromManifest(tempDir)
	if err != nil {
		t.Fatalf("failed to load manifest: %v", err)
	}

	if loadedCfg.FilePrefix != cfg.FilePrefix {
		t.Errorf("expected file prefix %q, got %q", cfg.FilePrefix, loadedCfg.FilePrefix)
	}

	if loadedCfg.MaxFileSize != cfg.MaxFileSize {
		t.Errorf("expected max file size %d, got %d", cfg.MaxFileSize, loadedCfg.MaxFileSize)
	}

	// Test loading non-existent manifest
	nonExistentDir := filepath.Join(tempDir, "nonexistent")
	_, err = LoadConfigFromManifest(nonExistentDir)
	if !errors.Is(err, ErrManifestNotFound) {
		t.Errorf("expected ErrManifestNotFound, got %v", err)
	}

	// Test loading a corrupt manifest
	if err := os.WriteFile(filepath.Join(tempDir, DefaultManifestFileName), []byte("{nope"), 0644); err != nil {
		t.Fatalf("failed to write corrupt manifest: %v", err)
	}
	_, err = LoadConfigFromManifest(tempDir)
	if !errors.Is(err, ErrInvalidManifest) {
		t.Errorf("expected ErrInvalidManifest, got %v", err)
	}
}

func TestConfigSaveRejectsInvalid(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "cache_config_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	cfg := NewDefaultConfig()
	cfg.MaxFileSize = -1

	if err := cfg.SaveManifest(tempDir); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	if _, err := os.Stat(filepath.Join(tempDir, DefaultManifestFileName)); !os.IsNotExist(err) {
		t.Errorf("invalid config was still written to disk")
	}
}

func TestConfigUpdate(t *testing.T) {
	cfg := NewDefaultConfig()

	cfg.Update(func(c *Config) {
		c.MaxFileSize = 1 << 20
		c.FilePrefix = "cache"
	})

	if cfg.MaxFileSize != 1<<20 {
		t.Errorf("expected max file size %d, got %d", 1<<20, cfg.MaxFileSize)
	}

	if cfg.FilePrefix != "cache" {
		t.Errorf("expected file prefix %q, got %q", "cache", cfg.FilePrefix)
	}
}
