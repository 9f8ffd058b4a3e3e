package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig mirrors wasmserve.yaml. Every field is optional.
type FileConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Framework string `yaml:"framework"`
	Release   bool   `yaml:"release"`

	Watch    bool          `yaml:"watch"`    // Live reload over SSE
	Debounce time.Duration `yaml:"debounce"` // Watcher debounce (default: 300ms)
	Compress bool          `yaml:"compress"` // Gzip file responses
	Quiet    bool          `yaml:"quiet"`    // Disable the request log

	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"` // Server shutdown timeout (default: 5s)

	// Extra response headers, e.g. COOP/COEP for SharedArrayBuffer
	Headers map[string]string `yaml:"headers"`
	// Extension -> Content-Type overrides, e.g. ".dat": application/octet-stream
	MimeTypes map[string]string `yaml:"mimeTypes"`
}

// DefaultFileConfig returns the values used when no file is present.
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		Port:            DefaultPort,
		Framework:       DefaultFramework,
		Debounce:        300 * time.Millisecond,
		ShutdownTimeout: 5 * time.Second,
	}
}

// LoadFile reads a YAML config on top of the defaults.
// A missing file is reported as an error wrapping os.ErrNotExist.
func LoadFile(path string) (*FileConfig, error) {
	cfg := DefaultFileConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.validate()
	return cfg, nil
}

// validate ensures configuration values are within reasonable bounds
func (c *FileConfig) validate() {
	if c.Port < 0 || c.Port > 65535 {
		c.Port = DefaultPort
	}
	if c.Framework == "" {
		c.Framework = DefaultFramework
	}

	if c.Debounce < 10*time.Millisecond {
		c.Debounce = 10 * time.Millisecond
	}
	if c.Debounce > 5*time.Second {
		c.Debounce = 5 * time.Second
	}
	if c.ShutdownTimeout < 1*time.Second {
		c.ShutdownTimeout = 1 * time.Second
	}
	if c.ShutdownTimeout > 60*time.Second {
		c.ShutdownTimeout = 60 * time.Second
	}
}
