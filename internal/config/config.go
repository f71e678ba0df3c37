// Package config holds the engine configuration: working directory,
// Ghostscript discovery, memory strategy threshold, timeouts and worker
// limits. All tunables live here so the pipeline and orchestrator never
// hardcode them.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultMemoryThreshold is the input size at which the pipeline
	// switches from in-memory buffers to temp-file backed processing.
	DefaultMemoryThreshold = 100 * 1024 * 1024

	// DefaultMaxDocumentBytes is the hard per-document ceiling. Documents
	// above it are rejected before any backend runs.
	DefaultMaxDocumentBytes = 200 * 1024 * 1024

	// DefaultMaxWorkers caps concurrent documents (and therefore live
	// Ghostscript processes) per batch.
	DefaultMaxWorkers = 4

	// DefaultTimeoutBase and DefaultTimeoutPerMB shape the per-document
	// wall-clock deadline for the primary backend.
	DefaultTimeoutBase  = 30 * time.Second
	DefaultTimeoutPerMB = 2 * time.Second

	// DefaultTimeoutCeiling bounds the computed deadline.
	DefaultTimeoutCeiling = 5 * time.Minute

	// DefaultProbeTimeout bounds the Ghostscript availability check.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultListenAddr is where the HTTP server binds.
	DefaultListenAddr = ":8080"
)

// Config holds engine configuration.
type Config struct {
	// WorkingDir hosts per-document temp dirs and finished batch outputs.
	WorkingDir string `yaml:"working_dir"`

	// DatabasePath locates the sqlite run-history store.
	DatabasePath string `yaml:"database_path"`

	// GhostscriptPath is the primary backend binary. Empty means the
	// probe will report the primary backend unavailable.
	GhostscriptPath string `yaml:"ghostscript_path"`

	// MemoryThreshold selects the memory-vs-temp-storage strategy.
	MemoryThreshold int64 `yaml:"memory_threshold"`

	// MaxDocumentBytes is the hard per-document size ceiling.
	MaxDocumentBytes int64 `yaml:"max_document_bytes"`

	// MaxWorkers bounds concurrent document processing.
	MaxWorkers int `yaml:"max_workers"`

	TimeoutBase    time.Duration `yaml:"timeout_base"`
	TimeoutPerMB   time.Duration `yaml:"timeout_per_mb"`
	TimeoutCeiling time.Duration `yaml:"timeout_ceiling"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`

	// ListenAddr is the HTTP server bind address.
	ListenAddr string `yaml:"listen_addr"`
}

// New creates a configuration with defaults, environment overrides and
// Ghostscript discovery applied.
func New() *Config {
	cfg := &Config{
		MemoryThreshold:  DefaultMemoryThreshold,
		MaxDocumentBytes: DefaultMaxDocumentBytes,
		MaxWorkers:       DefaultMaxWorkers,
		TimeoutBase:      DefaultTimeoutBase,
		TimeoutPerMB:     DefaultTimeoutPerMB,
		TimeoutCeiling:   DefaultTimeoutCeiling,
		ProbeTimeout:     DefaultProbeTimeout,
		ListenAddr:       DefaultListenAddr,
	}

	if addr := os.Getenv("PDFPRESS_LISTEN"); addr != "" {
		cfg.ListenAddr = addr
	}

	cfg.setupDirectories()
	cfg.setupGhostscriptPath()

	return cfg
}

// Load builds a configuration from defaults overlaid with a YAML file.
func Load(path string) (*Config, error) {
	cfg := New()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg.normalize()
	if err := os.MkdirAll(cfg.WorkingDir, 0755); err != nil {
		return nil, fmt.Errorf("create working dir: %w", err)
	}
	return cfg, nil
}

func (c *Config) setupDirectories() {
	if dir := os.Getenv("PDFPRESS_WORKDIR"); dir != "" {
		c.WorkingDir = dir
	} else {
		c.WorkingDir = filepath.Join(os.TempDir(), "pdfpress")
	}
	os.MkdirAll(c.WorkingDir, 0755)

	c.DatabasePath = filepath.Join(c.WorkingDir, "pdfpress.sqlite3")
}

func (c *Config) setupGhostscriptPath() {
	if path := os.Getenv("PDFPRESS_GS_BINARY"); path != "" {
		c.GhostscriptPath = path
		return
	}

	path, err := exec.LookPath("gs")
	if err != nil {
		slog.Warn("ghostscript not found in PATH, primary backend disabled")
		return
	}
	c.GhostscriptPath = path
}

// normalize clamps out-of-range values back to defaults.
func (c *Config) normalize() {
	if c.MemoryThreshold <= 0 {
		c.MemoryThreshold = DefaultMemoryThreshold
	}
	if c.MaxDocumentBytes <= 0 {
		c.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	if c.MaxWorkers < 1 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.TimeoutBase <= 0 {
		c.TimeoutBase = DefaultTimeoutBase
	}
	if c.TimeoutPerMB < 0 {
		c.TimeoutPerMB = DefaultTimeoutPerMB
	}
	if c.TimeoutCeiling <= 0 {
		c.TimeoutCeiling = DefaultTimeoutCeiling
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.WorkingDir == "" {
		c.WorkingDir = filepath.Join(os.TempDir(), "pdfpress")
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.WorkingDir, "pdfpress.sqlite3")
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
}

// DocumentTimeout computes the wall-clock deadline for compressing a
// document of the given size.
func (c *Config) DocumentTimeout(sizeBytes int64) time.Duration {
	mb := sizeBytes / (1024 * 1024)
	timeout := c.TimeoutBase + time.Duration(mb)*c.TimeoutPerMB
	if timeout > c.TimeoutCeiling {
		timeout = c.TimeoutCeiling
	}
	return timeout
}
