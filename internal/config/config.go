// Package config loads the wikilua configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/caffeineduck/wikilua/executor"
)

// Config is the top-level configuration.
type Config struct {
	Executor ExecutorConfig `yaml:"executor"`
	Cache    CacheConfig    `yaml:"cache"`
	Store    StoreConfig    `yaml:"store"`
	Workers  int            `yaml:"workers"`
	LogLevel string         `yaml:"log_level"`
}

// ExecutorConfig holds the per-execution budgets.
type ExecutorConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	MemoryLimit       Size          `yaml:"memory_limit"`
	Quantum           int64         `yaml:"quantum"`
	MaxDepth          int           `yaml:"max_depth"`
	MeasureModuleSize bool          `yaml:"measure_module_size"`
}

// CacheConfig holds the byte budgets of the caches.
type CacheConfig struct {
	ModuleBytes  Size `yaml:"module_bytes"`
	ArticleBytes Size `yaml:"article_bytes"`
	OutputBytes  Size `yaml:"output_bytes"`
}

// StoreConfig locates the content database. An empty path keeps pages in
// memory.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Executor: ExecutorConfig{
			Timeout:           executor.DefaultTimeout,
			MemoryLimit:       executor.DefaultMemoryLimit,
			Quantum:           executor.DefaultQuantum,
			MaxDepth:          executor.DefaultMaxDepth,
			MeasureModuleSize: true,
		},
		Cache: CacheConfig{
			ModuleBytes:  executor.DefaultModuleCacheSize,
			ArticleBytes: 32 << 20,
			OutputBytes:  16 << 20,
		},
		Store:    StoreConfig{Path: "wikilua.db"},
		Workers:  4,
		LogLevel: "info",
	}
}

// Load reads the configuration at path on top of Default. A missing file
// is created with the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.Save(path); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path atomically.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate rejects budgets the executor cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Executor.Timeout <= 0:
		return fmt.Errorf("executor.timeout must be positive, got %s", c.Executor.Timeout)
	case c.Executor.Quantum <= 0:
		return fmt.Errorf("executor.quantum must be positive, got %d", c.Executor.Quantum)
	case c.Executor.MaxDepth <= 0:
		return fmt.Errorf("executor.max_depth must be positive, got %d", c.Executor.MaxDepth)
	case c.Workers <= 0:
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// ExecutorOptions converts the executor section into executor options.
func (c *Config) ExecutorOptions(logger *slog.Logger) []executor.ExecutorOption {
	return []executor.ExecutorOption{
		executor.WithDefaults(
			executor.WithTimeout(c.Executor.Timeout),
			executor.WithMemoryLimit(uint64(c.Executor.MemoryLimit)),
			executor.WithQuantum(c.Executor.Quantum),
		),
		executor.WithMaxDepth(c.Executor.MaxDepth),
		executor.WithModuleCacheSize(int(c.Cache.ModuleBytes)),
		executor.WithGCMeasurement(c.Executor.MeasureModuleSize),
		executor.WithLogger(logger),
	}
}

// Size is a byte count written as a plain number or with a kb, mb or gb
// suffix.
type Size uint64

var sizeUnits = []struct {
	suffix string
	shift  uint
}{
	{"gb", 30},
	{"mb", 20},
	{"kb", 10},
	{"b", 0},
}

// ParseSize parses "64mb", "1gb", "512kb" or "1048576".
func ParseSize(s string) (Size, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	shift := uint(0)
	for _, u := range sizeUnits {
		if rest, ok := strings.CutSuffix(t, u.suffix); ok {
			t, shift = strings.TrimSpace(rest), u.shift
			break
		}
	}
	n, err := strconv.ParseUint(t, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return Size(n << shift), nil
}

func (s Size) String() string {
	for _, u := range sizeUnits {
		if u.shift > 0 && s != 0 && s%(1<<u.shift) == 0 {
			return strconv.FormatUint(uint64(s)>>u.shift, 10) + u.suffix
		}
	}
	return strconv.FormatUint(uint64(s), 10)
}

func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	v, err := ParseSize(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = v
	return nil
}

func (s Size) MarshalYAML() (any, error) {
	return s.String(), nil
}
