// Package config loads and validates the daemon's configuration (spec.md
// §6): a small, environment-overridable settings surface layered from
// defaults, a user config file, a project config file, and environment
// variables, in increasing precedence.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/amanmcp-labs/memoryd/internal/embedding"
)

// Weights holds the default recall fusion weights (spec.md §4.13).
type Weights struct {
	Vector float64 `yaml:"vector" json:"vector"`
	BM25   float64 `yaml:"bm25" json:"bm25"`
	PPR    float64 `yaml:"ppr" json:"ppr"`
}

// Config is the complete daemon configuration (spec.md §6).
type Config struct {
	// DataDir is the root of the filesystem layout: db/, cache.<ext>, models/.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// Model is one of the recognized embedding model identifiers
	// (embedding.Models).
	Model string `yaml:"model" json:"model"`
	// MRLDim optionally requests Matryoshka truncation to a smaller
	// dimension than the model's base. 0 means "use the model's default".
	MRLDim int `yaml:"mrl_dim" json:"mrl_dim"`
	// CacheSize is the L1 in-process embedding cache capacity (entries).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// BatchSize is the embedding worker's max batch size (spec.md §4.3).
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// TimeoutMS bounds each incremental reindex the file watcher triggers
	// under serve.
	TimeoutMS int `yaml:"timeout_ms" json:"timeout_ms"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`
	// IdleTimeout is minutes of inactivity before the daemon exits; 0 disables.
	IdleTimeout int `yaml:"idle_timeout" json:"idle_timeout"`

	// RRFConstant is the RRF smoothing parameter k (spec.md §4.5/§4.13).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	// Weights are the default recall fusion weights, overridable per-call.
	Weights Weights `yaml:"weights" json:"weights"`
}

// NewConfig returns a Config populated with spec.md defaults.
func NewConfig() *Config {
	return &Config{
		DataDir:     defaultDataDir(),
		Model:       "mock",
		MRLDim:      0,
		CacheSize:   10000,
		BatchSize:   32,
		TimeoutMS:   30000,
		LogLevel:    "info",
		IdleTimeout: 0,
		RRFConstant: 60,
		Weights: Weights{
			Vector: 0.40,
			BM25:   0.15,
			PPR:    0.45,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".memoryd")
	}
	return filepath.Join(home, ".memoryd")
}

// GetUserConfigPath returns the user/global configuration file path,
// following the XDG Base Directory convention.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "memoryd", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "memoryd", "config.yaml")
	}
	return filepath.Join(home, ".config", "memoryd", "config.yaml")
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

func loadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load builds the effective configuration for dir in order of increasing
// precedence: hardcoded defaults, user config (~/.config/memoryd/config.yaml),
// project config (.memoryd.yaml in dir), then MEMORYD_* environment
// variables. The result is validated before being returned.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromFile loads .memoryd.yaml or .memoryd.yml from dir, if present.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".memoryd.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".memoryd.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays other's non-zero fields onto c.
func (c *Config) mergeWith(other *Config) {
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}
	if other.Model != "" {
		c.Model = other.Model
	}
	if other.MRLDim != 0 {
		c.MRLDim = other.MRLDim
	}
	if other.CacheSize != 0 {
		c.CacheSize = other.CacheSize
	}
	if other.BatchSize != 0 {
		c.BatchSize = other.BatchSize
	}
	if other.TimeoutMS != 0 {
		c.TimeoutMS = other.TimeoutMS
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.IdleTimeout != 0 {
		c.IdleTimeout = other.IdleTimeout
	}
	if other.RRFConstant != 0 {
		c.RRFConstant = other.RRFConstant
	}
	if other.Weights.Vector != 0 {
		c.Weights.Vector = other.Weights.Vector
	}
	if other.Weights.BM25 != 0 {
		c.Weights.BM25 = other.Weights.BM25
	}
	if other.Weights.PPR != 0 {
		c.Weights.PPR = other.Weights.PPR
	}
}

// applyEnvOverrides applies MEMORYD_* environment variable overrides, the
// highest-precedence configuration layer (spec.md §6 "environment-overridable").
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEMORYD_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("MEMORYD_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("MEMORYD_MRL_DIM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MRLDim = n
		}
	}
	if v := os.Getenv("MEMORYD_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.CacheSize = n
		}
	}
	if v := os.Getenv("MEMORYD_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.BatchSize = n
		}
	}
	if v := os.Getenv("MEMORYD_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.TimeoutMS = n
		}
	}
	if v := os.Getenv("MEMORYD_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("MEMORYD_IDLE_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.IdleTimeout = n
		}
	}
	if v := os.Getenv("MEMORYD_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RRFConstant = n
		}
	}
	if v := os.Getenv("MEMORYD_WEIGHT_VECTOR"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 && f <= 1 {
			c.Weights.Vector = f
		}
	}
	if v := os.Getenv("MEMORYD_WEIGHT_BM25"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 && f <= 1 {
			c.Weights.BM25 = f
		}
	}
	if v := os.Getenv("MEMORYD_WEIGHT_PPR"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 && f <= 1 {
			c.Weights.PPR = f
		}
	}
}

func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Validate checks the configuration for internal consistency, including the
// recognized-model and MRL-dimension rules from spec.md §6.
func (c *Config) Validate() error {
	info, ok := embedding.Models[c.Model]
	if !ok {
		return fmt.Errorf("model must be one of the recognized embedding models, got %q", c.Model)
	}
	if c.MRLDim != 0 {
		if info.MRLDim == 0 {
			return fmt.Errorf("model %q does not support MRL truncation", c.Model)
		}
		if c.MRLDim > info.BaseDim {
			return fmt.Errorf("mrl_dim %d exceeds model %q base dimension %d", c.MRLDim, c.Model, info.BaseDim)
		}
	}

	if c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive, got %d", c.CacheSize)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.TimeoutMS <= 0 {
		return fmt.Errorf("timeout_ms must be positive, got %d", c.TimeoutMS)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout must be non-negative, got %d", c.IdleTimeout)
	}
	if c.RRFConstant <= 0 {
		return fmt.Errorf("rrf_constant must be positive, got %d", c.RRFConstant)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}

	w := c.Weights
	if w.Vector < 0 || w.BM25 < 0 || w.PPR < 0 {
		return fmt.Errorf("recall weights must be non-negative, got vector=%.2f bm25=%.2f ppr=%.2f", w.Vector, w.BM25, w.PPR)
	}
	sum := w.Vector + w.BM25 + w.PPR
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("recall weights must sum to 1.0, got %.2f", sum)
	}

	return nil
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
