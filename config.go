package main

import (
	"io"
	"math"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	errInvalidPort         = errors.New("port must be between 0 and 65535")
	errInvalidBasePath     = errors.New("base path must start and end with '/'")
	errInvalidCacheSize    = errors.New("cache size must be positive")
	errInvalidLearningRate = errors.New("learning rate must be in (0, 2)")
	errInvalidIterations   = errors.New("max iterations must not be negative")
	errInvalidTopK         = errors.New("top-k must be positive")
	errInvalidTextLength   = errors.New("max text length must be positive")
)

// Config for the llm-apps server. Values are read from defaults, then an
// optional YAML file, then LLM_APPS_* environment variables.
type Config struct {
	LogLevel string `yaml:"log_level" env:"LLM_APPS_LOG_LEVEL"`

	Server     ServerConfig     `yaml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Cache      CacheConfig      `yaml:"cache"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
	Perplexity PerplexityConfig `yaml:"perplexity"`
}

type ServerConfig struct {
	Port int `yaml:"port" env:"LLM_APPS_PORT"`
	// BasePath is the prefix every route is mounted under.
	BasePath string `yaml:"base_path" env:"LLM_APPS_BASE_PATH"`
	// Timeout for a graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"LLM_APPS_SHUTDOWN_TIMEOUT"`
}

type MetricsConfig struct {
	// Port of the Prometheus scrape endpoint. Zero, or the server port, serves
	// metrics from the main server.
	Port int    `yaml:"port" env:"LLM_APPS_METRICS_PORT"`
	Path string `yaml:"path" env:"LLM_APPS_METRICS_PATH"`
}

type CacheConfig struct {
	// Size is the number of analyzed texts kept in memory.
	Size int `yaml:"size" env:"LLM_APPS_CACHE_SIZE"`
}

type OptimizerConfig struct {
	LearningRate float64 `yaml:"learning_rate" env:"LLM_APPS_LEARNING_RATE"`
	// MaxIterations caps the iteration count a request may ask for.
	MaxIterations int `yaml:"max_iterations" env:"LLM_APPS_MAX_ITERATIONS"`
}

type PerplexityConfig struct {
	TopK        int    `yaml:"top_k" env:"LLM_APPS_TOP_K"`
	DefaultText string `yaml:"default_text" env:"LLM_APPS_DEFAULT_TEXT"`
	// MaxTextLength bounds, in bytes, the text a request may evaluate.
	MaxTextLength int `yaml:"max_text_length" env:"LLM_APPS_MAX_TEXT_LENGTH"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "INFO",
		Server: ServerConfig{
			Port:            8080,
			BasePath:        "/llm-apps/",
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Cache: CacheConfig{
			Size: 256,
		},
		Optimizer: OptimizerConfig{
			LearningRate:  DefaultLearningRate,
			MaxIterations: 1000,
		},
		Perplexity: PerplexityConfig{
			TopK:          5,
			DefaultText:   "the cat sat on the mat",
			MaxTextLength: 4096,
		},
	}
}

// LoadConfig overlays the YAML in file (may be nil) and the environment on
// top of DefaultConfig, then validates the result.
func LoadConfig(file io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	if file != nil {
		cfgBuf, err := io.ReadAll(file)
		if err != nil {
			return nil, errors.Wrap(err, "reading YAML configuration")
		}
		if err := yaml.Unmarshal(cfgBuf, cfg); err != nil {
			return nil, errors.Wrap(err, "parsing YAML configuration")
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "reading env vars")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate checks every field for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > math.MaxUint16 {
		return errInvalidPort
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > math.MaxUint16 {
		return errInvalidPort
	}
	if !validBasePath(c.Server.BasePath) {
		return errInvalidBasePath
	}
	if c.Cache.Size <= 0 {
		return errInvalidCacheSize
	}
	if !ValidLearningRate(c.Optimizer.LearningRate) {
		return errInvalidLearningRate
	}
	if c.Optimizer.MaxIterations < 0 {
		return errInvalidIterations
	}
	if c.Perplexity.TopK <= 0 {
		return errInvalidTopK
	}
	if c.Perplexity.MaxTextLength <= 0 {
		return errInvalidTextLength
	}
	return nil
}

// SharedMetricsPort reports whether metrics are served by the main server.
func (c *Config) SharedMetricsPort() bool {
	return c.Metrics.Port == 0 || c.Metrics.Port == c.Server.Port
}

// ValidLearningRate reports whether lr makes gradient descent converge.
func ValidLearningRate(lr float64) bool {
	return !math.IsNaN(lr) && lr > 0 && lr < 2
}

func validBasePath(p string) bool {
	return len(p) > 0 && p[0] == '/' && p[len(p)-1] == '/'
}
