// Package config provides unified configuration loading for rbdc.
// It supports loading from YAML files and RBDC_* environment variables,
// and decodes parameter-set and sweep files in YAML, TOML or JSON.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/rbdc/internal/constants"
	"github.com/nvandessel/rbdc/internal/models"
)

// DirName is the per-user state directory under $HOME.
const DirName = ".rbdc"

// RBDCConfig contains all rbdc configuration settings.
type RBDCConfig struct {
	// Parameters is the base parameter set for run and query. Options
	// omitted from parameter files and --set flags come from here.
	Parameters models.ParameterSet `json:"parameters" yaml:"parameters"`

	Sweep     SweepConfig     `json:"sweep" yaml:"sweep"`
	Serve     ServeConfig     `json:"serve" yaml:"serve"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	MCP       MCPConfig       `json:"mcp" yaml:"mcp"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// SweepConfig configures the parameter sweep driver.
type SweepConfig struct {
	// Workers bounds concurrent runs. Zero means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`
}

// ServeConfig configures the exploration query server.
type ServeConfig struct {
	Addr string `json:"addr" yaml:"addr"`

	// RateLimit is the sustained number of computed queries per second
	// accepted per client; Burst is the bucket size.
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`
	Burst     int     `json:"burst" yaml:"burst"`

	// Dataset is an exported CSV consulted before computing on demand.
	Dataset string `json:"dataset,omitempty" yaml:"dataset,omitempty"`
}

// CacheConfig configures the computed-run cache.
type CacheConfig struct {
	// Path is the SQLite database file. Empty keeps the cache in memory.
	Path string `json:"path" yaml:"path"`
}

// MCPConfig configures the MCP server.
type MCPConfig struct {
	// OutputDir is the only directory sweep exports may be written to.
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	// OTelEndpoint is an OTLP/HTTP endpoint URL. Empty disables tracing.
	OTelEndpoint string `json:"otel_endpoint,omitempty" yaml:"otel_endpoint,omitempty"`
}

// LoggingConfig configures rbdc's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables run event logging to ~/.rbdc/runs.jsonl.
	// "trace" additionally logs every recorded sample.
	Level string `json:"level" yaml:"level"`
}

// envOverrides are the RBDC_* variables. Unset variables leave the
// corresponding setting untouched.
type envOverrides struct {
	LogLevel     *string  `env:"RBDC_LOG_LEVEL"`
	Workers      *int     `env:"RBDC_SWEEP_WORKERS"`
	ServeAddr    *string  `env:"RBDC_SERVE_ADDR"`
	RateLimit    *float64 `env:"RBDC_SERVE_RATE_LIMIT"`
	Burst        *int     `env:"RBDC_SERVE_BURST"`
	Dataset      *string  `env:"RBDC_DATASET"`
	CachePath    *string  `env:"RBDC_CACHE_PATH"`
	OutputDir    *string  `env:"RBDC_OUTPUT_DIR"`
	OTelEndpoint *string  `env:"RBDC_OTEL_ENDPOINT"`
}

// Default returns an RBDCConfig with sensible defaults.
func Default() *RBDCConfig {
	return &RBDCConfig{
		Parameters: models.DefaultParameters(),
		Sweep: SweepConfig{
			Workers: constants.DefaultSweepWorkers,
		},
		Serve: ServeConfig{
			Addr:      "localhost:8737",
			RateLimit: 5,
			Burst:     10,
		},
		MCP: MCPConfig{
			OutputDir: ".",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Dir returns ~/.rbdc.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// Path returns ~/.rbdc/config.yaml.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.rbdc/config.yaml -> environment variables
func Load() (*RBDCConfig, error) {
	config := Default()

	if configPath, err := Path(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*RBDCConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.IOError{Op: "read", Path: path, Err: err}
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, &models.ValidationError{Field: "config", Value: path, Reason: err.Error()}
	}
	return config, nil
}

// Save writes the configuration to path, creating its directory.
func (c *RBDCConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return &models.IOError{Op: "mkdir", Path: filepath.Dir(path), Err: err}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return &models.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *RBDCConfig) Validate() error {
	if err := c.Parameters.Validate(); err != nil {
		return fmt.Errorf("parameters: %w", err)
	}

	if c.Sweep.Workers < 0 {
		return &models.ValidationError{Field: "sweep.workers", Value: c.Sweep.Workers, Reason: "must be non-negative"}
	}
	if c.Serve.RateLimit <= 0 {
		return &models.ValidationError{Field: "serve.rate_limit", Value: c.Serve.RateLimit, Reason: "must be positive"}
	}
	if c.Serve.Burst < 1 {
		return &models.ValidationError{Field: "serve.burst", Value: c.Serve.Burst, Reason: "must be at least 1"}
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return &models.ValidationError{Field: "logging.level", Value: c.Logging.Level, Reason: "valid: info, debug, trace, or empty for default"}
	}
	return nil
}

// applyEnvOverrides applies RBDC_* environment variables to the config.
func applyEnvOverrides(config *RBDCConfig) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return &models.ValidationError{Field: "environment", Reason: err.Error()}
	}

	if o.LogLevel != nil {
		config.Logging.Level = *o.LogLevel
	}
	if o.Workers != nil {
		config.Sweep.Workers = *o.Workers
	}
	if o.ServeAddr != nil {
		config.Serve.Addr = *o.ServeAddr
	}
	if o.RateLimit != nil {
		config.Serve.RateLimit = *o.RateLimit
	}
	if o.Burst != nil {
		config.Serve.Burst = *o.Burst
	}
	if o.Dataset != nil {
		config.Serve.Dataset = *o.Dataset
	}
	if o.CachePath != nil {
		config.Cache.Path = *o.CachePath
	}
	if o.OutputDir != nil {
		config.MCP.OutputDir = *o.OutputDir
	}
	if o.OTelEndpoint != nil {
		config.Telemetry.OTelEndpoint = *o.OTelEndpoint
	}
	return nil
}
