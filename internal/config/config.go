// Package config provides unified configuration loading for ect.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all ect configuration settings.
type Config struct {
	// Perturb contains settings for initial-condition perturbation.
	Perturb PerturbConfig `json:"perturb" yaml:"perturb"`

	// Ensemble contains settings for running the simulation ensemble.
	Ensemble EnsembleConfig `json:"ensemble" yaml:"ensemble"`

	// Trim contains settings for history file trimming.
	Trim TrimConfig `json:"trim" yaml:"trim"`

	// Validate contains settings for the consistency test.
	Validate ValidateConfig `json:"validate" yaml:"validate"`

	// Store contains settings for the summary artifact store.
	Store StoreConfig `json:"store" yaml:"store"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// PerturbConfig configures ensemble member generation.
type PerturbConfig struct {
	// BaseSeed is the root seed; each member's seed is derived from it.
	BaseSeed uint64 `json:"base_seed" yaml:"base_seed"`

	// Field is the prognostic field the perturbation is applied to.
	Field string `json:"field" yaml:"field"`

	// Amplitude is the relative perturbation magnitude (epsilon).
	Amplitude float64 `json:"amplitude" yaml:"amplitude"`

	// Size is the number of ensemble members to generate.
	Size int `json:"size" yaml:"size"`
}

// EnsembleConfig configures the ensemble runner.
type EnsembleConfig struct {
	// Binary is the path to the simulation executable.
	Binary string `json:"binary" yaml:"binary"`

	// Ranks is the MPI rank count passed to the delegate.
	Ranks int `json:"ranks" yaml:"ranks"`

	// Duration is the run-duration parameter passed to the delegate.
	Duration string `json:"duration" yaml:"duration"`

	// Concurrency is the maximum number of members running at once.
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// MemberTimeout bounds each member's wall-clock time.
	MemberTimeout time.Duration `json:"member_timeout" yaml:"member_timeout"`

	// FailThreshold is the failed-member fraction above which the
	// whole ensemble is abandoned.
	FailThreshold float64 `json:"fail_threshold" yaml:"fail_threshold"`
}

// TrimConfig configures history trimming.
type TrimConfig struct {
	// TimeIndex selects the time slice to keep; -1 means the last one.
	TimeIndex int `json:"time_index" yaml:"time_index"`

	// ExcludeFile lists variables excluded from comparison, one per line.
	ExcludeFile string `json:"exclude_file,omitempty" yaml:"exclude_file,omitempty"`

	// Required names variables that must be present in every history file.
	Required []string `json:"required,omitempty" yaml:"required,omitempty"`
}

// ValidateConfig configures the consistency validator.
type ValidateConfig struct {
	// Threshold is the critical score above which a variable fails.
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// StoreConfig configures where summary artifacts are kept.
type StoreConfig struct {
	// Driver selects the backend: "fs" or "s3".
	Driver string `json:"driver" yaml:"driver"`

	// Root is the directory root when driver is "fs".
	Root string `json:"root,omitempty" yaml:"root,omitempty"`

	// S3 holds S3-specific settings when driver is "s3".
	S3 S3Config `json:"s3,omitempty" yaml:"s3,omitempty"`
}

// S3Config configures the S3-compatible artifact backend.
type S3Config struct {
	Bucket    string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	PathStyle bool   `json:"path_style,omitempty" yaml:"path_style,omitempty"`
}

// LoggingConfig configures ect's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables run-event logging to events.jsonl.
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Perturb: PerturbConfig{
			BaseSeed:  1,
			Field:     "theta",
			Amplitude: 1e-14,
			Size:      30,
		},
		Ensemble: EnsembleConfig{
			Binary:        "atmosphere_model",
			Ranks:         1,
			Duration:      "6:00:00",
			Concurrency:   4,
			MemberTimeout: 30 * time.Minute,
			FailThreshold: 1.0 / 3.0,
		},
		Trim: TrimConfig{
			TimeIndex: -1,
		},
		Validate: ValidateConfig{
			Threshold: 3.0,
		},
		Store: StoreConfig{
			Driver: "fs",
			Root:   "summaries",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from path (if non-empty) and environment
// variables. Order: defaults -> file -> environment overrides.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Perturb.Amplitude <= 0 {
		return fmt.Errorf("perturb.amplitude must be positive, got %g", c.Perturb.Amplitude)
	}
	if c.Perturb.Size < 1 {
		return fmt.Errorf("perturb.size must be at least 1, got %d", c.Perturb.Size)
	}
	if c.Perturb.Field == "" {
		return fmt.Errorf("perturb.field must not be empty")
	}

	if c.Ensemble.Concurrency < 1 {
		return fmt.Errorf("ensemble.concurrency must be at least 1, got %d", c.Ensemble.Concurrency)
	}
	if c.Ensemble.MemberTimeout <= 0 {
		return fmt.Errorf("ensemble.member_timeout must be positive, got %v", c.Ensemble.MemberTimeout)
	}
	if c.Ensemble.FailThreshold < 0 || c.Ensemble.FailThreshold > 1 {
		return fmt.Errorf("ensemble.fail_threshold must be between 0 and 1, got %f", c.Ensemble.FailThreshold)
	}
	if c.Ensemble.Ranks < 1 {
		return fmt.Errorf("ensemble.ranks must be at least 1, got %d", c.Ensemble.Ranks)
	}

	if c.Validate.Threshold <= 0 {
		return fmt.Errorf("validate.threshold must be positive, got %f", c.Validate.Threshold)
	}

	switch c.Store.Driver {
	case "fs", "s3":
	default:
		return fmt.Errorf("invalid store driver: %s (valid: fs, s3)", c.Store.Driver)
	}
	if c.Store.Driver == "s3" && c.Store.S3.Bucket == "" {
		return fmt.Errorf("store.s3.bucket required when driver is s3")
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("ECT_BASE_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Perturb.BaseSeed = n
		}
	}
	if v := os.Getenv("ECT_AMPLITUDE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Perturb.Amplitude = f
		}
	}
	if v := os.Getenv("ECT_ENSEMBLE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Perturb.Size = n
		}
	}

	if v := os.Getenv("ECT_BINARY"); v != "" {
		config.Ensemble.Binary = v
	}
	if v := os.Getenv("ECT_RANKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Ensemble.Ranks = n
		}
	}
	if v := os.Getenv("ECT_RUN_DURATION"); v != "" {
		config.Ensemble.Duration = v
	}
	if v := os.Getenv("ECT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Ensemble.Concurrency = n
		}
	}
	if v := os.Getenv("ECT_MEMBER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Ensemble.MemberTimeout = d
		}
	}

	if v := os.Getenv("ECT_STORE_DRIVER"); v != "" {
		config.Store.Driver = v
	}
	if v := os.Getenv("ECT_S3_BUCKET"); v != "" {
		config.Store.S3.Bucket = v
	}
	if v := os.Getenv("ECT_S3_REGION"); v != "" {
		config.Store.S3.Region = v
	}
	if v := os.Getenv("ECT_S3_ENDPOINT"); v != "" {
		config.Store.S3.Endpoint = v
	}

	if v := os.Getenv("ECT_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}
