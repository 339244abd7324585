package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	config := Default()

	if config.Perturb.Field != "theta" {
		t.Errorf("expected Field 'theta', got '%s'", config.Perturb.Field)
	}
	if config.Perturb.Amplitude != 1e-14 {
		t.Errorf("expected Amplitude 1e-14, got %g", config.Perturb.Amplitude)
	}
	if config.Perturb.Size != 30 {
		t.Errorf("expected Size 30, got %d", config.Perturb.Size)
	}

	if config.Ensemble.Concurrency != 4 {
		t.Errorf("expected Concurrency 4, got %d", config.Ensemble.Concurrency)
	}
	if config.Ensemble.MemberTimeout != 30*time.Minute {
		t.Errorf("expected MemberTimeout 30m, got %v", config.Ensemble.MemberTimeout)
	}

	if config.Trim.TimeIndex != -1 {
		t.Errorf("expected TimeIndex -1 (last), got %d", config.Trim.TimeIndex)
	}
	if config.Validate.Threshold != 3.0 {
		t.Errorf("expected Threshold 3.0, got %f", config.Validate.Threshold)
	}
	if config.Store.Driver != "fs" {
		t.Errorf("expected Store.Driver 'fs', got '%s'", config.Store.Driver)
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
perturb:
  base_seed: 42
  field: temperature
  amplitude: 1e-10
  size: 50

ensemble:
  binary: /opt/model/atmosphere_model
  ranks: 8
  concurrency: 2
  member_timeout: 10m
  fail_threshold: 0.25

store:
  driver: s3
  s3:
    bucket: ect-summaries
    region: us-west-2
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Perturb.BaseSeed != 42 {
		t.Errorf("expected BaseSeed 42, got %d", config.Perturb.BaseSeed)
	}
	if config.Perturb.Field != "temperature" {
		t.Errorf("expected Field 'temperature', got '%s'", config.Perturb.Field)
	}
	if config.Ensemble.Ranks != 8 {
		t.Errorf("expected Ranks 8, got %d", config.Ensemble.Ranks)
	}
	if config.Ensemble.MemberTimeout != 10*time.Minute {
		t.Errorf("expected MemberTimeout 10m, got %v", config.Ensemble.MemberTimeout)
	}
	if config.Ensemble.FailThreshold != 0.25 {
		t.Errorf("expected FailThreshold 0.25, got %f", config.Ensemble.FailThreshold)
	}
	if config.Store.S3.Bucket != "ect-summaries" {
		t.Errorf("expected Bucket 'ect-summaries', got '%s'", config.Store.S3.Bucket)
	}
	// Fields absent from the file keep their defaults.
	if config.Validate.Threshold != 3.0 {
		t.Errorf("expected default Threshold 3.0, got %f", config.Validate.Threshold)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ECT_ENSEMBLE_SIZE", "12")
	t.Setenv("ECT_CONCURRENCY", "7")
	t.Setenv("ECT_BINARY", "/usr/bin/model")
	t.Setenv("ECT_MEMBER_TIMEOUT", "90s")
	t.Setenv("ECT_LOG_LEVEL", "debug")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.Perturb.Size != 12 {
		t.Errorf("expected Size 12, got %d", config.Perturb.Size)
	}
	if config.Ensemble.Concurrency != 7 {
		t.Errorf("expected Concurrency 7, got %d", config.Ensemble.Concurrency)
	}
	if config.Ensemble.Binary != "/usr/bin/model" {
		t.Errorf("expected Binary '/usr/bin/model', got '%s'", config.Ensemble.Binary)
	}
	if config.Ensemble.MemberTimeout != 90*time.Second {
		t.Errorf("expected MemberTimeout 90s, got %v", config.Ensemble.MemberTimeout)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("expected Level 'debug', got '%s'", config.Logging.Level)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero amplitude", func(c *Config) { c.Perturb.Amplitude = 0 }},
		{"negative amplitude", func(c *Config) { c.Perturb.Amplitude = -1e-14 }},
		{"zero ensemble size", func(c *Config) { c.Perturb.Size = 0 }},
		{"empty field", func(c *Config) { c.Perturb.Field = "" }},
		{"zero concurrency", func(c *Config) { c.Ensemble.Concurrency = 0 }},
		{"zero timeout", func(c *Config) { c.Ensemble.MemberTimeout = 0 }},
		{"threshold above one", func(c *Config) { c.Ensemble.FailThreshold = 1.5 }},
		{"zero ranks", func(c *Config) { c.Ensemble.Ranks = 0 }},
		{"zero score threshold", func(c *Config) { c.Validate.Threshold = 0 }},
		{"unknown store driver", func(c *Config) { c.Store.Driver = "ftp" }},
		{"s3 without bucket", func(c *Config) { c.Store.Driver = "s3" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
