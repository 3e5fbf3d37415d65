package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvandessel/rbdc/internal/constants"
	"github.com/nvandessel/rbdc/internal/models"
)

func TestDefault(t *testing.T) {
	config := Default()

	if config.Parameters != models.DefaultParameters() {
		t.Errorf("expected built-in parameters, got %+v", config.Parameters)
	}
	if config.Sweep.Workers != 0 {
		t.Errorf("expected Sweep.Workers 0, got %d", config.Sweep.Workers)
	}
	if config.Serve.Addr != "localhost:8737" {
		t.Errorf("expected Serve.Addr 'localhost:8737', got '%s'", config.Serve.Addr)
	}
	if config.Cache.Path != "" {
		t.Errorf("expected in-memory cache by default, got '%s'", config.Cache.Path)
	}
	if config.Telemetry.OTelEndpoint != "" {
		t.Errorf("expected tracing disabled by default, got '%s'", config.Telemetry.OTelEndpoint)
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
parameters:
  dose: 2.5
  boundary_condition: reflecting
sweep:
  workers: 4
serve:
  addr: 127.0.0.1:9000
cache:
  path: /tmp/rbdc-cache.db
logging:
  level: debug
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	config, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Parameters.Dose != 2.5 {
		t.Errorf("expected Dose 2.5, got %g", config.Parameters.Dose)
	}
	if config.Parameters.BoundaryCondition != constants.BoundaryReflecting {
		t.Errorf("expected reflecting boundary, got %q", config.Parameters.BoundaryCondition)
	}
	// Options absent from the file keep their defaults.
	if config.Parameters.DecayRate != constants.DefaultDecayRate {
		t.Errorf("expected default DecayRate, got %g", config.Parameters.DecayRate)
	}
	if config.Sweep.Workers != 4 {
		t.Errorf("expected Workers 4, got %d", config.Sweep.Workers)
	}
	if config.Serve.Addr != "127.0.0.1:9000" {
		t.Errorf("expected Addr '127.0.0.1:9000', got '%s'", config.Serve.Addr)
	}
	if config.Serve.Burst != 10 {
		t.Errorf("expected default Burst 10, got %d", config.Serve.Burst)
	}
	if config.Cache.Path != "/tmp/rbdc-cache.db" {
		t.Errorf("expected cache path, got '%s'", config.Cache.Path)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("expected Level 'debug', got '%s'", config.Logging.Level)
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, models.ErrIO) {
		t.Errorf("expected io error, got %v", err)
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("sweep: [unclosed"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	_, err := LoadFromFile(configPath)
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RBDC_LOG_LEVEL", "trace")
	t.Setenv("RBDC_SWEEP_WORKERS", "3")
	t.Setenv("RBDC_SERVE_ADDR", "0.0.0.0:1234")
	t.Setenv("RBDC_SERVE_RATE_LIMIT", "2.5")
	t.Setenv("RBDC_CACHE_PATH", "/var/cache/rbdc.db")
	t.Setenv("RBDC_OTEL_ENDPOINT", "http://collector:4318")

	config := Default()
	if err := applyEnvOverrides(config); err != nil {
		t.Fatalf("applyEnvOverrides failed: %v", err)
	}

	if config.Logging.Level != "trace" {
		t.Errorf("expected Level 'trace', got '%s'", config.Logging.Level)
	}
	if config.Sweep.Workers != 3 {
		t.Errorf("expected Workers 3, got %d", config.Sweep.Workers)
	}
	if config.Serve.Addr != "0.0.0.0:1234" {
		t.Errorf("expected Addr override, got '%s'", config.Serve.Addr)
	}
	if config.Serve.RateLimit != 2.5 {
		t.Errorf("expected RateLimit 2.5, got %g", config.Serve.RateLimit)
	}
	if config.Cache.Path != "/var/cache/rbdc.db" {
		t.Errorf("expected cache path override, got '%s'", config.Cache.Path)
	}
	if config.Telemetry.OTelEndpoint != "http://collector:4318" {
		t.Errorf("expected endpoint override, got '%s'", config.Telemetry.OTelEndpoint)
	}
	// Unset variables leave settings alone.
	if config.Serve.Burst != 10 {
		t.Errorf("expected Burst untouched, got %d", config.Serve.Burst)
	}
}

func TestEnvOverrides_Malformed(t *testing.T) {
	t.Setenv("RBDC_SWEEP_WORKERS", "many")

	err := applyEnvOverrides(Default())
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("RBDC_LOG_LEVEL", "debug")

	dir := filepath.Join(home, DirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	content := "sweep:\n  workers: 2\nlogging:\n  level: info\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	config, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Sweep.Workers != 2 {
		t.Errorf("expected Workers 2 from file, got %d", config.Sweep.Workers)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("expected env to win over file, got '%s'", config.Logging.Level)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	config := Default()
	config.Parameters.Dose = 4
	config.Sweep.Workers = 8

	if err := config.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Parameters.Dose != 4 || loaded.Sweep.Workers != 8 {
		t.Errorf("round trip lost settings: %+v", loaded)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RBDCConfig)
		wantErr bool
	}{
		{"default", func(*RBDCConfig) {}, false},
		{"empty log level", func(c *RBDCConfig) { c.Logging.Level = "" }, false},
		{"trace level", func(c *RBDCConfig) { c.Logging.Level = "trace" }, false},
		{"bad log level", func(c *RBDCConfig) { c.Logging.Level = "verbose" }, true},
		{"negative workers", func(c *RBDCConfig) { c.Sweep.Workers = -1 }, true},
		{"zero rate limit", func(c *RBDCConfig) { c.Serve.RateLimit = 0 }, true},
		{"zero burst", func(c *RBDCConfig) { c.Serve.Burst = 0 }, true},
		{"bad parameters", func(c *RBDCConfig) { c.Parameters.GridResolution = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, models.ErrValidation) {
				t.Errorf("Validate() = %v, want validation kind", err)
			}
		})
	}
}
