package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newthinker/presetd/internal/core"
)

func TestLoad_FromFile(t *testing.T) {
	content := []byte(`
server:
  host: "127.0.0.1"
  port: 9090

storage:
  backend: redis
  redis:
    address: "localhost:6379"
    prefix: "presetd-test"

autosave:
  quiet_period: 250ms
`)

	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != BackendRedis {
		t.Errorf("expected redis, got %s", cfg.Storage.Backend)
	}
	if cfg.Storage.Redis.Prefix != "presetd-test" {
		t.Errorf("expected prefix presetd-test, got %s", cfg.Storage.Redis.Prefix)
	}
	if cfg.Autosave.QuietPeriod != 250*time.Millisecond {
		t.Errorf("expected quiet period 250ms, got %s", cfg.Autosave.QuietPeriod)
	}
	// Unset keys keep their defaults.
	if cfg.Autosave.MaxRetries != 3 {
		t.Errorf("expected default max_retries 3, got %d", cfg.Autosave.MaxRetries)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("PRESETD_TEST_DSN", "postgres://localhost:5432/presets")
	content := []byte(`
storage:
  backend: postgres
  postgres:
    dsn: "${PRESETD_TEST_DSN}"
`)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Storage.Postgres.DSN != "postgres://localhost:5432/presets" {
		t.Errorf("dsn not expanded: %q", cfg.Storage.Postgres.DSN)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Autosave.QuietPeriod != time.Second {
		t.Errorf("expected default quiet period 1s, got %s", cfg.Autosave.QuietPeriod)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr *core.Error
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "invalid port - zero",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: core.ErrConfigInvalid,
		},
		{
			name:    "invalid port - too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: core.ErrConfigInvalid,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Storage.Backend = "etcd" },
			wantErr: core.ErrConfigInvalid,
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Config) { c.Storage.Backend = BackendS3 },
			wantErr: core.ErrConfigMissing,
		},
		{
			name:    "remote without url",
			mutate:  func(c *Config) { c.Storage.Backend = BackendRemote },
			wantErr: core.ErrConfigMissing,
		},
		{
			name:   "memory needs nothing",
			mutate: func(c *Config) { c.Storage = StorageConfig{Backend: BackendMemory} },
		},
		{
			name:    "zero quiet period",
			mutate:  func(c *Config) { c.Autosave.QuietPeriod = 0 },
			wantErr: core.ErrConfigInvalid,
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Autosave.MaxRetries = -1 },
			wantErr: core.ErrConfigInvalid,
		},
		{
			name:    "sweeper without interval",
			mutate:  func(c *Config) { c.Sweeper.Interval = 0 },
			wantErr: core.ErrConfigInvalid,
		},
		{
			name: "disabled sweeper ignores interval",
			mutate: func(c *Config) {
				c.Sweeper.Enabled = false
				c.Sweeper.Interval = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %s", err, tt.wantErr.Code)
			}
		})
	}
}
