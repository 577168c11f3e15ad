package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/newthinker/presetd/internal/core"
	"github.com/spf13/viper"
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendLocalFS  = "localfs"
	BackendS3       = "s3"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendRemote   = "remote"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Autosave  AutosaveConfig  `mapstructure:"autosave"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
	Backtest  BacktestConfig  `mapstructure:"backtest"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	APIKey          string        `mapstructure:"api_key"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	Path     string         `mapstructure:"path"` // For localfs
	S3       S3Config       `mapstructure:"s3"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Remote   RemoteConfig   `mapstructure:"remote"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	Prefix   string `mapstructure:"prefix"`
}

type PostgresConfig struct {
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

// RemoteConfig points at another service speaking the preset protocol.
type RemoteConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AutosaveConfig controls draft debouncing.
type AutosaveConfig struct {
	QuietPeriod time.Duration `mapstructure:"quiet_period"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

type LifecycleConfig struct {
	PersistenceTimeout time.Duration `mapstructure:"persistence_timeout"`
	PurgeConcurrency   int           `mapstructure:"purge_concurrency"`
}

// SweeperConfig controls the orphaned draft sweeper.
type SweeperConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	Namespaces []string      `mapstructure:"namespaces"`
}

type BacktestConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type JobsConfig struct {
	Max int           `mapstructure:"max"`
	TTL time.Duration `mapstructure:"ttl"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file on top of Defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Backend: BackendLocalFS,
			Path:    "./data/presets",
		},
		Autosave: AutosaveConfig{
			QuietPeriod: time.Second,
			MaxRetries:  3,
		},
		Lifecycle: LifecycleConfig{
			PersistenceTimeout: 10 * time.Second,
			PurgeConcurrency:   8,
		},
		Sweeper: SweeperConfig{
			Enabled:  true,
			Interval: 10 * time.Minute,
		},
		Backtest: BacktestConfig{
			Timeout: 5 * time.Minute,
		},
		Jobs: JobsConfig{
			Max: 100,
			TTL: time.Hour,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if err := c.Storage.validate(); err != nil {
		return err
	}

	if c.Autosave.QuietPeriod <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("autosave.quiet_period must be positive, got %s", c.Autosave.QuietPeriod))
	}
	if c.Autosave.MaxRetries < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("autosave.max_retries cannot be negative, got %d", c.Autosave.MaxRetries))
	}
	if c.Lifecycle.PersistenceTimeout <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("lifecycle.persistence_timeout must be positive, got %s", c.Lifecycle.PersistenceTimeout))
	}
	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("sweeper.interval must be positive, got %s", c.Sweeper.Interval))
	}
	if c.Jobs.Max < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("jobs.max must be at least 1, got %d", c.Jobs.Max))
	}

	return nil
}

func (s StorageConfig) validate() error {
	missing := func(field string) error {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("storage.%s required when backend is %s", field, s.Backend))
	}

	switch s.Backend {
	case BackendMemory:
	case BackendLocalFS:
		if s.Path == "" {
			return missing("path")
		}
	case BackendS3:
		if s.S3.Bucket == "" {
			return missing("s3.bucket")
		}
	case BackendRedis:
		if s.Redis.Address == "" {
			return missing("redis.address")
		}
	case BackendPostgres:
		if s.Postgres.DSN == "" {
			return missing("postgres.dsn")
		}
	case BackendRemote:
		if s.Remote.URL == "" {
			return missing("remote.url")
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown storage backend %q", s.Backend))
	}
	return nil
}
