package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all runner configuration.
type Config struct {
	VM        VMConfig        `toml:"vm" yaml:"vm"`
	Pool      PoolConfig      `toml:"pool" yaml:"pool"`
	Arena     ArenaConfig     `toml:"arena" yaml:"arena"`
	Runner    RunnerConfig    `toml:"runner" yaml:"runner"`
	Loader    LoaderConfig    `toml:"loader" yaml:"loader"`
	Server    ServerConfig    `toml:"server" yaml:"server"`
	RateLimit RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
	Logging   LogConfig       `toml:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `toml:"metrics" yaml:"metrics"`
}

// VMConfig holds per-context engine limits.
type VMConfig struct {
	Timeout          Duration `envconfig:"VM_TIMEOUT" default:"5s" toml:"timeout" yaml:"timeout"`
	MaxCallStackSize int      `envconfig:"VM_MAX_CALL_STACK" default:"1024" toml:"max_call_stack" yaml:"max_call_stack"`
}

// PoolConfig holds context pool sizing.
type PoolConfig struct {
	Size           int      `envconfig:"POOL_SIZE" default:"4" toml:"size" yaml:"size"`
	AcquireTimeout Duration `envconfig:"POOL_ACQUIRE_TIMEOUT" default:"5s" toml:"acquire_timeout" yaml:"acquire_timeout"`
}

// ArenaConfig holds marshalling policy defaults.
type ArenaConfig struct {
	SyncMode       string `envconfig:"ARENA_SYNC_MODE" default:"both" toml:"sync_mode" yaml:"sync_mode"`
	MaxArrayLength int    `envconfig:"ARENA_MAX_ARRAY_LENGTH" default:"1048576" toml:"max_array_length" yaml:"max_array_length"`
}

// RunnerConfig holds the host API exposed to scripts.
type RunnerConfig struct {
	Concurrency   int      `envconfig:"RUNNER_CONCURRENCY" default:"4" toml:"concurrency" yaml:"concurrency"`
	EnableConsole bool     `envconfig:"RUNNER_CONSOLE" default:"true" toml:"console" yaml:"console"`
	Env           []string `envconfig:"RUNNER_ENV" toml:"env" yaml:"env"`
}

// LoaderConfig holds remote script fetching settings.
type LoaderConfig struct {
	RetryMax     int      `envconfig:"LOADER_RETRY_MAX" default:"3" toml:"retry_max" yaml:"retry_max"`
	RetryWaitMin Duration `envconfig:"LOADER_RETRY_WAIT_MIN" default:"500ms" toml:"retry_wait_min" yaml:"retry_wait_min"`
	RetryWaitMax Duration `envconfig:"LOADER_RETRY_WAIT_MAX" default:"10s" toml:"retry_wait_max" yaml:"retry_wait_max"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host            string   `envconfig:"SERVER_HOST" default:"127.0.0.1" toml:"host" yaml:"host"`
	Port            string   `envconfig:"SERVER_PORT" default:"8040" toml:"port" yaml:"port"`
	ShutdownTimeout Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s" toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxScriptBytes  int64    `envconfig:"SERVER_MAX_SCRIPT_BYTES" default:"1048576" toml:"max_script_bytes" yaml:"max_script_bytes"`
}

// RateLimitConfig holds per-client rate limiting for the HTTP server.
type RateLimitConfig struct {
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" toml:"enabled" yaml:"enabled"`
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20" toml:"rps" yaml:"rps"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40" toml:"burst" yaml:"burst"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" toml:"level" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" toml:"development" yaml:"development"`
}

// MetricsConfig toggles metric collection.
type MetricsConfig struct {
	Enabled bool `envconfig:"METRICS_ENABLED" default:"true" toml:"enabled" yaml:"enabled"`
}

// Duration is a time.Duration that decodes from strings such as "250ms" in
// both environment variables and TOML files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadFile loads the environment configuration and overlays the file at path
// on top of it. Files ending in .yaml or .yml are decoded as YAML, anything
// else as TOML. Keys present in the file win over the environment.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		VM: VMConfig{
			Timeout:          Duration(5 * time.Second),
			MaxCallStackSize: 1024,
		},
		Pool: PoolConfig{
			Size:           4,
			AcquireTimeout: Duration(5 * time.Second),
		},
		Arena: ArenaConfig{
			SyncMode:       "both",
			MaxArrayLength: 1 << 20,
		},
		Runner: RunnerConfig{
			Concurrency:   4,
			EnableConsole: true,
		},
		Loader: LoaderConfig{
			RetryMax:     3,
			RetryWaitMin: Duration(500 * time.Millisecond),
			RetryWaitMax: Duration(10 * time.Second),
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            "8040",
			ShutdownTimeout: Duration(10 * time.Second),
			MaxScriptBytes:  1 << 20,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
