// Package config implements the runtime's layered configuration:
// defaults, then an optional YAML file, then environment variables, then
// functional options (highest priority) — generalizing the teacher's
// (itsneelabh/gomind) core/config.go pattern. Every tunable that spec.md
// gives a validated newtype (§3) is converted into that newtype during
// Validate, so downstream code never re-parses or re-validates a raw value.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/corebound/agentrt/validation"
)

// Config holds every tunable of the runtime.
type Config struct {
	ServiceName string `yaml:"service_name" env:"AGENTRT_SERVICE_NAME" default:"agentrt"`
	Address     string `yaml:"address" env:"AGENTRT_ADDRESS" default:"0.0.0.0"`
	Port        int    `yaml:"port" env:"AGENTRT_PORT" default:"8080"`

	HTTP       HTTPConfig       `yaml:"http"`
	Backpressure BackpressureConfig `yaml:"backpressure"`
	Memory     MemoryConfig     `yaml:"memory"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Production bool             `yaml:"production" env:"AGENTRT_PRODUCTION" default:"false"`
}

// HTTPConfig bounds the HTTP edge's request handling.
type HTTPConfig struct {
	RequestTimeoutSeconds int   `yaml:"request_timeout_seconds" env:"AGENTRT_HTTP_REQUEST_TIMEOUT_SECONDS" default:"30"`
	MaxBodyBytes          int64 `yaml:"max_body_bytes" env:"AGENTRT_HTTP_MAX_BODY_BYTES" default:"1048576"`
	MaxBatchSize          int   `yaml:"max_batch_size" env:"AGENTRT_HTTP_MAX_BATCH_SIZE" default:"100"`
}

// BackpressureConfig configures the backpressure manager of spec.md §4.5.
type BackpressureConfig struct {
	Mode                   string        `yaml:"mode" env:"AGENTRT_BACKPRESSURE_MODE" default:"static"` // "static" | "adaptive"
	MaxQueueSize           int           `yaml:"max_queue_size" env:"AGENTRT_MAX_QUEUE_SIZE" default:"100"`
	MaxConcurrentPerAgent  int           `yaml:"max_concurrent_per_agent" env:"AGENTRT_MAX_CONCURRENT_PER_AGENT" default:"4"`
	GlobalMaxConcurrent    int           `yaml:"global_max_concurrent" env:"AGENTRT_GLOBAL_MAX_CONCURRENT" default:"64"`
	QueueTimeoutSeconds    int           `yaml:"queue_timeout_seconds" env:"AGENTRT_QUEUE_TIMEOUT_SECONDS" default:"30"`
	ProcessingTimeoutSeconds int         `yaml:"processing_timeout_seconds" env:"AGENTRT_PROCESSING_TIMEOUT_SECONDS" default:"60"`
	LoadThreshold          float64       `yaml:"load_threshold" env:"AGENTRT_LOAD_THRESHOLD" default:"0.8"`
	TargetProcessingTimeMS float64       `yaml:"target_processing_time_ms" env:"AGENTRT_TARGET_PROCESSING_TIME_MS" default:"250"`
	AdaptiveTickInterval   time.Duration `yaml:"adaptive_tick_interval" env:"AGENTRT_ADAPTIVE_TICK_INTERVAL" default:"1s"`
}

// MemoryConfig selects and configures the memory backend.
type MemoryConfig struct {
	Provider       string `yaml:"provider" env:"AGENTRT_MEMORY_PROVIDER" default:"inprocess"` // inprocess | sqlite | redis
	SQLitePath     string `yaml:"sqlite_path" env:"AGENTRT_MEMORY_SQLITE_PATH" default:"./data/agentrt.db"`
	SQLitePoolSize int    `yaml:"sqlite_pool_size" env:"AGENTRT_MEMORY_SQLITE_POOL_SIZE" default:"8"`
	RedisURL       string `yaml:"redis_url" env:"AGENTRT_MEMORY_REDIS_URL,REDIS_URL" default:""`
}

// AuthConfig configures the authentication layer of spec.md §4.6.
type AuthConfig struct {
	SigningSecret string `yaml:"signing_secret" env:"AGENTRT_AUTH_SIGNING_SECRET" default:""`
	APIKeyPrefix  string `yaml:"api_key_prefix" env:"AGENTRT_AUTH_API_KEY_PREFIX" default:"sk-"`
	RateLimitRPS  float64 `yaml:"rate_limit_rps" env:"AGENTRT_AUTH_RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst int    `yaml:"rate_limit_burst" env:"AGENTRT_AUTH_RATE_LIMIT_BURST" default:"40"`
}

// LoggingConfig configures runtimelog.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"AGENTRT_LOG_LEVEL" default:"info"`
	Format string `yaml:"format" env:"AGENTRT_LOG_FORMAT" default:"json"`
}

// TelemetryConfig configures the optional otel wiring.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"AGENTRT_TELEMETRY_ENABLED" default:"false"`
	ServiceName string `yaml:"service_name" env:"AGENTRT_TELEMETRY_SERVICE_NAME" default:""`
}

// Option is a functional option, the highest-priority configuration layer.
type Option func(*Config) error

// Default returns the configuration with built-in defaults (no env, no
// file, no options applied yet).
func Default() *Config {
	return &Config{
		ServiceName: "agentrt",
		Address:     "0.0.0.0",
		Port:        8080,
		HTTP: HTTPConfig{
			RequestTimeoutSeconds: 30,
			MaxBodyBytes:          1 << 20,
			MaxBatchSize:          100,
		},
		Backpressure: BackpressureConfig{
			Mode:                     "static",
			MaxQueueSize:             100,
			MaxConcurrentPerAgent:    4,
			GlobalMaxConcurrent:      64,
			QueueTimeoutSeconds:      30,
			ProcessingTimeoutSeconds: 60,
			LoadThreshold:            0.8,
			TargetProcessingTimeMS:   250,
			AdaptiveTickInterval:     time.Second,
		},
		Memory: MemoryConfig{
			Provider:       "inprocess",
			SQLitePath:     "./data/agentrt.db",
			SQLitePoolSize: 8,
		},
		Auth: AuthConfig{
			APIKeyPrefix:   "sk-",
			RateLimitRPS:   20,
			RateLimitBurst: 40,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFile merges a YAML configuration file into cfg. Missing files are not
// an error; callers that require the file to exist should stat it first.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// LoadEnv overlays the environment variables named in the struct's `env`
// tags onto cfg; each name is read explicitly below, the tags themselves are
// not parsed. Unset variables leave the existing value (default or
// file-loaded) untouched.
func LoadEnv(cfg *Config) error {
	setString(&cfg.ServiceName, "AGENTRT_SERVICE_NAME")
	setString(&cfg.Address, "AGENTRT_ADDRESS")
	if err := setInt(&cfg.Port, "AGENTRT_PORT"); err != nil {
		return err
	}
	setBool(&cfg.Production, "AGENTRT_PRODUCTION")

	if err := setInt(&cfg.HTTP.RequestTimeoutSeconds, "AGENTRT_HTTP_REQUEST_TIMEOUT_SECONDS"); err != nil {
		return err
	}
	if err := setInt64(&cfg.HTTP.MaxBodyBytes, "AGENTRT_HTTP_MAX_BODY_BYTES"); err != nil {
		return err
	}
	if err := setInt(&cfg.HTTP.MaxBatchSize, "AGENTRT_HTTP_MAX_BATCH_SIZE"); err != nil {
		return err
	}

	setString(&cfg.Backpressure.Mode, "AGENTRT_BACKPRESSURE_MODE")
	if err := setInt(&cfg.Backpressure.MaxQueueSize, "AGENTRT_MAX_QUEUE_SIZE"); err != nil {
		return err
	}
	if err := setInt(&cfg.Backpressure.MaxConcurrentPerAgent, "AGENTRT_MAX_CONCURRENT_PER_AGENT"); err != nil {
		return err
	}
	if err := setInt(&cfg.Backpressure.GlobalMaxConcurrent, "AGENTRT_GLOBAL_MAX_CONCURRENT"); err != nil {
		return err
	}
	if err := setInt(&cfg.Backpressure.QueueTimeoutSeconds, "AGENTRT_QUEUE_TIMEOUT_SECONDS"); err != nil {
		return err
	}
	if err := setInt(&cfg.Backpressure.ProcessingTimeoutSeconds, "AGENTRT_PROCESSING_TIMEOUT_SECONDS"); err != nil {
		return err
	}
	if err := setFloat(&cfg.Backpressure.LoadThreshold, "AGENTRT_LOAD_THRESHOLD"); err != nil {
		return err
	}
	if err := setFloat(&cfg.Backpressure.TargetProcessingTimeMS, "AGENTRT_TARGET_PROCESSING_TIME_MS"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Backpressure.AdaptiveTickInterval, "AGENTRT_ADAPTIVE_TICK_INTERVAL"); err != nil {
		return err
	}

	setString(&cfg.Memory.Provider, "AGENTRT_MEMORY_PROVIDER")
	setString(&cfg.Memory.SQLitePath, "AGENTRT_MEMORY_SQLITE_PATH")
	if err := setInt(&cfg.Memory.SQLitePoolSize, "AGENTRT_MEMORY_SQLITE_POOL_SIZE"); err != nil {
		return err
	}
	if v := firstEnv("AGENTRT_MEMORY_REDIS_URL", "REDIS_URL"); v != "" {
		cfg.Memory.RedisURL = v
	}

	setString(&cfg.Auth.SigningSecret, "AGENTRT_AUTH_SIGNING_SECRET")
	setString(&cfg.Auth.APIKeyPrefix, "AGENTRT_AUTH_API_KEY_PREFIX")
	if err := setFloat(&cfg.Auth.RateLimitRPS, "AGENTRT_AUTH_RATE_LIMIT_RPS"); err != nil {
		return err
	}
	if err := setInt(&cfg.Auth.RateLimitBurst, "AGENTRT_AUTH_RATE_LIMIT_BURST"); err != nil {
		return err
	}

	setString(&cfg.Logging.Level, "AGENTRT_LOG_LEVEL")
	setString(&cfg.Logging.Format, "AGENTRT_LOG_FORMAT")

	setBool(&cfg.Telemetry.Enabled, "AGENTRT_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.ServiceName, "AGENTRT_TELEMETRY_SERVICE_NAME")

	return nil
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func setString(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = parseBool(v)
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func setInt(dst *int, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

func setInt64(dst *int64, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, name string) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

// Validated is the subset of Config that has been converted into the
// validated newtypes of spec.md §3. Downstream code depends only on this,
// never on raw Config fields, so it can never re-validate or silently
// coerce an out-of-range tunable.
type Validated struct {
	RequestTimeout validation.RequestTimeout
	MaxBodySize    validation.MaxBodySize
	QueueSize      validation.QueueSize
	Concurrency    validation.ConcurrencyLimit
	GlobalConcurrency validation.ConcurrencyLimit
	LoadThreshold  validation.LoadThreshold
}

// Validate checks every field for internal consistency and returns the
// validated-newtype projection. A non-nil error means the raw Config must
// not be used to construct the runtime; construction-time abort is the only
// recovery path (spec.md §6 "Exit codes").
func Validate(cfg *Config) (*Validated, error) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid configuration: port %d out of range", cfg.Port)
	}
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("invalid configuration: service_name is required")
	}
	if cfg.Backpressure.Mode != "static" && cfg.Backpressure.Mode != "adaptive" {
		return nil, fmt.Errorf("invalid configuration: backpressure mode must be \"static\" or \"adaptive\", got %q", cfg.Backpressure.Mode)
	}
	switch cfg.Memory.Provider {
	case "inprocess", "sqlite", "redis":
	default:
		return nil, fmt.Errorf("invalid configuration: unknown memory provider %q", cfg.Memory.Provider)
	}
	if cfg.Memory.Provider == "redis" && cfg.Memory.RedisURL == "" {
		return nil, fmt.Errorf("invalid configuration: redis_url is required for memory provider \"redis\"")
	}
	if cfg.Production && cfg.Auth.SigningSecret == "" {
		// Handled by the auth layer's secret lifecycle (spec.md §4.6): a
		// random secret is generated with a logged warning, not an abort.
	}

	reqTimeout, err := validation.NewRequestTimeout(time.Duration(cfg.HTTP.RequestTimeoutSeconds) * time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	maxBody, err := validation.NewMaxBodySize(cfg.HTTP.MaxBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	queueSize, err := validation.NewQueueSize(cfg.Backpressure.MaxQueueSize)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	concurrency, err := validation.NewConcurrencyLimit(cfg.Backpressure.MaxConcurrentPerAgent)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	globalConcurrency, err := validation.NewConcurrencyLimit(cfg.Backpressure.GlobalMaxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	loadThreshold, err := validation.NewLoadThreshold(cfg.Backpressure.LoadThreshold)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Validated{
		RequestTimeout:    reqTimeout,
		MaxBodySize:       maxBody,
		QueueSize:         queueSize,
		Concurrency:       concurrency,
		GlobalConcurrency: globalConcurrency,
		LoadThreshold:     loadThreshold,
	}, nil
}

// Load runs the full layered chain: defaults -> optional YAML file ->
// environment -> functional options, then validates the result.
func Load(yamlPath string, opts ...Option) (*Config, *Validated, error) {
	cfg := Default()

	if yamlPath != "" {
		if err := LoadFile(cfg, yamlPath); err != nil {
			return nil, nil, err
		}
	}

	if err := LoadEnv(cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	validated, err := Validate(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, validated, nil
}

// WithPort overrides the listen port.
func WithPort(port int) Option {
	return func(c *Config) error {
		c.Port = port
		return nil
	}
}

// WithBackpressureMode overrides the backpressure mode ("static" | "adaptive").
func WithBackpressureMode(mode string) Option {
	return func(c *Config) error {
		c.Backpressure.Mode = mode
		return nil
	}
}
