// Package config holds the read-only settings consumed by the pool,
// the connections and the schema registry. A Config is built once at
// startup and passed by value; overrides produce a new copy.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface of the runtime.
type Config struct {
	// Driver is the database/sql driver name, which also selects the dialect.
	Driver string `yaml:"driver"`
	// DSN is passed to sql.Open unchanged.
	DSN string `yaml:"dsn"`

	Pool PoolConfig `yaml:"pool"`

	// StatementCacheSize bounds the prepared statements kept per connection.
	StatementCacheSize int `yaml:"statement_cache_size"`
	// DefaultNamespace is used for entity types that do not declare one.
	DefaultNamespace string `yaml:"default_namespace"`
	// Isolation is the isolation level requested by Session.Transact.
	// Empty keeps the engine default.
	Isolation string `yaml:"isolation"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// SlowThreshold enables the slow statement log when positive.
	SlowThreshold time.Duration `yaml:"slow_threshold"`
	// SlowLogPath receives the slow statement log. Empty writes to stdout.
	SlowLogPath string `yaml:"slow_log_path"`
	// Trace logs every round trip with the request tracing values of its context.
	Trace bool `yaml:"trace"`

	CircuitBreaker BreakerConfig `yaml:"circuit_breaker"`

	SchemaCache SchemaCacheConfig `yaml:"schema_cache"`
}

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	Min              int           `yaml:"min"`
	Max              int           `yaml:"max"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	EvictionInterval time.Duration `yaml:"eviction_interval"`
	AcquireTimeout   time.Duration `yaml:"acquire_timeout"`
	TestOnBorrow     bool          `yaml:"test_on_borrow"`
	// Prefill creates Min connections when the pool opens.
	Prefill bool `yaml:"prefill"`
}

// BreakerConfig enables the circuit breaker when Threshold is positive.
type BreakerConfig struct {
	Threshold    int           `yaml:"threshold"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// SchemaCacheConfig configures the optional shared schema descriptor
// store. Leaving RedisAddr empty keeps descriptors in process memory only.
type SchemaCacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Driver: "iris",
		DSN:    "Cache",
		Pool: PoolConfig{
			Min:              3,
			Max:              3,
			IdleTimeout:      30 * time.Second,
			EvictionInterval: time.Minute,
		},
		StatementCacheSize: 10,
		DefaultNamespace:   "SQLUser",
		LogLevel:           "debug",
		LogFormat:          "text",
	}
}

// Option mutates a Config copy.
type Option func(*Config)

// With returns a copy of c with the options applied.
func (c Config) With(opts ...Option) Config {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithDSN sets driver and DSN.
func WithDSN(driver, dsn string) Option {
	return func(c *Config) {
		c.Driver = driver
		c.DSN = dsn
	}
}

// WithPoolSize sets the pool bounds.
func WithPoolSize(min, max int) Option {
	return func(c *Config) {
		c.Pool.Min = min
		c.Pool.Max = max
	}
}

// WithNamespace sets the default namespace.
func WithNamespace(ns string) Option {
	return func(c *Config) {
		c.DefaultNamespace = ns
	}
}

// WithLogLevel sets the log level name.
func WithLogLevel(level string) Option {
	return func(c *Config) {
		c.LogLevel = level
	}
}

// Load reads a YAML file on top of Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decoding yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the pool and connections rely on.
func (c Config) Validate() error {
	var errs []error
	if c.Driver == "" {
		errs = append(errs, errors.New("driver is required"))
	}
	if c.DSN == "" {
		errs = append(errs, errors.New("dsn is required"))
	}
	if c.Pool.Max <= 0 {
		errs = append(errs, fmt.Errorf("pool.max must be positive, got %d", c.Pool.Max))
	}
	if c.Pool.Min < 0 || c.Pool.Min > c.Pool.Max {
		errs = append(errs, fmt.Errorf("pool.min must be within [0, %d], got %d", c.Pool.Max, c.Pool.Min))
	}
	if c.StatementCacheSize < 0 {
		errs = append(errs, fmt.Errorf("statement_cache_size must not be negative, got %d", c.StatementCacheSize))
	}
	if c.CircuitBreaker.Threshold > 0 && c.CircuitBreaker.ResetTimeout <= 0 {
		errs = append(errs, errors.New("circuit_breaker.reset_timeout must be positive"))
	}
	if c.DefaultNamespace == "" {
		errs = append(errs, errors.New("default_namespace is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}
