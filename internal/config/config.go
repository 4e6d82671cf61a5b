package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Cache        CacheConfig        `yaml:"cache"`
	Network      NetworkConfig      `yaml:"network"`
	Policy       PolicyConfig       `yaml:"policy"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// DatabaseConfig configures the optional Postgres usage log. The engine runs
// fine without it.
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// RedisConfig configures the optional Redis tier used by the response cache
// and the provider rate limiter. An empty address disables both.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPath string `yaml:"metrics_path"`
}

// OrchestratorConfig tunes the request orchestration façade.
type OrchestratorConfig struct {
	DefaultProvider     string               `yaml:"default_provider"`
	MaxConcurrent       int                  `yaml:"max_concurrent_requests"`
	RequestTimeout      time.Duration        `yaml:"request_timeout"`
	RetryAttempts       int                  `yaml:"retry_attempts"`
	HealthCheckInterval time.Duration        `yaml:"health_check_interval"`
	HistoryLimit        int                  `yaml:"history_limit"`
	CircuitBreaker      CircuitBreakerConfig `yaml:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// NetworkConfig tunes the connectivity probe and the retry backoff.
type NetworkConfig struct {
	ProbeAddress  string        `yaml:"probe_address"`
	CheckInterval time.Duration `yaml:"check_interval"`
	MinTimeout    time.Duration `yaml:"min_timeout"`
	MaxTimeout    time.Duration `yaml:"max_timeout"`
	BaseDelay     time.Duration `yaml:"base_retry_delay"`
	MaxDelay      time.Duration `yaml:"max_retry_delay"`
}

type PolicyConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BundlePath        string        `yaml:"bundle_path"`
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "127.0.0.1",
			Port:             7820,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     180 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Enabled:         false,
			Host:            "localhost",
			Port:            5432,
			Name:            "muse",
			User:            "muse",
			MaxOpenConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			DB:       0,
			PoolSize: 20,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPath: "/metrics",
		},
		Orchestrator: OrchestratorConfig{
			DefaultProvider:     "openai",
			MaxConcurrent:       10,
			RequestTimeout:      30 * time.Second,
			RetryAttempts:       3,
			HealthCheckInterval: 60 * time.Second,
			HistoryLimit:        100,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold:      5,
				RecoveryProbeInterval: 15 * time.Second,
			},
		},
		Cache: CacheConfig{
			TTL:        time.Hour,
			MaxEntries: 500,
		},
		Network: NetworkConfig{
			ProbeAddress:  "1.1.1.1:443",
			CheckInterval: 30 * time.Second,
			MinTimeout:    10 * time.Second,
			MaxTimeout:    120 * time.Second,
			BaseDelay:     time.Second,
			MaxDelay:      60 * time.Second,
		},
		Policy: PolicyConfig{
			Enabled:           false,
			BundlePath:        "policies",
			EvaluationTimeout: 100 * time.Millisecond,
		},
	}
}
