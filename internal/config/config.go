// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"runtime"
	"strconv"
	"time"
)

// Version store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	VersionStore VersionStoreConfig
	Redis        RedisConfig
	Pipeline     PipelineConfig
	Simulator    SimulatorConfig
	Security     SecurityConfig
	Logging      LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, reloads can be long)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for lookup requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string, required for the postgres driver.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// VersionStoreConfig selects the version history backend.
type VersionStoreConfig struct {
	// Driver is postgres or sqlite (default: postgres)
	Driver string `env:"VERSION_STORE_DRIVER" default:"postgres"`

	// Table is the history table name (default: security_master)
	Table string `env:"VERSION_STORE_TABLE" default:"security_master"`

	// SQLitePath is the database file for the sqlite driver (default: secmaster.db)
	SQLitePath string `env:"VERSION_STORE_SQLITE_PATH" default:"secmaster.db"`
}

// RedisConfig holds snapshot cache connection settings.
type RedisConfig struct {
	// Addr is host:port of the Redis server (default: localhost:6379)
	Addr string `env:"REDIS_ADDR" default:"localhost:6379"`

	// Password for AUTH, empty for none
	Password string `env:"REDIS_PASSWORD"`

	// DB is the logical database index (default: 0)
	DB int `env:"REDIS_DB" default:"0"`

	// PoolSize is the maximum number of socket connections (default: 10 per CPU)
	PoolSize int `env:"REDIS_POOL_SIZE" default:"0"`

	// DialTimeout bounds connection establishment (default: 5s)
	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" default:"5s"`
}

// PipelineConfig holds bulk reload settings.
type PipelineConfig struct {
	// InputDir is the directory of vendor files to reload from (default: inventory)
	InputDir string `env:"PIPELINE_INPUT_DIR" default:"inventory"`

	// ReportDir is where rule reports are written (default: reports)
	ReportDir string `env:"PIPELINE_REPORT_DIR" default:"reports"`

	// Workers is the number of files processed in parallel; 0 uses the CPU count
	Workers int `env:"PIPELINE_WORKERS" default:"0"`

	// BatchSize is the number of rows per version store append (default: 100)
	BatchSize int `env:"PIPELINE_BATCH_SIZE" default:"100"`

	// CacheFlushSize is the number of cache upserts per pipeline round trip (default: 100)
	CacheFlushSize int `env:"PIPELINE_CACHE_FLUSH_SIZE" default:"100"`

	// MaxWaitTime is how long a reload waits for a running one to finish (default: 5s)
	MaxWaitTime time.Duration `env:"PIPELINE_MAX_WAIT_TIME" default:"5s"`

	// VerifyChecksums makes the rule engine recompute identifier check digits (default: false)
	VerifyChecksums bool `env:"PIPELINE_VERIFY_CHECKSUMS" default:"false"`

	// WriteReports writes rule report files and pushes the rule trace (default: true).
	// Rows are evaluated either way.
	WriteReports bool `env:"PIPELINE_WRITE_REPORTS" default:"true"`
}

// SimulatorConfig holds synthetic feed settings.
type SimulatorConfig struct {
	// OutputDir is where simulated daily files go (default: store)
	OutputDir string `env:"SIMULATOR_OUTPUT_DIR" default:"store"`

	// RowsPerDay is the number of rows mutated per simulated day (default: 10)
	RowsPerDay int `env:"SIMULATOR_ROWS_PER_DAY" default:"10"`

	// FieldsPerRow is the number of attribute fields sampled per row (default: 3)
	FieldsPerRow int `env:"SIMULATOR_FIELDS_PER_ROW" default:"3"`

	// Seed fixes the random source; 0 picks a random seed
	Seed int64 `env:"SIMULATOR_SEED" default:"0"`
}

// SecurityConfig holds HTTP hardening settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey protects state-changing endpoints with X-API-Key (default: false)
	RequireAPIKey bool `env:"SECURITY_REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`

	// RateLimit is the number of requests per minute per client IP (default: 600)
	RateLimit int `env:"SECURITY_RATE_LIMIT" default:"600"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// EffectiveWorkers resolves a zero worker count to the CPU count.
func (c *PipelineConfig) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.NumCPU()
}
