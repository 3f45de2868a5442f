package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/scribedocs/scribe/pkg/observability"
	"github.com/scribedocs/scribe/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Analytics pipeline configuration
	Analytics AnalyticsConfig

	// Archive configuration
	Archive ArchiveConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AnalyticsConfig holds analytics pipeline settings
type AnalyticsConfig struct {
	// Environment gates tracking: anything other than "production" never
	// persists events, regardless of user preference.
	Environment string

	// RecordTimeout bounds how long a single append may take before it is
	// treated as a soft failure.
	RecordTimeout time.Duration

	// CatalogPath optionally points at a YAML file extending the builtin
	// event name to category mapping. Empty means builtin mapping only.
	CatalogPath string

	// IdentityCacheTTL bounds how long a role/tier lookup may be reused.
	IdentityCacheTTL time.Duration
}

// ArchiveConfig holds cold storage export settings
type ArchiveConfig struct {
	Enabled       bool
	RetentionDays int

	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// Tracing
	TracingEnabled     bool
	TracingEndpoint    string
	ServiceName        string
	ServiceVersion     string
	TracingInsecure    bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Analytics:     loadAnalyticsConfig(),
		Archive:       loadArchiveConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("SCRIBE_HOST", "0.0.0.0"),
		Port:            getEnv("SCRIBE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("SCRIBE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("SCRIBE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("SCRIBE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SCRIBE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("SCRIBE_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if pgURL := getEnv("SCRIBE_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if replicaURLs := getEnv("SCRIBE_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.PostgresReplicaURLs = replicaURLs
	}
	if maxConns := getEnvInt("SCRIBE_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("SCRIBE_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("SCRIBE_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	if redisURL := getEnv("SCRIBE_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("SCRIBE_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("SCRIBE_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("SCRIBE_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("SCRIBE_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	return cfg
}

// loadAnalyticsConfig loads analytics pipeline configuration from environment
func loadAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		Environment:      getEnv("SCRIBE_ENVIRONMENT", "development"),
		RecordTimeout:    getEnvDuration("SCRIBE_RECORD_TIMEOUT", 3*time.Second),
		CatalogPath:      getEnv("SCRIBE_EVENT_CATALOG_PATH", ""),
		IdentityCacheTTL: getEnvDuration("SCRIBE_IDENTITY_CACHE_TTL", 30*time.Second),
	}
}

// loadArchiveConfig loads cold storage configuration from environment
func loadArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Enabled:        getEnvBool("SCRIBE_ARCHIVE_ENABLED", false),
		RetentionDays:  getEnvInt("SCRIBE_ARCHIVE_RETENTION_DAYS", 365),
		S3Endpoint:     getEnv("SCRIBE_ARCHIVE_S3_ENDPOINT", ""),
		S3Region:       getEnv("SCRIBE_ARCHIVE_S3_REGION", "us-east-1"),
		S3Bucket:       getEnv("SCRIBE_ARCHIVE_S3_BUCKET", ""),
		S3AccessKey:    getEnv("SCRIBE_ARCHIVE_S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("SCRIBE_ARCHIVE_S3_SECRET_KEY", ""),
		S3UsePathStyle: getEnvBool("SCRIBE_ARCHIVE_S3_USE_PATH_STYLE", false),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:        parseLogLevel(getEnv("SCRIBE_LOG_LEVEL", "info")),
		MetricsEnabled:  getEnvBool("SCRIBE_METRICS_ENABLED", true),
		TracingEnabled:  getEnvBool("SCRIBE_TRACING_ENABLED", false),
		TracingEndpoint: getEnv("SCRIBE_TRACING_ENDPOINT", "localhost:4317"),
		ServiceName:     getEnv("SCRIBE_SERVICE_NAME", "scribe-analytics"),
		ServiceVersion:  getEnv("SCRIBE_SERVICE_VERSION", "1.0.0"),
		TracingInsecure: getEnvBool("SCRIBE_TRACING_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required for the opt-out preference store")
	}

	if c.Analytics.RecordTimeout <= 0 {
		return fmt.Errorf("record timeout must be positive")
	}

	if c.Archive.Enabled {
		if c.Archive.S3Bucket == "" {
			return fmt.Errorf("archive S3 bucket is required when archiving is enabled")
		}
		if c.Archive.RetentionDays <= 0 {
			return fmt.Errorf("archive retention days must be positive")
		}
	}

	if c.Observability.TracingEnabled {
		if c.Observability.TracingEndpoint == "" {
			return fmt.Errorf("tracing endpoint is required when tracing is enabled")
		}
		if c.Observability.ServiceName == "" {
			return fmt.Errorf("service name is required when tracing is enabled")
		}
	}

	return nil
}

// IsProduction reports whether the deployment environment is production-like.
// Tracking is fully disabled everywhere else.
func (c *AnalyticsConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
