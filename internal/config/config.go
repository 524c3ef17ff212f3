package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
)

// EnvPrefix prefixes environment overrides, e.g. COMPLIANCE_STORE_BACKEND
const EnvPrefix = "COMPLIANCE"

// Store backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	Environment     string        `mapstructure:"environment"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// StoreConfig selects the document store and bounds calls into it
type StoreConfig struct {
	Backend            string        `mapstructure:"backend"`
	CallTimeout        time.Duration `mapstructure:"call_timeout"`
	MaxConflictRetries int           `mapstructure:"max_conflict_retries"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	Database          string        `mapstructure:"database"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	PoolSize          int           `mapstructure:"pool_size"`
	ConnMaxLifetime   time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsEnabled bool          `mapstructure:"migrations_enabled"`
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	Database  int    `mapstructure:"database"`
	PoolSize  int    `mapstructure:"pool_size"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// KafkaConfig contains Kafka event publishing settings
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// AuditConfig contains audit trail settings. The audit log shares the
// database connection settings.
type AuditConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// ScanConfig contains the periodic high-risk scan settings
type ScanConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Schedule    string        `mapstructure:"schedule"`
	MinLevel    string        `mapstructure:"min_risk_level"`
	Limit       int           `mapstructure:"limit"`
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// CatalogConfig contains framework catalog settings
type CatalogConfig struct {
	FrameworksFile string `mapstructure:"frameworks_file"`
	Persist        bool   `mapstructure:"persist"`
}

// LoadConfig loads configuration from file and environment variables. An
// empty path loads defaults and environment only.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdown_timeout", "15s")

	// Logging defaults
	v.SetDefault("logging.level", "info")

	// Store defaults
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.call_timeout", "5s")
	v.SetDefault("store.max_conflict_retries", 3)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "compliance")
	v.SetDefault("database.username", "compliance")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 25)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_enabled", true)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.key_prefix", "compliance")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "compliance-events")
	v.SetDefault("kafka.write_timeout", "10s")
	v.SetDefault("kafka.batch_timeout", "10ms")

	// Audit defaults
	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.auto_migrate", true)

	// Scan defaults
	v.SetDefault("scan.enabled", false)
	v.SetDefault("scan.schedule", "0 */6 * * *")
	v.SetDefault("scan.min_risk_level", string(compliance.RiskHigh))
	v.SetDefault("scan.limit", 100)
	v.SetDefault("scan.concurrency", 4)
	v.SetDefault("scan.timeout", "5m")

	// Catalog defaults
	v.SetDefault("catalog.frameworks_file", "")
	v.SetDefault("catalog.persist", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	if _, err := zap.ParseAtomicLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Logging.Level, err)
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case BackendRedis:
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			return fmt.Errorf("invalid Redis port: %d", c.Redis.Port)
		}
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}

	if c.Store.CallTimeout <= 0 {
		return fmt.Errorf("store call timeout must be positive")
	}

	if c.Store.MaxConflictRetries < 0 {
		return fmt.Errorf("max conflict retries must not be negative")
	}

	if c.Audit.Enabled && c.Database.Host == "" {
		return fmt.Errorf("audit log requires database host")
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("Kafka brokers are required")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("Kafka topic is required")
		}
	}

	if c.Scan.Enabled {
		if _, err := cron.ParseStandard(c.Scan.Schedule); err != nil {
			return fmt.Errorf("invalid scan schedule %q: %w", c.Scan.Schedule, err)
		}
	}

	if !compliance.RiskLevel(c.Scan.MinLevel).Valid() {
		return fmt.Errorf("invalid scan risk level: %q", c.Scan.MinLevel)
	}

	if c.Scan.Limit < 0 || c.Scan.Concurrency < 0 {
		return fmt.Errorf("scan limit and concurrency must not be negative")
	}

	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.Username,
		c.Database.Password,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis connection address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// InitLogger initializes the logger based on configuration
func (c *Config) InitLogger() (*zap.Logger, error) {
	var config zap.Config

	if c.Server.Environment == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	config.Level = level

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger, nil
}
