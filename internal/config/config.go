package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"codeboard/internal/logger"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Provider  ProviderConfig
	Scheduler SchedulerConfig
	Cache     CacheConfig
	Log       LogConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	DB       int
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Env            string
	AllowedOrigins []string
}

// ProviderConfig controls the outbound profile-data client
type ProviderConfig struct {
	GraphQLURL         string
	Timeout            time.Duration
	RequestsPerSecond  float64
	Burst              int
	MaxRetries         int
	SupplementaryLimit int
}

// SchedulerConfig controls staleness-driven refresh cycles
type SchedulerConfig struct {
	Interval       time.Duration
	BatchSize      int
	AdminBatchSize int
	FetchTimeout   time.Duration
	RunOnStartup   bool
	WorkerCount    int
	QueueSize      int
}

// CacheConfig controls the Redis snapshot cache
type CacheConfig struct {
	SnapshotTTL time.Duration
}

// LogConfig controls zerolog output
type LogConfig struct {
	Level string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file from the parent directory first, then the working directory
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(); err != nil {
			logger.Info().Msg("No .env file found, using environment variables")
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "codeboard"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Username: getEnv("REDIS_USERNAME", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port:           getEnvAsInt("PORT", 4000),
			Env:            getEnv("APP_ENV", "development"),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		},
		Provider: ProviderConfig{
			GraphQLURL:         getEnv("PROVIDER_GRAPHQL_URL", "https://leetcode.com/graphql"),
			Timeout:            getEnvAsDuration("PROVIDER_TIMEOUT", 15*time.Second),
			RequestsPerSecond:  getEnvAsFloat("PROVIDER_RPS", 2),
			Burst:              getEnvAsInt("PROVIDER_BURST", 2),
			MaxRetries:         getEnvAsInt("PROVIDER_MAX_RETRIES", 2),
			SupplementaryLimit: getEnvAsInt("PROVIDER_SUPPLEMENTARY_LIMIT", 50),
		},
		Scheduler: SchedulerConfig{
			Interval:       getEnvAsDuration("REFRESH_INTERVAL", 5*time.Minute),
			BatchSize:      getEnvAsInt("REFRESH_BATCH_SIZE", 5),
			AdminBatchSize: getEnvAsInt("REFRESH_ADMIN_BATCH_SIZE", 132),
			FetchTimeout:   getEnvAsDuration("REFRESH_FETCH_TIMEOUT", 45*time.Second),
			RunOnStartup:   getEnvAsBool("REFRESH_ON_STARTUP", true),
			WorkerCount:    getEnvAsInt("PROJECTION_WORKERS", 2),
			QueueSize:      getEnvAsInt("PROJECTION_QUEUE_SIZE", 256),
		},
		Cache: CacheConfig{
			SnapshotTTL: getEnvAsDuration("SNAPSHOT_CACHE_TTL", 10*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the refresh pipeline cannot run with
func (c *Config) Validate() error {
	if c.Scheduler.BatchSize <= 0 {
		return fmt.Errorf("REFRESH_BATCH_SIZE must be positive, got %d", c.Scheduler.BatchSize)
	}
	if c.Scheduler.AdminBatchSize <= 0 {
		return fmt.Errorf("REFRESH_ADMIN_BATCH_SIZE must be positive, got %d", c.Scheduler.AdminBatchSize)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive, got %v", c.Scheduler.Interval)
	}
	if c.Scheduler.WorkerCount <= 0 || c.Scheduler.QueueSize <= 0 {
		return fmt.Errorf("projection worker count and queue size must be positive")
	}
	if c.Provider.RequestsPerSecond <= 0 {
		return fmt.Errorf("PROVIDER_RPS must be positive, got %v", c.Provider.RequestsPerSecond)
	}
	return nil
}

// GetDSN returns the PostgreSQL DSN
func (c *Config) GetDSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings such as "90s" or "5m"
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
