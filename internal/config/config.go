package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the streaming subscription client.
type Config struct {
	Service   ServiceConfig   `json:"service"`
	Streaming StreamingConfig `json:"streaming"`
	Admin     AdminConfig     `json:"admin"`
	Logging   LoggingConfig   `json:"logging"`
}

// ServiceConfig holds the OpenAPI streaming backend's REST base path.
type ServiceConfig struct {
	BaseURL        string        `json:"base_url"`
	Timeout        time.Duration `json:"timeout"`
	MaxRetries     int           `json:"max_retries"`
	RetryDelay     time.Duration `json:"retry_delay"`
	RateLimitDelay time.Duration `json:"rate_limit_delay"`
}

// StreamingConfig holds settings for the multiplexed WebSocket connection
// and the orphan finder that watches it.
type StreamingConfig struct {
	WSBaseURL           string        `json:"ws_base_url"`
	DefaultRefreshRate  time.Duration `json:"default_refresh_rate"`
	InactivityTimeout   time.Duration `json:"inactivity_timeout"`
	OrphanCheckInterval time.Duration `json:"orphan_check_interval"`
	PingInterval        time.Duration `json:"ping_interval"`
	DefaultFormat       string        `json:"default_format"`
}

// AdminConfig holds the diagnostic/operator HTTP surface's configuration.
type AdminConfig struct {
	Enabled      bool          `json:"enabled"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json or console
	Output string `json:"output"` // stdout or stderr
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	config := &Config{
		Service: ServiceConfig{
			BaseURL:        getEnv("STREAMSUB_BASE_URL", "https://streaming.example.com"),
			Timeout:        getEnvAsDuration("STREAMSUB_TIMEOUT", "30s"),
			MaxRetries:     getEnvAsInt("STREAMSUB_MAX_RETRIES", 3),
			RetryDelay:     getEnvAsDuration("STREAMSUB_RETRY_DELAY", "1s"),
			RateLimitDelay: getEnvAsDuration("STREAMSUB_RATE_LIMIT_DELAY", "100ms"),
		},
		Streaming: StreamingConfig{
			WSBaseURL:           getEnv("STREAMSUB_WS_BASE_URL", "wss://streaming.example.com/ws"),
			DefaultRefreshRate:  getEnvAsDuration("STREAMSUB_DEFAULT_REFRESH_RATE", "1s"),
			InactivityTimeout:   getEnvAsDuration("STREAMSUB_INACTIVITY_TIMEOUT", "90s"),
			OrphanCheckInterval: getEnvAsDuration("STREAMSUB_ORPHAN_CHECK_INTERVAL", "15s"),
			PingInterval:        getEnvAsDuration("STREAMSUB_PING_INTERVAL", "20s"),
			DefaultFormat:       getEnv("STREAMSUB_DEFAULT_FORMAT", "application/json"),
		},
		Admin: AdminConfig{
			Enabled:      getEnvAsBool("STREAMSUB_ADMIN_ENABLED", true),
			Port:         getEnvAsInt("STREAMSUB_ADMIN_PORT", 9090),
			ReadTimeout:  getEnvAsDuration("STREAMSUB_ADMIN_READ_TIMEOUT", "5s"),
			WriteTimeout: getEnvAsDuration("STREAMSUB_ADMIN_WRITE_TIMEOUT", "10s"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("STREAMSUB_LOG_LEVEL", "info"),
			Format: getEnv("STREAMSUB_LOG_FORMAT", "json"),
			Output: getEnv("STREAMSUB_LOG_OUTPUT", "stdout"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Service.BaseURL == "" {
		return fmt.Errorf("STREAMSUB_BASE_URL is required")
	}
	if c.Streaming.WSBaseURL == "" {
		return fmt.Errorf("STREAMSUB_WS_BASE_URL is required")
	}
	if c.Streaming.InactivityTimeout <= 0 {
		return fmt.Errorf("STREAMSUB_INACTIVITY_TIMEOUT must be positive")
	}
	if c.Admin.Enabled && (c.Admin.Port <= 0 || c.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", c.Admin.Port)
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
