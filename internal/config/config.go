package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// WebSocket timings
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	// Queue and assignment timings
	SweepInterval       time.Duration
	EscalationThreshold time.Duration
	HeartbeatTimeout    time.Duration

	// Agent defaults
	DefaultMaxConcurrentCalls int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	// Parse WebSocket timeouts
	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	// Calculate WebSocket constants
	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 1024

	// Queue timings
	sweepInterval, err := strconv.Atoi(getEnv("SWEEP_INTERVAL", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}
	config.SweepInterval = time.Duration(sweepInterval) * time.Second

	escalationThreshold, err := strconv.Atoi(getEnv("ESCALATION_THRESHOLD", "1800"))
	if err != nil {
		return nil, fmt.Errorf("invalid ESCALATION_THRESHOLD: %w", err)
	}
	config.EscalationThreshold = time.Duration(escalationThreshold) * time.Second

	heartbeatTimeout, err := strconv.Atoi(getEnv("HEARTBEAT_TIMEOUT", "90"))
	if err != nil {
		return nil, fmt.Errorf("invalid HEARTBEAT_TIMEOUT: %w", err)
	}
	config.HeartbeatTimeout = time.Duration(heartbeatTimeout) * time.Second

	maxCalls, err := strconv.Atoi(getEnv("DEFAULT_MAX_CONCURRENT_CALLS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_MAX_CONCURRENT_CALLS: %w", err)
	}
	config.DefaultMaxConcurrentCalls = maxCalls

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
