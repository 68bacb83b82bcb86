// Package config provides configuration for the notebook agent service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort    int
	FrontendURL string

	// Basic auth for the editing endpoints. Empty user disables auth.
	BasicAuthUser string
	BasicAuthPass string

	// Database
	DatabaseURL string

	// Workspace data directory scanned for tabular files. Also the working
	// directory snippets run under so relative file loads resolve.
	DataDir string

	// Oracle settings
	OracleURL     string
	OracleAPIKey  string
	OracleModel   string
	OracleTimeout time.Duration

	// Session loop settings
	MaxSteps    int
	OutputLimit int
	SessionTTL  time.Duration

	// Axis suitability validation for category-requiring chart kinds.
	AxisValidation bool

	// Sandbox worker
	WorkerPath string

	// Logging
	LogLevel string
	LogFile  string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:       getEnvInt("HTTP_PORT", 8080),
		FrontendURL:    getEnv("FRONTEND_URL", "http://localhost:4000"),
		BasicAuthUser:  getEnv("BASIC_AUTH_USER", ""),
		BasicAuthPass:  getEnv("BASIC_AUTH_PASS", ""),
		DatabaseURL:    getEnv("DATABASE_URL", "file:notebook-agent.db?cache=shared&mode=rwc"),
		DataDir:        getEnv("DATA_DIR", "./data"),
		OracleURL:      getEnv("ORACLE_URL", "http://localhost:4000"),
		OracleAPIKey:   getEnv("ORACLE_API_KEY", ""),
		OracleModel:    getEnv("ORACLE_MODEL", "gpt-4o"),
		OracleTimeout:  time.Duration(getEnvInt("ORACLE_TIMEOUT_MS", 120000)) * time.Millisecond,
		MaxSteps:       getEnvInt("MAX_STEPS", 12),
		OutputLimit:    getEnvInt("OUTPUT_LIMIT", 5000),
		SessionTTL:     time.Duration(getEnvInt("SESSION_TTL_MS", 3600000)) * time.Millisecond,
		AxisValidation: getEnvBool("AXIS_VALIDATION", false),
		WorkerPath:     getEnv("PYWORKER_PATH", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFile:        getEnv("LOG_FILE", "notebook-agent.log"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}
