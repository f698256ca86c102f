// Package config loads process configuration from environment
// variables (optionally populated from a .env file), following the
// same getenv-with-default idiom used throughout this codebase rather
// than a dedicated flags or config-file library.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the fully resolved process configuration.
type Config struct {
	DevicesPath string

	HTTPPort   int
	SocketPort int

	TelemetryDBPath string
	LogLevel        string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RenderWorkers     int
	RenderPoolWait    time.Duration
	RenderQuietWindow time.Duration
	RenderHardCeiling time.Duration
	SocketConnCap     int
	AuthFailWindow    time.Duration
	AuthFailMax       int
}

// Load reads a .env file if present (ignoring its absence) and then
// resolves every setting from the environment, falling back to
// defaults for anything unset.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		DevicesPath: getEnv("WEBINK_CONFIG_PATH", "./devices.yaml"),

		HTTPPort:   getEnvAsInt("WEBINK_HTTP_PORT", 8000),
		SocketPort: getEnvAsInt("WEBINK_SOCKET_PORT", 8091),

		TelemetryDBPath: getEnv("WEBINK_TELEMETRY_DB", "./webink_telemetry.db"),
		LogLevel:        getEnv("WEBINK_LOG_LEVEL", "info"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		RenderWorkers:     getEnvAsInt("WEBINK_RENDER_WORKERS", 2),
		RenderPoolWait:    getEnvAsDuration("WEBINK_RENDER_POOL_WAIT", 30*time.Second),
		RenderQuietWindow: getEnvAsDuration("WEBINK_RENDER_QUIET_WINDOW", 500*time.Millisecond),
		RenderHardCeiling: getEnvAsDuration("WEBINK_RENDER_HARD_CEILING", 20*time.Second),

		SocketConnCap: getEnvAsInt("WEBINK_SOCKET_CONN_CAP", 64),

		AuthFailWindow: getEnvAsDuration("WEBINK_AUTHFAIL_WINDOW", time.Minute),
		AuthFailMax:    getEnvAsInt("WEBINK_AUTHFAIL_MAX", 5),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
