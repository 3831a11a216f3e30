package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port         string
	RedisURL     string
	TokenSecret  string
	ChannelsFile string
	HistoryLimit int
	LogLevel     string
	LogFormat    string

	// ShutdownGrace bounds how long draining connections get on SIGTERM.
	ShutdownGrace time.Duration
}

func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		RedisURL:      getEnv("REDIS_URL", ""),
		TokenSecret:   getEnv("TOKEN_SECRET", ""),
		ChannelsFile:  getEnv("CHANNELS_FILE", ""),
		HistoryLimit:  getEnvInt("HISTORY_LIMIT", 50),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
		ShutdownGrace: getEnvDuration("SHUTDOWN_GRACE", 30*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
