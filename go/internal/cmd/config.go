package main

import (
	"os"
	"strconv"

	"github.com/lanewatch/lanewatch/go/internal/relay"
)

// AppConfig is the process-level configuration, assembled from environment
// variables (optionally loaded from .env).
type AppConfig struct {
	Port         string
	LogLevel     string
	NetworksFile string

	RelayEnabled bool
	RelayURL     string
}

func loadAppConfig() AppConfig {
	return AppConfig{
		Port:         getEnv("PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		NetworksFile: getEnv("NETWORKS_FILE", ""),
		RelayEnabled: getEnvAsBool("RELAY_ENABLED", false),
		RelayURL:     getEnv("NATS_URL", relay.DefaultJetStreamConfig().URL),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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
