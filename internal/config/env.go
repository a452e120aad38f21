// Package config loads go-arlens settings from a YAML file and the
// environment.
package config

import (
	"os"
	"strings"
)

// Default server settings.
const (
	DefaultPort     = "8080"
	DefaultLogLevel = "info"
)

// Port returns the listen port from ARLENS_PORT.
// Falls back to the provided default if not set.
func Port(defaultPort string) string {
	if p := os.Getenv("ARLENS_PORT"); p != "" {
		return p
	}
	return defaultPort
}

// LogLevel returns the log level from ARLENS_LOG_LEVEL or LOG_LEVEL.
func LogLevel(defaultLevel string) string {
	for _, key := range []string{"ARLENS_LOG_LEVEL", "LOG_LEVEL"} {
		if l := os.Getenv(key); l != "" {
			return strings.ToLower(l)
		}
	}
	return defaultLevel
}

// GoogleAPIKey returns the API key shared by Cloud Vision and Cloud
// Translation. Empty means Application Default Credentials.
func GoogleAPIKey() string {
	return os.Getenv("GOOGLE_API_KEY")
}

// Path returns the config file path from ARLENS_CONFIG.
func Path(defaultPath string) string {
	if p := os.Getenv("ARLENS_CONFIG"); p != "" {
		return p
	}
	return defaultPath
}
