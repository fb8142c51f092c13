package config

import (
	"os"
	"time"
)

const (
	appNameVar         = "APP_NAME"
	credentialsFileVar = "GOOGLE_APPLICATION_CREDENTIALS"
	logLevelVar        = "LOG_LEVEL"
	httpTimeoutVar     = "HTTP_TIMEOUT"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Firestore")
}

// GetCredentialsFile returns the path of the service account JSON key file
func (EnvVars) GetCredentialsFile() string {
	return GetEnv(credentialsFileVar, "firebase-service-account.json")
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetHTTPTimeout bounds every network round-trip made by the library
func (EnvVars) GetHTTPTimeout() time.Duration {
	return GetDuration(httpTimeoutVar, 30*time.Second)
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDuration parses envVar with time.ParseDuration, falling back to
// defaultValue when unset or unparsable.
func GetDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
