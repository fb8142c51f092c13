package config

import "time"

type Config interface {
	EnvConfig
	EndpointConfig
	SessionConfig
}

type EnvConfig interface {
	GetAppName() string
	GetCredentialsFile() string
	GetLogLevel() string
	GetHTTPTimeout() time.Duration
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Endpoints
	Session
}

func New() Config {
	return mainConfig{}
}
