package config

import (
	"os"
	"time"
)

// ServerConfig holds process level settings read straight from the environment.
type ServerConfig struct {
	AppEnv          string
	Port            string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		AppEnv:          getEnv("APP_ENV", "dev"),
		Port:            getEnv("PORT", "8080"),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 60*time.Second),
	}
}

func (c *ServerConfig) IsProd() bool {
	return c.AppEnv == "prod"
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
