package web

import (
	"github.com/record-overlap/internal/config"
)

// Config represents the results server configuration
type Config struct {
	Server ServerConfig
	Auth   AuthConfig
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port int
	Host string
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	Enabled bool
	APIKey  string
}

// DefaultConfig returns a configuration read from OVERLAP_SERVE_* variables
func DefaultConfig() *Config {
	apiKey := config.GetEnv("OVERLAP_SERVE_API_KEY", "")
	return &Config{
		Server: ServerConfig{
			Port: config.GetEnvInt("OVERLAP_SERVE_PORT", 8080),
			Host: config.GetEnv("OVERLAP_SERVE_HOST", "127.0.0.1"),
		},
		Auth: AuthConfig{
			Enabled: apiKey != "",
			APIKey:  apiKey,
		},
	}
}
