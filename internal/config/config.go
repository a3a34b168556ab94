package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config interface {
	EnvConfig
	CorsConfig
	GatewayConfig
	PopupConfig
	SessionConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetBaseURL() string
	GetEnv() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetHostOrigin() string
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Gateway
	Popup
	Session
}

// New reads the environment and returns the dashboard configuration.
func New() (Config, error) {
	var vars EnvVars
	if err := env.Parse(&vars); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return mainConfig{
		EnvVars: vars,
		Cors:    Cors{vars: &vars},
		Gateway: Gateway{vars: &vars},
		Popup:   Popup{vars: &vars},
		Session: Session{vars: &vars},
	}, nil
}
