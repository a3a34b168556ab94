package config

import (
	"fmt"
	"strings"
	"time"
)

// EnvVars holds the raw environment values. Defaults apply when unset.
type EnvVars struct {
	Port             string        `env:"PORT"                 envDefault:"3000"`
	AppName          string        `env:"APP_NAME"             envDefault:"Budget Dashboard"`
	DataFolder       string        `env:"FOLDER"               envDefault:"./data"`
	BaseURL          string        `env:"BASE_URL"             envDefault:"http://localhost:3000"`
	Env              string        `env:"ENV"                  envDefault:"DEV"`
	LogLevel         string        `env:"LOG_LEVEL"            envDefault:"info"`
	APIBaseURL       string        `env:"API_BASE_URL"         envDefault:"http://localhost:8081"`
	RefreshTransport string        `env:"REFRESH_TRANSPORT"    envDefault:"body"`
	RequestTimeout   time.Duration `env:"API_REQUEST_TIMEOUT"  envDefault:"15s"`
	OAuthClientID    string        `env:"OAUTH_CLIENT_ID"      envDefault:"budget-dashboard"`
	OAuthProviders   []string      `env:"OAUTH_PROVIDERS"      envDefault:"google,github" envSeparator:","`
	PopupPoll        time.Duration `env:"POPUP_POLL_INTERVAL"  envDefault:"500ms"`
	BrowserCommand   string        `env:"BROWSER"`
	AllowedOrigins   []string      `env:"ALLOWED_ORIGINS"      envSeparator:","`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.Port
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetDataFolder() string {
	return e.DataFolder
}

// GetBaseURL returns the URL the browser uses to reach this host (e.g., "http://localhost:3000")
// Popup callback and websocket URLs are derived from it
func (e EnvVars) GetBaseURL() string {
	return strings.TrimRight(e.BaseURL, "/")
}

func (e EnvVars) GetEnv() string {
	if e.Env == "" {
		return "DEV"
	}
	return e.Env
}

func (e EnvVars) GetLogLevel() string {
	return e.LogLevel
}
