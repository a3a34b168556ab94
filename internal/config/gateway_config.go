package config

import (
	"strings"
	"time"
)

// RefreshTransport selects how the refresh credential is sent to /auth/refresh.
type RefreshTransport string

const (
	RefreshInBody   RefreshTransport = "body"
	RefreshInCookie RefreshTransport = "cookie"
)

type GatewayConfig interface {
	GetAPIBaseURL() string
	GetRefreshPath() string
	GetLogoutPath() string
	GetRefreshTransport() RefreshTransport
	GetRequestTimeout() time.Duration
	GetLoginRoute() string
	GetDefaultLandingRoute() string
	GetPublicRoutes() []string
}

type Gateway struct {
	vars *EnvVars
}

var _ GatewayConfig = Gateway{}

func (g Gateway) GetAPIBaseURL() string {
	if g.vars == nil || g.vars.APIBaseURL == "" {
		return "http://localhost:8081"
	}
	return strings.TrimRight(g.vars.APIBaseURL, "/")
}

func (Gateway) GetRefreshPath() string {
	return "/auth/refresh"
}

func (Gateway) GetLogoutPath() string {
	return "/auth/logout"
}

func (g Gateway) GetRefreshTransport() RefreshTransport {
	if g.vars != nil && RefreshTransport(strings.ToLower(g.vars.RefreshTransport)) == RefreshInCookie {
		return RefreshInCookie
	}
	return RefreshInBody
}

func (g Gateway) GetRequestTimeout() time.Duration {
	if g.vars == nil || g.vars.RequestTimeout <= 0 {
		return 15 * time.Second
	}
	return g.vars.RequestTimeout
}

func (Gateway) GetLoginRoute() string {
	return "/login"
}

func (Gateway) GetDefaultLandingRoute() string {
	return "/dashboard"
}

// GetPublicRoutes lists the guest-only pages. A forced logout on one of these
// does not navigate, and an authenticated visit is redirected away.
func (Gateway) GetPublicRoutes() []string {
	return []string{"/login", "/register", "/oauth/"}
}
