package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/budget-session/bootstrap"
	"github.com/jrsteele09/budget-session/broadcast"
	"github.com/jrsteele09/budget-session/browser"
	"github.com/jrsteele09/budget-session/gateway"
	"github.com/jrsteele09/budget-session/guard"
	"github.com/jrsteele09/budget-session/internal/config"
	"github.com/jrsteele09/budget-session/oauthpopup"
	"github.com/jrsteele09/budget-session/sessions"
	"github.com/rs/zerolog/log"
)

// Deps are the long-lived components the host is built around.
type Deps struct {
	Session   *sessions.Store
	Gateway   *gateway.Gateway
	Navigator *Navigator
	Hub       *broadcast.Hub
	// Launcher opens popup windows. Defaults to asking an open dashboard page,
	// then the system browser.
	Launcher browser.Launcher
}

type Server struct {
	env    string // Environment (e.g., "DEV", "PROD")
	mux    *http.ServeMux
	routes []string
	config config.Config

	session   *sessions.Store
	gateway   *gateway.Gateway
	auth      *gateway.AuthClient
	boot      *bootstrap.Bootstrapper
	guard     *guard.Guard
	hub       *broadcast.Hub
	navigator *Navigator
	windows   *browser.Registry
	handshake *oauthpopup.Handshake
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Session == nil || deps.Gateway == nil || deps.Navigator == nil || deps.Hub == nil {
		return nil, fmt.Errorf("[Server New] session, gateway, navigator and hub are required")
	}

	s := &Server{
		env:       cfg.GetEnv(),
		mux:       http.NewServeMux(),
		config:    cfg,
		session:   deps.Session,
		gateway:   deps.Gateway,
		auth:      gateway.NewAuthClient(deps.Gateway),
		hub:       deps.Hub,
		navigator: deps.Navigator,
	}
	s.boot = bootstrap.New(s.session, s.auth)
	s.guard = guard.New(s.session, s.boot,
		guard.WithLoginRoute(cfg.GetLoginRoute()),
		guard.WithLandingRoute(cfg.GetDefaultLandingRoute()),
		guard.WithPublicOnly(RouteLogin, RouteRegister, RouteOAuthStartPrefix),
		guard.WithOpen(RouteIndex, RouteLogout, RouteOAuthCallback, RouteOAuthPopupPrefix, RouteWebSocketPrefix, RouteStaticPrefix, RouteAPIPrefix),
		guard.WithPathRecorder(s.navigator),
		guard.WithLoadingRenderer(guard.DefaultLoadingPage(cfg.GetLoadingRefreshSeconds())),
	)

	launcher := deps.Launcher
	if launcher == nil {
		launcher = browser.FirstOf(
			browser.PageLauncher(s.navigator.publish, encodeOpenRequest),
			browser.SystemLauncher(cfg.GetBrowserCommand()),
		)
	}
	s.windows = browser.NewRegistry(launcher, browser.WithCloseRequest(s.navigator.CloseWindow))

	providers := oauthpopup.ProviderConfigs(
		cfg.GetAPIBaseURL()+"/auth",
		cfg.GetBaseURL()+RouteOAuthCallback,
		cfg.GetOAuthClientID(),
		cfg.GetOAuthProviders(),
	)
	s.handshake = oauthpopup.New(s.windows, providers, s.completeOAuth,
		oauthpopup.WithPopupSize(cfg.GetPopupWidth(), cfg.GetPopupHeight()),
		oauthpopup.WithPollInterval(cfg.GetPopupPollInterval()),
		oauthpopup.WithChannelName(cfg.GetBroadcastChannelName()),
		oauthpopup.WithMessageType(cfg.GetCompletionMessageType()),
		oauthpopup.WithSubscriber(func(name string) oauthpopup.Channel {
			return s.hub.Subscribe(name)
		}),
	)

	if err := s.initRoutes(); err != nil {
		return nil, fmt.Errorf("[Server New] failed to register routes: %w", err)
	}
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start begins the session check without waiting for the first page request.
func (s *Server) Start(ctx context.Context) {
	s.guard.Start(ctx)
}

// Bootstrapper exposes the session check, mainly so callers can wait on it.
func (s *Server) Bootstrapper() *bootstrap.Bootstrapper {
	return s.boot
}

// Handshake exposes the popup login handshake.
func (s *Server) Handshake() *oauthpopup.Handshake {
	return s.handshake
}

// Close abandons any login popup in progress.
func (s *Server) Close() {
	s.handshake.Close()
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colourMethod(method), path)
}

func logError(method, path, error string) {
	log.Error().Msgf("[%-19s] %s %s", colourMethod(method), path, Red+error+ResetColor)
}

func colourMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}
