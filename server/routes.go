package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/budget-session/guard"
)

func (s *Server) initRoutes() error {
	pages, err := s.parsePages()
	if err != nil {
		return err
	}
	page := s.guard.Page()

	s.RegisterRouteFunc("GET "+RouteIndex+"{$}", ChainMiddleware(s.IndexHandler(pages.index), s.HTMLMiddleWare(page)...))

	// SESSION
	s.RegisterRouteFunc("GET "+RouteLogin, ChainMiddleware(s.LoginPageHandler(pages.login), s.HTMLMiddleWare(page)...))
	s.RegisterRouteFunc("POST "+RouteLogin, ChainMiddleware(s.LoginSubmissionHandler(pages.login), s.HTMLMiddleWare(page)...))
	s.RegisterRouteFunc("GET "+RouteRegister, ChainMiddleware(s.RegisterPageHandler(pages.register), s.HTMLMiddleWare(page)...))
	s.RegisterRouteFunc("POST "+RouteRegister, ChainMiddleware(s.RegisterSubmissionHandler(pages.register), s.HTMLMiddleWare(page)...))
	s.RegisterRouteFunc("POST "+RouteLogout, ChainMiddleware(s.LogoutHandler(), s.HTMLMiddleWare(page)...))

	// DASHBOARD
	s.RegisterRouteFunc("GET "+RouteDashboard, ChainMiddleware(s.DashboardHandler(pages.dashboard), s.HTMLMiddleWare(page)...))
	s.RegisterRouteFunc("POST "+RouteTransactions, ChainMiddleware(s.CreateTransactionHandler(), s.HTMLMiddleWare(s.guard.Require(guard.Private))...))
	s.RegisterRouteFunc("GET "+RouteSettings, ChainMiddleware(s.SettingsPageHandler(pages.settings), s.HTMLMiddleWare(page)...))
	s.RegisterRouteFunc("POST "+RouteSettings, ChainMiddleware(s.SettingsSubmissionHandler(pages.settings), s.HTMLMiddleWare(page)...))

	// POPUP LOGIN
	s.RegisterRouteFunc("POST "+RouteOAuthStart, ChainMiddleware(s.OAuthStartHandler(), s.HTMLMiddleWare(page)...))
	s.RegisterRouteFunc("GET "+RouteOAuthCallback, ChainMiddleware(s.OAuthCallbackHandler(pages.callback), s.HTMLMiddleWare()...))
	s.RegisterRouteFunc("POST "+RouteOAuthPopupMessage, ChainMiddleware(s.PopupMessageHandler(), s.PopupMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteOAuthPopupClosed, ChainMiddleware(s.PopupClosedHandler(), s.PopupMiddleware()...))
	s.RegisterRouteFunc("OPTIONS "+RouteOAuthPopupPrefix+"{attempt}/{event}", ChainMiddleware(func(http.ResponseWriter, *http.Request) {}, s.PopupMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteWebSocket, s.hub.WebSocketHandler(s.config.GetHostOrigin()))

	// API
	s.RegisterRouteFunc(RouteAPI, ChainMiddleware(s.APIProxyHandler(), s.APIMiddleware()...))

	s.RegisterRouteFunc("GET "+RouteStatic, ChainMiddleware(s.serveFileHandler(), s.StaticMiddleware()...))
	return nil
}

func (s *Server) serveFileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filePath := strings.TrimPrefix(r.PathValue("path"), "/")
		if filePath == "" {
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
		err := StreamFile(w, r, filePath)
		if err != nil {
			logError("GET", filePath, err.Error())
			http.Error(w, "404 - Page Not Found", http.StatusNotFound)
			return
		}
	}
}
