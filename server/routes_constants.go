package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	RouteIndex = "/"

	// Session Routes
	RouteLogin     = "/login"
	RouteRegister  = "/register"
	RouteLogout    = "/logout"
	RouteDashboard = "/dashboard"
	RouteSettings  = "/settings"

	// Dashboard resources
	RouteTransactions = "/transactions"

	// Popup Login Routes
	RouteOAuthStartPrefix  = "/oauth/start/"
	RouteOAuthStart        = "/oauth/start/{provider}"
	RouteOAuthCallback     = "/oauth/callback"
	RouteOAuthPopupPrefix  = "/oauth/popup/"
	RouteOAuthPopupMessage = "/oauth/popup/{attempt}/message"
	RouteOAuthPopupClosed  = "/oauth/popup/{attempt}/closed"

	// Broadcast bridge
	RouteWebSocketPrefix = "/ws/"
	RouteWebSocket       = "/ws/{channel}"

	// API pass-through
	RouteAPIPrefix = "/api/"
	RouteAPI       = "/api/{path...}"

	// Static Asset Routes
	RouteStaticPrefix = "/static/"
	RouteStatic       = "/static/{path...}"
)
