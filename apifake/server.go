// Package apifake is an in-process stand-in for the budgeting REST API. It
// implements the auth contract the dashboard depends on, a small
// transactions resource, and a fake third-party login provider. Tests use
// its counters and hooks to drive expiry and refresh scenarios.
package apifake

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	RouteLogin        = "/auth/login"
	RouteSignup       = "/auth/signup"
	RouteRefresh      = "/auth/refresh"
	RouteLogout       = "/auth/logout"
	RouteMe           = "/auth/me"
	RouteProvider     = "/auth/{provider}"
	RouteProfile      = "/users/me"
	RouteTransactions = "/transactions"

	refreshCookieName = "refreshToken"
	defaultSecret     = "budget-fake-api-secret"
)

type Server struct {
	mux      *http.ServeMux
	routes   []string
	accounts *Accounts
	tokens   *Tokens

	accessTTL  time.Duration
	refreshTTL time.Duration
	rotate     bool
	cookie     bool
	secret     string
	providers  map[string]struct{}
	nowFunc    func() time.Time

	mu            sync.Mutex
	calls         map[string]int
	refreshDelay  time.Duration
	refreshStatus int
	transactions  map[string][]Transaction
}

type Option func(*Server)

func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = d
	}
}

func WithRefreshTTL(d time.Duration) Option {
	return func(s *Server) {
		s.refreshTTL = d
	}
}

// WithRotation makes every refresh issue a new refresh token and invalidate
// the presented one.
func WithRotation(rotate bool) Option {
	return func(s *Server) {
		s.rotate = rotate
	}
}

// WithRefreshCookie makes the server set the refresh credential as a cookie
// in addition to returning it in JSON.
func WithRefreshCookie(cookie bool) Option {
	return func(s *Server) {
		s.cookie = cookie
	}
}

func WithSecret(secret string) Option {
	return func(s *Server) {
		s.secret = secret
	}
}

func WithProviders(providers ...string) Option {
	return func(s *Server) {
		s.providers = make(map[string]struct{}, len(providers))
		for _, p := range providers {
			s.providers[p] = struct{}{}
		}
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.nowFunc = now
	}
}

func New(options ...Option) *Server {
	s := &Server{
		mux:          http.NewServeMux(),
		accounts:     NewAccounts(),
		accessTTL:    15 * time.Minute,
		refreshTTL:   7 * 24 * time.Hour,
		secret:       defaultSecret,
		providers:    map[string]struct{}{"google": {}, "github": {}},
		nowFunc:      time.Now,
		calls:        make(map[string]int),
		transactions: make(map[string][]Transaction),
	}
	for _, opt := range options {
		opt(s)
	}
	s.tokens = newTokens(NewHMACSigner(s.secret), s.accessTTL, s.refreshTTL, s.rotate, s.nowFunc)
	s.initRoutes()
	return s
}

func (s *Server) initRoutes() {
	s.handle("POST "+RouteLogin, s.LoginHandler())
	s.handle("POST "+RouteSignup, s.SignupHandler())
	s.handle("POST "+RouteRefresh, s.RefreshHandler())
	s.handle("POST "+RouteLogout, s.LogoutHandler())
	s.handle("GET "+RouteMe, s.requireAccess(s.MeHandler()))
	s.handle("GET "+RouteProvider, s.ProviderHandler())
	s.handle("PATCH "+RouteProfile, s.requireAccess(s.UpdateProfileHandler()))
	s.handle("GET "+RouteTransactions, s.requireAccess(s.ListTransactionsHandler()))
	s.handle("POST "+RouteTransactions, s.requireAccess(s.CreateTransactionHandler()))
}

func (s *Server) handle(pattern string, h http.HandlerFunc) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[pattern]++
		s.mu.Unlock()
		h(w, r)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Routes lists the registered patterns in registration order.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

// Calls returns how many times the route pattern (e.g. "POST /auth/refresh")
// was hit.
func (s *Server) Calls(pattern string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[pattern]
}

func (s *Server) RefreshCalls() int {
	return s.Calls("POST " + RouteRefresh)
}

// SetRefreshDelay holds every refresh response for d.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// FailRefresh makes the refresh endpoint answer with status. Zero restores
// normal behaviour.
func (s *Server) FailRefresh(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshStatus = status
}

// ExpireAccessTokens rejects every access token issued so far.
func (s *Server) ExpireAccessTokens() {
	s.tokens.ExpireAllAccess()
	log.Debug().Msg("Fake API: access tokens expired")
}

// RevokeRefreshTokens rejects every refresh token issued so far.
func (s *Server) RevokeRefreshTokens() {
	s.tokens.RevokeAllRefresh()
	log.Debug().Msg("Fake API: refresh tokens revoked")
}

// Accounts exposes the user table for seeding.
func (s *Server) Accounts() *Accounts {
	return s.accounts
}

// IssueTokens hands out a fresh token pair for an existing user.
func (s *Server) IssueTokens(userID string) (string, string, error) {
	email, err := s.accounts.Email(userID)
	if err != nil {
		return "", "", err
	}
	return s.tokens.Issue(userID, email)
}

func (s *Server) refreshBehaviour() (time.Duration, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshDelay, s.refreshStatus
}

func (s *Server) addTransaction(userID string, tx Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[userID] = append(s.transactions[userID], tx)
}

func (s *Server) listTransactions(userID string) []Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append([]Transaction{}, s.transactions[userID]...)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Date.After(list[j].Date)
	})
	return list
}
