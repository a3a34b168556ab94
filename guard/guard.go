// Package guard decides, for every page request, whether to render the page,
// show a neutral loading page, or redirect, based on the session's
// authentication state.
package guard

import (
	"context"
	"strings"
)

type State int

const (
	Checking State = iota
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Checking:
		return "CHECKING"
	case Authenticated:
		return "AUTHENTICATED"
	case Unauthenticated:
		return "UNAUTHENTICATED"
	}
	return "UNKNOWN"
}

type RouteClass int

const (
	// Private pages need an authenticated session. Unlisted paths are private.
	Private RouteClass = iota
	// PublicOnly pages are for guests; signed-in users are sent away.
	PublicOnly
	// Open pages render whatever the state.
	Open
)

type Action int

const (
	Render Action = iota
	Loading
	Redirect
)

// Decision is what the guard does with one request.
type Decision struct {
	Action   Action
	Location string // set for Redirect
}

// Decide is the guard's pure decision table. While the session is being
// checked nothing is rendered and nothing redirects.
func Decide(state State, class RouteClass, loginRoute, landingRoute string) Decision {
	if class == Open {
		return Decision{Action: Render}
	}
	switch state {
	case Checking:
		return Decision{Action: Loading}
	case Authenticated:
		if class == PublicOnly {
			return Decision{Action: Redirect, Location: landingRoute}
		}
	case Unauthenticated:
		if class == Private {
			return Decision{Action: Redirect, Location: loginRoute}
		}
	}
	return Decision{Action: Render}
}

// Session reports whether the store holds a user and an access token.
type Session interface {
	IsAuthenticated() bool
}

// Bootstrapper is satisfied by bootstrap.Bootstrapper.
type Bootstrapper interface {
	Start(ctx context.Context)
	Checking() bool
}

// PathRecorder is told which page the user is on.
type PathRecorder interface {
	SetCurrentPath(path string)
}

type Guard struct {
	session      Session
	boot         Bootstrapper
	recorder     PathRecorder
	loginRoute   string
	landingRoute string
	publicOnly   []string
	open         []string
	loading      LoadingRenderer
}

type Option func(*Guard)

func WithLoginRoute(route string) Option {
	return func(g *Guard) {
		g.loginRoute = route
	}
}

func WithLandingRoute(route string) Option {
	return func(g *Guard) {
		g.landingRoute = route
	}
}

// WithPublicOnly sets the guest-only allow-list. Entries ending in "/"
// match as prefixes.
func WithPublicOnly(routes ...string) Option {
	return func(g *Guard) {
		g.publicOnly = append([]string(nil), routes...)
	}
}

// WithOpen lists paths rendered regardless of state. Entries ending in "/"
// match as prefixes.
func WithOpen(routes ...string) Option {
	return func(g *Guard) {
		g.open = append([]string(nil), routes...)
	}
}

func WithPathRecorder(r PathRecorder) Option {
	return func(g *Guard) {
		g.recorder = r
	}
}

func WithLoadingRenderer(l LoadingRenderer) Option {
	return func(g *Guard) {
		g.loading = l
	}
}

func New(session Session, boot Bootstrapper, options ...Option) *Guard {
	g := &Guard{
		session:      session,
		boot:         boot,
		loginRoute:   "/login",
		landingRoute: "/dashboard",
		publicOnly:   []string{"/login", "/register"},
		open:         []string{"/"},
		loading:      DefaultLoadingPage(1),
	}
	for _, opt := range options {
		opt(g)
	}
	return g
}

// Start kicks off the session check. Only the first call has any effect.
func (g *Guard) Start(ctx context.Context) {
	g.boot.Start(ctx)
}

func (g *Guard) State() State {
	if g.boot.Checking() {
		return Checking
	}
	if g.session.IsAuthenticated() {
		return Authenticated
	}
	return Unauthenticated
}

// Classify maps a request path to its route class.
func (g *Guard) Classify(path string) RouteClass {
	if matches(path, g.open) {
		return Open
	}
	if matches(path, g.publicOnly) {
		return PublicOnly
	}
	return Private
}

func (g *Guard) Decide(path string) Decision {
	return Decide(g.State(), g.Classify(path), g.loginRoute, g.landingRoute)
}

func matches(path string, routes []string) bool {
	for _, route := range routes {
		if strings.HasSuffix(route, "/") && route != "/" {
			if strings.HasPrefix(path, route) {
				return true
			}
			continue
		}
		if path == route {
			return true
		}
	}
	return false
}
