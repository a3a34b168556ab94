// Package gateway is the single outbound path to the budget API. Every
// request carries the current access token; a 401 triggers one shared token
// refresh and a single retry, and an unrecoverable 401 ends the session.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/budget-session/internal/config"
	apperrors "github.com/jrsteele09/budget-session/internal/errors"
	"github.com/jrsteele09/budget-session/users"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	defaultRefreshPath = "/auth/refresh"
	defaultLogoutPath  = "/auth/logout"
	defaultLoginRoute  = "/login"
	defaultTimeout     = 15 * time.Second

	// refreshCookieName is used when the refresh credential travels as a cookie.
	refreshCookieName = "refreshToken"
)

// Session is the part of the session store the gateway reads and mutates.
type Session interface {
	AccessToken() string
	RefreshToken() string
	User() *users.User
	SetAuth(user users.User, accessToken, refreshToken string)
	SetTokens(accessToken, refreshToken string)
	ApplyRefresh(used, accessToken, refreshToken string) bool
	UpdateUser(patch users.Patch)
	Logout()
}

// Gateway sends requests to the API on behalf of the signed-in user.
type Gateway struct {
	baseURL      *url.URL
	client       *http.Client
	session      Session
	navigator    Navigator
	refreshPath  string
	logoutPath   string
	loginRoute   string
	publicRoutes []string
	transport    config.RefreshTransport

	flights   singleflight.Group
	refreshMu sync.Mutex
}

type Option func(*Gateway)

func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		g.client = c
	}
}

func WithNavigator(n Navigator) Option {
	return func(g *Gateway) {
		g.navigator = n
	}
}

func WithRefreshTransport(t config.RefreshTransport) Option {
	return func(g *Gateway) {
		g.transport = t
	}
}

func WithRefreshPath(path string) Option {
	return func(g *Gateway) {
		g.refreshPath = path
	}
}

func WithLogoutPath(path string) Option {
	return func(g *Gateway) {
		g.logoutPath = path
	}
}

func WithLoginRoute(route string) Option {
	return func(g *Gateway) {
		g.loginRoute = route
	}
}

func WithPublicRoutes(routes []string) Option {
	return func(g *Gateway) {
		g.publicRoutes = append([]string(nil), routes...)
	}
}

// New creates a gateway for the API rooted at baseURL.
func New(baseURL string, session Session, options ...Option) (*Gateway, error) {
	if session == nil {
		return nil, fmt.Errorf("gateway: nil session")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("gateway: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("gateway: base url %q must be absolute", baseURL)
	}

	g := &Gateway{
		baseURL:     u,
		client:      &http.Client{Timeout: defaultTimeout},
		session:     session,
		refreshPath: defaultRefreshPath,
		logoutPath:  defaultLogoutPath,
		loginRoute:  defaultLoginRoute,
		transport:   config.RefreshInBody,
	}
	for _, opt := range options {
		opt(g)
	}
	if len(g.publicRoutes) == 0 {
		g.publicRoutes = []string{g.loginRoute}
	}
	return g, nil
}

// NewFromConfig wires a gateway from the process configuration.
func NewFromConfig(cfg config.GatewayConfig, session Session, options ...Option) (*Gateway, error) {
	base := []Option{
		WithHTTPClient(&http.Client{Timeout: cfg.GetRequestTimeout()}),
		WithRefreshTransport(cfg.GetRefreshTransport()),
		WithRefreshPath(cfg.GetRefreshPath()),
		WithLogoutPath(cfg.GetLogoutPath()),
		WithLoginRoute(cfg.GetLoginRoute()),
		WithPublicRoutes(cfg.GetPublicRoutes()),
	}
	return New(cfg.GetAPIBaseURL(), session, append(base, options...)...)
}

// Session returns the store the gateway authenticates with.
func (g *Gateway) Session() Session {
	return g.session
}

// URL resolves an API path against the base URL.
func (g *Gateway) URL(path string) string {
	u := *g.baseURL
	p, q, _ := strings.Cut(path, "?")
	u.Path = g.baseURL.Path + "/" + strings.TrimLeft(p, "/")
	u.RawQuery = q
	return u.String()
}

// NewRequest builds a request against the API.
func (g *Gateway) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.URL(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Do sends req with the current access token attached. On a 401 it waits
// for a shared refresh and retries once. When the session cannot be
// recovered the store is cleared, the page is sent to the login route and
// the returned error matches ErrSessionExpired.
func (g *Gateway) Do(req *http.Request) (*http.Response, error) {
	if err := replayable(req); err != nil {
		return nil, err
	}
	return g.do(req, g.session.AccessToken())
}

func (g *Gateway) do(req *http.Request, token string) (*http.Response, error) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Del("Authorization")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	rejected := newStatusError(req, resp)

	if g.isSessionEndpoint(req.URL.Path) {
		g.forceLogout("session endpoint rejected")
		return nil, fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, rejected)
	}
	if isRetried(req.Context()) {
		g.forceLogout("retried request rejected")
		return nil, fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, rejected)
	}

	fresh, err := g.refreshAfter(req.Context(), token)
	if err != nil && req.Context().Err() != nil {
		// The caller gave up; the shared refresh decides the session.
		return nil, fmt.Errorf("%w: %w", rejected, err)
	}
	if err != nil {
		g.forceLogout("refresh failed")
		return nil, fmt.Errorf("%w: %w: %w", apperrors.ErrSessionExpired, rejected, err)
	}

	retry, err := retryOf(req)
	if err != nil {
		return nil, err
	}
	return g.do(retry, fresh)
}

// DoJSON sends in as a JSON body and decodes the response into out. Either
// may be nil. Non-2xx responses come back as *StatusError.
func (g *Gateway) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := g.NewRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(req, resp)
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// Refresh renews the access token outside the request pipeline, sharing any
// refresh already in flight.
func (g *Gateway) Refresh(ctx context.Context) (string, error) {
	return g.refreshAfter(ctx, g.session.AccessToken())
}

// refreshAfter returns a token newer than stale. Callers holding the same
// stale token share one flight. The refresh mutex keeps flights for
// different stale tokens from overlapping on the network.
func (g *Gateway) refreshAfter(ctx context.Context, stale string) (string, error) {
	ch := g.flights.DoChan(stale, func() (any, error) {
		return g.refreshLocked(context.WithoutCancel(ctx), stale)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *Gateway) refreshLocked(ctx context.Context, stale string) (string, error) {
	g.refreshMu.Lock()
	defer g.refreshMu.Unlock()

	// Another flight finished while this one waited.
	if current := g.session.AccessToken(); current != "" && current != stale {
		log.Debug().Msg("Access token already refreshed")
		return current, nil
	}

	refreshToken := g.session.RefreshToken()
	if refreshToken == "" {
		return "", apperrors.ErrNoRefreshToken
	}

	access, rotated, err := g.exchange(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if !g.session.ApplyRefresh(refreshToken, access, rotated) {
		log.Debug().Msg("Session changed during refresh, result dropped")
		if current := g.session.AccessToken(); current != "" && current != stale {
			return current, nil
		}
		return "", fmt.Errorf("%w: session ended during refresh", apperrors.ErrRefreshFailed)
	}
	log.Debug().Bool("rotated", rotated != "").Msg("Access token refreshed")
	return access, nil
}

// exchange calls the refresh endpoint directly, bypassing the pipeline.
func (g *Gateway) exchange(ctx context.Context, refreshToken string) (string, string, error) {
	var body io.Reader
	if g.transport == config.RefreshInBody {
		raw, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
		if err != nil {
			return "", "", err
		}
		body = bytes.NewReader(raw)
	} else {
		body = strings.NewReader("{}")
	}

	req, err := g.NewRequest(ctx, http.MethodPost, g.refreshPath, body)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.transport == config.RefreshInCookie {
		req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: refreshToken})
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", apperrors.ErrRefreshFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", fmt.Errorf("%w: %w", apperrors.ErrRefreshFailed, newStatusError(req, resp))
	}
	defer resp.Body.Close()

	var tokens struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return "", "", fmt.Errorf("%w: decode: %w", apperrors.ErrRefreshFailed, err)
	}
	if tokens.AccessToken == "" {
		return "", "", fmt.Errorf("%w: no access token in response", apperrors.ErrRefreshFailed)
	}
	if tokens.RefreshToken == "" {
		for _, c := range resp.Cookies() {
			if c.Name == refreshCookieName && c.Value != "" {
				tokens.RefreshToken = c.Value
			}
		}
	}
	return tokens.AccessToken, tokens.RefreshToken, nil
}

// forceLogout clears the session and, unless the user is already on a
// public page, replaces the page with the login route.
func (g *Gateway) forceLogout(reason string) {
	g.session.Logout()
	log.Warn().Str("reason", reason).Msg("Session ended")

	if g.navigator == nil {
		return
	}
	current := g.navigator.CurrentPath()
	if current == "" || current == g.loginRoute || IsPublicRoute(current, g.publicRoutes) {
		return
	}
	g.navigator.HardNavigate(g.loginRoute)
}

func (g *Gateway) isSessionEndpoint(path string) bool {
	rel := strings.TrimPrefix(path, g.baseURL.Path)
	return rel == g.refreshPath || rel == g.logoutPath
}

// replayable makes sure the body of req can be sent a second time.
func replayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	raw, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("buffer request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(raw))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}
	return nil
}

func retryOf(req *http.Request) (*http.Request, error) {
	retry := req.Clone(markRetried(req.Context()))
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
		retry.Body = body
	}
	return retry, nil
}
