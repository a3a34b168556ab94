package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/budget-session/internal/config"
	apperrors "github.com/jrsteele09/budget-session/internal/errors"
	"github.com/jrsteele09/budget-session/users"
	"github.com/rs/zerolog/log"
)

const (
	loginPath   = "/auth/login"
	signupPath  = "/auth/signup"
	mePath      = "/auth/me"
	profilePath = "/users/me"
)

// AuthClient wraps the API's auth endpoints and keeps the session store in
// step with their results.
type AuthClient struct {
	gw *Gateway
}

func NewAuthClient(gw *Gateway) *AuthClient {
	return &AuthClient{gw: gw}
}

type SignupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
	Currency    string `json:"currency,omitempty"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User         users.User `json:"user"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
}

func (c *AuthClient) Login(ctx context.Context, email, password string) (*users.User, error) {
	if email == "" || password == "" {
		return nil, apperrors.ErrInvalidCredentials
	}

	var res authResponse
	if err := c.gw.DoJSON(ctx, http.MethodPost, loginPath, credentials{Email: email, Password: password}, &res); err != nil {
		if apperrors.Is(err, apperrors.ErrUnauthorized) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}
	return c.establish(res)
}

func (c *AuthClient) Signup(ctx context.Context, req SignupRequest) (*users.User, error) {
	if req.Email == "" || req.Password == "" {
		return nil, apperrors.ErrInvalidCredentials
	}
	if req.Currency != "" {
		if err := users.ValidateCurrency(req.Currency); err != nil {
			return nil, err
		}
	}

	var res authResponse
	if err := c.gw.DoJSON(ctx, http.MethodPost, signupPath, req, &res); err != nil {
		var se *StatusError
		if apperrors.As(err, &se) && se.StatusCode == http.StatusConflict {
			return nil, apperrors.ErrUserExists
		}
		return nil, err
	}
	return c.establish(res)
}

func (c *AuthClient) establish(res authResponse) (*users.User, error) {
	if res.AccessToken == "" || res.User.ID == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "incomplete auth response")
	}
	c.gw.session.SetAuth(res.User, res.AccessToken, res.RefreshToken)
	u := res.User
	return &u, nil
}

// Logout tells the API to revoke the refresh token, then clears the local
// session whatever the API said. The returned error is informational only.
func (c *AuthClient) Logout(ctx context.Context) error {
	refreshToken := c.gw.session.RefreshToken()
	if refreshToken == "" && c.gw.session.AccessToken() == "" {
		c.gw.session.Logout()
		return nil
	}

	err := c.revoke(ctx, refreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("Server logout failed")
	}
	c.gw.session.Logout()
	return err
}

func (c *AuthClient) revoke(ctx context.Context, refreshToken string) error {
	body := "{}"
	if c.gw.transport == config.RefreshInBody {
		raw, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
		if err != nil {
			return err
		}
		body = string(raw)
	}

	req, err := c.gw.NewRequest(ctx, http.MethodPost, c.gw.logoutPath, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.gw.transport == config.RefreshInCookie && refreshToken != "" {
		req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: refreshToken})
	}

	resp, err := c.gw.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(req, resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// Me fetches the signed-in user's profile.
func (c *AuthClient) Me(ctx context.Context) (*users.User, error) {
	var u users.User
	if err := c.gw.DoJSON(ctx, http.MethodGet, mePath, nil, &u); err != nil {
		return nil, err
	}
	if u.ID == "" {
		return nil, apperrors.ErrUserNotFound
	}
	return &u, nil
}

// UpdateProfile sends patch to the API and merges the accepted fields into
// the stored user.
func (c *AuthClient) UpdateProfile(ctx context.Context, patch users.Patch) (*users.User, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return c.gw.session.User(), nil
	}

	var updated users.User
	if err := c.gw.DoJSON(ctx, http.MethodPatch, profilePath, patch, &updated); err != nil {
		return nil, err
	}
	c.gw.session.UpdateUser(patch)
	return c.gw.session.User(), nil
}

// RefreshSession renews the access token with the stored refresh token.
func (c *AuthClient) RefreshSession(ctx context.Context) error {
	_, err := c.gw.Refresh(ctx)
	return err
}

// CompleteOAuth turns the credentials delivered by a provider popup into an
// established session. With no access token it falls back to a refresh,
// for providers that only set the refresh credential. Failure leaves the
// session logged out. Any previous session is cleared first so none of its
// credentials carry over to the new user.
func (c *AuthClient) CompleteOAuth(ctx context.Context, accessToken, refreshToken string) (*users.User, error) {
	c.gw.session.Logout()
	if accessToken != "" {
		c.gw.session.SetTokens(accessToken, refreshToken)
	} else {
		if refreshToken != "" {
			c.gw.session.SetTokens("", refreshToken)
		}
		if _, err := c.gw.Refresh(ctx); err != nil {
			c.gw.session.Logout()
			return nil, err
		}
	}

	u, err := c.Me(ctx)
	if err != nil {
		c.gw.session.Logout()
		return nil, err
	}
	c.gw.session.SetAuth(*u, c.gw.session.AccessToken(), c.gw.session.RefreshToken())
	return u, nil
}
