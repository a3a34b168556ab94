package apifake

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/budget-session/internal/errors"
	"github.com/jrsteele09/budget-session/users"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

// Transaction is a single ledger entry. Amount is in the currency's minor
// unit.
type Transaction struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Date        time.Time `json:"date"`
}

type authResponse struct {
	User         users.User `json:"user"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type userIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func (s *Server) requireAccess(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing access token")
			return
		}
		userID, err := s.tokens.VerifyAccess(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID)))
	}
}

func userIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey{}).(string)
	return id
}

func (s *Server) setRefreshCookie(w http.ResponseWriter, token string) {
	if !s.cookie || token == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/auth",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// refreshTokenFrom reads the refresh credential from the JSON body, falling
// back to the cookie.
func refreshTokenFrom(r *http.Request) string {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.RefreshToken != "" {
		return body.RefreshToken
	}
	if c, err := r.Cookie(refreshCookieName); err == nil {
		return c.Value
	}
	return ""
}

func (s *Server) establish(w http.ResponseWriter, status int, u users.User) {
	access, refresh, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		log.Err(err).Msg("Fake API: issue tokens")
		writeError(w, http.StatusInternalServerError, "server_error", "failed to issue tokens")
		return
	}
	s.setRefreshCookie(w, refresh)
	writeJSON(w, status, authResponse{User: u, AccessToken: access, RefreshToken: refresh})
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
		u, err := s.accounts.Authenticate(req.Email, req.Password)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
			return
		}
		s.establish(w, http.StatusOK, u)
	}
}

func (s *Server) SignupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email       string `json:"email"`
			Password    string `json:"password"`
			DisplayName string `json:"displayName"`
			Currency    string `json:"currency"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
		if strings.TrimSpace(req.Password) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "password is required")
			return
		}
		u, err := s.accounts.Create(req.Email, req.Password, req.DisplayName, req.Currency)
		switch {
		case apperrors.Is(err, apperrors.ErrUserExists):
			writeError(w, http.StatusConflict, "user_exists", "an account with this email already exists")
			return
		case err != nil:
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		s.establish(w, http.StatusCreated, u)
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		delay, status := s.refreshBehaviour()
		if delay > 0 {
			time.Sleep(delay)
		}
		if status != 0 {
			writeError(w, status, "refresh_failed", "refresh rejected")
			return
		}

		token := refreshTokenFrom(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing refresh token")
			return
		}
		access, rotated, _, err := s.tokens.Refresh(token, s.accounts.Email)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		s.setRefreshCookie(w, rotated)
		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: access, RefreshToken: rotated})
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token := refreshTokenFrom(r); token != "" {
			s.tokens.RevokeRefresh(token)
		}
		if s.cookie {
			http.SetCookie(w, &http.Cookie{Name: refreshCookieName, Value: "", Path: "/auth", MaxAge: -1})
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := s.accounts.Get(userIDFrom(r))
		if err != nil {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func (s *Server) UpdateProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch users.Patch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
		u, err := s.accounts.Update(userIDFrom(r), patch)
		switch {
		case apperrors.Is(err, apperrors.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		case apperrors.Is(err, apperrors.ErrUserExists):
			writeError(w, http.StatusConflict, "user_exists", err.Error())
			return
		case err != nil:
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

// ProviderHandler stands in for a third-party consent screen: it signs the
// provider's user in immediately and redirects to redirect_uri with the
// issued tokens and the caller's state.
func (s *Server) ProviderHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provider := r.PathValue("provider")
		if _, ok := s.providers[provider]; !ok {
			writeError(w, http.StatusNotFound, "unknown_provider", "unknown provider "+provider)
			return
		}

		q := r.URL.Query()
		redirect, err := url.Parse(q.Get("redirect_uri"))
		if err != nil || redirect.Scheme == "" || redirect.Host == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "redirect_uri must be absolute")
			return
		}

		u, err := s.accounts.ForProvider(provider)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		access, refresh, err := s.tokens.Issue(u.ID, u.Email)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}

		params := redirect.Query()
		params.Set("state", q.Get("state"))
		params.Set("provider", provider)
		params.Set("access_token", access)
		params.Set("refresh_token", refresh)
		redirect.RawQuery = params.Encode()

		log.Debug().Str("provider", provider).Str("user", u.Email).Msg("Fake API: provider login")
		http.Redirect(w, r, redirect.String(), http.StatusFound)
	}
}

func (s *Server) ListTransactionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.listTransactions(userIDFrom(r)))
	}
}

func (s *Server) CreateTransactionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tx Transaction
		if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
		if strings.TrimSpace(tx.Description) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "description is required")
			return
		}
		userID := userIDFrom(r)
		if tx.Currency == "" {
			u, err := s.accounts.Get(userID)
			if err != nil {
				writeError(w, http.StatusNotFound, "not_found", err.Error())
				return
			}
			tx.Currency = u.Currency
		}
		tx.Currency = strings.ToUpper(tx.Currency)
		if money.GetCurrency(tx.Currency) == nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unknown currency "+tx.Currency)
			return
		}

		tx.ID = uuid.New().String()
		if tx.Date.IsZero() {
			tx.Date = s.nowFunc().UTC()
		}
		s.addTransaction(userID, tx)
		writeJSON(w, http.StatusCreated, tx)
	}
}
