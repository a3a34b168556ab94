package server

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	apperrors "github.com/jrsteele09/budget-session/internal/errors"
	"github.com/jrsteele09/budget-session/users"
	"github.com/rs/zerolog/log"
)

const contentTypeHTML = "text/html; charset=utf-8"

var templateFuncs = template.FuncMap{
	"money": formatMoney,
	"date":  formatDate,
}

// PageData is the template model shared by the dashboard pages
type PageData struct {
	AppName           string
	NavigationChannel string
	User              *users.User
	Error             string
	Notice            string
	Providers         []string
	Form              map[string]string
	Data              any
}

func (s *Server) pageData(r *http.Request) PageData {
	q := r.URL.Query()
	return PageData{
		AppName:           s.config.GetAppName(),
		NavigationChannel: s.config.GetNavigationChannelName(),
		User:              s.session.User(),
		Error:             q.Get("error"),
		Notice:            q.Get("notice"),
		Providers:         s.handshake.Providers(),
		Form:              map[string]string{},
	}
}

func render(w http.ResponseWriter, tmpl *template.Template, status int, data any) {
	w.Header().Set("Content-Type", contentTypeHTML)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := tmpl.Execute(w, data); err != nil {
		log.Err(err).Str("template", tmpl.Name()).Msg("Failed to render template")
	}
}

// userMessage turns a gateway error into something fit to show on a page
func userMessage(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, apperrors.ErrUserExists):
		return "An account with that email already exists"
	case errors.Is(err, apperrors.ErrInvalidCurrency):
		return "Unknown currency code"
	case errors.Is(err, apperrors.ErrSessionExpired):
		return "Your session has expired, please sign in again"
	case errors.Is(err, apperrors.ErrPopupBlocked):
		return "The sign-in window could not be opened"
	}
	return "Something went wrong, please try again"
}

func formatMoney(amount int64, currency string) string {
	if money.GetCurrency(strings.ToUpper(currency)) == nil {
		currency = users.DefaultCurrency
	}
	return money.New(amount, strings.ToUpper(currency)).Display()
}

func formatDate(t time.Time) string {
	return t.Format("2 Jan 2006")
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectWithError helper for htmx-aware error redirects
func redirectWithError(w http.ResponseWriter, r *http.Request, path, errorMsg string) {
	redirectSuccess(w, r, path+"?error="+url.QueryEscape(errorMsg))
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
