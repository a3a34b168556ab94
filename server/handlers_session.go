package server

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/jrsteele09/budget-session/gateway"
	"github.com/jrsteele09/budget-session/users"
	"github.com/rs/zerolog/log"
)

// IndexHandler renders the landing page
func (s *Server) IndexHandler(tmpl *template.Template) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render(w, tmpl, http.StatusOK, s.pageData(r))
	}
}

// LoginPageHandler displays the login page (GET /login)
func (s *Server) LoginPageHandler(tmpl *template.Template) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := s.pageData(r)
		data.Form["email"] = r.URL.Query().Get("email")
		data.Form["attempt"] = r.URL.Query().Get("attempt")
		render(w, tmpl, http.StatusOK, data)
	}
}

// LoginSubmissionHandler processes the login form submission (POST /login)
func (s *Server) LoginSubmissionHandler(tmpl *template.Template) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		email := strings.TrimSpace(r.FormValue("email"))
		password := r.FormValue("password")

		data := s.pageData(r)
		data.Form["email"] = email
		if email == "" || password == "" {
			data.Error = "Email and password are required"
			render(w, tmpl, http.StatusUnprocessableEntity, data)
			return
		}

		u, err := s.auth.Login(r.Context(), email, password)
		if err != nil {
			log.Info().Err(err).Str("email", email).Msg("Login failed")
			data.Error = userMessage(err)
			render(w, tmpl, http.StatusUnauthorized, data)
			return
		}
		log.Info().Str("user", u.ID).Msg("Signed in")
		redirectSuccess(w, r, s.config.GetDefaultLandingRoute())
	}
}

// RegisterPageHandler displays the sign-up page (GET /register)
func (s *Server) RegisterPageHandler(tmpl *template.Template) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := s.pageData(r)
		data.Form["currency"] = users.DefaultCurrency
		render(w, tmpl, http.StatusOK, data)
	}
}

// RegisterSubmissionHandler creates an account and signs it in (POST /register)
func (s *Server) RegisterSubmissionHandler(tmpl *template.Template) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		req := gateway.SignupRequest{
			Email:       strings.TrimSpace(r.FormValue("email")),
			Password:    r.FormValue("password"),
			DisplayName: strings.TrimSpace(r.FormValue("displayName")),
			Currency:    strings.ToUpper(strings.TrimSpace(r.FormValue("currency"))),
		}

		data := s.pageData(r)
		data.Form["email"] = req.Email
		data.Form["displayName"] = req.DisplayName
		data.Form["currency"] = req.Currency
		if req.Email == "" || req.Password == "" {
			data.Error = "Email and password are required"
			render(w, tmpl, http.StatusUnprocessableEntity, data)
			return
		}
		if req.Password != r.FormValue("confirmPassword") {
			data.Error = "Passwords do not match"
			render(w, tmpl, http.StatusUnprocessableEntity, data)
			return
		}

		if _, err := s.auth.Signup(r.Context(), req); err != nil {
			log.Info().Err(err).Str("email", req.Email).Msg("Sign-up failed")
			data.Error = userMessage(err)
			render(w, tmpl, http.StatusUnprocessableEntity, data)
			return
		}
		redirectSuccess(w, r, s.config.GetDefaultLandingRoute())
	}
}

// LogoutHandler ends the session. The server call is best effort; the local
// session is always cleared.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.Logout(r.Context()); err != nil {
			log.Warn().Err(err).Msg("Server logout failed, local session cleared")
		}
		redirectSuccess(w, r, s.config.GetLoginRoute())
	}
}
