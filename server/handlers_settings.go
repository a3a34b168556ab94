package server

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/jrsteele09/budget-session/internal/utils"
	"github.com/jrsteele09/budget-session/users"
)

// SettingsPageHandler renders the profile settings page (GET /settings)
func (s *Server) SettingsPageHandler(tmpl *template.Template) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := s.pageData(r)
		if data.User != nil {
			data.Form["displayName"] = data.User.DisplayName
			data.Form["currency"] = preferredCurrency(data.User)
		}
		render(w, tmpl, http.StatusOK, data)
	}
}

// SettingsSubmissionHandler applies a profile patch (POST /settings). Only
// the fields that changed are sent.
func (s *Server) SettingsSubmissionHandler(tmpl *template.Template) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		current := utils.Value(s.session.User())
		displayName := strings.TrimSpace(r.FormValue("displayName"))
		currency := strings.ToUpper(strings.TrimSpace(r.FormValue("currency")))

		var patch users.Patch
		if displayName != current.DisplayName {
			patch.DisplayName = utils.Ptr(displayName)
		}
		if currency != "" && currency != preferredCurrency(&current) {
			patch.Currency = utils.Ptr(currency)
		}
		if patch.IsEmpty() {
			redirectSuccess(w, r, RouteSettings)
			return
		}

		_, err := s.auth.UpdateProfile(r.Context(), patch)
		if s.sessionEnded(w, r, err) {
			return
		}
		if err != nil {
			data := s.pageData(r)
			data.Form["displayName"] = displayName
			data.Form["currency"] = currency
			data.Error = userMessage(err)
			render(w, tmpl, http.StatusUnprocessableEntity, data)
			return
		}
		redirectSuccess(w, r, RouteSettings+"?notice=Profile+updated")
	}
}
