package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "github.com/jrsteele09/budget-session/internal/errors"
	"github.com/rs/zerolog/log"
)

// APIProxyHandler forwards /api/{path...} to the REST API through the
// gateway, so page scripts get the same credential handling as the host.
func (s *Server) APIProxyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := "/" + r.PathValue("path")
		if r.URL.RawQuery != "" {
			path += "?" + r.URL.RawQuery
		}

		req, err := s.gateway.NewRequest(r.Context(), r.Method, path, r.Body)
		if err != nil {
			writeAPIError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "" {
			req.Header.Set("Content-Type", ct)
		}

		resp, err := s.gateway.Do(req)
		if errors.Is(err, apperrors.ErrSessionExpired) {
			writeAPIError(w, http.StatusUnauthorized, "session_expired", "session expired")
			return
		}
		if err != nil {
			log.Err(err).Str("path", path).Msg("API request failed")
			writeAPIError(w, http.StatusBadGateway, "bad_gateway", "API unavailable")
			return
		}
		defer resp.Body.Close()

		for _, h := range []string{"Content-Type", "Cache-Control", "Location"} {
			if v := resp.Header.Get(h); v != "" {
				w.Header().Set(h, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			log.Debug().Err(err).Str("path", path).Msg("Copying API response")
		}
	}
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
