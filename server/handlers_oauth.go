package server

import (
	"context"
	"errors"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strconv"

	apperrors "github.com/jrsteele09/budget-session/internal/errors"
	"github.com/jrsteele09/budget-session/oauthpopup"
	"github.com/rs/zerolog/log"
)

const maxPopupMessageBytes = 64 << 10

// CallbackView is the model of the page shown inside the login popup
type CallbackView struct {
	AppName           string
	Attempt           string
	Error             string
	Message           oauthpopup.Message
	ChannelName       string
	NavigationChannel string
	Countdown         int
	Width             int
	Height            int
}

// OAuthStartHandler opens the provider's login popup (POST /oauth/start/{provider}).
// The form carries the initiating page's screen geometry so the popup can
// be centred over it.
func (s *Server) OAuthStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		provider := r.PathValue("provider")
		screen := oauthpopup.Screen{
			Left:   formInt(r, "screenLeft"),
			Top:    formInt(r, "screenTop"),
			Width:  formInt(r, "screenWidth"),
			Height: formInt(r, "screenHeight"),
		}

		attempt, err := s.handshake.OpenPopup(r.Context(), provider, screen)
		if errors.Is(err, apperrors.ErrUnknownProvider) {
			http.Error(w, "404 - Unknown provider", http.StatusNotFound)
			return
		}
		if err != nil {
			redirectWithError(w, r, RouteLogin, userMessage(err))
			return
		}
		redirectSuccess(w, r, RouteLogin+"?attempt="+url.QueryEscape(attempt.ID))
	}
}

// OAuthCallbackHandler renders the popup page the provider redirects to
// (GET /oauth/callback). The page hands the credentials back to the host and
// closes itself.
func (s *Server) OAuthCallbackHandler(tmpl *template.Template) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		view := CallbackView{
			AppName:           s.config.GetAppName(),
			Attempt:           q.Get("state"),
			Error:             q.Get("error"),
			ChannelName:       s.config.GetBroadcastChannelName(),
			NavigationChannel: s.config.GetNavigationChannelName(),
			Countdown:         s.config.GetPopupCloseCountdown(),
			Width:             s.config.GetPopupWidth(),
			Height:            s.config.GetPopupHeight(),
		}
		if view.Error == "" && q.Get("access_token") == "" && q.Get("refresh_token") == "" {
			view.Error = "The provider did not return any credentials"
		}
		if view.Error == "" {
			view.Message = oauthpopup.Message{
				Type:         s.config.GetCompletionMessageType(),
				Attempt:      view.Attempt,
				Provider:     q.Get("provider"),
				AccessToken:  q.Get("access_token"),
				RefreshToken: q.Get("refresh_token"),
			}
		}

		// Credentials travel in the URL, keep them out of caches and referrers.
		w.Header().Set("Referrer-Policy", "no-referrer")
		render(w, tmpl, http.StatusOK, view)
	}
}

// PopupMessageHandler receives a message the popup posts to its opener
// (POST /oauth/popup/{attempt}/message).
func (s *Server) PopupMessageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPopupMessageBytes))
		if err != nil {
			http.Error(w, "Invalid message", http.StatusBadRequest)
			return
		}
		if err := s.windows.Deliver(r.PathValue("attempt"), body); err != nil {
			popupError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// PopupClosedHandler receives the popup's close beacon
// (POST /oauth/popup/{attempt}/closed).
func (s *Server) PopupClosedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, http.MaxBytesReader(w, r.Body, maxPopupMessageBytes))
		if err := s.windows.MarkClosed(r.PathValue("attempt")); err != nil {
			popupError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func popupError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperrors.ErrWindowNotFound) {
		// Already settled, or never ours.
		http.Error(w, "404 - Unknown window", http.StatusNotFound)
		return
	}
	log.Err(err).Msg("Popup message failed")
	http.Error(w, "500 - Internal Server Error", http.StatusInternalServerError)
}

// completeOAuth finalises a popup login into the session and sends the open
// pages to the dashboard.
func (s *Server) completeOAuth(ctx context.Context, msg oauthpopup.Message) error {
	u, err := s.auth.CompleteOAuth(ctx, msg.AccessToken, msg.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Str("provider", msg.Provider).Msg("Popup login could not be completed")
		s.navigator.HardNavigate(s.config.GetLoginRoute() + "?error=" + url.QueryEscape(userMessage(err)))
		return err
	}
	log.Info().Str("user", u.ID).Str("provider", msg.Provider).Msg("Signed in with provider")
	s.navigator.HardNavigate(s.config.GetDefaultLandingRoute())
	return nil
}

func formInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.FormValue(key))
	if err != nil {
		return 0
	}
	return n
}
