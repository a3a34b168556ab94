package guard

import (
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

// LoadingRenderer writes the page shown while the session is being checked.
type LoadingRenderer func(w http.ResponseWriter, r *http.Request)

var loadingTemplate = template.Must(template.New("loading").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="{{.}}">
<title>Loading</title>
</head>
<body><p role="status">Loading…</p></body>
</html>
`))

// DefaultLoadingPage re-requests the page every refreshSeconds until the
// check settles.
func DefaultLoadingPage(refreshSeconds int) LoadingRenderer {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := loadingTemplate.Execute(w, refreshSeconds); err != nil {
			log.Err(err).Msg("Failed to render loading page")
		}
	}
}

// Page guards a page route, classifying it by path.
func (g *Guard) Page() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, g.Classify(r.URL.Path), next)
		}
	}
}

// Require guards a route with an explicit class.
func (g *Guard) Require(class RouteClass) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, class, next)
		}
	}
}

func (g *Guard) serve(w http.ResponseWriter, r *http.Request, class RouteClass, next http.HandlerFunc) {
	g.Start(r.Context())

	state := g.State()
	d := Decide(state, class, g.loginRoute, g.landingRoute)
	switch d.Action {
	case Loading:
		w.Header().Set("Cache-Control", "no-store")
		g.loading(w, r)
	case Redirect:
		log.Debug().Str("path", r.URL.Path).Str("state", state.String()).Str("to", d.Location).Msg("Guard redirect")
		w.Header().Set("Cache-Control", "no-store")
		redirect(w, r, d.Location)
	default:
		if g.recorder != nil && r.Method == http.MethodGet && !isHTMXRequest(r) {
			g.recorder.SetCurrentPath(r.URL.Path)
		}
		next(w, r)
	}
}

func redirect(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
