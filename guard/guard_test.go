package guard_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/budget-session/guard"
	"github.com/stretchr/testify/require"
)

// pageMarker is written only by the protected handler.
const pageMarker = "protected-page-body"

type fakeSession struct {
	authenticated atomic.Bool
}

func (s *fakeSession) IsAuthenticated() bool {
	return s.authenticated.Load()
}

type fakeBoot struct {
	checking atomic.Bool
	starts   atomic.Int32
}

func (b *fakeBoot) Start(ctx context.Context) {
	b.starts.Add(1)
}

func (b *fakeBoot) Checking() bool {
	return b.checking.Load()
}

type recorder struct {
	paths []string
}

func (r *recorder) SetCurrentPath(path string) {
	r.paths = append(r.paths, path)
}

type testFixture struct {
	session  *fakeSession
	boot     *fakeBoot
	recorder *recorder
	guard    *guard.Guard
	rendered atomic.Int32
	handler  http.HandlerFunc
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{session: &fakeSession{}, boot: &fakeBoot{}, recorder: &recorder{}}
	f.boot.checking.Store(true)
	f.guard = guard.New(f.session, f.boot,
		guard.WithPublicOnly("/login", "/register", "/auth/"),
		guard.WithOpen("/", "/oauth/"),
		guard.WithPathRecorder(f.recorder),
	)
	f.handler = f.guard.Page()(func(w http.ResponseWriter, r *http.Request) {
		f.rendered.Add(1)
		_, _ = w.Write([]byte(pageMarker))
	})
	return f
}

func (f *testFixture) get(path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler(rec, req)
	return rec
}

func TestDecide(t *testing.T) {
	tests := []struct {
		state guard.State
		class guard.RouteClass
		want  guard.Decision
	}{
		{guard.Checking, guard.Private, guard.Decision{Action: guard.Loading}},
		{guard.Checking, guard.PublicOnly, guard.Decision{Action: guard.Loading}},
		{guard.Checking, guard.Open, guard.Decision{Action: guard.Render}},
		{guard.Authenticated, guard.Private, guard.Decision{Action: guard.Render}},
		{guard.Authenticated, guard.PublicOnly, guard.Decision{Action: guard.Redirect, Location: "/dashboard"}},
		{guard.Authenticated, guard.Open, guard.Decision{Action: guard.Render}},
		{guard.Unauthenticated, guard.Private, guard.Decision{Action: guard.Redirect, Location: "/login"}},
		{guard.Unauthenticated, guard.PublicOnly, guard.Decision{Action: guard.Render}},
		{guard.Unauthenticated, guard.Open, guard.Decision{Action: guard.Render}},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			require.Equal(t, tt.want, guard.Decide(tt.state, tt.class, "/login", "/dashboard"))
		})
	}
}

func TestGuard_Classify(t *testing.T) {
	f := setupTestFixture(t)

	require.Equal(t, guard.Open, f.guard.Classify("/"))
	require.Equal(t, guard.Open, f.guard.Classify("/oauth/callback"))
	require.Equal(t, guard.PublicOnly, f.guard.Classify("/login"))
	require.Equal(t, guard.PublicOnly, f.guard.Classify("/auth/google"))
	require.Equal(t, guard.Private, f.guard.Classify("/dashboard"))
	require.Equal(t, guard.Private, f.guard.Classify("/settings"))
}

func TestGuard_NeverRendersWhileChecking(t *testing.T) {
	f := setupTestFixture(t)

	for _, path := range []string{"/dashboard", "/settings", "/login", "/register"} {
		rec := f.get(path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		require.Empty(t, rec.Header().Get("Location"))
		require.NotContains(t, rec.Body.String(), pageMarker)
		require.Contains(t, rec.Body.String(), `http-equiv="refresh"`)
	}
	require.Zero(t, f.rendered.Load())
	require.Empty(t, f.recorder.paths)
	require.Positive(t, f.boot.starts.Load())
}

func TestGuard_OpenRoutesRenderWhileChecking(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.get("/oauth/callback")
	require.Equal(t, pageMarker, rec.Body.String())
	require.Equal(t, int32(1), f.rendered.Load())
}

func TestGuard_Redirects(t *testing.T) {
	t.Run("unauthenticated on a private page", func(t *testing.T) {
		f := setupTestFixture(t)
		f.boot.checking.Store(false)

		rec := f.get("/dashboard")
		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/login", rec.Header().Get("Location"))
		require.Zero(t, f.rendered.Load())
	})

	t.Run("authenticated on a guest page", func(t *testing.T) {
		f := setupTestFixture(t)
		f.boot.checking.Store(false)
		f.session.authenticated.Store(true)

		rec := f.get("/login")
		require.Equal(t, http.StatusSeeOther, rec.Code)
		require.Equal(t, "/dashboard", rec.Header().Get("Location"))
	})

	t.Run("htmx requests get HX-Redirect", func(t *testing.T) {
		f := setupTestFixture(t)
		f.boot.checking.Store(false)

		rec := f.get("/settings", "HX-Request", "true")
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "/login", rec.Header().Get("HX-Redirect"))
	})
}

func TestGuard_RendersAndRecordsPath(t *testing.T) {
	f := setupTestFixture(t)
	f.boot.checking.Store(false)
	f.session.authenticated.Store(true)

	rec := f.get("/dashboard")
	require.Equal(t, pageMarker, rec.Body.String())
	require.Equal(t, []string{"/dashboard"}, f.recorder.paths)

	f.session.authenticated.Store(false)
	rec = f.get("/register")
	require.Equal(t, pageMarker, rec.Body.String())
	require.Equal(t, []string{"/dashboard", "/register"}, f.recorder.paths)
}

func TestGuard_Require(t *testing.T) {
	f := setupTestFixture(t)
	f.boot.checking.Store(false)

	h := f.guard.Require(guard.Open)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}
