package bootstrap_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/budget-session/bootstrap"
	"github.com/jrsteele09/budget-session/sessions"
	"github.com/jrsteele09/budget-session/storage"
	"github.com/jrsteele09/budget-session/storage/memstore"
	"github.com/jrsteele09/budget-session/users"
	"github.com/stretchr/testify/require"
)

var errRejected = errors.New("401 unauthorized")

// fakeAPI plays the refresh and profile endpoints against a real store.
type fakeAPI struct {
	store      *sessions.Store
	refreshErr error
	meErr      error
	me         users.User
	release    chan struct{}

	refreshCalls atomic.Int32
	meCalls      atomic.Int32
}

func (f *fakeAPI) RefreshSession(ctx context.Context) error {
	f.refreshCalls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.store.SetTokens("fresh-access", "")
	return nil
}

func (f *fakeAPI) Me(ctx context.Context) (*users.User, error) {
	f.meCalls.Add(1)
	if f.meErr != nil {
		return nil, f.meErr
	}
	u := f.me
	return &u, nil
}

type testFixture struct {
	durable *memstore.Store
	store   *sessions.Store
	api     *fakeAPI
	boot    *bootstrap.Bootstrapper
}

// setupTestFixture persists entries, rehydrates a store from them and wires
// a bootstrapper to it.
func setupTestFixture(t *testing.T, persisted map[string]string) *testFixture {
	t.Helper()

	durable := memstore.New()
	require.NoError(t, durable.SetMany(persisted))
	store := sessions.New(durable)
	store.Rehydrate()

	api := &fakeAPI{store: store, me: users.User{ID: "u-1", Email: "jane@example.com", Currency: "EUR"}}
	return &testFixture{durable: durable, store: store, api: api, boot: bootstrap.New(store, api)}
}

const persistedUser = `{"id":"u-1","email":"jane@example.com","currency":"USD"}`

func TestBootstrap_Matrix(t *testing.T) {
	tests := []struct {
		name        string
		persisted   map[string]string
		refreshErr  error
		meErr       error
		want        bootstrap.Outcome
		wantRefresh int32
		wantMe      int32
	}{
		{
			name:        "refresh token and user",
			persisted:   map[string]string{storage.KeyUser: persistedUser, storage.KeyRefreshToken: "r1"},
			want:        bootstrap.Authenticated,
			wantRefresh: 1,
		},
		{
			name:        "refresh token without user reconstructs the user",
			persisted:   map[string]string{storage.KeyRefreshToken: "r1"},
			want:        bootstrap.Authenticated,
			wantRefresh: 1,
			wantMe:      1,
		},
		{
			name:        "refresh rejected",
			persisted:   map[string]string{storage.KeyUser: persistedUser, storage.KeyRefreshToken: "r1", storage.KeyAccessToken: "a0"},
			refreshErr:  errRejected,
			want:        bootstrap.Unauthenticated,
			wantRefresh: 1,
		},
		{
			name:        "user reconstruction fails",
			persisted:   map[string]string{storage.KeyRefreshToken: "r1"},
			meErr:       errRejected,
			want:        bootstrap.Unauthenticated,
			wantRefresh: 1,
			wantMe:      1,
		},
		{
			name:      "cached access token and user validated",
			persisted: map[string]string{storage.KeyUser: persistedUser, storage.KeyAccessToken: "a0"},
			want:      bootstrap.Authenticated,
			wantMe:    1,
		},
		{
			name:      "cached access token rejected",
			persisted: map[string]string{storage.KeyUser: persistedUser, storage.KeyAccessToken: "a0"},
			meErr:     errRejected,
			want:      bootstrap.Unauthenticated,
			wantMe:    1,
		},
		{
			name:      "user only",
			persisted: map[string]string{storage.KeyUser: persistedUser},
			want:      bootstrap.Unauthenticated,
		},
		{
			name:      "access token only",
			persisted: map[string]string{storage.KeyAccessToken: "a0"},
			want:      bootstrap.Unauthenticated,
		},
		{
			name:      "nothing stored",
			persisted: map[string]string{},
			want:      bootstrap.Unauthenticated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t, tt.persisted)
			f.api.refreshErr = tt.refreshErr
			f.api.meErr = tt.meErr

			require.True(t, f.boot.Checking())
			got := f.boot.Run(context.Background())

			require.Equal(t, tt.want, got)
			require.False(t, f.boot.Checking())
			require.Equal(t, tt.wantRefresh, f.api.refreshCalls.Load())
			require.Equal(t, tt.wantMe, f.api.meCalls.Load())

			if tt.want == bootstrap.Authenticated {
				require.True(t, f.store.IsAuthenticated())
				require.True(t, f.store.Verified())
			} else {
				require.False(t, f.store.IsAuthenticated())
				require.Empty(t, f.store.RefreshToken())
				require.Zero(t, f.durable.Len())
			}
		})
	}
}

func TestBootstrap_RunsOnce(t *testing.T) {
	f := setupTestFixture(t, map[string]string{storage.KeyUser: persistedUser, storage.KeyRefreshToken: "r1"})
	f.api.release = make(chan struct{})

	var wg sync.WaitGroup
	results := make([]bootstrap.Outcome, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.boot.Run(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return f.api.refreshCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.True(t, f.boot.Checking())
	close(f.api.release)
	wg.Wait()

	for _, r := range results {
		require.Equal(t, bootstrap.Authenticated, r)
	}
	require.Equal(t, int32(1), f.api.refreshCalls.Load())
}

func TestBootstrap_StartOutlivesRequestContext(t *testing.T) {
	f := setupTestFixture(t, map[string]string{storage.KeyUser: persistedUser, storage.KeyRefreshToken: "r1"})
	f.api.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	f.boot.Start(ctx)
	cancel()
	close(f.api.release)

	select {
	case <-f.boot.Done():
	case <-time.After(time.Second):
		t.Fatal("check never settled")
	}
	require.Equal(t, bootstrap.Authenticated, f.boot.Outcome())
}

func TestBootstrap_Rerun(t *testing.T) {
	f := setupTestFixture(t, map[string]string{storage.KeyUser: persistedUser, storage.KeyRefreshToken: "r1"})
	require.Equal(t, bootstrap.Authenticated, f.boot.Run(context.Background()))

	// A second Run does not check again.
	require.Equal(t, bootstrap.Authenticated, f.boot.Run(context.Background()))
	require.Equal(t, int32(1), f.api.refreshCalls.Load())

	f.api.refreshErr = errRejected
	require.Equal(t, bootstrap.Unauthenticated, f.boot.Rerun(context.Background()))
	require.Equal(t, int32(2), f.api.refreshCalls.Load())
	require.False(t, f.boot.Checking())
	require.False(t, f.store.IsAuthenticated())
}

func TestOutcome_String(t *testing.T) {
	require.Equal(t, "pending", bootstrap.Pending.String())
	require.Equal(t, "authenticated", bootstrap.Authenticated.String())
	require.Equal(t, "unauthenticated", bootstrap.Unauthenticated.String())
}
