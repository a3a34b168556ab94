package oauthpopup_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/budget-session/broadcast"
	apperrors "github.com/jrsteele09/budget-session/internal/errors"
	"github.com/jrsteele09/budget-session/oauthpopup"
	"github.com/stretchr/testify/require"
)

const pollInterval = 10 * time.Millisecond

type fakeWindow struct {
	closed     atomic.Bool
	closeCalls atomic.Int32
	messages   chan []byte

	mu   sync.Mutex
	late []byte
}

// Closed reports the window state. A message set with arriveWithClose is
// queued the first time the window is seen closed.
func (w *fakeWindow) Closed() bool {
	closed := w.closed.Load()
	if closed {
		w.mu.Lock()
		late := w.late
		w.late = nil
		w.mu.Unlock()
		if late != nil {
			w.messages <- late
		}
	}
	return closed
}

func (w *fakeWindow) arriveWithClose(raw []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.late = raw
}

func (w *fakeWindow) Close() error {
	w.closeCalls.Add(1)
	w.closed.Store(true)
	return nil
}

func (w *fakeWindow) Messages() <-chan []byte {
	if w.messages == nil {
		return nil
	}
	return w.messages
}

type fakeOpener struct {
	mu       sync.Mutex
	err      error
	noDirect bool
	windows  []*fakeWindow
	urls     []string
	names    []string
	features []string
}

func (o *fakeOpener) Open(ctx context.Context, rawURL, name, features string) (oauthpopup.Window, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	w := &fakeWindow{}
	if !o.noDirect {
		w.messages = make(chan []byte, 4)
	}
	o.windows = append(o.windows, w)
	o.urls = append(o.urls, rawURL)
	o.names = append(o.names, name)
	o.features = append(o.features, features)
	return w, nil
}

func (o *fakeOpener) window(i int) *fakeWindow {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.windows[i]
}

type testFixture struct {
	hub       *broadcast.Hub
	opener    *fakeOpener
	handshake *oauthpopup.Handshake
	successes atomic.Int32
	received  chan oauthpopup.Message
	failWith  error
}

func setupTestFixture(t *testing.T, options ...oauthpopup.Option) *testFixture {
	t.Helper()

	f := &testFixture{
		hub:      broadcast.NewHub(),
		opener:   &fakeOpener{},
		received: make(chan oauthpopup.Message, 4),
	}
	providers := oauthpopup.ProviderConfigs("http://localhost:8081/auth", "http://localhost:3000/oauth/callback", "budget-dashboard", []string{"google", "github"})
	onSuccess := func(ctx context.Context, msg oauthpopup.Message) error {
		f.successes.Add(1)
		f.received <- msg
		return f.failWith
	}
	base := []oauthpopup.Option{
		oauthpopup.WithPollInterval(pollInterval),
		oauthpopup.WithSubscriber(func(name string) oauthpopup.Channel {
			return f.hub.Subscribe(name)
		}),
	}
	f.handshake = oauthpopup.New(f.opener, providers, onSuccess, append(base, options...)...)
	t.Cleanup(f.handshake.Close)
	return f
}

func completion(t *testing.T, attempt string) []byte {
	t.Helper()
	raw, err := json.Marshal(oauthpopup.Message{
		Type:         oauthpopup.DefaultMessageType,
		Attempt:      attempt,
		Provider:     "google",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	})
	require.NoError(t, err)
	return raw
}

func waitSettled(t *testing.T, a *oauthpopup.Attempt) (oauthpopup.Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := a.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "attempt never settled")
	return res, err
}

func TestCentered(t *testing.T) {
	f := oauthpopup.Centered(oauthpopup.Screen{Left: 100, Top: 50, Width: 1500, Height: 1000}, 500, 600)
	require.Equal(t, oauthpopup.Features{Width: 500, Height: 600, Left: 600, Top: 250}, f)
	require.Contains(t, f.String(), "width=500,height=600,left=600,top=250")
	require.Contains(t, f.String(), "toolbar=no")

	small := oauthpopup.Centered(oauthpopup.Screen{Width: 300, Height: 300}, 500, 600)
	require.Equal(t, 0, small.Left)
	require.Equal(t, 0, small.Top)
}

func TestOpenPopup_BuildsProviderURL(t *testing.T) {
	f := setupTestFixture(t)

	a, err := f.handshake.OpenPopup(context.Background(), "google", oauthpopup.Screen{Width: 1500, Height: 1000})
	require.NoError(t, err)
	require.Equal(t, oauthpopup.Opened, f.handshake.State())

	u, err := url.Parse(f.opener.urls[0])
	require.NoError(t, err)
	require.Equal(t, "/auth/google", u.Path)
	q := u.Query()
	require.Equal(t, a.ID, q.Get("state"))
	require.Equal(t, "popup", q.Get("display"))
	require.Equal(t, "budget-dashboard", q.Get("client_id"))
	require.Equal(t, "http://localhost:3000/oauth/callback", q.Get("redirect_uri"))

	require.Equal(t, a.ID, f.opener.names[0])
	require.Contains(t, f.opener.features[0], "left=500,top=200")
}

func TestOpenPopup_UnknownProvider(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.handshake.OpenPopup(context.Background(), "myspace", oauthpopup.Screen{})
	require.ErrorIs(t, err, apperrors.ErrUnknownProvider)
	require.Equal(t, oauthpopup.Idle, f.handshake.State())
}

func TestHandshake_BothChannelsFireSucceedsOnce(t *testing.T) {
	f := setupTestFixture(t)
	a, err := f.handshake.OpenPopup(context.Background(), "google", oauthpopup.Screen{})
	require.NoError(t, err)
	win := f.opener.window(0)

	win.messages <- completion(t, a.ID)
	f.hub.Publish(oauthpopup.DefaultChannelName, completion(t, a.ID))

	res, err := waitSettled(t, a)
	require.NoError(t, err)
	require.Equal(t, oauthpopup.Completed, res.State)
	require.Equal(t, "access-1", res.Message.AccessToken)

	// Give a late duplicate the chance to be (wrongly) processed.
	time.Sleep(5 * pollInterval)
	require.Equal(t, int32(1), f.successes.Load())
	require.Equal(t, int32(1), win.closeCalls.Load())
	require.Eventually(t, func() bool { return f.hub.Subscribers(oauthpopup.DefaultChannelName) == 0 }, time.Second, pollInterval)
}

func TestHandshake_BroadcastOnlyPath(t *testing.T) {
	f := setupTestFixture(t)
	f.opener.noDirect = true

	a, err := f.handshake.OpenPopup(context.Background(), "github", oauthpopup.Screen{})
	require.NoError(t, err)

	f.hub.Publish(oauthpopup.DefaultChannelName, completion(t, a.ID))

	res, err := waitSettled(t, a)
	require.NoError(t, err)
	require.Equal(t, oauthpopup.Completed, res.State)
	msg := <-f.received
	require.Equal(t, a.ID, msg.Attempt)
}

func TestHandshake_DirectOnlyPath(t *testing.T) {
	f := setupTestFixture(t, oauthpopup.WithSubscriber(nil))

	a, err := f.handshake.OpenPopup(context.Background(), "google", oauthpopup.Screen{})
	require.NoError(t, err)

	f.opener.window(0).messages <- completion(t, a.ID)

	res, err := waitSettled(t, a)
	require.NoError(t, err)
	require.Equal(t, oauthpopup.Completed, res.State)
	require.Equal(t, "google", res.Message.Provider)
}

func TestHandshake_IgnoresForeignMessages(t *testing.T) {
	f := setupTestFixture(t)
	a, err := f.handshake.OpenPopup(context.Background(), "google", oauthpopup.Screen{})
	require.NoError(t, err)
	win := f.opener.window(0)

	win.messages <- []byte(`not json`)
	win.messages <- []byte(`{"type":"SOMETHING_ELSE"}`)
	win.messages <- []byte(`{"type":"OAUTH_LOGIN_SUCCESS","accessToken":"a","refreshToken":"r"}`)
	f.hub.Publish(oauthpopup.DefaultChannelName, completion(t, "another-attempt"))
	f.hub.Publish(oauthpopup.DefaultChannelName, completion(t, ""))

	time.Sleep(5 * pollInterval)
	require.Zero(t, f.successes.Load())
	require.Equal(t, oauthpopup.Opened, f.handshake.State())

	win.closed.Store(true)
	res, err := waitSettled(t, a)
	require.NoError(t, err)
	require.Equal(t, oauthpopup.Abandoned, res.State)
}

func TestHandshake_ClosedWindowAbandonsWithinPollInterval(t *testing.T) {
	f := setupTestFixture(t)
	a, err := f.handshake.OpenPopup(context.Background(), "google", oauthpopup.Screen{})
	require.NoError(t, err)

	start := time.Now()
	f.opener.window(0).closed.Store(true)

	res, err := waitSettled(t, a)
	require.NoError(t, err)
	require.Equal(t, oauthpopup.Abandoned, res.State)
	require.Less(t, time.Since(start), 20*pollInterval)
	require.Zero(t, f.successes.Load())
	require.Equal(t, oauthpopup.Abandoned, f.handshake.State())

	// A signal after abandonment does nothing.
	f.hub.Publish(oauthpopup.DefaultChannelName, completion(t, a.ID))
	time.Sleep(3 * pollInterval)
	require.Zero(t, f.successes.Load())
}

func TestHandshake_QueuedSuccessWinsOverClose(t *testing.T) {
	f := setupTestFixture(t, oauthpopup.WithSubscriber(nil))
	a, err := f.handshake.OpenPopup(context.Background(), "google", oauthpopup.Screen{})
	require.NoError(t, err)
	win := f.opener.window(0)

	win.arriveWithClose(completion(t, a.ID))
	win.closed.Store(true)

	res, err := waitSettled(t, a)
	require.NoError(t, err)
	require.Equal(t, oauthpopup.Completed, res.State)
	require.Equal(t, int32(1), f.successes.Load())
}

func TestHandshake_BlockedPopup(t *testing.T) {
	f := setupTestFixture(t)
	f.opener.err = errors.New("no display")

	a, err := f.handshake.OpenPopup(context.Background(), "google", oauthpopup.Screen{})
	require.ErrorIs(t, err, apperrors.ErrPopupBlocked)

	select {
	case <-a.Done():
	default:
		t.Fatal("blocked attempt should settle immediately")
	}
	res, err := a.Wait(context.Background())
	require.ErrorIs(t, err, apperrors.ErrPopupBlocked)
	require.Equal(t, oauthpopup.Abandoned, res.State)
	require.Zero(t, f.hub.Subscribers(oauthpopup.DefaultChannelName))
}

func TestHandshake_NewAttemptSupersedesOld(t *testing.T) {
	f := setupTestFixture(t)
	first, err := f.handshake.OpenPopup(context.Background(), "google", oauthpopup.Screen{})
	require.NoError(t, err)
	second, err := f.handshake.OpenPopup(context.Background(), "github", oauthpopup.Screen{})
	require.NoError(t, err)

	_, err = waitSettled(t, first)
	require.ErrorIs(t, err, apperrors.ErrAttemptSuperseded)
	require.True(t, f.opener.window(0).Closed())
	require.Same(t, second, f.handshake.Current())

	// The old attempt's signal is not the current attempt's.
	f.hub.Publish(oauthpopup.DefaultChannelName, completion(t, first.ID))
	time.Sleep(3 * pollInterval)
	require.Zero(t, f.successes.Load())

	f.hub.Publish(oauthpopup.DefaultChannelName, completion(t, second.ID))
	res, err := waitSettled(t, second)
	require.NoError(t, err)
	require.Equal(t, oauthpopup.Completed, res.State)
	require.Equal(t, int32(1), f.successes.Load())
}

func TestHandshake_CloseTearsDown(t *testing.T) {
	f := setupTestFixture(t)
	a, err := f.handshake.OpenPopup(context.Background(), "google", oauthpopup.Screen{})
	require.NoError(t, err)
	win := f.opener.window(0)

	f.handshake.Close()
	f.handshake.Close()
	require.Equal(t, oauthpopup.Idle, f.handshake.State())

	_, err = waitSettled(t, a)
	require.ErrorIs(t, err, apperrors.ErrAttemptSuperseded)
	require.True(t, win.Closed())

	win.messages <- completion(t, a.ID)
	time.Sleep(3 * pollInterval)
	require.Zero(t, f.successes.Load())
}

func TestHandshake_SuccessCallbackError(t *testing.T) {
	f := setupTestFixture(t)
	f.failWith = apperrors.ErrRefreshFailed

	a, err := f.handshake.OpenPopup(context.Background(), "google", oauthpopup.Screen{})
	require.NoError(t, err)
	f.opener.window(0).messages <- completion(t, a.ID)

	res, err := waitSettled(t, a)
	require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
	require.Equal(t, oauthpopup.Completed, res.State)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "IDLE", oauthpopup.Idle.String())
	require.Equal(t, "OPENED", oauthpopup.Opened.String())
	require.Equal(t, "COMPLETED", oauthpopup.Completed.String())
	require.Equal(t, "ABANDONED", oauthpopup.Abandoned.String())
}
