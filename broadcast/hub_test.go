package broadcast_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jrsteele09/budget-session/broadcast"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *broadcast.Subscription) []byte {
	t.Helper()
	select {
	case msg := <-sub.C():
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestHub_PublishSkipsSender(t *testing.T) {
	hub := broadcast.NewHub()
	a := hub.Subscribe("oauth-login")
	b := hub.Subscribe("oauth-login")
	other := hub.Subscribe("budget-navigation")
	defer a.Close()
	defer b.Close()
	defer other.Close()

	require.Equal(t, 1, a.Publish([]byte(`{"type":"OAUTH_LOGIN_SUCCESS"}`)))
	require.JSONEq(t, `{"type":"OAUTH_LOGIN_SUCCESS"}`, string(receive(t, b)))

	select {
	case <-a.C():
		t.Fatal("sender received its own message")
	case <-other.C():
		t.Fatal("message leaked to another channel")
	default:
	}

	require.Equal(t, 2, hub.Publish("oauth-login", []byte("x")))
}

func TestSubscription_Close(t *testing.T) {
	hub := broadcast.NewHub()
	sub := hub.Subscribe("oauth-login")
	require.Equal(t, 1, hub.Subscribers("oauth-login"))

	sub.Close()
	sub.Close()

	require.Zero(t, hub.Subscribers("oauth-login"))
	_, ok := <-sub.C()
	require.False(t, ok)
	require.Zero(t, hub.Publish("oauth-login", []byte("late")))
}

func TestHub_WebSocketBridge(t *testing.T) {
	hub := broadcast.NewHub()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{channel}", hub.WebSocketHandler())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	listener := hub.Subscribe("oauth-login")
	defer listener.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/oauth-login"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers("oauth-login") == 2 }, time.Second, 5*time.Millisecond)

	// Page to hub.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"OAUTH_LOGIN_SUCCESS","attempt":"a-1"}`)))
	require.JSONEq(t, `{"type":"OAUTH_LOGIN_SUCCESS","attempt":"a-1"}`, string(receive(t, listener)))

	// Hub to page.
	require.Equal(t, 1, listener.Publish([]byte(`{"type":"navigate","location":"/login"}`)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	messageType, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)
	require.JSONEq(t, `{"type":"navigate","location":"/login"}`, string(msg))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Subscribers("oauth-login") == 1 }, time.Second, 5*time.Millisecond)
}

func TestHub_WebSocketRejectsForeignOrigin(t *testing.T) {
	hub := broadcast.NewHub()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{channel}", hub.WebSocketHandler("http://localhost:3000"))
	srv := httptest.NewServer(mux)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/oauth-login"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://evil.example"}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Zero(t, hub.Subscribers("oauth-login"))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://localhost:3000"}})
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers("oauth-login") == 1 }, time.Second, 5*time.Millisecond)
}
