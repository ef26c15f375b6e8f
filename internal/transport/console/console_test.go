package console

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/opsbot/internal/bot"
	"github.com/ashureev/opsbot/internal/frame"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"
)

// echoDispatcher answers every message through the hub.
type echoDispatcher struct {
	hub  *Hub
	seen chan bot.Message
}

func (d *echoDispatcher) Dispatch(ctx context.Context, msg bot.Message) {
	d.seen <- msg
	_ = d.hub.Send(ctx, msg.ChatID, frame.Frame{Text: "echo: " + msg.Text, ParseMode: "HTML"})
}

func newTestHub(t *testing.T) (*Hub, *echoDispatcher, *httptest.Server) {
	t.Helper()
	hub := NewHub("s3cret", nil, nil)
	d := &echoDispatcher{hub: hub, seen: make(chan bot.Message, 8)}
	hub.Attach(d)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, d, srv
}

func dial(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=" + token
	return websocket.Dial(ctx, url, nil)
}

func TestHub_RoundTrip(t *testing.T) {
	hub, d, srv := newTestHub(t)

	conn, _, err := dial(t, srv, "s3cret")
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var hello outbound
	require.NoError(t, wsjson.Read(ctx, conn, &hello))
	require.Equal(t, "hello", hello.Type)
	require.Negative(t, hello.ChatID)
	require.True(t, hub.Owns(hello.ChatID))

	require.NoError(t, wsjson.Write(ctx, conn, inbound{Type: "message", Text: "/start"}))

	msg := <-d.seen
	require.Equal(t, hello.ChatID, msg.ChatID)
	require.True(t, msg.Trusted)
	require.Equal(t, "operator", msg.User.FirstName)

	var out outbound
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	require.Equal(t, outbound{Type: "frame", Text: "echo: /start", ParseMode: "HTML"}, out)
}

func TestHub_MalformedMessage(t *testing.T) {
	_, d, srv := newTestHub(t)

	conn, _, err := dial(t, srv, "s3cret")
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var hello outbound
	require.NoError(t, wsjson.Read(ctx, conn, &hello))
	require.NoError(t, wsjson.Write(ctx, conn, inbound{Type: "ping"}))

	var out outbound
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	require.Equal(t, "error", out.Type)
	require.Empty(t, d.seen)
}

func TestHub_RejectsBadToken(t *testing.T) {
	_, _, srv := newTestHub(t)

	_, resp, err := dial(t, srv, "wrong")
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHub_DisabledWithoutToken(t *testing.T) {
	hub := NewHub("", nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/?token=", nil)
	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHub_BearerHeader(t *testing.T) {
	hub := NewHub("s3cret", nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	require.True(t, hub.authorized(req))
	req.Header.Set("Authorization", "Bearer nope")
	require.False(t, hub.authorized(req))
}

func TestHub_UnregisterOnClose(t *testing.T) {
	hub, _, srv := newTestHub(t)

	conn, _, err := dial(t, srv, "s3cret")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var hello outbound
	require.NoError(t, wsjson.Read(ctx, conn, &hello))
	require.Equal(t, 1, hub.Len())

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	err = hub.Send(context.Background(), hello.ChatID, frame.Frame{Text: "late"})
	require.ErrorIs(t, err, ErrUnknownChat)
}

func TestHub_CloseAllDoesNotBlockSends(t *testing.T) {
	hub, _, srv := newTestHub(t)

	conn, _, err := dial(t, srv, "s3cret")
	require.NoError(t, err)
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var hello outbound
	require.NoError(t, wsjson.Read(ctx, conn, &hello))

	// The client is not reading, so the close handshake stays pending.
	closed := make(chan struct{})
	go func() {
		hub.CloseAll()
		close(closed)
	}()
	time.Sleep(50 * time.Millisecond)

	owns := make(chan bool, 1)
	go func() { owns <- hub.Owns(hello.ChatID) }()
	select {
	case <-owns:
	case <-time.After(time.Second):
		t.Fatal("Owns blocked while connections were closing")
	}

	_, _, err = conn.Read(ctx)
	require.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("CloseAll did not return")
	}
}
