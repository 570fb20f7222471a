package server

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"greenroom/internal/notifications"

	"github.com/gofiber/fiber/v2"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWebsocketTestServer(t *testing.T) (*Server, *fiber.App, net.Listener) {
	t.Helper()
	s := &Server{hub: notifications.NewHub()}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws/sessions/:sessionId", s.SessionEventsUpgrade, s.SessionEventsHandler())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return s, app, ln
}

func readMessage(t *testing.T, conn *gorillaws.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestSessionEvents_SubscribeAndReceive(t *testing.T) {
	s, _, ln := newWebsocketTestServer(t)

	url := "ws://" + ln.Addr().String() + "/ws/sessions/keynote"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	// The subscription confirmation arrives first, so once it is read the
	// client is registered and broadcasts will reach it.
	assert.JSONEq(t,
		`{"type":"connected","payload":{"session_id":"keynote"}}`,
		readMessage(t, conn))
	assert.Equal(t, 1, s.hub.SessionConnCount("keynote"))

	s.hub.BroadcastSession("keynote", `{"type":"vote_updated","payload":{"question_id":7,"votes":3,"added":true}}`)
	assert.JSONEq(t,
		`{"type":"vote_updated","payload":{"question_id":7,"votes":3,"added":true}}`,
		readMessage(t, conn))
}

func TestSessionEvents_OtherSessionIsSilent(t *testing.T) {
	s, _, ln := newWebsocketTestServer(t)

	url := "ws://" + ln.Addr().String() + "/ws/sessions/track-a"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	readMessage(t, conn) // connected

	s.hub.BroadcastSession("track-b", `{"type":"question_added","payload":{}}`)
	s.hub.BroadcastSession("track-a", `{"type":"question_deleted","payload":{"question_id":1}}`)

	// Only the subscribed session's event comes through.
	assert.JSONEq(t,
		`{"type":"question_deleted","payload":{"question_id":1}}`,
		readMessage(t, conn))
}

func TestSessionEvents_PlainHTTPIsRejected(t *testing.T) {
	s := &Server{hub: notifications.NewHub()}
	app := fiber.New()
	app.Get("/ws/sessions/:sessionId", s.SessionEventsUpgrade, s.SessionEventsHandler())

	req := httptest.NewRequest(http.MethodGet, "/ws/sessions/keynote", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}
