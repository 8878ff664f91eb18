package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidlock/squire/internal/channel"
	"github.com/voidlock/squire/internal/config"
	"github.com/voidlock/squire/internal/domain"
	"github.com/voidlock/squire/internal/logging"
	"github.com/voidlock/squire/internal/relay"
)

const testToken = "secret-token"

func newTestServer(t *testing.T) (*Server, *httptest.Server, *relay.MemorySessionStore) {
	t.Helper()
	log := logging.Discard()
	sessions := relay.NewMemorySessionStore()
	channels := channel.NewRegistry(log)

	srv := New(config.GatewayConfig{
		Enabled: true,
		Port:    0,
		Auth:    config.GatewayAuth{Token: testToken},
	}, sessions, channels, log)
	channels.Register(srv)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts, sessions
}

func get(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthzNoAuth(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp := get(t, ts.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestSessionsRequiresToken(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp := get(t, ts.URL+"/api/sessions", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = get(t, ts.URL+"/api/sessions", "wrong-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = get(t, ts.URL+"/api/sessions", testToken)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionsListing(t *testing.T) {
	_, ts, sessions := newTestServer(t)

	key := domain.ConversationKey{ChannelID: "irc", ChatID: "#dev"}
	sessions.TryAcquire(key)
	sessions.Release(key, "sess-1", true)

	resp := get(t, ts.URL+"/api/sessions", testToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Sessions []domain.Session `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Sessions, 1)
	assert.Equal(t, "sess-1", body.Sessions[0].Handle)
	assert.Equal(t, 1, body.Sessions[0].TurnCount)
}

func TestChannelsStatus(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp := get(t, ts.URL+"/api/channels", testToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Channels []domain.ChannelStatus `json:"channels"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Channels, 1)
	assert.Equal(t, "gateway", body.Channels[0].ChannelID)
}

func TestEmptyConfiguredTokenDeniesEverything(t *testing.T) {
	log := logging.Discard()
	srv := New(config.GatewayConfig{}, relay.NewMemorySessionStore(), channel.NewRegistry(log), log)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// No token configured means no request can authenticate, not even an
	// empty one.
	resp := get(t, ts.URL+"/api/sessions", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func wsURL(httpURL, path string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + path
}

func TestChatRoundTrip(t *testing.T) {
	srv, ts, _ := newTestServer(t)

	// Echo each mention straight back through the channel interface, the
	// way the relay's streamer delivers fragments.
	srv.OnMention(func(ev domain.MentionEvent) {
		err := srv.Send(context.Background(), domain.OutboundMessage{
			ChannelID: "gateway",
			To:        ev.ChatID,
			Body:      "echo: " + ev.Text,
		})
		assert.NoError(t, err)
	})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, "/api/chat?token="+testToken), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(chatFrame{Type: "prompt", Body: "hello", From: "alice"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame chatFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "message", frame.Type)
	assert.Equal(t, "echo: hello", frame.Body)
}

func TestChatRejectsBadToken(t *testing.T) {
	_, ts, _ := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, "/api/chat?token=nope"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatResetFrame(t *testing.T) {
	srv, ts, _ := newTestServer(t)

	resets := make(chan domain.MentionEvent, 1)
	srv.OnReset(func(ev domain.MentionEvent) { resets <- ev })

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL, "/api/chat?token="+testToken), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(chatFrame{Type: "reset"}))

	select {
	case ev := <-resets:
		assert.Equal(t, "gateway", ev.ChannelID)
		assert.NotEmpty(t, ev.ChatID)
	case <-time.After(2 * time.Second):
		t.Fatal("reset frame was not dispatched")
	}
}

func TestSendUnknownConnection(t *testing.T) {
	srv, _, _ := newTestServer(t)
	err := srv.Send(context.Background(), domain.OutboundMessage{To: "missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such connection")
}
