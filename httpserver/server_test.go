package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwkim3330/webxr/config"
	"github.com/hwkim3330/webxr/hub"
	"github.com/hwkim3330/webxr/metrics"
	"github.com/hwkim3330/webxr/protocol"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *hub.Table) {
	t.Helper()
	ts, _, rooms := newTestServerWithHandle(t, mutate)
	return ts, rooms
}

func newTestServerWithHandle(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *Server, *hub.Table) {
	t.Helper()

	cfg := config.Default()
	cfg.StaticDir = ""
	cfg.ICEServers = []webrtc.ICEServer{{URLs: config.DefaultSTUNURLs}}
	if mutate != nil {
		mutate(&cfg)
	}

	rooms := hub.New()
	registry := hub.NewRegistry()
	m := metrics.New()
	s := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), Deps{
		Rooms:   rooms,
		Handler: protocol.NewHandler(rooms, registry, m, cfg.DefaultRoom),
		Metrics: m,
	})

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, s, rooms
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestServer_SignalingRoundTrip(t *testing.T) {
	ts, rooms := newTestServer(t, nil)

	sub := dial(t, ts, "/")
	require.NoError(t, sub.WriteJSON(map[string]string{"type": "join", "room": "alpha", "clientType": "receiver"}))

	// Joins are handled in order per connection, so wait for the room.
	require.Eventually(t, func() bool { return rooms.Has("alpha") }, 2*time.Second, 10*time.Millisecond)

	pub := dial(t, ts, "/ws")
	require.NoError(t, pub.WriteJSON(map[string]string{"type": "join", "room": "alpha", "clientType": "sender"}))

	assert.Equal(t, "create-offer", readMessage(t, pub)["type"])
	assert.Equal(t, "sender-ready", readMessage(t, sub)["type"])

	require.NoError(t, pub.WriteJSON(map[string]any{"type": "offer", "offer": map[string]string{"type": "offer", "sdp": "x"}}))
	msg := readMessage(t, sub)
	assert.Equal(t, "offer", msg["type"])
	assert.Equal(t, map[string]any{"type": "offer", "sdp": "x"}, msg["offer"])

	require.NoError(t, sub.WriteJSON(map[string]any{"type": "answer", "answer": map[string]string{"sdp": "y"}}))
	msg = readMessage(t, pub)
	assert.Equal(t, "answer", msg["type"])

	require.NoError(t, pub.Close())
	assert.Equal(t, "sender-left", readMessage(t, sub)["type"])

	require.NoError(t, sub.Close())
	require.Eventually(t, func() bool { return !rooms.Has("alpha") }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_InvalidMessageKeepsConnection(t *testing.T) {
	ts, rooms := newTestServer(t, nil)

	c := dial(t, ts, "/")
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, c.WriteJSON(map[string]string{"type": "join", "clientType": "sender"}))

	require.Eventually(t, func() bool { return rooms.Has(protocol.DefaultRoom) }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_Healthz(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	var body map[string]bool
	resp := getJSON(t, ts.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body["ok"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestServer_ReadyzBeforeServe(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp := getJSON(t, ts.URL+"/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_StatsAndRooms(t *testing.T) {
	ts, rooms := newTestServer(t, nil)

	var rb struct {
		Rooms []hub.RoomInfo `json:"rooms"`
	}
	getJSON(t, ts.URL+"/rooms", &rb)
	assert.NotNil(t, rb.Rooms)
	assert.Empty(t, rb.Rooms)

	c := dial(t, ts, "/")
	require.NoError(t, c.WriteJSON(map[string]string{"type": "join", "room": "lobby", "clientType": "receiver"}))
	require.Eventually(t, func() bool { return rooms.Has("lobby") }, 2*time.Second, 10*time.Millisecond)

	var stats map[string]int
	getJSON(t, ts.URL+"/stats", &stats)
	assert.Equal(t, map[string]int{"rooms": 1, "clients": 1}, stats)

	getJSON(t, ts.URL+"/rooms", &rb)
	assert.Equal(t, []hub.RoomInfo{{ID: "lobby", Subscribers: 1}}, rb.Rooms)
}

func TestServer_ICEServers(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		origin     string
		wantStatus int
	}{
		{name: "no origin", wantStatus: http.StatusOK},
		{name: "allowed origin", origins: []string{"https://viewer.example"}, origin: "https://viewer.example", wantStatus: http.StatusOK},
		{name: "wildcard", origins: []string{"*"}, origin: "https://any.example", wantStatus: http.StatusOK},
		{name: "rejected origin", origins: []string{"https://viewer.example"}, origin: "https://evil.example", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newTestServer(t, func(c *config.Config) { c.AllowedOrigins = tt.origins })

			req, err := http.NewRequest(http.MethodGet, ts.URL+"/webrtc/ice", nil)
			require.NoError(t, err)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus != http.StatusOK {
				return
			}

			var body struct {
				ICEServers []struct {
					URLs []string `json:"urls"`
				} `json:"iceServers"`
			}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.Len(t, body.ICEServers, 1)
			assert.Equal(t, config.DefaultSTUNURLs, body.ICEServers[0].URLs)
			if tt.origin != "" {
				assert.Equal(t, tt.origin, resp.Header.Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestServer_WebsocketOriginRejected(t *testing.T) {
	ts, _ := newTestServer(t, func(c *config.Config) { c.AllowedOrigins = []string{"https://viewer.example"} })

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServer_Metrics(t *testing.T) {
	ts, rooms := newTestServer(t, nil)

	c := dial(t, ts, "/")
	require.NoError(t, c.WriteJSON(map[string]string{"type": "join", "room": "m", "clientType": "receiver"}))
	require.Eventually(t, func() bool { return rooms.Has("m") }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `webxr_signal_events_total{event="join"} 1`)
	assert.Contains(t, string(body), "webxr_signal_rooms 1")
}

func TestServer_StaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>viewer</h1>"), 0o644))

	ts, _ := newTestServer(t, func(c *config.Config) { c.StaticDir = dir })

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "viewer")
}

func TestServer_NoStaticDir(t *testing.T) {
	ts, _ := newTestServer(t, nil)

	resp := getJSON(t, ts.URL+"/receiver.html", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ShutdownClosesWebsockets(t *testing.T) {
	ts, s, rooms := newTestServerWithHandle(t, nil)

	pub := dial(t, ts, "/")
	sub := dial(t, ts, "/ws")
	require.NoError(t, pub.WriteJSON(map[string]string{"type": "join", "room": "alpha", "clientType": "sender"}))
	require.NoError(t, sub.WriteJSON(map[string]string{"type": "join", "room": "alpha", "clientType": "receiver"}))
	assert.Equal(t, "create-offer", readMessage(t, pub)["type"])
	assert.Equal(t, "sender-ready", readMessage(t, sub)["type"])
	assert.Equal(t, 2, s.OpenConnections())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	for _, c := range []*websocket.Conn{pub, sub} {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
		// The subscriber may see sender-left before its own close frame.
		var err error
		for err == nil {
			_, _, err = c.ReadMessage()
		}
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	}

	require.Eventually(t, func() bool { return !rooms.Has("alpha") }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return s.OpenConnections() == 0 }, 2*time.Second, 10*time.Millisecond)
}
