package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwkim3330/webxr/domain"
)

type recorder struct {
	mu           sync.Mutex
	connected    int
	disconnected int
	frames       []string
}

func (r *recorder) Connect(domain.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected++
}

func (r *recorder) Disconnect(domain.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected++
}

func (r *recorder) Handle(_ domain.Connection, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, string(data))
}

func (r *recorder) snapshot() (connected, disconnected int, frames []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected, r.disconnected, append([]string(nil), r.frames...)
}

// startConn serves one upgraded connection backed by rec and returns the
// client side together with the server-side Conn.
func startConn(t *testing.T, rec *recorder) (*websocket.Conn, *Conn) {
	t.Helper()

	serverConn := make(chan *Conn, 1)
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewConn("c1", wsConn, rec, rec, Options{})
		c.Start()
		serverConn <- c
	}))
	t.Cleanup(ts.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case c := <-serverConn:
		return client, c
	case <-time.After(2 * time.Second):
		t.Fatal("server connection not started")
		return nil, nil
	}
}

func TestConn_IgnoresNonTextFrames(t *testing.T) {
	rec := &recorder{}
	client, _ := startConn(t, rec)

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte(`{"type":"join"}`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"type":"offer"}`)))

	require.Eventually(t, func() bool {
		_, _, frames := rec.snapshot()
		return len(frames) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, _, frames := rec.snapshot()
	assert.Equal(t, []string{`{"type":"offer"}`}, frames)
}

func TestConn_SendReachesPeer(t *testing.T) {
	rec := &recorder{}
	client, c := startConn(t, rec)

	require.NoError(t, c.Send([]byte(`{"type":"sender-ready"}`)))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	assert.Equal(t, `{"type":"sender-ready"}`, string(data))
}

func TestConn_PeerDisconnect(t *testing.T) {
	rec := &recorder{}
	client, c := startConn(t, rec)
	assert.True(t, c.Open())

	require.NoError(t, client.Close())

	require.Eventually(t, func() bool { return !c.Open() }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, disconnected, _ := rec.snapshot()
		return disconnected == 1
	}, 2*time.Second, 10*time.Millisecond)

	connected, _, _ := rec.snapshot()
	assert.Equal(t, 1, connected)
	assert.ErrorIs(t, c.Send([]byte("late")), ErrClosed)

	select {
	case <-c.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestConn_CloseSendsCloseFrame(t *testing.T) {
	rec := &recorder{}
	client, c := startConn(t, rec)

	require.NoError(t, c.Close())

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	require.Eventually(t, func() bool {
		_, disconnected, _ := rec.snapshot()
		return disconnected == 1
	}, 2*time.Second, 10*time.Millisecond)
}
