package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptions_WithDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, int64(DefaultMaxMessageBytes), opts.MaxMessageBytes)
	assert.Equal(t, DefaultSendQueueSize, opts.SendQueueSize)
	assert.Equal(t, DefaultPongWait, opts.PongWait)
	assert.Equal(t, 54*time.Second, opts.PingInterval)
	assert.Equal(t, DefaultWriteWait, opts.WriteWait)

	// A ping interval that would outlive the pong deadline is pulled in.
	opts = Options{PongWait: 10 * time.Second, PingInterval: 20 * time.Second}.withDefaults()
	assert.Equal(t, 9*time.Second, opts.PingInterval)
}

func TestConn_SendQueueFull(t *testing.T) {
	c := NewConn("c1", nil, nil, nil, Options{SendQueueSize: 2})

	assert.NoError(t, c.Send([]byte("a")))
	assert.NoError(t, c.Send([]byte("b")))
	assert.ErrorIs(t, c.Send([]byte("c")), ErrSendQueueFull)
	assert.True(t, c.Open())
}

func TestConn_SendAfterClose(t *testing.T) {
	c := NewConn("c1", nil, nil, nil, Options{})

	c.markClosed()
	c.markClosed()

	assert.False(t, c.Open())
	assert.ErrorIs(t, c.Send([]byte("a")), ErrClosed)
}
