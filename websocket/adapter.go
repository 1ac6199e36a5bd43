package websocket

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hwkim3330/webxr/domain"
)

var (
	ErrClosed        = errors.New("connection closed")
	ErrSendQueueFull = errors.New("send queue full")
)

// Options tune one connection. Zero values fall back to the defaults below.
type Options struct {
	MaxMessageBytes int64
	SendQueueSize   int
	PongWait        time.Duration
	PingInterval    time.Duration
	WriteWait       time.Duration
}

const (
	DefaultMaxMessageBytes = 64 * 1024 // SDP offers routinely exceed 4 KiB
	DefaultSendQueueSize   = 256
	DefaultPongWait        = 60 * time.Second
	DefaultWriteWait       = 10 * time.Second
)

func (o Options) withDefaults() Options {
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = DefaultSendQueueSize
	}
	if o.PongWait <= 0 {
		o.PongWait = DefaultPongWait
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = (o.PongWait * 9) / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = DefaultWriteWait
	}
	return o
}

// Conn adapts a gorilla websocket to domain.Connection. All reads happen on
// readPump and all writes on writePump.
type Conn struct {
	id        string
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	open      atomic.Bool
	closeOnce sync.Once
	opts      Options
	lifecycle domain.Lifecycle
	handler   domain.MessageHandler
}

func NewConn(id string, ws *websocket.Conn, l domain.Lifecycle, h domain.MessageHandler, opts Options) *Conn {
	opts = opts.withDefaults()
	c := &Conn{
		id:        id,
		ws:        ws,
		send:      make(chan []byte, opts.SendQueueSize),
		done:      make(chan struct{}),
		opts:      opts,
		lifecycle: l,
		handler:   h,
	}
	c.open.Store(true)
	return c
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Open() bool { return c.open.Load() }

// Send queues data without blocking.
func (c *Conn) Send(data []byte) error {
	if !c.open.Load() {
		return ErrClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Done is closed once the connection stops accepting sends.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close sends a close frame to the peer and tears down the socket. The read
// pump then runs the disconnect.
func (c *Conn) Close() error {
	c.markClosed()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.opts.WriteWait))
	return c.ws.Close()
}

func (c *Conn) markClosed() {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)
	})
}

func (c *Conn) Start() {
	c.lifecycle.Connect(c)
	go c.writePump()
	go c.readPump()
}

func (c *Conn) readPump() {
	defer func() {
		c.markClosed()
		c.lifecycle.Disconnect(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.opts.MaxMessageBytes)
	c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.Warn("read error", "clientId", c.id, "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			slog.Warn("non-text frame ignored", "clientId", c.id, "frameType", msgType)
			continue
		}

		c.handler.Handle(c, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.markClosed()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.markClosed()
				return
			}
		case <-c.done:
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait))
			return
		}
	}
}
