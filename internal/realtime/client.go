package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nswire/nswire"
)

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
)

var _ nswire.Client = (*Client)(nil)

// Client is one live connection inside a namespace.
type Client struct {
	id      string
	nsPath  string
	conn    *websocket.Conn
	userCtx *nswire.Ctx

	ctx    context.Context
	cancel context.CancelFunc
	sendCh chan []byte

	mu     sync.RWMutex
	closed bool

	lastPing atomic.Int64 // UnixNano
	lastPong atomic.Int64

	window *slidingWindow

	teardownOnce sync.Once
}

// newClient wires a freshly upgraded connection. readWait is the read
// deadline window; pongs and reads both extend it.
func newClient(id, nsPath string, conn *websocket.Conn, userCtx *nswire.Ctx, window *slidingWindow, readWait time.Duration) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		id:      id,
		nsPath:  nsPath,
		conn:    conn,
		userCtx: userCtx,
		ctx:     ctx,
		cancel:  cancel,
		sendCh:  make(chan []byte, sendBufferSize),
		window:  window,
	}
	now := time.Now()
	c.lastPing.Store(now.UnixNano())
	c.lastPong.Store(now.UnixNano())

	conn.SetPongHandler(func(string) error {
		c.lastPong.Store(time.Now().UnixNano())
		return c.conn.SetReadDeadline(time.Now().Add(readWait))
	})

	go c.writePump()
	return c
}

func (c *Client) ID() string        { return c.id }
func (c *Client) Ctx() *nswire.Ctx  { return c.userCtx }
func (c *Client) Namespace() string { return c.nsPath }

// IsAlive returns true if the connection is still active.
func (c *Client) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}

// LastPong is the time of the most recent pong (or of the handshake, before
// any pong arrives).
func (c *Client) LastPong() time.Time {
	return time.Unix(0, c.lastPong.Load())
}

// Send queues a pre-serialized frame for delivery. It never blocks; a full
// send buffer drops the frame and reports an error so slow consumers cannot
// stall fan-out.
func (c *Client) Send(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New(nswire.ErrConnectionClosed)
	}
	select {
	case c.sendCh <- frame:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

// Ping writes a ping control frame and stamps lastPing. Safe to call
// concurrently with the write pump.
func (c *Client) Ping() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New(nswire.ErrConnectionClosed)
	}
	c.lastPing.Store(time.Now().UnixNano())
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// allow applies the per-client sliding-window frequency check.
func (c *Client) allow(now time.Time) bool {
	return c.window.allow(now)
}

// Close shuts the connection down with a close code and optional reason.
// Idempotent.
func (c *Client) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()

	message := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage, message, deadline)

	close(c.sendCh)
	return c.conn.Close()
}

// writePump pumps queued frames to the connection. Keepalive pings come from
// the health sweep, not from here.
func (c *Client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case frame, ok := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}
