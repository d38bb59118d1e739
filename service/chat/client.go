package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrClientClosed = errors.New("client closed")
	ErrQueueFull    = errors.New("send queue full")
)

// ClientOptions tunes the per-connection writer.
type ClientOptions struct {
	SendQueue    int
	WriteTimeout time.Duration
	// PingInterval <= 0 disables keep-alive pings.
	PingInterval time.Duration
}

func (o *ClientOptions) norm() {
	if o.SendQueue <= 0 {
		o.SendQueue = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
}

// Client is one WebSocket connection. All writes to the socket happen on the
// writer goroutine; Enqueue only hands bytes to it.
type Client struct {
	id       string
	identity string
	ws       *websocket.Conn
	opts     ClientOptions
	log      *zap.Logger

	send      chan []byte
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func NewClient(id, identity string, ws *websocket.Conn, opts ClientOptions, log *zap.Logger) *Client {
	opts.norm()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		id:       id,
		identity: identity,
		ws:       ws,
		opts:     opts,
		log:      log.With(zap.String("connId", id), zap.String("userId", identity)),
		send:     make(chan []byte, opts.SendQueue),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (c *Client) ID() string       { return c.id }
func (c *Client) Identity() string { return c.identity }

// Enqueue never blocks. A full queue is reported as ErrQueueFull.
func (c *Client) Enqueue(msg []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close asks the writer to flush what is queued, send a close frame and shut
// the socket. Safe to call more than once and from any goroutine.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Done is closed once the writer has shut the socket.
func (c *Client) Done() <-chan struct{} { return c.stopped }

// writePump owns every write to ws.
func (c *Client) writePump() {
	var tick <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer close(c.stopped)
	defer c.ws.Close()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				c.log.Info("write failed", zap.Error(err))
				_ = c.Close()
				return
			}
		case <-tick:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Info("ping failed", zap.Error(err))
				_ = c.Close()
				return
			}
		case <-c.done:
			c.flush()
			deadline := time.Now().Add(c.opts.WriteTimeout)
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

func (c *Client) write(msg []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

// flush writes whatever is already queued, without waiting for more.
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
