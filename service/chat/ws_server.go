// Package chat is the real-time edge of the bridge: it upgrades client
// WebSocket connections, attaches them to the bridge and relays the frames
// clients send to the publisher.
package chat

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"PPBridge/service/bridge"
	"PPBridge/tools/ids"
	"PPBridge/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxFrameBytes = 4096

// Options configures the WebSocket endpoint.
type Options struct {
	Client ClientOptions
	// CheckOrigin defaults to accepting every origin; game pages are served
	// from other hosts.
	CheckOrigin func(r *http.Request) bool
}

// Server handles GET /ws?userId=<id>.
type Server struct {
	bridge   *bridge.Bridge
	pub      *bridge.Publisher
	opts     Options
	upgrader websocket.Upgrader
	log      *zap.Logger

	wg sync.WaitGroup
}

func NewServer(b *bridge.Bridge, pub *bridge.Publisher, opts Options, log *zap.Logger) *Server {
	safe.MustNotNil(b, "bridge")
	safe.MustNotNil(pub, "publisher")
	if log == nil {
		log = zap.NewNop()
	}
	check := opts.CheckOrigin
	if check == nil {
		check = func(*http.Request) bool { return true }
	}
	return &Server{
		bridge: b,
		pub:    pub,
		opts:   opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     check,
		},
		log: log.Named("ws"),
	}
}

// HandleWS upgrades the request and runs the connection until the peer goes
// away or the bridge closes it.
func (s *Server) HandleWS(c *gin.Context) {
	identity := c.Query("userId")
	if identity == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the error response.
		s.log.Info("upgrade failed", zap.String("userId", identity), zap.Error(err))
		return
	}

	client := NewClient(ids.GenerateString(), identity, ws, s.opts.Client, s.log)
	go client.writePump()

	// Welcome goes first so it always precedes any session-start.
	_ = client.Enqueue(bridge.Welcome(identity, client.ID()).Encode())
	h := s.bridge.Attach(identity, client)
	s.log.Info("client connected", zap.String("userId", identity), zap.String("connId", client.ID()))

	s.readLoop(client)

	s.bridge.Detach(h)
	_ = client.Close()
	<-client.Done()
	s.log.Info("client disconnected", zap.String("userId", identity), zap.String("connId", client.ID()))
}

func (s *Server) readLoop(client *Client) {
	ws := client.ws
	ws.SetReadLimit(maxFrameBytes)
	if p := client.opts.PingInterval; p > 0 {
		// A peer that stops answering pings is dropped after two intervals.
		wait := 2 * p
		_ = ws.SetReadDeadline(time.Now().Add(wait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wait))
		})
	}

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			s.logReadError(client, err)
			return
		}
		if p := client.opts.PingInterval; p > 0 {
			_ = ws.SetReadDeadline(time.Now().Add(2 * p))
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		ev, err := ParseClientFrame(data)
		if err != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			s.log.Warn("unreadable client frame",
				zap.String("connId", client.ID()),
				zap.ByteString("sample", sample),
				zap.Error(err),
			)
			continue
		}
		s.pub.Submit(ev)
	}
}

func (s *Server) logReadError(client *Client, err error) {
	fields := []zap.Field{zap.String("connId", client.ID()), zap.Error(err)}
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		s.log.Debug("peer closed", fields...)
	case isTimeout(err):
		s.log.Info("peer stopped answering pings", fields...)
	default:
		select {
		case <-client.done:
			s.log.Debug("connection closed by server", fields...)
		default:
			s.log.Info("read failed", fields...)
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// Wait blocks until every connection handler has returned.
func (s *Server) Wait() { s.wg.Wait() }

// ParseClientFrame decodes a client request {"userId": ..., "game": ...}.
// Field validation is left to the publisher.
func ParseClientFrame(data []byte) (bridge.AssignmentEvent, error) {
	var ev bridge.AssignmentEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return bridge.AssignmentEvent{}, err
	}
	return ev, nil
}
