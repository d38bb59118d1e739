// Package natsx carries assignment events over core NATS subjects.
package natsx

import (
	"strings"
	"time"

	"PPBridge/global/config"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// HeaderKey holds the identity the event is keyed by.
	HeaderKey = "key"
	// HeaderEventID holds a per-publish id.
	HeaderEventID = "event-id"
)

// Connect dials the configured servers and keeps reconnecting forever.
func Connect(nc config.NatsConfig, log *zap.Logger) (*nats.Conn, error) {
	if len(nc.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if log == nil {
		log = zap.NewNop()
	}
	reconnectWait := nc.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 500 * time.Millisecond
	}
	timeout := nc.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	conn, err := nats.Connect(strings.Join(nc.Servers, ","),
		nats.Name(nc.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}
	return conn, nil
}
