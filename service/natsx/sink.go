package natsx

import (
	"context"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Sink publishes client events to the outbound subject and flushes each one
// so that a returned nil means the server has it.
type Sink struct {
	conn    *nats.Conn
	subject string
	log     *zap.Logger
}

func NewSink(conn *nats.Conn, subject string, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{conn: conn, subject: subject, log: log.Named("nats.producer")}
}

func (s *Sink) Publish(ctx context.Context, key string, value []byte) error {
	if err := s.conn.PublishMsg(newMsg(s.subject, key, value)); err != nil {
		return errors.Wrapf(err, "nats publish %s", s.subject)
	}
	flush := s.conn.Flush
	if _, ok := ctx.Deadline(); ok {
		flush = func() error { return s.conn.FlushWithContext(ctx) }
	}
	if err := flush(); err != nil {
		return errors.Wrapf(err, "nats flush %s", s.subject)
	}
	s.log.Debug("sent", zap.String("subject", s.subject), zap.String("key", key))
	return nil
}

// Close drains the connection, flushing pending publishes and letting
// subscriptions finish their in-flight callbacks.
func (s *Sink) Close() error {
	if s.conn.IsClosed() {
		return nil
	}
	return s.conn.Drain()
}

func newMsg(subject, key string, value []byte) *nats.Msg {
	m := nats.NewMsg(subject)
	m.Data = value
	m.Header.Set(HeaderKey, key)
	m.Header.Set(HeaderEventID, uuid.NewString())
	return m
}
