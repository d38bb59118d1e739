package natsx

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Source subscribes to the inbound subject. Core NATS invokes a
// subscription's callback serially, so events reach the handler in arrival
// order.
type Source struct {
	conn    *nats.Conn
	subject string
	queue   string
	log     *zap.Logger
}

// NewSource subscribes to subject, joining queue when it is non-empty so that
// several bridge instances share the load.
func NewSource(conn *nats.Conn, subject, queue string, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{conn: conn, subject: subject, queue: queue, log: log.Named("nats.consumer")}
}

func (s *Source) Run(ctx context.Context, handle func(ctx context.Context, key, value []byte) error) error {
	cb := func(m *nats.Msg) {
		if err := handle(ctx, keyOf(m), m.Data); err != nil {
			s.log.Warn("handler error", zap.String("subject", m.Subject), zap.Error(err))
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if s.queue == "" {
		sub, err = s.conn.Subscribe(s.subject, cb)
	} else {
		sub, err = s.conn.QueueSubscribe(s.subject, s.queue, cb)
	}
	if err != nil {
		return errors.Wrapf(err, "nats subscribe %s", s.subject)
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
	s.log.Info("subscribed", zap.String("subject", s.subject), zap.String("queue", s.queue))

	<-ctx.Done()
	if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		s.log.Warn("drain subscription", zap.Error(err))
	}
	return nil
}

// Close is a no-op; the connection is owned by the caller.
func (s *Source) Close() error { return nil }

func keyOf(m *nats.Msg) []byte {
	if m.Header == nil {
		return nil
	}
	if k := m.Header.Get(HeaderKey); k != "" {
		return []byte(k)
	}
	return nil
}
