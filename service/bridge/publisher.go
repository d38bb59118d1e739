package bridge

import (
	"context"
	"sync"
	"time"

	"PPBridge/tools/safe"

	"go.uber.org/zap"
)

// Publisher relays client-originated assignment events to the stream. Each
// accepted event is published on its own goroutine, so a slow broker never
// stalls the connection that produced it.
type Publisher struct {
	sink    Sink
	timeout time.Duration
	log     *zap.Logger
	wg      sync.WaitGroup
}

// NewPublisher returns a Publisher writing to sink. A nil sink is allowed: the
// bridge then runs without a broker and every event is dropped with a warning.
func NewPublisher(log *zap.Logger, sink Sink, timeout time.Duration) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Publisher{sink: sink, timeout: timeout, log: log}
}

// Submit validates ev and schedules its publication. It reports whether the
// event was accepted; rejected events are logged and never published.
func (p *Publisher) Submit(ev AssignmentEvent) bool {
	if err := ev.Validate(); err != nil {
		p.log.Warn("discarding client event", zap.Error(err))
		return false
	}
	if p.sink == nil {
		p.log.Warn("no event stream available, discarding client event",
			zap.String("userId", ev.Identity), zap.String("game", ev.Resource))
		return false
	}

	payload, err := ev.Encode()
	if err != nil {
		p.log.Warn("encoding client event", zap.Error(err))
		return false
	}

	p.wg.Add(1)
	safe.Go(p.log, "publish", func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.sink.Publish(ctx, ev.Identity, payload); err != nil {
			p.log.Error("publish failed",
				zap.String("userId", ev.Identity),
				zap.String("game", ev.Resource),
				zap.Error(err),
			)
			return
		}
		p.log.Debug("client event published", zap.String("userId", ev.Identity), zap.String("game", ev.Resource))
	})
	return true
}

// Wait blocks until every in-flight publish has finished.
func (p *Publisher) Wait() { p.wg.Wait() }
