package bridge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const mirrorTimeout = 2 * time.Second

// Consumer applies inbound assignment events. It is the only writer of the
// session store.
type Consumer struct {
	bridge *Bridge
	log    *zap.Logger
}

func NewConsumer(log *zap.Logger, b *Bridge) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{bridge: b, log: log}
}

// Handle processes one stream payload: record the assignment, then notify live
// connections. A payload that cannot be decoded is returned as
// ErrMalformedEvent and has no effect.
func (c *Consumer) Handle(ctx context.Context, key, value []byte) error {
	ev, err := DecodeAssignment(value)
	if err != nil {
		return err
	}

	res := c.bridge.apply(ev)
	c.log.Debug("assignment applied",
		zap.String("userId", ev.Identity),
		zap.String("game", ev.Resource),
		zap.Int("delivered", res.Delivered),
		zap.Int("failed", res.Failed),
	)

	if m := c.bridge.mirror; m != nil {
		mctx, cancel := context.WithTimeout(ctx, mirrorTimeout)
		defer cancel()
		if err := m.Save(mctx, ev.Identity, ev.Resource); err != nil {
			c.log.Warn("mirror save failed", zap.String("userId", ev.Identity), zap.Error(err))
		}
	}
	return nil
}

// Run feeds src into Handle until ctx is cancelled. Handler errors never stop
// the loop.
func (c *Consumer) Run(ctx context.Context, src Source) error {
	c.log.Info("inbound consumer started")
	defer c.log.Info("inbound consumer stopped")

	err := src.Run(ctx, func(ctx context.Context, key, value []byte) error {
		if err := c.Handle(ctx, key, value); err != nil {
			c.log.Warn("dropping inbound event",
				zap.ByteString("key", key),
				zap.Int("bytes", len(value)),
				zap.Error(err),
			)
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("inbound source: %w", err)
	}
	return nil
}
