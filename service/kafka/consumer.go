package kafka

import (
	"context"
	"sync"
	"time"

	"PPBridge/global/config"
	"PPBridge/tools/safe"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const defaultRejoinBackoff = time.Second

// Source consumes the inbound topic through a consumer group.
type Source struct {
	group   sarama.ConsumerGroup
	topics  []string
	backoff time.Duration
	log     *zap.Logger
}

// NewSource joins kc.GroupID on kc.InboundTopic.
func NewSource(kc config.KafkaConfig, log *zap.Logger) (*Source, error) {
	cfg, err := BuildBaseConfigWith(kc)
	if err != nil {
		return nil, err
	}
	group, err := sarama.NewConsumerGroup(kc.Brokers, kc.GroupID, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "kafka consumer group %s", kc.GroupID)
	}
	return NewSourceWith(group, []string{kc.InboundTopic}, log), nil
}

// NewSourceWith wraps an existing consumer group.
func NewSourceWith(group sarama.ConsumerGroup, topics []string, log *zap.Logger) *Source {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Source{group: group, topics: topics, backoff: defaultRejoinBackoff, log: log.Named("kafka.consumer")}
	safe.Go(s.log, "kafka-group-errors", func() {
		for err := range group.Errors() {
			s.log.Warn("consumer group error", zap.Error(err))
		}
	})
	return s
}

// Run consumes until ctx is cancelled or the group is closed. Consume returns
// on every rebalance, so it is called in a loop.
func (s *Source) Run(ctx context.Context, handle func(ctx context.Context, key, value []byte) error) error {
	h := &groupHandler{handle: handle, log: s.log}
	for {
		err := s.group.Consume(ctx, s.topics, h)
		if ctx.Err() != nil || errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return nil
		}
		if err != nil {
			s.log.Warn("consume failed, rejoining", zap.Strings("topics", s.topics), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.backoff):
			}
		}
	}
}

func (s *Source) Close() error {
	return s.group.Close()
}

// groupHandler feeds claimed messages to handle. Claims for different
// partitions run on their own goroutines; mu keeps handle single-threaded.
type groupHandler struct {
	mu     sync.Mutex
	handle func(ctx context.Context, key, value []byte) error
	log    *zap.Logger
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.log.Info("consumer group joined",
		zap.String("member", sess.MemberID()),
		zap.Int32("generation", sess.GenerationID()),
	)
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.log.Info("consumer group session ended")
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.mu.Lock()
			err := h.handle(ctx, msg.Key, msg.Value)
			h.mu.Unlock()
			if err != nil {
				h.log.Warn("handler error",
					zap.String("topic", msg.Topic),
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
			sess.MarkMessage(msg, "")
		case <-ctx.Done():
			return nil
		}
	}
}
