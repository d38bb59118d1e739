package kafka

import (
	"context"

	"PPBridge/global/config"

	"github.com/Shopify/sarama"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// HeaderEventID carries a per-publish id so downstream consumers can trace
// duplicates after producer retries.
const HeaderEventID = "event-id"

// Producer publishes client events to the outbound topic.
type Producer struct {
	sp    sarama.SyncProducer
	topic string
	log   *zap.Logger
}

// NewProducer dials the brokers and returns a sync producer for
// kc.OutboundTopic.
func NewProducer(kc config.KafkaConfig, log *zap.Logger) (*Producer, error) {
	cfg, err := BuildBaseConfigWith(kc)
	if err != nil {
		return nil, err
	}
	sp, err := sarama.NewSyncProducer(kc.Brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "kafka sync producer")
	}
	return NewProducerWith(sp, kc.OutboundTopic, log), nil
}

// NewProducerWith wraps an existing SyncProducer.
func NewProducerWith(sp sarama.SyncProducer, topic string, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{sp: sp, topic: topic, log: log.Named("kafka.producer")}
}

// Publish sends value keyed by key and waits for the broker ack.
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEventID), Value: []byte(uuid.NewString())},
		},
	}
	partition, offset, err := p.sp.SendMessage(msg)
	if err != nil {
		return errors.Wrapf(err, "kafka send topic=%s key=%s", p.topic, key)
	}
	p.log.Debug("sent",
		zap.String("topic", p.topic),
		zap.String("key", key),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *Producer) Close() error {
	return p.sp.Close()
}
