// Package dispatcher opens the configured event stream driver and hands back
// its inbound Source and outbound Sink.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"PPBridge/global/config"
	"PPBridge/service/bridge"
	"PPBridge/service/kafka"
	"PPBridge/service/natsx"

	"go.uber.org/zap"
)

// ErrUnknownDriver is returned for a stream.driver other than kafka or nats.
var ErrUnknownDriver = errors.New("unknown stream driver")

// Stream bundles both directions of one driver.
type Stream struct {
	Driver string
	Source bridge.Source
	Sink   bridge.Sink
	close  func() error
}

// Close releases every client the driver opened. Call it after the consumer
// loop has returned.
func (s *Stream) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

// Open connects the driver named in cfg.Stream.Driver. For kafka, topics are
// created first when configured, then the producer, then the consumer group.
func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (*Stream, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Stream.Driver {
	case config.DriverKafka:
		return openKafka(cfg.Kafka, log)
	case config.DriverNats:
		return openNats(cfg.Nats, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Stream.Driver)
	}
}

func openKafka(kc config.KafkaConfig, log *zap.Logger) (*Stream, error) {
	if err := kafka.EnsureTopicsOnStart(kc, log.Named("kafka.admin")); err != nil {
		return nil, err
	}
	prod, err := kafka.NewProducer(kc, log)
	if err != nil {
		return nil, err
	}
	src, err := kafka.NewSource(kc, log)
	if err != nil {
		_ = prod.Close()
		return nil, err
	}
	log.Info("kafka stream ready",
		zap.Strings("brokers", kc.Brokers),
		zap.String("inbound", kc.InboundTopic),
		zap.String("outbound", kc.OutboundTopic),
		zap.String("group", kc.GroupID),
	)
	return &Stream{
		Driver: config.DriverKafka,
		Source: src,
		Sink:   prod,
		close: func() error {
			return errors.Join(src.Close(), prod.Close())
		},
	}, nil
}

func openNats(nc config.NatsConfig, log *zap.Logger) (*Stream, error) {
	conn, err := natsx.Connect(nc, log)
	if err != nil {
		return nil, err
	}
	sink := natsx.NewSink(conn, nc.OutboundSubject, log)
	log.Info("nats stream ready",
		zap.String("url", conn.ConnectedUrl()),
		zap.String("inbound", nc.InboundSubject),
		zap.String("outbound", nc.OutboundSubject),
		zap.String("queue", nc.Queue),
	)
	return &Stream{
		Driver: config.DriverNats,
		Source: natsx.NewSource(conn, nc.InboundSubject, nc.Queue, log),
		Sink:   sink,
		close:  sink.Close,
	}, nil
}
