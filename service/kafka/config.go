// Package kafka carries assignment events over Kafka: a consumer group feeding
// the inbound handler and a sync producer for client-originated events.
package kafka

import (
	"strings"
	"time"

	"PPBridge/global/config"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
)

const clientID = "game-bridge"

// BuildBaseConfigWith turns the kafka section into a sarama config shared by
// the producer, the consumer group and the admin client.
func BuildBaseConfigWith(kc config.KafkaConfig) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID

	if kc.Version != "" {
		v, err := sarama.ParseKafkaVersion(kc.Version)
		if err != nil {
			return nil, errors.Wrapf(err, "kafka version %q", kc.Version)
		}
		cfg.Version = v
	} else {
		cfg.Version = sarama.V2_1_0_0
	}

	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = kc.ProducerRetries
	if cfg.Producer.Retry.Max <= 0 {
		cfg.Producer.Retry.Max = 1
	}
	// Keyed by identity so each identity's events stay on one partition.
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	switch strings.ToLower(kc.ProducerCompression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	case "gzip":
		cfg.Producer.Compression = sarama.CompressionGZIP
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	switch strings.ToLower(kc.ConsumerInitialOffset) {
	case "oldest":
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "kafka config")
	}
	return cfg, nil
}
