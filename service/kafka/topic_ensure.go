package kafka

import (
	"PPBridge/global/config"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// EnsureTopicsOnStart creates the inbound and outbound topics when
// kc.AutoCreateTopicsOnStart is set.
func EnsureTopicsOnStart(kc config.KafkaConfig, log *zap.Logger) error {
	if !kc.AutoCreateTopicsOnStart {
		return nil
	}
	cfg, err := BuildBaseConfigWith(kc)
	if err != nil {
		return err
	}
	admin, err := sarama.NewClusterAdmin(kc.Brokers, cfg)
	if err != nil {
		return errors.Wrap(err, "kafka cluster admin")
	}
	defer admin.Close()
	return EnsureTopics(admin, kc, topicsOf(kc), log)
}

func topicsOf(kc config.KafkaConfig) []string {
	if kc.InboundTopic == kc.OutboundTopic {
		return []string{kc.InboundTopic}
	}
	return []string{kc.InboundTopic, kc.OutboundTopic}
}

// EnsureTopics creates any missing topic and grows the partition count of
// existing ones up to kc.PartitionsPerTopic. Partitions are never reduced.
func EnsureTopics(admin sarama.ClusterAdmin, kc config.KafkaConfig, topics []string, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	partitions := kc.PartitionsPerTopic
	if partitions <= 0 {
		partitions = 1
	}
	rf := kc.ReplicationFactor
	if rf <= 0 {
		rf = 1
	}
	minISR := "1"
	if rf >= 3 {
		minISR = "2"
	}

	for _, t := range topics {
		descs, err := admin.DescribeTopics([]string{t})
		if err != nil {
			return errors.Wrapf(err, "describe topic %s", t)
		}
		exists := len(descs) == 1 && descs[0].Err == sarama.ErrNoError

		if !exists {
			td := &sarama.TopicDetail{
				NumPartitions:     partitions,
				ReplicationFactor: rf,
				ConfigEntries: map[string]*string{
					"cleanup.policy":                 strPtr("delete"),
					"min.insync.replicas":            strPtr(minISR),
					"unclean.leader.election.enable": strPtr("false"),
					"compression.type":               strPtr("producer"),
				},
			}
			if err := admin.CreateTopic(t, td, false); err != nil {
				if isTopicExistsErr(err) {
					log.Info("topic exists (race)", zap.String("topic", t))
					continue
				}
				return errors.Wrapf(err, "create topic %s", t)
			}
			log.Info("topic created", zap.String("topic", t), zap.Int32("partitions", partitions), zap.Int16("rf", rf))
			continue
		}

		cur := int32(len(descs[0].Partitions))
		if partitions > cur {
			if err := admin.CreatePartitions(t, partitions, nil, false); err != nil {
				return errors.Wrapf(err, "expand partitions %s from %d to %d", t, cur, partitions)
			}
			log.Info("topic partitions expanded", zap.String("topic", t), zap.Int32("from", cur), zap.Int32("to", partitions))
			continue
		}
		log.Info("topic exists", zap.String("topic", t), zap.Int32("partitions", cur))
	}
	return nil
}

func isTopicExistsErr(err error) bool {
	var te *sarama.TopicError
	if errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists {
		return true
	}
	return errors.Is(err, sarama.ErrTopicAlreadyExists)
}

func strPtr(s string) *string { return &s }
