package producers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"github.com/ledger-integrity-pipeline/internal/config"
)

// topicAdmin is the part of *kafka.Conn used to provision topics
type topicAdmin interface {
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
	CreateTopics(topics ...kafka.TopicConfig) error
}

// topicReadBackOff bounds how long a broker that is still starting is waited for.
var topicReadBackOff = func() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), 4)
}

// ensureTopic creates topic with the configured partitioning unless the
// broker already reports partitions for it.
func ensureTopic(admin topicAdmin, cfg *config.KafkaConfig, topic string, log *slog.Logger) error {
	log = log.With("topic", topic)

	var partitions []kafka.Partition
	readErr := backoff.RetryNotify(func() error {
		var err error
		partitions, err = admin.ReadPartitions(topic)
		return err
	}, topicReadBackOff(), func(err error, wait time.Duration) {
		log.Warn("Failed to read topic partitions, retrying", "error", err, "wait", wait)
	})

	if readErr == nil && len(partitions) > 0 {
		log.Debug("Kafka topic already exists", "partitions", len(partitions))
		return nil
	}

	topicConfig := kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     max(cfg.NumPartitions, 1),
		ReplicationFactor: max(cfg.ReplicationFactor, 1),
	}
	log.Info("Creating Kafka topic",
		"partitions", topicConfig.NumPartitions,
		"replication_factor", topicConfig.ReplicationFactor,
		"last_read_error", readErr,
	)
	if err := admin.CreateTopics(topicConfig); err != nil {
		return fmt.Errorf("failed to create kafka topic %s: %w", topic, err)
	}
	return nil
}
