package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/Dhoini/glucose-gateway/pkg/logger"

	kafkaGo "github.com/segmentio/kafka-go"
)

const topicPartitions = 3

// EnsureKafkaTopics проверяет и создает топики событий.
func EnsureKafkaTopics(ctx context.Context, brokers []string, log *logger.Logger) error {
	if len(brokers) == 0 || strings.TrimSpace(brokers[0]) == "" {
		return errors.New("kafka broker address is empty")
	}
	broker := strings.TrimSpace(brokers[0])
	if _, _, err := net.SplitHostPort(broker); err != nil {
		return fmt.Errorf("invalid broker address %s: %w", broker, err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := kafkaGo.DialLeader(connCtx, "tcp", broker, "", 0)
	if err != nil {
		return fmt.Errorf("kafka connection failed: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("kafka read partitions failed: %w", err)
	}

	existing := make(map[string]bool, len(partitions))
	for _, p := range partitions {
		existing[p.Topic] = true
	}

	missing := missingTopics(existing)
	if len(missing) == 0 {
		log.Infow("All required Kafka topics already exist")
		return nil
	}

	if err := conn.CreateTopics(missing...); err != nil && !errors.Is(err, kafkaGo.TopicAlreadyExists) {
		return fmt.Errorf("kafka create topics failed: %w", err)
	}

	log.Infow("Kafka topics created", "count", len(missing))
	return nil
}

func missingTopics(existing map[string]bool) []kafkaGo.TopicConfig {
	var configs []kafkaGo.TopicConfig
	for _, topic := range Topics {
		if existing[topic] {
			continue
		}
		configs = append(configs, kafkaGo.TopicConfig{
			Topic:             topic,
			NumPartitions:     topicPartitions,
			ReplicationFactor: 1,
		})
	}
	return configs
}
