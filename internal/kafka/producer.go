package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/glucose-gateway/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Топики событий жизненного цикла
const (
	TopicTrialCreated          = "trial_created"
	TopicTrialEnded            = "trial_ended"
	TopicSubscriptionCreated   = "subscription_created"
	TopicSubscriptionCancelled = "subscription_canceled"
)

// Topics перечисляет все топики, которые пишет шлюз
var Topics = []string{
	TopicTrialCreated,
	TopicTrialEnded,
	TopicSubscriptionCreated,
	TopicSubscriptionCancelled,
}

const writeTimeout = 15 * time.Second

// Event - тело сообщения. Ключ сообщения - UserID, события одного
// пользователя попадают в одну партицию.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"userId"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data,omitempty"`
}

// Producer определяет интерфейс для публикации сообщений в Kafka.
type Producer interface {
	// Publish отправляет событие в топик.
	Publish(ctx context.Context, topic string, event Event) error
	// Close закрывает соединение продюсера Kafka.
	Close() error
}

// messageWriter - часть kafka.Writer, которой пользуется продюсер.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaProducer реализует интерфейс Producer, используя segmentio/kafka-go.
type kafkaProducer struct {
	writer messageWriter
	log    *logger.Logger
}

// NewKafkaProducer создает и настраивает новый продюсер Kafka.
func NewKafkaProducer(brokers []string, log *logger.Logger) (Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	log.Infow("Kafka producer initialized", "brokers", brokers)
	return newProducer(writer, log), nil
}

func newProducer(writer messageWriter, log *logger.Logger) *kafkaProducer {
	return &kafkaProducer{
		writer: writer,
		log:    log.Named("kafka"),
	}
}

// Publish сериализует событие в JSON и отправляет в указанный топик.
func (k *kafkaProducer) Publish(ctx context.Context, topic string, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.Type == "" {
		event.Type = topic
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := kafka.Message{
		Topic: topic,
		Key:   []byte(event.UserID),
		Value: value,
		Time:  event.OccurredAt,
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := k.writer.WriteMessages(writeCtx, message); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			k.log.Errorw("Kafka write timeout exceeded", "error", err, "topic", topic, "userID", event.UserID)
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		k.log.Errorw("Failed to write message to Kafka", "error", err, "topic", topic, "userID", event.UserID)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	k.log.Debugw("Published message to Kafka", "topic", topic, "userID", event.UserID)
	return nil
}

// Close закрывает соединение Kafka Writer.
func (k *kafkaProducer) Close() error {
	if err := k.writer.Close(); err != nil {
		k.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	k.log.Infow("Kafka producer writer closed")
	return nil
}

// NopProducer используется, когда брокеры не настроены.
type NopProducer struct {
	log *logger.Logger
}

// NewNopProducer создает продюсер, который только логирует события
func NewNopProducer(log *logger.Logger) *NopProducer {
	return &NopProducer{log: log}
}

// Publish ничего не отправляет
func (p *NopProducer) Publish(_ context.Context, topic string, event Event) error {
	p.log.Debugw("Kafka disabled, event dropped", "topic", topic, "userID", event.UserID)
	return nil
}

// Close ничего не делает
func (p *NopProducer) Close() error { return nil }
