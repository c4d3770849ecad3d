package service

import (
	"context"

	"github.com/Dhoini/glucose-gateway/internal/kafka"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
)

// publishAsync публикует событие в отдельной горутине. Контекст запроса
// отвязывается от отмены, чтобы событие не терялось после ответа клиенту.
func publishAsync(ctx context.Context, producer kafka.Producer, log *logger.Logger, topic string, event kafka.Event) {
	if producer == nil {
		return
	}
	if event.Type == "" {
		event.Type = topic
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		if err := producer.Publish(detached, topic, event); err != nil {
			log.Warnw("Failed to publish event", "topic", topic, "userID", event.UserID, "error", err)
		}
	}()
}
