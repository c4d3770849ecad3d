package repository

import (
	"context"
	"sync"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
)

// InMemorySubscriptionRepository реализация хранилища проекций подписок в памяти.
// Не разделяется между репликами, поэтому только для тестов и локального запуска.
type InMemorySubscriptionRepository struct {
	subscriptions map[string]domain.Subscription
	mutex         sync.RWMutex
	log           *logger.Logger
}

// NewInMemorySubscriptionRepository создает новый репозиторий подписок в памяти
func NewInMemorySubscriptionRepository(log *logger.Logger) *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{
		subscriptions: make(map[string]domain.Subscription),
		log:           log,
	}
}

// GetByUserID возвращает копию проекции пользователя
func (r *InMemorySubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	sub, exists := r.subscriptions[userID]
	if !exists {
		return nil, ErrNotFound
	}
	return &sub, nil
}

// Save сохраняет проекцию
func (r *InMemorySubscriptionRepository) Save(ctx context.Context, sub *domain.Subscription) error {
	if sub == nil || sub.UserID == "" {
		return ErrInvalidData
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	stored := *sub
	stored.UpdatedAt = time.Now()
	r.subscriptions[sub.UserID] = stored
	return nil
}

// UpdateIfExists обновляет проекцию только если она уже есть
func (r *InMemorySubscriptionRepository) UpdateIfExists(ctx context.Context, userID string, apply func(*domain.Subscription)) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	sub, exists := r.subscriptions[userID]
	if !exists {
		return false, nil
	}

	apply(&sub)
	sub.UserID = userID
	sub.UpdatedAt = time.Now()
	r.subscriptions[userID] = sub
	return true, nil
}

// Delete удаляет проекцию
func (r *InMemorySubscriptionRepository) Delete(ctx context.Context, userID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.subscriptions, userID)
	return nil
}
