package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// Префикс ключа проекции подписки пользователя
	userSubscriptionKeyPrefix = "subscription:user:"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// NewRedisClient подключается к Redis и проверяет соединение
func NewRedisClient(ctx context.Context, addr, password string, db int, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		log.Errorw("Failed to connect to Redis", "error", err, "addr", addr)
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", addr)
	return client, nil
}

// RedisCacheRepository - кеш проекций подписок в Redis, общий для всех реплик
type RedisCacheRepository struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisCacheRepository создает новый экземпляр Redis кеша
func NewRedisCacheRepository(client *redis.Client, log *logger.Logger) *RedisCacheRepository {
	return &RedisCacheRepository{
		client: client,
		ttl:    defaultCacheTTL,
		log:    log,
	}
}

// Close закрывает соединение с Redis
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

func subscriptionKey(userID string) string {
	return userSubscriptionKeyPrefix + userID
}

// CacheSubscription кеширует проекцию подписки пользователя
func (r *RedisCacheRepository) CacheSubscription(ctx context.Context, sub *domain.Subscription) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}

	if err := r.client.Set(ctx, subscriptionKey(sub.UserID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache subscription: %w", err)
	}

	r.log.Debugw("Subscription cached successfully", "userID", sub.UserID)
	return nil
}

// GetCachedSubscription получает проекцию из кеша. Промах - (nil, nil).
func (r *RedisCacheRepository) GetCachedSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	data, err := r.client.Get(ctx, subscriptionKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription from cache: %w", err)
	}

	var sub domain.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached subscription: %w", err)
	}
	return &sub, nil
}

// InvalidateSubscription удаляет проекцию пользователя из кеша
func (r *RedisCacheRepository) InvalidateSubscription(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, subscriptionKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate subscription cache: %w", err)
	}
	return nil
}

// CachedSubscriptionRepository реализует SubscriptionRepository с кешированием в Redis.
// Запись идет в основное хранилище, кеш обновляется или инвалидируется после нее.
type CachedSubscriptionRepository struct {
	repo  SubscriptionRepository
	cache *RedisCacheRepository
	log   *logger.Logger
}

// NewCachedSubscriptionRepository создает новый репозиторий с кешированием
func NewCachedSubscriptionRepository(repo SubscriptionRepository, cache *RedisCacheRepository, log *logger.Logger) *CachedSubscriptionRepository {
	return &CachedSubscriptionRepository{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// GetByUserID получает проекцию (сначала из кеша, потом из БД)
func (r *CachedSubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	cached, err := r.cache.GetCachedSubscription(ctx, userID)
	if err != nil {
		// Продолжаем выполнение при ошибке кеша
		r.log.Warnw("Error getting subscription from cache", "error", err, "userID", userID)
	}
	if cached != nil {
		return cached, nil
	}

	sub, err := r.repo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.CacheSubscription(ctx, sub); err != nil {
		r.log.Warnw("Failed to cache subscription after fetching", "error", err, "userID", userID)
	}
	return sub, nil
}

// Save сохраняет проекцию в БД и кеширует ее
func (r *CachedSubscriptionRepository) Save(ctx context.Context, sub *domain.Subscription) error {
	if err := r.repo.Save(ctx, sub); err != nil {
		return err
	}

	if err := r.cache.CacheSubscription(ctx, sub); err != nil {
		r.log.Warnw("Failed to cache subscription after save", "error", err, "userID", sub.UserID)
		r.invalidate(ctx, sub.UserID)
	}
	return nil
}

// UpdateIfExists обновляет проекцию в БД и сбрасывает кеш
func (r *CachedSubscriptionRepository) UpdateIfExists(ctx context.Context, userID string, apply func(*domain.Subscription)) (bool, error) {
	updated, err := r.repo.UpdateIfExists(ctx, userID, apply)
	if err != nil {
		return false, err
	}
	if updated {
		r.invalidate(ctx, userID)
	}
	return updated, nil
}

// Delete удаляет проекцию из БД и кеша
func (r *CachedSubscriptionRepository) Delete(ctx context.Context, userID string) error {
	if err := r.repo.Delete(ctx, userID); err != nil {
		return err
	}
	r.invalidate(ctx, userID)
	return nil
}

func (r *CachedSubscriptionRepository) invalidate(ctx context.Context, userID string) {
	if err := r.cache.InvalidateSubscription(ctx, userID); err != nil {
		r.log.Warnw("Failed to invalidate subscription cache", "error", err, "userID", userID)
	}
}
