package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/domain"
)

var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate дубликат записи (нарушение уникальности)
	ErrDuplicate = errors.New("duplicate record")

	// ErrInvalidData неверные данные
	ErrInvalidData = errors.New("invalid data")
)

// TrialRepository - хранилище записей user_trials и бета-квоты.
type TrialRepository interface {
	// CreateTrial атомарно считает активных бета-пользователей, решает выдавать ли
	// бета-статус (count < maxBeta), назначает следующий номер и вставляет запись.
	// Активный триал того же пользователя дает ErrDuplicate.
	CreateTrial(ctx context.Context, trial domain.Trial, maxBeta int) (domain.Trial, error)

	// GetActiveByUserID возвращает активный триал или ErrNotFound.
	GetActiveByUserID(ctx context.Context, userID string) (domain.Trial, error)

	// GetLatestByUserID возвращает последний триал пользователя в любом состоянии или ErrNotFound.
	GetLatestByUserID(ctx context.Context, userID string) (domain.Trial, error)

	// HasBetaTrial - был ли у пользователя когда-либо бета-триал.
	HasBetaTrial(ctx context.Context, userID string) (bool, error)

	// Deactivate снимает is_active с активного триала пользователя.
	// Возвращает false, если активного триала не было.
	Deactivate(ctx context.Context, userID string) (bool, error)

	// DeactivateExpired снимает is_active со всех триалов, закончившихся до now.
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)

	// CountActiveBeta - текущее значение бета-квоты.
	CountActiveBeta(ctx context.Context) (int, error)

	// ListActive возвращает все активные триалы, новые первыми.
	ListActive(ctx context.Context) ([]domain.Trial, error)
}

// SubscriptionRepository - проекция подписок, ключ - userId.
// Пишут в нее и синхронный путь создания подписки, и вебхуки.
type SubscriptionRepository interface {
	// GetByUserID возвращает проекцию или ErrNotFound.
	GetByUserID(ctx context.Context, userID string) (*domain.Subscription, error)

	// Save создает или перезаписывает проекцию пользователя.
	Save(ctx context.Context, sub *domain.Subscription) error

	// UpdateIfExists применяет apply к существующей проекции и сохраняет ее.
	// Если проекции нет, ничего не создается и возвращается false.
	UpdateIfExists(ctx context.Context, userID string, apply func(*domain.Subscription)) (bool, error)

	// Delete удаляет проекцию. Отсутствие записи не ошибка.
	Delete(ctx context.Context, userID string) error
}
