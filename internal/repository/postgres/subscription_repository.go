package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/internal/repository"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const subscriptionColumns = `
	subscription_id, user_id::text, customer_id, plan_id, status,
	current_period_start, current_period_end, trial_end, cancel_at_period_end, updated_at`

// SubscriptionRepository хранит проекции подписок в user_subscriptions
type SubscriptionRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewSubscriptionRepository создает новый репозиторий подписок через PostgreSQL
func NewSubscriptionRepository(db *pgxpool.Pool, log *logger.Logger) *SubscriptionRepository {
	return &SubscriptionRepository{
		db:  db,
		log: log,
	}
}

// GetByUserID возвращает проекцию подписки пользователя
func (r *SubscriptionRepository) GetByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE user_id = $1`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// Save создает или перезаписывает проекцию пользователя
func (r *SubscriptionRepository) Save(ctx context.Context, sub *domain.Subscription) error {
	query := `
		INSERT INTO user_subscriptions (
			user_id, subscription_id, customer_id, plan_id, status,
			current_period_start, current_period_end, trial_end, cancel_at_period_end
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			subscription_id      = EXCLUDED.subscription_id,
			customer_id          = EXCLUDED.customer_id,
			plan_id              = EXCLUDED.plan_id,
			status               = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end   = EXCLUDED.current_period_end,
			trial_end            = EXCLUDED.trial_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end`

	_, err := r.db.Exec(ctx, query,
		sub.UserID,
		sub.ID,
		sub.CustomerID,
		sub.PlanID,
		string(sub.Status),
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.TrialEnd,
		sub.CancelAtPeriodEnd,
	)
	if err != nil {
		if isInvalidText(err) {
			return repository.ErrInvalidData
		}
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// UpdateIfExists блокирует строку, применяет изменения и сохраняет их.
// Отсутствующая строка не создается.
func (r *SubscriptionRepository) UpdateIfExists(ctx context.Context, userID string, apply func(*domain.Subscription)) (bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.log.Warnw("Failed to rollback subscription transaction", "error", err)
		}
	}()

	query := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE user_id = $1 FOR UPDATE`
	sub, err := scanSubscription(tx.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to lock subscription: %w", err)
	}

	apply(sub)

	_, err = tx.Exec(ctx, `
		UPDATE user_subscriptions SET
			status = $2,
			current_period_start = $3,
			current_period_end = $4,
			trial_end = $5,
			cancel_at_period_end = $6,
			plan_id = $7
		WHERE user_id = $1`,
		userID,
		string(sub.Status),
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.TrialEnd,
		sub.CancelAtPeriodEnd,
		sub.PlanID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update subscription: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit subscription update: %w", err)
	}
	return true, nil
}

// Delete удаляет проекцию пользователя
func (r *SubscriptionRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM user_subscriptions WHERE user_id = $1`, userID); err != nil {
		if isInvalidText(err) {
			return nil
		}
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		sub    domain.Subscription
		status string
	)
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.CustomerID,
		&sub.PlanID,
		&status,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.TrialEnd,
		&sub.CancelAtPeriodEnd,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Status = domain.SubscriptionStatus(status)
	return &sub, nil
}
