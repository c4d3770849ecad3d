package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/internal/repository"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// betaAdmissionLockKey - ключ advisory-блокировки, сериализующей выдачу бета-слотов.
const betaAdmissionLockKey int64 = 0x62657461_71756f74

const (
	pgUniqueViolation  = "23505"
	pgInvalidTextInput = "22P02"
)

const trialColumns = `
	id::text, user_id::text, email, trial_start_date, trial_end_date,
	is_active, is_beta_user, beta_user_number, created_at, updated_at`

// TrialRepository реализация хранилища триалов через PostgreSQL
type TrialRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewTrialRepository создает новое хранилище триалов через PostgreSQL
func NewTrialRepository(db *pgxpool.Pool, log *logger.Logger) *TrialRepository {
	return &TrialRepository{
		db:  db,
		log: log,
	}
}

// CreateTrial вставляет триал в транзакции под advisory-блокировкой:
// подсчет квоты, выбор номера и вставка видят одно и то же состояние.
func (r *TrialRepository) CreateTrial(ctx context.Context, trial domain.Trial, maxBeta int) (domain.Trial, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Trial{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			r.log.Warnw("Failed to rollback trial transaction", "error", err)
		}
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, betaAdmissionLockKey); err != nil {
		return domain.Trial{}, fmt.Errorf("failed to acquire beta admission lock: %w", err)
	}

	var activeBeta int
	if err := tx.QueryRow(ctx, `SELECT get_active_beta_user_count()`).Scan(&activeBeta); err != nil {
		return domain.Trial{}, fmt.Errorf("failed to count beta users: %w", err)
	}

	trial.IsBetaUser = false
	trial.BetaUserNumber = nil
	if activeBeta < maxBeta {
		var next int
		if err := tx.QueryRow(ctx, `SELECT get_next_beta_user_number()`).Scan(&next); err != nil {
			return domain.Trial{}, fmt.Errorf("failed to allocate beta user number: %w", err)
		}
		trial.IsBetaUser = true
		trial.BetaUserNumber = &next
	}

	query := `
		INSERT INTO user_trials (user_id, email, trial_start_date, trial_end_date, is_active, is_beta_user, beta_user_number)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6)
		RETURNING ` + trialColumns

	created, err := scanTrial(tx.QueryRow(ctx, query,
		trial.UserID,
		trial.Email,
		trial.TrialStartDate,
		trial.TrialEndDate,
		trial.IsBetaUser,
		trial.BetaUserNumber,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return domain.Trial{}, repository.ErrDuplicate
			case pgInvalidTextInput:
				return domain.Trial{}, repository.ErrInvalidData
			}
		}
		return domain.Trial{}, fmt.Errorf("failed to insert trial: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Trial{}, fmt.Errorf("failed to commit trial: %w", err)
	}

	r.log.Debugw("Trial inserted", "userID", created.UserID, "isBetaUser", created.IsBetaUser)
	return created, nil
}

// GetActiveByUserID возвращает активный триал пользователя
func (r *TrialRepository) GetActiveByUserID(ctx context.Context, userID string) (domain.Trial, error) {
	query := `SELECT ` + trialColumns + ` FROM user_trials WHERE user_id = $1 AND is_active`
	return r.getOne(ctx, query, userID)
}

// GetLatestByUserID возвращает последний триал пользователя в любом состоянии
func (r *TrialRepository) GetLatestByUserID(ctx context.Context, userID string) (domain.Trial, error) {
	query := `SELECT ` + trialColumns + ` FROM user_trials WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`
	return r.getOne(ctx, query, userID)
}

func (r *TrialRepository) getOne(ctx context.Context, query, userID string) (domain.Trial, error) {
	trial, err := scanTrial(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
			return domain.Trial{}, repository.ErrNotFound
		}
		return domain.Trial{}, fmt.Errorf("failed to get trial: %w", err)
	}
	return trial, nil
}

// HasBetaTrial проверяет, выдавался ли пользователю бета-статус
func (r *TrialRepository) HasBetaTrial(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_trials WHERE user_id = $1 AND is_beta_user)`,
		userID,
	).Scan(&exists)
	if err != nil {
		if isInvalidText(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check beta trial: %w", err)
	}
	return exists, nil
}

// Deactivate завершает активный триал пользователя
func (r *TrialRepository) Deactivate(ctx context.Context, userID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE user_trials SET is_active = FALSE WHERE user_id = $1 AND is_active`, userID)
	if err != nil {
		if isInvalidText(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to deactivate trial: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeactivateExpired завершает все просроченные триалы одним запросом
func (r *TrialRepository) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `UPDATE user_trials SET is_active = FALSE WHERE is_active AND trial_end_date < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired trials: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountActiveBeta возвращает текущее значение бета-квоты
func (r *TrialRepository) CountActiveBeta(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT get_active_beta_user_count()`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count beta users: %w", err)
	}
	return count, nil
}

// ListActive возвращает активные триалы
func (r *TrialRepository) ListActive(ctx context.Context) ([]domain.Trial, error) {
	rows, err := r.db.Query(ctx, `SELECT `+trialColumns+` FROM user_trials WHERE is_active ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active trials: %w", err)
	}
	defer rows.Close()

	trials := make([]domain.Trial, 0)
	for rows.Next() {
		trial, err := scanTrial(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trial: %w", err)
		}
		trials = append(trials, trial)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trials: %w", err)
	}
	return trials, nil
}

func scanTrial(row pgx.Row) (domain.Trial, error) {
	var trial domain.Trial
	err := row.Scan(
		&trial.ID,
		&trial.UserID,
		&trial.Email,
		&trial.TrialStartDate,
		&trial.TrialEndDate,
		&trial.IsActive,
		&trial.IsBetaUser,
		&trial.BetaUserNumber,
		&trial.CreatedAt,
		&trial.UpdatedAt,
	)
	return trial, err
}

// isInvalidText - user_id не является UUID. Для чтения это просто "нет записи".
func isInvalidText(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgInvalidTextInput
}
